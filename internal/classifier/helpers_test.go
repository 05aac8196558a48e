package classifier_test

import (
	"time"

	"github.com/temirov/flowscout/internal/snapshot"
)

const (
	testHoursPerDayConstant = 24
	activeBranchMarker      = -1
)

var testReferenceTime = time.Date(2025, time.June, 15, 9, 30, 0, 0, time.UTC)

type repositoryFixture struct {
	branches []snapshot.Branch
	commits  []snapshot.Commit
	tags     []snapshot.Tag
}

func newRepositoryFixture() *repositoryFixture {
	return &repositoryFixture{}
}

func daysAgo(days float64) time.Time {
	return testReferenceTime.Add(-time.Duration(days * testHoursPerDayConstant * float64(time.Hour)))
}

// addBranch records a branch; pass activeBranchMarker as deletedDaysAgo for active branches.
func (fixture *repositoryFixture) addBranch(name string, createdDaysAgo float64, deletedDaysAgo float64) *repositoryFixture {
	branch := snapshot.Branch{Name: name, Created: daysAgo(createdDaysAgo)}
	if deletedDaysAgo >= 0 {
		branch.Deleted = daysAgo(deletedDaysAgo)
	}
	fixture.branches = append(fixture.branches, branch)
	return fixture
}

func (fixture *repositoryFixture) addCommit(branch string, message string, commitDaysAgo float64) *repositoryFixture {
	fixture.commits = append(fixture.commits, snapshot.Commit{Branch: branch, Message: message, Timestamp: daysAgo(commitDaysAgo)})
	return fixture
}

func (fixture *repositoryFixture) addTag(name string, tagDaysAgo float64) *repositoryFixture {
	fixture.tags = append(fixture.tags, snapshot.Tag{Name: name, Timestamp: daysAgo(tagDaysAgo)})
	return fixture
}

func (fixture *repositoryFixture) snapshot() snapshot.Snapshot {
	return snapshot.New(fixture.branches, fixture.commits, fixture.tags)
}
