package snapshot_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/flowscout/internal/snapshot"
)

const (
	testMainBranchNameConstant    = "main"
	testFeatureBranchNameConstant = "feature/login"
	testReleaseBranchNameConstant = "release/1.0"
)

var testReferenceTime = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestBuilderResolvesCreationTimes(testInstance *testing.T) {
	earliestCommitTime := testReferenceTime.Add(-72 * time.Hour)
	fallbackCreationTime := testReferenceTime.Add(-400 * 24 * time.Hour)

	testCases := []struct {
		name            string
		branch          snapshot.Branch
		commits         []snapshot.Commit
		expectedCreated time.Time
	}{
		{
			name:            "explicit_creation_kept",
			branch:          snapshot.Branch{Name: testMainBranchNameConstant, Created: testReferenceTime},
			commits:         []snapshot.Commit{{Branch: testMainBranchNameConstant, Timestamp: earliestCommitTime}},
			expectedCreated: testReferenceTime,
		},
		{
			name:   "earliest_commit_used",
			branch: snapshot.Branch{Name: testFeatureBranchNameConstant},
			commits: []snapshot.Commit{
				{Branch: testFeatureBranchNameConstant, Timestamp: testReferenceTime},
				{Branch: testFeatureBranchNameConstant, Timestamp: earliestCommitTime},
			},
			expectedCreated: earliestCommitTime,
		},
		{
			name:            "fallback_used_without_commits",
			branch:          snapshot.Branch{Name: testReleaseBranchNameConstant},
			expectedCreated: fallbackCreationTime,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			builder := snapshot.NewBuilder().WithFallbackCreationTime(fallbackCreationTime)
			builder.AddBranch(testCase.branch)
			for _, commit := range testCase.commits {
				builder.AddCommit(commit)
			}

			repositorySnapshot, buildError := builder.Build()
			require.NoError(testInstance, buildError)

			branches := repositorySnapshot.Branches()
			require.Len(testInstance, branches, 1)
			require.True(testInstance, testCase.expectedCreated.Equal(branches[0].Created))
		})
	}
}

func TestBuilderMergesDuplicateBranches(testInstance *testing.T) {
	olderCreation := testReferenceTime.Add(-48 * time.Hour)

	testCases := []struct {
		name            string
		records         []snapshot.Branch
		expectedCreated time.Time
		expectedDeleted bool
	}{
		{
			name: "active_record_keeps_branch_active",
			records: []snapshot.Branch{
				{Name: testFeatureBranchNameConstant, Created: testReferenceTime, Deleted: testReferenceTime.Add(time.Hour)},
				{Name: testFeatureBranchNameConstant, Created: olderCreation},
			},
			expectedCreated: olderCreation,
			expectedDeleted: false,
		},
		{
			name: "latest_deletion_kept",
			records: []snapshot.Branch{
				{Name: testFeatureBranchNameConstant, Created: olderCreation, Deleted: testReferenceTime},
				{Name: testFeatureBranchNameConstant, Created: testReferenceTime, Deleted: testReferenceTime.Add(time.Hour)},
			},
			expectedCreated: olderCreation,
			expectedDeleted: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			builder := snapshot.NewBuilder()
			for _, record := range testCase.records {
				builder.AddBranch(record)
			}

			repositorySnapshot, buildError := builder.Build()
			require.NoError(testInstance, buildError)

			branches := repositorySnapshot.Branches()
			require.Len(testInstance, branches, 1)
			require.True(testInstance, testCase.expectedCreated.Equal(branches[0].Created))
			require.Equal(testInstance, testCase.expectedDeleted, branches[0].IsDeleted())
		})
	}
}

func TestBuilderRejectsInvalidInput(testInstance *testing.T) {
	lifespanBuilder := snapshot.NewBuilder().AddBranch(snapshot.Branch{
		Name:    testFeatureBranchNameConstant,
		Created: testReferenceTime,
		Deleted: testReferenceTime.Add(-time.Hour),
	})
	_, lifespanError := lifespanBuilder.Build()
	require.ErrorIs(testInstance, lifespanError, snapshot.ErrInvalidBranchLifespan)
	require.ErrorContains(testInstance, lifespanError, testFeatureBranchNameConstant)

	_, nameError := snapshot.NewBuilder().AddBranch(snapshot.Branch{Name: "  "}).Build()
	require.ErrorIs(testInstance, nameError, snapshot.ErrBranchNameRequired)
}

func TestSnapshotAccessorsReturnCopies(testInstance *testing.T) {
	repositorySnapshot := snapshot.New(
		[]snapshot.Branch{{Name: testMainBranchNameConstant, Created: testReferenceTime}},
		[]snapshot.Commit{{Branch: testMainBranchNameConstant, Message: "Initial commit", Timestamp: testReferenceTime}},
		[]snapshot.Tag{{Name: "v1.0.0", Timestamp: testReferenceTime}},
	)

	branches := repositorySnapshot.Branches()
	branches[0].Name = "mutated"
	commits := repositorySnapshot.Commits()
	commits[0].Message = "mutated"

	require.Equal(testInstance, testMainBranchNameConstant, repositorySnapshot.Branches()[0].Name)
	require.Equal(testInstance, "Initial commit", repositorySnapshot.Commits()[0].Message)
	require.Equal(testInstance, snapshot.Counts{Branches: 1, Commits: 1, Tags: 1}, repositorySnapshot.Counts())
	require.False(testInstance, repositorySnapshot.IsEmpty())
	require.True(testInstance, snapshot.New(nil, nil, nil).IsEmpty())
}

func TestBranchLifespan(testInstance *testing.T) {
	activeBranch := snapshot.Branch{Name: testMainBranchNameConstant, Created: testReferenceTime}
	_, activeHasLifespan := activeBranch.Lifespan()
	require.False(testInstance, activeHasLifespan)

	deletedBranch := snapshot.Branch{Name: testFeatureBranchNameConstant, Created: testReferenceTime, Deleted: testReferenceTime.Add(36 * time.Hour)}
	lifespan, deletedHasLifespan := deletedBranch.Lifespan()
	require.True(testInstance, deletedHasLifespan)
	require.Equal(testInstance, 36*time.Hour, lifespan)
}

func TestStaticProviderHonorsCancellation(testInstance *testing.T) {
	provider := snapshot.NewStaticProvider(snapshot.New(nil, nil, nil))

	_, snapshotError := provider.Snapshot(context.Background())
	require.NoError(testInstance, snapshotError)

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()
	_, cancelledError := provider.Snapshot(cancelledContext)
	require.ErrorIs(testInstance, cancelledError, context.Canceled)
}
