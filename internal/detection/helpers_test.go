package detection_test

import (
	"path/filepath"
	"time"
)

const (
	githubFlowFixtureNameConstant = "github_flow.yaml"
	migratingFixtureNameConstant  = "migrating.yaml"
	testdataDirectoryConstant     = "testdata"
)

var testReferenceTime = time.Date(2025, time.June, 15, 9, 30, 0, 0, time.UTC)

func fixturePath(fixtureName string) string {
	absolutePath, absoluteError := filepath.Abs(filepath.Join(testdataDirectoryConstant, fixtureName))
	if absoluteError != nil {
		panic(absoluteError)
	}
	return absolutePath
}

func daysAgo(days int) time.Time {
	return testReferenceTime.Add(-time.Duration(days) * 24 * time.Hour)
}
