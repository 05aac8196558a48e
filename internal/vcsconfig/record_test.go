package vcsconfig_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/flowscout/internal/classifier"
	"github.com/temirov/flowscout/internal/vcsconfig"
)

var testDetectedAt = time.Date(2025, time.June, 15, 9, 30, 0, 0, time.UTC)

func sampleRecord() vcsconfig.Record {
	return vcsconfig.NewRecord(
		classifier.ClassificationResult{
			WorkflowType: classifier.WorkflowTypeGitHubFlow,
			Confidence:   0.8,
			Evidence:     []string{"Found 2 PR merges", "No develop branch"},
		},
		classifier.MigrationResult{MigrationDetected: true},
		vcsconfig.DetectionMethodAutomatic,
		testDetectedAt,
		0,
	)
}

func TestNewRecordPopulatesCacheWindow(testInstance *testing.T) {
	record := sampleRecord()

	require.Equal(testInstance, "git", record.VCSConfig.Type)
	require.Equal(testInstance, classifier.WorkflowTypeGitHubFlow, record.VCSConfig.Workflow)
	require.Equal(testInstance, vcsconfig.DetectionMethodAutomatic, record.VCSConfig.DetectionMethod)
	require.True(testInstance, record.VCSConfig.MigrationDetected)
	require.Equal(testInstance, testDetectedAt.Add(vcsconfig.DefaultCacheTTL), record.VCSConfig.Cache.ValidUntil)

	customRecord := vcsconfig.NewRecord(classifier.ClassificationResult{WorkflowType: classifier.WorkflowTypeGitFlow}, classifier.MigrationResult{}, vcsconfig.DetectionMethodUser, testDetectedAt, time.Hour)
	require.Equal(testInstance, testDetectedAt.Add(time.Hour), customRecord.VCSConfig.Cache.ValidUntil)
}

func TestRecordIsValid(testInstance *testing.T) {
	record := sampleRecord()

	testCases := []struct {
		name     string
		record   vcsconfig.Record
		now      time.Time
		expected bool
	}{
		{name: "fresh", record: record, now: testDetectedAt.Add(24 * time.Hour), expected: true},
		{name: "expired_at_boundary", record: record, now: testDetectedAt.Add(vcsconfig.DefaultCacheTTL), expected: false},
		{name: "expired", record: record, now: testDetectedAt.Add(30 * 24 * time.Hour), expected: false},
		{name: "empty_record", record: vcsconfig.Record{}, now: testDetectedAt, expected: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expected, testCase.record.IsValid(testCase.now))
		})
	}
}

func TestSaveAndLoadByExtension(testInstance *testing.T) {
	testCases := []struct {
		name             string
		fileName         string
		expectedFragment string
	}{
		{name: "json", fileName: "vcs_config.json", expectedFragment: `"detection_method": "auto-detected"`},
		{name: "yaml", fileName: "vcs_config.yaml", expectedFragment: "detection_method: auto-detected"},
		{name: "yml", fileName: "vcs_config.yml", expectedFragment: "workflow: github_flow"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			recordPath := filepath.Join(testInstance.TempDir(), "nested", ".flowscout", testCase.fileName)
			record := sampleRecord()

			require.NoError(testInstance, vcsconfig.Save(recordPath, record))

			contentBytes, readError := os.ReadFile(recordPath)
			require.NoError(testInstance, readError)
			require.Contains(testInstance, string(contentBytes), testCase.expectedFragment)
			require.Contains(testInstance, string(contentBytes), "vcs_config")

			loadedRecord, loadError := vcsconfig.Load(recordPath)
			require.NoError(testInstance, loadError)
			require.Equal(testInstance, record.VCSConfig.Workflow, loadedRecord.VCSConfig.Workflow)
			require.Equal(testInstance, record.VCSConfig.DetectionEvidence, loadedRecord.VCSConfig.DetectionEvidence)
			require.True(testInstance, record.VCSConfig.Cache.ValidUntil.Equal(loadedRecord.VCSConfig.Cache.ValidUntil))
			require.InDelta(testInstance, 0.8, loadedRecord.VCSConfig.ConfidenceScore, 1e-9)
		})
	}
}

func TestSaveAndLoadRejectInvalidPaths(testInstance *testing.T) {
	require.ErrorIs(testInstance, vcsconfig.Save(" ", sampleRecord()), vcsconfig.ErrPathRequired)
	require.ErrorIs(testInstance, vcsconfig.Save(filepath.Join(testInstance.TempDir(), "config.toml"), sampleRecord()), vcsconfig.ErrUnsupportedFormat)

	_, missingError := vcsconfig.Load(filepath.Join(testInstance.TempDir(), "missing.json"))
	require.True(testInstance, errors.Is(missingError, os.ErrNotExist))
}

func TestLoadRejectsMalformedRecord(testInstance *testing.T) {
	recordPath := filepath.Join(testInstance.TempDir(), "vcs_config.json")
	require.NoError(testInstance, os.WriteFile(recordPath, []byte("{not json"), 0o600))

	_, loadError := vcsconfig.Load(recordPath)
	require.Error(testInstance, loadError)
	require.Contains(testInstance, loadError.Error(), "failed to parse configuration record")
}

func TestResolvePath(testInstance *testing.T) {
	require.Equal(testInstance, filepath.Join("/repo", vcsconfig.DefaultRecordPath), vcsconfig.ResolvePath("/repo", ""))
	require.Equal(testInstance, "/etc/flowscout.yaml", vcsconfig.ResolvePath("/repo", "/etc/flowscout.yaml"))
	require.Equal(testInstance, filepath.Join("/repo", "custom.yml"), vcsconfig.ResolvePath("/repo", "custom.yml"))
}
