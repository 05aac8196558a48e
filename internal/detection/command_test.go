package detection_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/flowscout/internal/classifier"
	"github.com/temirov/flowscout/internal/detection"
	"github.com/temirov/flowscout/internal/history"
	"github.com/temirov/flowscout/internal/vcsconfig"
)

type commandHarness struct {
	builder        *detection.CommandBuilder
	repositoryPath string
	databasePath   string
	standardOutput *bytes.Buffer
	standardError  *bytes.Buffer
	observedLogs   *observer.ObservedLogs
}

func newCommandHarness(testInstance *testing.T) *commandHarness {
	testInstance.Helper()
	observerCore, observedLogs := observer.New(zapcore.DebugLevel)
	logger := zap.New(observerCore)
	harness := &commandHarness{
		repositoryPath: testInstance.TempDir(),
		databasePath:   filepath.Join(testInstance.TempDir(), "history.db"),
		standardOutput: &bytes.Buffer{},
		standardError:  &bytes.Buffer{},
		observedLogs:   observedLogs,
	}
	harness.builder = &detection.CommandBuilder{
		LoggerProvider: func() *zap.Logger { return logger },
		ConfigurationProvider: func() detection.CommandConfiguration {
			configuration := detection.DefaultCommandConfiguration()
			configuration.Source = string(detection.SnapshotSourceFixture)
			configuration.Fixture = fixturePath(githubFlowFixtureNameConstant)
			return configuration
		},
		HistoryConfigurationProvider: func() history.CommandConfiguration {
			return history.CommandConfiguration{DatabasePath: harness.databasePath, Limit: 10}
		},
		Clock: detection.FixedClock{Instant: testReferenceTime},
	}
	return harness
}

func (harness *commandHarness) runDetect(testInstance *testing.T, input string, arguments ...string) error {
	testInstance.Helper()
	command, buildError := harness.builder.Build()
	require.NoError(testInstance, buildError)
	return harness.execute(command, input, arguments)
}

func (harness *commandHarness) runMigration(testInstance *testing.T, arguments ...string) error {
	testInstance.Helper()
	command, buildError := harness.builder.BuildMigration()
	require.NoError(testInstance, buildError)
	return harness.execute(command, "", arguments)
}

func (harness *commandHarness) execute(command *cobra.Command, input string, arguments []string) error {
	command.SetArgs(append([]string{harness.repositoryPath}, arguments...))
	command.SetIn(strings.NewReader(input))
	command.SetOut(harness.standardOutput)
	command.SetErr(harness.standardError)
	return command.Execute()
}

func (harness *commandHarness) recordPath() string {
	return filepath.Join(harness.repositoryPath, vcsconfig.DefaultRecordPath)
}

func (harness *commandHarness) decodeReport(testInstance *testing.T) detection.Report {
	testInstance.Helper()
	var report detection.Report
	require.NoError(testInstance, json.Unmarshal(harness.standardOutput.Bytes(), &report))
	return report
}

func TestDetectCommandDetectsAndSavesRecord(testInstance *testing.T) {
	harness := newCommandHarness(testInstance)

	require.NoError(testInstance, harness.runDetect(testInstance, "", "--format", "json"))

	report := harness.decodeReport(testInstance)
	require.Equal(testInstance, harness.repositoryPath, report.Repository)
	require.Equal(testInstance, classifier.WorkflowTypeGitHubFlow, report.Classification.WorkflowType)
	require.InDelta(testInstance, 1.0, report.Classification.Confidence, 1e-9)
	require.Equal(testInstance, []string{"Found 2 PR merges", "2 feature branches < 7 days", "Found squash-merge patterns", "No develop branch"}, report.Classification.Evidence)
	require.False(testInstance, report.Migration.MigrationDetected)
	require.NotNil(testInstance, report.Selection)
	require.Equal(testInstance, vcsconfig.DetectionMethodAutomatic, report.Selection.Method)

	record, loadError := vcsconfig.Load(harness.recordPath())
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "git", record.VCSConfig.Type)
	require.Equal(testInstance, classifier.WorkflowTypeGitHubFlow, record.VCSConfig.Workflow)
	require.Equal(testInstance, vcsconfig.DetectionMethodAutomatic, record.VCSConfig.DetectionMethod)
	require.True(testInstance, testReferenceTime.Add(vcsconfig.DefaultCacheTTL).Equal(record.VCSConfig.Cache.ValidUntil))
	require.Len(testInstance, harness.observedLogs.FilterMessage("Workflow configuration saved").All(), 1)

	store, openError := history.Open(harness.databasePath)
	require.NoError(testInstance, openError)
	defer store.Close()
	entries, listError := store.List(harness.repositoryPath, 0)
	require.NoError(testInstance, listError)
	require.Len(testInstance, entries, 1)
	require.Equal(testInstance, classifier.WorkflowTypeGitHubFlow, entries[0].Workflow)
	require.True(testInstance, testReferenceTime.Equal(entries[0].DetectedAt))
}

func TestDetectCommandCacheHandling(testInstance *testing.T) {
	testCases := []struct {
		name             string
		validFor         time.Duration
		arguments        []string
		expectCachedText bool
	}{
		{name: "valid_record_reused", validFor: 24 * time.Hour, expectCachedText: true},
		{name: "refresh_ignores_record", validFor: 24 * time.Hour, arguments: []string{"--refresh"}},
		{name: "expired_record_replaced", validFor: -time.Hour},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			harness := newCommandHarness(testInstance)
			detectedAt := testReferenceTime.Add(-7 * 24 * time.Hour)
			cachedRecord := vcsconfig.NewRecord(
				classifier.ClassificationResult{WorkflowType: classifier.WorkflowTypeGitFlow, Confidence: 0.9, Evidence: []string{"Found develop branch"}},
				classifier.MigrationResult{},
				vcsconfig.DetectionMethodUser,
				detectedAt,
				testReferenceTime.Add(testCase.validFor).Sub(detectedAt),
			)
			require.NoError(testInstance, vcsconfig.Save(harness.recordPath(), cachedRecord))

			require.NoError(testInstance, harness.runDetect(testInstance, "", testCase.arguments...))

			storedRecord, loadError := vcsconfig.Load(harness.recordPath())
			require.NoError(testInstance, loadError)
			if testCase.expectCachedText {
				require.True(testInstance, strings.HasPrefix(harness.standardOutput.String(), "Workflow: gitflow (user-selected, confidence 90.0%)\n"))
				require.Equal(testInstance, classifier.WorkflowTypeGitFlow, storedRecord.VCSConfig.Workflow)
				require.Len(testInstance, harness.observedLogs.FilterMessage("Using cached workflow configuration").All(), 1)
				return
			}
			require.Contains(testInstance, harness.standardOutput.String(), "Workflow: github_flow (confidence 100.0%)\n")
			require.Equal(testInstance, classifier.WorkflowTypeGitHubFlow, storedRecord.VCSConfig.Workflow)
		})
	}
}

func TestDetectCommandWorkflowSelection(testInstance *testing.T) {
	testCases := []struct {
		name             string
		input            string
		arguments        []string
		expectedWorkflow classifier.WorkflowType
		expectedMethod   vcsconfig.DetectionMethod
		expectPrompt     bool
	}{
		{
			name:             "forced_workflow",
			arguments:        []string{"--workflow", "trunk_based"},
			expectedWorkflow: classifier.WorkflowTypeTrunkBased,
			expectedMethod:   vcsconfig.DetectionMethodUser,
		},
		{
			name:             "interactive_acceptance",
			input:            "1\n",
			arguments:        []string{"--interactive"},
			expectedWorkflow: classifier.WorkflowTypeGitHubFlow,
			expectedMethod:   vcsconfig.DetectionMethodAutomatic,
			expectPrompt:     true,
		},
		{
			name:             "interactive_manual_selection",
			input:            "2\n4\n",
			arguments:        []string{"--interactive=yes"},
			expectedWorkflow: classifier.WorkflowTypeCustom,
			expectedMethod:   vcsconfig.DetectionMethodUser,
			expectPrompt:     true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			harness := newCommandHarness(testInstance)

			require.NoError(testInstance, harness.runDetect(testInstance, testCase.input, testCase.arguments...))

			record, loadError := vcsconfig.Load(harness.recordPath())
			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testCase.expectedWorkflow, record.VCSConfig.Workflow)
			require.Equal(testInstance, testCase.expectedMethod, record.VCSConfig.DetectionMethod)
			require.InDelta(testInstance, 1.0, record.VCSConfig.ConfidenceScore, 1e-9)
			require.Equal(testInstance, testCase.expectPrompt, strings.Contains(harness.standardError.String(), "Select (1-4): "))
			require.NotContains(testInstance, harness.standardOutput.String(), "Select (1-4): ")
		})
	}
}

func TestDetectCommandSkipsRecordWhenSaveDisabled(testInstance *testing.T) {
	harness := newCommandHarness(testInstance)

	require.NoError(testInstance, harness.runDetect(testInstance, "", "--save=no"))

	_, statError := os.Stat(harness.recordPath())
	require.True(testInstance, os.IsNotExist(statError))
}

func TestDetectCommandHonorsRecordPathAndThreshold(testInstance *testing.T) {
	harness := newCommandHarness(testInstance)

	require.NoError(testInstance, harness.runDetect(testInstance, "", "--record", "config/workflow.yaml", "--threshold", "1.5", "--format", "yaml"))

	record, loadError := vcsconfig.Load(filepath.Join(harness.repositoryPath, "config", "workflow.yaml"))
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, classifier.WorkflowTypeUnclear, record.VCSConfig.Workflow)
	require.Contains(testInstance, harness.standardOutput.String(), "workflow: unclear")
}

func TestDetectCommandRejectsInvalidOptions(testInstance *testing.T) {
	testCases := []struct {
		name          string
		arguments     []string
		expectedError error
	}{
		{name: "unclear_workflow", arguments: []string{"--workflow", "unclear"}, expectedError: detection.ErrInvalidWorkflowSelection},
		{name: "unknown_workflow", arguments: []string{"--workflow", "waterfall"}, expectedError: detection.ErrInvalidWorkflowSelection},
		{name: "unknown_source", arguments: []string{"--source", "svn"}, expectedError: detection.ErrUnsupportedSnapshotSource},
		{name: "unknown_format", arguments: []string{"--format", "xml"}, expectedError: detection.ErrUnsupportedOutputFormat},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			harness := newCommandHarness(testInstance)
			require.ErrorIs(testInstance, harness.runDetect(testInstance, "", testCase.arguments...), testCase.expectedError)
		})
	}
}

func TestMigrationCommandReportsPatterns(testInstance *testing.T) {
	harness := newCommandHarness(testInstance)

	require.NoError(testInstance, harness.runMigration(testInstance, "--fixture", fixturePath(migratingFixtureNameConstant)))

	require.Equal(testInstance,
		"Repository: "+harness.repositoryPath+"\n"+
			"Migration: detected (last 30 days vs. earlier activity up to 90 days ago)\n"+
			"  Recent: main\n"+
			"  Historical: develop, main\n",
		harness.standardOutput.String(),
	)
	_, statError := os.Stat(harness.recordPath())
	require.True(testInstance, os.IsNotExist(statError))
}

func TestMigrationCommandWindowOverride(testInstance *testing.T) {
	harness := newCommandHarness(testInstance)

	require.NoError(testInstance, harness.runMigration(testInstance, "--fixture", fixturePath(migratingFixtureNameConstant), "--window-days", "5", "--format", "json"))

	var view detection.MigrationView
	require.NoError(testInstance, json.Unmarshal(harness.standardOutput.Bytes(), &view))
	require.Equal(testInstance, 5, view.RecentWindowDays)
	require.Equal(testInstance, 15, view.LookbackDays)
	require.False(testInstance, view.Migration.MigrationDetected)
	require.Empty(testInstance, view.Migration.RecentPattern)
	require.Empty(testInstance, view.Migration.HistoricalPattern)
}
