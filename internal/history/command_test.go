package history_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/flowscout/internal/classifier"
	"github.com/temirov/flowscout/internal/history"
	"github.com/temirov/flowscout/internal/utils/flags"
)

func seedHistoryDatabase(testInstance *testing.T, entries ...history.Entry) string {
	testInstance.Helper()
	databasePath := filepath.Join(testInstance.TempDir(), testDatabaseFileNameConstant)
	store, openError := history.Open(databasePath)
	require.NoError(testInstance, openError)
	for _, entry := range entries {
		_, recordError := store.Record(entry)
		require.NoError(testInstance, recordError)
	}
	require.NoError(testInstance, store.Close())
	return databasePath
}

func executeHistoryCommand(testInstance *testing.T, configuration history.CommandConfiguration, arguments ...string) (string, error) {
	testInstance.Helper()
	builder := history.CommandBuilder{
		ConfigurationProvider: func() history.CommandConfiguration { return configuration },
	}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	outputBuffer := &bytes.Buffer{}
	command.SetOut(outputBuffer)
	command.SetErr(&bytes.Buffer{})
	command.SetArgs(arguments)
	executionError := command.Execute()
	return outputBuffer.String(), executionError
}

func historyEntries() []history.Entry {
	return []history.Entry{
		{Repository: testRepositoryConstant, Workflow: classifier.WorkflowTypeGitFlow, Confidence: 0.8, DetectedAt: testBaseTime.Add(-48 * time.Hour)},
		{Repository: testRepositoryConstant, Workflow: classifier.WorkflowTypeTrunkBased, Confidence: 0.7, MigrationDetected: true, DetectedAt: testBaseTime},
		{Repository: otherRepositoryConstant, Workflow: classifier.WorkflowTypeGitHubFlow, Confidence: 1, DetectedAt: testBaseTime.Add(-time.Hour)},
	}
}

func TestHistoryCommandRequiresDatabase(testInstance *testing.T) {
	_, executionError := executeHistoryCommand(testInstance, history.CommandConfiguration{DatabasePath: "   "})
	require.ErrorIs(testInstance, executionError, history.ErrHistoryDisabled)
}

func TestHistoryCommandReportsEmptyHistory(testInstance *testing.T) {
	databasePath := seedHistoryDatabase(testInstance)

	output, executionError := executeHistoryCommand(testInstance, history.CommandConfiguration{DatabasePath: databasePath})
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "No recorded detections.\n", output)
}

func TestHistoryCommandListsRepositoryEntries(testInstance *testing.T) {
	databasePath := seedHistoryDatabase(testInstance, historyEntries()...)

	testCases := []struct {
		name              string
		arguments         []string
		expectedWorkflows []classifier.WorkflowType
	}{
		{
			name:              "all_entries_newest_first",
			arguments:         []string{testRepositoryConstant, "--format", "json"},
			expectedWorkflows: []classifier.WorkflowType{classifier.WorkflowTypeTrunkBased, classifier.WorkflowTypeGitFlow},
		},
		{
			name:              "limited_entries",
			arguments:         []string{testRepositoryConstant, "--format", "json", "--limit", "1"},
			expectedWorkflows: []classifier.WorkflowType{classifier.WorkflowTypeTrunkBased},
		},
		{
			name:              "unknown_repository",
			arguments:         []string{"/workspace/missing", "--format", "JSON"},
			expectedWorkflows: []classifier.WorkflowType{},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			output, executionError := executeHistoryCommand(testInstance, history.CommandConfiguration{DatabasePath: databasePath, Limit: 10}, testCase.arguments...)
			require.NoError(testInstance, executionError)

			var entries []history.Entry
			require.NoError(testInstance, json.Unmarshal([]byte(output), &entries))
			workflows := make([]classifier.WorkflowType, 0, len(entries))
			for _, entry := range entries {
				require.NotEmpty(testInstance, entry.ID)
				workflows = append(workflows, entry.Workflow)
			}
			require.Equal(testInstance, testCase.expectedWorkflows, workflows)
		})
	}
}

func TestHistoryCommandRendersTable(testInstance *testing.T) {
	databasePath := seedHistoryDatabase(testInstance, historyEntries()...)

	output, executionError := executeHistoryCommand(testInstance, history.CommandConfiguration{DatabasePath: databasePath})
	require.NoError(testInstance, executionError)

	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	require.Len(testInstance, lines, 4)
	require.Equal(testInstance, []string{"REPOSITORY", "DETECTED", "AT", "WORKFLOW", "CONFIDENCE", "MIGRATION"}, strings.Fields(lines[0]))
	require.Equal(testInstance, []string{otherRepositoryConstant, "2025-06-15", "08:30:00", "github_flow", "1.00", "false"}, strings.Fields(lines[1]))
	require.Equal(testInstance, []string{testRepositoryConstant, "2025-06-15", "09:30:00", "trunk_based", "0.70", "true"}, strings.Fields(lines[2]))
	require.Equal(testInstance, []string{testRepositoryConstant, "2025-06-13", "09:30:00", "gitflow", "0.80", "false"}, strings.Fields(lines[3]))
}

func TestHistoryCommandRejectsUnknownFormat(testInstance *testing.T) {
	databasePath := seedHistoryDatabase(testInstance)

	_, executionError := executeHistoryCommand(testInstance, history.CommandConfiguration{DatabasePath: databasePath}, "--format", "yaml")
	require.ErrorIs(testInstance, executionError, flags.ErrUnsupportedChoice)
}

func TestCommandConfigurationSanitize(testInstance *testing.T) {
	testCases := []struct {
		name            string
		configuration   history.CommandConfiguration
		expected        history.CommandConfiguration
		expectedEnabled bool
	}{
		{
			name:     "defaults_disabled",
			expected: history.DefaultCommandConfiguration(),
		},
		{
			name:            "trimmed_path",
			configuration:   history.CommandConfiguration{DatabasePath: "  ~/state/history.db  ", Limit: 5},
			expected:        history.CommandConfiguration{DatabasePath: "~/state/history.db", Limit: 5},
			expectedEnabled: true,
		},
		{
			name:            "negative_limit",
			configuration:   history.CommandConfiguration{DatabasePath: "history.db", Limit: -3},
			expected:        history.CommandConfiguration{DatabasePath: "history.db", Limit: history.DefaultCommandConfiguration().Limit},
			expectedEnabled: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			sanitized := testCase.configuration.Sanitize()
			require.Equal(testInstance, testCase.expected, sanitized)
			require.Equal(testInstance, testCase.expectedEnabled, sanitized.Enabled())
		})
	}
}
