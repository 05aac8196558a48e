package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/temirov/flowscout/internal/classifier"
	"github.com/temirov/flowscout/internal/detection"
	"github.com/temirov/flowscout/internal/history"
	"github.com/temirov/flowscout/internal/utils"
	"github.com/temirov/flowscout/internal/vcsconfig"
)

const (
	testConfigurationFileNameConstant = "config.yaml"
	testConfigurationTemplateConstant = "common:\n  log_level: debug\n  log_format: console\ntools:\n  detect:\n    source: fixture\n    fixture: %s\n  history:\n    database_path: %s\n"
)

type applicationHarness struct {
	application       *Application
	standardOutput    *bytes.Buffer
	logOutput         *bytes.Buffer
	repositoryPath    string
	configurationPath string
	databasePath      string
}

func newApplicationHarness(testInstance *testing.T) *applicationHarness {
	testInstance.Helper()
	isolatedHome := testInstance.TempDir()
	testInstance.Setenv("HOME", isolatedHome)
	testInstance.Setenv("XDG_CONFIG_HOME", filepath.Join(isolatedHome, ".config"))

	fixturePath, fixtureError := filepath.Abs(filepath.Join("..", "..", "internal", "detection", "testdata", "github_flow.yaml"))
	require.NoError(testInstance, fixtureError)

	workingDirectory := testInstance.TempDir()
	harness := &applicationHarness{
		standardOutput:    &bytes.Buffer{},
		logOutput:         &bytes.Buffer{},
		repositoryPath:    filepath.Join(workingDirectory, "repository"),
		configurationPath: filepath.Join(workingDirectory, testConfigurationFileNameConstant),
		databasePath:      filepath.Join(workingDirectory, "history.db"),
	}
	require.NoError(testInstance, os.MkdirAll(harness.repositoryPath, 0o755))
	configurationContent := strings.Replace(testConfigurationTemplateConstant, "%s", fixturePath, 1)
	configurationContent = strings.Replace(configurationContent, "%s", harness.databasePath, 1)
	require.NoError(testInstance, os.WriteFile(harness.configurationPath, []byte(configurationContent), 0o600))

	application, applicationError := NewApplication()
	require.NoError(testInstance, applicationError)
	application.loggerFactory = utils.NewLoggerFactoryWithOutput(harness.logOutput)
	application.rootCommand.SetOut(harness.standardOutput)
	application.rootCommand.SetErr(&bytes.Buffer{})
	harness.application = application
	return harness
}

func (harness *applicationHarness) execute(arguments ...string) error {
	return harness.application.ExecuteArguments(append(arguments, "--config", harness.configurationPath))
}

func TestApplicationRegistersCommands(testInstance *testing.T) {
	application, applicationError := NewApplication()
	require.NoError(testInstance, applicationError)

	commandNames := make([]string, 0)
	for _, command := range application.rootCommand.Commands() {
		commandNames = append(commandNames, command.Name())
	}
	require.Subset(testInstance, commandNames, []string{"detect", "migration", "history"})
	for _, flagName := range []string{configFileFlagNameConstant, logLevelFlagNameConstant, logFormatFlagNameConstant} {
		require.NotNil(testInstance, application.rootCommand.PersistentFlags().Lookup(flagName))
	}
}

func TestEmbeddedConfigurationMatchesDefaults(testInstance *testing.T) {
	embeddedContent, configurationType := EmbeddedDefaultConfiguration()
	require.Equal(testInstance, configurationTypeConstant, configurationType)

	var embedded struct {
		Common struct {
			LogLevel  string `yaml:"log_level"`
			LogFormat string `yaml:"log_format"`
		} `yaml:"common"`
		Tools struct {
			Detect  map[string]any `yaml:"detect"`
			History map[string]any `yaml:"history"`
		} `yaml:"tools"`
	}
	require.NoError(testInstance, yaml.Unmarshal(embeddedContent, &embedded))

	defaults := defaultConfigurationValues()
	require.Equal(testInstance, defaults[commonLogLevelConfigKeyConstant], embedded.Common.LogLevel)
	require.Equal(testInstance, defaults[commonLogFormatConfigKeyConstant], embedded.Common.LogFormat)
	require.Len(testInstance, embedded.Tools.Detect, 11)
	require.Len(testInstance, embedded.Tools.History, 2)
	for key := range embedded.Tools.Detect {
		require.Contains(testInstance, defaults, detectKey(key))
	}
	for key := range embedded.Tools.History {
		require.Contains(testInstance, defaults, historyKey(key))
	}

	loader := utils.NewConfigurationLoader(configurationNameConstant, configurationTypeConstant, "TESTFLOWSCOUTDEFAULTS", []string{testInstance.TempDir()})
	loader.SetEmbeddedConfiguration(embeddedContent, configurationType)
	var loaded ApplicationConfiguration
	_, loadError := loader.LoadConfiguration("", nil, &loaded)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, detection.DefaultCommandConfiguration(), loaded.Tools.Detect)
	require.Equal(testInstance, history.DefaultCommandConfiguration(), loaded.Tools.History)
}

func TestApplicationDetectUsesLayeredConfiguration(testInstance *testing.T) {
	harness := newApplicationHarness(testInstance)

	require.NoError(testInstance, harness.execute("detect", harness.repositoryPath, "--format", "json"))

	var report detection.Report
	require.NoError(testInstance, json.Unmarshal(harness.standardOutput.Bytes(), &report))
	require.Equal(testInstance, classifier.WorkflowTypeGitHubFlow, report.Classification.WorkflowType)
	require.Equal(testInstance, harness.repositoryPath, report.Repository)

	record, loadError := vcsconfig.Load(filepath.Join(harness.repositoryPath, vcsconfig.DefaultRecordPath))
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, classifier.WorkflowTypeGitHubFlow, record.VCSConfig.Workflow)

	logText := harness.logOutput.String()
	require.Contains(testInstance, logText, "DEBUG")
	require.Contains(testInstance, logText, "Workflow detection completed")

	harness.standardOutput.Reset()
	require.NoError(testInstance, harness.execute("history", harness.repositoryPath))
	require.Contains(testInstance, harness.standardOutput.String(), harness.repositoryPath)
	require.Contains(testInstance, harness.standardOutput.String(), "github_flow")
}

func TestApplicationEnvironmentAndToggleOverrides(testInstance *testing.T) {
	harness := newApplicationHarness(testInstance)
	testInstance.Setenv("FLOWSCOUT_TOOLS_DETECT_OUTPUT_FORMAT", "yaml")
	testInstance.Setenv("FLOWSCOUT_COMMON_LOG_FORMAT", "structured")

	require.NoError(testInstance, harness.execute("detect", harness.repositoryPath, "--save", "no"))

	var report detection.Report
	require.NoError(testInstance, yaml.Unmarshal(harness.standardOutput.Bytes(), &report))
	require.Equal(testInstance, classifier.WorkflowTypeGitHubFlow, report.Classification.WorkflowType)

	_, statError := os.Stat(filepath.Join(harness.repositoryPath, vcsconfig.DefaultRecordPath))
	require.True(testInstance, os.IsNotExist(statError))
	require.True(testInstance, strings.HasPrefix(harness.logOutput.String(), "{"))
}

func TestApplicationRejectsInvalidLogLevel(testInstance *testing.T) {
	harness := newApplicationHarness(testInstance)

	executionError := harness.execute("migration", harness.repositoryPath, "--log-level", "verbose")
	require.ErrorContains(testInstance, executionError, "unable to create logger")
	require.ErrorContains(testInstance, executionError, "unsupported log level: verbose")
}

func TestApplicationRootCommandPrintsHelp(testInstance *testing.T) {
	harness := newApplicationHarness(testInstance)

	require.NoError(testInstance, harness.execute())
	require.Contains(testInstance, harness.standardOutput.String(), "detect")
	require.Contains(testInstance, harness.standardOutput.String(), "migration")
}
