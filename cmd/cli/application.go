package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/flowscout/internal/detection"
	"github.com/temirov/flowscout/internal/history"
	"github.com/temirov/flowscout/internal/utils"
	"github.com/temirov/flowscout/internal/utils/flags"
)

const (
	applicationNameConstant                 = "flowscout"
	applicationShortDescriptionConstant     = "Infer the branching workflow of a git repository"
	applicationLongDescriptionConstant      = "flowscout reads repository history, decides whether the team follows GitFlow, GitHub Flow, or trunk-based development, and records the decision for downstream tooling."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	commonConfigurationKeyConstant          = "common"
	commonLogLevelConfigKeyConstant         = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant        = commonConfigurationKeyConstant + ".log_format"
	toolsConfigurationKeyConstant           = "tools"
	detectConfigurationKeyConstant          = toolsConfigurationKeyConstant + ".detect"
	historyConfigurationKeyConstant         = toolsConfigurationKeyConstant + ".history"
	configurationKeySeparatorConstant       = "."
	environmentPrefixConstant               = "FLOWSCOUT"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	defaultConfigurationSearchPathConstant  = "."
	userConfigurationDirectoryNameConstant  = "flowscout"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	commandBuildErrorTemplateConstant       = "unable to build %s command: %w"
	rootCommandDebugMessageConstant         = "flowscout invoked without a subcommand"
	logFieldArgumentsConstant               = "arguments"
	detectCommandLabelConstant              = "detect"
	migrationCommandLabelConstant           = "migration"
	historyCommandLabelConstant             = "history"
)

// applicationVersion is replaced at link time.
var applicationVersion = "dev"

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common ApplicationCommonConfiguration `mapstructure:"common"`
	Tools  ApplicationToolsConfiguration  `mapstructure:"tools"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationToolsConfiguration holds configuration for the subcommands.
type ApplicationToolsConfiguration struct {
	Detect  detection.CommandConfiguration `mapstructure:"detect"`
	History history.CommandConfiguration   `mapstructure:"history"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	commandContextAccessor utils.CommandContextAccessor
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() (*Application, error) {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		configurationSearchPaths(),
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		Version:       applicationVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	detectionBuilder := detection.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return application.logger
		},
		ConfigurationProvider: func() detection.CommandConfiguration {
			return application.configuration.Tools.Detect
		},
		HistoryConfigurationProvider: func() history.CommandConfiguration {
			return application.configuration.Tools.History
		},
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
	}
	detectCommand, detectBuildError := detectionBuilder.Build()
	if detectBuildError != nil {
		return nil, fmt.Errorf(commandBuildErrorTemplateConstant, detectCommandLabelConstant, detectBuildError)
	}
	cobraCommand.AddCommand(detectCommand)

	migrationCommand, migrationBuildError := detectionBuilder.BuildMigration()
	if migrationBuildError != nil {
		return nil, fmt.Errorf(commandBuildErrorTemplateConstant, migrationCommandLabelConstant, migrationBuildError)
	}
	cobraCommand.AddCommand(migrationCommand)

	historyBuilder := history.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return application.logger
		},
		ConfigurationProvider: func() history.CommandConfiguration {
			return application.configuration.Tools.History
		},
	}
	historyCommand, historyBuildError := historyBuilder.Build()
	if historyBuildError != nil {
		return nil, fmt.Errorf(commandBuildErrorTemplateConstant, historyCommandLabelConstant, historyBuildError)
	}
	cobraCommand.AddCommand(historyCommand)

	application.rootCommand = cobraCommand

	return application, nil
}

// Execute runs the command hierarchy against the process arguments and flushes the logger.
func (application *Application) Execute() error {
	return application.ExecuteArguments(os.Args[1:])
}

// ExecuteArguments runs the command hierarchy against the provided arguments.
// Toggle flags written as "--flag value" are joined before Cobra parses them.
func (application *Application) ExecuteArguments(arguments []string) error {
	application.rootCommand.SetArgs(flags.NormalizeToggleArguments(arguments))
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	application, applicationError := NewApplication()
	if applicationError != nil {
		return applicationError
	}
	return application.Execute()
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(
		application.configurationFilePath,
		defaultConfigurationValues(),
		&application.configuration,
	)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			command.Context(),
			application.configurationMetadata.ConfigFileUsed,
		)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

func (application *Application) humanReadableLoggingEnabled() bool {
	logFormatValue := strings.TrimSpace(application.configuration.Common.LogFormat)
	return strings.EqualFold(logFormatValue, string(utils.LogFormatConsole))
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	application.logger.Debug(rootCommandDebugMessageConstant, zap.Strings(logFieldArgumentsConstant, arguments))
	return command.Help()
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	case errors.Is(syncError, syscall.ENOTTY):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	if rootCommand := command.Root(); rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet != nil && flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}

func configurationSearchPaths() []string {
	searchPaths := []string{defaultConfigurationSearchPathConstant}
	if userConfigurationDirectory, directoryError := os.UserConfigDir(); directoryError == nil {
		searchPaths = append(searchPaths, filepath.Join(userConfigurationDirectory, userConfigurationDirectoryNameConstant))
	}
	return searchPaths
}

// defaultConfigurationValues registers every key so environment variables can override it.
func defaultConfigurationValues() map[string]any {
	detectDefaults := detection.DefaultCommandConfiguration()
	historyDefaults := history.DefaultCommandConfiguration()

	return map[string]any{
		commonLogLevelConfigKeyConstant:    string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant:   string(utils.LogFormatStructured),
		detectKey("source"):                detectDefaults.Source,
		detectKey("fixture"):               detectDefaults.Fixture,
		detectKey("confidence_threshold"):  detectDefaults.ConfidenceThreshold,
		detectKey("recent_window_days"):    detectDefaults.RecentWindowDays,
		detectKey("history_days"):          detectDefaults.HistoryDays,
		detectKey("merge_inference_limit"): detectDefaults.MergeInferenceLimit,
		detectKey("output_format"):         detectDefaults.OutputFormat,
		detectKey("configuration_path"):    detectDefaults.ConfigurationPath,
		detectKey("cache_ttl"):             detectDefaults.CacheTTL.String(),
		detectKey("interactive"):           detectDefaults.Interactive,
		detectKey("save"):                  detectDefaults.Save,
		historyKey("database_path"):        historyDefaults.DatabasePath,
		historyKey("limit"):                historyDefaults.Limit,
	}
}

func detectKey(name string) string {
	return detectConfigurationKeyConstant + configurationKeySeparatorConstant + name
}

func historyKey(name string) string {
	return historyConfigurationKeyConstant + configurationKeySeparatorConstant + name
}
