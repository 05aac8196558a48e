package detection

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/flowscout/internal/classifier"
	"github.com/temirov/flowscout/internal/history"
	"github.com/temirov/flowscout/internal/snapshot/gitcli"
	"github.com/temirov/flowscout/internal/utils"
	"github.com/temirov/flowscout/internal/utils/flags"
	pathutils "github.com/temirov/flowscout/internal/utils/path"
	"github.com/temirov/flowscout/internal/vcsconfig"
)

const (
	detectCommandUseConstant                 = "detect [repository]"
	detectCommandShortDescriptionConstant    = "Detect the repository branching workflow"
	detectCommandLongDescriptionConstant     = "detect infers whether a repository follows GitFlow, GitHub Flow, or trunk-based development, reports the evidence behind the decision, and saves the result as a workflow configuration record."
	migrationCommandUseConstant              = "migration [repository]"
	migrationCommandShortDescriptionConstant = "Check whether the branching workflow changed recently"
	migrationCommandLongDescriptionConstant  = "migration compares the branches receiving commits in the recent window with those receiving commits in the preceding history and reports a change in pattern."
	defaultRepositoryPathConstant            = "."
	flagSourceNameConstant                   = "source"
	flagSourceDescriptionConstant            = "History source"
	flagFixtureNameConstant                  = "fixture"
	flagFixtureDescriptionConstant           = "Fixture file used by the fixture source"
	flagThresholdNameConstant                = "threshold"
	flagThresholdDescriptionConstant         = "Minimum confidence reported as a concrete workflow"
	flagWindowDaysNameConstant               = "window-days"
	flagWindowDaysDescriptionConstant        = "Length of the recent window used for migration detection"
	flagSinceDaysNameConstant                = "since-days"
	flagSinceDaysDescriptionConstant         = "Only read commits from the trailing number of days (0 reads everything)"
	flagFormatNameConstant                   = "format"
	flagFormatDescriptionConstant            = "Output format"
	flagSaveNameConstant                     = "save"
	flagSaveDescriptionConstant              = "Write the workflow configuration record"
	flagRecordNameConstant                   = "record"
	flagRecordDescriptionConstant            = "Configuration record path, relative to the repository unless absolute (.json, .yaml, or .yml)"
	flagRefreshNameConstant                  = "refresh"
	flagRefreshDescriptionConstant           = "Ignore a still-valid configuration record and detect again"
	flagInteractiveNameConstant              = "interactive"
	flagInteractiveDescriptionConstant       = "Confirm the detected workflow before saving"
	flagWorkflowNameConstant                 = "workflow"
	flagWorkflowDescriptionConstant          = "Record this workflow instead of the detected one (github_flow, gitflow, trunk_based, custom)"
	invalidWorkflowMessageConstant           = "unsupported workflow selection"
	invalidWorkflowTemplateConstant          = "%w %q"
	repositoryResolveErrorTemplateConstant   = "unable to resolve repository path %s: %w"
	recordSaveErrorTemplateConstant          = "unable to save workflow configuration: %w"
	logMessageCachedRecordUsedConstant       = "Using cached workflow configuration"
	logMessageCachedRecordUnreadableConstant = "Cached workflow configuration unreadable"
	logMessageCachedRecordExpiredConstant    = "Cached workflow configuration expired"
	logMessageRecordSavedConstant            = "Workflow configuration saved"
	logMessageHistoryRecordFailedConstant    = "Unable to record detection history"
	logFieldRecordPathConstant               = "record_path"
	logFieldValidUntilConstant               = "valid_until"
	logFieldDetectionMethodConstant          = "detection_method"
	logMessageOptionsResolvedConstant        = "Detection options resolved"
	logFieldSourceConstant                   = "source"
	logFieldConfigurationFileConstant        = "config_file"
)

// ErrInvalidWorkflowSelection indicates a --workflow value that cannot be recorded.
var ErrInvalidWorkflowSelection = errors.New(invalidWorkflowMessageConstant)

var (
	sourceChoices = []string{string(SnapshotSourceGit), string(SnapshotSourceGoGit), string(SnapshotSourceFixture)}
	formatChoices = []string{string(OutputFormatText), string(OutputFormatJSON), string(OutputFormatYAML)}
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the detect and migration commands.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        func() CommandConfiguration
	HistoryConfigurationProvider func() history.CommandConfiguration
	HumanReadableLoggingProvider func() bool
	GitExecutor                  gitcli.GitExecutor
	Clock                        Clock
	HomeExpander                 *pathutils.HomeExpander
}

type commandOptions struct {
	repositoryPath string
	configuration  CommandConfiguration
	source         SnapshotSource
	outputFormat   OutputFormat
	recordPath     string
	refresh        bool
	forcedWorkflow classifier.WorkflowType
}

// Build constructs the detect command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           detectCommandUseConstant,
		Short:         detectCommandShortDescriptionConstant,
		Long:          detectCommandLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE:          builder.runDetect,
	}

	builder.registerSharedFlags(command)
	command.Flags().Float64(flagThresholdNameConstant, classifier.DefaultConfidenceThreshold, flagThresholdDescriptionConstant)
	command.Flags().String(flagRecordNameConstant, "", flagRecordDescriptionConstant)
	command.Flags().String(flagWorkflowNameConstant, "", flagWorkflowDescriptionConstant)
	var saveRecord, refreshRecord, interactivePrompt bool
	flags.AddToggleFlag(command.Flags(), &saveRecord, flagSaveNameConstant, "", true, flagSaveDescriptionConstant)
	flags.AddToggleFlag(command.Flags(), &refreshRecord, flagRefreshNameConstant, "", false, flagRefreshDescriptionConstant)
	flags.AddToggleFlag(command.Flags(), &interactivePrompt, flagInteractiveNameConstant, "i", false, flagInteractiveDescriptionConstant)

	return command, nil
}

// BuildMigration constructs the migration command.
func (builder *CommandBuilder) BuildMigration() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           migrationCommandUseConstant,
		Short:         migrationCommandShortDescriptionConstant,
		Long:          migrationCommandLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE:          builder.runMigration,
	}

	builder.registerSharedFlags(command)

	return command, nil
}

func (builder *CommandBuilder) registerSharedFlags(command *cobra.Command) {
	defaults := DefaultCommandConfiguration()
	command.Flags().String(flagSourceNameConstant, defaults.Source, flags.FormatChoiceUsage(defaults.Source, sourceChoices, flagSourceDescriptionConstant))
	command.Flags().String(flagFixtureNameConstant, "", flagFixtureDescriptionConstant)
	command.Flags().Int(flagWindowDaysNameConstant, defaults.RecentWindowDays, flagWindowDaysDescriptionConstant)
	command.Flags().Int(flagSinceDaysNameConstant, defaults.HistoryDays, flagSinceDaysDescriptionConstant)
	command.Flags().String(flagFormatNameConstant, defaults.OutputFormat, flags.FormatChoiceUsage(defaults.OutputFormat, formatChoices, flagFormatDescriptionConstant))
}

func (builder *CommandBuilder) runDetect(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command, arguments)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger()
	builder.logOptions(command, logger, options)
	now := builder.resolveClock().Now()

	if !options.refresh && len(options.forcedWorkflow) == 0 {
		if cachedRecord, cached := builder.loadCachedRecord(logger, options.recordPath, now); cached {
			return RenderRecord(command.OutOrStdout(), cachedRecord, options.outputFormat)
		}
	}

	report, detectionError := builder.detect(command.Context(), logger, options, now)
	if detectionError != nil {
		return detectionError
	}

	decision, decisionError := builder.decide(command, options, report)
	if decisionError != nil {
		return decisionError
	}
	report.Selection = &decision

	if options.configuration.Save {
		selectedResult := report.Classification
		selectedResult.WorkflowType = decision.Workflow
		record := vcsconfig.NewRecord(selectedResult, report.Migration, decision.Method, now, options.configuration.CacheTTL)
		if saveError := vcsconfig.Save(options.recordPath, record); saveError != nil {
			return fmt.Errorf(recordSaveErrorTemplateConstant, saveError)
		}
		logger.Info(
			logMessageRecordSavedConstant,
			zap.String(logFieldRecordPathConstant, options.recordPath),
			zap.String(logFieldWorkflowConstant, string(decision.Workflow)),
			zap.String(logFieldDetectionMethodConstant, string(decision.Method)),
		)
	}

	builder.recordHistory(logger, report, decision, now)

	return RenderReport(command.OutOrStdout(), report, options.outputFormat)
}

func (builder *CommandBuilder) runMigration(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command, arguments)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger()
	builder.logOptions(command, logger, options)
	report, detectionError := builder.detect(command.Context(), logger, options, builder.resolveClock().Now())
	if detectionError != nil {
		return detectionError
	}
	return RenderMigration(command.OutOrStdout(), report, options.outputFormat)
}

func (builder *CommandBuilder) detect(executionContext context.Context, logger *zap.Logger, options commandOptions, now time.Time) (Report, error) {
	factory := ProviderFactory{
		GitExecutor:          builder.GitExecutor,
		Logger:               logger,
		HumanReadableLogging: builder.humanReadableLogging(),
	}
	provider, providerError := factory.Build(ProviderSettings{
		Source:              options.source,
		RepositoryPath:      options.repositoryPath,
		FixturePath:         options.configuration.Fixture,
		HistoryDays:         options.configuration.HistoryDays,
		MergeInferenceLimit: options.configuration.MergeInferenceLimit,
		ReferenceTime:       now,
	})
	if providerError != nil {
		return Report{}, providerError
	}

	service, serviceError := NewService(ServiceDependencies{
		Provider: provider,
		Clock:    FixedClock{Instant: now},
		Logger:   logger,
	})
	if serviceError != nil {
		return Report{}, serviceError
	}

	return service.Run(executionContext, Options{
		Repository:          options.repositoryPath,
		ConfidenceThreshold: options.configuration.ConfidenceThreshold,
		RecentWindowDays:    options.configuration.RecentWindowDays,
	})
}

func (builder *CommandBuilder) logOptions(command *cobra.Command, logger *zap.Logger, options commandOptions) {
	configurationFilePath, _ := utils.NewCommandContextAccessor().ConfigurationFilePath(command.Context())
	logger.Debug(
		logMessageOptionsResolvedConstant,
		zap.String(logFieldRepositoryConstant, options.repositoryPath),
		zap.String(logFieldSourceConstant, string(options.source)),
		zap.String(logFieldRecordPathConstant, options.recordPath),
		zap.String(logFieldConfigurationFileConstant, configurationFilePath),
	)
}

func (builder *CommandBuilder) decide(command *cobra.Command, options commandOptions, report Report) (Decision, error) {
	if len(options.forcedWorkflow) > 0 {
		return ManualDecision(options.forcedWorkflow), nil
	}
	if !options.configuration.Interactive {
		return AutomaticDecision(report), nil
	}
	prompter := NewIOPrompter(command.InOrStdin(), command.ErrOrStderr())
	return ConfirmDecision(prompter, report)
}

func (builder *CommandBuilder) loadCachedRecord(logger *zap.Logger, recordPath string, now time.Time) (vcsconfig.Record, bool) {
	record, loadError := vcsconfig.Load(recordPath)
	if loadError != nil {
		if !errors.Is(loadError, fs.ErrNotExist) {
			logger.Warn(logMessageCachedRecordUnreadableConstant, zap.String(logFieldRecordPathConstant, recordPath), zap.Error(loadError))
		}
		return vcsconfig.Record{}, false
	}
	if !record.IsValid(now) {
		logger.Debug(
			logMessageCachedRecordExpiredConstant,
			zap.String(logFieldRecordPathConstant, recordPath),
			zap.Time(logFieldValidUntilConstant, record.VCSConfig.Cache.ValidUntil),
		)
		return vcsconfig.Record{}, false
	}
	logger.Info(
		logMessageCachedRecordUsedConstant,
		zap.String(logFieldRecordPathConstant, recordPath),
		zap.Time(logFieldValidUntilConstant, record.VCSConfig.Cache.ValidUntil),
	)
	return record, true
}

func (builder *CommandBuilder) recordHistory(logger *zap.Logger, report Report, decision Decision, now time.Time) {
	configuration := builder.resolveHistoryConfiguration()
	if !configuration.Enabled() {
		return
	}

	store, openError := history.Open(builder.resolveHomeExpander().Expand(configuration.DatabasePath))
	if openError != nil {
		logger.Warn(logMessageHistoryRecordFailedConstant, zap.Error(openError))
		return
	}
	defer store.Close()

	_, recordError := store.Record(history.Entry{
		Repository:        report.Repository,
		Workflow:          decision.Workflow,
		Confidence:        report.Classification.Confidence,
		MigrationDetected: report.Migration.MigrationDetected,
		DetectedAt:        now,
	})
	if recordError != nil {
		logger.Warn(logMessageHistoryRecordFailedConstant, zap.Error(recordError))
	}
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command, arguments []string) (commandOptions, error) {
	configuration := builder.resolveConfiguration()
	commandFlags := command.Flags()

	if commandFlags.Changed(flagSourceNameConstant) {
		configuration.Source, _ = commandFlags.GetString(flagSourceNameConstant)
	}
	if commandFlags.Changed(flagFixtureNameConstant) {
		configuration.Fixture, _ = commandFlags.GetString(flagFixtureNameConstant)
	}
	if commandFlags.Changed(flagWindowDaysNameConstant) {
		configuration.RecentWindowDays, _ = commandFlags.GetInt(flagWindowDaysNameConstant)
	}
	if commandFlags.Changed(flagSinceDaysNameConstant) {
		configuration.HistoryDays, _ = commandFlags.GetInt(flagSinceDaysNameConstant)
	}
	if commandFlags.Changed(flagFormatNameConstant) {
		configuration.OutputFormat, _ = commandFlags.GetString(flagFormatNameConstant)
	}
	if commandFlags.Changed(flagThresholdNameConstant) {
		configuration.ConfidenceThreshold, _ = commandFlags.GetFloat64(flagThresholdNameConstant)
	}
	if commandFlags.Changed(flagRecordNameConstant) {
		configuration.ConfigurationPath, _ = commandFlags.GetString(flagRecordNameConstant)
	}
	if commandFlags.Changed(flagSaveNameConstant) {
		configuration.Save, _ = commandFlags.GetBool(flagSaveNameConstant)
	}
	if commandFlags.Changed(flagInteractiveNameConstant) {
		configuration.Interactive, _ = commandFlags.GetBool(flagInteractiveNameConstant)
	}
	configuration = configuration.Sanitize()

	source, sourceError := ParseSnapshotSource(configuration.Source)
	if sourceError != nil {
		return commandOptions{}, sourceError
	}
	outputFormat, formatError := ParseOutputFormat(configuration.OutputFormat)
	if formatError != nil {
		return commandOptions{}, formatError
	}

	expander := builder.resolveHomeExpander()
	repositoryArgument := defaultRepositoryPathConstant
	if len(arguments) > 0 && len(strings.TrimSpace(arguments[0])) > 0 {
		repositoryArgument = strings.TrimSpace(arguments[0])
	}
	repositoryPath, absoluteError := filepath.Abs(expander.Expand(repositoryArgument))
	if absoluteError != nil {
		return commandOptions{}, fmt.Errorf(repositoryResolveErrorTemplateConstant, repositoryArgument, absoluteError)
	}
	configuration.Fixture = expander.Expand(configuration.Fixture)

	options := commandOptions{
		repositoryPath: repositoryPath,
		configuration:  configuration,
		source:         source,
		outputFormat:   outputFormat,
		recordPath:     vcsconfig.ResolvePath(repositoryPath, expander.Expand(configuration.ConfigurationPath)),
	}

	if commandFlags.Lookup(flagRefreshNameConstant) != nil {
		options.refresh, _ = commandFlags.GetBool(flagRefreshNameConstant)
	}
	if commandFlags.Lookup(flagWorkflowNameConstant) != nil {
		workflowValue, _ := commandFlags.GetString(flagWorkflowNameConstant)
		forcedWorkflow, workflowError := parseWorkflowSelection(workflowValue)
		if workflowError != nil {
			return commandOptions{}, workflowError
		}
		options.forcedWorkflow = forcedWorkflow
	}

	return options, nil
}

func parseWorkflowSelection(rawWorkflow string) (classifier.WorkflowType, error) {
	trimmedWorkflow := strings.ToLower(strings.TrimSpace(rawWorkflow))
	if len(trimmedWorkflow) == 0 {
		return "", nil
	}
	workflow, known := classifier.ParseWorkflowType(trimmedWorkflow)
	if !known || workflow == classifier.WorkflowTypeUnclear {
		return "", fmt.Errorf(invalidWorkflowTemplateConstant, ErrInvalidWorkflowSelection, rawWorkflow)
	}
	return workflow, nil
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolveHistoryConfiguration() history.CommandConfiguration {
	if builder.HistoryConfigurationProvider == nil {
		return history.DefaultCommandConfiguration()
	}
	return builder.HistoryConfigurationProvider().Sanitize()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveClock() Clock {
	if builder.Clock == nil {
		return SystemClock{}
	}
	return builder.Clock
}

func (builder *CommandBuilder) resolveHomeExpander() *pathutils.HomeExpander {
	if builder.HomeExpander == nil {
		builder.HomeExpander = pathutils.NewHomeExpander()
	}
	return builder.HomeExpander
}

func (builder *CommandBuilder) humanReadableLogging() bool {
	if builder.HumanReadableLoggingProvider == nil {
		return false
	}
	return builder.HumanReadableLoggingProvider()
}
