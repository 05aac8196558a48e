package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/flowscout/internal/utils/flags"
	pathutils "github.com/temirov/flowscout/internal/utils/path"
)

const (
	commandUseConstant                     = "history [repository]"
	commandShortDescriptionConstant        = "List recorded workflow detections"
	commandLongDescriptionConstant         = "history lists recorded workflow detections, newest first, for one repository or for every repository in the history database."
	flagLimitNameConstant                  = "limit"
	flagLimitDescriptionConstant           = "Maximum number of entries per repository"
	flagFormatNameConstant                 = "format"
	flagFormatDescriptionConstant          = "Output format"
	formatTextConstant                     = "text"
	formatJSONConstant                     = "json"
	historyDisabledMessageConstant         = "run history is disabled; set tools.history.database_path"
	repositoryResolveErrorTemplateConstant = "unable to resolve repository path %s: %w"
	tableHeaderConstant                    = "REPOSITORY\tDETECTED AT\tWORKFLOW\tCONFIDENCE\tMIGRATION\n"
	tableRowTemplateConstant               = "%s\t%s\t%s\t%.2f\t%t\n"
	tableTimestampLayoutConstant           = "2006-01-02 15:04:05"
	emptyHistoryMessageConstant            = "No recorded detections.\n"
	jsonIndentConstant                     = "  "
	logMessageHistoryListedConstant        = "Run history listed"
	logFieldDatabasePathConstant           = "database_path"
	logFieldEntryCountConstant             = "entries"
)

// ErrHistoryDisabled indicates the history command ran without a configured database.
var ErrHistoryDisabled = errors.New(historyDisabledMessageConstant)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the history command.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	HomeExpander          *pathutils.HomeExpander
}

// Build constructs the history command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE:          builder.run,
	}

	command.Flags().Int(flagLimitNameConstant, 0, flagLimitDescriptionConstant)
	command.Flags().String(flagFormatNameConstant, formatTextConstant, flags.FormatChoiceUsage(formatTextConstant, []string{formatTextConstant, formatJSONConstant}, flagFormatDescriptionConstant))

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	configuration := builder.resolveConfiguration()
	if !configuration.Enabled() {
		return ErrHistoryDisabled
	}

	if command.Flags().Changed(flagLimitNameConstant) {
		limitValue, _ := command.Flags().GetInt(flagLimitNameConstant)
		configuration.Limit = limitValue
		configuration = configuration.Sanitize()
	}

	formatValue, _ := command.Flags().GetString(flagFormatNameConstant)
	outputFormat, formatError := flags.ResolveChoice(formatValue, formatTextConstant, []string{formatTextConstant, formatJSONConstant})
	if formatError != nil {
		return formatError
	}

	databasePath := builder.resolveHomeExpander().Expand(configuration.DatabasePath)
	store, openError := Open(databasePath)
	if openError != nil {
		return openError
	}
	defer store.Close()

	repositories, repositoriesError := builder.selectRepositories(store, arguments)
	if repositoriesError != nil {
		return repositoriesError
	}

	entries := make([]Entry, 0)
	for _, repository := range repositories {
		repositoryEntries, listError := store.List(repository, configuration.Limit)
		if listError != nil {
			return listError
		}
		entries = append(entries, repositoryEntries...)
	}

	builder.resolveLogger().Debug(
		logMessageHistoryListedConstant,
		zap.String(logFieldDatabasePathConstant, databasePath),
		zap.Int(logFieldEntryCountConstant, len(entries)),
	)

	if outputFormat == formatJSONConstant {
		encoder := json.NewEncoder(command.OutOrStdout())
		encoder.SetIndent("", jsonIndentConstant)
		return encoder.Encode(entries)
	}
	return writeEntriesTable(command.OutOrStdout(), entries)
}

func (builder *CommandBuilder) selectRepositories(store *Store, arguments []string) ([]string, error) {
	if len(arguments) == 0 {
		return store.Repositories()
	}
	repositoryPath := builder.resolveHomeExpander().Expand(strings.TrimSpace(arguments[0]))
	absolutePath, absoluteError := filepath.Abs(repositoryPath)
	if absoluteError != nil {
		return nil, fmt.Errorf(repositoryResolveErrorTemplateConstant, repositoryPath, absoluteError)
	}
	return []string{absolutePath}, nil
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider().Sanitize()
}

func (builder *CommandBuilder) resolveHomeExpander() *pathutils.HomeExpander {
	if builder.HomeExpander == nil {
		builder.HomeExpander = pathutils.NewHomeExpander()
	}
	return builder.HomeExpander
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

func writeEntriesTable(writer io.Writer, entries []Entry) error {
	if len(entries) == 0 {
		_, writeError := io.WriteString(writer, emptyHistoryMessageConstant)
		return writeError
	}

	tableWriter := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	if _, writeError := io.WriteString(tableWriter, tableHeaderConstant); writeError != nil {
		return writeError
	}
	for _, entry := range entries {
		if _, writeError := fmt.Fprintf(
			tableWriter,
			tableRowTemplateConstant,
			entry.Repository,
			entry.DetectedAt.Format(tableTimestampLayoutConstant),
			entry.Workflow,
			entry.Confidence,
			entry.MigrationDetected,
		); writeError != nil {
			return writeError
		}
	}
	return tableWriter.Flush()
}
