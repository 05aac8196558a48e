package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/temirov/flowscout/internal/classifier"
	"github.com/temirov/flowscout/internal/vcsconfig"
)

const (
	historicalWindowMultiplierConstant   = 3
	jsonIndentConstant                   = "  "
	unsupportedFormatMessageConstant     = "unsupported output format"
	unsupportedFormatTemplateConstant    = "%w: %s"
	renderErrorTemplateConstant          = "failed to render %s output: %w"
	noneLabelConstant                    = "none"
	reportRepositoryTemplateConstant     = "Repository: %s\n"
	reportWorkflowTemplateConstant       = "Workflow: %s (confidence %.1f%%)\n"
	reportSelectionTemplateConstant      = "Selected workflow: %s (%s)\n"
	reportEvidenceHeaderConstant         = "Evidence:\n"
	reportEvidenceLineTemplateConstant   = "  - %s\n"
	reportScoresHeaderConstant           = "Scores:\n"
	reportScoreLineTemplateConstant      = "  %s\t%.2f\t%s\n"
	reportCountsTemplateConstant         = "History: %d branches, %d commits, %d tags\n"
	migrationDetectedTemplateConstant    = "Migration: detected (last %d days vs. earlier activity up to %d days ago)\n"
	migrationNotDetectedTemplateConstant = "Migration: not detected (last %d days vs. earlier activity up to %d days ago)\n"
	migrationPatternTemplateConstant     = "  Recent: %s\n  Historical: %s\n"
	recordWorkflowTemplateConstant       = "Workflow: %s (%s, confidence %.1f%%)\n"
	recordCacheTemplateConstant          = "Cached: detected %s, valid until %s\n"
	recordMigrationTemplateConstant      = "Migration detected: %t\n"
	timestampLayoutConstant              = "2006-01-02 15:04 MST"
)

// ErrUnsupportedOutputFormat indicates a format other than text, json, or yaml.
var ErrUnsupportedOutputFormat = errors.New(unsupportedFormatMessageConstant)

// MigrationView is the rendered form of a migration-only run.
type MigrationView struct {
	Repository       string                     `json:"repository" yaml:"repository"`
	RecentWindowDays int                        `json:"recent_window_days" yaml:"recent_window_days"`
	LookbackDays     int                        `json:"lookback_days" yaml:"lookback_days"`
	Migration        classifier.MigrationResult `json:"migration" yaml:"migration"`
}

// NewMigrationView extracts the migration section of a report.
func NewMigrationView(report Report) MigrationView {
	return MigrationView{
		Repository:       report.Repository,
		RecentWindowDays: report.RecentWindowDays,
		LookbackDays:     report.RecentWindowDays * historicalWindowMultiplierConstant,
		Migration:        report.Migration,
	}
}

// RenderReport writes a full detection report.
func RenderReport(writer io.Writer, report Report, format OutputFormat) error {
	return render(writer, format, report, func(textWriter io.Writer) error {
		return writeReportText(textWriter, report)
	})
}

// RenderMigration writes the migration section of a report.
func RenderMigration(writer io.Writer, report Report, format OutputFormat) error {
	view := NewMigrationView(report)
	return render(writer, format, view, func(textWriter io.Writer) error {
		if _, writeError := fmt.Fprintf(textWriter, reportRepositoryTemplateConstant, view.Repository); writeError != nil {
			return writeError
		}
		return writeMigrationText(textWriter, view)
	})
}

// RenderRecord writes a configuration record, used when a cached detection is reused.
func RenderRecord(writer io.Writer, record vcsconfig.Record, format OutputFormat) error {
	return render(writer, format, record, func(textWriter io.Writer) error {
		configuration := record.VCSConfig
		if _, writeError := fmt.Fprintf(textWriter, recordWorkflowTemplateConstant, configuration.Workflow, configuration.DetectionMethod, configuration.ConfidenceScore*100); writeError != nil {
			return writeError
		}
		if writeError := writeEvidence(textWriter, configuration.DetectionEvidence); writeError != nil {
			return writeError
		}
		if _, writeError := fmt.Fprintf(textWriter, recordMigrationTemplateConstant, configuration.MigrationDetected); writeError != nil {
			return writeError
		}
		_, writeError := fmt.Fprintf(
			textWriter,
			recordCacheTemplateConstant,
			configuration.Cache.DetectedAt.Format(timestampLayoutConstant),
			configuration.Cache.ValidUntil.Format(timestampLayoutConstant),
		)
		return writeError
	})
}

// ParseOutputFormat resolves a format name, defaulting to text when empty.
func ParseOutputFormat(rawFormat string) (OutputFormat, error) {
	switch format := OutputFormat(strings.ToLower(strings.TrimSpace(rawFormat))); format {
	case "":
		return OutputFormatText, nil
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf(unsupportedFormatTemplateConstant, ErrUnsupportedOutputFormat, rawFormat)
	}
}

func render(writer io.Writer, format OutputFormat, value any, writeText func(io.Writer) error) error {
	var renderError error
	switch format {
	case OutputFormatText, "":
		renderError = writeText(writer)
	case OutputFormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", jsonIndentConstant)
		renderError = encoder.Encode(value)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(len(jsonIndentConstant))
		renderError = encoder.Encode(value)
		if renderError == nil {
			renderError = encoder.Close()
		}
	default:
		return fmt.Errorf(unsupportedFormatTemplateConstant, ErrUnsupportedOutputFormat, format)
	}
	if renderError != nil {
		return fmt.Errorf(renderErrorTemplateConstant, format, renderError)
	}
	return nil
}

func writeReportText(writer io.Writer, report Report) error {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf(reportRepositoryTemplateConstant, report.Repository))
	builder.WriteString(fmt.Sprintf(reportWorkflowTemplateConstant, report.Classification.WorkflowType, report.Classification.Confidence*100))
	if writeError := writeEvidence(&builder, report.Classification.Evidence); writeError != nil {
		return writeError
	}

	if len(report.Scores) > 0 {
		builder.WriteString(reportScoresHeaderConstant)
		tableWriter := tabwriter.NewWriter(&builder, 0, 0, 2, ' ', 0)
		for _, assessment := range report.Scores {
			fmt.Fprintf(tableWriter, reportScoreLineTemplateConstant, assessment.Workflow, assessment.Score, strings.Join(assessment.Evidence, patternSeparatorConstant))
		}
		if flushError := tableWriter.Flush(); flushError != nil {
			return flushError
		}
	}

	if report.Selection != nil {
		builder.WriteString(fmt.Sprintf(reportSelectionTemplateConstant, report.Selection.Workflow, report.Selection.Method))
	}
	builder.WriteString(fmt.Sprintf(reportCountsTemplateConstant, report.Counts.Branches, report.Counts.Commits, report.Counts.Tags))
	if _, writeError := io.WriteString(writer, builder.String()); writeError != nil {
		return writeError
	}
	return writeMigrationText(writer, NewMigrationView(report))
}

func writeEvidence(writer io.Writer, evidence []string) error {
	if len(evidence) == 0 {
		return nil
	}
	if _, writeError := io.WriteString(writer, reportEvidenceHeaderConstant); writeError != nil {
		return writeError
	}
	for _, item := range evidence {
		if _, writeError := fmt.Fprintf(writer, reportEvidenceLineTemplateConstant, item); writeError != nil {
			return writeError
		}
	}
	return nil
}

func writeMigrationText(writer io.Writer, view MigrationView) error {
	template := migrationNotDetectedTemplateConstant
	if view.Migration.MigrationDetected {
		template = migrationDetectedTemplateConstant
	}
	if _, writeError := fmt.Fprintf(writer, template, view.RecentWindowDays, view.LookbackDays); writeError != nil {
		return writeError
	}
	if !view.Migration.MigrationDetected {
		return nil
	}
	_, writeError := fmt.Fprintf(writer, migrationPatternTemplateConstant, joinPattern(view.Migration.RecentPattern), joinPattern(view.Migration.HistoricalPattern))
	return writeError
}

func joinPattern(branchNames []string) string {
	if len(branchNames) == 0 {
		return noneLabelConstant
	}
	return strings.Join(branchNames, patternSeparatorConstant)
}
