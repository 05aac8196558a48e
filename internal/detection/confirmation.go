package detection

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/temirov/flowscout/internal/classifier"
	"github.com/temirov/flowscout/internal/vcsconfig"
)

const (
	detectedWorkflowTemplateConstant     = "Detected workflow: %s\nConfidence: %.1f%%\n"
	unclearWorkflowTemplateConstant      = "Could not confidently detect your workflow (confidence %.1f%%).\n"
	migrationNoteTemplateConstant        = "Note: a recent workflow change was detected\n  Recent: %s\n  Historical: %s\n"
	patternSeparatorConstant             = ", "
	confirmationMenuConstant             = "Is this correct?\n  1. Yes, that's right\n  2. No, we actually use something else\n  3. We recently changed our approach\n  4. It's more complex than that\nSelect (1-4): "
	manualSelectionMenuConstant          = "Which Git workflow best describes your team's approach?\n  1. GitHub Flow - simple feature branches with pull requests\n  2. GitFlow - structured branches (develop, release, hotfix)\n  3. Trunk-Based - direct commits or very short branches\n  4. Custom Git workflow\nSelect (1-4): "
	confirmationAcceptedChoiceConstant   = "1"
	promptWriteErrorTemplateConstant     = "failed to write prompt: %w"
	promptReadErrorTemplateConstant      = "failed to read response: %w"
	prompterNotConfiguredMessageConstant = "prompter not configured"
)

// ErrPrompterNotConfigured indicates a confirmation flow without a prompter.
var ErrPrompterNotConfigured = errors.New(prompterNotConfiguredMessageConstant)

var manualSelectionChoices = map[string]classifier.WorkflowType{
	"1": classifier.WorkflowTypeGitHubFlow,
	"2": classifier.WorkflowTypeGitFlow,
	"3": classifier.WorkflowTypeTrunkBased,
	"4": classifier.WorkflowTypeCustom,
}

// Prompter displays a message and returns the user's single-line answer.
type Prompter interface {
	Prompt(message string) (string, error)
}

// IOPrompter reads answers from an io.Reader and writes prompts to an io.Writer.
type IOPrompter struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewIOPrompter constructs a prompter from the provided reader and writer.
func NewIOPrompter(input io.Reader, output io.Writer) *IOPrompter {
	return &IOPrompter{reader: bufio.NewReader(input), writer: output}
}

// Prompt writes message and reads one line. End of input yields an empty answer.
func (prompter *IOPrompter) Prompt(message string) (string, error) {
	if prompter.writer != nil {
		if _, writeError := io.WriteString(prompter.writer, message); writeError != nil {
			return "", fmt.Errorf(promptWriteErrorTemplateConstant, writeError)
		}
	}

	response, readError := prompter.reader.ReadString('\n')
	if readError != nil && !errors.Is(readError, io.EOF) {
		return "", fmt.Errorf(promptReadErrorTemplateConstant, readError)
	}
	return strings.TrimSpace(response), nil
}

// ConfirmDecision presents the detection and asks the user to accept it.
// Accepting keeps the detected workflow as auto-detected. Any other answer,
// or an unclear detection, falls through to manual selection, whose result is
// recorded as user-selected.
func ConfirmDecision(prompter Prompter, report Report) (Decision, error) {
	if prompter == nil {
		return Decision{}, ErrPrompterNotConfigured
	}

	classification := report.Classification
	if classification.WorkflowType == classifier.WorkflowTypeUnclear {
		message := fmt.Sprintf(unclearWorkflowTemplateConstant, classification.Confidence*100)
		return selectManually(prompter, message)
	}

	var summary strings.Builder
	summary.WriteString(fmt.Sprintf(detectedWorkflowTemplateConstant, classification.WorkflowType, classification.Confidence*100))
	if writeError := writeEvidence(&summary, classification.Evidence); writeError != nil {
		return Decision{}, writeError
	}
	if report.Migration.MigrationDetected {
		summary.WriteString(fmt.Sprintf(
			migrationNoteTemplateConstant,
			strings.Join(report.Migration.RecentPattern, patternSeparatorConstant),
			strings.Join(report.Migration.HistoricalPattern, patternSeparatorConstant),
		))
	}
	summary.WriteString(confirmationMenuConstant)

	answer, promptError := prompter.Prompt(summary.String())
	if promptError != nil {
		return Decision{}, promptError
	}
	if answer == confirmationAcceptedChoiceConstant {
		return Decision{Workflow: classification.WorkflowType, Method: vcsconfig.DetectionMethodAutomatic}, nil
	}
	return selectManually(prompter, "")
}

// ManualDecision records a workflow chosen without prompting.
func ManualDecision(workflow classifier.WorkflowType) Decision {
	return Decision{Workflow: workflow, Method: vcsconfig.DetectionMethodUser}
}

// AutomaticDecision accepts the detected workflow as-is.
func AutomaticDecision(report Report) Decision {
	return Decision{Workflow: report.Classification.WorkflowType, Method: vcsconfig.DetectionMethodAutomatic}
}

// selectManually falls back to GitHub Flow for unrecognized answers.
func selectManually(prompter Prompter, preamble string) (Decision, error) {
	answer, promptError := prompter.Prompt(preamble + manualSelectionMenuConstant)
	if promptError != nil {
		return Decision{}, promptError
	}
	workflow, known := manualSelectionChoices[answer]
	if !known {
		workflow = classifier.WorkflowTypeGitHubFlow
	}
	return ManualDecision(workflow), nil
}
