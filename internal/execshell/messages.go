package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	referenceNamespaceSeparatorConstant     = ", "
	gitFlagPrefixConstant                   = "-"
)

const (
	gitRevParseSubcommandNameConstant   = "rev-parse"
	gitWorkTreeFlagConstant             = "--is-inside-work-tree"
	gitForEachRefSubcommandNameConstant = "for-each-ref"
	gitLogSubcommandNameConstant        = "log"
	gitMergesFlagConstant               = "--merges"
)

const (
	gitWorkTreeStartTemplateConstant            = "Checking for a git repository in %s"
	gitWorkTreeSuccessTemplateConstant          = "Confirmed git repository in %s"
	gitWorkTreeFailureTemplateConstant          = "No git repository in %s (exit code %d%s)"
	gitWorkTreeExecutionFailureTemplateConstant = "Unable to check for a git repository in %s: %s"
	gitRefsStartTemplateConstant                = "Listing %s in %s"
	gitRefsSuccessTemplateConstant              = "Listed %s in %s"
	gitRefsFailureTemplateConstant              = "Failed to list %s in %s (exit code %d%s)"
	gitRefsExecutionFailureTemplateConstant     = "Unable to list %s in %s: %s"
	gitLogStartTemplateConstant                 = "Reading %s in %s"
	gitLogSuccessTemplateConstant               = "Read %s in %s"
	gitLogFailureTemplateConstant               = "Failed to read %s in %s (exit code %d%s)"
	gitLogExecutionFailureTemplateConstant      = "Unable to read %s in %s: %s"
	gitMergeHistoryLabelConstant                = "merge history"
	gitCommitHistoryLabelConstant               = "commit history"
	gitAllReferencesLabelConstant               = "references"
	gitHeadsNamespaceConstant                   = "refs/heads"
	gitRemotesNamespaceConstant                 = "refs/remotes"
	gitTagsNamespaceConstant                    = "refs/tags"
	gitHeadsLabelConstant                       = "local branches"
	gitRemotesLabelConstant                     = "remote branches"
	gitTagsLabelConstant                        = "tags"
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if command.Name != CommandGit || len(command.Details.Arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	arguments := command.Details.Arguments
	workingDirectory := formatter.describeWorkingDirectory(command)
	switch strings.TrimSpace(arguments[0]) {
	case gitRevParseSubcommandNameConstant:
		if !containsArgument(arguments, gitWorkTreeFlagConstant) {
			return formatter.buildGenericMessage(command, result, failure, stage)
		}
		return formatter.selectTemplate(stage, messageTemplates{
			start:            gitWorkTreeStartTemplateConstant,
			success:          gitWorkTreeSuccessTemplateConstant,
			failure:          gitWorkTreeFailureTemplateConstant,
			executionFailure: gitWorkTreeExecutionFailureTemplateConstant,
		}, result, failure, workingDirectory)
	case gitForEachRefSubcommandNameConstant:
		return formatter.selectTemplate(stage, messageTemplates{
			start:            gitRefsStartTemplateConstant,
			success:          gitRefsSuccessTemplateConstant,
			failure:          gitRefsFailureTemplateConstant,
			executionFailure: gitRefsExecutionFailureTemplateConstant,
		}, result, failure, describeReferenceNamespaces(arguments[1:]), workingDirectory)
	case gitLogSubcommandNameConstant:
		historyLabel := gitCommitHistoryLabelConstant
		if containsArgument(arguments, gitMergesFlagConstant) {
			historyLabel = gitMergeHistoryLabelConstant
		}
		return formatter.selectTemplate(stage, messageTemplates{
			start:            gitLogStartTemplateConstant,
			success:          gitLogSuccessTemplateConstant,
			failure:          gitLogFailureTemplateConstant,
			executionFailure: gitLogExecutionFailureTemplateConstant,
		}, result, failure, historyLabel, workingDirectory)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

type messageTemplates struct {
	start            string
	success          string
	failure          string
	executionFailure string
}

// selectTemplate renders the stage template with the subject values. Failure
// templates additionally receive the exit code and standard error suffix, and
// execution failure templates receive the failure description.
func (formatter CommandMessageFormatter) selectTemplate(stage messageStage, templates messageTemplates, result ExecutionResult, failure error, subjects ...string) string {
	values := make([]any, 0, len(subjects)+2)
	for _, subject := range subjects {
		values = append(values, subject)
	}

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(templates.start, values...)
	case messageStageSuccess:
		return fmt.Sprintf(templates.success, values...)
	case messageStageFailure:
		values = append(values, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
		return fmt.Sprintf(templates.failure, values...)
	default:
		values = append(values, describeFailure(failure))
		return fmt.Sprintf(templates.executionFailure, values...)
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := fmt.Sprintf(commandLabelTemplateConstant, describeCommand(command), formatter.formatWorkingDirectorySuffix(command))
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func describeReferenceNamespaces(arguments []string) string {
	labels := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		trimmedArgument := strings.TrimSpace(argument)
		if len(trimmedArgument) == 0 || strings.HasPrefix(trimmedArgument, gitFlagPrefixConstant) {
			continue
		}
		switch trimmedArgument {
		case gitHeadsNamespaceConstant:
			labels = append(labels, gitHeadsLabelConstant)
		case gitRemotesNamespaceConstant:
			labels = append(labels, gitRemotesLabelConstant)
		case gitTagsNamespaceConstant:
			labels = append(labels, gitTagsLabelConstant)
		default:
			labels = append(labels, trimmedArgument)
		}
	}
	if len(labels) == 0 {
		return gitAllReferencesLabelConstant
	}
	return strings.Join(labels, referenceNamespaceSeparatorConstant)
}

func describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func containsArgument(arguments []string, expected string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == expected {
			return true
		}
	}
	return false
}
