package execshell

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	commandNameFieldConstant             = "command"
	commandArgumentsFieldConstant        = "arguments"
	commandWorkingDirectoryFieldConstant = "working_directory"
	commandExitCodeFieldConstant         = "exit_code"
	commandDurationFieldConstant         = "duration"
	commandStandardErrorFieldConstant    = "stderr"
	commandStartedLogMessageConstant     = "Executing command"
	commandCompletedLogMessageConstant   = "Command completed"
	commandFailedLogMessageConstant      = "Command exited with non-zero status"
	commandErroredLogMessageConstant     = "Command execution failed"
)

// ShellExecutor runs external commands through a CommandRunner and reports
// their lifecycle to the logger and an optional observer.
type ShellExecutor struct {
	logger               *zap.Logger
	runner               CommandRunner
	humanReadableLogging bool
	formatter            CommandMessageFormatter
	observer             CommandEventObserver
}

// NewShellExecutor constructs a ShellExecutor. Human-readable logging replaces
// structured command fields with descriptive console messages.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, humanReadableLogging bool) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	return &ShellExecutor{
		logger:               logger,
		runner:               runner,
		humanReadableLogging: humanReadableLogging,
		formatter:            CommandMessageFormatter{},
		observer:             noopCommandEventObserver{},
	}, nil
}

// WithEventObserver attaches an observer notified about every executed command.
func (executor *ShellExecutor) WithEventObserver(observer CommandEventObserver) *ShellExecutor {
	if observer == nil {
		observer = noopCommandEventObserver{}
	}
	executor.observer = observer
	return executor
}

// ExecuteGit runs git with the provided details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// Execute runs an arbitrary command. Non-zero exit codes are reported as
// CommandFailedError and runner failures as CommandExecutionError.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.logStarted(command)
	executor.observer.CommandStarted(command)

	startTime := time.Now()
	executionResult, runError := executor.runner.Run(executionContext, command)
	elapsed := time.Since(startTime)

	if runError != nil {
		executor.logExecutionFailure(command, runError, elapsed)
		executor.observer.CommandExecutionFailed(command, runError)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	executor.observer.CommandCompleted(command, executionResult)
	if executionResult.ExitCode != 0 {
		executor.logFailure(command, executionResult, elapsed)
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logSuccess(command, elapsed)
	return executionResult, nil
}

func (executor *ShellExecutor) logStarted(command ShellCommand) {
	if executor.humanReadableLogging {
		executor.logger.Debug(executor.formatter.BuildStartedMessage(command))
		return
	}
	executor.logger.Debug(commandStartedLogMessageConstant, executor.commandFields(command)...)
}

func (executor *ShellExecutor) logSuccess(command ShellCommand, elapsed time.Duration) {
	if executor.humanReadableLogging {
		executor.logger.Debug(executor.formatter.BuildSuccessMessage(command))
		return
	}
	fields := append(executor.commandFields(command), zap.Duration(commandDurationFieldConstant, elapsed))
	executor.logger.Debug(commandCompletedLogMessageConstant, fields...)
}

func (executor *ShellExecutor) logFailure(command ShellCommand, result ExecutionResult, elapsed time.Duration) {
	if executor.humanReadableLogging {
		executor.logger.Debug(executor.formatter.BuildFailureMessage(command, result))
		return
	}
	fields := append(executor.commandFields(command),
		zap.Int(commandExitCodeFieldConstant, result.ExitCode),
		zap.String(commandStandardErrorFieldConstant, result.StandardError),
		zap.Duration(commandDurationFieldConstant, elapsed),
	)
	executor.logger.Debug(commandFailedLogMessageConstant, fields...)
}

func (executor *ShellExecutor) logExecutionFailure(command ShellCommand, failure error, elapsed time.Duration) {
	if executor.humanReadableLogging {
		executor.logger.Warn(executor.formatter.BuildExecutionFailureMessage(command, failure))
		return
	}
	fields := append(executor.commandFields(command), zap.Error(failure), zap.Duration(commandDurationFieldConstant, elapsed))
	executor.logger.Warn(commandErroredLogMessageConstant, fields...)
}

func (executor *ShellExecutor) commandFields(command ShellCommand) []zap.Field {
	return []zap.Field{
		zap.String(commandNameFieldConstant, string(command.Name)),
		zap.Strings(commandArgumentsFieldConstant, command.Details.Arguments),
		zap.String(commandWorkingDirectoryFieldConstant, command.Details.WorkingDirectory),
	}
}
