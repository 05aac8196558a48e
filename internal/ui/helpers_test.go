package ui_test

import (
	"context"

	"github.com/temirov/flowscout/internal/execshell"
)

type failingRunner struct{}

func (failingRunner) Run(context.Context, execshell.ShellCommand) (execshell.ExecutionResult, error) {
	return execshell.ExecutionResult{ExitCode: 128}, nil
}
