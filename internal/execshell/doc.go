// Package execshell runs external tools for the snapshot providers.
//
// ShellExecutor wraps a CommandRunner with structured or human-readable
// logging and typed failures, and OSCommandRunner executes commands through
// os/exec.
package execshell
