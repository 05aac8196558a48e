// Package utils exposes helpers shared by the CLI commands.
//
// ConfigurationLoader layers embedded defaults, files, and environment
// variables through Viper, and LoggerFactory builds the zap loggers used by
// every command.
package utils
