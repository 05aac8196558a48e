package history

import "strings"

const defaultListLimitConstant = 20

// CommandConfiguration captures configuration values for run history.
type CommandConfiguration struct {
	DatabasePath string `mapstructure:"database_path"`
	Limit        int    `mapstructure:"limit"`
}

// DefaultCommandConfiguration leaves history disabled until a database path is configured.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		DatabasePath: "",
		Limit:        defaultListLimitConstant,
	}
}

// Sanitize trims the database path and restores the default limit when it is not positive.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.DatabasePath = strings.TrimSpace(configuration.DatabasePath)
	if sanitized.Limit <= 0 {
		sanitized.Limit = defaultListLimitConstant
	}
	return sanitized
}

// Enabled reports whether a database path is configured.
func (configuration CommandConfiguration) Enabled() bool {
	return len(strings.TrimSpace(configuration.DatabasePath)) > 0
}
