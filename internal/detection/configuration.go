package detection

import (
	"strings"
	"time"

	"github.com/temirov/flowscout/internal/classifier"
	"github.com/temirov/flowscout/internal/vcsconfig"
)

const defaultMergeInferenceLimitConstant = 200

// CommandConfiguration captures configuration values for the detect and migration commands.
type CommandConfiguration struct {
	Source              string        `mapstructure:"source"`
	Fixture             string        `mapstructure:"fixture"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	RecentWindowDays    int           `mapstructure:"recent_window_days"`
	HistoryDays         int           `mapstructure:"history_days"`
	MergeInferenceLimit int           `mapstructure:"merge_inference_limit"`
	OutputFormat        string        `mapstructure:"output_format"`
	ConfigurationPath   string        `mapstructure:"configuration_path"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	Interactive         bool          `mapstructure:"interactive"`
	Save                bool          `mapstructure:"save"`
}

// DefaultCommandConfiguration provides baseline configuration values for detection.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		Source:              string(SnapshotSourceGit),
		ConfidenceThreshold: classifier.DefaultConfidenceThreshold,
		RecentWindowDays:    classifier.DefaultRecentWindowDays,
		HistoryDays:         0,
		MergeInferenceLimit: defaultMergeInferenceLimitConstant,
		OutputFormat:        string(OutputFormatText),
		ConfigurationPath:   vcsconfig.DefaultRecordPath,
		CacheTTL:            vcsconfig.DefaultCacheTTL,
		Interactive:         false,
		Save:                true,
	}
}

// Sanitize trims and normalizes configuration values. Out-of-range numeric
// values fall back to their defaults; a negative HistoryDays reads the entire history.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration

	sanitized.Source = strings.ToLower(strings.TrimSpace(configuration.Source))
	if len(sanitized.Source) == 0 {
		sanitized.Source = defaults.Source
	}
	sanitized.Fixture = strings.TrimSpace(configuration.Fixture)
	sanitized.OutputFormat = strings.ToLower(strings.TrimSpace(configuration.OutputFormat))
	if len(sanitized.OutputFormat) == 0 {
		sanitized.OutputFormat = defaults.OutputFormat
	}
	sanitized.ConfigurationPath = strings.TrimSpace(configuration.ConfigurationPath)
	if len(sanitized.ConfigurationPath) == 0 {
		sanitized.ConfigurationPath = defaults.ConfigurationPath
	}

	if sanitized.ConfidenceThreshold < 0 {
		sanitized.ConfidenceThreshold = defaults.ConfidenceThreshold
	}
	if sanitized.RecentWindowDays <= 0 {
		sanitized.RecentWindowDays = defaults.RecentWindowDays
	}
	if sanitized.HistoryDays < 0 {
		sanitized.HistoryDays = 0
	}
	if sanitized.MergeInferenceLimit <= 0 {
		sanitized.MergeInferenceLimit = defaults.MergeInferenceLimit
	}
	if sanitized.CacheTTL <= 0 {
		sanitized.CacheTTL = defaults.CacheTTL
	}

	return sanitized
}
