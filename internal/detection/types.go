package detection

import (
	"time"

	"github.com/temirov/flowscout/internal/classifier"
	"github.com/temirov/flowscout/internal/snapshot"
	"github.com/temirov/flowscout/internal/vcsconfig"
)

const (
	sourceGitStringConstant     = "git"
	sourceGoGitStringConstant   = "gogit"
	sourceFixtureStringConstant = "fixture"
	formatTextStringConstant    = "text"
	formatJSONStringConstant    = "json"
	formatYAMLStringConstant    = "yaml"
)

// SnapshotSource names the backend that collects repository history.
type SnapshotSource string

// Supported snapshot sources.
const (
	SnapshotSourceGit     SnapshotSource = SnapshotSource(sourceGitStringConstant)
	SnapshotSourceGoGit   SnapshotSource = SnapshotSource(sourceGoGitStringConstant)
	SnapshotSourceFixture SnapshotSource = SnapshotSource(sourceFixtureStringConstant)
)

// OutputFormat selects how reports are rendered.
type OutputFormat string

// Supported output formats.
const (
	OutputFormatText OutputFormat = OutputFormat(formatTextStringConstant)
	OutputFormatJSON OutputFormat = OutputFormat(formatJSONStringConstant)
	OutputFormatYAML OutputFormat = OutputFormat(formatYAMLStringConstant)
)

// Options configures a single detection run.
type Options struct {
	Repository          string
	ConfidenceThreshold float64
	RecentWindowDays    int
}

// Report captures the outcome of a detection run.
type Report struct {
	Repository       string                          `json:"repository" yaml:"repository"`
	Classification   classifier.ClassificationResult `json:"classification" yaml:"classification"`
	Migration        classifier.MigrationResult      `json:"migration" yaml:"migration"`
	RecentWindowDays int                             `json:"recent_window_days" yaml:"recent_window_days"`
	Scores           []classifier.WorkflowAssessment `json:"scores" yaml:"scores"`
	Counts           snapshot.Counts                 `json:"counts" yaml:"counts"`
	GeneratedAt      time.Time                       `json:"generated_at" yaml:"generated_at"`
	// Selection is set once the workflow has been accepted or chosen for the configuration record.
	Selection *Decision `json:"selection,omitempty" yaml:"selection,omitempty"`
}

// Decision is the workflow accepted for the configuration record.
type Decision struct {
	Workflow classifier.WorkflowType   `json:"workflow" yaml:"workflow"`
	Method   vcsconfig.DetectionMethod `json:"detection_method" yaml:"detection_method"`
}
