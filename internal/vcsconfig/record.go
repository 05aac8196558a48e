// Package vcsconfig persists detected workflow configuration records.
package vcsconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/temirov/flowscout/internal/classifier"
)

const (
	// DefaultRecordPath is the repository-relative location of the configuration record.
	DefaultRecordPath = ".flowscout/vcs_config.json"
	// DefaultCacheTTL is how long a detection stays valid.
	DefaultCacheTTL = 7 * 24 * time.Hour

	gitVCSTypeConstant                   = "git"
	jsonExtensionConstant                = ".json"
	yamlExtensionConstant                = ".yaml"
	ymlExtensionConstant                 = ".yml"
	jsonIndentConstant                   = "  "
	recordDirectoryPermissions           = 0o755
	recordFilePermissions                = 0o644
	pathRequiredMessageConstant          = "configuration record path must be provided"
	unsupportedFormatMessageConstant     = "unsupported configuration record format"
	unsupportedFormatTemplateConstant    = "%w: %s"
	recordReadErrorTemplateConstant      = "failed to read configuration record %s: %w"
	recordParseErrorTemplateConstant     = "failed to parse configuration record %s: %w"
	recordEncodeErrorTemplateConstant    = "failed to encode configuration record: %w"
	recordWriteErrorTemplateConstant     = "failed to write configuration record %s: %w"
	recordDirectoryErrorTemplateConstant = "failed to create configuration directory %s: %w"
)

// DetectionMethod records how the workflow was chosen.
type DetectionMethod string

// Supported detection methods.
const (
	DetectionMethodAutomatic DetectionMethod = DetectionMethod("auto-detected")
	DetectionMethodUser      DetectionMethod = DetectionMethod("user-selected")
)

var (
	// ErrPathRequired indicates an empty record path.
	ErrPathRequired = errors.New(pathRequiredMessageConstant)
	// ErrUnsupportedFormat indicates a record path whose extension is neither JSON nor YAML.
	ErrUnsupportedFormat = errors.New(unsupportedFormatMessageConstant)
)

// Record is the persisted configuration document.
type Record struct {
	VCSConfig Configuration `json:"vcs_config" yaml:"vcs_config"`
}

// Configuration describes the detected workflow.
type Configuration struct {
	Type              string                  `json:"type" yaml:"type"`
	Workflow          classifier.WorkflowType `json:"workflow" yaml:"workflow"`
	DetectionMethod   DetectionMethod         `json:"detection_method" yaml:"detection_method"`
	ConfidenceScore   float64                 `json:"confidence_score" yaml:"confidence_score"`
	DetectionEvidence []string                `json:"detection_evidence" yaml:"detection_evidence"`
	MigrationDetected bool                    `json:"migration_detected" yaml:"migration_detected"`
	Cache             CacheWindow             `json:"cache" yaml:"cache"`
}

// CacheWindow bounds the validity of a detection.
type CacheWindow struct {
	DetectedAt time.Time `json:"detected_at" yaml:"detected_at"`
	ValidUntil time.Time `json:"valid_until" yaml:"valid_until"`
}

// NewRecord builds a record for a detection. A non-positive ttl selects DefaultCacheTTL.
func NewRecord(result classifier.ClassificationResult, migration classifier.MigrationResult, method DetectionMethod, detectedAt time.Time, ttl time.Duration) Record {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	evidence := append([]string{}, result.Evidence...)
	return Record{VCSConfig: Configuration{
		Type:              gitVCSTypeConstant,
		Workflow:          result.WorkflowType,
		DetectionMethod:   method,
		ConfidenceScore:   result.Confidence,
		DetectionEvidence: evidence,
		MigrationDetected: migration.MigrationDetected,
		Cache: CacheWindow{
			DetectedAt: detectedAt,
			ValidUntil: detectedAt.Add(ttl),
		},
	}}
}

// IsValid reports whether the record is still within its cache window at now.
func (record Record) IsValid(now time.Time) bool {
	if record.VCSConfig.Cache.ValidUntil.IsZero() || len(record.VCSConfig.Workflow) == 0 {
		return false
	}
	return now.Before(record.VCSConfig.Cache.ValidUntil)
}

// Save writes the record, choosing JSON or YAML from the file extension and
// creating parent directories as needed.
func Save(recordPath string, record Record) error {
	trimmedPath, format, resolveError := resolveFormat(recordPath)
	if resolveError != nil {
		return resolveError
	}

	var encoded []byte
	var encodeError error
	switch format {
	case jsonExtensionConstant:
		encoded, encodeError = json.MarshalIndent(record, "", jsonIndentConstant)
		encoded = append(encoded, '\n')
	default:
		encoded, encodeError = yaml.Marshal(record)
	}
	if encodeError != nil {
		return fmt.Errorf(recordEncodeErrorTemplateConstant, encodeError)
	}

	recordDirectory := filepath.Dir(trimmedPath)
	if directoryError := os.MkdirAll(recordDirectory, recordDirectoryPermissions); directoryError != nil {
		return fmt.Errorf(recordDirectoryErrorTemplateConstant, recordDirectory, directoryError)
	}
	if writeError := os.WriteFile(trimmedPath, encoded, recordFilePermissions); writeError != nil {
		return fmt.Errorf(recordWriteErrorTemplateConstant, trimmedPath, writeError)
	}
	return nil
}

// Load reads a record written by Save. Missing files surface os.ErrNotExist.
func Load(recordPath string) (Record, error) {
	trimmedPath, format, resolveError := resolveFormat(recordPath)
	if resolveError != nil {
		return Record{}, resolveError
	}

	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return Record{}, fmt.Errorf(recordReadErrorTemplateConstant, trimmedPath, readError)
	}

	var record Record
	var decodeError error
	switch format {
	case jsonExtensionConstant:
		decodeError = json.Unmarshal(contentBytes, &record)
	default:
		decodeError = yaml.Unmarshal(contentBytes, &record)
	}
	if decodeError != nil {
		return Record{}, fmt.Errorf(recordParseErrorTemplateConstant, trimmedPath, decodeError)
	}
	return record, nil
}

// ResolvePath anchors a relative record path at the repository root.
func ResolvePath(repositoryRoot string, recordPath string) string {
	trimmedPath := strings.TrimSpace(recordPath)
	if len(trimmedPath) == 0 {
		trimmedPath = DefaultRecordPath
	}
	if filepath.IsAbs(trimmedPath) {
		return trimmedPath
	}
	return filepath.Join(repositoryRoot, trimmedPath)
}

func resolveFormat(recordPath string) (string, string, error) {
	trimmedPath := strings.TrimSpace(recordPath)
	if len(trimmedPath) == 0 {
		return "", "", ErrPathRequired
	}
	switch extension := strings.ToLower(filepath.Ext(trimmedPath)); extension {
	case jsonExtensionConstant:
		return trimmedPath, jsonExtensionConstant, nil
	case yamlExtensionConstant, ymlExtensionConstant:
		return trimmedPath, yamlExtensionConstant, nil
	default:
		return "", "", fmt.Errorf(unsupportedFormatTemplateConstant, ErrUnsupportedFormat, trimmedPath)
	}
}
