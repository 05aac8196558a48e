package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	fixturePathRequiredMessageConstant    = "fixture path must be provided"
	fixtureReadErrorTemplateConstant      = "failed to read fixture %s: %w"
	fixtureParseErrorTemplateConstant     = "failed to parse fixture %s: %w"
	fixtureTimestampErrorTemplateConstant = "invalid fixture timestamp %q: %w"
	fixtureBuildErrorTemplateConstant     = "invalid fixture %s: %w"
	fixtureMissingTimeTemplateConstant    = "%s %q has neither a timestamp nor a days_ago offset"
	fixtureCommitEntityConstant           = "commit"
	fixtureTagEntityConstant              = "tag"
	fixtureHoursPerDayConstant            = 24
)

// ErrFixturePathRequired indicates that no fixture path was configured.
var ErrFixturePathRequired = errors.New(fixturePathRequiredMessageConstant)

// ErrFixtureTimeMissing indicates a fixture record without any time information.
var ErrFixtureTimeMissing = errors.New("fixture record time missing")

// FixtureDocument is the on-disk shape of a snapshot fixture. Times are either
// RFC3339 timestamps or day offsets relative to the reference time.
type FixtureDocument struct {
	ReferenceTime string          `yaml:"reference_time,omitempty" json:"reference_time,omitempty"`
	Branches      []FixtureBranch `yaml:"branches" json:"branches"`
	Commits       []FixtureCommit `yaml:"commits" json:"commits"`
	Tags          []FixtureTag    `yaml:"tags" json:"tags"`
}

// FixtureBranch describes a branch inside a fixture.
type FixtureBranch struct {
	Name           string   `yaml:"name" json:"name"`
	Created        string   `yaml:"created,omitempty" json:"created,omitempty"`
	CreatedDaysAgo *float64 `yaml:"created_days_ago,omitempty" json:"created_days_ago,omitempty"`
	Deleted        string   `yaml:"deleted,omitempty" json:"deleted,omitempty"`
	DeletedDaysAgo *float64 `yaml:"deleted_days_ago,omitempty" json:"deleted_days_ago,omitempty"`
}

// FixtureCommit describes a commit inside a fixture.
type FixtureCommit struct {
	Branch    string   `yaml:"branch" json:"branch"`
	Message   string   `yaml:"message" json:"message"`
	Timestamp string   `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	DaysAgo   *float64 `yaml:"days_ago,omitempty" json:"days_ago,omitempty"`
}

// FixtureTag describes a tag inside a fixture.
type FixtureTag struct {
	Name      string   `yaml:"name" json:"name"`
	Timestamp string   `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	DaysAgo   *float64 `yaml:"days_ago,omitempty" json:"days_ago,omitempty"`
}

// LoadFixture reads a YAML or JSON fixture file and resolves it against referenceTime.
func LoadFixture(fixturePath string, referenceTime time.Time) (Snapshot, error) {
	trimmedPath := strings.TrimSpace(fixturePath)
	if len(trimmedPath) == 0 {
		return Snapshot{}, ErrFixturePathRequired
	}

	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return Snapshot{}, fmt.Errorf(fixtureReadErrorTemplateConstant, trimmedPath, readError)
	}

	var document FixtureDocument
	if unmarshalError := yaml.Unmarshal(contentBytes, &document); unmarshalError != nil {
		return Snapshot{}, fmt.Errorf(fixtureParseErrorTemplateConstant, trimmedPath, unmarshalError)
	}

	repositorySnapshot, buildError := document.Resolve(referenceTime)
	if buildError != nil {
		return Snapshot{}, fmt.Errorf(fixtureBuildErrorTemplateConstant, trimmedPath, buildError)
	}
	return repositorySnapshot, nil
}

// Resolve converts the document into a Snapshot. A reference_time declared in
// the document overrides referenceTime and is carried by the snapshot.
func (document FixtureDocument) Resolve(referenceTime time.Time) (Snapshot, error) {
	referenceDeclared := len(strings.TrimSpace(document.ReferenceTime)) > 0
	if referenceDeclared {
		declaredReference, parseError := parseFixtureTimestamp(document.ReferenceTime)
		if parseError != nil {
			return Snapshot{}, parseError
		}
		referenceTime = declaredReference
	}

	builder := NewBuilder().WithFallbackCreationTime(referenceTime)

	for _, fixtureBranch := range document.Branches {
		created, _, createdError := resolveFixtureTime(fixtureBranch.Created, fixtureBranch.CreatedDaysAgo, referenceTime)
		if createdError != nil {
			return Snapshot{}, createdError
		}
		deleted, _, deletedError := resolveFixtureTime(fixtureBranch.Deleted, fixtureBranch.DeletedDaysAgo, referenceTime)
		if deletedError != nil {
			return Snapshot{}, deletedError
		}
		builder.AddBranch(Branch{Name: fixtureBranch.Name, Created: created, Deleted: deleted})
	}

	for _, fixtureCommit := range document.Commits {
		timestamp, present, timestampError := resolveFixtureTime(fixtureCommit.Timestamp, fixtureCommit.DaysAgo, referenceTime)
		if timestampError != nil {
			return Snapshot{}, timestampError
		}
		if !present {
			return Snapshot{}, fmt.Errorf("%w: "+fixtureMissingTimeTemplateConstant, ErrFixtureTimeMissing, fixtureCommitEntityConstant, fixtureCommit.Message)
		}
		builder.AddCommit(Commit{Branch: strings.TrimSpace(fixtureCommit.Branch), Message: fixtureCommit.Message, Timestamp: timestamp})
	}

	for _, fixtureTag := range document.Tags {
		timestamp, present, timestampError := resolveFixtureTime(fixtureTag.Timestamp, fixtureTag.DaysAgo, referenceTime)
		if timestampError != nil {
			return Snapshot{}, timestampError
		}
		if !present {
			return Snapshot{}, fmt.Errorf("%w: "+fixtureMissingTimeTemplateConstant, ErrFixtureTimeMissing, fixtureTagEntityConstant, fixtureTag.Name)
		}
		builder.AddTag(Tag{Name: strings.TrimSpace(fixtureTag.Name), Timestamp: timestamp})
	}

	repositorySnapshot, buildError := builder.Build()
	if buildError != nil || !referenceDeclared {
		return repositorySnapshot, buildError
	}
	return repositorySnapshot.WithReferenceTime(referenceTime), nil
}

func resolveFixtureTime(rawTimestamp string, daysAgo *float64, referenceTime time.Time) (time.Time, bool, error) {
	if len(strings.TrimSpace(rawTimestamp)) > 0 {
		parsedTime, parseError := parseFixtureTimestamp(rawTimestamp)
		if parseError != nil {
			return time.Time{}, false, parseError
		}
		return parsedTime, true, nil
	}
	if daysAgo != nil {
		offset := time.Duration(*daysAgo * fixtureHoursPerDayConstant * float64(time.Hour))
		return referenceTime.Add(-offset), true, nil
	}
	return time.Time{}, false, nil
}

func parseFixtureTimestamp(rawTimestamp string) (time.Time, error) {
	parsedTime, parseError := time.Parse(time.RFC3339, strings.TrimSpace(rawTimestamp))
	if parseError != nil {
		return time.Time{}, fmt.Errorf(fixtureTimestampErrorTemplateConstant, rawTimestamp, parseError)
	}
	return parsedTime, nil
}

// FixtureProvider loads a snapshot from a fixture file on every call.
type FixtureProvider struct {
	fixturePath   string
	referenceTime func() time.Time
}

// NewFixtureProvider constructs a provider resolving relative offsets against referenceTime.
func NewFixtureProvider(fixturePath string, referenceTime func() time.Time) *FixtureProvider {
	if referenceTime == nil {
		referenceTime = time.Now
	}
	return &FixtureProvider{fixturePath: fixturePath, referenceTime: referenceTime}
}

// Snapshot loads the fixture.
func (provider *FixtureProvider) Snapshot(executionContext context.Context) (Snapshot, error) {
	if executionContext != nil {
		if contextError := executionContext.Err(); contextError != nil {
			return Snapshot{}, contextError
		}
	}
	return LoadFixture(provider.fixturePath, provider.referenceTime())
}
