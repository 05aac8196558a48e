package snapshot

import (
	"context"
	"time"
)

// Branch describes a branch and its lifespan. A zero Deleted value marks an active branch.
type Branch struct {
	Name    string
	Created time.Time
	Deleted time.Time
}

// IsDeleted reports whether the branch carries a deletion timestamp.
func (branch Branch) IsDeleted() bool {
	return !branch.Deleted.IsZero()
}

// Lifespan returns the time between creation and deletion for deleted branches.
func (branch Branch) Lifespan() (time.Duration, bool) {
	if !branch.IsDeleted() {
		return 0, false
	}
	return branch.Deleted.Sub(branch.Created), true
}

// Commit describes a commit recorded against a target branch.
type Commit struct {
	Branch    string
	Message   string
	Timestamp time.Time
}

// Tag describes a named tag.
type Tag struct {
	Name      string
	Timestamp time.Time
}

// Counts summarizes the size of a snapshot.
type Counts struct {
	Branches int `json:"branches" yaml:"branches"`
	Commits  int `json:"commits" yaml:"commits"`
	Tags     int `json:"tags" yaml:"tags"`
}

// Snapshot is an immutable view of repository history.
type Snapshot struct {
	branches      []Branch
	commits       []Commit
	tags          []Tag
	referenceTime time.Time
}

// New constructs a Snapshot from copies of the provided collections.
func New(branches []Branch, commits []Commit, tags []Tag) Snapshot {
	return Snapshot{
		branches: append([]Branch(nil), branches...),
		commits:  append([]Commit(nil), commits...),
		tags:     append([]Tag(nil), tags...),
	}
}

// Branches returns a copy of the snapshot branches.
func (repositorySnapshot Snapshot) Branches() []Branch {
	return append([]Branch(nil), repositorySnapshot.branches...)
}

// Commits returns a copy of the snapshot commits.
func (repositorySnapshot Snapshot) Commits() []Commit {
	return append([]Commit(nil), repositorySnapshot.commits...)
}

// Tags returns a copy of the snapshot tags.
func (repositorySnapshot Snapshot) Tags() []Tag {
	return append([]Tag(nil), repositorySnapshot.tags...)
}

// Counts reports the number of branches, commits, and tags.
func (repositorySnapshot Snapshot) Counts() Counts {
	return Counts{
		Branches: len(repositorySnapshot.branches),
		Commits:  len(repositorySnapshot.commits),
		Tags:     len(repositorySnapshot.tags),
	}
}

// WithReferenceTime returns a copy of the snapshot anchored to referenceTime,
// the instant its history was captured.
func (repositorySnapshot Snapshot) WithReferenceTime(referenceTime time.Time) Snapshot {
	repositorySnapshot.referenceTime = referenceTime
	return repositorySnapshot
}

// ReferenceTime reports the instant the history was captured, when known.
func (repositorySnapshot Snapshot) ReferenceTime() (time.Time, bool) {
	return repositorySnapshot.referenceTime, !repositorySnapshot.referenceTime.IsZero()
}

// IsEmpty reports whether the snapshot carries no history at all.
func (repositorySnapshot Snapshot) IsEmpty() bool {
	return len(repositorySnapshot.branches) == 0 && len(repositorySnapshot.commits) == 0 && len(repositorySnapshot.tags) == 0
}

// Provider supplies repository snapshots.
type Provider interface {
	Snapshot(executionContext context.Context) (Snapshot, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(executionContext context.Context) (Snapshot, error)

// Snapshot invokes the wrapped function.
func (providerFunc ProviderFunc) Snapshot(executionContext context.Context) (Snapshot, error) {
	return providerFunc(executionContext)
}

// StaticProvider returns a fixed in-memory snapshot.
type StaticProvider struct {
	repositorySnapshot Snapshot
}

// NewStaticProvider wraps an already materialized snapshot.
func NewStaticProvider(repositorySnapshot Snapshot) *StaticProvider {
	return &StaticProvider{repositorySnapshot: repositorySnapshot}
}

// Snapshot returns the wrapped snapshot.
func (provider *StaticProvider) Snapshot(executionContext context.Context) (Snapshot, error) {
	if executionContext != nil {
		if contextError := executionContext.Err(); contextError != nil {
			return Snapshot{}, contextError
		}
	}
	return provider.repositorySnapshot, nil
}
