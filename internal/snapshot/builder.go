package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	invalidBranchLifespanMessageConstant  = "branch deleted before it was created"
	invalidBranchLifespanTemplateConstant = "%w: %s (created %s, deleted %s)"
	branchNameRequiredMessageConstant     = "branch name must be provided"
)

// ErrInvalidBranchLifespan indicates a branch whose deletion precedes its creation.
var ErrInvalidBranchLifespan = errors.New(invalidBranchLifespanMessageConstant)

// ErrBranchNameRequired indicates a branch without a name was added to a builder.
var ErrBranchNameRequired = errors.New(branchNameRequiredMessageConstant)

// Builder accumulates history records and produces an immutable Snapshot.
//
// Branches added without a creation time take the earliest commit recorded
// against them, then the fallback creation time. Branches added more than once
// are merged: the earliest creation wins and the branch stays active when any
// record reports it active.
type Builder struct {
	branchOrder          []string
	branchesByName       map[string]Branch
	commits              []Commit
	tags                 []Tag
	fallbackCreationTime time.Time
	missingNameDetected  bool
}

// NewBuilder constructs an empty Builder.
func NewBuilder() *Builder {
	return &Builder{branchesByName: map[string]Branch{}}
}

// WithFallbackCreationTime sets the creation time used for branches with no other evidence.
func (builder *Builder) WithFallbackCreationTime(fallbackCreationTime time.Time) *Builder {
	builder.fallbackCreationTime = fallbackCreationTime
	return builder
}

// AddBranch records a branch, merging it with an earlier record of the same name.
func (builder *Builder) AddBranch(branch Branch) *Builder {
	trimmedName := strings.TrimSpace(branch.Name)
	if len(trimmedName) == 0 {
		builder.missingNameDetected = true
		return builder
	}
	branch.Name = trimmedName

	existingBranch, exists := builder.branchesByName[trimmedName]
	if !exists {
		builder.branchOrder = append(builder.branchOrder, trimmedName)
		builder.branchesByName[trimmedName] = branch
		return builder
	}

	builder.branchesByName[trimmedName] = mergeBranches(existingBranch, branch)
	return builder
}

// AddCommit records a commit.
func (builder *Builder) AddCommit(commit Commit) *Builder {
	commit.Branch = strings.TrimSpace(commit.Branch)
	builder.commits = append(builder.commits, commit)
	return builder
}

// AddTag records a tag.
func (builder *Builder) AddTag(tag Tag) *Builder {
	tag.Name = strings.TrimSpace(tag.Name)
	builder.tags = append(builder.tags, tag)
	return builder
}

// HasBranch reports whether a branch with the provided name was recorded.
func (builder *Builder) HasBranch(branchName string) bool {
	_, exists := builder.branchesByName[strings.TrimSpace(branchName)]
	return exists
}

// Build resolves creation times, validates lifespans, and returns the Snapshot.
func (builder *Builder) Build() (Snapshot, error) {
	if builder.missingNameDetected {
		return Snapshot{}, ErrBranchNameRequired
	}

	earliestCommitByBranch := make(map[string]time.Time, len(builder.branchOrder))
	for _, commit := range builder.commits {
		if commit.Timestamp.IsZero() {
			continue
		}
		earliestCommit, recorded := earliestCommitByBranch[commit.Branch]
		if !recorded || commit.Timestamp.Before(earliestCommit) {
			earliestCommitByBranch[commit.Branch] = commit.Timestamp
		}
	}

	branches := make([]Branch, 0, len(builder.branchOrder))
	for _, branchName := range builder.branchOrder {
		branch := builder.branchesByName[branchName]
		if branch.Created.IsZero() {
			branch.Created = builder.resolveCreationTime(branch, earliestCommitByBranch)
		}
		if branch.IsDeleted() && branch.Deleted.Before(branch.Created) {
			return Snapshot{}, fmt.Errorf(
				invalidBranchLifespanTemplateConstant,
				ErrInvalidBranchLifespan,
				branch.Name,
				branch.Created.Format(time.RFC3339),
				branch.Deleted.Format(time.RFC3339),
			)
		}
		branches = append(branches, branch)
	}

	return New(branches, builder.commits, builder.tags), nil
}

func (builder *Builder) resolveCreationTime(branch Branch, earliestCommitByBranch map[string]time.Time) time.Time {
	if earliestCommit, recorded := earliestCommitByBranch[branch.Name]; recorded {
		if !branch.IsDeleted() || !earliestCommit.After(branch.Deleted) {
			return earliestCommit
		}
	}
	if !builder.fallbackCreationTime.IsZero() {
		if !branch.IsDeleted() || !builder.fallbackCreationTime.After(branch.Deleted) {
			return builder.fallbackCreationTime
		}
	}
	return branch.Deleted
}

func mergeBranches(existingBranch Branch, incomingBranch Branch) Branch {
	merged := existingBranch

	switch {
	case merged.Created.IsZero():
		merged.Created = incomingBranch.Created
	case !incomingBranch.Created.IsZero() && incomingBranch.Created.Before(merged.Created):
		merged.Created = incomingBranch.Created
	}

	switch {
	case !existingBranch.IsDeleted() || !incomingBranch.IsDeleted():
		merged.Deleted = time.Time{}
	case incomingBranch.Deleted.After(existingBranch.Deleted):
		merged.Deleted = incomingBranch.Deleted
	}

	return merged
}
