// Package gogit builds repository snapshots by reading the object database
// with go-git, without invoking the git executable.
package gogit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/temirov/flowscout/internal/snapshot"
)

const (
	mainBranchNameConstant           = "main"
	masterBranchNameConstant         = "master"
	remoteHeadNameConstant           = "HEAD"
	referenceSeparatorConstant       = "/"
	messageLineSeparatorConstant     = "\n"
	hoursPerDayConstant              = 24
	openRepositoryErrorTemplate      = "%w: %s: %v"
	listReferencesErrorTemplate      = "failed to list references: %w"
	readCommitErrorTemplate          = "failed to read commit %s: %w"
	resolveTagErrorTemplate          = "failed to resolve tag %s: %w"
	notGitRepositoryMessageConstant  = "not a git repository"
	repositoryFieldConstant          = "repository"
	branchCountFieldConstant         = "branches"
	commitCountFieldConstant         = "commits"
	tagCountFieldConstant            = "tags"
	snapshotCollectedMessageConstant = "Collected git history"
)

// ErrNotGitRepository indicates the configured path does not contain a repository.
var ErrNotGitRepository = errors.New(notGitRepositoryMessageConstant)

// Options configures history collection.
type Options struct {
	RepositoryPath string
	// HistoryDays stops history walks at commits older than the trailing window; zero walks everything.
	HistoryDays   int
	ReferenceTime time.Time
}

// Provider collects snapshots through go-git.
type Provider struct {
	logger  *zap.Logger
	options Options
}

// NewProvider constructs a Provider.
func NewProvider(logger *zap.Logger, options Options) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{logger: logger, options: options}
}

type branchTip struct {
	name string
	hash plumbing.Hash
}

// Snapshot implements snapshot.Provider. Histories are walked from the
// default branch first and each commit is attributed to the first branch
// that reaches it.
func (provider *Provider) Snapshot(executionContext context.Context) (snapshot.Snapshot, error) {
	repository, openError := git.PlainOpenWithOptions(provider.options.RepositoryPath, &git.PlainOpenOptions{DetectDotGit: true})
	if openError != nil {
		return snapshot.Snapshot{}, fmt.Errorf(openRepositoryErrorTemplate, ErrNotGitRepository, provider.options.RepositoryPath, openError)
	}

	branchTips, tags, referenceError := provider.collectReferences(repository)
	if referenceError != nil {
		return snapshot.Snapshot{}, referenceError
	}

	builder := snapshot.NewBuilder()
	if !provider.options.ReferenceTime.IsZero() {
		builder.WithFallbackCreationTime(provider.options.ReferenceTime)
	}
	for _, tip := range branchTips {
		builder.AddBranch(snapshot.Branch{Name: tip.name})
	}
	for _, tag := range tags {
		builder.AddTag(tag)
	}

	since, windowed := provider.historyCutoff()
	visitedCommits := map[plumbing.Hash]struct{}{}
	for _, tip := range branchTips {
		if contextError := executionContext.Err(); contextError != nil {
			return snapshot.Snapshot{}, contextError
		}
		commits, walkError := walkBranch(repository, tip, visitedCommits, since, windowed)
		if walkError != nil {
			return snapshot.Snapshot{}, walkError
		}
		for _, commit := range commits {
			builder.AddCommit(commit)
		}
	}

	repositorySnapshot, buildError := builder.Build()
	if buildError != nil {
		return snapshot.Snapshot{}, buildError
	}

	counts := repositorySnapshot.Counts()
	provider.logger.Debug(snapshotCollectedMessageConstant,
		zap.String(repositoryFieldConstant, provider.options.RepositoryPath),
		zap.Int(branchCountFieldConstant, counts.Branches),
		zap.Int(commitCountFieldConstant, counts.Commits),
		zap.Int(tagCountFieldConstant, counts.Tags),
	)
	return repositorySnapshot, nil
}

func (provider *Provider) collectReferences(repository *git.Repository) ([]branchTip, []snapshot.Tag, error) {
	references, listError := repository.References()
	if listError != nil {
		return nil, nil, fmt.Errorf(listReferencesErrorTemplate, listError)
	}
	defer references.Close()

	tipsByName := map[string]plumbing.Hash{}
	tags := make([]snapshot.Tag, 0)
	iterationError := references.ForEach(func(reference *plumbing.Reference) error {
		if reference.Type() != plumbing.HashReference {
			return nil
		}
		referenceName := reference.Name()
		switch {
		case referenceName.IsBranch():
			tipsByName[referenceName.Short()] = reference.Hash()
		case referenceName.IsRemote():
			branchName := stripRemoteName(referenceName.Short())
			if branchName == remoteHeadNameConstant || len(branchName) == 0 {
				return nil
			}
			if _, local := tipsByName[branchName]; !local {
				tipsByName[branchName] = reference.Hash()
			}
		case referenceName.IsTag():
			tagTime, resolveError := resolveTagTime(repository, reference.Hash())
			if resolveError != nil {
				return fmt.Errorf(resolveTagErrorTemplate, referenceName.Short(), resolveError)
			}
			tags = append(tags, snapshot.Tag{Name: referenceName.Short(), Timestamp: tagTime})
		}
		return nil
	})
	if iterationError != nil {
		return nil, nil, iterationError
	}

	sort.Slice(tags, func(firstIndex int, secondIndex int) bool {
		return tags[firstIndex].Name < tags[secondIndex].Name
	})
	return orderBranchTips(tipsByName), tags, nil
}

func (provider *Provider) historyCutoff() (time.Time, bool) {
	if provider.options.HistoryDays <= 0 {
		return time.Time{}, false
	}
	referenceTime := provider.options.ReferenceTime
	if referenceTime.IsZero() {
		referenceTime = time.Now()
	}
	return referenceTime.Add(-time.Duration(provider.options.HistoryDays) * hoursPerDayConstant * time.Hour), true
}

// orderBranchTips puts main and master first, followed by the remaining branches by name.
func orderBranchTips(tipsByName map[string]plumbing.Hash) []branchTip {
	tips := make([]branchTip, 0, len(tipsByName))
	for branchName, hash := range tipsByName {
		tips = append(tips, branchTip{name: branchName, hash: hash})
	}
	sort.Slice(tips, func(firstIndex int, secondIndex int) bool {
		firstRank := branchRank(tips[firstIndex].name)
		secondRank := branchRank(tips[secondIndex].name)
		if firstRank != secondRank {
			return firstRank < secondRank
		}
		return tips[firstIndex].name < tips[secondIndex].name
	})
	return tips
}

func branchRank(branchName string) int {
	switch branchName {
	case mainBranchNameConstant:
		return 0
	case masterBranchNameConstant:
		return 1
	default:
		return 2
	}
}

// walkBranch collects the commits reachable from the branch tip that no
// earlier branch reached. Walks stop at visited commits and at commits older
// than the cutoff.
func walkBranch(repository *git.Repository, tip branchTip, visitedCommits map[plumbing.Hash]struct{}, since time.Time, windowed bool) ([]snapshot.Commit, error) {
	commits := make([]snapshot.Commit, 0)
	pending := []plumbing.Hash{tip.hash}
	for len(pending) > 0 {
		hash := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if _, visited := visitedCommits[hash]; visited {
			continue
		}
		visitedCommits[hash] = struct{}{}

		commitObject, readError := repository.CommitObject(hash)
		if readError != nil {
			return nil, fmt.Errorf(readCommitErrorTemplate, hash.String(), readError)
		}
		commitTime := commitObject.Committer.When
		if windowed && commitTime.Before(since) {
			continue
		}

		commits = append(commits, snapshot.Commit{Branch: tip.name, Message: commitSubject(commitObject), Timestamp: commitTime})
		pending = append(pending, commitObject.ParentHashes...)
	}
	return commits, nil
}

func resolveTagTime(repository *git.Repository, hash plumbing.Hash) (time.Time, error) {
	tagObject, tagError := repository.TagObject(hash)
	switch {
	case tagError == nil:
		return tagObject.Tagger.When, nil
	case !errors.Is(tagError, plumbing.ErrObjectNotFound):
		return time.Time{}, tagError
	}

	commitObject, commitError := repository.CommitObject(hash)
	if commitError != nil {
		return time.Time{}, commitError
	}
	return commitObject.Committer.When, nil
}

func commitSubject(commitObject *object.Commit) string {
	return strings.TrimSpace(strings.SplitN(commitObject.Message, messageLineSeparatorConstant, 2)[0])
}

func stripRemoteName(remoteQualifiedName string) string {
	separatorIndex := strings.Index(remoteQualifiedName, referenceSeparatorConstant)
	if separatorIndex < 0 {
		return remoteQualifiedName
	}
	return remoteQualifiedName[separatorIndex+1:]
}
