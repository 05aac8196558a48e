package gitcli

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/flowscout/internal/execshell"
	"github.com/temirov/flowscout/internal/snapshot"
)

const (
	gitRevParseSubcommandConstant        = "rev-parse"
	gitWorkTreeFlagConstant              = "--is-inside-work-tree"
	gitForEachRefSubcommandConstant      = "for-each-ref"
	gitLogSubcommandConstant             = "log"
	gitBranchesFlagConstant              = "--branches"
	gitRemotesFlagConstant               = "--remotes"
	gitExcludeRemoteHeadFlagConstant     = "--exclude=*/HEAD"
	gitSourceFlagConstant                = "--source"
	gitMergesFlagConstant                = "--merges"
	gitReverseFlagConstant               = "--reverse"
	gitMaxCountFlagTemplateConstant      = "--max-count=%d"
	gitSinceFlagTemplateConstant         = "--since=%s"
	gitBranchRefFormatConstant           = "--format=%(refname)"
	gitTagRefFormatConstant              = "--format=%(refname:short)%09%(creatordate:iso-strict)"
	gitCommitLogFormatConstant           = "--format=%S%x09%cI%x09%s"
	gitMergeLogFormatConstant            = "--format=%cI%x09%P%x09%s"
	gitCommitTimeFormatConstant          = "--format=%cI"
	gitRangeTemplateConstant             = "%s..%s"
	headsNamespaceConstant               = "refs/heads/"
	remotesNamespaceConstant             = "refs/remotes/"
	tagsNamespaceConstant                = "refs/tags/"
	localBranchesNamespaceConstant       = "refs/heads"
	remoteBranchesNamespaceConstant      = "refs/remotes"
	tagNamespaceConstant                 = "refs/tags"
	headReferenceNameConstant            = "HEAD"
	workTreeConfirmationConstant         = "true"
	fieldSeparatorConstant               = "\t"
	lineSeparatorConstant                = "\n"
	referenceSeparatorConstant           = "/"
	hoursPerDayConstant                  = 24
	defaultMergeInferenceLimit           = 200
	mergeRangeConcurrencyLimit           = 4
	notGitRepositoryMessageConstant      = "not a git repository"
	notGitRepositoryTemplateConstant     = "%w: %s"
	executorNotConfiguredMessageConstant = "git executor not configured"
	gitQueryErrorTemplateConstant        = "%s query failed: %w"
	malformedLineTemplateConstant        = "malformed %s line %q"
	timestampParseErrorTemplateConstant  = "invalid %s timestamp %q: %w"
	branchQueryLabelConstant             = "branch"
	tagQueryLabelConstant                = "tag"
	commitQueryLabelConstant             = "commit"
	mergeQueryLabelConstant              = "merge"
	mergeRangeQueryLabelConstant         = "merge range"
	repositoryFieldConstant              = "repository"
	branchCountFieldConstant             = "branches"
	commitCountFieldConstant             = "commits"
	tagCountFieldConstant                = "tags"
	inferredBranchCountFieldConstant     = "inferred_deleted_branches"
	snapshotCollectedMessageConstant     = "Collected git history"
)

var (
	// ErrNotGitRepository indicates the configured path is not inside a git work tree.
	ErrNotGitRepository = errors.New(notGitRepositoryMessageConstant)
	// ErrGitExecutorNotConfigured indicates the provider was constructed without an executor.
	ErrGitExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

var (
	pullRequestMergePattern = regexp.MustCompile(`^Merge pull request #\d+ from [^/\s]+/(\S+)`)
	branchMergePattern      = regexp.MustCompile(`^Merge (?:remote-tracking )?branch '([^']+)'`)
)

// GitExecutor exposes the git execution used by the provider.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Options configures history collection.
type Options struct {
	RepositoryPath string
	// HistoryDays limits commits to the trailing window; zero reads the full history.
	HistoryDays int
	// MergeInferenceLimit caps the merge commits inspected for deleted branches.
	MergeInferenceLimit int
	ReferenceTime       time.Time
}

// Provider collects snapshots through the git executable.
type Provider struct {
	executor GitExecutor
	logger   *zap.Logger
	options  Options
}

// NewProvider constructs a Provider.
func NewProvider(executor GitExecutor, logger *zap.Logger, options Options) (*Provider, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.MergeInferenceLimit <= 0 {
		options.MergeInferenceLimit = defaultMergeInferenceLimit
	}
	return &Provider{executor: executor, logger: logger, options: options}, nil
}

type mergeRecord struct {
	mergedAt     time.Time
	firstParent  string
	mergedParent string
	sourceBranch string
}

// Snapshot implements snapshot.Provider.
func (provider *Provider) Snapshot(executionContext context.Context) (snapshot.Snapshot, error) {
	if verificationError := provider.verifyRepository(executionContext); verificationError != nil {
		return snapshot.Snapshot{}, verificationError
	}

	var (
		branchNames []string
		tags        []snapshot.Tag
		commits     []snapshot.Commit
		merges      []mergeRecord
	)

	queryGroup, groupContext := errgroup.WithContext(executionContext)
	queryGroup.Go(func() error {
		var queryError error
		branchNames, queryError = provider.listBranches(groupContext)
		return queryError
	})
	queryGroup.Go(func() error {
		var queryError error
		tags, queryError = provider.listTags(groupContext)
		return queryError
	})
	queryGroup.Go(func() error {
		var queryError error
		commits, queryError = provider.listCommits(groupContext)
		return queryError
	})
	queryGroup.Go(func() error {
		var queryError error
		merges, queryError = provider.listMerges(groupContext)
		return queryError
	})
	if waitError := queryGroup.Wait(); waitError != nil {
		return snapshot.Snapshot{}, waitError
	}

	builder := snapshot.NewBuilder()
	if !provider.options.ReferenceTime.IsZero() {
		builder.WithFallbackCreationTime(provider.options.ReferenceTime)
	}
	for _, branchName := range branchNames {
		builder.AddBranch(snapshot.Branch{Name: branchName})
	}
	for _, commit := range commits {
		builder.AddCommit(commit)
	}
	for _, tag := range tags {
		builder.AddTag(tag)
	}

	inferredBranches, inferenceError := provider.inferDeletedBranches(executionContext, builder, merges)
	if inferenceError != nil {
		return snapshot.Snapshot{}, inferenceError
	}
	for _, inferredBranch := range inferredBranches {
		builder.AddBranch(inferredBranch)
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
		zap.Int(inferredBranchCountFieldConstant, len(inferredBranches)),
	)
	return repositorySnapshot, nil
}

func (provider *Provider) verifyRepository(executionContext context.Context) error {
	executionResult, executionError := provider.runGit(executionContext, gitRevParseSubcommandConstant, gitWorkTreeFlagConstant)
	if executionError != nil {
		var commandFailure execshell.CommandFailedError
		if errors.As(executionError, &commandFailure) {
			return fmt.Errorf(notGitRepositoryTemplateConstant, ErrNotGitRepository, provider.options.RepositoryPath)
		}
		return executionError
	}
	if strings.TrimSpace(executionResult.StandardOutput) != workTreeConfirmationConstant {
		return fmt.Errorf(notGitRepositoryTemplateConstant, ErrNotGitRepository, provider.options.RepositoryPath)
	}
	return nil
}

func (provider *Provider) listBranches(executionContext context.Context) ([]string, error) {
	executionResult, executionError := provider.runGit(executionContext, gitForEachRefSubcommandConstant, gitBranchRefFormatConstant, localBranchesNamespaceConstant, remoteBranchesNamespaceConstant)
	if executionError != nil {
		return nil, fmt.Errorf(gitQueryErrorTemplateConstant, branchQueryLabelConstant, executionError)
	}

	branchNames := make([]string, 0)
	for _, line := range splitLines(executionResult.StandardOutput) {
		if branchName := normalizeReference(line); len(branchName) > 0 {
			branchNames = append(branchNames, branchName)
		}
	}
	return branchNames, nil
}

func (provider *Provider) listTags(executionContext context.Context) ([]snapshot.Tag, error) {
	executionResult, executionError := provider.runGit(executionContext, gitForEachRefSubcommandConstant, gitTagRefFormatConstant, tagNamespaceConstant)
	if executionError != nil {
		return nil, fmt.Errorf(gitQueryErrorTemplateConstant, tagQueryLabelConstant, executionError)
	}

	tags := make([]snapshot.Tag, 0)
	for _, line := range splitLines(executionResult.StandardOutput) {
		fields := strings.SplitN(line, fieldSeparatorConstant, 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf(malformedLineTemplateConstant, tagQueryLabelConstant, line)
		}
		tagTime, parseError := parseGitTime(tagQueryLabelConstant, fields[1])
		if parseError != nil {
			return nil, parseError
		}
		tags = append(tags, snapshot.Tag{Name: fields[0], Timestamp: tagTime})
	}
	return tags, nil
}

func (provider *Provider) listCommits(executionContext context.Context) ([]snapshot.Commit, error) {
	arguments := append([]string{gitLogSubcommandConstant}, branchRevisionArguments()...)
	arguments = append(arguments, gitSourceFlagConstant, gitCommitLogFormatConstant)
	if sinceArgument, windowed := provider.sinceArgument(); windowed {
		arguments = append(arguments, sinceArgument)
	}

	executionResult, executionError := provider.runGit(executionContext, arguments...)
	if executionError != nil {
		return nil, fmt.Errorf(gitQueryErrorTemplateConstant, commitQueryLabelConstant, executionError)
	}

	commits := make([]snapshot.Commit, 0)
	for _, line := range splitLines(executionResult.StandardOutput) {
		fields := strings.SplitN(line, fieldSeparatorConstant, 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf(malformedLineTemplateConstant, commitQueryLabelConstant, line)
		}
		commitTime, parseError := parseGitTime(commitQueryLabelConstant, fields[1])
		if parseError != nil {
			return nil, parseError
		}
		branchName := normalizeReference(fields[0])
		if len(branchName) == 0 {
			continue
		}
		message := ""
		if len(fields) == 3 {
			message = fields[2]
		}
		commits = append(commits, snapshot.Commit{Branch: branchName, Message: message, Timestamp: commitTime})
	}
	return commits, nil
}

func (provider *Provider) listMerges(executionContext context.Context) ([]mergeRecord, error) {
	arguments := append([]string{gitLogSubcommandConstant}, branchRevisionArguments()...)
	arguments = append(arguments,
		gitMergesFlagConstant,
		fmt.Sprintf(gitMaxCountFlagTemplateConstant, provider.options.MergeInferenceLimit),
		gitMergeLogFormatConstant,
	)
	executionResult, executionError := provider.runGit(executionContext, arguments...)
	if executionError != nil {
		return nil, fmt.Errorf(gitQueryErrorTemplateConstant, mergeQueryLabelConstant, executionError)
	}

	merges := make([]mergeRecord, 0)
	for _, line := range splitLines(executionResult.StandardOutput) {
		fields := strings.SplitN(line, fieldSeparatorConstant, 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf(malformedLineTemplateConstant, mergeQueryLabelConstant, line)
		}
		sourceBranch := extractMergedBranch(fields[2])
		parents := strings.Fields(fields[1])
		if len(sourceBranch) == 0 || len(parents) < 2 {
			continue
		}
		mergedAt, parseError := parseGitTime(mergeQueryLabelConstant, fields[0])
		if parseError != nil {
			return nil, parseError
		}
		merges = append(merges, mergeRecord{
			mergedAt:     mergedAt,
			firstParent:  parents[0],
			mergedParent: parents[1],
			sourceBranch: sourceBranch,
		})
	}
	return merges, nil
}

// inferDeletedBranches turns merges of branches that no longer exist as refs
// into deleted branches. The most recent merge of a branch wins.
func (provider *Provider) inferDeletedBranches(executionContext context.Context, builder *snapshot.Builder, merges []mergeRecord) ([]snapshot.Branch, error) {
	latestMergeByBranch := map[string]mergeRecord{}
	branchOrder := make([]string, 0)
	for _, merge := range merges {
		if builder.HasBranch(merge.sourceBranch) {
			continue
		}
		existingMerge, recorded := latestMergeByBranch[merge.sourceBranch]
		if !recorded {
			branchOrder = append(branchOrder, merge.sourceBranch)
		}
		if !recorded || merge.mergedAt.After(existingMerge.mergedAt) {
			latestMergeByBranch[merge.sourceBranch] = merge
		}
	}

	inferredBranches := make([]snapshot.Branch, len(branchOrder))
	rangeGroup, groupContext := errgroup.WithContext(executionContext)
	rangeGroup.SetLimit(mergeRangeConcurrencyLimit)
	for branchIndex, branchName := range branchOrder {
		merge := latestMergeByBranch[branchName]
		rangeGroup.Go(func() error {
			createdAt, rangeError := provider.oldestContributedCommit(groupContext, merge)
			if rangeError != nil {
				return rangeError
			}
			inferredBranches[branchIndex] = snapshot.Branch{Name: branchName, Created: createdAt, Deleted: merge.mergedAt}
			return nil
		})
	}
	if waitError := rangeGroup.Wait(); waitError != nil {
		return nil, waitError
	}
	return inferredBranches, nil
}

// oldestContributedCommit returns the commit time of the oldest commit in
// first-parent..merged-parent, or the merge time when the range is empty.
func (provider *Provider) oldestContributedCommit(executionContext context.Context, merge mergeRecord) (time.Time, error) {
	executionResult, executionError := provider.runGit(executionContext,
		gitLogSubcommandConstant,
		gitReverseFlagConstant,
		gitCommitTimeFormatConstant,
		fmt.Sprintf(gitRangeTemplateConstant, merge.firstParent, merge.mergedParent),
	)
	if executionError != nil {
		return time.Time{}, fmt.Errorf(gitQueryErrorTemplateConstant, mergeRangeQueryLabelConstant, executionError)
	}

	lines := splitLines(executionResult.StandardOutput)
	if len(lines) == 0 {
		return merge.mergedAt, nil
	}
	oldestCommit, parseError := parseGitTime(mergeRangeQueryLabelConstant, lines[0])
	if parseError != nil {
		return time.Time{}, parseError
	}
	if oldestCommit.After(merge.mergedAt) {
		return merge.mergedAt, nil
	}
	return oldestCommit, nil
}

func (provider *Provider) sinceArgument() (string, bool) {
	if provider.options.HistoryDays <= 0 {
		return "", false
	}
	referenceTime := provider.options.ReferenceTime
	if referenceTime.IsZero() {
		referenceTime = time.Now()
	}
	since := referenceTime.Add(-time.Duration(provider.options.HistoryDays) * hoursPerDayConstant * time.Hour)
	return fmt.Sprintf(gitSinceFlagTemplateConstant, since.Format(time.RFC3339)), true
}

func (provider *Provider) runGit(executionContext context.Context, arguments ...string) (execshell.ExecutionResult, error) {
	return provider.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: provider.options.RepositoryPath,
	})
}

// branchRevisionArguments selects local and remote branches for history
// walks. Tags and symbolic remote HEADs are left out so --source always
// names a branch.
func branchRevisionArguments() []string {
	return []string{gitBranchesFlagConstant, gitExcludeRemoteHeadFlagConstant, gitRemotesFlagConstant}
}

// normalizeReference maps a full reference to its branch name: refs/heads/x
// and refs/remotes/<remote>/x both become x. Tags and HEAD are not branches
// and map to the empty string.
func normalizeReference(reference string) string {
	trimmedReference := strings.TrimSpace(reference)
	branchName := trimmedReference
	switch {
	case strings.HasPrefix(trimmedReference, headsNamespaceConstant):
		branchName = strings.TrimPrefix(trimmedReference, headsNamespaceConstant)
	case strings.HasPrefix(trimmedReference, remotesNamespaceConstant):
		remoteQualified := strings.TrimPrefix(trimmedReference, remotesNamespaceConstant)
		separatorIndex := strings.Index(remoteQualified, referenceSeparatorConstant)
		if separatorIndex < 0 {
			return ""
		}
		branchName = remoteQualified[separatorIndex+1:]
	case strings.HasPrefix(trimmedReference, tagsNamespaceConstant):
		return ""
	}
	if branchName == headReferenceNameConstant {
		return ""
	}
	return branchName
}

func extractMergedBranch(subject string) string {
	for _, pattern := range []*regexp.Regexp{pullRequestMergePattern, branchMergePattern} {
		if matches := pattern.FindStringSubmatch(subject); len(matches) == 2 {
			return strings.TrimSpace(matches[1])
		}
	}
	return ""
}

func parseGitTime(label string, rawTime string) (time.Time, error) {
	parsedTime, parseError := time.Parse(time.RFC3339, strings.TrimSpace(rawTime))
	if parseError != nil {
		return time.Time{}, fmt.Errorf(timestampParseErrorTemplateConstant, label, rawTime, parseError)
	}
	return parsedTime, nil
}

func splitLines(output string) []string {
	rawLines := strings.Split(output, lineSeparatorConstant)
	lines := make([]string, 0, len(rawLines))
	for _, rawLine := range rawLines {
		trimmedLine := strings.TrimRight(rawLine, "\r")
		if len(strings.TrimSpace(trimmedLine)) == 0 {
			continue
		}
		lines = append(lines, trimmedLine)
	}
	return lines
}
