package classifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/temirov/flowscout/internal/snapshot"
)

const (
	developBranchNameConstant          = "develop"
	developmentBranchNameConstant      = "development"
	mainBranchNameConstant             = "main"
	masterBranchNameConstant           = "master"
	releaseBranchPrefixConstant        = "release/"
	hotfixBranchPrefixConstant         = "hotfix/"
	featureBranchPrefixConstant        = "feature/"
	versionTagPrefixConstant           = "v"
	pullRequestMergeMarkerConstant     = "Merge pull request"
	pullRequestShortMarkerConstant     = "Merge PR"
	squashMergeMarkerConstant          = "(#"
	featureFlagMarkerConstant          = "feature flag"
	featureToggleMarkerConstant        = "feature toggle"
	mainlineCommitShareThreshold       = 0.5
	shortLivedFeatureBranchLifespan    = 7 * 24 * time.Hour
	veryShortLivedBranchLifespan       = 24 * time.Hour
	percentageMultiplierConstant       = 100
	developBranchEvidenceConstant      = "Found develop branch"
	releaseBranchesEvidenceTemplate    = "Found %d release branches"
	hotfixBranchesEvidenceConstant     = "Found hotfix branches"
	versionTagsEvidenceTemplate        = "Found %d version tags"
	pullRequestMergesEvidenceTemplate  = "Found %d PR merges"
	shortLivedFeaturesEvidenceTemplate = "%d feature branches < 7 days"
	squashMergeEvidenceConstant        = "Found squash-merge patterns"
	noDevelopBranchEvidenceConstant    = "No develop branch"
	mainlineCommitsEvidenceTemplate    = "%d%% commits directly to main"
	veryShortLivedEvidenceTemplate     = "%d branches lived < 1 day"
	featureFlagEvidenceConstant        = "Found feature flag usage"
)

// Signal is the outcome of evaluating one rule predicate against a snapshot.
type Signal struct {
	Matched  bool
	Quantity int
}

// ScoringRule is one weighted signal of a workflow rule table. EvidenceTemplate
// is rendered with the signal quantity when Quantified is set.
type ScoringRule struct {
	Name             string
	Weight           float64
	Evaluate         func(repositorySnapshot snapshot.Snapshot) Signal
	EvidenceTemplate string
	Quantified       bool
}

// Evidence renders the evidence string for a matched signal.
func (rule ScoringRule) Evidence(signal Signal) string {
	if rule.Quantified {
		return fmt.Sprintf(rule.EvidenceTemplate, signal.Quantity)
	}
	return rule.EvidenceTemplate
}

// WorkflowRuleSet binds a workflow to its ordered rule table.
type WorkflowRuleSet struct {
	Workflow WorkflowType
	Rules    []ScoringRule
}

// DefaultRuleSets returns the built-in rule tables in evaluation order.
func DefaultRuleSets() []WorkflowRuleSet {
	ruleSets := make([]WorkflowRuleSet, 0, len(evaluationOrder))
	for _, workflow := range evaluationOrder {
		ruleSets = append(ruleSets, WorkflowRuleSet{Workflow: workflow, Rules: RulesFor(workflow)})
	}
	return ruleSets
}

// RulesFor returns the built-in rule table of a workflow, or nil for workflows that are not scored.
func RulesFor(workflow WorkflowType) []ScoringRule {
	switch workflow {
	case WorkflowTypeGitFlow:
		return gitFlowRules()
	case WorkflowTypeGitHubFlow:
		return gitHubFlowRules()
	case WorkflowTypeTrunkBased:
		return trunkBasedRules()
	default:
		return nil
	}
}

// ScoreRules evaluates an ordered rule table and accumulates weights and evidence.
func ScoreRules(repositorySnapshot snapshot.Snapshot, rules []ScoringRule) WorkflowScore {
	workflowScore := WorkflowScore{Evidence: make([]string, 0, len(rules))}
	for _, rule := range rules {
		if rule.Evaluate == nil {
			continue
		}
		signal := rule.Evaluate(repositorySnapshot)
		if !signal.Matched {
			continue
		}
		workflowScore.Score += rule.Weight
		workflowScore.Evidence = append(workflowScore.Evidence, rule.Evidence(signal))
	}
	return workflowScore
}

func gitFlowRules() []ScoringRule {
	return []ScoringRule{
		{
			Name:             "develop_branch",
			Weight:           0.3,
			Evaluate:         developBranchPresent,
			EvidenceTemplate: developBranchEvidenceConstant,
		},
		{
			Name:             "release_branches",
			Weight:           0.3,
			Evaluate:         branchesWithPrefix(releaseBranchPrefixConstant),
			EvidenceTemplate: releaseBranchesEvidenceTemplate,
			Quantified:       true,
		},
		{
			Name:             "hotfix_branches",
			Weight:           0.2,
			Evaluate:         branchesWithPrefix(hotfixBranchPrefixConstant),
			EvidenceTemplate: hotfixBranchesEvidenceConstant,
		},
		{
			Name:             "version_tags",
			Weight:           0.2,
			Evaluate:         versionTags,
			EvidenceTemplate: versionTagsEvidenceTemplate,
			Quantified:       true,
		},
	}
}

func gitHubFlowRules() []ScoringRule {
	return []ScoringRule{
		{
			Name:             "pull_request_merges",
			Weight:           0.3,
			Evaluate:         commitsContainingAny(pullRequestMergeMarkerConstant, pullRequestShortMarkerConstant),
			EvidenceTemplate: pullRequestMergesEvidenceTemplate,
			Quantified:       true,
		},
		{
			Name:             "short_lived_feature_branches",
			Weight:           0.3,
			Evaluate:         shortLivedFeatureBranches,
			EvidenceTemplate: shortLivedFeaturesEvidenceTemplate,
			Quantified:       true,
		},
		{
			Name:             "squash_merges",
			Weight:           0.2,
			Evaluate:         commitsContainingAny(squashMergeMarkerConstant),
			EvidenceTemplate: squashMergeEvidenceConstant,
		},
		{
			Name:             "no_develop_branch",
			Weight:           0.2,
			Evaluate:         developBranchAbsent,
			EvidenceTemplate: noDevelopBranchEvidenceConstant,
		},
	}
}

func trunkBasedRules() []ScoringRule {
	return []ScoringRule{
		{
			Name:             "mainline_commits",
			Weight:           0.4,
			Evaluate:         mainlineCommitShare,
			EvidenceTemplate: mainlineCommitsEvidenceTemplate,
			Quantified:       true,
		},
		{
			Name:             "very_short_lived_branches",
			Weight:           0.3,
			Evaluate:         veryShortLivedBranches,
			EvidenceTemplate: veryShortLivedEvidenceTemplate,
			Quantified:       true,
		},
		{
			Name:             "feature_flags",
			Weight:           0.3,
			Evaluate:         featureFlagCommits,
			EvidenceTemplate: featureFlagEvidenceConstant,
		},
	}
}

func isDevelopBranchName(branchName string) bool {
	return branchName == developBranchNameConstant || branchName == developmentBranchNameConstant
}

func isMainlineBranchName(branchName string) bool {
	return branchName == mainBranchNameConstant || branchName == masterBranchNameConstant
}

func countDevelopBranches(repositorySnapshot snapshot.Snapshot) int {
	developCount := 0
	for _, branch := range repositorySnapshot.Branches() {
		if isDevelopBranchName(branch.Name) {
			developCount++
		}
	}
	return developCount
}

func developBranchPresent(repositorySnapshot snapshot.Snapshot) Signal {
	developCount := countDevelopBranches(repositorySnapshot)
	return Signal{Matched: developCount > 0, Quantity: developCount}
}

func developBranchAbsent(repositorySnapshot snapshot.Snapshot) Signal {
	return Signal{Matched: countDevelopBranches(repositorySnapshot) == 0}
}

func branchesWithPrefix(prefix string) func(snapshot.Snapshot) Signal {
	return func(repositorySnapshot snapshot.Snapshot) Signal {
		matchingCount := 0
		for _, branch := range repositorySnapshot.Branches() {
			if strings.HasPrefix(branch.Name, prefix) {
				matchingCount++
			}
		}
		return Signal{Matched: matchingCount > 0, Quantity: matchingCount}
	}
}

func versionTags(repositorySnapshot snapshot.Snapshot) Signal {
	versionTagCount := 0
	for _, tag := range repositorySnapshot.Tags() {
		if strings.HasPrefix(tag.Name, versionTagPrefixConstant) {
			versionTagCount++
		}
	}
	return Signal{Matched: versionTagCount > 0, Quantity: versionTagCount}
}

func commitsContainingAny(markers ...string) func(snapshot.Snapshot) Signal {
	return func(repositorySnapshot snapshot.Snapshot) Signal {
		matchingCount := 0
		for _, commit := range repositorySnapshot.Commits() {
			for _, marker := range markers {
				if strings.Contains(commit.Message, marker) {
					matchingCount++
					break
				}
			}
		}
		return Signal{Matched: matchingCount > 0, Quantity: matchingCount}
	}
}

func shortLivedFeatureBranches(repositorySnapshot snapshot.Snapshot) Signal {
	shortLivedCount := 0
	for _, branch := range repositorySnapshot.Branches() {
		if !strings.HasPrefix(branch.Name, featureBranchPrefixConstant) {
			continue
		}
		lifespan, deleted := branch.Lifespan()
		if deleted && lifespan < shortLivedFeatureBranchLifespan {
			shortLivedCount++
		}
	}
	return Signal{Matched: shortLivedCount > 0, Quantity: shortLivedCount}
}

func mainlineCommitShare(repositorySnapshot snapshot.Snapshot) Signal {
	commits := repositorySnapshot.Commits()
	if len(commits) == 0 {
		return Signal{}
	}

	mainlineCount := 0
	for _, commit := range commits {
		if isMainlineBranchName(commit.Branch) {
			mainlineCount++
		}
	}

	mainlineShare := float64(mainlineCount) / float64(len(commits))
	if mainlineShare <= mainlineCommitShareThreshold {
		return Signal{}
	}
	return Signal{Matched: true, Quantity: int(mainlineShare * percentageMultiplierConstant)}
}

// veryShortLivedBranches considers deleted branches other than main, master,
// and develop; "development" is deliberately not excluded.
func veryShortLivedBranches(repositorySnapshot snapshot.Snapshot) Signal {
	eligibleCount := 0
	veryShortLivedCount := 0
	for _, branch := range repositorySnapshot.Branches() {
		if isMainlineBranchName(branch.Name) || branch.Name == developBranchNameConstant {
			continue
		}
		lifespan, deleted := branch.Lifespan()
		if !deleted {
			continue
		}
		eligibleCount++
		if lifespan < veryShortLivedBranchLifespan {
			veryShortLivedCount++
		}
	}

	if eligibleCount == 0 || 2*veryShortLivedCount <= eligibleCount {
		return Signal{}
	}
	return Signal{Matched: true, Quantity: veryShortLivedCount}
}

func featureFlagCommits(repositorySnapshot snapshot.Snapshot) Signal {
	featureFlagCount := 0
	for _, commit := range repositorySnapshot.Commits() {
		lowercaseMessage := strings.ToLower(commit.Message)
		if strings.Contains(lowercaseMessage, featureFlagMarkerConstant) || strings.Contains(lowercaseMessage, featureToggleMarkerConstant) {
			featureFlagCount++
		}
	}
	return Signal{Matched: featureFlagCount > 0, Quantity: featureFlagCount}
}
