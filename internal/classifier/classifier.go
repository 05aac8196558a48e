package classifier

import (
	"sort"
	"time"

	"github.com/temirov/flowscout/internal/snapshot"
)

const (
	// DefaultConfidenceThreshold is the minimum winning score reported as a concrete workflow.
	DefaultConfidenceThreshold = 0.7
	// DefaultRecentWindowDays is the length of the recent migration window.
	DefaultRecentWindowDays = 30
	// historicalWindowMultiplier sizes the historical window relative to the recent one.
	historicalWindowMultiplier = 3
	hoursPerDayConstant        = 24
)

// Classifier scores snapshots against ordered workflow rule tables.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	ruleSets []WorkflowRuleSet
}

// New constructs a Classifier with the built-in rule tables.
func New() *Classifier {
	return NewWithRuleSets(DefaultRuleSets())
}

// NewWithRuleSets constructs a Classifier from custom rule tables. The slice
// order is the evaluation and tie-break order.
func NewWithRuleSets(ruleSets []WorkflowRuleSet) *Classifier {
	copiedRuleSets := make([]WorkflowRuleSet, 0, len(ruleSets))
	for _, ruleSet := range ruleSets {
		copiedRuleSets = append(copiedRuleSets, WorkflowRuleSet{
			Workflow: ruleSet.Workflow,
			Rules:    append([]ScoringRule(nil), ruleSet.Rules...),
		})
	}
	return &Classifier{ruleSets: copiedRuleSets}
}

// Score evaluates every workflow rule table in evaluation order.
func (classifier *Classifier) Score(repositorySnapshot snapshot.Snapshot) []WorkflowAssessment {
	assessments := make([]WorkflowAssessment, 0, len(classifier.ruleSets))
	for _, ruleSet := range classifier.ruleSets {
		assessments = append(assessments, WorkflowAssessment{
			Workflow:      ruleSet.Workflow,
			WorkflowScore: ScoreRules(repositorySnapshot, ruleSet.Rules),
		})
	}
	return assessments
}

// Detect selects the best scoring workflow. Ties go to the workflow evaluated
// first. A winning score below confidenceThreshold is reported as unclear while
// keeping the winner's confidence and evidence. A negative threshold selects
// DefaultConfidenceThreshold.
func (classifier *Classifier) Detect(repositorySnapshot snapshot.Snapshot, confidenceThreshold float64) ClassificationResult {
	if confidenceThreshold < 0 {
		confidenceThreshold = DefaultConfidenceThreshold
	}

	assessments := classifier.Score(repositorySnapshot)
	if len(assessments) == 0 {
		return ClassificationResult{WorkflowType: WorkflowTypeUnclear, Evidence: []string{}}
	}

	winningAssessment := assessments[0]
	for _, assessment := range assessments[1:] {
		if assessment.Score > winningAssessment.Score {
			winningAssessment = assessment
		}
	}

	result := ClassificationResult{
		WorkflowType: winningAssessment.Workflow,
		Confidence:   winningAssessment.Score,
		Evidence:     winningAssessment.Evidence,
	}
	if result.Confidence < confidenceThreshold {
		result.WorkflowType = WorkflowTypeUnclear
	}
	return result
}

// DetectMigration compares the branches targeted by commits in the recent
// window (after referenceTime minus recentWindowDays) with those in the
// preceding historical window (back to three windows before referenceTime).
// Commits older than the historical window are ignored. A non-positive
// window selects DefaultRecentWindowDays.
func (classifier *Classifier) DetectMigration(repositorySnapshot snapshot.Snapshot, referenceTime time.Time, recentWindowDays int) MigrationResult {
	if recentWindowDays <= 0 {
		recentWindowDays = DefaultRecentWindowDays
	}

	recentWindow := time.Duration(recentWindowDays) * hoursPerDayConstant * time.Hour
	recentCutoff := referenceTime.Add(-recentWindow)
	historicalCutoff := referenceTime.Add(-historicalWindowMultiplier * recentWindow)

	recentBranches := map[string]struct{}{}
	historicalBranches := map[string]struct{}{}
	for _, commit := range repositorySnapshot.Commits() {
		switch {
		case commit.Timestamp.After(recentCutoff):
			recentBranches[commit.Branch] = struct{}{}
		case commit.Timestamp.After(historicalCutoff):
			historicalBranches[commit.Branch] = struct{}{}
		}
	}

	if branchSetsEqual(recentBranches, historicalBranches) {
		return MigrationResult{MigrationDetected: false}
	}

	return MigrationResult{
		MigrationDetected: true,
		RecentPattern:     sortedBranchNames(recentBranches),
		HistoricalPattern: sortedBranchNames(historicalBranches),
	}
}

func branchSetsEqual(firstSet map[string]struct{}, secondSet map[string]struct{}) bool {
	if len(firstSet) != len(secondSet) {
		return false
	}
	for branchName := range firstSet {
		if _, present := secondSet[branchName]; !present {
			return false
		}
	}
	return true
}

func sortedBranchNames(branchSet map[string]struct{}) []string {
	branchNames := make([]string, 0, len(branchSet))
	for branchName := range branchSet {
		branchNames = append(branchNames, branchName)
	}
	sort.Strings(branchNames)
	return branchNames
}
