package classifier

const (
	workflowGitFlowStringConstant    = "gitflow"
	workflowGitHubFlowStringConstant = "github_flow"
	workflowTrunkBasedStringConstant = "trunk_based"
	workflowUnclearStringConstant    = "unclear"
	workflowCustomStringConstant     = "custom"
)

// WorkflowType identifies a branching workflow pattern.
type WorkflowType string

// Known workflow identifiers.
const (
	WorkflowTypeGitFlow    WorkflowType = WorkflowType(workflowGitFlowStringConstant)
	WorkflowTypeGitHubFlow WorkflowType = WorkflowType(workflowGitHubFlowStringConstant)
	WorkflowTypeTrunkBased WorkflowType = WorkflowType(workflowTrunkBasedStringConstant)
	WorkflowTypeUnclear    WorkflowType = WorkflowType(workflowUnclearStringConstant)
	// WorkflowTypeCustom is never produced by detection; it is reachable only through manual selection.
	WorkflowTypeCustom WorkflowType = WorkflowType(workflowCustomStringConstant)
)

// evaluationOrder fixes the order workflows are scored in. The first workflow
// reaching the maximum score wins a tie.
var evaluationOrder = [...]WorkflowType{
	WorkflowTypeGitFlow,
	WorkflowTypeGitHubFlow,
	WorkflowTypeTrunkBased,
}

// EvaluationOrder returns the scored workflows in tie-break order.
func EvaluationOrder() []WorkflowType {
	return append([]WorkflowType(nil), evaluationOrder[:]...)
}

// ParseWorkflowType resolves a workflow identifier, reporting whether it is known.
func ParseWorkflowType(rawValue string) (WorkflowType, bool) {
	switch WorkflowType(rawValue) {
	case WorkflowTypeGitFlow, WorkflowTypeGitHubFlow, WorkflowTypeTrunkBased, WorkflowTypeUnclear, WorkflowTypeCustom:
		return WorkflowType(rawValue), true
	default:
		return "", false
	}
}

// WorkflowScore is the sum of satisfied signal weights for one workflow together with their evidence.
type WorkflowScore struct {
	Score    float64  `json:"score" yaml:"score"`
	Evidence []string `json:"evidence" yaml:"evidence"`
}

// WorkflowAssessment pairs a workflow with its score.
type WorkflowAssessment struct {
	Workflow      WorkflowType `json:"workflow" yaml:"workflow"`
	WorkflowScore `yaml:",inline"`
}

// ClassificationResult is the outcome of workflow detection.
type ClassificationResult struct {
	WorkflowType WorkflowType `json:"workflow" yaml:"workflow"`
	Confidence   float64      `json:"confidence" yaml:"confidence"`
	Evidence     []string     `json:"evidence" yaml:"evidence"`
}

// MigrationResult reports whether commit targets differ between the recent and historical windows.
type MigrationResult struct {
	MigrationDetected bool     `json:"migration_detected" yaml:"migration_detected"`
	RecentPattern     []string `json:"recent_pattern,omitempty" yaml:"recent_pattern,omitempty"`
	HistoricalPattern []string `json:"historical_pattern,omitempty" yaml:"historical_pattern,omitempty"`
}
