package orchestration

import (
	"time"

	"github.com/aicouncil/council/registry"
)

// Request is one natural-language request entering the pipeline.
type Request struct {
	ID      string        `json:"id"`
	Content string        `json:"content"`
	Mode    ExecutionMode `json:"mode"`
}

// Intent is the analyzer's classification of what the user wants.
type Intent string

const (
	IntentQuestion   Intent = "question"
	IntentGeneration Intent = "generation"
	IntentReasoning  Intent = "reasoning"
	IntentFactCheck  Intent = "fact_check"
)

// Complexity grades how much decomposition a request needs.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Subtask is one routable unit of work produced by analysis.
type Subtask struct {
	ID       string            `json:"id"`
	Index    int               `json:"index"`
	Content  string            `json:"content"`
	Kind     registry.TaskKind `json:"kind"`
	Priority int               `json:"priority"`
}

// Analysis is the analyzer's full output for a request.
type Analysis struct {
	RequestID           string     `json:"request_id"`
	Intent              Intent     `json:"intent"`
	Complexity          Complexity `json:"complexity"`
	Subtasks            []Subtask  `json:"subtasks"`
	AccuracyRequirement float64    `json:"accuracy_requirement"`
	// Degraded marks analyses that fell back to mirroring the raw input
	// as a single subtask
	Degraded bool `json:"degraded"`
}

// RankedModel is one model's score for a subtask.
type RankedModel struct {
	ModelID  string            `json:"model_id"`
	Provider registry.Provider `json:"provider"`
	Score    float64           `json:"score"`
	// Component scores, kept for the selection log
	AvailabilityScore float64 `json:"availability_score"`
	CostScore         float64 `json:"cost_score"`
	LatencyScore      float64 `json:"latency_score"`
	CapabilityScore   float64 `json:"capability_score"`
	ReliabilityScore  float64 `json:"reliability_score"`
}

// SubtaskRoute is the router's decision for one subtask: a primary
// model and an ordered fallback chain.
type SubtaskRoute struct {
	Subtask   Subtask       `json:"subtask"`
	Primary   RankedModel   `json:"primary"`
	Fallbacks []RankedModel `json:"fallbacks"`
}

// RoutingPlan is the router's output for the whole request.
type RoutingPlan struct {
	RequestID string         `json:"request_id"`
	Mode      ExecutionMode  `json:"mode"`
	Routes    []SubtaskRoute `json:"routes"`
	// SelectionLog records why each primary was chosen, for the
	// routing_complete event and final-response metadata
	SelectionLog []SelectionLogEntry `json:"selection_log"`
}

// SelectionLogEntry explains one routing decision.
type SelectionLogEntry struct {
	SubtaskID string  `json:"subtask_id"`
	Kind      string  `json:"task_kind"`
	Chosen    string  `json:"model_id"`
	Provider  string  `json:"provider"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
	// EstCost and EstTime are the chosen model's projected spend and
	// latency for a nominal exchange
	EstCost    float64       `json:"est_cost"`
	EstTime    time.Duration `json:"est_time"`
	Candidates []RankedModel `json:"candidates"`
}

// SubtaskResult is one model's answer to one subtask. Results are keyed
// by (SubtaskID, ModelID); the same subtask may carry several results
// when the mode fans out or a fallback fired.
type SubtaskResult struct {
	SubtaskID          string            `json:"subtask_id"`
	ModelID            string            `json:"model_id"`
	Provider           registry.Provider `json:"provider"`
	Content            string            `json:"content"`
	Confidence         float64           `json:"confidence"`
	Cost               float64           `json:"cost"`
	InputTokens        int               `json:"input_tokens"`
	OutputTokens       int               `json:"output_tokens"`
	Latency            time.Duration     `json:"latency"`
	UsedFallback       bool              `json:"used_fallback"`
	PrimaryModelFailed string            `json:"primary_model_failed,omitempty"`
	FallbackReason     string            `json:"fallback_reason,omitempty"`
	Error              string            `json:"error,omitempty"`
	ErrorCode          string            `json:"error_code,omitempty"`
}

// Succeeded reports whether this result carries a usable answer
func (r *SubtaskResult) Succeeded() bool {
	return r.Error == "" && r.Content != ""
}

// ExecutionReport is the executor's output: every result produced plus
// bookkeeping for downstream stages.
type ExecutionReport struct {
	RequestID string          `json:"request_id"`
	Plan      *RoutingPlan    `json:"-"`
	Results   []SubtaskResult `json:"results"`
	Elapsed   time.Duration   `json:"elapsed"`
}

// ResultsFor returns every result recorded for a subtask id
func (r *ExecutionReport) ResultsFor(subtaskID string) []SubtaskResult {
	var out []SubtaskResult
	for i := range r.Results {
		if r.Results[i].SubtaskID == subtaskID {
			out = append(out, r.Results[i])
		}
	}
	return out
}

// Conflict describes competing successful answers for one subtask.
type Conflict struct {
	SubtaskID string          `json:"subtask_id"`
	Results   []SubtaskResult `json:"results"`
	WinnerID  string          `json:"winner_model_id"`
	Reason    string          `json:"reason"`
}

// ArbitrationOutcome holds the surviving result per subtask.
type ArbitrationOutcome struct {
	RequestID string `json:"request_id"`
	// Winners maps subtask id to the surviving result
	Winners map[string]SubtaskResult `json:"winners"`
	// Failed lists subtask ids with no successful result
	Failed    []string   `json:"failed"`
	Conflicts []Conflict `json:"conflicts"`
	// Plan threads through for synthesis ordering
	Plan *RoutingPlan `json:"-"`
}

// FinalResponse is the synthesized answer returned to the caller.
type FinalResponse struct {
	RequestID       string        `json:"request_id"`
	Content         string        `json:"content"`
	Confidence      float64       `json:"confidence"`
	TotalCost       float64       `json:"total_cost"`
	ExecutionTime   time.Duration `json:"execution_time"`
	ModelsUsed      []string      `json:"models_used"`
	SubtasksTotal   int           `json:"subtasks_total"`
	SubtasksMerged  int           `json:"subtasks_merged"`
	PartialCoverage bool          `json:"partial_coverage"`
}

// ProviderCost aggregates one provider's spend within a request.
type ProviderCost struct {
	Provider     registry.Provider `json:"provider"`
	ModelID      string            `json:"model_id"`
	SubtaskCount int               `json:"subtask_count"`
	TotalCost    float64           `json:"total_cost"`
	InputTokens  int               `json:"total_input_tokens"`
	OutputTokens int               `json:"total_output_tokens"`
}

// ProviderUsage summarizes one provider's participation for the
// final_response event.
type ProviderUsage struct {
	Provider     string  `json:"provider"`
	SubtaskCount int     `json:"subtask_count"`
	TotalCost    float64 `json:"total_cost"`
}
