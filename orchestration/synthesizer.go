package orchestration

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aicouncil/council/core"
)

// OrderedSynthesizer merges arbitrated subtask answers back into one
// response in the subtasks' original order.
type OrderedSynthesizer struct {
	logger    core.Logger
	telemetry core.Telemetry
}

// NewOrderedSynthesizer creates a synthesizer with optional logging
func NewOrderedSynthesizer(logger core.Logger) *OrderedSynthesizer {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &OrderedSynthesizer{logger: logger, telemetry: &core.NoOpTelemetry{}}
}

// SetTelemetry injects the telemetry provider
func (s *OrderedSynthesizer) SetTelemetry(t core.Telemetry) {
	if t != nil {
		s.telemetry = t
	}
}

func (s *OrderedSynthesizer) Synthesize(ctx context.Context, req *Request, outcome *ArbitrationOutcome) (*FinalResponse, error) {
	ctx, span := s.telemetry.StartSpan(ctx, "synthesizer.synthesize")
	defer span.End()
	span.SetAttribute("request.id", req.ID)

	if err := ctx.Err(); err != nil {
		return nil, &core.CouncilError{
			Op:   "synthesize",
			Code: core.CodeCancelled,
			ID:   req.ID,
			Err:  core.ErrCancelled,
		}
	}

	if len(outcome.Winners) == 0 {
		return nil, &core.CouncilError{
			Op:      "synthesize",
			Code:    core.CodeSynthesisFailed,
			ID:      req.ID,
			Message: "no subtask produced a usable answer",
			Err:     core.ErrSynthesisFailed,
		}
	}

	// Best-quality callers asked for the whole answer or nothing; only
	// the other modes accept a partial merge
	if req.Mode == ModeBestQuality && len(outcome.Failed) > 0 {
		return nil, &core.CouncilError{
			Op:      "synthesize",
			Code:    core.CodeSynthesisFailed,
			ID:      req.ID,
			Message: fmt.Sprintf("%d of %d subtasks unresolved; best_quality does not accept partial answers", len(outcome.Failed), len(outcome.Plan.Routes)),
			Err:     core.ErrSynthesisFailed,
		}
	}

	// Winners come back in the subtasks' original order
	winners := make([]orderedWinner, 0, len(outcome.Winners))
	for _, route := range outcome.Plan.Routes {
		if w, ok := outcome.Winners[route.Subtask.ID]; ok {
			winners = append(winners, orderedWinner{index: route.Subtask.Index, result: w})
		}
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i].index < winners[j].index })

	var (
		parts      []string
		totalCost  float64
		modelsUsed []string
		modelSeen  = make(map[string]bool)
	)
	for _, w := range winners {
		parts = append(parts, strings.TrimSpace(w.result.Content))
		totalCost += w.result.Cost
		if !modelSeen[w.result.ModelID] {
			modelSeen[w.result.ModelID] = true
			modelsUsed = append(modelsUsed, w.result.ModelID)
		}
	}
	sort.Strings(modelsUsed)

	resp := &FinalResponse{
		RequestID:       req.ID,
		Content:         strings.Join(parts, "\n\n"),
		Confidence:      s.confidence(req.Mode, winners),
		TotalCost:       totalCost,
		ModelsUsed:      modelsUsed,
		SubtasksTotal:   len(outcome.Plan.Routes),
		SubtasksMerged:  len(winners),
		PartialCoverage: len(outcome.Failed) > 0,
	}

	s.logger.Info("Synthesis complete", map[string]interface{}{
		"operation":        "synthesize",
		"request_id":       req.ID,
		"subtasks_merged":  resp.SubtasksMerged,
		"partial_coverage": resp.PartialCoverage,
		"confidence":       resp.Confidence,
	})
	return resp, nil
}

type orderedWinner struct {
	index  int
	result SubtaskResult
}

// confidence aggregates winner confidences. Best-quality requests get
// the weakest link; other modes get a length-weighted mean so long
// answers dominate.
func (s *OrderedSynthesizer) confidence(mode ExecutionMode, winners []orderedWinner) float64 {
	if len(winners) == 0 {
		return 0
	}
	if mode == ModeBestQuality {
		min := winners[0].result.Confidence
		for _, w := range winners[1:] {
			if w.result.Confidence < min {
				min = w.result.Confidence
			}
		}
		return min
	}

	var weighted, totalLen float64
	for _, w := range winners {
		l := float64(len(w.result.Content))
		if l == 0 {
			l = 1
		}
		weighted += w.result.Confidence * l
		totalLen += l
	}
	return weighted / totalLen
}
