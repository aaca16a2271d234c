package orchestration

import (
	"context"
	"fmt"
	"sort"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

// ConfidenceArbiter resolves competing answers to the same subtask.
// The highest-confidence result wins; ties break toward lower risk,
// then lower cost, then lexicographic model id, so arbitration is
// deterministic for identical inputs.
type ConfidenceArbiter struct {
	registry  *registry.Registry
	logger    core.Logger
	telemetry core.Telemetry
}

// NewConfidenceArbiter wires an arbiter over the model registry
func NewConfidenceArbiter(reg *registry.Registry, logger core.Logger) *ConfidenceArbiter {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ConfidenceArbiter{registry: reg, logger: logger, telemetry: &core.NoOpTelemetry{}}
}

// SetTelemetry injects the telemetry provider
func (a *ConfidenceArbiter) SetTelemetry(t core.Telemetry) {
	if t != nil {
		a.telemetry = t
	}
}

func (a *ConfidenceArbiter) Arbitrate(ctx context.Context, report *ExecutionReport) (*ArbitrationOutcome, error) {
	ctx, span := a.telemetry.StartSpan(ctx, "arbiter.arbitrate")
	defer span.End()
	span.SetAttribute("request.id", report.RequestID)

	if err := ctx.Err(); err != nil {
		return nil, &core.CouncilError{
			Op:   "arbitrate",
			Code: core.CodeCancelled,
			ID:   report.RequestID,
			Err:  core.ErrCancelled,
		}
	}

	outcome := &ArbitrationOutcome{
		RequestID: report.RequestID,
		Winners:   make(map[string]SubtaskResult),
		Plan:      report.Plan,
	}

	for _, route := range report.Plan.Routes {
		subtaskID := route.Subtask.ID
		var successes []SubtaskResult
		for _, res := range report.ResultsFor(subtaskID) {
			if res.Succeeded() {
				successes = append(successes, res)
			}
		}

		if len(successes) == 0 {
			outcome.Failed = append(outcome.Failed, subtaskID)
			continue
		}

		winner := a.pick(successes)
		outcome.Winners[subtaskID] = winner

		if len(successes) > 1 {
			outcome.Conflicts = append(outcome.Conflicts, Conflict{
				SubtaskID: subtaskID,
				Results:   successes,
				WinnerID:  winner.ModelID,
				Reason:    fmt.Sprintf("highest confidence %.2f of %d candidates", winner.Confidence, len(successes)),
			})
		}
	}

	a.logger.Info("Arbitration complete", map[string]interface{}{
		"operation":  "arbitrate",
		"request_id": report.RequestID,
		"winners":    len(outcome.Winners),
		"failed":     len(outcome.Failed),
		"conflicts":  len(outcome.Conflicts),
	})
	return outcome, nil
}

// pick orders candidates by descending confidence, then ascending risk,
// then ascending cost, then model id, and returns the first
func (a *ConfidenceArbiter) pick(candidates []SubtaskResult) SubtaskResult {
	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.Confidence != cj.Confidence {
			return ci.Confidence > cj.Confidence
		}
		ri, rj := a.risk(ci.ModelID), a.risk(cj.ModelID)
		if ri != rj {
			return ri < rj
		}
		if ci.Cost != cj.Cost {
			return ci.Cost < cj.Cost
		}
		return ci.ModelID < cj.ModelID
	})
	return candidates[0]
}

// risk is the inverse of the model's catalog reliability. Unknown
// models carry maximum risk.
func (a *ConfidenceArbiter) risk(modelID string) float64 {
	m, ok := a.registry.Get(modelID)
	if !ok {
		return 1
	}
	return 1 - m.Reliability
}
