package orchestration

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

// Scoring weights. Availability dominates: a model on a struggling
// provider loses to any model on a healthy one.
const (
	weightAvailability = 0.40
	weightCost         = 0.25
	weightLatency      = 0.15
	weightCapability   = 0.10
	weightReliability  = 0.10

	// Normalization references. Costs at or above referenceMaxCost
	// score zero on the cost axis, latencies at or above
	// referenceMaxLatency score zero on the latency axis.
	referenceMaxCost    = 0.00003
	referenceMaxLatency = 5 * time.Second

	// capabilityPointsPerKind converts supported-kind count to a
	// 0..100 capability score
	capabilityPointsPerKind = 20

	// routingEstTokens is the nominal token volume behind the selection
	// log's cost estimates
	routingEstTokens = 1000
)

// WeightedRouter scores every capable model per subtask and picks a
// primary plus an ordered fallback chain.
type WeightedRouter struct {
	registry     *registry.Registry
	providers    ProviderView
	maxFallbacks int
	logger       core.Logger
	telemetry    core.Telemetry
}

// NewWeightedRouter wires a router over the model registry and live
// provider state
func NewWeightedRouter(reg *registry.Registry, providers ProviderView, maxFallbacks int, logger core.Logger) *WeightedRouter {
	if providers == nil {
		providers = AllUsable
	}
	if maxFallbacks <= 0 {
		maxFallbacks = 5
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &WeightedRouter{
		registry:     reg,
		providers:    providers,
		maxFallbacks: maxFallbacks,
		logger:       logger,
		telemetry:    &core.NoOpTelemetry{},
	}
}

// SetTelemetry injects the telemetry provider
func (r *WeightedRouter) SetTelemetry(t core.Telemetry) {
	if t != nil {
		r.telemetry = t
	}
}

func (r *WeightedRouter) Route(ctx context.Context, analysis *Analysis, mode ExecutionMode) (*RoutingPlan, error) {
	ctx, span := r.telemetry.StartSpan(ctx, "router.route")
	defer span.End()
	span.SetAttribute("request.id", analysis.RequestID)
	span.SetAttribute("mode", string(mode))

	usable := r.usableProviders(ctx)
	if len(usable) == 0 {
		return nil, &core.CouncilError{
			Op:      "route",
			Code:    core.CodeNoProvidersAvailable,
			ID:      analysis.RequestID,
			Message: "no providers are currently usable",
			Err:     core.ErrNoProvidersAvailable,
		}
	}

	plan := &RoutingPlan{
		RequestID: analysis.RequestID,
		Mode:      mode,
		Routes:    make([]SubtaskRoute, 0, len(analysis.Subtasks)),
	}

	for _, st := range analysis.Subtasks {
		ranked := r.rank(st.Kind, mode, usable)
		if len(ranked) == 0 {
			return nil, &core.CouncilError{
				Op:      "route",
				Code:    core.CodeNoCapableModel,
				ID:      analysis.RequestID,
				Message: "no usable model supports task kind " + string(st.Kind),
				Err:     core.ErrNoCapableModel,
			}
		}

		fallbacks := ranked[1:]
		if len(fallbacks) > r.maxFallbacks {
			fallbacks = fallbacks[:r.maxFallbacks]
		}
		plan.Routes = append(plan.Routes, SubtaskRoute{
			Subtask:   st,
			Primary:   ranked[0],
			Fallbacks: fallbacks,
		})
		entry := SelectionLogEntry{
			SubtaskID:  st.ID,
			Kind:       string(st.Kind),
			Chosen:     ranked[0].ModelID,
			Provider:   string(ranked[0].Provider),
			Score:      ranked[0].Score,
			Reason:     fmt.Sprintf("highest weighted score %.3f of %d candidates", ranked[0].Score, len(ranked)),
			Candidates: ranked,
		}
		if m, ok := r.registry.Get(ranked[0].ModelID); ok {
			entry.EstCost = m.AverageCost() * routingEstTokens
			entry.EstTime = m.AverageLatency
		}
		plan.SelectionLog = append(plan.SelectionLog, entry)
	}

	r.logger.Info("Routing plan built", map[string]interface{}{
		"operation":  "route",
		"request_id": analysis.RequestID,
		"mode":       string(mode),
		"subtasks":   len(plan.Routes),
		"providers":  len(usable),
	})
	return plan, nil
}

func (r *WeightedRouter) usableProviders(ctx context.Context) map[registry.Provider]bool {
	usable := make(map[registry.Provider]bool)
	for _, p := range registry.AllProviders {
		if r.providers.IsUsable(ctx, p) {
			usable[p] = true
		}
	}
	return usable
}

// rank scores every usable model capable of the kind and returns them
// best-first. Ties break toward cheaper models, then lexicographic id.
func (r *WeightedRouter) rank(kind registry.TaskKind, mode ExecutionMode, usable map[registry.Provider]bool) []RankedModel {
	wCost, wReliability := weightCost, weightReliability
	refLatency := referenceMaxLatency
	switch mode {
	case ModeFast:
		// Latency counts double: halving the reference penalizes any
		// model slower than 2.5s
		refLatency = referenceMaxLatency / 2
	case ModeBestQuality:
		wCost -= 0.10
		wReliability += 0.10
	}

	models := r.registry.ModelsFor(kind)

	ranked := make([]RankedModel, 0, len(models))
	for _, m := range models {
		if !usable[m.Provider] {
			continue
		}
		rm := RankedModel{
			ModelID:           m.ID,
			Provider:          m.Provider,
			AvailabilityScore: 1.0,
			CostScore:         clamp01(1 - m.AverageCost()/referenceMaxCost),
			LatencyScore:      clamp01(1 - float64(m.AverageLatency)/float64(refLatency)),
			CapabilityScore:   clamp01(float64(len(m.Kinds)*capabilityPointsPerKind) / 100),
			ReliabilityScore:  m.Reliability,
		}
		rm.Score = weightAvailability*rm.AvailabilityScore +
			wCost*rm.CostScore +
			weightLatency*rm.LatencyScore +
			weightCapability*rm.CapabilityScore +
			wReliability*rm.ReliabilityScore
		ranked = append(ranked, rm)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		ci, cj := r.avgCost(ranked[i].ModelID), r.avgCost(ranked[j].ModelID)
		if ci != cj {
			return ci < cj
		}
		return ranked[i].ModelID < ranked[j].ModelID
	})
	return ranked
}

func (r *WeightedRouter) avgCost(modelID string) float64 {
	m, ok := r.registry.Get(modelID)
	if !ok {
		return 0
	}
	return m.AverageCost()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
