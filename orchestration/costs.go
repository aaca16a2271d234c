package orchestration

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

// AggregateCosts folds every billed invocation in a report into
// per-(provider, model) totals. Failed attempts with partial token
// usage still cost nothing here because failures carry no usage.
func AggregateCosts(report *ExecutionReport) []ProviderCost {
	type key struct {
		provider registry.Provider
		modelID  string
	}
	agg := make(map[key]*ProviderCost)
	for i := range report.Results {
		res := &report.Results[i]
		if !res.Succeeded() {
			continue
		}
		k := key{provider: res.Provider, modelID: res.ModelID}
		pc, ok := agg[k]
		if !ok {
			pc = &ProviderCost{Provider: res.Provider, ModelID: res.ModelID}
			agg[k] = pc
		}
		pc.SubtaskCount++
		pc.TotalCost += res.Cost
		pc.InputTokens += res.InputTokens
		pc.OutputTokens += res.OutputTokens
	}

	out := make([]ProviderCost, 0, len(agg))
	for _, pc := range agg {
		out = append(out, *pc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ModelID < out[j].ModelID
	})
	return out
}

// UsageSummary collapses per-model costs into per-provider usage for
// the final_response event payload.
func UsageSummary(costs []ProviderCost) []ProviderUsage {
	agg := make(map[registry.Provider]*ProviderUsage)
	var order []registry.Provider
	for _, pc := range costs {
		u, ok := agg[pc.Provider]
		if !ok {
			u = &ProviderUsage{Provider: string(pc.Provider)}
			agg[pc.Provider] = u
			order = append(order, pc.Provider)
		}
		u.SubtaskCount += pc.SubtaskCount
		u.TotalCost += pc.TotalCost
	}
	out := make([]ProviderUsage, 0, len(order))
	for _, p := range order {
		out = append(out, *agg[p])
	}
	return out
}

// CostRecordTTL keeps cost records around long enough for billing
// reconciliation without growing the store unboundedly
const CostRecordTTL = 7 * 24 * time.Hour

// CostRecord is the persisted shape of one request's spend
type CostRecord struct {
	RequestID  string         `json:"request_id"`
	RecordedAt time.Time      `json:"recorded_at"`
	Costs      []ProviderCost `json:"costs"`
}

// LedgerRecorder persists cost aggregates to a Memory store, Redis in
// production. Records live under "costs:<request id>".
type LedgerRecorder struct {
	store  core.Memory
	logger core.Logger
}

// NewLedgerRecorder wires a recorder over a store
func NewLedgerRecorder(store core.Memory, logger core.Logger) *LedgerRecorder {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &LedgerRecorder{store: store, logger: logger}
}

func (r *LedgerRecorder) Record(ctx context.Context, requestID string, costs []ProviderCost) error {
	record := CostRecord{
		RequestID:  requestID,
		RecordedAt: time.Now(),
		Costs:      costs,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return &core.CouncilError{
			Op:      "record_costs",
			Code:    core.CodeInternal,
			ID:      requestID,
			Message: "marshal cost record",
			Err:     err,
		}
	}
	if err := r.store.Set(ctx, "costs:"+requestID, string(data), CostRecordTTL); err != nil {
		return &core.CouncilError{
			Op:      "record_costs",
			Code:    core.CodeInternal,
			ID:      requestID,
			Message: "persist cost record",
			Err:     err,
		}
	}
	return nil
}

// Lookup returns a previously recorded cost record, or nil when none
// exists for the request id.
func (r *LedgerRecorder) Lookup(ctx context.Context, requestID string) (*CostRecord, error) {
	raw, err := r.store.Get(ctx, "costs:"+requestID)
	if err != nil || raw == "" {
		return nil, err
	}
	var record CostRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}
