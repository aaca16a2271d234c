package orchestration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aicouncil/council/core"
)

// Orchestrator drives a request through the full pipeline: analysis,
// routing, execution, arbitration, synthesis, cost recording. Progress
// streams through a per-request bus that callers subscribe to by
// request id.
type Orchestrator struct {
	analyzer     Analyzer
	router       Router
	executor     Executor
	arbiter      Arbiter
	synthesizer  Synthesizer
	costRecorder CostRecorder
	config       *OrchestratorConfig
	hooks        Hooks
	logger       core.Logger
	telemetry    core.Telemetry

	mu     sync.Mutex
	active map[string]*Bus
}

// NewOrchestrator assembles the pipeline. Pass nil for costRecorder to
// disable cost recording regardless of configuration.
func NewOrchestrator(analyzer Analyzer, router Router, executor Executor, arbiter Arbiter, synthesizer Synthesizer, costRecorder CostRecorder, config *OrchestratorConfig, logger core.Logger) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Orchestrator{
		analyzer:     analyzer,
		router:       router,
		executor:     executor,
		arbiter:      arbiter,
		synthesizer:  synthesizer,
		costRecorder: costRecorder,
		config:       config,
		logger:       logger,
		telemetry:    &core.NoOpTelemetry{},
		active:       make(map[string]*Bus),
	}
}

// SetTelemetry injects the telemetry provider
func (o *Orchestrator) SetTelemetry(t core.Telemetry) {
	if t != nil {
		o.telemetry = t
	}
}

// SetHooks installs pipeline milestone callbacks
func (o *Orchestrator) SetHooks(hooks Hooks) {
	o.hooks = hooks
}

// Submit accepts a request for asynchronous processing and returns the
// populated request. Callers follow progress via Bus(req.ID); the
// stream always ends with a final_response or error event.
func (o *Orchestrator) Submit(content string, mode ExecutionMode) *Request {
	req := &Request{
		ID:      uuid.New().String(),
		Content: content,
		Mode:    mode,
	}

	bus := NewBus(o.logger)
	o.mu.Lock()
	o.active[req.ID] = bus
	o.mu.Unlock()

	go func() {
		// The submitting HTTP request is long gone by the time the
		// pipeline finishes; the mode deadline is the only bound
		o.Process(context.Background(), req, bus)

		// Keep the bus subscribable so consumers that connect after the
		// terminal event can still replay the stream
		if o.config.BusRetention > 0 {
			time.Sleep(o.config.BusRetention)
		}
		o.mu.Lock()
		delete(o.active, req.ID)
		o.mu.Unlock()
	}()
	return req
}

// Bus returns the progress bus for an in-flight request, or false when
// the request is unknown or already finished.
func (o *Orchestrator) Bus(requestID string) (*Bus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	bus, ok := o.active[requestID]
	return bus, ok
}

// Process runs the pipeline synchronously. The sink receives every
// progress event and always sees a terminal event; pass nil to discard
// progress.
func (o *Orchestrator) Process(ctx context.Context, req *Request, sink ProgressSink) (*FinalResponse, error) {
	if sink == nil {
		sink = NoOpSink{}
	}
	start := time.Now()

	ctx, span := o.telemetry.StartSpan(ctx, "orchestrator.process")
	defer span.End()
	span.SetAttribute("request.id", req.ID)
	span.SetAttribute("mode", string(req.Mode))

	profile := ProfileFor(req.Mode)
	ctx, cancel := context.WithTimeout(ctx, profile.RequestDeadline)
	defer cancel()

	sink.Publish(NewEvent(EventProcessingStarted, req.ID, map[string]interface{}{
		"mode": string(req.Mode),
	}))

	resp, plan, costs, err := o.run(ctx, req, sink)
	if err != nil {
		span.RecordError(err)
		code := core.ErrorCode(err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && code == core.CodeCancelled {
			code = core.CodeDeadlineExceeded
		}
		o.logger.Error("Request failed", map[string]interface{}{
			"operation":  "process",
			"request_id": req.ID,
			"error":      err.Error(),
			"error_code": code,
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
		sink.Publish(NewEvent(EventError, req.ID, map[string]interface{}{
			"code":    code,
			"message": err.Error(),
		}))
		return nil, err
	}

	resp.ExecutionTime = time.Since(start)
	o.logger.Info("Request complete", map[string]interface{}{
		"operation":  "process",
		"request_id": req.ID,
		"mode":       string(req.Mode),
		"confidence": resp.Confidence,
		"total_cost": resp.TotalCost,
		"elapsed_ms": resp.ExecutionTime.Milliseconds(),
	})

	sink.Publish(NewEvent(EventFinalResponse, req.ID, finalResponsePayload(req, resp, plan, costs)))
	if o.hooks.OnSynthesized != nil {
		o.hooks.OnSynthesized(resp)
	}
	return resp, nil
}

// finalResponsePayload assembles the terminal event: the answer plus
// the cost breakdown, execution metadata, selection log and provider
// usage accumulated over the pipeline.
func finalResponsePayload(req *Request, resp *FinalResponse, plan *RoutingPlan, costs []ProviderCost) map[string]interface{} {
	perModel := make([]map[string]interface{}, 0, len(costs))
	perProvider := make(map[string]float64)
	var providerOrder []string
	tokens := make([]map[string]interface{}, 0, len(costs))
	for _, c := range costs {
		perModel = append(perModel, map[string]interface{}{
			"model_id": c.ModelID,
			"provider": string(c.Provider),
			"cost":     c.TotalCost,
		})
		if _, ok := perProvider[string(c.Provider)]; !ok {
			providerOrder = append(providerOrder, string(c.Provider))
		}
		perProvider[string(c.Provider)] += c.TotalCost
		tokens = append(tokens, map[string]interface{}{
			"model_id":      c.ModelID,
			"input_tokens":  c.InputTokens,
			"output_tokens": c.OutputTokens,
		})
	}
	perProviderList := make([]map[string]interface{}, 0, len(providerOrder))
	for _, p := range providerOrder {
		perProviderList = append(perProviderList, map[string]interface{}{
			"provider": p,
			"cost":     perProvider[p],
		})
	}

	var selectionLog []SelectionLogEntry
	if plan != nil {
		selectionLog = plan.SelectionLog
	}
	return map[string]interface{}{
		"content":            resp.Content,
		"overall_confidence": resp.Confidence,
		"success":            true,
		"models_used":        resp.ModelsUsed,
		"cost_breakdown": map[string]interface{}{
			"total_cost":        resp.TotalCost,
			"per_model_cost":    perModel,
			"per_provider_cost": perProviderList,
			"token_usage":       tokens,
			"execution_time":    resp.ExecutionTime.Seconds(),
		},
		"execution_metadata": map[string]interface{}{
			"mode":              string(req.Mode),
			"subtasks_total":    resp.SubtasksTotal,
			"subtasks_merged":   resp.SubtasksMerged,
			"partial_coverage":  resp.PartialCoverage,
			"execution_time_ms": resp.ExecutionTime.Milliseconds(),
		},
		"provider_selection_log": selectionLog,
		"provider_usage_summary": UsageSummary(costs),
	}
}

func (o *Orchestrator) run(ctx context.Context, req *Request, sink ProgressSink) (*FinalResponse, *RoutingPlan, []ProviderCost, error) {
	// Analysis
	analysisCtx, cancel := context.WithTimeout(ctx, o.config.AnalysisTimeout)
	analysis, err := o.analyzer.Analyze(analysisCtx, req)
	cancel()
	if err != nil {
		return nil, nil, nil, err
	}
	sink.Publish(NewEvent(EventAnalysisComplete, req.ID, map[string]interface{}{
		"intent":        string(analysis.Intent),
		"complexity":    string(analysis.Complexity),
		"subtask_count": len(analysis.Subtasks),
		"degraded":      analysis.Degraded,
	}))

	// Routing
	plan, err := o.router.Route(ctx, analysis, req.Mode)
	if err != nil {
		return nil, nil, nil, err
	}
	sink.Publish(NewEvent(EventRoutingComplete, req.ID, map[string]interface{}{
		"total_subtasks": len(plan.Routes),
		"assignments":    routingAssignments(plan),
	}))
	if o.hooks.OnRoutingDecided != nil {
		o.hooks.OnRoutingDecided(plan)
	}

	// Execution
	report, err := o.executor.Execute(ctx, plan, req.Mode, sink)
	if err != nil {
		return nil, plan, nil, err
	}
	if o.hooks.OnSubtaskCompleted != nil {
		for i := range report.Results {
			o.hooks.OnSubtaskCompleted(&report.Results[i])
		}
	}

	// Arbitration
	var outcome *ArbitrationOutcome
	if o.config.EnableArbitration {
		outcome, err = o.arbiter.Arbitrate(ctx, report)
		if err != nil {
			return nil, plan, nil, err
		}
	} else {
		outcome = firstSuccessOutcome(report)
	}
	sink.Publish(NewEvent(EventArbitrationDecision, req.ID, arbitrationPayload(outcome)))
	if o.hooks.OnArbitrated != nil {
		o.hooks.OnArbitrated(outcome)
	}

	// Synthesis
	sink.Publish(NewEvent(EventSynthesisProgress, req.ID, map[string]interface{}{
		"stage": "started",
	}))
	var resp *FinalResponse
	if o.config.EnableSynthesis {
		synthCtx, cancel := context.WithTimeout(ctx, o.config.SynthesisTimeout)
		resp, err = o.synthesizer.Synthesize(synthCtx, req, outcome)
		cancel()
		if err != nil {
			return nil, plan, nil, err
		}
	} else {
		resp, err = passthroughResponse(req, outcome)
		if err != nil {
			return nil, plan, nil, err
		}
	}

	costs := AggregateCosts(report)
	sink.Publish(NewEvent(EventSynthesisProgress, req.ID, map[string]interface{}{
		"stage":          "complete",
		"confidence":     resp.Confidence,
		"models_used":    resp.ModelsUsed,
		"provider_usage": UsageSummary(costs),
	}))

	o.recordCosts(req.ID, costs)
	return resp, plan, costs, nil
}

// arbitrationPayload reports how each contested subtask was decided:
// which models clashed and which response won
func arbitrationPayload(outcome *ArbitrationOutcome) map[string]interface{} {
	decisions := make([]map[string]interface{}, 0, len(outcome.Conflicts))
	conflicting := make([]map[string]interface{}, 0, len(outcome.Conflicts))
	for _, c := range outcome.Conflicts {
		confidence := 0.0
		if w, ok := outcome.Winners[c.SubtaskID]; ok {
			confidence = w.Confidence
		}
		decisions = append(decisions, map[string]interface{}{
			"subtask_id":         c.SubtaskID,
			"chosen_response_id": c.SubtaskID + "/" + c.WinnerID,
			"reasoning":          c.Reason,
			"confidence":         confidence,
		})
		modelIDs := make([]string, 0, len(c.Results))
		for _, res := range c.Results {
			modelIDs = append(modelIDs, res.ModelID)
		}
		conflicting = append(conflicting, map[string]interface{}{
			"subtask_id": c.SubtaskID,
			"model_ids":  modelIDs,
		})
	}
	return map[string]interface{}{
		"conflicts_detected":  len(outcome.Conflicts),
		"decisions":           decisions,
		"conflicting_results": conflicting,
	}
}

// recordCosts persists spend in the background. Failures are logged
// and never affect the caller's response.
func (o *Orchestrator) recordCosts(requestID string, costs []ProviderCost) {
	if !o.config.EnableCostRecording || o.costRecorder == nil || len(costs) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.costRecorder.Record(ctx, requestID, costs); err != nil {
			o.logger.Warn("Cost recording failed", map[string]interface{}{
				"operation":  "record_costs",
				"request_id": requestID,
				"error":      err.Error(),
			})
		}
	}()
}

// firstSuccessOutcome keeps each subtask's first successful result in
// plan order, used when arbitration is disabled
func firstSuccessOutcome(report *ExecutionReport) *ArbitrationOutcome {
	outcome := &ArbitrationOutcome{
		RequestID: report.RequestID,
		Winners:   make(map[string]SubtaskResult),
		Plan:      report.Plan,
	}
	for _, route := range report.Plan.Routes {
		found := false
		for _, res := range report.ResultsFor(route.Subtask.ID) {
			if res.Succeeded() {
				outcome.Winners[route.Subtask.ID] = res
				found = true
				break
			}
		}
		if !found {
			outcome.Failed = append(outcome.Failed, route.Subtask.ID)
		}
	}
	return outcome
}

// passthroughResponse joins winner contents without confidence
// aggregation, used when synthesis is disabled
func passthroughResponse(req *Request, outcome *ArbitrationOutcome) (*FinalResponse, error) {
	if len(outcome.Winners) == 0 {
		return nil, &core.CouncilError{
			Op:      "process",
			Code:    core.CodeSynthesisFailed,
			ID:      req.ID,
			Message: "no subtask produced a usable answer",
			Err:     core.ErrSynthesisFailed,
		}
	}
	resp := &FinalResponse{
		RequestID:     req.ID,
		SubtasksTotal: len(outcome.Plan.Routes),
	}
	seen := make(map[string]bool)
	for _, route := range outcome.Plan.Routes {
		w, ok := outcome.Winners[route.Subtask.ID]
		if !ok {
			continue
		}
		if resp.Content != "" {
			resp.Content += "\n\n"
		}
		resp.Content += w.Content
		resp.TotalCost += w.Cost
		resp.Confidence += w.Confidence
		resp.SubtasksMerged++
		if !seen[w.ModelID] {
			seen[w.ModelID] = true
			resp.ModelsUsed = append(resp.ModelsUsed, w.ModelID)
		}
	}
	resp.Confidence /= float64(resp.SubtasksMerged)
	resp.PartialCoverage = len(outcome.Failed) > 0
	return resp, nil
}

// routingAssignments flattens the selection log for event payloads
func routingAssignments(plan *RoutingPlan) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(plan.SelectionLog))
	for _, e := range plan.SelectionLog {
		out = append(out, map[string]interface{}{
			"subtask_id":              e.SubtaskID,
			"task_kind":               e.Kind,
			"model_id":                e.Chosen,
			"provider":                e.Provider,
			"score":                   e.Score,
			"reason":                  e.Reason,
			"est_cost":                e.EstCost,
			"est_time":                e.EstTime.Seconds(),
			"alternatives_considered": len(e.Candidates) - 1,
		})
	}
	return out
}
