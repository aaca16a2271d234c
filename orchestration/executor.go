package orchestration

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/providers"
	"github.com/aicouncil/council/registry"
	"github.com/aicouncil/council/resilience"
)

// fallbackConfidencePenalty is subtracted from a result's confidence
// when a fallback model produced it
const fallbackConfidencePenalty = 0.1

// PooledExecutor runs routed subtasks against providers. Concurrency is
// bounded by the mode profile, each call carries its own timeout, and a
// failed or breaker-blocked model hands off to the next candidate in
// its fallback chain.
type PooledExecutor struct {
	invokers            *providers.InvokerSet
	breakers            *resilience.Group
	registry            *registry.Registry
	degrader            ProviderDegrader
	parallelismOverride int
	logger              core.Logger
	telemetry           core.Telemetry
}

// NewPooledExecutor wires an executor over the invoker set and breaker
// group
func NewPooledExecutor(invokers *providers.InvokerSet, breakers *resilience.Group, reg *registry.Registry, logger core.Logger) *PooledExecutor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &PooledExecutor{
		invokers:  invokers,
		breakers:  breakers,
		registry:  reg,
		logger:    logger,
		telemetry: &core.NoOpTelemetry{},
	}
}

// SetParallelismOverride forces the worker bound for all modes when > 0
func (e *PooledExecutor) SetParallelismOverride(n int) {
	e.parallelismOverride = n
}

// SetDegrader installs the hook that flags providers rejecting
// credentials or requests
func (e *PooledExecutor) SetDegrader(d ProviderDegrader) {
	e.degrader = d
}

// SetTelemetry injects the telemetry provider
func (e *PooledExecutor) SetTelemetry(t core.Telemetry) {
	if t != nil {
		e.telemetry = t
	}
}

// attempt is one unit of work: a subtask paired with the candidate it
// starts from. Fan-out produces several attempts per subtask sharing
// one fallback pool.
type attempt struct {
	route     *SubtaskRoute
	candidate RankedModel
	// pool hands out shared fallback candidates past the fan-out set
	pool *fallbackPool
}

// fallbackPool hands out each remaining candidate at most once across
// the fan-out attempts of one subtask.
type fallbackPool struct {
	candidates []RankedModel
	next       atomic.Int64
}

func (p *fallbackPool) take() (RankedModel, bool) {
	for {
		i := p.next.Load()
		if int(i) >= len(p.candidates) {
			return RankedModel{}, false
		}
		if p.next.CompareAndSwap(i, i+1) {
			return p.candidates[int(i)], true
		}
	}
}

func (e *PooledExecutor) Execute(ctx context.Context, plan *RoutingPlan, mode ExecutionMode, sink ProgressSink) (*ExecutionReport, error) {
	start := time.Now()
	if sink == nil {
		sink = NoOpSink{}
	}
	ctx, span := e.telemetry.StartSpan(ctx, "executor.execute")
	defer span.End()
	span.SetAttribute("request.id", plan.RequestID)
	span.SetAttribute("mode", string(mode))

	profile := ProfileFor(mode)
	workers := profile.Parallelism
	if e.parallelismOverride > 0 {
		workers = e.parallelismOverride
	}

	attempts := e.buildAttempts(plan, profile.FanOut)

	report := &ExecutionReport{
		RequestID: plan.RequestID,
		Plan:      plan,
		Results:   make([]SubtaskResult, 0, len(attempts)),
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, workers)
	)

	for i := range attempts {
		at := attempts[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("Subtask execution panicked", map[string]interface{}{
						"operation":  "execute",
						"request_id": plan.RequestID,
						"subtask_id": at.route.Subtask.ID,
						"panic":      fmt.Sprint(r),
						"stack":      string(debug.Stack()),
					})
					mu.Lock()
					report.Results = append(report.Results, SubtaskResult{
						SubtaskID: at.route.Subtask.ID,
						ModelID:   at.candidate.ModelID,
						Provider:  at.candidate.Provider,
						Error:     fmt.Sprintf("internal: %v", r),
						ErrorCode: core.CodeInternal,
					})
					mu.Unlock()
				}
			}()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				report.Results = append(report.Results, e.cancelledResult(ctx, at))
				mu.Unlock()
				return
			}

			result := e.runAttempt(ctx, at, profile.CallTimeout)

			mu.Lock()
			report.Results = append(report.Results, result)
			mu.Unlock()

			e.publishProgress(sink, plan.RequestID, &result)
		}()
	}

	wg.Wait()
	report.Elapsed = time.Since(start)

	e.logger.Info("Execution finished", map[string]interface{}{
		"operation":  "execute",
		"request_id": plan.RequestID,
		"mode":       string(mode),
		"attempts":   len(attempts),
		"results":    len(report.Results),
		"elapsed_ms": report.Elapsed.Milliseconds(),
	})
	return report, nil
}

// buildAttempts fans each subtask out to its top fanOut candidates.
// Candidates past the fan-out set form a shared fallback pool so no
// model answers the same subtask twice.
func (e *PooledExecutor) buildAttempts(plan *RoutingPlan, fanOut int) []attempt {
	if fanOut < 1 {
		fanOut = 1
	}
	var attempts []attempt
	for i := range plan.Routes {
		route := &plan.Routes[i]
		candidates := append([]RankedModel{route.Primary}, route.Fallbacks...)
		n := fanOut
		if n > len(candidates) {
			n = len(candidates)
		}
		pool := &fallbackPool{candidates: candidates[n:]}
		for k := 0; k < n; k++ {
			attempts = append(attempts, attempt{route: route, candidate: candidates[k], pool: pool})
		}
	}
	return attempts
}

// runAttempt walks one attempt's candidate chain: the starting
// candidate, then shared fallbacks until one succeeds or the chain is
// exhausted. Breaker-blocked providers are skipped without recording.
func (e *PooledExecutor) runAttempt(ctx context.Context, at attempt, callTimeout time.Duration) SubtaskResult {
	subtask := at.route.Subtask
	primaryID := at.candidate.ModelID

	candidate := at.candidate
	usedFallback := false
	var lastErr error
	var lastReason string

	for {
		if err := ctx.Err(); err != nil {
			return e.cancelledResult(ctx, at)
		}

		result, err := e.invokeCandidate(ctx, subtask, candidate, callTimeout)
		if err == nil {
			if usedFallback {
				result.UsedFallback = true
				result.PrimaryModelFailed = primaryID
				result.FallbackReason = lastReason
				result.Confidence -= fallbackConfidencePenalty
				if result.Confidence < 0 {
					result.Confidence = 0
				}
			}
			return result
		}

		lastErr = err
		lastReason = core.ErrorCode(err)
		e.logger.Warn("Subtask candidate failed", map[string]interface{}{
			"operation":  "execute",
			"subtask_id": subtask.ID,
			"model_id":   candidate.ModelID,
			"provider":   string(candidate.Provider),
			"error":      err.Error(),
			"error_code": lastReason,
		})

		next, ok := at.pool.take()
		if !ok {
			break
		}
		candidate = next
		usedFallback = true
	}

	result := SubtaskResult{
		SubtaskID: subtask.ID,
		ModelID:   candidate.ModelID,
		Provider:  candidate.Provider,
		Error:     lastErr.Error(),
		ErrorCode: core.ErrorCode(lastErr),
	}
	if usedFallback {
		result.UsedFallback = true
		result.PrimaryModelFailed = primaryID
		result.FallbackReason = lastReason
	}
	return result
}

// invokeCandidate makes one provider call behind the breaker. A blocked
// breaker is reported as ErrBreakerOpen without touching its counters.
func (e *PooledExecutor) invokeCandidate(ctx context.Context, subtask Subtask, candidate RankedModel, callTimeout time.Duration) (SubtaskResult, error) {
	model, ok := e.registry.Get(candidate.ModelID)
	if !ok {
		return SubtaskResult{}, &core.CouncilError{
			Op:      "execute",
			Code:    core.CodeInternal,
			Message: "routed model not in registry: " + candidate.ModelID,
		}
	}

	inv, ok := e.invokers.Get(candidate.Provider)
	if !ok {
		return SubtaskResult{}, &core.CouncilError{
			Op:      "execute",
			Code:    core.CodeNoProvidersAvailable,
			Message: "no invoker for provider " + string(candidate.Provider),
			Err:     core.ErrNoProvidersAvailable,
		}
	}

	if !e.breakers.IsAvailable(candidate.Provider) {
		return SubtaskResult{}, &core.CouncilError{
			Op:      "execute",
			Code:    core.CodeBreakerOpen,
			Message: "circuit breaker open for provider " + string(candidate.Provider),
			Err:     core.ErrBreakerOpen,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	resp, err := inv.Invoke(callCtx, &providers.InvokeRequest{
		Model:  model,
		Prompt: subtask.Content,
	})
	cancel()

	if err != nil {
		if core.IsBreakerFailure(err) {
			e.breakers.RecordFailure(candidate.Provider)
		} else {
			// A claimed half-open probe must not leak on uncounted
			// failures
			e.breakers.ReleaseProbe(candidate.Provider)
			code := core.ErrorCode(err)
			if e.degrader != nil && (code == core.CodeProviderAuth || code == core.CodeProviderBadRequest) {
				e.degrader.MarkDegraded(ctx, candidate.Provider, code)
			}
		}
		return SubtaskResult{}, err
	}
	e.breakers.RecordSuccess(candidate.Provider)

	return SubtaskResult{
		SubtaskID:    subtask.ID,
		ModelID:      model.ID,
		Provider:     model.Provider,
		Content:      resp.Content,
		Confidence:   model.Reliability,
		Cost:         resp.Cost(model),
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Latency:      resp.Latency,
	}, nil
}

func (e *PooledExecutor) cancelledResult(ctx context.Context, at attempt) SubtaskResult {
	code := core.CodeCancelled
	msg := "request cancelled"
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = core.CodeDeadlineExceeded
		msg = "request deadline exceeded"
	}
	return SubtaskResult{
		SubtaskID: at.route.Subtask.ID,
		ModelID:   at.candidate.ModelID,
		Provider:  at.candidate.Provider,
		Error:     msg,
		ErrorCode: code,
	}
}

// publishProgress emits one execution_progress event per terminal
// subtask outcome, in completion order
func (e *PooledExecutor) publishProgress(sink ProgressSink, requestID string, result *SubtaskResult) {
	status := "completed"
	if !result.Succeeded() {
		status = "failed"
	}
	payload := map[string]interface{}{
		"subtask_id":     result.SubtaskID,
		"model_id":       result.ModelID,
		"provider":       string(result.Provider),
		"status":         status,
		"confidence":     result.Confidence,
		"cost":           result.Cost,
		"execution_time": result.Latency.Seconds(),
		"used_fallback":  result.UsedFallback,
	}
	if result.PrimaryModelFailed != "" {
		payload["primary_model_failed"] = result.PrimaryModelFailed
	}
	if result.FallbackReason != "" {
		payload["fallback_reason"] = result.FallbackReason
	}
	if result.Error != "" {
		payload["error_message"] = result.Error
	}
	sink.Publish(NewEvent(EventExecutionProgress, requestID, payload))
}
