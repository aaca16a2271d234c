package orchestration

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

func outcomeWith(winners map[string]SubtaskResult, failed []string, order ...string) *ArbitrationOutcome {
	plan := &RoutingPlan{RequestID: "req-1"}
	for i, id := range order {
		plan.Routes = append(plan.Routes, SubtaskRoute{
			Subtask: Subtask{ID: id, Index: i, Kind: registry.KindReasoning},
		})
	}
	return &ArbitrationOutcome{
		RequestID: "req-1",
		Winners:   winners,
		Failed:    failed,
		Plan:      plan,
	}
}

func TestSynthesizeOrdersBySubtaskIndex(t *testing.T) {
	s := NewOrderedSynthesizer(nil)
	outcome := outcomeWith(map[string]SubtaskResult{
		"req-1-s1": {SubtaskID: "req-1-s1", ModelID: "openai-b", Content: "second part", Confidence: 0.9, Cost: 0.002},
		"req-1-s0": {SubtaskID: "req-1-s0", ModelID: "groq-a", Content: "first part", Confidence: 0.95, Cost: 0.001},
	}, nil, "req-1-s0", "req-1-s1")

	resp, err := s.Synthesize(context.Background(), &Request{ID: "req-1", Mode: ModeBalanced}, outcome)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.HasPrefix(resp.Content, "first part") || !strings.HasSuffix(resp.Content, "second part") {
		t.Errorf("content out of order: %q", resp.Content)
	}
	if !approx(resp.TotalCost, 0.003) {
		t.Errorf("totalCost = %v, want 0.003", resp.TotalCost)
	}
	if resp.SubtasksMerged != 2 || resp.SubtasksTotal != 2 {
		t.Errorf("merged/total = %d/%d, want 2/2", resp.SubtasksMerged, resp.SubtasksTotal)
	}
	if resp.PartialCoverage {
		t.Error("full coverage should not be partial")
	}
	if len(resp.ModelsUsed) != 2 {
		t.Errorf("modelsUsed = %v", resp.ModelsUsed)
	}
}

func TestSynthesizeBestQualityTakesMinConfidence(t *testing.T) {
	s := NewOrderedSynthesizer(nil)
	outcome := outcomeWith(map[string]SubtaskResult{
		"req-1-s0": {SubtaskID: "req-1-s0", ModelID: "a", Content: "strong answer", Confidence: 0.98},
		"req-1-s1": {SubtaskID: "req-1-s1", ModelID: "b", Content: "weak answer", Confidence: 0.70},
	}, nil, "req-1-s0", "req-1-s1")

	resp, err := s.Synthesize(context.Background(), &Request{ID: "req-1", Mode: ModeBestQuality}, outcome)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if resp.Confidence != 0.70 {
		t.Errorf("confidence = %v, want weakest link 0.70", resp.Confidence)
	}
}

func TestSynthesizeBalancedLengthWeightedMean(t *testing.T) {
	s := NewOrderedSynthesizer(nil)
	// 90 chars at 0.9 and 10 chars at 0.5: mean weighted to the long answer
	long := strings.Repeat("a", 90)
	short := strings.Repeat("b", 10)
	outcome := outcomeWith(map[string]SubtaskResult{
		"req-1-s0": {SubtaskID: "req-1-s0", ModelID: "a", Content: long, Confidence: 0.9},
		"req-1-s1": {SubtaskID: "req-1-s1", ModelID: "b", Content: short, Confidence: 0.5},
	}, nil, "req-1-s0", "req-1-s1")

	resp, err := s.Synthesize(context.Background(), &Request{ID: "req-1", Mode: ModeBalanced}, outcome)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	want := (0.9*90 + 0.5*10) / 100
	if resp.Confidence < want-0.001 || resp.Confidence > want+0.001 {
		t.Errorf("confidence = %v, want %v", resp.Confidence, want)
	}
}

func TestSynthesizePartialCoverage(t *testing.T) {
	s := NewOrderedSynthesizer(nil)
	outcome := outcomeWith(map[string]SubtaskResult{
		"req-1-s0": {SubtaskID: "req-1-s0", ModelID: "a", Content: "only part", Confidence: 0.9},
	}, []string{"req-1-s1"}, "req-1-s0", "req-1-s1")

	resp, err := s.Synthesize(context.Background(), &Request{ID: "req-1", Mode: ModeBalanced}, outcome)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !resp.PartialCoverage {
		t.Error("missing subtask should flag partial coverage")
	}
	if resp.SubtasksMerged != 1 || resp.SubtasksTotal != 2 {
		t.Errorf("merged/total = %d/%d, want 1/2", resp.SubtasksMerged, resp.SubtasksTotal)
	}
}

func TestSynthesizeBestQualityRejectsPartial(t *testing.T) {
	s := NewOrderedSynthesizer(nil)
	outcome := outcomeWith(map[string]SubtaskResult{
		"req-1-s0": {SubtaskID: "req-1-s0", ModelID: "a", Content: "only part", Confidence: 0.9},
	}, []string{"req-1-s1"}, "req-1-s0", "req-1-s1")

	_, err := s.Synthesize(context.Background(), &Request{ID: "req-1", Mode: ModeBestQuality}, outcome)
	if !errors.Is(err, core.ErrSynthesisFailed) {
		t.Fatalf("expected ErrSynthesisFailed for partial best_quality, got %v", err)
	}
	if core.ErrorCode(err) != core.CodeSynthesisFailed {
		t.Errorf("code = %s, want %s", core.ErrorCode(err), core.CodeSynthesisFailed)
	}
}

func TestSynthesizeNoWinners(t *testing.T) {
	s := NewOrderedSynthesizer(nil)
	outcome := outcomeWith(map[string]SubtaskResult{}, []string{"req-1-s0"}, "req-1-s0")

	_, err := s.Synthesize(context.Background(), &Request{ID: "req-1", Mode: ModeBalanced}, outcome)
	if !errors.Is(err, core.ErrSynthesisFailed) {
		t.Errorf("expected ErrSynthesisFailed, got %v", err)
	}
}
