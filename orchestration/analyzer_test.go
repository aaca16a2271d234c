package orchestration

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

func TestAnalyzeSimpleRequest(t *testing.T) {
	a := NewRuleAnalyzer(nil)
	req := &Request{ID: "r1", Content: "Why is the sky blue?", Mode: ModeBalanced}

	analysis, err := a.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(analysis.Subtasks) != 1 {
		t.Fatalf("subtasks = %d, want 1", len(analysis.Subtasks))
	}
	if analysis.Subtasks[0].Kind != registry.KindReasoning {
		t.Errorf("kind = %s, want reasoning", analysis.Subtasks[0].Kind)
	}
	if analysis.Complexity != ComplexitySimple {
		t.Errorf("complexity = %s, want simple", analysis.Complexity)
	}
	if analysis.Intent != IntentReasoning {
		t.Errorf("intent = %s, want reasoning", analysis.Intent)
	}
	if analysis.Degraded {
		t.Error("clean decomposition should not be degraded")
	}
}

func TestAnalyzeConjunctionSplit(t *testing.T) {
	a := NewRuleAnalyzer(nil)
	req := &Request{
		ID:      "r2",
		Content: "Research the history of Go and then write a function that parses dates",
		Mode:    ModeBalanced,
	}

	analysis, err := a.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(analysis.Subtasks) != 2 {
		t.Fatalf("subtasks = %d, want 2", len(analysis.Subtasks))
	}
	if analysis.Subtasks[0].Kind != registry.KindResearch {
		t.Errorf("first kind = %s, want research", analysis.Subtasks[0].Kind)
	}
	if analysis.Subtasks[1].Kind != registry.KindCodeGeneration {
		t.Errorf("second kind = %s, want code_generation", analysis.Subtasks[1].Kind)
	}
	// Subtask ids embed the request id for progress correlation
	for _, st := range analysis.Subtasks {
		if !strings.HasPrefix(st.ID, "r2-s") {
			t.Errorf("subtask id = %q, want r2-s prefix", st.ID)
		}
	}
	// Earlier subtasks carry higher priority
	if analysis.Subtasks[0].Priority <= analysis.Subtasks[1].Priority {
		t.Error("priority should decrease with index")
	}
}

func TestAnalyzeKindClassification(t *testing.T) {
	tests := []struct {
		content string
		want    registry.TaskKind
	}{
		{"debug this stack trace for me", registry.KindDebugging},
		{"verify that the Eiffel Tower is in Paris", registry.KindFactChecking},
		{"write a poem about autumn", registry.KindCreativeOutput},
		{"implement a function to reverse a list", registry.KindCodeGeneration},
		{"summarize the latest climate sources", registry.KindResearch},
		{"what is the capital of France", registry.KindReasoning},
	}

	a := NewRuleAnalyzer(nil)
	for _, tt := range tests {
		analysis, err := a.Analyze(context.Background(), &Request{ID: "r", Content: tt.content, Mode: ModeBalanced})
		if err != nil {
			t.Fatalf("Analyze(%q): %v", tt.content, err)
		}
		if got := analysis.Subtasks[0].Kind; got != tt.want {
			t.Errorf("kind(%q) = %s, want %s", tt.content, got, tt.want)
		}
	}
}

func TestAnalyzeEmptyContentDegrades(t *testing.T) {
	a := NewRuleAnalyzer(nil)
	analysis, err := a.Analyze(context.Background(), &Request{ID: "r3", Content: "   ", Mode: ModeBalanced})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !analysis.Degraded {
		t.Error("empty content must degrade, not fail")
	}
	if len(analysis.Subtasks) != 1 {
		t.Fatalf("subtasks = %d, want 1", len(analysis.Subtasks))
	}
	if analysis.Subtasks[0].Kind != registry.KindReasoning {
		t.Errorf("kind = %s, want reasoning", analysis.Subtasks[0].Kind)
	}
}

func TestAnalyzeOverlongContentDegrades(t *testing.T) {
	a := NewRuleAnalyzer(nil)
	content := strings.Repeat("explain this and then that. ", 200)
	if len(content) <= maxAnalyzableContent {
		t.Fatalf("fixture content too short: %d", len(content))
	}
	analysis, err := a.Analyze(context.Background(), &Request{ID: "r4", Content: content, Mode: ModeBalanced})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !analysis.Degraded {
		t.Error("overlong content must degrade to a single subtask")
	}
	if len(analysis.Subtasks) != 1 {
		t.Fatalf("subtasks = %d, want 1", len(analysis.Subtasks))
	}
	if analysis.Subtasks[0].Content != content {
		t.Error("degraded subtask must carry the original content")
	}
}

func TestAnalyzeAccuracyFollowsMode(t *testing.T) {
	a := NewRuleAnalyzer(nil)
	for mode, want := range map[ExecutionMode]float64{
		ModeFast:        0.7,
		ModeBalanced:    0.8,
		ModeBestQuality: 0.95,
	} {
		analysis, err := a.Analyze(context.Background(), &Request{ID: "r", Content: "explain recursion", Mode: mode})
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if analysis.AccuracyRequirement != want {
			t.Errorf("mode %s accuracy = %v, want %v", mode, analysis.AccuracyRequirement, want)
		}
	}
}

func TestAnalyzeCancelledContext(t *testing.T) {
	a := NewRuleAnalyzer(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, &Request{ID: "r4", Content: "anything", Mode: ModeBalanced})
	if !errors.Is(err, core.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}
