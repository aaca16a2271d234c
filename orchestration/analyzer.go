package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/registry"
)

// RuleAnalyzer decomposes requests with keyword and structure
// heuristics. It never fails outright: when decomposition produces
// nothing usable the request becomes a single reasoning subtask marked
// degraded.
type RuleAnalyzer struct {
	logger    core.Logger
	telemetry core.Telemetry
}

// NewRuleAnalyzer creates an analyzer with optional logging
func NewRuleAnalyzer(logger core.Logger) *RuleAnalyzer {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RuleAnalyzer{logger: logger, telemetry: &core.NoOpTelemetry{}}
}

// SetTelemetry injects the telemetry provider
func (a *RuleAnalyzer) SetTelemetry(t core.Telemetry) {
	if t != nil {
		a.telemetry = t
	}
}

// kindKeywords maps trigger words to the task kind they suggest.
// Earlier entries win when a fragment matches several kinds.
var kindKeywords = []struct {
	kind  registry.TaskKind
	words []string
}{
	{registry.KindCodeGeneration, []string{"code", "function", "implement", "script", "program", "class", "api", "bug-free"}},
	{registry.KindDebugging, []string{"debug", "fix", "error", "traceback", "stack trace", "crash", "broken"}},
	{registry.KindFactChecking, []string{"verify", "fact", "true or false", "confirm", "accurate", "citation"}},
	{registry.KindResearch, []string{"research", "find", "search", "summarize", "compare", "sources", "latest"}},
	{registry.KindCreativeOutput, []string{"write a story", "poem", "creative", "slogan", "brainstorm", "imagine", "draft"}},
	{registry.KindReasoning, []string{"why", "explain", "reason", "analyze", "solve", "prove", "calculate"}},
}

// conjunctions split a request into separately routable fragments
var conjunctions = []string{" and then ", "; ", " then ", " also ", " additionally "}

// maxAnalyzableContent caps the content length decomposition will
// attempt; anything larger degrades to a single subtask
const maxAnalyzableContent = 5000

func (a *RuleAnalyzer) Analyze(ctx context.Context, req *Request) (*Analysis, error) {
	start := time.Now()
	ctx, span := a.telemetry.StartSpan(ctx, "analyzer.analyze")
	defer span.End()
	span.SetAttribute("request.id", req.ID)

	if err := ctx.Err(); err != nil {
		return nil, &core.CouncilError{
			Op:   "analyze",
			Code: core.CodeCancelled,
			ID:   req.ID,
			Err:  core.ErrCancelled,
		}
	}

	content := strings.TrimSpace(req.Content)
	if content == "" || len(content) > maxAnalyzableContent {
		return a.degradedAnalysis(req, content, start), nil
	}

	fragments := splitFragments(content)
	subtasks := make([]Subtask, 0, len(fragments))
	for i, frag := range fragments {
		frag = strings.TrimSpace(frag)
		if len(frag) < 3 {
			continue
		}
		subtasks = append(subtasks, Subtask{
			ID:       fmt.Sprintf("%s-s%d", req.ID, i),
			Index:    i,
			Content:  frag,
			Kind:     classifyKind(frag),
			Priority: len(fragments) - i,
		})
	}

	degraded := false
	if len(subtasks) == 0 {
		degraded = true
		subtasks = []Subtask{{
			ID:      fmt.Sprintf("%s-s0", req.ID),
			Index:   0,
			Content: content,
			Kind:    registry.KindReasoning,
		}}
	}

	analysis := &Analysis{
		RequestID:           req.ID,
		Intent:              classifyIntent(content),
		Complexity:          gradeComplexity(content, len(subtasks)),
		Subtasks:            subtasks,
		AccuracyRequirement: ProfileFor(req.Mode).AccuracyRequirement,
		Degraded:            degraded,
	}

	a.logger.Info("Request analyzed", map[string]interface{}{
		"operation":  "analyze",
		"request_id": req.ID,
		"intent":     string(analysis.Intent),
		"complexity": string(analysis.Complexity),
		"subtasks":   len(subtasks),
		"degraded":   degraded,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return analysis, nil
}

// degradedAnalysis wraps unanalyzable content in a single reasoning
// subtask so the request still completes
func (a *RuleAnalyzer) degradedAnalysis(req *Request, content string, start time.Time) *Analysis {
	analysis := &Analysis{
		RequestID:  req.ID,
		Intent:     classifyIntent(content),
		Complexity: ComplexitySimple,
		Subtasks: []Subtask{{
			ID:      fmt.Sprintf("%s-s0", req.ID),
			Index:   0,
			Content: req.Content,
			Kind:    registry.KindReasoning,
		}},
		AccuracyRequirement: ProfileFor(req.Mode).AccuracyRequirement,
		Degraded:            true,
	}
	a.logger.Warn("Request analysis degraded", map[string]interface{}{
		"operation":      "analyze",
		"request_id":     req.ID,
		"content_length": len(req.Content),
		"elapsed_ms":     time.Since(start).Milliseconds(),
	})
	return analysis
}

// splitFragments breaks a request on conjunctions, then on sentence
// boundaries when the text is long enough to warrant decomposition
func splitFragments(content string) []string {
	lower := strings.ToLower(content)
	for _, conj := range conjunctions {
		if strings.Contains(lower, conj) {
			return splitFold(content, conj)
		}
	}
	// Short single-clause requests stay whole
	if len(content) < 200 {
		return []string{content}
	}
	parts := strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '?' || r == '!'
	})
	if len(parts) <= 1 {
		return []string{content}
	}
	return parts
}

// splitFold splits on a separator case-insensitively
func splitFold(s, sep string) []string {
	var out []string
	lower := strings.ToLower(s)
	for {
		i := strings.Index(lower, sep)
		if i < 0 {
			out = append(out, s)
			return out
		}
		out = append(out, s[:i])
		s = s[i+len(sep):]
		lower = lower[i+len(sep):]
	}
}

func classifyKind(fragment string) registry.TaskKind {
	lower := strings.ToLower(fragment)
	for _, kk := range kindKeywords {
		for _, w := range kk.words {
			if strings.Contains(lower, w) {
				return kk.kind
			}
		}
	}
	return registry.KindReasoning
}

func classifyIntent(content string) Intent {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "verify") || strings.Contains(lower, "is it true"):
		return IntentFactCheck
	case strings.Contains(lower, "write") || strings.Contains(lower, "generate") || strings.Contains(lower, "create"):
		return IntentGeneration
	case strings.Contains(lower, "why") || strings.Contains(lower, "explain") || strings.Contains(lower, "how does"):
		return IntentReasoning
	default:
		return IntentQuestion
	}
}

func gradeComplexity(content string, subtaskCount int) Complexity {
	switch {
	case subtaskCount >= 3 || len(content) > 600:
		return ComplexityComplex
	case subtaskCount == 2 || len(content) > 200:
		return ComplexityModerate
	default:
		return ComplexitySimple
	}
}
