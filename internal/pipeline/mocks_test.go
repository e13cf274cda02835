package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"chronicle/internal/mission"
)

// fakeBackend is a scripted research client. It recognizes each phase's
// prompt shape and returns canned JSON, so the full pipeline can run without
// a network. Unknown prompts return empty text, exercising the degraded
// paths.
type fakeBackend struct {
	mu         sync.Mutex
	continuity string
	queries    []string

	// entities returned by every discovery query.
	entities string
	// needsDepth controls how many scoring rounds report needs_more_depth
	// before turning false.
	needsDepth int
	// failSynthesis makes the synthesis prompt return garbage.
	failSynthesis bool
	// onQuery, when set, observes every prompt.
	onQuery func(prompt string)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		entities: `[
			{"name": "Acme", "category": "Software", "brief_description": "A tool", "website": "acme.example"},
			{"name": "acme", "category": "Software", "brief_description": "Duplicate casing"},
			{"name": "Bolt", "category": "Software", "brief_description": "Another tool"},
			{"name": "Crux", "category": "Hardware", "brief_description": "A device"}
		]`,
	}
}

func (fb *fakeBackend) Query(ctx context.Context, prompt string, grounded bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fb.mu.Lock()
	fb.queries = append(fb.queries, prompt)
	fb.continuity = fmt.Sprintf("sig-%d", len(fb.queries))
	onQuery := fb.onQuery
	fb.mu.Unlock()
	if onQuery != nil {
		onQuery(prompt)
	}

	switch {
	case strings.Contains(prompt, "deep research plan"):
		return `{"strategy": "Compare the market", "discovery_queries": ["q1", "q2"], "estimated_duration_minutes": 10}`, nil
	case strings.HasPrefix(prompt, "Search for:"):
		return fb.entities, nil
	case strings.Contains(prompt, "detailed pricing"):
		return `{"tiers": ["free", "pro"], "starting_price": "$10/mo", "free_trial": true}`, nil
	case strings.Contains(prompt, "features and capabilities"):
		return `["f1", "f2", "f3", "f4", "f5", "f6"]`, nil
	case strings.Contains(prompt, "pros and cons"):
		return `{"pros": ["fast", "cheap", "simple"], "cons": ["new", "small team", "few integrations"]}`, nil
	case strings.Contains(prompt, "best use cases"):
		return `{"use_cases": ["startups"], "target_audience": "small teams"}`, nil
	case strings.Contains(prompt, "main competitors"):
		return `{"competitors": ["Rival"], "integrations": ["Slack"]}`, nil
	case strings.Contains(prompt, "Compare "):
		return `{"winner_overall": "Acme", "comparison": "Acme is stronger for small teams."}`, nil
	case strings.Contains(prompt, "Verify the pricing"):
		return `{"verified": true, "current_pricing": "$10/mo", "source": "https://acme.example/pricing"}`, nil
	case strings.Contains(prompt, "Evaluate the depth"):
		fb.mu.Lock()
		needs := fb.needsDepth > 0
		if needs {
			fb.needsDepth--
		}
		fb.mu.Unlock()
		return fmt.Sprintf(`{"overall_score": 0.8, "needs_more_depth": %v, "shallow_findings": ["Crux"], "missing_attributes": ["pricing", "features"], "recommendations": []}`, needs), nil
	case strings.Contains(prompt, "SPECIFIC pricing"):
		return `{"tiers": ["basic"], "starting_price": "$5/mo"}`, nil
	case strings.Contains(prompt, "SPECIFIC features"):
		return `["extra1", "extra2"]`, nil
	case strings.Contains(prompt, "comprehensive research report"):
		if fb.failSynthesis {
			return "sorry, I cannot help with that", nil
		}
		return `{"executive_summary": "Acme leads the market.", "key_insights": ["Acme is cheapest"], "top_recommendations": [], "next_steps": []}`, nil
	}
	return "", nil
}

func (fb *fakeBackend) ContinuityToken() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.continuity
}

func (fb *fakeBackend) SetContinuityToken(token string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.continuity = token
}

func (fb *fakeBackend) queryCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.queries)
}

func (fb *fakeBackend) queriesMatching(substr string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	n := 0
	for _, q := range fb.queries {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}

// fakeExporter records export calls without touching the filesystem.
type fakeExporter struct {
	mu      sync.Mutex
	calls   []string
	failFmt string
}

func (fe *fakeExporter) Export(ctx context.Context, m *mission.Mission, format string, includeMetadata bool, prefix string) mission.Action {
	fe.mu.Lock()
	fe.calls = append(fe.calls, format)
	fe.mu.Unlock()

	action := mission.Action{
		ID:     "exp_test",
		Type:   "export",
		Format: format,
		At:     time.Now().UTC(),
	}
	if format == fe.failFmt {
		action.Status = "failed"
		action.Error = "unsupported format: " + format
		return action
	}
	action.Status = "success"
	action.FilePath = "/tmp/" + m.ID + "." + format
	action.RecordCount = len(m.Findings)
	return action
}

func (fe *fakeExporter) formats() []string {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return append([]string(nil), fe.calls...)
}
