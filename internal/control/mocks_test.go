package control

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"chronicle/internal/backend"
	"chronicle/internal/mission"
)

// scriptedBackend returns canned JSON per prompt shape. When gate is
// non-nil every query blocks until the gate closes, which lets tests hold a
// mission mid-run deterministically.
type scriptedBackend struct {
	gate chan struct{}

	mu         sync.Mutex
	continuity string
	queries    int
}

func (sb *scriptedBackend) Query(ctx context.Context, prompt string, grounded bool) (string, error) {
	if sb.gate != nil {
		select {
		case <-sb.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sb.mu.Lock()
	sb.queries++
	sb.continuity = fmt.Sprintf("sig-%d", sb.queries)
	sb.mu.Unlock()

	switch {
	case strings.Contains(prompt, "deep research plan"):
		return `{"strategy": "Compare the market", "discovery_queries": ["q1"], "estimated_duration_minutes": 5}`, nil
	case strings.HasPrefix(prompt, "Search for:"):
		return `[{"name": "Acme", "category": "Software", "brief_description": "A tool"},
			{"name": "Bolt", "category": "Software", "brief_description": "Another tool"}]`, nil
	case strings.Contains(prompt, "detailed pricing"):
		return `{"tiers": ["free", "pro"], "starting_price": "$10/mo"}`, nil
	case strings.Contains(prompt, "features and capabilities"):
		return `["f1", "f2", "f3", "f4", "f5"]`, nil
	case strings.Contains(prompt, "pros and cons"):
		return `{"pros": ["fast", "cheap", "simple"], "cons": ["new", "niche", "basic"]}`, nil
	case strings.Contains(prompt, "best use cases"):
		return `{"use_cases": ["startups"], "target_audience": "small teams"}`, nil
	case strings.Contains(prompt, "main competitors"):
		return `{"competitors": ["Rival"], "integrations": ["Slack"]}`, nil
	case strings.Contains(prompt, "Compare "):
		return `{"comparison": "Acme wins on price."}`, nil
	case strings.Contains(prompt, "Verify the pricing"):
		return `{"verified": true, "source": "https://acme.example/pricing"}`, nil
	case strings.Contains(prompt, "Evaluate the depth"):
		return `{"overall_score": 0.8, "needs_more_depth": false, "shallow_findings": [], "missing_attributes": [], "recommendations": []}`, nil
	case strings.Contains(prompt, "comprehensive research report"):
		return `{"executive_summary": "Acme leads.", "key_insights": ["insight"]}`, nil
	}
	return "", nil
}

func (sb *scriptedBackend) ContinuityToken() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.continuity
}

func (sb *scriptedBackend) SetContinuityToken(token string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.continuity = token
}

var _ backend.ResearchClient = (*scriptedBackend)(nil)

// recordingExporter records calls and always succeeds.
type recordingExporter struct {
	mu    sync.Mutex
	calls []string
}

func (re *recordingExporter) Export(ctx context.Context, m *mission.Mission, format string, includeMetadata bool, prefix string) mission.Action {
	re.mu.Lock()
	re.calls = append(re.calls, format)
	re.mu.Unlock()
	return mission.Action{
		ID:          "exp_test",
		Type:        "export",
		Format:      format,
		Status:      "success",
		FilePath:    "/tmp/" + m.ID + "." + format,
		RecordCount: len(m.Findings),
		At:          time.Now().UTC(),
	}
}
