package pipeline

import (
	"context"
	"fmt"

	"chronicle/internal/backend"
	"chronicle/internal/mission"
	"chronicle/internal/score"
)

// runDeepDive enriches each finding with five targeted queries: pricing,
// features, pros/cons, use cases, and competitors/integrations. This is the
// phase that turns bare names into decision-grade data. Each query failure
// leaves that aspect empty; the finding survives regardless.
func (r *Runner) runDeepDive(ctx context.Context, m *mission.Mission, findings []*mission.Finding) {
	for i, f := range findings {
		r.bus.EmitProgress(m.ID, i+1, len(findings), fmt.Sprintf("Deep diving: %s", f.Name))
		r.deepDiveOne(ctx, f)
	}
}

func (r *Runner) deepDiveOne(ctx context.Context, f *mission.Finding) {
	// Pricing.
	if data, ok := backend.ExtractObject(r.query(ctx, pricingPrompt(f.Name), true)); ok {
		f.Pricing = backend.SanitizeMap(data)
	}
	f.ResearchQueries = append(f.ResearchQueries, f.Name+" pricing")

	// Features.
	if arr, ok := backend.ExtractArray(r.query(ctx, featuresPrompt(f.Name), true)); ok {
		f.Features = backend.StringList(arr, 15)
	}
	f.ResearchQueries = append(f.ResearchQueries, f.Name+" features")

	// Pros and cons.
	if data, ok := backend.ExtractObject(r.query(ctx, prosConsPrompt(f.Name), true)); ok {
		f.Pros = backend.StringList(data["pros"], 8)
		f.Cons = backend.StringList(data["cons"], 8)
	}
	f.ResearchQueries = append(f.ResearchQueries, f.Name+" reviews pros cons")

	// Use cases and audience.
	if data, ok := backend.ExtractObject(r.query(ctx, useCasesPrompt(f.Name), true)); ok {
		f.UseCases = backend.StringList(data["use_cases"], 8)
		if audience, ok := data["target_audience"].(string); ok {
			f.TargetAudience = audience
		}
	}
	f.ResearchQueries = append(f.ResearchQueries, f.Name+" use cases")

	// Competitors and integrations.
	if data, ok := backend.ExtractObject(r.query(ctx, competitorsPrompt(f.Name), true)); ok {
		f.Competitors = backend.StringList(data["competitors"], 8)
		f.Integrations = backend.StringList(data["integrations"], 10)
	}
	f.ResearchQueries = append(f.ResearchQueries, f.Name+" competitors integrations")

	f.ResearchIterations = 5
	score.Rescore(f)
	f.MarkDeepened()
}
