package pipeline

import (
	"context"
	"fmt"

	"chronicle/internal/backend"
	"chronicle/internal/mission"
	"chronicle/internal/score"
)

// scoreResult is the semantic quality evaluation driving the deepening loop.
type scoreResult struct {
	OverallScore      float64
	NeedsMoreDepth    bool
	ShallowFindings   []string
	MissingAttributes []string
	Recommendations   []string
	AverageDepthScore float64
}

// semanticScore asks the backend to judge content depth, not just field
// presence. An unusable response degrades to a neutral result that does not
// trigger deepening. The deterministic average depth score is always
// computed locally.
func (r *Runner) semanticScore(ctx context.Context, m *mission.Mission, findings []*mission.Finding) scoreResult {
	sample := make([]map[string]any, 0, 15)
	for i, f := range findings {
		if i >= 15 {
			break
		}
		sample = append(sample, map[string]any{
			"name":            f.Name,
			"has_pricing":     len(f.Pricing) > 0,
			"features_count":  len(f.Features),
			"pros_count":      len(f.Pros),
			"cons_count":      len(f.Cons),
			"use_cases_count": len(f.UseCases),
			"depth_score":     f.DepthScore,
		})
	}

	result := scoreResult{OverallScore: 0.7}
	text := r.query(ctx, scoringPrompt(m.Goal, len(findings), sample), false)
	if data, ok := backend.ExtractObject(text); ok {
		if v, ok := data["overall_score"].(float64); ok {
			result.OverallScore = v
		}
		if v, ok := data["needs_more_depth"].(bool); ok {
			result.NeedsMoreDepth = v
		}
		result.ShallowFindings = backend.StringList(data["shallow_findings"], 0)
		result.MissingAttributes = backend.StringList(data["missing_attributes"], 0)
		result.Recommendations = backend.StringList(data["recommendations"], 0)
	}

	result.AverageDepthScore = score.Mean(findings)
	return result
}

// deepen re-researches shallow findings with queries targeted at the
// attributes the scoring pass flagged as missing. Enrichment is additive:
// existing attributes are never replaced, only filled in or extended.
func (r *Runner) deepen(ctx context.Context, m *mission.Mission, findings []*mission.Finding, result scoreResult) {
	shallow := make(map[string]bool, len(result.ShallowFindings))
	for _, name := range result.ShallowFindings {
		shallow[name] = true
	}

	threshold := r.cfg.Research.DepthThreshold

	for _, f := range findings {
		if !shallow[f.Name] && f.DepthScore >= threshold {
			continue
		}
		r.bus.EmitProgress(m.ID, 0, 1, fmt.Sprintf("Deepening: %s", f.Name))

		attrs := result.MissingAttributes
		if len(attrs) > 3 {
			attrs = attrs[:3]
		}
		for _, attr := range attrs {
			switch {
			case attr == "pricing" && len(f.Pricing) == 0:
				if data, ok := backend.ExtractObject(r.query(ctx, deepenPricingPrompt(f.Name), true)); ok {
					f.Pricing = backend.SanitizeMap(data)
				}
			case attr == "features" && len(f.Features) < 5:
				if arr, ok := backend.ExtractArray(r.query(ctx, deepenFeaturesPrompt(f.Name), true)); ok {
					f.Features = append(f.Features, backend.StringList(arr, 10)...)
				}
			}
		}

		f.ResearchIterations++
		score.Rescore(f)
		f.MarkDeepened()
	}
}
