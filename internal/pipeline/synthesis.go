package pipeline

import (
	"context"
	"fmt"
	"time"

	"chronicle/internal/backend"
	"chronicle/internal/mission"
)

// synthesize generates the final report from the deepened findings. When the
// backend response is unusable the deterministic fallback report is used, so
// synthesis never fails the mission.
func (r *Runner) synthesize(ctx context.Context, m *mission.Mission, findings []*mission.Finding, result scoreResult) map[string]any {
	data := make([]map[string]any, 0, 30)
	for i, f := range findings {
		if i >= 30 {
			break
		}
		data = append(data, map[string]any{
			"name":            f.Name,
			"category":        f.Category,
			"description":     f.Description,
			"pricing":         f.Pricing,
			"features":        head(f.Features, 10),
			"pros":            head(f.Pros, 5),
			"cons":            head(f.Cons, 5),
			"use_cases":       head(f.UseCases, 5),
			"target_audience": f.TargetAudience,
			"competitors":     head(f.Competitors, 5),
			"depth_score":     f.DepthScore,
		})
	}

	text := r.query(ctx, synthesisPrompt(m.Goal, len(findings), result.AverageDepthScore, data), false)
	synthesis, ok := backend.ExtractObject(text)
	if !ok {
		synthesis = fallbackSynthesis(m, findings, result)
	}

	synthesis["generated_at"] = time.Now().UTC().Format(time.RFC3339)
	synthesis["total_findings_analyzed"] = len(findings)
	synthesis["average_depth_score"] = result.AverageDepthScore
	return backend.SanitizeMap(synthesis)
}

// fallbackSynthesis builds a basic report from the findings alone.
func fallbackSynthesis(m *mission.Mission, findings []*mission.Finding, result scoreResult) map[string]any {
	top := byDepthDesc(findings)
	if len(top) > 10 {
		top = top[:10]
	}

	topName := "N/A"
	if len(top) > 0 {
		topName = top[0].Name
	}

	recommendations := make([]any, 0, 5)
	strengths := make([]any, 0, 5)
	for i, f := range top {
		if i >= 5 {
			break
		}
		reasoning := "See detailed findings"
		if f.Description != "" {
			reasoning = f.Description
			if len(reasoning) > 200 {
				reasoning = reasoning[:200]
			}
		}
		bestFor := "General use"
		if len(f.UseCases) > 0 {
			bestFor = f.UseCases[0]
		}
		recommendations = append(recommendations, map[string]any{
			"rank":      i + 1,
			"name":      f.Name,
			"reasoning": reasoning,
			"best_for":  bestFor,
		})
		strengths = append(strengths, map[string]any{
			"name":       f.Name,
			"strengths":  head(f.Pros, 3),
			"weaknesses": head(f.Cons, 3),
			"verdict":    "Review detailed findings",
		})
	}

	rows := make([]any, 0, len(top))
	for _, f := range top {
		rows = append(rows, []any{f.Name, f.Category, fmt.Sprintf("%.2f", f.DepthScore)})
	}

	totalQueries := 0
	for _, f := range findings {
		totalQueries += f.ResearchIterations
	}

	return map[string]any{
		"executive_summary": fmt.Sprintf(
			"Deep research completed for: %s. Analyzed %d entities with an average depth score of %.2f.",
			m.Goal, len(findings), result.AverageDepthScore),
		"key_insights": []any{
			fmt.Sprintf("Found %d deeply researched entities", len(findings)),
			fmt.Sprintf("Top recommendation: %s", topName),
			fmt.Sprintf("Average research depth: %.2f", result.AverageDepthScore),
		},
		"top_recommendations": recommendations,
		"comparison_matrix": map[string]any{
			"headers": []any{"Name", "Category", "Depth Score"},
			"rows":    rows,
		},
		"market_analysis":      "See individual findings for detailed market analysis.",
		"strengths_weaknesses": strengths,
		"next_steps": []any{
			"Review top recommendations in detail",
			"Compare shortlisted options",
			"Conduct trials with top picks",
		},
		"methodology": fmt.Sprintf("Deep research using %d targeted queries across %d entities.",
			totalQueries, len(findings)),
	}
}

func head(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}
