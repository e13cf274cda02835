package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"chronicle/internal/backend"
	"chronicle/internal/mission"
)

// runDiscovery finds candidate entities with grounded searches from several
// angles. Names are deduplicated case-insensitively, first occurrence wins,
// and the result is capped at targetCount in discovery order.
//
// A mission resumed from a checkpoint arrives with restored findings; those
// are reused as the working set instead of re-discovering.
func (r *Runner) runDiscovery(ctx context.Context, m *mission.Mission, targetCount int) []*mission.Finding {
	if len(m.Findings) > 0 {
		r.log.Info("reusing findings from checkpoint",
			zap.String("mission_id", m.ID),
			zap.Int("count", len(m.Findings)))
		r.bus.EmitStatus(m.ID, string(m.State),
			fmt.Sprintf("Resuming with %d findings from checkpoint", len(m.Findings)))
		return m.Findings
	}

	queries := []string{
		fmt.Sprintf("best %s 2024 2025", m.Goal),
		fmt.Sprintf("top rated %s", m.Goal),
		fmt.Sprintf("%s alternatives comparison", m.Goal),
		fmt.Sprintf("recommended %s for business", m.Goal),
		fmt.Sprintf("%s market leaders popular", m.Goal),
	}
	if m.Plan != nil {
		for i, task := range m.Plan.Tasks {
			if i >= 3 {
				break
			}
			if !contains(queries, task.Query) {
				queries = append(queries, task.Query)
			}
		}
	}
	if len(queries) > r.cfg.Research.DiscoveryQueries {
		queries = queries[:r.cfg.Research.DiscoveryQueries]
	}

	var discovered []*mission.Finding
	seen := make(map[string]bool)

	for i, query := range queries {
		r.bus.EmitProgress(m.ID, i+1, len(queries), fmt.Sprintf("Discovery: %.40s...", query))

		text := r.query(ctx, discoveryPrompt(query), true)
		entities, ok := backend.ExtractArray(text)
		if !ok {
			continue
		}
		for _, raw := range entities {
			entity, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name, _ := entity["name"].(string)
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true

			category, _ := entity["category"].(string)
			description, _ := entity["brief_description"].(string)
			f := mission.NewFinding(name, category, description)
			f.Website, _ = entity["website"].(string)
			f.DiscoveredVia = query
			discovered = append(discovered, f)
		}
	}

	if len(discovered) > targetCount {
		discovered = discovered[:targetCount]
	}
	return discovered
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
