package pipeline

import (
	"context"

	"chronicle/internal/backend"
	"chronicle/internal/mission"
)

// createPlan asks the backend for a research strategy and query angles.
// An unusable response falls back to a single-task plan built from the goal,
// so planning never fails the mission.
func (r *Runner) createPlan(ctx context.Context, m *mission.Mission) *mission.ResearchPlan {
	text := r.query(ctx, planPrompt(m.Goal), false)

	strategy := "Systematic deep research"
	queries := []string{m.Goal}
	estimated := 30

	if data, ok := backend.ExtractObject(text); ok {
		if s, ok := data["strategy"].(string); ok && s != "" {
			strategy = s
		}
		if q := backend.StringList(data["discovery_queries"], 0); len(q) > 0 {
			queries = q
		}
		if est, ok := data["estimated_duration_minutes"].(float64); ok && est > 0 {
			estimated = int(est)
		}
	}

	tasks := make([]mission.ResearchTask, 0, len(queries))
	for _, q := range queries {
		tasks = append(tasks, mission.NewResearchTask(q))
	}
	return mission.NewResearchPlan(m.Goal, strategy, tasks, estimated)
}
