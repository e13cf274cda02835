package pipeline

import (
	"context"
	"fmt"
	"sort"

	"chronicle/internal/backend"
	"chronicle/internal/mission"
)

// runComparison compares the top findings pairwise. Each finding is compared
// with its next two neighbors in depth-score order, within a global pair
// budget. Notes are recorded symmetrically on both findings.
func (r *Runner) runComparison(ctx context.Context, m *mission.Mission, findings []*mission.Finding) {
	if len(findings) < 2 {
		return
	}

	top := byDepthDesc(findings)
	if len(top) > 8 {
		top = top[:8]
	}

	maxPairs := r.cfg.Research.ComparisonPairs
	if maxPairs > 10 {
		maxPairs = 10
	}

	pairsDone := 0
	for i, a := range top {
		for j := i + 1; j < len(top) && j <= i+2; j++ {
			if pairsDone >= maxPairs {
				return
			}
			b := top[j]
			r.bus.EmitProgress(m.ID, pairsDone+1, maxPairs,
				fmt.Sprintf("Comparing: %s vs %s", a.Name, b.Name))

			if data, ok := backend.ExtractObject(r.query(ctx, comparisonPrompt(a.Name, b.Name), true)); ok {
				if note, ok := data["comparison"].(string); ok && note != "" {
					if a.ComparisonNotes == nil {
						a.ComparisonNotes = make(map[string]string)
					}
					if b.ComparisonNotes == nil {
						b.ComparisonNotes = make(map[string]string)
					}
					a.ComparisonNotes[b.Name] = note
					b.ComparisonNotes[a.Name] = note
				}
			}
			pairsDone++
		}
	}
}

// runValidation verifies pricing claims for the top findings and records the
// confirming sources. Findings without pricing are skipped but still get
// their source count refreshed.
func (r *Runner) runValidation(ctx context.Context, m *mission.Mission, findings []*mission.Finding) {
	top := byDepthDesc(findings)
	if len(top) > r.cfg.Research.ValidationTargets {
		top = top[:r.cfg.Research.ValidationTargets]
	}

	for i, f := range top {
		r.bus.EmitProgress(m.ID, i+1, len(top), fmt.Sprintf("Validating: %s", f.Name))

		if len(f.Pricing) > 0 {
			if data, ok := backend.ExtractObject(r.query(ctx, validationPrompt(f.Name), true)); ok {
				if source, ok := data["source"].(string); ok && source != "" {
					f.Sources = append(f.Sources, source)
				}
			}
		}
		f.SourceCount = len(f.Sources)
	}
}

// byDepthDesc returns a sorted copy; the underlying findings are shared.
func byDepthDesc(findings []*mission.Finding) []*mission.Finding {
	out := make([]*mission.Finding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DepthScore > out[j].DepthScore
	})
	return out
}
