// Package score computes the deterministic depth metric for findings.
// It is the only quantitative quality signal that does not depend on the
// research backend, so it must stay pure and reproducible.
package score

import "chronicle/internal/mission"

// maxAttributes is the number of countable attribute signals.
const maxAttributes = 10

// Attributes counts how many of the ten enrichable attributes are populated.
func Attributes(f *mission.Finding) int {
	count := 0
	if len(f.Pricing) > 0 {
		count++
	}
	if len(f.Features) > 0 {
		count++
	}
	if len(f.Pros) > 0 {
		count++
	}
	if len(f.Cons) > 0 {
		count++
	}
	if len(f.UseCases) > 0 {
		count++
	}
	if f.TargetAudience != "" {
		count++
	}
	if len(f.Competitors) > 0 {
		count++
	}
	if len(f.Integrations) > 0 {
		count++
	}
	if f.Website != "" {
		count++
	}
	if f.Description != "" {
		count++
	}
	return count
}

// Depth returns the depth score in [0,1]: one point per populated attribute
// plus 0.5 bonuses for rich data, normalized by the attribute maximum.
func Depth(f *mission.Finding) float64 {
	raw := float64(Attributes(f))
	if len(f.Features) >= 5 {
		raw += 0.5
	}
	if len(f.Pros) >= 3 {
		raw += 0.5
	}
	if len(f.Cons) >= 3 {
		raw += 0.5
	}
	if hasTiers(f.Pricing) {
		raw += 0.5
	}
	s := raw / maxAttributes
	if s > 1.0 {
		return 1.0
	}
	return s
}

// Rescore recomputes the finding's attribute count and depth score in place.
func Rescore(f *mission.Finding) {
	f.AttributeCount = Attributes(f)
	f.DepthScore = Depth(f)
}

// Mean returns the arithmetic mean of all findings' depth scores. Used as an
// independent cross-check against the backend's self-reported aggregate.
func Mean(findings []*mission.Finding) float64 {
	if len(findings) == 0 {
		return 0
	}
	sum := 0.0
	for _, f := range findings {
		sum += f.DepthScore
	}
	return sum / float64(len(findings))
}

func hasTiers(pricing map[string]any) bool {
	if pricing == nil {
		return false
	}
	tiers, ok := pricing["tiers"]
	if !ok {
		return false
	}
	switch v := tiers.(type) {
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	case string:
		return v != ""
	default:
		return tiers != nil
	}
}
