package mission

import (
	"time"

	"github.com/google/uuid"
)

// Finding is one researched entity, progressively enriched across phases.
// A finding is never deleted once discovered, only enriched.
type Finding struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Website     string `json:"website,omitempty"`

	// Rich attributes gathered during deep dive and deepening.
	Pricing        map[string]any `json:"pricing,omitempty"`
	Features       []string       `json:"features,omitempty"`
	Pros           []string       `json:"pros,omitempty"`
	Cons           []string       `json:"cons,omitempty"`
	UseCases       []string       `json:"use_cases,omitempty"`
	TargetAudience string         `json:"target_audience,omitempty"`
	Competitors    []string       `json:"competitors,omitempty"`
	Integrations   []string       `json:"integrations,omitempty"`
	Founded        string         `json:"founded,omitempty"`
	Funding        string         `json:"funding,omitempty"`
	ReviewsSummary string         `json:"reviews_summary,omitempty"`

	// ComparisonNotes holds pairwise verdicts keyed by counterpart name.
	ComparisonNotes map[string]string `json:"comparison_notes,omitempty"`

	// Quality tracking.
	AttributeCount     int      `json:"attribute_count"`
	DepthScore         float64  `json:"depth_score"`
	SourceCount        int      `json:"source_count"`
	Sources            []string `json:"sources,omitempty"`
	ResearchIterations int      `json:"research_iterations"`
	ResearchQueries    []string `json:"research_queries,omitempty"`

	DiscoveredAt time.Time  `json:"discovered_at"`
	LastDeepened *time.Time `json:"last_deepened,omitempty"`

	// DiscoveredVia records the discovery query that surfaced the entity.
	DiscoveredVia string `json:"discovered_via,omitempty"`
}

// NewFinding creates a finding for a freshly discovered entity.
func NewFinding(name, category, description string) *Finding {
	return &Finding{
		ID:              uuid.NewString()[:12],
		Name:            name,
		Category:        category,
		Description:     description,
		ComparisonNotes: map[string]string{},
		DiscoveredAt:    time.Now().UTC(),
	}
}

// Clone returns a deep copy of the finding.
func (f *Finding) Clone() *Finding {
	out := *f
	out.Pricing = cloneMap(f.Pricing)
	out.Features = append([]string(nil), f.Features...)
	out.Pros = append([]string(nil), f.Pros...)
	out.Cons = append([]string(nil), f.Cons...)
	out.UseCases = append([]string(nil), f.UseCases...)
	out.Competitors = append([]string(nil), f.Competitors...)
	out.Integrations = append([]string(nil), f.Integrations...)
	out.Sources = append([]string(nil), f.Sources...)
	out.ResearchQueries = append([]string(nil), f.ResearchQueries...)
	if f.ComparisonNotes != nil {
		out.ComparisonNotes = make(map[string]string, len(f.ComparisonNotes))
		for k, v := range f.ComparisonNotes {
			out.ComparisonNotes[k] = v
		}
	}
	if f.LastDeepened != nil {
		t := *f.LastDeepened
		out.LastDeepened = &t
	}
	return &out
}

// MarkDeepened stamps the finding after an enrichment pass.
func (f *Finding) MarkDeepened() {
	now := time.Now().UTC()
	f.LastDeepened = &now
}
