// Package mission defines the domain model for long-running research
// missions: the mission record itself, its progressively enriched findings,
// the research plan, and the checkpoint snapshots used for pause/resume.
//
// Missions move through a fixed phase sequence (see internal/pipeline) and
// are persisted as whole records (see internal/store). All types here are
// plain data; cross-goroutine safety is the stores' concern.
package mission

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of a mission.
type State string

const (
	StateCreated     State = "created"
	StatePlanning    State = "planning"
	StateResearching State = "researching"
	StateAnalyzing   State = "analyzing"
	StateScoring     State = "scoring"
	StateCorrecting  State = "correcting"
	StateExporting   State = "exporting"
	StatePaused      State = "paused"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Depth levels for research, from quickest to most thorough.
const (
	DepthShallow    = "shallow"
	DepthModerate   = "moderate"
	DepthDeep       = "deep"
	DepthExhaustive = "exhaustive"
)

// Criteria describes the quality bar a mission's findings must meet.
type Criteria struct {
	QualityThreshold float64  `json:"quality_threshold"`
	RequiredFields   []string `json:"required_fields,omitempty"`
	MaxResults       int      `json:"max_results"`
}

// ActionsConfig configures the actions taken once research completes.
type ActionsConfig struct {
	ExportFormats  []string `json:"export_formats,omitempty"`
	FilenamePrefix string   `json:"filename_prefix,omitempty"`
}

// Settings holds free-form per-mission tuning knobs.
type Settings struct {
	Depth              string `json:"depth,omitempty"`
	MaxDeepening       int    `json:"max_deepening,omitempty"`
	MaxDurationMinutes int    `json:"max_duration_minutes,omitempty"`
}

// ResearchTask is a single planned query within a research plan.
type ResearchTask struct {
	ID       string           `json:"id"`
	Query    string           `json:"query"`
	Priority int              `json:"priority"`
	Status   string           `json:"status"`
	Results  []map[string]any `json:"results,omitempty"`
}

// NewResearchTask creates a pending task for the given query.
func NewResearchTask(query string) ResearchTask {
	return ResearchTask{
		ID:       uuid.NewString()[:8],
		Query:    query,
		Priority: 1,
		Status:   "pending",
	}
}

// ResearchPlan is the strategy object produced in the planning phase.
// It is created once and read-only thereafter.
type ResearchPlan struct {
	ID                       string         `json:"id"`
	Goal                     string         `json:"goal"`
	Strategy                 string         `json:"strategy"`
	Tasks                    []ResearchTask `json:"tasks,omitempty"`
	EstimatedDurationMinutes int            `json:"estimated_duration_minutes"`
	CreatedAt                time.Time      `json:"created_at"`
}

// NewResearchPlan creates a plan for the given goal and strategy.
func NewResearchPlan(goal, strategy string, tasks []ResearchTask, estMinutes int) *ResearchPlan {
	return &ResearchPlan{
		ID:                       uuid.NewString()[:8],
		Goal:                     goal,
		Strategy:                 strategy,
		Tasks:                    tasks,
		EstimatedDurationMinutes: estMinutes,
		CreatedAt:                time.Now().UTC(),
	}
}

// Action records one completed (or failed) mission action, e.g. an export.
type Action struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Format      string    `json:"format,omitempty"`
	Status      string    `json:"status"`
	FilePath    string    `json:"file_path,omitempty"`
	RecordCount int       `json:"record_count,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Mission is the unit of work: one end-to-end research task.
type Mission struct {
	ID            string        `json:"id"`
	Goal          string        `json:"goal"`
	Criteria      Criteria      `json:"criteria"`
	ActionsConfig ActionsConfig `json:"actions_config"`
	Settings      Settings      `json:"settings"`

	State           State  `json:"state"`
	CurrentActivity string `json:"current_activity"`

	Plan             *ResearchPlan  `json:"plan,omitempty"`
	Findings         []*Finding     `json:"findings"`
	ActionsCompleted []Action       `json:"actions_completed"`
	Synthesis        map[string]any `json:"synthesis,omitempty"`

	TotalSteps      int `json:"total_steps"`
	CompletedSteps  int `json:"completed_steps"`
	CorrectionsMade int `json:"corrections_made"`

	// ContinuityToken lets a resumed mission continue a prior backend
	// conversation context.
	ContinuityToken string `json:"continuity_token,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a mission in StateCreated.
func New(goal string, criteria Criteria, actions ActionsConfig, settings Settings) *Mission {
	now := time.Now().UTC()
	return &Mission{
		ID:               fmt.Sprintf("msn_%s", uuid.NewString()[:8]),
		Goal:             goal,
		Criteria:         criteria,
		ActionsConfig:    actions,
		Settings:         settings,
		State:            StateCreated,
		CurrentActivity:  "Initializing...",
		Findings:         []*Finding{},
		ActionsCompleted: []Action{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// SetState transitions the mission and refreshes the activity string.
func (m *Mission) SetState(state State, activity string) {
	m.State = state
	if activity != "" {
		m.CurrentActivity = activity
	}
	m.UpdatedAt = time.Now().UTC()
}

// AddFinding appends a finding. Findings are append-only during a run.
func (m *Mission) AddFinding(f *Finding) {
	m.Findings = append(m.Findings, f)
	m.UpdatedAt = time.Now().UTC()
}

// AddAction records a completed action.
func (m *Mission) AddAction(a Action) {
	m.ActionsCompleted = append(m.ActionsCompleted, a)
	m.UpdatedAt = time.Now().UTC()
}

// Progress returns completed/total as a fraction in [0,1].
func (m *Mission) Progress() float64 {
	if m.TotalSteps <= 0 {
		return 0
	}
	return float64(m.CompletedSteps) / float64(m.TotalSteps)
}

// Clone returns a deep copy of the mission. Stores hand out clones so the
// pipeline and the control surface never alias the same record.
func (m *Mission) Clone() *Mission {
	out := *m
	if m.Plan != nil {
		plan := *m.Plan
		plan.Tasks = make([]ResearchTask, len(m.Plan.Tasks))
		copy(plan.Tasks, m.Plan.Tasks)
		out.Plan = &plan
	}
	out.Findings = make([]*Finding, len(m.Findings))
	for i, f := range m.Findings {
		out.Findings[i] = f.Clone()
	}
	out.ActionsCompleted = make([]Action, len(m.ActionsCompleted))
	copy(out.ActionsCompleted, m.ActionsCompleted)
	out.Synthesis = cloneMap(m.Synthesis)
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// ToCheckpoint captures a resumable snapshot of the mission. Findings are
// deep-copied so later enrichment cannot leak into the snapshot.
func (m *Mission) ToCheckpoint() *Checkpoint {
	findings := make([]*Finding, len(m.Findings))
	for i, f := range m.Findings {
		findings[i] = f.Clone()
	}
	actionIDs := make([]string, 0, len(m.ActionsCompleted))
	for _, a := range m.ActionsCompleted {
		actionIDs = append(actionIDs, a.ID)
	}
	var plan *ResearchPlan
	if m.Plan != nil {
		p := *m.Plan
		p.Tasks = make([]ResearchTask, len(m.Plan.Tasks))
		copy(p.Tasks, m.Plan.Tasks)
		plan = &p
	}
	return &Checkpoint{
		ID:               uuid.NewString()[:8],
		MissionID:        m.ID,
		State:            m.State,
		Plan:             plan,
		Findings:         findings,
		ActionsCompleted: actionIDs,
		CurrentStep:      m.CompletedSteps,
		ContinuityToken:  m.ContinuityToken,
		CreatedAt:        time.Now().UTC(),
	}
}

// Checkpoint is an immutable snapshot enabling pause/resume.
type Checkpoint struct {
	ID               string        `json:"id"`
	MissionID        string        `json:"mission_id"`
	State            State         `json:"state"`
	Plan             *ResearchPlan `json:"plan,omitempty"`
	Findings         []*Finding    `json:"findings"`
	ActionsCompleted []string      `json:"actions_completed"`
	CurrentStep      int           `json:"current_step"`
	ContinuityToken  string        `json:"continuity_token,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = cloneMap(vv)
		case []any:
			cp := make([]any, len(vv))
			copy(cp, vv)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
