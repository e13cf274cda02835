package mission

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestMission() *Mission {
	m := New("best widgets",
		Criteria{MaxResults: 5, QualityThreshold: 0.7},
		ActionsConfig{ExportFormats: []string{"json"}},
		Settings{Depth: DepthDeep, MaxDeepening: 2},
	)
	f := NewFinding("Acme", "Software", "A widget tool")
	f.Features = []string{"a", "b"}
	f.Pricing = map[string]any{"tiers": []any{"free"}}
	m.AddFinding(f)
	return m
}

func TestNewMissionDefaults(t *testing.T) {
	m := newTestMission()
	if !strings.HasPrefix(m.ID, "msn_") {
		t.Errorf("ID = %q, want msn_ prefix", m.ID)
	}
	if m.State != StateCreated {
		t.Errorf("State = %q, want %q", m.State, StateCreated)
	}
	if m.Findings == nil || m.ActionsCompleted == nil {
		t.Error("collections must be initialized non-nil")
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateCompleted, StateFailed} {
		if !s.Terminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
	for _, s := range []State{StateCreated, StatePlanning, StateResearching,
		StateAnalyzing, StateScoring, StateCorrecting, StateExporting, StatePaused} {
		if s.Terminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
}

func TestProgress(t *testing.T) {
	m := newTestMission()
	if got := m.Progress(); got != 0 {
		t.Errorf("Progress with zero total = %v, want 0", got)
	}
	m.TotalSteps = 8
	m.CompletedSteps = 4
	if got := m.Progress(); got != 0.5 {
		t.Errorf("Progress = %v, want 0.5", got)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	m := newTestMission()
	m.Synthesis = map[string]any{"executive_summary": "ok"}
	m.Plan = NewResearchPlan(m.Goal, "strategy", []ResearchTask{NewResearchTask("q1")}, 30)

	clone := m.Clone()
	if diff := cmp.Diff(m, clone); diff != "" {
		t.Fatalf("clone differs (-want +got):\n%s", diff)
	}

	// Mutating the clone must not reach the original.
	clone.Findings[0].Features[0] = "mutated"
	clone.Findings[0].Pricing["tiers"] = "mutated"
	clone.Synthesis["executive_summary"] = "mutated"
	clone.Plan.Tasks[0].Status = "done"

	if m.Findings[0].Features[0] == "mutated" {
		t.Error("finding features aliased between clone and original")
	}
	if m.Findings[0].Pricing["tiers"] == "mutated" {
		t.Error("finding pricing aliased between clone and original")
	}
	if m.Synthesis["executive_summary"] == "mutated" {
		t.Error("synthesis aliased between clone and original")
	}
	if m.Plan.Tasks[0].Status == "done" {
		t.Error("plan tasks aliased between clone and original")
	}
}

func TestToCheckpointSnapshotIsIsolated(t *testing.T) {
	m := newTestMission()
	m.CompletedSteps = 3
	m.ContinuityToken = "token-abc"

	cp := m.ToCheckpoint()
	if cp.MissionID != m.ID {
		t.Errorf("MissionID = %q, want %q", cp.MissionID, m.ID)
	}
	if cp.CurrentStep != 3 || cp.ContinuityToken != "token-abc" {
		t.Errorf("checkpoint did not capture progress: step=%d token=%q",
			cp.CurrentStep, cp.ContinuityToken)
	}
	if diff := cmp.Diff(m.Findings, cp.Findings); diff != "" {
		t.Fatalf("checkpoint findings differ (-want +got):\n%s", diff)
	}

	// Later enrichment must not leak into the snapshot.
	m.Findings[0].Features = append(m.Findings[0].Features, "new-feature")
	m.Findings[0].Pricing["starting_price"] = "$9"
	if len(cp.Findings[0].Features) != 2 {
		t.Error("checkpoint features aliased to live finding")
	}
	if _, ok := cp.Findings[0].Pricing["starting_price"]; ok {
		t.Error("checkpoint pricing aliased to live finding")
	}
}

func TestMarkDeepened(t *testing.T) {
	f := NewFinding("Acme", "", "")
	if f.LastDeepened != nil {
		t.Fatal("LastDeepened should start nil")
	}
	f.MarkDeepened()
	if f.LastDeepened == nil {
		t.Fatal("MarkDeepened did not set timestamp")
	}
}
