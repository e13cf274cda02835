package control

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"chronicle/internal/backend"
	"chronicle/internal/config"
	"chronicle/internal/events"
	"chronicle/internal/mission"
	"chronicle/internal/store"
)

func newTestManager(t *testing.T, sb *scriptedBackend) (*Manager, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "chronicle.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.Research.QueryDelay = "0s"

	mgr := NewManager(ManagerConfig{
		Store:    st,
		Bus:      events.NewBus(0, 0, nil),
		Exporter: &recordingExporter{},
		Config:   cfg,
		Backend: func(ctx context.Context) (backend.ResearchClient, error) {
			return sb, nil
		},
	})
	t.Cleanup(mgr.Close)
	return mgr, st
}

func createMission(t *testing.T, mgr *Manager) *mission.Mission {
	t.Helper()
	m, err := mgr.CreateMission("best widget tools",
		mission.Criteria{},
		mission.ActionsConfig{ExportFormats: []string{"json"}},
		mission.Settings{},
	)
	require.NoError(t, err)
	return m
}

func waitForState(t *testing.T, mgr *Manager, id string, want mission.State) *mission.Mission {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		m, err := mgr.Status(id)
		require.NoError(t, err)
		if m.State == want {
			return m
		}
		if m.State.Terminal() && want != m.State {
			t.Fatalf("mission reached %s while waiting for %s (%s)", m.State, want, m.CurrentActivity)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s", want)
	return nil
}

func TestCreateMissionRequiresGoal(t *testing.T) {
	mgr, _ := newTestManager(t, &scriptedBackend{})
	_, err := mgr.CreateMission("   ", mission.Criteria{}, mission.ActionsConfig{}, mission.Settings{})
	require.Error(t, err)
}

func TestCreateMissionAppliesDefaults(t *testing.T) {
	mgr, _ := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)
	assert.Equal(t, mission.StateCreated, m.State)
	assert.Equal(t, mission.DepthDeep, m.Settings.Depth)
	assert.Equal(t, 2, m.Settings.MaxDeepening)
}

func TestStartRunsMissionToCompletion(t *testing.T) {
	mgr, _ := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)

	require.NoError(t, mgr.Start(context.Background(), m.ID))
	mgr.Wait()

	got := waitForState(t, mgr, m.ID, mission.StateCompleted)
	assert.Len(t, got.Findings, 2)
	assert.NotEmpty(t, got.ActionsCompleted)
}

func TestStartRejectsNonCreatedState(t *testing.T) {
	mgr, _ := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)

	require.NoError(t, mgr.Start(context.Background(), m.ID))
	mgr.Wait()
	waitForState(t, mgr, m.ID, mission.StateCompleted)

	err := mgr.Start(context.Background(), m.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestStatusUnknownMission(t *testing.T) {
	mgr, _ := newTestManager(t, &scriptedBackend{})
	_, err := mgr.Status("msn_missing")
	require.ErrorIs(t, err, ErrMissionNotFound)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	sb := &scriptedBackend{gate: make(chan struct{})}
	mgr, st := newTestManager(t, sb)
	m := createMission(t, mgr)

	require.NoError(t, mgr.Start(context.Background(), m.ID))
	waitForState(t, mgr, m.ID, mission.StatePlanning)

	paused, err := mgr.Pause(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.StatePaused, paused.State)

	cp, err := st.Checkpoints.Latest(m.ID)
	require.NoError(t, err)
	require.NotNil(t, cp)

	// Release the held query; the runner must observe the pause and stop.
	close(sb.gate)
	mgr.Wait()
	got, err := mgr.Status(m.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.StatePaused, got.State)

	resumed, err := mgr.Resume(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.StateResearching, resumed.State)

	mgr.Wait()
	final := waitForState(t, mgr, m.ID, mission.StateCompleted)
	assert.GreaterOrEqual(t, len(final.Findings), len(cp.Findings))
}

func TestPauseIsIdempotent(t *testing.T) {
	sb := &scriptedBackend{gate: make(chan struct{})}
	mgr, _ := newTestManager(t, sb)
	m := createMission(t, mgr)

	require.NoError(t, mgr.Start(context.Background(), m.ID))
	waitForState(t, mgr, m.ID, mission.StatePlanning)

	_, err := mgr.Pause(context.Background(), m.ID)
	require.NoError(t, err)
	again, err := mgr.Pause(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.StatePaused, again.State)

	close(sb.gate)
	mgr.Wait()
}

func TestPauseCreatedMission(t *testing.T) {
	mgr, st := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)

	paused, err := mgr.Pause(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.StatePaused, paused.State)

	cp, err := st.Checkpoints.Latest(m.ID)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Empty(t, cp.Findings)

	// A mission paused before starting resumes into a normal run.
	resumed, err := mgr.Resume(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.StateResearching, resumed.State)
	mgr.Wait()
	waitForState(t, mgr, m.ID, mission.StateCompleted)
}

func TestPauseRejectsTerminalState(t *testing.T) {
	mgr, st := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)

	stored, err := st.Missions.Get(m.ID)
	require.NoError(t, err)
	stored.SetState(mission.StateFailed, "boom")
	require.NoError(t, st.Missions.Save(stored))

	_, err = mgr.Pause(context.Background(), m.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestResumeRequiresPausedState(t *testing.T) {
	mgr, _ := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)
	_, err := mgr.Resume(context.Background(), m.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestResumeWithoutCheckpoint(t *testing.T) {
	mgr, st := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)

	stored, err := st.Missions.Get(m.ID)
	require.NoError(t, err)
	stored.SetState(mission.StatePaused, "Paused")
	require.NoError(t, st.Missions.Save(stored))

	_, err = mgr.Resume(context.Background(), m.ID)
	require.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestRetryResetsFailedMission(t *testing.T) {
	mgr, st := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)

	stored, err := st.Missions.Get(m.ID)
	require.NoError(t, err)
	stored.AddFinding(mission.NewFinding("Stale", "", ""))
	stored.AddAction(mission.Action{ID: "exp_stale", Type: "export", Format: "csv", Status: "success"})
	stored.CompletedSteps = 3
	stored.SetState(mission.StateFailed, "boom")
	require.NoError(t, st.Missions.Save(stored))

	_, err = mgr.Retry(context.Background(), m.ID)
	require.NoError(t, err)
	mgr.Wait()

	final := waitForState(t, mgr, m.ID, mission.StateCompleted)
	for _, f := range final.Findings {
		assert.NotEqual(t, "Stale", f.Name, "retry must start from scratch")
	}

	// Pre-failure actions do not survive the reset; only the requested
	// export formats are recorded on the completed run.
	require.Len(t, final.ActionsCompleted, 1)
	assert.Equal(t, "json", final.ActionsCompleted[0].Format)
	for _, a := range final.ActionsCompleted {
		assert.NotEqual(t, "exp_stale", a.ID)
	}
}

func TestRetryRequiresFailedState(t *testing.T) {
	mgr, _ := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)
	_, err := mgr.Retry(context.Background(), m.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelStopsMission(t *testing.T) {
	sb := &scriptedBackend{gate: make(chan struct{})}
	mgr, _ := newTestManager(t, sb)
	m := createMission(t, mgr)

	require.NoError(t, mgr.Start(context.Background(), m.ID))
	waitForState(t, mgr, m.ID, mission.StatePlanning)

	cancelled, err := mgr.Cancel(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.StateFailed, cancelled.State)

	close(sb.gate)
	mgr.Wait()

	got, err := mgr.Status(m.ID)
	require.NoError(t, err)
	assert.Equal(t, mission.StateFailed, got.State)

	_, err = mgr.Cancel(context.Background(), m.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestConcurrencyCap(t *testing.T) {
	sb := &scriptedBackend{gate: make(chan struct{})}
	mgr, _ := newTestManager(t, sb)
	mgr.sem = semaphore.NewWeighted(1)

	m1 := createMission(t, mgr)
	m2 := createMission(t, mgr)

	require.NoError(t, mgr.Start(context.Background(), m1.ID))
	err := mgr.Start(context.Background(), m2.ID)
	require.ErrorIs(t, err, ErrTooManyMissions)

	close(sb.gate)
	mgr.Wait()
}

func TestFindingsFilter(t *testing.T) {
	mgr, st := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)

	stored, err := st.Missions.Get(m.ID)
	require.NoError(t, err)
	shallow := mission.NewFinding("Shallow", "Software", "")
	shallow.DepthScore = 0.2
	deep := mission.NewFinding("Deep", "Hardware", "")
	deep.DepthScore = 0.9
	stored.AddFinding(shallow)
	stored.AddFinding(deep)
	require.NoError(t, st.Missions.Save(stored))

	all, err := mgr.Findings(m.ID, FindingsFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	deepOnly, err := mgr.Findings(m.ID, FindingsFilter{MinDepth: 0.5})
	require.NoError(t, err)
	require.Len(t, deepOnly, 1)
	assert.Equal(t, "Deep", deepOnly[0].Name)

	hw, err := mgr.Findings(m.ID, FindingsFilter{Category: "hardware"})
	require.NoError(t, err)
	require.Len(t, hw, 1)
	assert.Equal(t, "Deep", hw[0].Name)

	limited, err := mgr.Findings(m.ID, FindingsFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestExportRequiresCompletedMission(t *testing.T) {
	mgr, _ := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)
	_, err := mgr.Export(context.Background(), m.ID, "json")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestExportOnDemand(t *testing.T) {
	mgr, _ := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)

	require.NoError(t, mgr.Start(context.Background(), m.ID))
	mgr.Wait()
	waitForState(t, mgr, m.ID, mission.StateCompleted)

	action, err := mgr.Export(context.Background(), m.ID, "csv")
	require.NoError(t, err)
	assert.Equal(t, "success", action.Status)
	assert.Equal(t, "csv", action.Format)

	got, err := mgr.Status(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "csv", got.ActionsCompleted[len(got.ActionsCompleted)-1].Format)
}

func TestDeleteMission(t *testing.T) {
	mgr, st := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)
	require.NoError(t, st.Checkpoints.Save(m.ToCheckpoint()))

	deleted, err := mgr.Delete(m.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = mgr.Status(m.ID)
	require.ErrorIs(t, err, ErrMissionNotFound)

	cp, err := st.Checkpoints.Latest(m.ID)
	require.NoError(t, err)
	assert.Nil(t, cp)

	deleted, err = mgr.Delete(m.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSubscribeStreamsLifecycle(t *testing.T) {
	mgr, _ := newTestManager(t, &scriptedBackend{})
	m := createMission(t, mgr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := mgr.Subscribe(ctx, m.ID)

	require.NoError(t, mgr.Start(context.Background(), m.ID))

	sawComplete := false
	timeout := time.After(10 * time.Second)
	for !sawComplete {
		select {
		case ev := <-stream:
			if ev.Type == events.TypeComplete {
				sawComplete = true
			}
		case <-timeout:
			t.Fatal("no complete event observed")
		}
	}
	assert.NotEmpty(t, mgr.History(m.ID, 0))
}
