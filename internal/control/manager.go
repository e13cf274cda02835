// Package control is the mission control surface: lifecycle commands
// (start, pause, resume, retry, cancel), status and findings queries, event
// subscriptions, and on-demand exports. It owns the running-mission registry
// and the concurrency cap; the pipeline itself never spawns missions.
package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"chronicle/internal/backend"
	"chronicle/internal/config"
	"chronicle/internal/events"
	"chronicle/internal/export"
	"chronicle/internal/mission"
	"chronicle/internal/pipeline"
	"chronicle/internal/store"
)

var (
	// ErrMissionNotFound is returned when the mission id is unknown.
	ErrMissionNotFound = errors.New("mission not found")

	// ErrInvalidState is returned when a command is not valid for the
	// mission's current state.
	ErrInvalidState = errors.New("invalid mission state")

	// ErrNoCheckpoint is returned when resuming a mission that has no
	// saved checkpoint.
	ErrNoCheckpoint = errors.New("no checkpoint available")

	// ErrMissionRunning is returned when a command requires the mission
	// to be stopped first.
	ErrMissionRunning = errors.New("mission is running")

	// ErrTooManyMissions is returned when the concurrent mission cap is
	// reached.
	ErrTooManyMissions = errors.New("too many concurrent missions")
)

// BackendFactory builds a research client for one mission run.
type BackendFactory func(ctx context.Context) (backend.ResearchClient, error)

// Manager coordinates mission lifecycles.
type Manager struct {
	missions    *store.MissionStore
	checkpoints *store.CheckpointStore
	bus         *events.Bus
	exporter    export.Exporter
	cfg         *config.Config
	log         *zap.Logger
	newBackend  BackendFactory
	sem         *semaphore.Weighted

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// ManagerConfig holds the manager's collaborators. Backend is optional; the
// default factory builds a Gemini client from the configuration.
type ManagerConfig struct {
	Store    *store.Store
	Bus      *events.Bus
	Exporter export.Exporter
	Config   *config.Config
	Logger   *zap.Logger
	Backend  BackendFactory
}

// NewManager creates a mission manager.
func NewManager(mc ManagerConfig) *Manager {
	log := mc.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg := mc.Config
	if cfg == nil {
		cfg = config.Default()
	}
	newBackend := mc.Backend
	if newBackend == nil {
		newBackend = func(ctx context.Context) (backend.ResearchClient, error) {
			return backend.NewGeminiBackend(ctx, backend.GeminiConfig{
				APIKey:       cfg.Backend.APIKey,
				Model:        cfg.Backend.Model,
				EnableSearch: cfg.Backend.EnableSearch,
			}, log)
		}
	}
	return &Manager{
		missions:    mc.Store.Missions,
		checkpoints: mc.Store.Checkpoints,
		bus:         mc.Bus,
		exporter:    mc.Exporter,
		cfg:         cfg,
		log:         log.Named("control"),
		newBackend:  newBackend,
		sem:         semaphore.NewWeighted(int64(cfg.Limits.MaxConcurrentMissions)),
		running:     make(map[string]context.CancelFunc),
	}
}

// CreateMission registers a new mission in the created state. It does not
// start research.
func (mgr *Manager) CreateMission(goal string, criteria mission.Criteria, actions mission.ActionsConfig, settings mission.Settings) (*mission.Mission, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("mission goal is required")
	}
	if settings.Depth == "" {
		settings.Depth = mgr.cfg.Research.Depth
	}
	if settings.MaxDeepening == 0 {
		settings.MaxDeepening = mgr.cfg.Research.MaxDeepening
	}

	m := mission.New(goal, criteria, actions, settings)
	if err := mgr.missions.Save(m); err != nil {
		return nil, err
	}
	mgr.log.Info("mission created", zap.String("mission_id", m.ID), zap.String("goal", goal))
	mgr.bus.EmitStatus(m.ID, string(m.State), m.CurrentActivity)
	return m, nil
}

// Start launches the pipeline for a created mission. The run continues in
// the background; ctx bounds the whole run.
func (mgr *Manager) Start(ctx context.Context, missionID string) error {
	m, err := mgr.get(missionID)
	if err != nil {
		return err
	}
	if m.State != mission.StateCreated {
		return fmt.Errorf("cannot start mission in state %s: %w", m.State, ErrInvalidState)
	}
	return mgr.launch(ctx, missionID)
}

// Pause checkpoints a mission and halts a running one at the next phase
// boundary. Any non-terminal mission can be paused, including one that has
// not started yet; pausing an already paused mission is a no-op.
func (mgr *Manager) Pause(ctx context.Context, missionID string) (*mission.Mission, error) {
	m, err := mgr.get(missionID)
	if err != nil {
		return nil, err
	}
	if m.State == mission.StatePaused {
		return m, nil
	}
	if m.State.Terminal() {
		return nil, fmt.Errorf("cannot pause mission in state %s: %w", m.State, ErrInvalidState)
	}

	cp := m.ToCheckpoint()
	if err := mgr.checkpoints.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	m.SetState(mission.StatePaused, fmt.Sprintf("Paused with %d findings", len(m.Findings)))
	if err := mgr.missions.Save(m); err != nil {
		return nil, err
	}
	mgr.log.Info("mission paused",
		zap.String("mission_id", m.ID),
		zap.String("checkpoint_id", cp.ID),
		zap.Int("findings", len(cp.Findings)))
	mgr.bus.EmitStatus(m.ID, string(m.State), m.CurrentActivity)
	return m, nil
}

// Resume restores a paused mission from its latest checkpoint and re-enters
// the pipeline. Restored findings are reused, not re-discovered.
func (mgr *Manager) Resume(ctx context.Context, missionID string) (*mission.Mission, error) {
	m, err := mgr.get(missionID)
	if err != nil {
		return nil, err
	}
	if m.State != mission.StatePaused {
		return nil, fmt.Errorf("cannot resume mission in state %s: %w", m.State, ErrInvalidState)
	}

	cp, err := mgr.checkpoints.Latest(missionID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("mission %s: %w", missionID, ErrNoCheckpoint)
	}

	m.Plan = cp.Plan
	m.Findings = cp.Findings
	m.CompletedSteps = cp.CurrentStep
	m.ContinuityToken = cp.ContinuityToken
	m.SetState(mission.StateResearching, fmt.Sprintf("Resuming from checkpoint %s...", cp.ID))
	if err := mgr.missions.Save(m); err != nil {
		return nil, err
	}
	mgr.log.Info("mission resumed",
		zap.String("mission_id", m.ID),
		zap.String("checkpoint_id", cp.ID),
		zap.Int("findings", len(cp.Findings)))
	mgr.bus.EmitStatus(m.ID, string(m.State), m.CurrentActivity)

	if err := mgr.launch(ctx, missionID); err != nil {
		return nil, err
	}
	return m, nil
}

// Retry resets a failed mission and starts it from scratch.
func (mgr *Manager) Retry(ctx context.Context, missionID string) (*mission.Mission, error) {
	m, err := mgr.get(missionID)
	if err != nil {
		return nil, err
	}
	if m.State != mission.StateFailed {
		return nil, fmt.Errorf("cannot retry mission in state %s: %w", m.State, ErrInvalidState)
	}

	m.Plan = nil
	m.Findings = []*mission.Finding{}
	m.ActionsCompleted = []mission.Action{}
	m.Synthesis = nil
	m.CompletedSteps = 0
	m.CorrectionsMade = 0
	m.ContinuityToken = ""
	m.CompletedAt = nil
	m.SetState(mission.StateCreated, "Retrying mission...")
	if err := mgr.missions.Save(m); err != nil {
		return nil, err
	}
	mgr.bus.EmitStatus(m.ID, string(m.State), m.CurrentActivity)

	if err := mgr.launch(ctx, missionID); err != nil {
		return nil, err
	}
	return m, nil
}

// Cancel stops a mission permanently. The failed state is persisted before
// the run context is cancelled so the pipeline cannot overwrite it.
func (mgr *Manager) Cancel(ctx context.Context, missionID string) (*mission.Mission, error) {
	m, err := mgr.get(missionID)
	if err != nil {
		return nil, err
	}
	if m.State.Terminal() {
		return nil, fmt.Errorf("cannot cancel mission in state %s: %w", m.State, ErrInvalidState)
	}

	m.SetState(mission.StateFailed, "Cancelled by user")
	if err := mgr.missions.Save(m); err != nil {
		return nil, err
	}
	mgr.bus.EmitStatus(m.ID, string(m.State), m.CurrentActivity)

	mgr.mu.Lock()
	cancel, ok := mgr.running[missionID]
	mgr.mu.Unlock()
	if ok {
		cancel()
	}
	mgr.log.Info("mission cancelled", zap.String("mission_id", missionID))
	return m, nil
}

// Status returns a snapshot of the mission.
func (mgr *Manager) Status(missionID string) (*mission.Mission, error) {
	return mgr.get(missionID)
}

// FindingsFilter narrows a findings query. Zero values match everything.
type FindingsFilter struct {
	MinDepth float64
	Category string
	Limit    int
}

// Findings returns the mission's findings matching the filter.
func (mgr *Manager) Findings(missionID string, filter FindingsFilter) ([]*mission.Finding, error) {
	m, err := mgr.get(missionID)
	if err != nil {
		return nil, err
	}

	var out []*mission.Finding
	for _, f := range m.Findings {
		if f.DepthScore < filter.MinDepth {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(f.Category, filter.Category) {
			continue
		}
		out = append(out, f)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Subscribe returns a live event stream for the mission. The channel closes
// when ctx is done.
func (mgr *Manager) Subscribe(ctx context.Context, missionID string) <-chan events.Event {
	return mgr.bus.Subscribe(ctx, missionID)
}

// History returns the most recent buffered events for the mission.
func (mgr *Manager) History(missionID string, limit int) []events.Event {
	return mgr.bus.History(missionID, limit)
}

// Export renders a completed mission into the given format on demand.
func (mgr *Manager) Export(ctx context.Context, missionID, format string) (mission.Action, error) {
	m, err := mgr.get(missionID)
	if err != nil {
		return mission.Action{}, err
	}
	if m.State != mission.StateCompleted {
		return mission.Action{}, fmt.Errorf("cannot export mission in state %s: %w", m.State, ErrInvalidState)
	}

	action := mgr.exporter.Export(ctx, m, format, true, m.ActionsConfig.FilenamePrefix)
	m.AddAction(action)
	if err := mgr.missions.Save(m); err != nil {
		return action, err
	}
	if action.Status == "success" {
		mgr.bus.EmitAction(m.ID, map[string]any{
			"type":         action.Type,
			"format":       action.Format,
			"file_path":    action.FilePath,
			"record_count": action.RecordCount,
		})
	}
	return action, nil
}

// Delete removes a stopped mission, its checkpoints, and its event history.
func (mgr *Manager) Delete(missionID string) (bool, error) {
	mgr.mu.Lock()
	_, isRunning := mgr.running[missionID]
	mgr.mu.Unlock()
	if isRunning {
		return false, fmt.Errorf("mission %s: %w", missionID, ErrMissionRunning)
	}

	if _, err := mgr.checkpoints.DeleteForMission(missionID); err != nil {
		return false, err
	}
	deleted, err := mgr.missions.Delete(missionID)
	if err != nil {
		return false, err
	}
	mgr.bus.ClearHistory(missionID)
	return deleted, nil
}

// List returns recent missions, most recently updated first.
func (mgr *Manager) List(limit, offset int) ([]*mission.Mission, error) {
	return mgr.missions.List(limit, offset)
}

// Wait blocks until all running missions finish.
func (mgr *Manager) Wait() {
	mgr.wg.Wait()
}

// Close cancels all running missions and waits for them to stop.
func (mgr *Manager) Close() {
	mgr.mu.Lock()
	for _, cancel := range mgr.running {
		cancel()
	}
	mgr.mu.Unlock()
	mgr.wg.Wait()
}

func (mgr *Manager) get(missionID string) (*mission.Mission, error) {
	m, err := mgr.missions.Get(missionID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("mission %s: %w", missionID, ErrMissionNotFound)
	}
	return m, nil
}

// launch runs the pipeline for the mission in the background, holding one
// slot of the concurrency cap for the duration.
func (mgr *Manager) launch(ctx context.Context, missionID string) error {
	if !mgr.sem.TryAcquire(1) {
		return ErrTooManyMissions
	}

	runCtx, cancel := context.WithCancel(ctx)
	mgr.mu.Lock()
	if _, exists := mgr.running[missionID]; exists {
		mgr.mu.Unlock()
		cancel()
		mgr.sem.Release(1)
		return fmt.Errorf("mission %s: %w", missionID, ErrMissionRunning)
	}
	mgr.running[missionID] = cancel
	mgr.mu.Unlock()

	mgr.wg.Add(1)
	go func() {
		defer mgr.wg.Done()
		defer mgr.sem.Release(1)
		defer cancel()
		defer func() {
			mgr.mu.Lock()
			delete(mgr.running, missionID)
			mgr.mu.Unlock()
		}()

		client, err := mgr.newBackend(runCtx)
		if err != nil {
			mgr.log.Error("failed to create research backend",
				zap.String("mission_id", missionID), zap.Error(err))
			mgr.failBeforeRun(missionID, err)
			return
		}

		runner := pipeline.NewRunner(pipeline.RunnerConfig{
			Missions: mgr.missions,
			Bus:      mgr.bus,
			Backend:  client,
			Exporter: mgr.exporter,
			Config:   mgr.cfg,
			Logger:   mgr.log,
		})
		if err := runner.Run(runCtx, missionID); err != nil {
			mgr.log.Error("mission run failed",
				zap.String("mission_id", missionID), zap.Error(err))
		}
	}()
	return nil
}

// failBeforeRun marks a mission failed when the run could not even start.
func (mgr *Manager) failBeforeRun(missionID string, cause error) {
	m, err := mgr.missions.Get(missionID)
	if err != nil || m == nil {
		return
	}
	m.SetState(mission.StateFailed, fmt.Sprintf("Error: %v", cause))
	if err := mgr.missions.Save(m); err != nil {
		mgr.log.Error("failed to persist failed mission",
			zap.String("mission_id", missionID), zap.Error(err))
	}
	mgr.bus.EmitStatus(m.ID, string(m.State), m.CurrentActivity)
	mgr.bus.EmitError(m.ID, cause.Error())
}
