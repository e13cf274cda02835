// Package pipeline implements the mission phase state machine: the fixed
// sequence of research phases, the quality-driven deepening loop, and the
// transition rules that persist and publish progress after every phase.
//
// The pipeline runs one mission per Run call. Phases execute strictly in
// order and per-entity work within a phase is sequential, paced by a rate
// limiter on backend calls. Pause and cancel are observed cooperatively at
// phase boundaries by re-reading the persisted mission state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chronicle/internal/backend"
	"chronicle/internal/config"
	"chronicle/internal/events"
	"chronicle/internal/export"
	"chronicle/internal/mission"
	"chronicle/internal/store"
)

// totalPhases is the number of pipeline steps tracked on the mission.
const totalPhases = 8

// errInterrupted signals that the mission state was changed externally
// (pause or cancel) and the run loop should stop without overwriting it.
var errInterrupted = errors.New("mission interrupted")

// Runner executes the phase pipeline for missions.
type Runner struct {
	missions *store.MissionStore
	bus      *events.Bus
	backend  backend.ResearchClient
	exporter export.Exporter
	cfg      *config.Config
	log      *zap.Logger
	limiter  *rate.Limiter
}

// RunnerConfig holds the runner's collaborators.
type RunnerConfig struct {
	Missions *store.MissionStore
	Bus      *events.Bus
	Backend  backend.ResearchClient
	Exporter export.Exporter
	Config   *config.Config
	Logger   *zap.Logger
}

// NewRunner creates a pipeline runner.
func NewRunner(rc RunnerConfig) *Runner {
	log := rc.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg := rc.Config
	if cfg == nil {
		cfg = config.Default()
	}
	delay := cfg.QueryDelayDuration()
	var limiter *rate.Limiter
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	} else {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Runner{
		missions: rc.Missions,
		bus:      rc.Bus,
		backend:  rc.Backend,
		exporter: rc.Exporter,
		cfg:      cfg,
		log:      log.Named("pipeline"),
		limiter:  limiter,
	}
}

// Run drives the mission through all phases to a terminal state. A pause or
// cancel observed at a phase boundary stops the run without error; any other
// escaping error transitions the mission to failed.
func (r *Runner) Run(ctx context.Context, missionID string) error {
	m, err := r.missions.Get(missionID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("mission %s not found", missionID)
	}

	r.backend.SetContinuityToken(m.ContinuityToken)

	start := time.Now()
	err = r.runPhases(ctx, m)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errInterrupted), errors.Is(err, context.Canceled):
		r.log.Info("mission run stopped", zap.String("mission_id", m.ID), zap.Error(err))
		return nil
	default:
		r.log.Error("mission failed",
			zap.String("mission_id", m.ID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		r.failMission(m, err)
		return err
	}
}

func (r *Runner) runPhases(ctx context.Context, m *mission.Mission) error {
	m.TotalSteps = totalPhases
	targetCount := m.Criteria.MaxResults
	if targetCount <= 0 {
		targetCount = r.cfg.Research.TargetEntities
	}

	start := time.Now()

	// Phase 1: planning.
	if err := r.updateState(ctx, m, mission.StatePlanning, "Creating deep research plan..."); err != nil {
		return err
	}
	m.Plan = r.createPlan(ctx, m)
	if err := r.persist(ctx, m); err != nil {
		return err
	}

	// Phase 2: discovery.
	if err := r.updateState(ctx, m, mission.StateResearching, "Phase 1/4: Discovering entities..."); err != nil {
		return err
	}
	findings := r.runDiscovery(ctx, m, targetCount)
	m.Findings = findings
	if err := r.completeStep(ctx, m, 1); err != nil {
		return err
	}

	// Phase 3: deep dive.
	if err := r.updateState(ctx, m, mission.StateResearching, "Phase 2/4: Deep diving into entities..."); err != nil {
		return err
	}
	r.runDeepDive(ctx, m, findings)
	if err := r.completeStep(ctx, m, 2); err != nil {
		return err
	}

	// Phase 4: comparison.
	if err := r.updateState(ctx, m, mission.StateAnalyzing, "Phase 3/4: Comparing entities..."); err != nil {
		return err
	}
	r.runComparison(ctx, m, findings)
	if err := r.completeStep(ctx, m, 3); err != nil {
		return err
	}

	// Phase 5: validation.
	if err := r.updateState(ctx, m, mission.StateAnalyzing, "Phase 4/4: Validating claims..."); err != nil {
		return err
	}
	r.runValidation(ctx, m, findings)
	if err := r.completeStep(ctx, m, 4); err != nil {
		return err
	}

	// Phase 6: semantic scoring.
	if err := r.updateState(ctx, m, mission.StateScoring, "Evaluating research depth..."); err != nil {
		return err
	}
	result := r.semanticScore(ctx, m, findings)
	if err := r.completeStep(ctx, m, 5); err != nil {
		return err
	}

	// Phase 7: iterative deepening. Capped by iteration count, never by
	// score convergence, so it always terminates.
	iterations := 0
	maxIterations := m.Settings.MaxDeepening
	if maxIterations <= 0 {
		maxIterations = r.cfg.Research.MaxDeepening
	}
	for result.NeedsMoreDepth && iterations < maxIterations {
		if err := r.updateState(ctx, m, mission.StateCorrecting,
			fmt.Sprintf("Deepening shallow findings (iteration %d)...", iterations+1)); err != nil {
			return err
		}
		r.deepen(ctx, m, findings, result)
		result = r.semanticScore(ctx, m, findings)
		iterations++
		m.CorrectionsMade = iterations
	}
	if err := r.completeStep(ctx, m, 6); err != nil {
		return err
	}

	for _, f := range findings {
		r.bus.EmitFinding(m.ID, findingEvent(f))
	}

	// Phase 8: synthesis. Never fails the mission.
	if err := r.updateState(ctx, m, mission.StateAnalyzing, "Synthesizing comprehensive report..."); err != nil {
		return err
	}
	m.Synthesis = r.synthesize(ctx, m, findings, result)
	if err := r.completeStep(ctx, m, 7); err != nil {
		return err
	}

	// Export.
	if err := r.updateState(ctx, m, mission.StateExporting, "Creating exports..."); err != nil {
		return err
	}
	r.runExports(ctx, m)

	// Complete.
	now := time.Now().UTC()
	m.CompletedAt = &now
	m.CompletedSteps = totalPhases
	elapsed := time.Since(start)
	if err := r.updateState(ctx, m, mission.StateCompleted,
		fmt.Sprintf("Deep research completed in %.1f minutes", elapsed.Minutes())); err != nil {
		return err
	}

	r.bus.EmitComplete(m.ID, map[string]any{
		"findings_count":      len(m.Findings),
		"exports_count":       len(m.ActionsCompleted),
		"corrections_made":    m.CorrectionsMade,
		"duration_seconds":    elapsed.Seconds(),
		"average_depth_score": result.AverageDepthScore,
	})
	return nil
}

// updateState transitions the mission, persists it, and publishes a status
// event. It refuses to overwrite an externally changed state.
func (r *Runner) updateState(ctx context.Context, m *mission.Mission, state mission.State, activity string) error {
	if err := r.checkInterrupt(ctx, m); err != nil {
		return err
	}
	m.SetState(state, activity)
	if err := r.saveActive(m); err != nil {
		return err
	}
	r.bus.EmitStatus(m.ID, string(state), activity)
	return nil
}

// completeStep records phase completion and persists before the next phase.
func (r *Runner) completeStep(ctx context.Context, m *mission.Mission, step int) error {
	if err := r.checkInterrupt(ctx, m); err != nil {
		return err
	}
	m.CompletedSteps = step
	m.ContinuityToken = r.backend.ContinuityToken()
	m.UpdatedAt = time.Now().UTC()
	return r.saveActive(m)
}

func (r *Runner) persist(ctx context.Context, m *mission.Mission) error {
	if err := r.checkInterrupt(ctx, m); err != nil {
		return err
	}
	return r.saveActive(m)
}

// saveActive persists through the store's conditional write, so a pause or
// cancel that landed after checkInterrupt is never overwritten.
func (r *Runner) saveActive(m *mission.Mission) error {
	ok, err := r.missions.SaveIfActive(m)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("mission %s state changed externally: %w", m.ID, errInterrupted)
	}
	return nil
}

// checkInterrupt re-reads the persisted state; pause and cancel are applied
// by the control surface to the stored record, and the pipeline observes
// them here at phase boundaries.
func (r *Runner) checkInterrupt(ctx context.Context, m *mission.Mission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored, err := r.missions.Get(m.ID)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("mission %s disappeared: %w", m.ID, errInterrupted)
	}
	if stored.State == mission.StatePaused || stored.State.Terminal() {
		return fmt.Errorf("mission %s is %s: %w", m.ID, stored.State, errInterrupted)
	}
	return nil
}

// failMission transitions the mission to failed and publishes the error.
// Fatal orchestration errors are not retried automatically; the mission is
// left inspectable for a manual retry.
func (r *Runner) failMission(m *mission.Mission, cause error) {
	m.SetState(mission.StateFailed, fmt.Sprintf("Error: %v", cause))
	if err := r.missions.Save(m); err != nil {
		r.log.Error("failed to persist failed mission",
			zap.String("mission_id", m.ID), zap.Error(err))
	}
	r.bus.EmitStatus(m.ID, string(mission.StateFailed), m.CurrentActivity)
	r.bus.EmitError(m.ID, cause.Error())
}

// query issues one paced backend call. A failed or unparsable query degrades
// to an empty response; it is never escalated.
func (r *Runner) query(ctx context.Context, prompt string, grounded bool) string {
	if err := r.limiter.Wait(ctx); err != nil {
		return ""
	}
	text, err := r.backend.Query(ctx, prompt, grounded)
	if err != nil {
		r.log.Warn("backend query failed", zap.Error(err))
		return ""
	}
	return text
}

func findingEvent(f *mission.Finding) map[string]any {
	return map[string]any{
		"id":              f.ID,
		"name":            f.Name,
		"category":        f.Category,
		"description":     f.Description,
		"depth_score":     f.DepthScore,
		"attribute_count": f.AttributeCount,
		"source_count":    f.SourceCount,
	}
}
