package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"chronicle/internal/control"
	"chronicle/internal/events"
	"chronicle/internal/mission"
)

var (
	runFormats      []string
	runMaxResults   int
	runDepth        string
	runMaxDeepening int
	runPrefix       string
	runDetach       bool

	findingsMinDepth float64
	findingsCategory string
	findingsLimit    int

	eventsLimit  int
	exportFormat string
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Create and run a research mission",
	Long: `Creates a mission for the given goal and runs the full research
pipeline, streaming progress events until the mission completes. Ctrl-C
pauses the mission with a checkpoint instead of losing the work.

Example:
  chronicle run "best project management tools for small teams"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMission,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent missions",
	RunE:  listMissions,
}

var statusCmd = &cobra.Command{
	Use:   "status [mission-id]",
	Short: "Show mission state and progress",
	Args:  cobra.ExactArgs(1),
	RunE:  showStatus,
}

var findingsCmd = &cobra.Command{
	Use:   "findings [mission-id]",
	Short: "Show mission findings",
	Args:  cobra.ExactArgs(1),
	RunE:  showFindings,
}

var eventsCmd = &cobra.Command{
	Use:   "events [mission-id]",
	Short: "Show recent mission events",
	Args:  cobra.ExactArgs(1),
	RunE:  showEvents,
}

var exportCmd = &cobra.Command{
	Use:   "export [mission-id]",
	Short: "Export a completed mission",
	Args:  cobra.ExactArgs(1),
	RunE:  exportMission,
}

var pauseCmd = &cobra.Command{
	Use:   "pause [mission-id]",
	Short: "Pause a running mission with a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  pauseMission,
}

var resumeCmd = &cobra.Command{
	Use:   "resume [mission-id]",
	Short: "Resume a paused mission from its latest checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  resumeMission,
}

var retryCmd = &cobra.Command{
	Use:   "retry [mission-id]",
	Short: "Retry a failed mission from scratch",
	Args:  cobra.ExactArgs(1),
	RunE:  retryMission,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [mission-id]",
	Short: "Cancel a mission permanently",
	Args:  cobra.ExactArgs(1),
	RunE:  cancelMission,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [mission-id]",
	Short: "Delete a stopped mission and its checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteMission,
}

func init() {
	runCmd.Flags().StringSliceVar(&runFormats, "formats", []string{"json", "md"}, "export formats (json, csv, md)")
	runCmd.Flags().IntVar(&runMaxResults, "max-results", 0, "target entity count (0 uses config default)")
	runCmd.Flags().StringVar(&runDepth, "depth", "", "research depth (shallow, moderate, deep, exhaustive)")
	runCmd.Flags().IntVar(&runMaxDeepening, "max-deepening", 0, "deepening iteration cap (0 uses config default)")
	runCmd.Flags().StringVar(&runPrefix, "prefix", "", "export filename prefix")
	runCmd.Flags().BoolVar(&runDetach, "detach", false, "start the mission and exit without streaming events")

	findingsCmd.Flags().Float64Var(&findingsMinDepth, "min-depth", 0, "minimum depth score")
	findingsCmd.Flags().StringVar(&findingsCategory, "category", "", "filter by category")
	findingsCmd.Flags().IntVar(&findingsLimit, "limit", 0, "maximum findings to show")

	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "maximum events to show")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format (json, csv, md)")
}

func runMission(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	goal := strings.Join(args, " ")
	m, err := a.manager.CreateMission(goal,
		mission.Criteria{MaxResults: runMaxResults},
		mission.ActionsConfig{ExportFormats: runFormats, FilenamePrefix: runPrefix},
		mission.Settings{Depth: runDepth, MaxDeepening: runMaxDeepening},
	)
	if err != nil {
		return err
	}
	fmt.Printf("Mission %s created: %s\n", m.ID, m.Goal)

	if runDetach {
		if err := a.manager.Start(context.Background(), m.ID); err != nil {
			return err
		}
		fmt.Println("Mission started in background")
		return nil
	}
	// Subscribe before starting so no early events are missed.
	return streamMission(a, m.ID, func() error {
		return a.manager.Start(context.Background(), m.ID)
	})
}

// streamMission prints mission events until a terminal event arrives. The
// optional start hook runs once the subscription is live. SIGINT pauses the
// mission instead of abandoning it.
func streamMission(a *app, missionID string, start func() error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	stream := a.manager.Subscribe(ctx, missionID)
	if start != nil {
		if err := start(); err != nil {
			return err
		}
	}
	for {
		select {
		case <-sigCh:
			fmt.Println("\nPausing mission...")
			if _, err := a.manager.Pause(ctx, missionID); err != nil {
				return fmt.Errorf("failed to pause: %w", err)
			}
			a.manager.Wait()
			fmt.Printf("Mission %s paused; resume with: chronicle resume %s\n", missionID, missionID)
			return nil
		case ev, ok := <-stream:
			if !ok {
				return nil
			}
			printEvent(ev)
			switch ev.Type {
			case events.TypeComplete:
				return nil
			case events.TypeStatus:
				if state, _ := ev.Data["state"].(string); state == string(mission.StateFailed) {
					return fmt.Errorf("mission %s failed", missionID)
				}
			}
		}
	}
}

func printEvent(ev events.Event) {
	switch ev.Type {
	case events.TypeStatus:
		fmt.Printf("[%s] %v\n", ev.Data["state"], ev.Data["activity"])
	case events.TypeProgress:
		fmt.Printf("  %v (%.0f%%)\n", ev.Data["phase"], ev.Data["percentage"])
	case events.TypeFinding:
		fmt.Printf("  + %v (depth %.2f)\n", ev.Data["name"], ev.Data["depth_score"])
	case events.TypeAction:
		fmt.Printf("  exported %v -> %v\n", ev.Data["format"], ev.Data["file_path"])
	case events.TypeError:
		fmt.Printf("  error: %v\n", ev.Data["error"])
	case events.TypeComplete:
		fmt.Printf("Done: %v findings, %v exports\n",
			ev.Data["findings_count"], ev.Data["exports_count"])
	case events.TypeHeartbeat:
		// Keepalive only; nothing to print.
	}
}

func listMissions(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	missions, err := a.manager.List(50, 0)
	if err != nil {
		return err
	}
	if len(missions) == 0 {
		fmt.Println("No missions")
		return nil
	}
	for _, m := range missions {
		fmt.Printf("%s  %-12s  %3.0f%%  %s\n", m.ID, m.State, m.Progress()*100, m.Goal)
	}
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	m, err := a.manager.Status(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Mission:   %s\n", m.ID)
	fmt.Printf("Goal:      %s\n", m.Goal)
	fmt.Printf("State:     %s\n", m.State)
	fmt.Printf("Activity:  %s\n", m.CurrentActivity)
	fmt.Printf("Progress:  %d/%d steps (%.0f%%)\n", m.CompletedSteps, m.TotalSteps, m.Progress()*100)
	fmt.Printf("Findings:  %d\n", len(m.Findings))
	if m.CorrectionsMade > 0 {
		fmt.Printf("Deepening: %d iterations\n", m.CorrectionsMade)
	}
	for _, action := range m.ActionsCompleted {
		if action.Status == "success" {
			fmt.Printf("Export:    %s (%d records)\n", action.FilePath, action.RecordCount)
		}
	}
	return nil
}

func showFindings(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	findings, err := a.manager.Findings(args[0], control.FindingsFilter{
		MinDepth: findingsMinDepth,
		Category: findingsCategory,
		Limit:    findingsLimit,
	})
	if err != nil {
		return err
	}
	if len(findings) == 0 {
		fmt.Println("No findings match")
		return nil
	}
	for _, f := range findings {
		fmt.Printf("%-30s  depth %.2f  %d attrs  %s\n", f.Name, f.DepthScore, f.AttributeCount, f.Category)
		if f.Description != "" {
			fmt.Printf("  %s\n", f.Description)
		}
	}
	return nil
}

func showEvents(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	for _, ev := range a.manager.History(args[0], eventsLimit) {
		fmt.Printf("%s  %-9s  ", ev.Timestamp.Format("15:04:05"), ev.Type)
		printEvent(ev)
	}
	return nil
}

func exportMission(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	action, err := a.manager.Export(context.Background(), args[0], exportFormat)
	if err != nil {
		return err
	}
	if action.Status != "success" {
		return fmt.Errorf("export failed: %s", action.Error)
	}
	fmt.Printf("Exported %d records to %s\n", action.RecordCount, action.FilePath)
	return nil
}

func pauseMission(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	m, err := a.manager.Pause(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Mission %s paused with %d findings\n", m.ID, len(m.Findings))
	return nil
}

func resumeMission(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	m, err := a.manager.Resume(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Mission %s resuming with %d findings\n", m.ID, len(m.Findings))
	return streamMission(a, m.ID, nil)
}

func retryMission(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	m, err := a.manager.Retry(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Mission %s restarted\n", m.ID)
	return streamMission(a, m.ID, nil)
}

func cancelMission(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	m, err := a.manager.Cancel(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Mission %s cancelled\n", m.ID)
	return nil
}

func deleteMission(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	deleted, err := a.manager.Delete(args[0])
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("mission %s not found", args[0])
	}
	fmt.Printf("Mission %s deleted\n", args[0])
	return nil
}
