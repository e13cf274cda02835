package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chronicle/internal/config"
	"chronicle/internal/control"
	"chronicle/internal/events"
	"chronicle/internal/export"
	"chronicle/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	apiKey     string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chronicle",
	Short: "chronicle - deep research mission orchestrator",
	Long: `chronicle runs multi-phase deep research missions: plan, discover,
deep dive, compare, validate, score, and iteratively deepen until the
findings are decision-grade, then synthesize and export a report.

Missions are resumable: pause checkpoints the current findings and resume
picks up where the mission left off.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// app bundles the wired components behind the CLI commands.
type app struct {
	cfg     *config.Config
	store   *store.Store
	bus     *events.Bus
	manager *control.Manager
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		cfg.Backend.APIKey = apiKey
	}

	st, err := store.Open(cfg.Store.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(cfg.Events.HistoryLimit, cfg.HeartbeatDuration(), logger)
	exporter := export.NewFileExporter(cfg.Export.Dir, logger)
	manager := control.NewManager(control.ManagerConfig{
		Store:    st,
		Bus:      bus,
		Exporter: exporter,
		Config:   cfg,
		Logger:   logger,
	})

	return &app{cfg: cfg, store: st, bus: bus, manager: manager}, nil
}

func (a *app) close() {
	a.manager.Close()
	if err := a.store.Close(); err != nil {
		logger.Warn("failed to close store", zap.Error(err))
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "research backend API key (overrides config and env)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(findingsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(deleteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
