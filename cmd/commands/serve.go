package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/overseer-dev/overseer/internal/config"
	"github.com/overseer-dev/overseer/internal/coordinator"
	"github.com/overseer-dev/overseer/internal/events"
	"github.com/overseer-dev/overseer/internal/executor"
	"github.com/overseer-dev/overseer/internal/gateway"
	"github.com/overseer-dev/overseer/internal/heartbeat"
	"github.com/overseer-dev/overseer/internal/history"
	"github.com/overseer-dev/overseer/internal/policy"
	"github.com/overseer-dev/overseer/internal/storage"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Overseer coordinator server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
			&cli.StringFlag{
				Name:  "security-mode",
				Usage: "Security mode (strict or permissive)",
			},
		},
		Action: runServe,
	}
}

func runServe(_ context.Context, cmd *cli.Command) error {
	logLevel := slog.LevelInfo
	if cmd.Bool("debug") {
		logLevel = slog.LevelDebug
	}

	// Load config
	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = config.Default()
	}

	if !cmd.Bool("debug") {
		logLevel = parseLogLevel(cfg.Log.Level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("security-mode") {
		cfg.Coordinator.SecurityMode = cmd.String("security-mode")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Event bus
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	// Audit log of every bus event, one JSONL file per plan
	eventLog := storage.NewEventLogger(filepath.Join(config.OverseerPath(), "events"), bus)
	defer eventLog.Close()

	// Risk policy
	var classifier *policy.Classifier
	if cfg.Policy.Path != "" {
		classifier, err = policy.Load(cfg.Policy.Path)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
		slog.Info("risk policy loaded", "path", cfg.Policy.Path)
	} else {
		classifier = policy.Default()
	}

	// Action history
	var store history.Store
	if cfg.History.Path == "memory" {
		store = history.NewMemStore()
	} else {
		store, err = history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
	}
	defer store.Close()

	// Agent executor client
	agent := executor.NewClient(cfg.Executor.BaseURL, cfg.Executor.Timeout.Duration(), slog.Default())

	// Coordinator
	coord, err := coordinator.New(coordinator.Options{
		Bus:          bus,
		Store:        store,
		Classifier:   classifier,
		Executor:     agent,
		SecurityMode: cfg.Coordinator.SecurityMode,
		ApprovalTTL:  cfg.Coordinator.ApprovalTTL.Duration(),
	})
	if err != nil {
		return fmt.Errorf("init coordinator: %w", err)
	}
	defer coord.Close()

	// Status reconciler
	reconciler, err := coordinator.NewReconciler(coord, cfg.Coordinator.ReconcileSchedule)
	if err != nil {
		return fmt.Errorf("init reconciler: %w", err)
	}
	reconciler.Start()
	defer reconciler.Stop()

	// Heartbeat file
	if cfg.Heartbeat.Enabled {
		hb := heartbeat.NewWriter(cfg.Heartbeat.Path, cfg.Heartbeat.Interval.Duration(), func() heartbeat.Snapshot {
			snap := coord.Model.Snapshot()
			return heartbeat.Snapshot{
				EmergencyStopped: snap.EmergencyStopped,
				CurrentPlanID:    snap.CurrentPlanID,
			}
		})
		hb.Start()
		defer hb.Stop()
	}

	// Gateway server
	server := gateway.NewServer(coord, cfg.Gateway.Host, cfg.Gateway.Port)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for signal or error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
