package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/chatcast/internal/api"
	"github.com/Dicklesworthstone/chatcast/internal/broadcast"
	"github.com/Dicklesworthstone/chatcast/internal/config"
	"github.com/Dicklesworthstone/chatcast/internal/db"
	"github.com/Dicklesworthstone/chatcast/internal/inbox"
	"github.com/Dicklesworthstone/chatcast/internal/inject"
	"github.com/Dicklesworthstone/chatcast/internal/logging"
	"github.com/Dicklesworthstone/chatcast/internal/readiness"
	"github.com/Dicklesworthstone/chatcast/internal/session"
	"github.com/Dicklesworthstone/chatcast/internal/signals"
	"github.com/Dicklesworthstone/chatcast/internal/state"
	"github.com/Dicklesworthstone/chatcast/internal/target"
	"github.com/Dicklesworthstone/chatcast/internal/urlsync"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broadcast daemon",
	Long: `Launch one browser session per target and serve the HTTP API.

Each target gets its own user-data directory under $CHATCAST_HOME/profiles, so
logins survive restarts and never leak between services. Sessions open at the
last URL seen for each target.

The daemon listens on loopback only by default. The API has no authentication.

Examples:
  # Start with defaults (chromedp when Chrome is installed, otherwise rod)
  chatcast serve

  # Force the rod backend and run headless
  chatcast serve --backend rod --headless

  # Broadcast every file dropped into a folder
  chatcast serve --inbox ~/chatcast-inbox`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("backend", "", "browser backend: chromedp (preferred), rod, or auto")
	serveCmd.Flags().Bool("headless", false, "run browsers headless")
	serveCmd.Flags().String("inbox", "", "watch this directory for message files")
	serveCmd.Flags().Bool("debug-scripts", false, "log page-side diagnostics from injected scripts")
}

// applyServeFlags overrides config values with flags the user set.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("backend") {
		v, _ := cmd.Flags().GetString("backend")
		cfg.Backend = v
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless, _ = cmd.Flags().GetBool("headless")
	}
	if cmd.Flags().Changed("inbox") {
		cfg.InboxDir, _ = cmd.Flags().GetString("inbox")
	}
	if cmd.Flags().Changed("debug-scripts") {
		cfg.DebugScripts, _ = cmd.Flags().GetBool("debug-scripts")
	}
	return cfg.Validate()
}

func loadRegistry(cfg *config.Config) (*target.Registry, error) {
	if cfg.TargetsFile == "" {
		return target.Default(), nil
	}
	reg, err := target.LoadFile(config.ResolvePath(cfg.TargetsFile))
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	return reg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Log, os.Stderr, verbose)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	if !cfg.ListenIsLoopback() {
		logger.Warn("API listens beyond loopback and has no authentication",
			"listen", cfg.Listen,
			"action", "startup")
	}

	pidPath := signals.DefaultPIDFilePath()
	if err := signals.Acquire(pidPath); err != nil {
		return err
	}
	defer signals.Release(pidPath)

	sig, err := signals.New()
	if err != nil {
		return fmt.Errorf("install signal handler: %w", err)
	}
	defer sig.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	database, err := db.Open()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	if moved := database.Quarantined(); moved != "" {
		logger.Warn("database was corrupt and has been recreated",
			"path", database.Path(),
			"moved_to", moved,
			"action", "db_recover")
	}

	store := state.New(database, registry, logger)
	store.Load(ctx)

	pruneHistory(ctx, database, cfg.HistoryRetention.Duration(), logger)

	urls := urlsync.New(store, urlsync.Config{
		Quiet:  cfg.Timings.URLQuiet.Duration(),
		Logger: logger,
	})

	launcher := session.NewLauncher(session.Backend(cfg.Backend), session.LaunchOptions{
		ChromePath:   cfg.ChromePath,
		Headless:     cfg.Headless,
		ExtraFlags:   cfg.ChromeArgs,
		StartTimeout: cfg.Timings.LaunchTimeout.Duration(),
		Logger:       logger,
	})
	manager := session.NewManager(session.ManagerConfig{
		Launcher:         launcher,
		ProfilesDir:      config.ProfilesDir(),
		OnNavigate:       urls.Observe,
		OnTeardown:       urls.Forget,
		MountConcurrency: cfg.MountConcurrency,
		Logger:           logger,
	})

	tracker := readiness.New(manager, registry.IDs(), readiness.Config{
		Interval: cfg.Timings.ReadinessInterval.Duration(),
		Ceiling:  cfg.Timings.ReadinessCeiling.Duration(),
		Logger:   logger,
	})

	orchestrator, err := broadcast.New(broadcast.Config{
		Registry:  registry,
		Sessions:  manager,
		Readiness: tracker,
		Enabled:   store,
		Injector: inject.New(inject.Config{
			StructuredMarker: cfg.StructuredMarker,
			Debug:            cfg.DebugScripts,
			Logger:           logger,
		}),
		Recorder:      database,
		SubmitDelay:   cfg.Timings.SubmitDelay.Duration(),
		SettleDelay:   cfg.Timings.SettleDelay.Duration(),
		TargetTimeout: cfg.Timings.TargetTimeout.Duration(),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		Addr:         cfg.Listen,
		Registry:     registry,
		Settings:     store,
		Readiness:    tracker,
		Broadcaster:  orchestrator,
		Sessions:     manager,
		History:      database,
		Version:      Version,
		WriteTimeout: cfg.Timings.RequestTimeout.Duration(),
		Logger:       logger,
	})

	var watcher *inbox.Watcher
	if cfg.InboxDir != "" {
		watcher, err = inbox.New(orchestrator, inbox.Config{
			Dir:         config.ResolvePath(cfg.InboxDir),
			MinInterval: cfg.InboxInterval.Duration(),
			Logger:      logger,
		})
		if err != nil {
			return err
		}
	}

	stopPruner, err := startPruner(ctx, database, cfg.PruneSchedule, cfg.HistoryRetention.Duration(), logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "chatcast daemon starting\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  Backend: %s\n", manager.Backend())
	fmt.Fprintf(cmd.OutOrStdout(), "  API: http://%s\n", cfg.Listen)
	fmt.Fprintf(cmd.OutOrStdout(), "  Targets: %d\n", registry.Len())
	if watcher != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "  Inbox: %s\n", watcher.Dir())
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop.")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("API shutdown error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := tracker.Start(gctx); err != nil {
			logger.Warn("readiness tracker not started", "error", err)
		}
		failed := manager.MountAll(gctx, registry.All(), store.InitialURL)
		logger.Info("sessions mounted",
			"mounted", registry.Len()-len(failed),
			"failed", len(failed),
			"action", "mount")
		// Launches can outlast the readiness ceiling; poll once more so late
		// sessions are picked up.
		if !tracker.Running() && gctx.Err() == nil {
			_ = tracker.Start(gctx)
		}
		return nil
	})
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case s := <-sig.Shutdown():
				logger.Info("signal received", "signal", s.String(), "action", "shutdown")
				cancel()
				return nil
			case <-sig.Reload():
				if err := tracker.Start(gctx); err != nil {
					logger.Debug("readiness re-poll skipped", "error", err)
					continue
				}
				logger.Info("readiness re-poll started", "action", "reload")
			case <-sig.DumpStats():
				dumpState(logger, store, tracker, orchestrator)
			}
		}
	})

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down...")
	shutdownSessions(urls, tracker, manager, logger)
	stopPruner()

	if err := database.Close(); err != nil {
		logger.Warn("close database", "error", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "chatcast daemon stopped.")
	return runErr
}

// shutdownSessions writes pending URLs before the sessions that produced them
// go away.
func shutdownSessions(urls *urlsync.Synchronizer, tracker *readiness.Tracker, manager *session.Manager, logger *slog.Logger) {
	urls.Flush()
	urls.Close()
	tracker.Stop()
	if err := manager.Close(); err != nil {
		logger.Warn("close sessions", "error", err)
	}
}

// dumpState logs the daemon's view of every target, for SIGUSR1.
func dumpState(logger *slog.Logger, store *state.Store, tracker *readiness.Tracker, orchestrator *broadcast.Orchestrator) {
	snap := store.Snapshot()
	ready := tracker.Snapshot()
	logger.Info("state dump",
		"layout", string(snap.Layout),
		"zoom", snap.Zoom,
		"enabled", snap.EnabledCount(),
		"busy", orchestrator.Busy(),
		"readiness_polls", tracker.Polls(),
		"action", "dump")
	for id, on := range snap.Enabled {
		logger.Info("target state",
			"target", id,
			"enabled", on,
			"ready", ready[id],
			"last_url", snap.LastURLs[id],
			"action", "dump")
	}
	if last := orchestrator.Last(); last != nil {
		logger.Info("last cycle",
			"cycle", last.CycleID,
			"delivered", last.Delivered(),
			"attempted", last.Attempted(),
			"action", "dump")
	}
}

// startPruner prunes the dispatch log on schedule until the returned stop
// func is called. An empty schedule or zero retention disables it.
func startPruner(ctx context.Context, database *db.DB, schedule string, retention time.Duration, logger *slog.Logger) (func(), error) {
	if schedule == "" || retention <= 0 {
		return func() {}, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		pruneHistory(ctx, database, retention, logger)
	}); err != nil {
		return nil, fmt.Errorf("prune schedule %q: %w", schedule, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

func pruneHistory(ctx context.Context, database *db.DB, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	n, err := database.PruneOutcomes(ctx, time.Now().Add(-retention))
	if err != nil {
		logger.Warn("prune dispatch history", "error", err)
		return
	}
	if n > 0 {
		logger.Info("pruned dispatch history", "rows", n, "retention", retention, "action", "prune")
	}
}
