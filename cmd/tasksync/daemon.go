package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/coordinator"
	"github.com/tasksync/tasksync/internal/inbox"
	"github.com/tasksync/tasksync/internal/status"
	"github.com/tasksync/tasksync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync process",
	Long: `Run tasksync as a long-lived background process.

The daemon:
  1. Registers with the coordinator hub; if elected leader it drives all
     network sync for this user, otherwise it follows rebroadcast status.
  2. Requests a sync on startup and on a fixed interval.
  3. Watches the inbox directory (if configured) and imports dropped task
     files as local tasks.
  4. Shuts down cleanly on SIGINT/SIGTERM, unregistering from the hub.

If the hub is unreachable the daemon runs standalone as its own leader.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, "[daemon] ")

		st, stat, eng, cleanup, err := openEngine(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Sync invocations are serialized through this channel; the
		// coordinator may fire run-sync from its read loop while the
		// ticker fires too, and only one cycle runs at a time.
		syncRequests := make(chan string, 16)
		requestSync := func(reason string) {
			select {
			case syncRequests <- reason:
			default:
				// A sync is already queued; the pending run covers this
				// request too.
			}
		}

		coord := coordinator.New(ctx, coordinator.Options{
			HubURL:    cfg.HubWebsocketURL(),
			OnRunSync: requestSync,
			OnStatus: func(snap status.Snapshot, sourceTabID string) {
				if sourceTabID != "" {
					stat.SetSnapshot(snap)
				}
			},
			Logger: logger,
		})
		defer coord.Close()
		coord.SetAuthenticated(cfg.API.Token != "")

		// The leader republishes every local status change to the hub.
		unsubscribe := stat.Subscribe(func(snap status.Snapshot) {
			coord.PublishStatus(snap)
		})
		defer unsubscribe()

		var inboxWatcher *inbox.Watcher
		if cfg.Inbox.Dir != "" {
			watcherCfg := inbox.DefaultConfig()
			watcherCfg.Logger = logger
			watcherCfg.RequestSync = coord.RequestSync
			inboxWatcher, err = inbox.New(st, cfg.Inbox.Dir, watcherCfg)
			if err != nil {
				return fmt.Errorf("failed to create inbox watcher: %w", err)
			}
			if err := inboxWatcher.Start(); err != nil {
				return fmt.Errorf("failed to start inbox watcher: %w", err)
			}
			defer func() { _ = inboxWatcher.Stop() }()
		}

		interval := cfg.Sync.Interval
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fmt.Printf("%s Daemon running (tab %s)\n", ui.RenderAccent("●"), coord.TabID())
		coord.RequestSync(coordinator.ReasonStartup)

		for {
			select {
			case <-ctx.Done():
				logger.Println("Shutdown signal received")
				return nil
			case <-ticker.C:
				coord.RequestSync(coordinator.ReasonInterval)
			case reason := <-syncRequests:
				logger.Printf("Running sync (reason=%s)", reason)
				if err := eng.Sync(ctx); err != nil {
					logger.Printf("WARNING: sync failed: %v", err)
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
