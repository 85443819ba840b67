package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tasksync/tasksync/internal/config"
	"github.com/tasksync/tasksync/internal/status"
	"github.com/tasksync/tasksync/internal/store"
	"github.com/tasksync/tasksync/internal/storage/sqlite"
	"github.com/tasksync/tasksync/internal/syncer"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "tasksync",
	Short: "Offline-first task list sync client",
	Long: `tasksync keeps a local task database in sync with the tasksync server.

Edits are applied locally first and flushed to the server as batched change
operations; remote changes are pulled incrementally using a delta cursor.
When several tasksync processes run for the same user, a coordinator hub
elects one of them as the sync leader so only one talks to the network.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default $XDG_CONFIG_HOME/tasksync/config.yaml)")
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "server", Title: "Server Commands:"},
	)
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFile)
}

// newLogger builds the daemon logger, rotating through lumberjack when a
// log file is configured.
func newLogger(cfg *config.Config, prefix string) *log.Logger {
	var out io.Writer = os.Stderr
	if cfg.Log.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	return log.New(out, prefix, log.LstdFlags)
}

// openEngine wires storage, store, status, and the protocol client from
// configuration. The returned cleanup closes the database.
func openEngine(cfg *config.Config, logger *log.Logger) (*store.Store, *status.Store, *syncer.Syncer, func(), error) {
	adapter, err := sqlite.Open(cfg.DatabasePath())
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to open local database: %w", err)
	}

	st := store.New(adapter, logger)
	if err := st.Hydrate(rootCmd.Context()); err != nil {
		_ = adapter.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to load local data: %w", err)
	}

	stat := status.New()

	client := syncer.NewClient(cfg.API.BaseURL, nil)
	client.Headers = func() map[string]string {
		headers := make(map[string]string)
		if cfg.API.Token != "" {
			headers["Authorization"] = "Bearer " + cfg.API.Token
		}
		if cfg.API.SpaceID != "" {
			headers["X-Space-Id"] = cfg.API.SpaceID
		}
		return headers
	}

	eng := syncer.New(client, st, stat, logger)
	cleanup := func() { _ = adapter.Close() }
	return st, stat, eng, cleanup, nil
}
