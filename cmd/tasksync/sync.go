package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one pull-then-push cycle against the server",
	Long: `Run a single sync cycle:

  1. Pull deltas since the last cursor and merge them into the local
     database (local unpushed edits always win).
  2. Push every dirty record to the server as one batched request.

The command talks to the server directly; it does not route through the
coordinator hub. Use it for scripted or one-shot syncs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, "[sync] ")

		st, stat, eng, cleanup, err := openEngine(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		start := time.Now()
		pull, pullErr := eng.PullFromServer(cmd.Context())
		push, pushErr := eng.PushPending(cmd.Context())
		elapsed := time.Since(start).Round(time.Millisecond)

		if pullErr != nil {
			fmt.Fprintf(os.Stderr, "%s Pull failed: %v\n", ui.RenderFail("✗"), pullErr)
		} else {
			fmt.Printf("%s Pulled %d lists, %d tasks\n", ui.RenderPass("✓"), pull.Lists, pull.Tasks)
		}
		if pushErr != nil {
			fmt.Fprintf(os.Stderr, "%s Push finished with errors: %v\n", ui.RenderWarn("⚠"), pushErr)
		} else {
			fmt.Printf("%s Pushed %d ops (%d created)\n", ui.RenderPass("✓"), push.Pushed, push.Created)
		}
		fmt.Printf("   Queue depth: %d\n", stat.Get().QueueDepth)
		fmt.Printf("   Tasks cached: %d\n", len(st.Snapshot()))
		fmt.Printf("   Took: %v\n", elapsed)

		if pullErr != nil {
			return pullErr
		}
		return pushErr
	},
}

var syncResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the local database so the next pull resyncs everything",
	Long: `Remove all locally cached lists and tasks.

Unpushed local edits are lost. The sync cursor is per process, so the next
sync after a reset starts from scratch and fetches the full data set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, "[sync] ")

		st, _, _, cleanup, err := openEngine(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		st.SetAll(nil)
		st.SetAllLists(nil)
		fmt.Printf("%s Local database cleared\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncResetCmd)
	rootCmd.AddCommand(syncCmd)
}
