package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/coordinator"
	"github.com/tasksync/tasksync/internal/status"
	"github.com/tasksync/tasksync/internal/ui"
)

var statusTimeout time.Duration

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show the sync status published by the current leader",
	Long: `Connect to the coordinator hub and print the last status snapshot
published by the sync leader. Falls back to a local message when no hub
is running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		tabID := uuid.NewString()
		received := make(chan status.Snapshot, 1)
		elected := make(chan struct{}, 1)
		coord := coordinator.New(cmd.Context(), coordinator.Options{
			TabID:  tabID,
			HubURL: cfg.HubWebsocketURL(),
			Logger: newLogger(cfg, "[status] "),
			OnLeaderChange: func(isLeader bool) {
				if isLeader {
					select {
					case elected <- struct{}{}:
					default:
					}
				}
			},
			OnStatus: func(snap status.Snapshot, sourceTabID string) {
				// The hub echoes its current snapshot on registration;
				// only another client's publication means a daemon is
				// actually reporting.
				if sourceTabID == "" || sourceTabID == tabID {
					return
				}
				select {
				case received <- snap:
				default:
				}
			},
		})
		defer coord.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
		defer cancel()
		select {
		case snap := <-received:
			printSnapshot(snap)
			return nil
		case <-elected:
			// Winning the election means no daemon holds leadership, so
			// nobody is publishing snapshots to report on. Covers the
			// no-hub fallback too.
			fmt.Println(ui.RenderWarn("no sync daemon reachable; is it running?"))
			return nil
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for a status broadcast")
		}
	},
}

func printSnapshot(snap status.Snapshot) {
	fmt.Println(ui.RenderHeader("Sync Status"))
	fmt.Printf("  Pull:  %s\n", renderPhase(snap.Pull))
	fmt.Printf("  Push:  %s\n", renderPhase(snap.Push))
	fmt.Printf("  Queue: %d pending change(s)\n", snap.QueueDepth)
	if snap.LastReplayTS > 0 {
		at := time.UnixMilli(snap.LastReplayTS).Local().Format(time.RFC1123)
		fmt.Printf("  Last replay: %s\n", ui.RenderDim(at))
	}
	if snap.LastError != "" {
		fmt.Printf("  Error: %s\n", ui.RenderFail(snap.LastError))
	}
}

func renderPhase(p status.Phase) string {
	switch p {
	case status.PhaseRunning:
		return ui.RenderAccent(string(p))
	case status.PhaseError:
		return ui.RenderFail(string(p))
	default:
		return ui.RenderPass(string(p))
	}
}

func init() {
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Second, "how long to wait for a broadcast")
	rootCmd.AddCommand(statusCmd)
}
