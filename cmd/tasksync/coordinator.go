package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/coordinator"
	"github.com/tasksync/tasksync/internal/ui"
)

var coordinatorCmd = &cobra.Command{
	Use:     "coordinator",
	GroupID: "server",
	Short:   "Run the leader-election hub",
	Long: `Run the coordinator hub that client processes register with.

The hub elects exactly one registered client as the sync leader (preferring
authenticated clients, in registration order), relays sync requests from
followers to the leader, and rebroadcasts the leader's status snapshot to
every client. It listens on localhost only; it carries no task data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		hubCfg := coordinator.DefaultHubConfig()
		hubCfg.Addr = cfg.Coordinator.Addr
		hubCfg.Logger = newLogger(cfg, "[coordinator] ")

		hub := coordinator.NewHub(hubCfg)
		if err := hub.Start(); err != nil {
			return err
		}

		fmt.Printf("%s Coordinator hub listening on %s\n", ui.RenderAccent("●"), hub.Addr())

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		return hub.Stop()
	},
}

func init() {
	rootCmd.AddCommand(coordinatorCmd)
}
