package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/coordinator"
	"github.com/tasksync/tasksync/internal/recurrence"
	"github.com/tasksync/tasksync/internal/task"
	"github.com/tasksync/tasksync/internal/ui"
)

var addFlags struct {
	list     string
	due      string
	recur    string
	priority int
	myDay    bool
	notes    string
	url      string
}

var addCmd = &cobra.Command{
	Use:     "add <title>",
	GroupID: "sync",
	Short:   "Create a task locally and queue it for upload",
	Long: `Create a task in the local database. The task gets a provisional
local id and is marked dirty; the next push replaces it with the
server-assigned record.

The --due flag accepts either an ISO date (2026-09-14) or natural
language ("next friday", "tomorrow").`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		due, err := resolveDueDate(addFlags.due)
		if err != nil {
			return err
		}
		if addFlags.recur != "" && !recurrence.IsValid(addFlags.recur) {
			return fmt.Errorf("unknown recurrence rule %q (valid: %s)",
				addFlags.recur, strings.Join(ruleNames(), ", "))
		}

		logger := newLogger(cfg, "[add] ")
		st, _, _, cleanup, err := openEngine(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		title := strings.Join(args, " ")
		created, ok := st.CreateLocal(title, addFlags.list, task.LocalOptions{
			MyDay:        addFlags.myDay,
			Priority:     addFlags.priority,
			DueDate:      due,
			RecurrenceID: addFlags.recur,
			Notes:        addFlags.notes,
			URL:          addFlags.url,
		})
		if !ok {
			return fmt.Errorf("title must not be empty")
		}

		fmt.Printf("%s Added %q (%s)\n", ui.RenderPass("✓"), created.Title, ui.RenderDim(created.ID))
		if due != "" {
			fmt.Printf("  due %s", due)
			if created.RecurrenceID != "" {
				fmt.Printf(", repeats %s", recurrence.Label(created.RecurrenceID))
			}
			fmt.Println()
		}

		// Nudge the running daemon, if any, so the upload does not wait
		// for the next interval. No hub means no daemon; the task stays
		// queued until one runs.
		coord := coordinator.New(cmd.Context(), coordinator.Options{
			HubURL: cfg.HubWebsocketURL(),
			Logger: logger,
		})
		coord.RequestSync(coordinator.ReasonManual)
		coord.Close()
		return nil
	},
}

// resolveDueDate turns the --due flag into a local ISO date. ISO input is
// passed through untouched; anything else goes through natural language
// parsing.
func resolveDueDate(input string) (string, error) {
	if input == "" {
		return "", nil
	}
	if _, err := time.ParseInLocation("2006-01-02", input, time.Local); err == nil {
		return input, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(input, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to parse due date %q: %w", input, err)
	}
	if result == nil {
		return "", fmt.Errorf("could not understand due date %q", input)
	}
	return recurrence.ToLocalISODate(result.Time), nil
}

func ruleNames() []string {
	all := recurrence.Rules()
	names := make([]string, len(all))
	for i, r := range all {
		names[i] = string(r)
	}
	return names
}

func init() {
	addCmd.Flags().StringVarP(&addFlags.list, "list", "l", "", "list id to file the task under")
	addCmd.Flags().StringVar(&addFlags.due, "due", "", "due date (ISO or natural language)")
	addCmd.Flags().StringVar(&addFlags.recur, "recur", "", "recurrence rule ("+strings.Join(ruleNames(), "|")+")")
	addCmd.Flags().IntVarP(&addFlags.priority, "priority", "p", 0, "priority 0-3")
	addCmd.Flags().BoolVar(&addFlags.myDay, "my-day", false, "pin the task to My Day")
	addCmd.Flags().StringVar(&addFlags.notes, "notes", "", "free-form notes")
	addCmd.Flags().StringVar(&addFlags.url, "url", "", "link to attach")
	rootCmd.AddCommand(addCmd)
}
