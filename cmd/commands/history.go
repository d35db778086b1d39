package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
)

// NewHistoryCommand returns the history subcommand.
func NewHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent action history",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum entries to show",
				Value: 20,
			},
		},
		Action: runHistory,
	}
}

func runHistory(_ context.Context, cmd *cli.Command) error {
	var resp struct {
		History []struct {
			PlanID      string  `json:"plan_id"`
			ActionType  string  `json:"action_type"`
			Description string  `json:"description"`
			Status      string  `json:"status"`
			Timestamp   string  `json:"timestamp"`
			Duration    float64 `json:"duration"`
		} `json:"history"`
	}
	path := fmt.Sprintf("/history?limit=%d", cmd.Int("limit"))
	if err := apiGet(cmd.String("server"), path, &resp); err != nil {
		return err
	}

	if len(resp.History) == 0 {
		fmt.Println("No history recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPLAN\tACTION\tSTATUS\tDESCRIPTION")
	for _, e := range resp.History {
		ts := e.Timestamp
		if parsed, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
			ts = parsed.Local().Format("2006-01-02 15:04:05")
		}
		desc := e.Description
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ts, e.PlanID, e.ActionType, e.Status, desc)
	}
	return w.Flush()
}
