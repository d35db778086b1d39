package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/overseer-dev/overseer/internal/config"
	"github.com/overseer-dev/overseer/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show coordinator status",
		Flags: []cli.Flag{serverFlag()},
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := config.Default()
			status, hb, err := heartbeat.Check(cfg.Heartbeat.Path, 2*time.Minute)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Coordinator: ALIVE (PID %d, uptime %s)\n", hb.PID, hb.Uptime)
			case heartbeat.StatusStale:
				fmt.Printf("Coordinator: STALE (PID %d, last heartbeat %s ago)\n",
					hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
			case heartbeat.StatusDead:
				fmt.Println("Coordinator: no heartbeat file, checking API...")
			}

			var snap struct {
				Running          bool   `json:"running"`
				SecurityMode     string `json:"security_mode"`
				CurrentPlanID    string `json:"current_plan_id"`
				PendingApprovals int    `json:"pending_approvals"`
				EmergencyStopped bool   `json:"emergency_stopped"`
			}
			if err := apiGet(cmd.String("server"), "/status", &snap); err != nil {
				return err
			}

			fmt.Printf("Security mode:     %s\n", snap.SecurityMode)
			if snap.EmergencyStopped {
				fmt.Println("Emergency stop:    ENGAGED")
			}
			if snap.Running {
				fmt.Printf("Current plan:      %s\n", snap.CurrentPlanID)
			} else {
				fmt.Println("Current plan:      none")
			}
			fmt.Printf("Pending approvals: %d\n", snap.PendingApprovals)
			return nil
		},
	}
}
