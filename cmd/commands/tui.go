package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/overseer-dev/overseer/clients/tui"
)

// NewTUICommand returns the tui subcommand.
func NewTUICommand() *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Interactive approvals dashboard",
		Flags: []cli.Flag{serverFlag()},
		Action: func(_ context.Context, cmd *cli.Command) error {
			return tui.Run(cmd.String("server"))
		},
	}
}
