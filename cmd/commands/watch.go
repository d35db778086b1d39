package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	clientws "github.com/overseer-dev/overseer/clients/ws"
	wsprotocol "github.com/overseer-dev/overseer/internal/gateway/ws"
)

// NewWatchCommand returns the watch subcommand.
func NewWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream live events for a running plan",
		ArgsUsage: "<plan_id>",
		Flags:     []cli.Flag{serverFlag()},
		Action:    runWatch,
	}
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	planID := cmd.Args().First()
	if planID == "" {
		return fmt.Errorf("usage: overseer watch <plan_id>")
	}

	base := strings.Replace(cmd.String("server"), "http://", "ws://", 1)
	base = strings.Replace(base, "https://", "wss://", 1)

	client, err := clientws.Dial(ctx, base, planID)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Watch(func(f wsprotocol.Frame) error {
		switch f.Type {
		case wsprotocol.FrameTypeClose:
			fmt.Printf("stream closed: %s\n", f.Message)
		default:
			fmt.Printf("[%d] %s: %s\n", f.Seq, f.Event, f.Message)
		}
		return nil
	})
}
