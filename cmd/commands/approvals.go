package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// NewApprovalsCommand returns the approvals subcommand.
func NewApprovalsCommand() *cli.Command {
	return &cli.Command{
		Name:  "approvals",
		Usage: "Inspect and resolve pending approvals",
		Flags: []cli.Flag{serverFlag()},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List pending approval requests",
				Action: runApprovalsList,
			},
			{
				Name:      "approve",
				Usage:     "Approve a pending request (or all)",
				ArgsUsage: "<request_id>|all",
				Action:    runApprovalsApprove,
			},
			{
				Name:      "reject",
				Usage:     "Reject a pending request (or all)",
				ArgsUsage: "<request_id>|all",
				Action:    runApprovalsReject,
			},
		},
		DefaultCommand: "list",
	}
}

type approvalEntry struct {
	ID        string `json:"id"`
	PlanID    string `json:"plan_id"`
	ExpiresAt string `json:"expires_at"`
	Action    struct {
		ActionType  string `json:"action_type"`
		Description string `json:"description"`
		RiskLevel   string `json:"risk_level"`
	} `json:"action"`
}

func runApprovalsList(_ context.Context, cmd *cli.Command) error {
	var resp struct {
		Pending []approvalEntry `json:"pending"`
	}
	if err := apiGet(cmd.String("server"), "/approvals", &resp); err != nil {
		return err
	}

	if len(resp.Pending) == 0 {
		fmt.Println("No pending approvals.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLAN\tRISK\tACTION\tDESCRIPTION")
	for _, e := range resp.Pending {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.PlanID, e.Action.RiskLevel, e.Action.ActionType, e.Action.Description)
	}
	return w.Flush()
}

func runApprovalsApprove(_ context.Context, cmd *cli.Command) error {
	return resolveApprovals(cmd, "approve")
}

func runApprovalsReject(_ context.Context, cmd *cli.Command) error {
	return resolveApprovals(cmd, "reject")
}

func resolveApprovals(cmd *cli.Command, verb string) error {
	target := cmd.Args().First()
	if target == "" {
		return fmt.Errorf("usage: overseer approvals %s <request_id>|all", verb)
	}

	base := cmd.String("server")
	if target == "all" {
		var resp struct {
			Resolved int `json:"resolved"`
		}
		if err := apiPost(base, "/"+verb+"-all", &resp); err != nil {
			return err
		}
		fmt.Printf("Resolved %d request(s).\n", resp.Resolved)
		return nil
	}

	if err := apiPost(base, "/"+verb+"/"+target, nil); err != nil {
		return err
	}
	past := "approved"
	if verb == "reject" {
		past = "rejected"
	}
	fmt.Printf("Request %s %s.\n", target, past)
	return nil
}
