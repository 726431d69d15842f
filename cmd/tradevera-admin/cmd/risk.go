package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tradevera/internal/app"
	"tradevera/internal/risk"
)

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Inspect and manage risk guardrails",
}

var riskShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Print a user's guardrail settings and lockout status",
	Args:  cobra.ExactArgs(1),
	RunE:  runRiskShow,
}

var riskUnlockCmd = &cobra.Command{
	Use:   "unlock <user-id>",
	Short: "Clear a user's lockout, keeping thresholds",
	Args:  cobra.ExactArgs(1),
	RunE:  runRiskUnlock,
}

var riskLockedCmd = &cobra.Command{
	Use:   "locked",
	Short: "List users whose lockout is currently active",
	Args:  cobra.NoArgs,
	RunE:  runRiskLocked,
}

var riskEventsCmd = &cobra.Command{
	Use:   "events <user-id>",
	Short: "Print a user's risk event log, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runRiskEvents,
}

var riskEventsLimit int

func init() {
	rootCmd.AddCommand(riskCmd)
	riskCmd.AddCommand(riskShowCmd, riskUnlockCmd, riskLockedCmd, riskEventsCmd)

	riskEventsCmd.Flags().IntVarP(&riskEventsLimit, "limit", "n", 20, "number of events to print")
}

type settingsView struct {
	Settings *risk.Settings `json:"settings"`
	Status   risk.Status    `json:"status"`
}

func runRiskShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
		s, err := a.Risk.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), settingsView{Settings: s, Status: a.Risk.Status(s)})
	})
}

func runRiskUnlock(cmd *cobra.Command, args []string) error {
	return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
		before, err := a.Risk.Get(ctx, args[0])
		if err != nil {
			return err
		}
		s, err := a.Risk.ClearLockout(ctx, args[0])
		if err != nil {
			return err
		}
		if !before.HasLockout() {
			fmt.Fprintf(cmd.OutOrStdout(), "user %s has no lockout\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared lockout for user %s\n", s.UserID)
		return nil
	})
}

func runRiskLocked(cmd *cobra.Command, args []string) error {
	return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
		locked, err := a.Store.ListLockedUsers(ctx, a.Risk.Clock().Now())
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no active lockouts")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tREASON\tLOCKED UNTIL")
		for _, s := range locked {
			reason := "-"
			if s.LastTriggerReason != nil {
				reason = string(*s.LastTriggerReason)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.UserID, reason, s.LockoutUntil.UTC().Format(time.RFC3339))
		}
		return w.Flush()
	})
}

func runRiskEvents(cmd *cobra.Command, args []string) error {
	return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
		evs, err := a.Risk.Events(ctx, args[0], riskEventsLimit)
		if err != nil {
			return err
		}
		if evs == nil {
			evs = []risk.Event{}
		}
		return printJSON(cmd.OutOrStdout(), evs)
	})
}
