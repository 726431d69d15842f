package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tradevera/internal/app"
	"tradevera/internal/billing"
	"tradevera/internal/storage"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userPlanCmd = &cobra.Command{
	Use:   "plan <user-id> <free|starter|pro>",
	Short: "Change a user's subscription plan",
	Args:  cobra.ExactArgs(2),
	RunE:  runUserPlan,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userPlanCmd)
}

func runUserPlan(cmd *cobra.Command, args []string) error {
	plan := billing.ParseTier(args[1])
	if string(plan) != strings.ToLower(strings.TrimSpace(args[1])) {
		return fmt.Errorf("unknown plan %q", args[1])
	}

	return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
		err := a.Store.UpdateUserPlan(ctx, args[0], plan)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("user %s not found", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %s is now on the %s plan\n", args[0], plan)
		return nil
	})
}
