package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tradevera/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, true, func(ctx context.Context, a *app.App) error {
			fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date (%s)\n", a.Config.DatabaseConfig.Backend)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
