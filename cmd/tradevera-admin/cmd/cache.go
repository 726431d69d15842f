package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tradevera/internal/app"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the settings cache",
}

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Drop every cached risk settings record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
			if a.SettingsCache == nil {
				return errors.New("redis cache is not enabled")
			}
			if err := a.SettingsCache.Flush(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "risk settings cache flushed")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheFlushCmd)
}
