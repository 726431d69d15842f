package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tradevera/internal/app"
)

var rootCmd = &cobra.Command{
	Use:   "tradevera-admin",
	Short: "Operator tooling for the Tradevera risk service",
	Long: `tradevera-admin inspects and repairs guardrail state using the same
configuration as the service (config file, .env, environment, Vault).

Examples:
  tradevera-admin migrate
  tradevera-admin risk show <user-id>
  tradevera-admin risk unlock <user-id>
  tradevera-admin risk locked
  tradevera-admin user plan <user-id> pro
  tradevera-admin token <user-id> --plan starter`,
	SilenceUsage: true,
}

// openApp builds the components a command needs. Tests replace it.
var openApp = func(ctx context.Context, migrate bool) (*app.App, error) {
	cfg, err := app.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	logger := app.SetupLogging(cfg.LoggingConfig, "admin")
	return app.New(ctx, cfg, logger, migrate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func withApp(cmd *cobra.Command, migrate bool, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, migrate)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
