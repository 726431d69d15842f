package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tradevera/internal/app"
	"tradevera/internal/auth"
	"tradevera/internal/billing"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint an access token for a user, for development and support",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

var (
	tokenPlan  string
	tokenEmail string
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenPlan, "plan", string(billing.TierFree), "plan claim: free, starter or pro")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
}

func runToken(cmd *cobra.Command, args []string) error {
	return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
		secret := a.Config.AuthConfig.JWTSecret
		if secret == "" {
			return errors.New("no JWT secret configured, set AUTH_JWT_SECRET or enable Vault")
		}

		manager := auth.NewJWTManager(secret, a.Config.AuthConfig.AccessTokenDuration)
		token, err := manager.GenerateAccessToken(auth.UserClaims{
			UserID: args[0],
			Email:  tokenEmail,
			Plan:   string(billing.ParseTier(tokenPlan)),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	})
}
