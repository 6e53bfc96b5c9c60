package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tingly-dev/tea-assistant/internal/auth"
	"github.com/tingly-dev/tea-assistant/internal/config"
)

// TokenCommand issues a staff token for the admin API
func TokenCommand(configPath *string) *cobra.Command {
	var (
		staffID string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a staff token for /api/admin",
		Long: `Generate a JWT signed with admin.jwt_secret. Send it as
"Authorization: Bearer <token>" to the admin endpoints.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if staffID == "" {
				return errors.New("--staff is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			manager := auth.NewJWTManager(cfg.Admin.JWTSecret, auth.WithTTL(ttl))
			token, err := manager.GenerateToken(staffID)
			if err != nil {
				return fmt.Errorf("failed to generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&staffID, "staff", "", "Staff identifier stored in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "Token lifetime")
	return cmd
}
