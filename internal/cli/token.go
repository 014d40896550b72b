package cli

import (
	"fmt"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/adapters/security"
	"github.com/Opizontas-Studio/dc-license-bot/internal/app/bootstrap"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"github.com/spf13/cobra"
)

type tokenOptions struct {
	UserID string
	Role   string
	TTL    time.Duration
}

// NewTokenCommand mints a bearer token for the HTTP API. The gateway in front
// of the bot normally does this; the command exists for operators and tests.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for a platform user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			signer, err := security.NewJWTSigner(cfg.Auth.Issuer, cfg.Auth.Secret)
			if err != nil {
				return err
			}
			token, err := signer.Sign(ports.AuthClaims{UserID: opts.UserID, Role: opts.Role}, opts.TTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.UserID, "user", "", "platform user id placed in the subject claim")
	cmd.Flags().StringVar(&opts.Role, "role", "", "optional role claim")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
