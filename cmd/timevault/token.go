package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "timevault/internal/jwt_token"
	id "timevault/pkg/domain"
)

// tokenCommand mints a bearer token for local testing.
func tokenCommand() *cobra.Command {
	var (
		identity string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			var caller id.Identity
			if identity == "" {
				caller = id.NewIdentity()
			} else if caller, err = id.ParseIdentity(identity); err != nil {
				return fmt.Errorf("--identity: %w", err)
			}
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}
			if cfg.UsesDevSigningKey() {
				log.Warn("signing with the development key")
			}

			tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
			token, err := tokens.GenerateToken(caller, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "identity: %s\ntoken: %s\n", caller, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "caller identity (UUID); random when empty")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime; defaults to auth.tokenTTL")
	return cmd
}
