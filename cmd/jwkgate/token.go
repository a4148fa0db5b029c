package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/jwkgate/internal/jwt"
)

func newTokenCmd(g *globalFlags) *cobra.Command {
	var (
		sub   string
		roles []string
		ttl   time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Emite un access token para un principal (operación/debug)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sub == "" {
				return errors.New("--sub es requerido")
			}
			cfg, err := g.load("auth")
			if err != nil {
				return err
			}
			kb, err := openPersistentKeyStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer kb.Close()

			if ttl <= 0 {
				ttl = cfg.JWT.TokenTTLDur
			}
			tok, err := jwt.NewIssuer(cfg.JWT.Issuer, kb.Keys, ttl).
				Issue(jwt.Principal{Subject: sub, Roles: roles}, time.Now())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"access_token": tok.Raw,
				"token_type":   "Bearer",
				"kid":          tok.KID,
				"expires_at":   tok.Claims.ExpiresAt.UTC().Format(time.RFC3339),
			})
		},
	}
	issue.Flags().StringVar(&sub, "sub", "", "subject del token")
	issue.Flags().StringSliceVar(&roles, "role", nil, "rol (repetible o separado por comas)")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "lifetime (default jwt.token_ttl)")

	token := &cobra.Command{Use: "token", Short: "Herramientas de tokens"}
	token.AddCommand(issue, newVerifyCmd(g))
	return token
}

// newVerifyCmd verifica un token contra el JWKS remoto configurado.
func newVerifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Verifica un token contra jwks.url e imprime las claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load("resource")
			if err != nil {
				return err
			}
			remote := newRemoteKeySet(cfg, nil)
			claims, err := remote.Resolve(cmd.Context(), args[0], time.Now(), cfg.JWT.Issuer)
			if err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	}
}
