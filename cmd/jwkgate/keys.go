package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/jwkgate/internal/config"
	"github.com/dropDatabas3/jwkgate/internal/http/controllers"
)

func newKeysCmd(g *globalFlags) *cobra.Command {
	var out string
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Operaciones sobre las claves de firma (fs o postgres)",
	}
	keys.PersistentFlags().StringVar(&out, "out", "text", "formato de salida: json|text")

	open := func(ctx context.Context) (*keyBackend, error) {
		cfg, err := g.load("auth")
		if err != nil {
			return nil, err
		}
		return openPersistentKeyStore(ctx, cfg)
	}

	keys.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Lista las claves con su estado",
			RunE: func(cmd *cobra.Command, args []string) error {
				kb, err := open(cmd.Context())
				if err != nil {
					return err
				}
				defer kb.Close()
				return printKeys(out, kb)
			},
		},
		&cobra.Command{
			Use:   "rotate",
			Short: "Genera una clave activa nueva y pasa la anterior a retiring",
			RunE: func(cmd *cobra.Command, args []string) error {
				kb, err := open(cmd.Context())
				if err != nil {
					return err
				}
				defer kb.Close()
				kid, err := kb.Keys.Rotate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("active kid: %s (grace %s)\n", kid, kb.Keys.Grace())
				return nil
			},
		},
		&cobra.Command{
			Use:   "gen-master-key",
			Short: "Genera un SIGNING_MASTER_KEY aleatorio (base64, 32 bytes)",
			RunE: func(cmd *cobra.Command, args []string) error {
				key := make([]byte, 32)
				if _, err := rand.Read(key); err != nil {
					return fmt.Errorf("generate key: %w", err)
				}
				fmt.Printf("SIGNING_MASTER_KEY=%s\n", base64.StdEncoding.EncodeToString(key))
				return nil
			},
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Retira las claves retiring cuyo período de gracia venció",
			RunE: func(cmd *cobra.Command, args []string) error {
				kb, err := open(cmd.Context())
				if err != nil {
					return err
				}
				defer kb.Close()
				n, err := kb.Keys.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("retired: %d\n", n)
				return nil
			},
		},
	)
	return keys
}

// openPersistentKeyStore rechaza memory: fuera del server no hay nada que operar.
func openPersistentKeyStore(ctx context.Context, cfg *config.Config) (*keyBackend, error) {
	if cfg.Keys.Store == "memory" {
		return nil, errMemoryStore
	}
	return openKeyStore(ctx, cfg, true)
}

func printKeys(out string, kb *keyBackend) error {
	views := make([]controllers.KeyView, 0)
	for _, k := range kb.Keys.Keys() {
		views = append(views, controllers.ToKeyView(k))
	}
	if out == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KID\tSTATUS\tCREATED\tRETIRE AFTER")
	for _, v := range views {
		retire := "-"
		if v.RetireAfter != nil {
			retire = v.RetireAfter.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.KID, v.Status, v.CreatedAt.Format(time.RFC3339), retire)
	}
	return tw.Flush()
}
