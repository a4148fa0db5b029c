// Command jwkgate corre el auth service, un resource service de ejemplo y
// las herramientas de operación de claves.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/jwkgate/internal/config"
	"github.com/dropDatabas3/jwkgate/internal/observability/logger"
)

type globalFlags struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{
		configPath: os.Getenv("CONFIG_PATH"),
		envFile:    ".env",
	}
	root := &cobra.Command{
		Use:           "jwkgate",
		Short:         "Auth core: emisión de JWT RS256, JWKS y verificación en resource services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", g.configPath, "ruta a config.yaml (env CONFIG_PATH; vacío = defaults + env)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", g.envFile, "ruta a .env (si existe, se carga)")

	root.AddCommand(
		newServeCmd(g),
		newKeysCmd(g),
		newTokenCmd(g),
		newUsersCmd(),
	)
	return root
}

// load carga .env, el YAML y valida para el rol indicado. Inicializa el
// logger global con la config resultante.
func (g *globalFlags) load(role string) (*config.Config, error) {
	if g.envFile != "" && fileExists(g.envFile) {
		if err := godotenv.Load(g.envFile); err != nil {
			return nil, fmt.Errorf("dotenv %s: %w", g.envFile, err)
		}
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(role); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name + "-" + role,
	})
	return cfg, nil
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
