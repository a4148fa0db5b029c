package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/jwkgate/internal/authz"
	"github.com/dropDatabas3/jwkgate/internal/cache"
	"github.com/dropDatabas3/jwkgate/internal/config"
	"github.com/dropDatabas3/jwkgate/internal/credentials"
	"github.com/dropDatabas3/jwkgate/internal/http/controllers"
	mw "github.com/dropDatabas3/jwkgate/internal/http/middlewares"
	"github.com/dropDatabas3/jwkgate/internal/http/router"
	"github.com/dropDatabas3/jwkgate/internal/jwt"
	"github.com/dropDatabas3/jwkgate/internal/metrics"
	"github.com/dropDatabas3/jwkgate/internal/observability/logger"
	"github.com/dropDatabas3/jwkgate/internal/rate"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Levanta un servicio HTTP",
	}
	serve.AddCommand(
		&cobra.Command{
			Use:   "auth",
			Short: "Auth service: login, JWKS y admin de claves",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := g.load("auth")
				if err != nil {
					return err
				}
				defer func() { _ = logger.Sync() }()
				return serveAuth(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "resource",
			Short: "Resource service: verifica tokens contra el JWKS remoto",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := g.load("resource")
				if err != nil {
					return err
				}
				defer func() { _ = logger.Sync() }()
				return serveResource(cmd.Context(), cfg)
			},
		},
	)
	return serve
}

func serveAuth(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.L()

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	kb, err := openKeyStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer kb.Close()
	go kb.Keys.Run(logger.ToContext(ctx, log), cfg.Keys.SweepIntervalDur)

	users := make([]credentials.User, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		users = append(users, credentials.User{Subject: u.Subject, PasswordHash: u.PasswordHash, Roles: u.Roles})
	}
	dir, err := credentials.NewDirectory(users)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		log.Warn("no users configured: every login will be rejected")
	}

	policies, err := authz.NewPolicies(cfg.Policies)
	if err != nil {
		return err
	}

	checks := []controllers.ReadinessCheck{kb.Check}
	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		checks = append(checks, redisCheck(rdb))
	}

	h := router.NewAuthRouter(router.AuthRouterDeps{
		JWKS:      controllers.NewJWKSController(jwt.NewPublisher(kb.Keys), cfg.JWKS.MaxAgeDur),
		Token:     controllers.NewTokenController(dir, jwt.NewIssuer(cfg.JWT.Issuer, kb.Keys, cfg.JWT.TokenTTLDur)),
		Health:    controllers.NewHealthController(checks...),
		AdminKeys: controllers.NewAdminKeysController(kb.Keys),
		Auth: mw.AuthConfig{
			Resolver: jwt.NewLocalResolver(kb.Keys, jwt.NewVerifier(cfg.JWT.ClockSkewDur)),
			Issuer:   cfg.JWT.Issuer,
		},
		AdminPolicy:  policies.MustLookup(config.PolicyAdmin),
		LoginLimiter: loginLimiter(cfg, rdb),
		Metrics:      metrics.Handler(nil),
	})

	log.Info("auth service starting",
		logger.String("addr", cfg.Server.Addr),
		logger.Issuer(cfg.JWT.Issuer),
		logger.String("key_store", cfg.Keys.Store),
		logger.String("token_ttl", cfg.JWT.TokenTTLDur.String()))
	return runServer(ctx, cfg, h)
}

func loginLimiter(cfg *config.Config, rdb *redis.Client) rate.Limiter {
	if !cfg.Rate.Enabled {
		return nil
	}
	if cfg.Rate.Backend == "redis" && rdb != nil {
		return rate.NewRedisLimiter(rdb, cfg.Redis.Prefix+":rate:login", cfg.Rate.Login.Limit, cfg.Rate.Login.WindowDur)
	}
	return rate.NewMemoryLimiter(cfg.Rate.Login.Limit, cfg.Rate.Login.WindowDur)
}

func serveResource(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.L()

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	var (
		shared cache.Client
		checks []controllers.ReadinessCheck
	)
	if cfg.JWKS.Cache == "redis" {
		rdb, err := openRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		shared = cache.WrapRedis(rdb, cfg.Redis.Prefix, cfg.JWKS.FetchTTLDur)
		checks = append(checks, redisCheck(rdb))
	} else {
		c, err := cache.New(ctx, cache.Config{Driver: "memory", Prefix: cfg.Redis.Prefix, DefaultTTL: cfg.JWKS.FetchTTLDur})
		if err != nil {
			return err
		}
		defer c.Close()
		shared = c
	}

	remote := newRemoteKeySet(cfg, shared)

	// warm-up: no es fatal, el primer request reintenta
	if set, err := remote.KeySet(ctx); err != nil {
		log.Warn("initial jwks fetch failed", logger.URL(cfg.JWKS.URL), logger.Err(err))
	} else {
		log.Info("jwks loaded", logger.URL(cfg.JWKS.URL), logger.Count(set.Len()))
	}
	checks = append(checks, controllers.ReadinessCheck{
		Name: "jwks",
		Check: func(ctx context.Context) (string, error) {
			set, err := remote.KeySet(ctx)
			if err != nil {
				return "", err
			}
			_, fetchedAt, _ := remote.Snapshot()
			return fmt.Sprintf("%d keys, fetched %s", set.Len(), fetchedAt.UTC().Format(time.RFC3339)), nil
		},
	})

	policies, err := authz.NewPolicies(cfg.Policies)
	if err != nil {
		return err
	}
	var resources []string
	for _, name := range policies.Names() {
		if name != config.PolicyAdmin && name != config.PolicyMe {
			resources = append(resources, name)
		}
	}

	h := router.NewResourceRouter(router.ResourceRouterDeps{
		Health:    controllers.NewHealthController(checks...),
		Auth:      mw.AuthConfig{Resolver: remote, Issuer: cfg.JWT.Issuer},
		Policies:  policies,
		MePolicy:  policies.MustLookup(config.PolicyMe),
		Resources: resources,
		Metrics:   metrics.Handler(nil),
	})

	log.Info("resource service starting",
		logger.String("addr", cfg.Server.Addr),
		logger.Issuer(cfg.JWT.Issuer),
		logger.URL(cfg.JWKS.URL),
		logger.String("policies", fmt.Sprint(resources)))
	return runServer(ctx, cfg, h)
}

// runServer sirve hasta que ctx se cancele y hace shutdown ordenado.
func runServer(ctx context.Context, cfg *config.Config, h http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.L().Info("shutting down", logger.Duration(cfg.Server.ShutdownTimeoutDur))
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDur)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
