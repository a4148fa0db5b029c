package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/jwkgate/internal/config"
	"github.com/dropDatabas3/jwkgate/internal/cache"
	"github.com/dropDatabas3/jwkgate/internal/http/controllers"
	"github.com/dropDatabas3/jwkgate/internal/jwksclient"
	"github.com/dropDatabas3/jwkgate/internal/jwt"
	"github.com/dropDatabas3/jwkgate/internal/observability/logger"
	"github.com/dropDatabas3/jwkgate/internal/store/pg"
	"github.com/dropDatabas3/jwkgate/internal/util"
)

// keyBackend agrupa el KeyStore con su cierre y el check de readiness del
// almacenamiento.
type keyBackend struct {
	Keys  *jwt.KeyStore
	Check controllers.ReadinessCheck
	Close func()
}

// openKeyStore abre el SigningKeyStore configurado y carga el KeyStore.
// bootstrap=true provisiona una clave activa si no hay ninguna.
func openKeyStore(ctx context.Context, cfg *config.Config, bootstrap bool) (*keyBackend, error) {
	var (
		store jwt.SigningKeyStore
		ping  = func(context.Context) error { return nil }
		closeFn = func() {}
	)
	switch cfg.Keys.Store {
	case "memory":
		store = jwt.NewMemorySigningKeyStore()
	case "fs":
		fs, err := jwt.NewFileSigningKeyStore(cfg.Keys.FSDir, cfg.Keys.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("fs key store: %w", err)
		}
		store = fs
	case "postgres":
		pgs, err := pg.Open(ctx, cfg.Keys.DSN, cfg.Keys.MasterKey, pg.Options{MaxConns: cfg.Keys.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("postgres key store: %w", err)
		}
		if err := pgs.EnsureSchema(ctx); err != nil {
			pgs.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		store, ping, closeFn = pgs, pgs.Ping, pgs.Close
		logger.L().Info("postgres key store ready", logger.String("dsn", util.MaskDSN(cfg.Keys.DSN)))
	default:
		return nil, fmt.Errorf("keys.store %q not supported", cfg.Keys.Store)
	}

	ks := jwt.NewKeyStore(store, jwt.KeyStoreConfig{
		Grace:          cfg.JWT.RotationGraceDur,
		RSABits:        cfg.JWT.RSABits,
		ReloadInterval: cfg.Keys.ReloadIntervalDur,
	})
	load := ks.Reload
	if bootstrap {
		load = ks.EnsureBootstrap
	}
	if err := load(ctx); err != nil {
		closeFn()
		return nil, err
	}

	return &keyBackend{
		Keys:  ks,
		Close: closeFn,
		Check: controllers.ReadinessCheck{
			Name:  "signing_keys",
			Check: func(ctx context.Context) (string, error) {
				if err := ping(ctx); err != nil {
					return "", err
				}
				k, err := ks.CurrentSigningKey()
				if err != nil {
					return "", err
				}
				return "active kid " + k.KID, nil
			},
		},
	}, nil
}

// openRedis conecta y hace ping; nil si ningún backend usa redis.
func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if !cfg.NeedsRedis() {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	logger.L().Info("redis connected", logger.String("addr", cfg.Redis.Addr))
	return rdb, nil
}

func redisCheck(rdb *redis.Client) controllers.ReadinessCheck {
	return controllers.ReadinessCheck{
		Name:  "redis",
		Check: func(ctx context.Context) (string, error) {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return "", err
			}
			return "pong", nil
		},
	}
}

// newRemoteKeySet arma el cliente JWKS del resource service. shared puede ser nil.
func newRemoteKeySet(cfg *config.Config, shared cache.Client) *jwksclient.RemoteKeySet {
	remote := jwksclient.New(cfg.JWKS.URL, cfg.JWKS.FetchTTLDur, shared, cfg.JWT.ClockSkewDur)
	remote.Timeout = cfg.JWKS.FetchTimeoutDur
	remote.MaxRetries = cfg.JWKSMaxRetries()
	return remote
}

var errMemoryStore = errors.New("keys.store=memory no persiste: use fs o postgres para operar claves fuera del server")
