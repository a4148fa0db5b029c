package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/jwkgate/internal/authz"
	"github.com/dropDatabas3/jwkgate/internal/http/controllers"
	mw "github.com/dropDatabas3/jwkgate/internal/http/middlewares"
	"github.com/dropDatabas3/jwkgate/internal/rate"
)

// AuthRouterDeps son las dependencias del auth service.
type AuthRouterDeps struct {
	JWKS      *controllers.JWKSController
	Token     *controllers.TokenController
	Health    *controllers.HealthController
	AdminKeys *controllers.AdminKeysController

	Auth        mw.AuthConfig
	Gate        authz.Gate
	AdminPolicy authz.Policy

	// LoginLimiter opcional (nil = sin rate limit)
	LoginLimiter rate.Limiter
	// Metrics opcional (/metrics)
	Metrics http.Handler
}

// NewAuthRouter:
//
//	GET|HEAD /.well-known/jwks.json   público
//	POST     /v1/auth/login           rate limited
//	GET      /v1/admin/keys           admin
//	POST     /v1/admin/keys/rotate    admin
//	POST     /v1/admin/keys/sweep     admin
//	GET      /readyz /healthz /metrics
func NewAuthRouter(d AuthRouterDeps) http.Handler {
	r := base()

	r.Get("/.well-known/jwks.json", d.JWKS.GetJWKS)
	r.Head("/.well-known/jwks.json", d.JWKS.GetJWKS)

	r.With(
		mw.WithNoStore(),
		mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.LoginLimiter}),
	).Post("/v1/auth/login", d.Token.Login)

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(
			mw.WithNoStore(),
			mw.RequireAuth(d.Auth),
			mw.RequireRole(d.Gate, d.AdminPolicy),
		)
		r.Get("/keys", d.AdminKeys.List)
		r.Post("/keys/rotate", d.AdminKeys.Rotate)
		r.Post("/keys/sweep", d.AdminKeys.Sweep)
	})

	mountHealth(r, d.Health, d.Metrics)
	return r
}

func mountHealth(r chi.Router, h *controllers.HealthController, metrics http.Handler) {
	if h != nil {
		r.Get("/readyz", h.Readyz)
		r.Get("/healthz", h.Healthz)
	}
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
}
