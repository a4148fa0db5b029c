package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/jwkgate/internal/authz"
	"github.com/dropDatabas3/jwkgate/internal/http/controllers"
	mw "github.com/dropDatabas3/jwkgate/internal/http/middlewares"
)

// ResourceRouterDeps son las dependencias de un resource service.
type ResourceRouterDeps struct {
	Health   *controllers.HealthController
	Me       controllers.MeController
	Auth     mw.AuthConfig
	Gate     authz.Gate
	Policies *authz.Policies
	// MePolicy protege /v1/me (normalmente sin roles requeridos)
	MePolicy authz.Policy
	// Resources: policies que se montan como GET /v1/resources/{policy}
	Resources []string
	Metrics   http.Handler
}

// NewResourceRouter: todo bajo /v1 exige token; cada ruta aplica su policy.
func NewResourceRouter(d ResourceRouterDeps) http.Handler {
	r := base()

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.WithNoStore(), mw.RequireAuth(d.Auth))
		r.With(mw.RequireRole(d.Gate, d.MePolicy)).Get("/me", d.Me.Me)
		for _, name := range d.Resources {
			pol := d.Policies.MustLookup(name)
			r.With(mw.RequireRole(d.Gate, pol)).Get("/resources/"+name, d.Me.Resource(name))
		}
	})

	mountHealth(r, d.Health, d.Metrics)
	return r
}
