// Package router arma los routers chi del auth service y del resource service.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/dropDatabas3/jwkgate/internal/http/errors"
	mw "github.com/dropDatabas3/jwkgate/internal/http/middlewares"
)

// base aplica la infra común: recover, request id, métricas y access log.
func base() chi.Router {
	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithMetrics(),
		mw.WithLogging(),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})
	return r
}
