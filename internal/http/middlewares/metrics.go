package middlewares

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/jwkgate/internal/metrics"
)

// WithMetrics registra latencia y status por ruta. Usa el patrón de chi
// (no el path crudo) para no explotar la cardinalidad.
func WithMetrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := wrap(w)
			next.ServeHTTP(rec, r)

			path := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					path = p
				}
			}
			metrics.ObserveHTTP(r.Method, path, rec.status, time.Since(start))
		})
	}
}
