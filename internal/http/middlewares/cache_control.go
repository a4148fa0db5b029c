package middlewares

import (
	"fmt"
	"net/http"
	"time"
)

// WithNoStore agrega Cache-Control: no-store (respuestas con tokens o admin).
func WithNoStore() Middleware {
	return WithCacheControl("no-store")
}

// WithCacheControl agrega el Cache-Control dado.
func WithCacheControl(directive string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", directive)
			next.ServeHTTP(w, r)
		})
	}
}

// PublicMaxAge arma "public, max-age=N" para recursos cacheables.
func PublicMaxAge(d time.Duration) string {
	return fmt.Sprintf("public, max-age=%d", int(d.Seconds()))
}
