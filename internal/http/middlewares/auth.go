package middlewares

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/jwkgate/internal/authz"
	httperrors "github.com/dropDatabas3/jwkgate/internal/http/errors"
	"github.com/dropDatabas3/jwkgate/internal/jwksclient"
	"github.com/dropDatabas3/jwkgate/internal/jwt"
	"github.com/dropDatabas3/jwkgate/internal/metrics"
	"github.com/dropDatabas3/jwkgate/internal/observability/logger"
)

// AuthConfig configura RequireAuth.
type AuthConfig struct {
	Resolver jwt.Resolver
	// Issuer esperado en iss
	Issuer string
	Now    func() time.Time
}

// bearerToken extrae el token de "Authorization: Bearer <t>".
func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}

// RequireAuth verifica el Bearer token e inyecta las claims en el contexto.
// Toda falla terminal de verificación responde 401 y se loguea; si el key
// set no está disponible (sin last-known-good) responde 503 + Retry-After.
func RequireAuth(cfg AuthConfig) Middleware {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := bearerToken(r)
			if !ok {
				httperrors.WriteError(w, httperrors.ErrTokenMissing)
				return
			}

			claims, err := cfg.Resolver.Resolve(ctx, raw, now(), cfg.Issuer)
			if err != nil {
				log := logger.From(ctx).With(logger.Component("auth"))
				if errors.Is(err, jwksclient.ErrKeySetFetch) {
					metrics.TokenVerifications.WithLabelValues("key_set_unavailable").Inc()
					log.Warn("token not verified: key set unavailable", logger.Err(err))
					httperrors.WriteError(w, httperrors.ErrKeySetUnavailable.WithCause(err))
					return
				}
				kind := jwt.KindOf(err)
				if kind == "" {
					metrics.TokenVerifications.WithLabelValues("error").Inc()
					log.Error("token verification error", logger.Err(err))
					httperrors.WriteError(w, err)
					return
				}
				metrics.TokenVerifications.WithLabelValues(string(kind)).Inc()
				var ve *jwt.VerificationError
				kid := ""
				if errors.As(err, &ve) {
					kid = ve.KID
				}
				log.Info("token rejected", logger.Reason(string(kind)), logger.KID(kid), logger.Err(err))
				httperrors.WriteError(w, appErrorFor(kind))
				return
			}

			metrics.TokenVerifications.WithLabelValues("ok").Inc()
			ctx = WithClaims(ctx, claims)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.Subject(claims.Subject)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func appErrorFor(kind jwt.FailureKind) *httperrors.AppError {
	if kind == jwt.FailureExpired {
		return httperrors.ErrTokenExpired
	}
	return httperrors.ErrTokenInvalid.
		WithDetail(string(kind)).
		WithChallenge(httperrors.InvalidTokenChallenge(string(kind)))
}

// RequireRole aplica la policy sobre las claims que dejó RequireAuth.
// unauthenticated -> 401, insufficient_role -> 403.
func RequireRole(gate authz.Gate, policy authz.Policy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := gate.Authorize(r.Context(), GetClaims(r.Context()), policy)
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}
			if d.Reason == authz.ReasonUnauthenticated {
				httperrors.WriteError(w, httperrors.ErrTokenMissing)
				return
			}
			httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail(string(d.Reason)))
		})
	}
}
