package middlewares

import (
	"context"

	"github.com/dropDatabas3/jwkgate/internal/jwt"
)

type ctxKey string

const (
	ctxClaimsKey    ctxKey = "claims"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithClaims inyecta las claims verificadas.
func WithClaims(ctx context.Context, c jwt.Claims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey, &c)
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetClaims devuelve nil si el request no pasó por RequireAuth.
func GetClaims(ctx context.Context) *jwt.Claims {
	if c, ok := ctx.Value(ctxClaimsKey).(*jwt.Claims); ok {
		return c
	}
	return nil
}

// GetRequestID devuelve "" si no hay request ID.
func GetRequestID(ctx context.Context) string {
	if s, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return s
	}
	return ""
}
