// Package audit registra eventos de seguridad (login, rotación, sweep) como
// líneas estructuradas separadas del access log.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/jwkgate/internal/observability/logger"
)

// Eventos conocidos.
const (
	EventLoginSucceeded = "login.succeeded"
	EventLoginRejected  = "login.rejected"
	EventKeyRotated     = "key.rotated"
	EventKeysSwept      = "key.swept"
)

// Log escribe un evento de auditoría con el logger del request (request_id,
// sub) más los campos dados.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	l := logger.From(ctx).Named("audit")
	l.Info(event, append([]zap.Field{zap.String("event", event)}, fields...)...)
}
