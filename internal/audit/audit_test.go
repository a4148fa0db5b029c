package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/jwkgate/internal/observability/logger"
)

func TestLog_UsesRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).With(zap.String("request_id", "rid-1")))

	Log(ctx, EventKeyRotated, logger.KID("kid-9"))

	entries := logs.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, EventKeyRotated, e.Message)
	assert.Equal(t, "audit", e.LoggerName)
	fields := e.ContextMap()
	assert.Equal(t, "rid-1", fields["request_id"])
	assert.Equal(t, "kid-9", fields["kid"])
	assert.Equal(t, EventKeyRotated, fields["event"])
}
