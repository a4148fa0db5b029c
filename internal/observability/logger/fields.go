package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// ---- HTTP ----

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field { return zap.String("method", v) }
func Path(v string) zap.Field { return zap.String("path", v) }
func Status(v int) zap.Field { return zap.Int("status", v) }
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// ---- Dominio ----

// KID identifica una clave de firma.
func KID(v string) zap.Field { return zap.String("kid", v) }

// Subject es el "sub" del token. No es PII sensible en este servicio.
func Subject(v string) zap.Field { return zap.String("sub", v) }

func Issuer(v string) zap.Field { return zap.String("iss", v) }

// Reason es el motivo de un rechazo (tipo de falla de verificación o de autorización).
func Reason(v string) zap.Field { return zap.String("reason", v) }

func Policy(v string) zap.Field { return zap.String("policy", v) }

func Roles(v []string) zap.Field { return zap.String("roles", strings.Join(v, ",")) }

func URL(v string) zap.Field { return zap.String("url", v) }

// ---- Sistema ----

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field { return zap.String("op", v) }
func Layer(v string) zap.Field { return zap.String("layer", v) }
func Err(err error) zap.Field { return zap.Error(err) }
func Count(v int) zap.Field { return zap.Int("count", v) }

// ---- Genéricos ----

func String(key, v string) zap.Field { return zap.String(key, v) }
func Int(key string, v int) zap.Field { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
