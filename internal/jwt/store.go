package jwt

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoActiveKey        = errors.New("no_active_signing_key")
	ErrMultipleActiveKeys = errors.New("multiple_active_signing_keys")
	ErrSigningKeyExists   = errors.New("signing_key_exists")
)

// SigningKeyStore persiste las claves de firma. KeyStore es el único writer
// dentro de un proceso; las implementaciones deben hacer RotateSigningKey
// atómico respecto de otros procesos (tx en postgres, lock en fs).
type SigningKeyStore interface {
	// ListSigningKeys devuelve todas las claves, incluidas las retired
	// (estas últimas sin material privado).
	ListSigningKeys(ctx context.Context) ([]SigningKey, error)

	// InsertSigningKey agrega una clave (bootstrap). Falla con
	// ErrSigningKeyExists si el kid ya existe.
	InsertSigningKey(ctx context.Context, k *SigningKey) error

	// RotateSigningKey pasa la active actual a retiring (rotatedAt/retireAfter)
	// e inserta next como active. Devuelve la clave demovida (nil si no había).
	RotateSigningKey(ctx context.Context, next *SigningKey, rotatedAt, retireAfter time.Time) (*SigningKey, error)

	// RetireSigningKeys marca retired toda clave retiring con RetireAfter <= now,
	// descartando su material privado. Devuelve los kids afectados.
	RetireSigningKeys(ctx context.Context, now time.Time) ([]string, error)
}
