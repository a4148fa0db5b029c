package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// AlgRS256 es el único algoritmo que firmamos y aceptamos.
	AlgRS256 = "RS256"

	// MinRSABits es el tamaño mínimo de módulo aceptado al generar o publicar.
	MinRSABits = 2048
)

// KeyStatus es el estado de ciclo de vida de una clave de firma.
type KeyStatus string

const (
	KeyActive   KeyStatus = "active"
	KeyRetiring KeyStatus = "retiring"
	KeyRetired  KeyStatus = "retired"
)

// SigningKey es un par RSA con su metadata de rotación.
// PrivateKey es nil para claves retired y para copias públicas.
type SigningKey struct {
	KID        string
	Alg        string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	Status     KeyStatus
	CreatedAt  time.Time

	// RotatedAt es cuándo la clave dejó de ser active (zero si sigue active).
	RotatedAt time.Time
	// RetireAfter es el fin del período de gracia de una clave retiring.
	RetireAfter time.Time
}

// Public devuelve una copia sin material privado.
func (k SigningKey) Public() SigningKey {
	k.PrivateKey = nil
	return k
}

// Publishable indica si la clave debe aparecer en el key set en el instante now.
// Una clave retiring cuyo deadline ya pasó deja de publicarse aunque el sweeper
// todavía no la haya marcado retired.
func (k SigningKey) Publishable(now time.Time) bool {
	switch k.Status {
	case KeyActive:
		return true
	case KeyRetiring:
		return k.RetireAfter.IsZero() || now.Before(k.RetireAfter)
	default:
		return false
	}
}

// GenerateRSA genera una clave nueva lista para ser active.
func GenerateRSA(bits int, now time.Time) (*SigningKey, error) {
	if bits < MinRSABits {
		return nil, fmt.Errorf("rsa key too small: %d bits (min %d)", bits, MinRSABits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	kid, err := NewKID()
	if err != nil {
		return nil, err
	}
	return &SigningKey{
		KID:        kid,
		Alg:        AlgRS256,
		PrivateKey: priv,
		PublicKey:  &priv.PublicKey,
		Status:     KeyActive,
		CreatedAt:  now.UTC(),
	}, nil
}

// NewKID asigna un kid ordenado por tiempo (UUIDv7): cada kid nuevo es mayor
// que los anteriores en orden lexicográfico.
func NewKID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new kid: %w", err)
	}
	return id.String(), nil
}

// ---- Serialización (stores persistentes) ----

// MarshalPublicKeyPEM codifica la pública como PKIX PEM.
func MarshalPublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePublicKeyPEM revierte MarshalPublicKeyPEM.
func ParsePublicKeyPEM(b []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("invalid public key PEM")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return pub, nil
}

// MarshalPrivateKeyDER codifica la privada como PKCS#1 DER (se cifra antes de persistir).
func MarshalPrivateKeyDER(priv *rsa.PrivateKey) []byte {
	return x509.MarshalPKCS1PrivateKey(priv)
}

// ParsePrivateKeyDER revierte MarshalPrivateKeyDER.
func ParsePrivateKeyDER(der []byte) (*rsa.PrivateKey, error) {
	priv, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return priv, nil
}
