package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/jwkgate/internal/metrics"
)

// ErrCredentialRejected: el principal recibido no es emitible (sin subject,
// sin roles, rol vacío o respaldado por otro issuer).
var ErrCredentialRejected = errors.New("credential_rejected")

// SigningKeySource es lo que el issuer necesita del KeyStore.
type SigningKeySource interface {
	CurrentSigningKey() (SigningKey, error)
}

// Issuer firma tokens con la clave active.
type Issuer struct {
	Iss  string           // "iss"
	Keys SigningKeySource // keystore
	TTL  time.Duration    // lifetime de cada token
}

func NewIssuer(iss string, keys SigningKeySource, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{Iss: iss, Keys: keys, TTL: ttl}
}

// Issue construye y firma el token del principal. No tiene efectos además de
// leer la clave active.
func (i *Issuer) Issue(p Principal, now time.Time) (Token, error) {
	sub := strings.TrimSpace(p.Subject)
	if sub == "" {
		return Token{}, fmt.Errorf("%w: empty subject", ErrCredentialRejected)
	}
	if len(p.Roles) == 0 {
		return Token{}, fmt.Errorf("%w: empty role set", ErrCredentialRejected)
	}
	roles, ok := normalizeRoles(p.Roles)
	if !ok {
		return Token{}, fmt.Errorf("%w: blank role", ErrCredentialRejected)
	}
	if p.Issuer != "" && p.Issuer != i.Iss {
		return Token{}, fmt.Errorf("%w: principal vouched by %q", ErrCredentialRejected, p.Issuer)
	}

	key, err := i.Keys.CurrentSigningKey()
	if err != nil {
		return Token{}, err
	}
	// una clave ya rotada no firma aunque el snapshot la siga dando
	if key.PrivateKey == nil || key.Status != KeyActive || !key.RetireAfter.IsZero() {
		return Token{}, ErrNoActiveKey
	}

	iat := now.UTC().Truncate(time.Second)
	exp := iat.Add(i.TTL)
	wire := tokenClaims{
		Roles: roles,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.Iss,
			Subject:   sub,
			IssuedAt:  jwtv5.NewNumericDate(iat),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, wire)
	tk.Header["kid"] = key.KID
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(key.PrivateKey)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	metrics.TokensIssued.Inc()

	return Token{
		Raw: signed,
		KID: key.KID,
		Claims: Claims{
			Subject:   sub,
			Roles:     roles,
			Issuer:    i.Iss,
			IssuedAt:  iat,
			ExpiresAt: exp,
		},
	}, nil
}
