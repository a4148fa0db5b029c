package jwt

import (
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/jwkgate/internal/validation"
)

// Principal es la identidad ya verificada por el colaborador de credenciales.
type Principal struct {
	Subject string
	Roles   []string
	// Issuer es quién respalda al principal; vacío significa "este issuer".
	Issuer string
}

// Claims es el conjunto validado que sale de Verify.
type Claims struct {
	Subject   string
	Roles     []string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Token es un token firmado junto con lo que se firmó.
type Token struct {
	Raw    string
	KID    string
	Claims Claims
}

// tokenClaims es la forma en el wire (payload JWT).
type tokenClaims struct {
	Roles []string `json:"roles"`
	jwtv5.RegisteredClaims
}

// normalizeRoles recorta espacios y elimina duplicados conservando el orden.
// false si algún rol queda vacío o tiene un formato inválido.
func normalizeRoles(in []string) ([]string, bool) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if !validation.ValidRoleName(r) {
			return nil, false
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out, true
}
