package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// FailureKind clasifica una verificación fallida. Todas son terminales: el
// caller tiene que conseguir un token nuevo.
type FailureKind string

const (
	FailureMalformed      FailureKind = "malformed_token"
	FailureUnknownKey     FailureKind = "unknown_key"
	FailureInvalidSig     FailureKind = "invalid_signature"
	FailureIssuerMismatch FailureKind = "issuer_mismatch"
	FailureExpired        FailureKind = "token_expired"
	FailureNotYetValid    FailureKind = "token_not_yet_valid"
)

var (
	ErrMalformedToken   = errors.New(string(FailureMalformed))
	ErrUnknownKey       = errors.New(string(FailureUnknownKey))
	ErrInvalidSignature = errors.New(string(FailureInvalidSig))
	ErrIssuerMismatch   = errors.New(string(FailureIssuerMismatch))
	ErrTokenExpired     = errors.New(string(FailureExpired))
	ErrTokenNotYetValid = errors.New(string(FailureNotYetValid))
)

var kindErrors = map[FailureKind]error{
	FailureMalformed:      ErrMalformedToken,
	FailureUnknownKey:     ErrUnknownKey,
	FailureInvalidSig:     ErrInvalidSignature,
	FailureIssuerMismatch: ErrIssuerMismatch,
	FailureExpired:        ErrTokenExpired,
	FailureNotYetValid:    ErrTokenNotYetValid,
}

// VerificationError es el único tipo de error que devuelve Verify.
// errors.Is(err, ErrTokenExpired) etc. funciona vía Unwrap.
type VerificationError struct {
	Kind   FailureKind
	KID    string
	Detail string
}

func (e *VerificationError) Error() string {
	if e.Detail != "" {
		return string(e.Kind) + ": " + e.Detail
	}
	return string(e.Kind)
}

func (e *VerificationError) Unwrap() error { return kindErrors[e.Kind] }

func fail(kind FailureKind, kid, format string, args ...any) *VerificationError {
	return &VerificationError{Kind: kind, KID: kid, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extrae el FailureKind de un error de Verify ("" si no es uno).
func KindOf(err error) FailureKind {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}

// Verifier valida tokens contra un key set. Es stateless y seguro para uso
// concurrente; no reintenta nada.
type Verifier struct {
	// Skew es la tolerancia de reloj para exp e iat.
	Skew time.Duration
}

func NewVerifier(skew time.Duration) *Verifier {
	if skew < 0 {
		skew = 0
	}
	return &Verifier{Skew: skew}
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

var segmentParser = jwtv5.NewParser()

// Verify aplica en orden, cortando en el primer fallo:
//  1. estructura (3 segmentos base64url, header JSON)   → malformed_token
//  2. kid presente en keys                               → unknown_key
//  3. firma RS256 sobre header.payload                   → invalid_signature
//  4. iss == expectedIssuer                              → issuer_mismatch
//  5. now <= exp + skew                                  → token_expired
//  6. iat <= now + skew                                  → token_not_yet_valid
//
// El JSON del payload se decodifica recién después de verificar la firma: un
// payload alterado siempre termina en invalid_signature, nunca en malformed.
// Un payload firmado pero sin sub/iat/exp es malformed.
func (v *Verifier) Verify(raw string, keys KeySet, now time.Time, expectedIssuer string) (Claims, error) {
	// 1. estructura
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Claims{}, fail(FailureMalformed, "", "token must have 3 segments")
	}
	hb, err := segmentParser.DecodeSegment(parts[0])
	if err != nil {
		return Claims{}, fail(FailureMalformed, "", "header is not base64url")
	}
	var hdr tokenHeader
	if err := json.Unmarshal(hb, &hdr); err != nil {
		return Claims{}, fail(FailureMalformed, "", "header is not JSON")
	}
	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return Claims{}, fail(FailureMalformed, "", "payload is not base64url")
	}
	sig, err := segmentParser.DecodeSegment(parts[2])
	if err != nil {
		return Claims{}, fail(FailureMalformed, "", "signature is not base64url")
	}

	// 2. kid
	pk, ok := keys.Lookup(hdr.Kid)
	if !ok {
		return Claims{}, fail(FailureUnknownKey, hdr.Kid, "kid %q not in key set", hdr.Kid)
	}

	// 3. firma (alg fijo: nunca confiamos en el header para elegir algoritmo)
	if hdr.Alg != AlgRS256 {
		return Claims{}, fail(FailureInvalidSig, hdr.Kid, "unexpected alg %q", hdr.Alg)
	}
	if err := jwtv5.SigningMethodRS256.Verify(parts[0]+"."+parts[1], sig, pk.Key); err != nil {
		return Claims{}, fail(FailureInvalidSig, hdr.Kid, "signature mismatch")
	}

	var wire tokenClaims
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Claims{}, fail(FailureMalformed, hdr.Kid, "payload is not valid claims JSON")
	}
	if strings.TrimSpace(wire.Subject) == "" || wire.ExpiresAt == nil || wire.IssuedAt == nil {
		return Claims{}, fail(FailureMalformed, hdr.Kid, "missing sub/iat/exp")
	}

	// 4. issuer
	if wire.Issuer != expectedIssuer {
		return Claims{}, fail(FailureIssuerMismatch, hdr.Kid, "iss %q", wire.Issuer)
	}

	// 5. expiración
	exp := wire.ExpiresAt.Time
	if now.After(exp.Add(v.Skew)) {
		return Claims{}, fail(FailureExpired, hdr.Kid, "expired at %s", exp.UTC().Format(time.RFC3339))
	}

	// 6. emitido en el futuro
	iat := wire.IssuedAt.Time
	if iat.After(now.Add(v.Skew)) {
		return Claims{}, fail(FailureNotYetValid, hdr.Kid, "issued at %s", iat.UTC().Format(time.RFC3339))
	}
	if wire.NotBefore != nil && wire.NotBefore.Time.After(now.Add(v.Skew)) {
		return Claims{}, fail(FailureNotYetValid, hdr.Kid, "not before %s", wire.NotBefore.Time.UTC().Format(time.RFC3339))
	}

	roles := wire.Roles
	if roles == nil {
		roles = []string{}
	}
	return Claims{
		Subject:   wire.Subject,
		Roles:     roles,
		Issuer:    wire.Issuer,
		IssuedAt:  iat.UTC(),
		ExpiresAt: exp.UTC(),
	}, nil
}
