package jwt

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// JWK es la representación pública de una clave RSA en el JWKS.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS es el documento publicado en /.well-known/jwks.json.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// KeySource es lo que el publisher necesita del KeyStore.
type KeySource interface {
	PublicKeySet() KeySet
}

// Publisher serializa el key set vigente. No tiene estado propio: cada
// Publish es función pura de KeySource.PublicKeySet().
type Publisher struct {
	Keys KeySource
}

func NewPublisher(keys KeySource) *Publisher { return &Publisher{Keys: keys} }

// Document arma el JWKS (kids en orden descendente).
func (p *Publisher) Document() JWKS {
	set := p.Keys.PublicKeySet()
	doc := JWKS{Keys: make([]JWK, 0, set.Len())}
	for _, kid := range set.KIDs() {
		k, _ := set.Lookup(kid)
		doc.Keys = append(doc.Keys, toJWK(k))
	}
	return doc
}

// Publish devuelve el JWKS serializado y un ETag fuerte sobre esos bytes.
func (p *Publisher) Publish() ([]byte, string, error) {
	b, err := json.Marshal(p.Document())
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(b)
	return b, `"` + hex.EncodeToString(sum[:16]) + `"`, nil
}

func toJWK(k PublicKey) JWK {
	alg := k.Alg
	if alg == "" {
		alg = AlgRS256
	}
	return JWK{
		Kty: "RSA",
		Kid: k.KID,
		Alg: alg,
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(k.Key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.Key.E)).Bytes()),
	}
}

var ErrInvalidJWKS = errors.New("invalid_jwks")

// ParseJWKS es el lado consumidor: decodifica un documento y se queda con las
// claves RSA de firma RS256 utilizables. Claves de otro tipo se ignoran; un
// documento que no es JSON válido es error.
func ParseJWKS(b []byte) (KeySet, error) {
	var doc JWKS
	if err := json.Unmarshal(b, &doc); err != nil {
		return KeySet{}, fmt.Errorf("%w: %v", ErrInvalidJWKS, err)
	}
	pubs := make([]PublicKey, 0, len(doc.Keys))
	for _, j := range doc.Keys {
		if j.Kty != "RSA" || j.Kid == "" {
			continue
		}
		if j.Use != "" && j.Use != "sig" {
			continue
		}
		if j.Alg != "" && j.Alg != AlgRS256 {
			continue
		}
		pub, err := parseRSAJWK(j)
		if err != nil {
			continue
		}
		pubs = append(pubs, PublicKey{KID: j.Kid, Alg: AlgRS256, Key: pub})
	}
	return NewKeySet(pubs...), nil
}

func parseRSAJWK(j JWK) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("decode n: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("decode e: %w", err)
	}
	if len(eb) == 0 || len(eb) > 4 {
		return nil, errors.New("invalid exponent")
	}
	n := new(big.Int).SetBytes(nb)
	if n.BitLen() < MinRSABits {
		return nil, fmt.Errorf("modulus too small: %d bits", n.BitLen())
	}
	e := int(new(big.Int).SetBytes(eb).Int64())
	if e < 3 || e%2 == 0 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}
