package jwt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublisher_DocumentFields(t *testing.T) {
	clock := newFakeClock()
	ks := newTestKeyStore(t, clock, time.Hour)
	cur, _ := ks.CurrentSigningKey()

	b, etag, err := NewPublisher(ks).Publish()
	require.NoError(t, err)
	require.NotEmpty(t, etag)

	var raw map[string][]map[string]string
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Len(t, raw["keys"], 1)
	k := raw["keys"][0]
	require.Equal(t, "RSA", k["kty"])
	require.Equal(t, cur.KID, k["kid"])
	require.Equal(t, "RS256", k["alg"])
	require.Equal(t, "sig", k["use"])
	require.NotContains(t, k, "d", "private exponent never published")

	n, err := base64.RawURLEncoding.DecodeString(k["n"])
	require.NoError(t, err)
	require.Equal(t, 0, new(big.Int).SetBytes(n).Cmp(cur.PublicKey.N))
	require.Equal(t, "AQAB", k["e"])
}

func TestPublisher_IsPureAndTracksRotation(t *testing.T) {
	clock := newFakeClock()
	ks := newTestKeyStore(t, clock, 10*time.Minute)
	pub := NewPublisher(ks)

	b1, e1, err := pub.Publish()
	require.NoError(t, err)
	b2, e2, err := pub.Publish()
	require.NoError(t, err)
	require.Equal(t, b1, b2)
	require.Equal(t, e1, e2)

	_, err = ks.Rotate(context.Background())
	require.NoError(t, err)
	doc := pub.Document()
	require.Len(t, doc.Keys, 2)
	_, e3, _ := pub.Publish()
	require.NotEqual(t, e1, e3)

	clock.Advance(10 * time.Minute)
	require.Len(t, pub.Document().Keys, 1)
}

func TestParseJWKS_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	ks := newTestKeyStore(t, clock, time.Hour)
	_, err := ks.Rotate(context.Background())
	require.NoError(t, err)

	b, _, err := NewPublisher(ks).Publish()
	require.NoError(t, err)
	set, err := ParseJWKS(b)
	require.NoError(t, err)
	require.Equal(t, ks.PublicKeySet().KIDs(), set.KIDs())

	for _, kid := range set.KIDs() {
		got, _ := set.Lookup(kid)
		want, _ := ks.PublicKeySet().Lookup(kid)
		require.True(t, want.Key.Equal(got.Key))
	}
}

func TestParseJWKS_SkipsUnusableKeys(t *testing.T) {
	clock := newFakeClock()
	ks := newTestKeyStore(t, clock, time.Hour)
	doc := NewPublisher(ks).Document()
	good := doc.Keys[0]

	small := good
	small.Kid = "small"
	small.N = base64.RawURLEncoding.EncodeToString(big.NewInt(12345).Bytes())

	enc := good
	enc.Kid = "enc"
	enc.Use = "enc"

	ec := JWK{Kty: "EC", Kid: "ec"}

	doc.Keys = append(doc.Keys, small, enc, ec)
	b, err := json.Marshal(doc)
	require.NoError(t, err)

	set, err := ParseJWKS(b)
	require.NoError(t, err)
	require.Equal(t, []string{good.Kid}, set.KIDs())

	_, err = ParseJWKS([]byte("not json"))
	require.ErrorIs(t, err, ErrInvalidJWKS)
}
