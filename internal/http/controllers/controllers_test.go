package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/jwkgate/internal/credentials"
	"github.com/dropDatabas3/jwkgate/internal/jwt"
)

func TestMatchETag(t *testing.T) {
	etag := `"abc"`
	assert.True(t, matchETag(`"abc"`, etag))
	assert.True(t, matchETag(`W/"abc"`, etag))
	assert.True(t, matchETag(`"x", "abc"`, etag))
	assert.True(t, matchETag(`*`, etag))
	assert.False(t, matchETag(``, etag))
	assert.False(t, matchETag(`"other"`, etag))
}

func TestJWKSController_RotationChangesETag(t *testing.T) {
	ks := jwt.NewKeyStore(jwt.NewMemorySigningKeyStore(), jwt.KeyStoreConfig{Grace: time.Hour})
	require.NoError(t, ks.EnsureBootstrap(context.Background()))
	c := NewJWKSController(jwt.NewPublisher(ks), 0)

	get := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		c.GetJWKS(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
		return rec
	}
	first := get()
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "no-cache", first.Header().Get("Cache-Control"))

	_, err := ks.Rotate(context.Background())
	require.NoError(t, err)
	second := get()
	assert.NotEqual(t, first.Header().Get("ETag"), second.Header().Get("ETag"))

	var doc jwt.JWKS
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &doc))
	assert.Len(t, doc.Keys, 2)
}

type stubChecker struct {
	p   jwt.Principal
	err error
}

func (s stubChecker) Check(context.Context, string, string) (jwt.Principal, error) {
	return s.p, s.err
}

type stubIssuer struct {
	tok jwt.Token
	err error
}

func (s stubIssuer) Issue(jwt.Principal, time.Time) (jwt.Token, error) { return s.tok, s.err }

func login(c *TokenController, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c.Login(rec, req)
	return rec
}

func TestTokenController_Login(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	tok := jwt.Token{Raw: "a.b.c", KID: "k1", Claims: jwt.Claims{
		Subject: "alice", Roles: []string{"DOCTOR"}, IssuedAt: now, ExpiresAt: now.Add(15 * time.Minute),
	}}
	p := jwt.Principal{Subject: "alice", Roles: []string{"DOCTOR"}}
	body := `{"username":"alice","password":"pw"}`

	t.Run("ok", func(t *testing.T) {
		rec := login(NewTokenController(stubChecker{p: p}, stubIssuer{tok: tok}), body)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp TokenResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, TokenResponse{AccessToken: "a.b.c", TokenType: "Bearer", ExpiresIn: 900}, resp)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	})

	cases := []struct {
		name    string
		checker stubChecker
		issuer  stubIssuer
		body    string
		status  int
	}{
		{"credenciales invalidas", stubChecker{err: credentials.ErrInvalidCredentials}, stubIssuer{}, body, http.StatusUnauthorized},
		{"checker caido", stubChecker{err: errors.New("ldap down")}, stubIssuer{}, body, http.StatusServiceUnavailable},
		{"principal rechazado", stubChecker{p: p}, stubIssuer{err: jwt.ErrCredentialRejected}, body, http.StatusUnauthorized},
		{"sin clave activa", stubChecker{p: p}, stubIssuer{err: jwt.ErrNoActiveKey}, body, http.StatusServiceUnavailable},
		{"faltan campos", stubChecker{p: p}, stubIssuer{tok: tok}, `{"username":" "}`, http.StatusBadRequest},
		{"json roto", stubChecker{p: p}, stubIssuer{tok: tok}, `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := login(NewTokenController(tc.checker, tc.issuer), tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHealthController_Readyz(t *testing.T) {
	ok := ReadinessCheck{Name: "keys", Check: func(context.Context) (string, error) { return "1 active", nil }}
	bad := ReadinessCheck{Name: "jwks", Check: func(context.Context) (string, error) { return "", errors.New("never fetched") }}

	rec := httptest.NewRecorder()
	NewHealthController(ok).Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthController(ok, bad).Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp.Status)
	assert.False(t, resp.Checks["jwks"].OK)
	assert.True(t, resp.Checks["keys"].OK)
}
