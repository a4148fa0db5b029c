package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/jwkgate/internal/authz"
	"github.com/dropDatabas3/jwkgate/internal/credentials"
	"github.com/dropDatabas3/jwkgate/internal/http/controllers"
	mw "github.com/dropDatabas3/jwkgate/internal/http/middlewares"
	"github.com/dropDatabas3/jwkgate/internal/jwksclient"
	"github.com/dropDatabas3/jwkgate/internal/jwt"
	"github.com/dropDatabas3/jwkgate/internal/rate"
)

const issuer = "https://auth.example.test"

type env struct {
	ks       *jwt.KeyStore
	auth     http.Handler
	resource http.Handler
	authSrv  *httptest.Server
	clock    *clock
}

// clock compartido entre el test y el handler del auth server.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func hash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{clock: &clock{now: time.Now().UTC()}}
	now := e.clock.Now

	e.ks = jwt.NewKeyStore(jwt.NewMemorySigningKeyStore(), jwt.KeyStoreConfig{Grace: time.Hour, Now: now})
	require.NoError(t, e.ks.EnsureBootstrap(context.Background()))

	dir, err := credentials.NewDirectory([]credentials.User{
		{Subject: "alice", PasswordHash: hash(t, "alice-pw"), Roles: []string{"DOCTOR"}},
		{Subject: "bob", PasswordHash: hash(t, "bob-pw"), Roles: []string{"PATIENT"}},
		{Subject: "root", PasswordHash: hash(t, "root-pw"), Roles: []string{"admin"}},
	})
	require.NoError(t, err)

	policies, err := authz.NewPolicies(map[string][]string{
		"admin":        {"admin"},
		"me":           {},
		"records.read": {"DOCTOR"},
	})
	require.NoError(t, err)

	tokenCtl := controllers.NewTokenController(dir, jwt.NewIssuer(issuer, e.ks, 15*time.Minute))
	tokenCtl.Now = now
	limiter := rate.NewMemoryLimiter(5, time.Minute)

	e.auth = NewAuthRouter(AuthRouterDeps{
		JWKS:      controllers.NewJWKSController(jwt.NewPublisher(e.ks), 5*time.Minute),
		Token:     tokenCtl,
		Health:    controllers.NewHealthController(),
		AdminKeys: controllers.NewAdminKeysController(e.ks),
		Auth: mw.AuthConfig{
			Resolver: jwt.NewLocalResolver(e.ks, jwt.NewVerifier(30*time.Second)),
			Issuer:   issuer,
			Now:      now,
		},
		AdminPolicy:  policies.MustLookup("admin"),
		LoginLimiter: limiter,
	})
	e.authSrv = httptest.NewServer(e.auth)
	t.Cleanup(e.authSrv.Close)

	remote := jwksclient.New(e.authSrv.URL+"/.well-known/jwks.json", time.Minute, nil, 30*time.Second)
	remote.Now = now
	e.resource = NewResourceRouter(ResourceRouterDeps{
		Auth:      mw.AuthConfig{Resolver: remote, Issuer: issuer, Now: now},
		Policies:  policies,
		MePolicy:  policies.MustLookup("me"),
		Resources: []string{"records.read"},
	})
	return e
}

func do(h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func (e *env) login(t *testing.T, user, pw string) string {
	t.Helper()
	rec := do(e.auth, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": user, "password": pw})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp controllers.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(900), resp.ExpiresIn)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	return resp.AccessToken
}

func TestJWKS_ETagAndHead(t *testing.T) {
	e := newEnv(t)

	rec := do(e.auth, http.MethodGet, "/.well-known/jwks.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=300", rec.Header().Get("Cache-Control"))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	var doc jwt.JWKS
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Keys, 1)
	assert.Equal(t, "RSA", doc.Keys[0].Kty)
	assert.Equal(t, "sig", doc.Keys[0].Use)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	e.auth.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = do(e.auth, http.MethodHead, "/.well-known/jwks.json", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestLogin_InvalidCredentials(t *testing.T) {
	e := newEnv(t)
	rec := do(e.auth, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e.auth, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_RateLimited(t *testing.T) {
	e := newEnv(t)
	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = do(e.auth, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}

func TestAdminKeys_RequiresAdmin(t *testing.T) {
	e := newEnv(t)

	rec := do(e.auth, http.MethodGet, "/v1/admin/keys", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	alice := e.login(t, "alice", "alice-pw")
	rec = do(e.auth, http.MethodPost, "/v1/admin/keys/rotate", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	root := e.login(t, "root", "root-pw")
	rec = do(e.auth, http.MethodPost, "/v1/admin/keys/rotate", root, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(e.auth, http.MethodGet, "/v1/admin/keys", root, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Keys []controllers.KeyView `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Keys, 2)
	assert.Equal(t, "active", body.Keys[0].Status)
	assert.Equal(t, "retiring", body.Keys[1].Status)
	assert.NotNil(t, body.Keys[1].RetireAfter)
}

func TestResource_RoleScenario(t *testing.T) {
	e := newEnv(t)
	alice := e.login(t, "alice", "alice-pw")
	bob := e.login(t, "bob", "bob-pw")

	rec := do(e.resource, http.MethodGet, "/v1/resources/records.read", alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(e.resource, http.MethodGet, "/v1/resources/records.read", bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(e.resource, http.MethodGet, "/v1/me", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me controllers.MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "bob", me.Subject)
	assert.Equal(t, []string{"PATIENT"}, me.Roles)

	rec = do(e.resource, http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResource_ExpiredAndTampered(t *testing.T) {
	e := newEnv(t)
	alice := e.login(t, "alice", "alice-pw")

	rec := do(e.resource, http.MethodGet, "/v1/me", alice[:len(alice)-4]+"AAAA", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)

	e.clock.Advance(20 * time.Minute)
	rec = do(e.resource, http.MethodGet, "/v1/me", alice, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "token_expired")
}

func TestResource_TokenSignedBeforeRotation(t *testing.T) {
	e := newEnv(t)
	alice := e.login(t, "alice", "alice-pw")

	// el resource cachea el set con la clave vieja
	rec := do(e.resource, http.MethodGet, "/v1/me", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := e.ks.Rotate(context.Background())
	require.NoError(t, err)
	fresh := e.login(t, "alice", "alice-pw")

	// token viejo sigue verificando (clave retiring publicada)
	rec = do(e.resource, http.MethodGet, "/v1/me", alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	// token nuevo fuerza el refresh por kid desconocido
	rec = do(e.resource, http.MethodGet, "/v1/me", fresh, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResource_KeySetUnavailable(t *testing.T) {
	e := newEnv(t)
	alice := e.login(t, "alice", "alice-pw")
	e.authSrv.Close()

	rec := do(e.resource, http.MethodGet, "/v1/me", alice, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
