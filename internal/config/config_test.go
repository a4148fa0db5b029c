package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, 15*time.Minute, c.JWT.TokenTTLDur)
	assert.Equal(t, 30*time.Second, c.JWT.ClockSkewDur)
	assert.Equal(t, 30*time.Minute, c.JWT.RotationGraceDur)
	assert.Equal(t, 2048, c.JWT.RSABits)
	assert.Equal(t, "memory", c.Keys.Store)
	assert.Equal(t, []string{"admin"}, c.Policies[PolicyAdmin])
	assert.Empty(t, c.Policies[PolicyMe])
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	p := writeYAML(t, `
app:
  env: staging
jwt:
  issuer: https://auth.example.test
  token_ttl: 10m
  rotation_grace: 1h
keys:
  store: fs
  fs_dir: /var/lib/jwkgate/keys
policies:
  records.read: [DOCTOR]
users:
  - subject: alice
    password_hash: "$2a$10$abc"
    roles: [DOCTOR]
`)
	t.Setenv("JWT_TOKEN_TTL", "5m")
	t.Setenv("SIGNING_MASTER_KEY", "0123456789abcdef0123")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "staging", c.App.Env)
	assert.Equal(t, "https://auth.example.test", c.JWT.Issuer)
	assert.Equal(t, 5*time.Minute, c.JWT.TokenTTLDur)
	assert.Equal(t, time.Hour, c.JWT.RotationGraceDur)
	assert.Equal(t, "fs", c.Keys.Store)
	assert.Equal(t, "0123456789abcdef0123", c.Keys.MasterKey)
	assert.Equal(t, []string{"DOCTOR"}, c.Policies["records.read"])
	require.Len(t, c.Users, 1)
	assert.Equal(t, "alice", c.Users[0].Subject)
	assert.NoError(t, c.Validate("auth"))
}

func TestLoad_BadDuration(t *testing.T) {
	p := writeYAML(t, "jwt:\n  token_ttl: soon\n")
	_, err := Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.token_ttl")
}

func TestValidate(t *testing.T) {
	c := Default()
	require.NoError(t, c.resolve())
	err := c.Validate("auth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.issuer")

	c.JWT.Issuer = "https://auth.example.test"
	require.NoError(t, c.Validate("auth"))

	// la gracia tiene que cubrir un TTL completo
	c.JWT.RotationGraceDur = time.Minute
	err = c.Validate("auth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rotation_grace")
	c.JWT.RotationGraceDur = time.Hour

	c.JWT.RSABits = 1024
	assert.Error(t, c.Validate("auth"))
	c.JWT.RSABits = 2048

	c.Keys.Store = "postgres"
	assert.Error(t, c.Validate("auth"))

	err = c.Validate("resource")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwks.url")
	c.JWKS.URL = "https://auth.example.test/.well-known/jwks.json"
	assert.NoError(t, c.Validate("resource"))

	c.JWKS.Cache = "redis"
	assert.Error(t, c.Validate("resource"))
	c.Redis.Addr = "localhost:6379"
	assert.NoError(t, c.Validate("resource"))
}

func TestValidate_GraceCoversStaleReplica(t *testing.T) {
	c := Default()
	c.JWT.Issuer = "https://auth.example.test"
	assert.Equal(t, 15*time.Minute+10*time.Second+30*time.Second, c.MinRotationGrace())

	// gracia == ttl no alcanza: una réplica sin recargar firma con la clave vieja
	c.JWT.RotationGraceDur = c.JWT.TokenTTLDur
	err := c.Validate("auth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keys.reload_interval")

	c.JWT.RotationGraceDur = c.MinRotationGrace()
	assert.NoError(t, c.Validate("auth"))

	// sweep más corto que el reload también acota la ventana
	c.Keys.SweepIntervalDur = time.Second
	assert.Equal(t, 15*time.Minute+time.Second+30*time.Second, c.MinRotationGrace())
}

func TestLoad_MaxRetries(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, c.JWKSMaxRetries())

	c, err = Load(writeYAML(t, "jwks:\n  max_retries: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, c.JWKSMaxRetries())

	t.Setenv("JWKS_MAX_RETRIES", "4")
	c, err = Load(writeYAML(t, "jwks:\n  max_retries: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, c.JWKSMaxRetries())
}
