package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/jwkgate/internal/jwt"
	"github.com/dropDatabas3/jwkgate/internal/observability/logger"
)

func TestAuthorize(t *testing.T) {
	doctorOnly := Policy{Name: "records.read", AnyOf: []string{"DOCTOR"}}

	tests := []struct {
		name   string
		claims *jwt.Claims
		policy Policy
		want   Decision
	}{
		{"role match", &jwt.Claims{Subject: "alice", Roles: []string{"DOCTOR"}}, doctorOnly, Decision{Allowed: true}},
		{"case insensitive", &jwt.Claims{Subject: "alice", Roles: []string{" doctor "}}, doctorOnly, Decision{Allowed: true}},
		{"one of many", &jwt.Claims{Subject: "alice", Roles: []string{"nurse"}}, Policy{AnyOf: []string{"doctor", "nurse"}}, Decision{Allowed: true}},
		{"insufficient", &jwt.Claims{Subject: "bob", Roles: []string{"PATIENT"}}, doctorOnly, Decision{Reason: ReasonInsufficientRole}},
		{"no roles", &jwt.Claims{Subject: "bob"}, doctorOnly, Decision{Reason: ReasonInsufficientRole}},
		{"unauthenticated", nil, doctorOnly, Decision{Reason: ReasonUnauthenticated}},
		{"empty policy", &jwt.Claims{Subject: "bob"}, Policy{Name: "me"}, Decision{Allowed: true}},
		{"empty policy still needs claims", nil, Policy{Name: "me"}, Decision{Reason: ReasonUnauthenticated}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.claims, tt.policy))
		})
	}
}

func TestGate_LogsDenials(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core))

	var g Gate
	d := g.Authorize(ctx, &jwt.Claims{Subject: "bob", Roles: []string{"PATIENT"}}, Policy{Name: "records.read", AnyOf: []string{"DOCTOR"}})
	assert.False(t, d.Allowed)

	entries := logs.FilterMessage("authorization denied").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "insufficient_role", fields["reason"])
	assert.Equal(t, "bob", fields["sub"])
	assert.Equal(t, "records.read", fields["policy"])

	d = g.Authorize(ctx, &jwt.Claims{Subject: "alice", Roles: []string{"DOCTOR"}}, Policy{Name: "records.read", AnyOf: []string{"DOCTOR"}})
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, logs.Len())
}

func TestPolicies(t *testing.T) {
	p, err := NewPolicies(map[string][]string{
		"records.read": {"DOCTOR", " nurse "},
		"me":           nil,
	})
	require.NoError(t, err)

	pol, ok := p.Lookup("records.read")
	require.True(t, ok)
	assert.Equal(t, []string{"DOCTOR", "nurse"}, pol.AnyOf)
	assert.Equal(t, []string{"me", "records.read"}, p.Names())

	_, ok = p.Lookup("missing")
	assert.False(t, ok)
	assert.Panics(t, func() { p.MustLookup("missing") })

	_, err = NewPolicies(map[string][]string{"bad": {""}})
	assert.Error(t, err)
}
