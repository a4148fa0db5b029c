package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestDirectory_Check(t *testing.T) {
	d, err := NewDirectory([]User{
		{Subject: "alice", PasswordHash: hash(t, "s3cret"), Roles: []string{"DOCTOR"}},
	})
	require.NoError(t, err)
	ctx := context.Background()

	p, err := d.Check(ctx, "Alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Subject)
	assert.Equal(t, []string{"DOCTOR"}, p.Roles)

	_, err = d.Check(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = d.Check(ctx, "mallory", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestNewDirectory_Validation(t *testing.T) {
	_, err := NewDirectory([]User{{Subject: "", PasswordHash: hash(t, "x")}})
	assert.Error(t, err)

	_, err = NewDirectory([]User{{Subject: "bob", PasswordHash: "plaintext"}})
	assert.Error(t, err)

	_, err = NewDirectory([]User{
		{Subject: "bob", PasswordHash: hash(t, "x")},
		{Subject: "BOB", PasswordHash: hash(t, "y")},
	})
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("pw")))
}
