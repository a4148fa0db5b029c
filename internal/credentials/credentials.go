// Package credentials es la frontera con quien valida usuario/password.
// El issuer solo recibe un Principal ya verificado.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/jwkgate/internal/jwt"
)

var ErrInvalidCredentials = errors.New("invalid_credentials")

// Checker valida credenciales y devuelve el principal autenticado.
type Checker interface {
	Check(ctx context.Context, username, password string) (jwt.Principal, error)
}

// User es una entrada del directorio (config `users`).
type User struct {
	Subject      string
	PasswordHash string
	Roles        []string
}

// Directory es un Checker en memoria respaldado por hashes bcrypt.
// Pensado para dev y tests; en producción el Checker es un servicio externo.
type Directory struct {
	users map[string]User
	// dummy se compara cuando el usuario no existe, para igualar tiempos
	dummy []byte
}

func NewDirectory(users []User) (*Directory, error) {
	d := &Directory{users: make(map[string]User, len(users))}
	for _, u := range users {
		sub := strings.TrimSpace(u.Subject)
		if sub == "" {
			return nil, errors.New("credentials: user without subject")
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("credentials: user %q: invalid bcrypt hash: %w", sub, err)
		}
		if _, dup := d.users[strings.ToLower(sub)]; dup {
			return nil, fmt.Errorf("credentials: duplicated user %q", sub)
		}
		u.Subject = sub
		d.users[strings.ToLower(sub)] = u
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("jwkgate-dummy"), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	d.dummy = dummy
	return d, nil
}

// Check compara el password con bcrypt. Usuario inexistente y password
// incorrecto devuelven el mismo error.
func (d *Directory) Check(ctx context.Context, username, password string) (jwt.Principal, error) {
	u, ok := d.users[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(d.dummy, []byte(password))
		return jwt.Principal{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return jwt.Principal{}, ErrInvalidCredentials
	}
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return jwt.Principal{Subject: u.Subject, Roles: roles}, nil
}

// HashPassword es el helper del CLI para generar entradas de config.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
