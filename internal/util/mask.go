package util

import (
	"net/url"
	"strings"
)

// MaskSecret deja ver solo los extremos de un secreto para logs.
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:2] + "…" + s[len(s)-2:]
}

// MaskDSN oculta la password de un DSN URL (postgres://u:p@h/db).
// Si no parsea como URL devuelve el DSN enmascarado entero.
func MaskDSN(dsn string) string {
	u, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return MaskSecret(dsn)
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
