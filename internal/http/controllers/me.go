package controllers

import (
	"net/http"
	"time"

	httperrors "github.com/dropDatabas3/jwkgate/internal/http/errors"
	"github.com/dropDatabas3/jwkgate/internal/http/helpers"
	"github.com/dropDatabas3/jwkgate/internal/http/middlewares"
)

type MeResponse struct {
	Subject   string    `json:"sub"`
	Roles     []string  `json:"roles"`
	Issuer    string    `json:"iss"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// MeController es el recurso de ejemplo del resource service: devuelve las
// claims verificadas del caller.
type MeController struct{}

// Me maneja GET /v1/me.
func (MeController) Me(w http.ResponseWriter, r *http.Request) {
	c := middlewares.GetClaims(r.Context())
	if c == nil {
		httperrors.WriteError(w, httperrors.ErrTokenMissing)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, MeResponse{
		Subject:   c.Subject,
		Roles:     c.Roles,
		Issuer:    c.Issuer,
		IssuedAt:  c.IssuedAt,
		ExpiresAt: c.ExpiresAt,
	})
}

// Resource es un handler genérico protegido por policy (ej. records.read).
func (MeController) Resource(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := middlewares.GetClaims(r.Context())
		if c == nil {
			httperrors.WriteError(w, httperrors.ErrTokenMissing)
			return
		}
		helpers.WriteJSON(w, http.StatusOK, map[string]string{"resource": name, "sub": c.Subject})
	}
}
