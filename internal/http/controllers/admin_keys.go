package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/jwkgate/internal/audit"
	httperrors "github.com/dropDatabas3/jwkgate/internal/http/errors"
	"github.com/dropDatabas3/jwkgate/internal/http/helpers"
	"github.com/dropDatabas3/jwkgate/internal/jwt"
	"github.com/dropDatabas3/jwkgate/internal/observability/logger"
)

// KeyAdmin es lo que el controller de admin necesita del KeyStore.
type KeyAdmin interface {
	Keys() []jwt.SigningKey
	Rotate(ctx context.Context) (string, error)
	Sweep(ctx context.Context) (int, error)
}

type AdminKeysController struct {
	Keys KeyAdmin
}

func NewAdminKeysController(k KeyAdmin) *AdminKeysController {
	return &AdminKeysController{Keys: k}
}

// KeyView es la vista pública de una clave (nunca material privado).
type KeyView struct {
	KID         string     `json:"kid"`
	Alg         string     `json:"alg"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RotatedAt   *time.Time `json:"rotated_at,omitempty"`
	RetireAfter *time.Time `json:"retire_after,omitempty"`
}

func ToKeyView(k jwt.SigningKey) KeyView {
	v := KeyView{KID: k.KID, Alg: k.Alg, Status: string(k.Status), CreatedAt: k.CreatedAt}
	if !k.RotatedAt.IsZero() {
		t := k.RotatedAt
		v.RotatedAt = &t
	}
	if !k.RetireAfter.IsZero() {
		t := k.RetireAfter
		v.RetireAfter = &t
	}
	return v
}

// List maneja GET /v1/admin/keys.
func (c *AdminKeysController) List(w http.ResponseWriter, r *http.Request) {
	keys := c.Keys.Keys()
	out := make([]KeyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, ToKeyView(k))
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"keys": out})
}

// Rotate maneja POST /v1/admin/keys/rotate.
func (c *AdminKeysController) Rotate(w http.ResponseWriter, r *http.Request) {
	kid, err := c.Keys.Rotate(r.Context())
	if err != nil {
		logger.From(r.Context()).Error("key rotation failed", logger.Component("admin"), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	audit.Log(r.Context(), audit.EventKeyRotated, logger.KID(kid))
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"kid": kid})
}

// Sweep maneja POST /v1/admin/keys/sweep.
func (c *AdminKeysController) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := c.Keys.Sweep(r.Context())
	if err != nil {
		logger.From(r.Context()).Error("key sweep failed", logger.Component("admin"), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	audit.Log(r.Context(), audit.EventKeysSwept, logger.Count(n))
	helpers.WriteJSON(w, http.StatusOK, map[string]int{"retired": n})
}
