package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	httperrors "github.com/dropDatabas3/jwkgate/internal/http/errors"
	"github.com/dropDatabas3/jwkgate/internal/jwt"
	"github.com/dropDatabas3/jwkgate/internal/observability/logger"
)

// JWKSController sirve /.well-known/jwks.json. Sin auth: solo expone
// material público.
type JWKSController struct {
	Publisher *jwt.Publisher
	MaxAge    time.Duration
}

func NewJWKSController(p *jwt.Publisher, maxAge time.Duration) *JWKSController {
	return &JWKSController{Publisher: p, MaxAge: maxAge}
}

// GetJWKS maneja GET y HEAD. Responde 304 si If-None-Match coincide.
func (c *JWKSController) GetJWKS(w http.ResponseWriter, r *http.Request) {
	body, etag, err := c.Publisher.Publish()
	if err != nil {
		logger.From(r.Context()).Error("jwks publish failed", logger.Component("jwks"), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	h := w.Header()
	h.Set("ETag", etag)
	h.Set("Cache-Control", cacheControl(c.MaxAge))
	h.Set("Vary", "Accept-Encoding")

	if matchETag(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Type", "application/json")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func cacheControl(maxAge time.Duration) string {
	if maxAge <= 0 {
		return "no-cache"
	}
	return "public, max-age=" + strconv.Itoa(int(maxAge.Seconds()))
}

// matchETag soporta listas y el comodín "*".
func matchETag(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "*" || strings.TrimPrefix(part, "W/") == etag {
			return true
		}
	}
	return false
}
