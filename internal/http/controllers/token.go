package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/jwkgate/internal/audit"
	"github.com/dropDatabas3/jwkgate/internal/credentials"
	httperrors "github.com/dropDatabas3/jwkgate/internal/http/errors"
	"github.com/dropDatabas3/jwkgate/internal/http/helpers"
	"github.com/dropDatabas3/jwkgate/internal/jwt"
	"github.com/dropDatabas3/jwkgate/internal/observability/logger"
)

// TokenIssuer es lo que el controller necesita del issuer.
type TokenIssuer interface {
	Issue(p jwt.Principal, now time.Time) (jwt.Token, error)
}

// TokenController emite access tokens a partir de credenciales validadas
// por el Checker.
type TokenController struct {
	Checker credentials.Checker
	Issuer  TokenIssuer
	Now     func() time.Time
}

func NewTokenController(c credentials.Checker, iss TokenIssuer) *TokenController {
	return &TokenController{Checker: c, Issuer: iss, Now: time.Now}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login maneja POST /v1/auth/login.
func (c *TokenController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Component("token"), logger.Op("login"))

	var req LoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("username and password are required"))
		return
	}

	p, err := c.Checker.Check(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, credentials.ErrInvalidCredentials) {
			audit.Log(ctx, audit.EventLoginRejected, logger.String("username", req.Username), logger.Reason("invalid_credentials"))
			httperrors.WriteError(w, httperrors.ErrInvalidCredentials)
			return
		}
		log.Error("credential check failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	tok, err := c.Issuer.Issue(p, now())
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrCredentialRejected):
		log.Warn("principal rejected by issuer", logger.Subject(p.Subject), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrCredentialRejected)
		return
	case errors.Is(err, jwt.ErrNoActiveKey):
		log.Error("no active signing key", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrNoSigningKey.WithCause(err))
		return
	default:
		log.Error("token issue failed", logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	audit.Log(ctx, audit.EventLoginSucceeded, logger.Subject(p.Subject), logger.KID(tok.KID), logger.Roles(tok.Claims.Roles))
	helpers.NoStore(w)
	helpers.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: tok.Raw,
		TokenType:   "Bearer",
		ExpiresIn:   int64(tok.Claims.ExpiresAt.Sub(tok.Claims.IssuedAt).Seconds()),
	})
}
