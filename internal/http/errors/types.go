package errors

import (
	"fmt"
	"net/http"
)

// AppError es el error estándar del borde HTTP.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`

	// Challenge va en WWW-Authenticate (401).
	Challenge string `json:"-"`
	// RetryAfter en segundos (429, 503).
	RetryAfter int `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New crea un AppError.
func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// WithDetail devuelve una COPIA con detail (no muta los predefinidos).
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithCause devuelve una COPIA con la causa.
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// WithRetryAfter devuelve una COPIA con Retry-After.
func (e *AppError) WithRetryAfter(seconds int) *AppError {
	cp := *e
	cp.RetryAfter = seconds
	return &cp
}

// WithChallenge devuelve una COPIA con otro WWW-Authenticate.
func (e *AppError) WithChallenge(c string) *AppError {
	cp := *e
	cp.Challenge = c
	return &cp
}

// InvalidTokenChallenge arma el WWW-Authenticate de un token rechazado.
func InvalidTokenChallenge(description string) string {
	if description == "" {
		return `Bearer error="invalid_token"`
	}
	return fmt.Sprintf(`Bearer error="invalid_token", error_description=%q`, description)
}

// =================================================================================
// PREDEFINIDOS
// =================================================================================

// 400
var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "El cuerpo de la solicitud no es un JSON válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingFields = &AppError{
		Code:       "MISSING_FIELDS",
		Message:    "Faltan campos requeridos en la solicitud.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnsupportedMediaType = &AppError{
		Code:       "UNSUPPORTED_MEDIA_TYPE",
		Message:    "Content-Type debe ser application/json.",
		HTTPStatus: http.StatusUnsupportedMediaType,
	}
)

// 401
var (
	ErrTokenMissing = &AppError{
		Code:       "TOKEN_MISSING",
		Message:    "Falta el token de acceso.",
		HTTPStatus: http.StatusUnauthorized,
		Challenge:  `Bearer realm="jwkgate"`,
	}

	ErrTokenInvalid = &AppError{
		Code:       "TOKEN_INVALID",
		Message:    "El token de acceso es inválido.",
		HTTPStatus: http.StatusUnauthorized,
		Challenge:  InvalidTokenChallenge(""),
	}

	ErrTokenExpired = &AppError{
		Code:       "TOKEN_EXPIRED",
		Message:    "El token de acceso expiró.",
		HTTPStatus: http.StatusUnauthorized,
		Challenge:  InvalidTokenChallenge("token_expired"),
	}

	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Usuario o contraseña incorrectos.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrCredentialRejected = &AppError{
		Code:       "CREDENTIAL_REJECTED",
		Message:    "La identidad no puede recibir un token; volvé a autenticarte.",
		HTTPStatus: http.StatusUnauthorized,
	}
)

// 403
var (
	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "No tenés permisos para este recurso.",
		HTTPStatus: http.StatusForbidden,
	}
)

// 404 / 405
var (
	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "El recurso no existe.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "Método no permitido.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}
)

// 429
var (
	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Demasiadas solicitudes, intentá más tarde.",
		HTTPStatus: http.StatusTooManyRequests,
	}
)

// 5xx
var (
	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Error interno del servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrNoSigningKey = &AppError{
		Code:       "NO_ACTIVE_SIGNING_KEY",
		Message:    "No hay clave de firma activa.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrKeySetUnavailable = &AppError{
		Code:       "KEY_SET_UNAVAILABLE",
		Message:    "No se pudo obtener el key set para verificar el token.",
		HTTPStatus: http.StatusServiceUnavailable,
		RetryAfter: 5,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Servicio no disponible.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
