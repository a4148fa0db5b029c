package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
)

// errorResponse es lo único que ve el cliente.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe la respuesta para err. Errores que no son *AppError
// salen como 500 sin exponer la causa.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	h := w.Header()
	if appErr.Challenge != "" {
		h.Set("WWW-Authenticate", appErr.Challenge)
	}
	if appErr.RetryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
	}
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(appErr.HTTPStatus)

	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	})
}

// FromError convierte cualquier error en *AppError (500 si no lo es).
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServerError.WithCause(err)
}
