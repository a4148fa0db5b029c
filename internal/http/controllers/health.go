package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/jwkgate/internal/http/helpers"
)

// ReadinessCheck devuelve un detalle legible o error.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) (string, error)
}

type HealthController struct {
	Checks  []ReadinessCheck
	Timeout time.Duration
}

func NewHealthController(checks ...ReadinessCheck) *HealthController {
	return &HealthController{Checks: checks, Timeout: 2 * time.Second}
}

type checkResult struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks"`
}

// Readyz responde 200 si todos los checks pasan, 503 si alguno falla.
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.Timeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]checkResult, len(c.Checks))}
	status := http.StatusOK
	for _, chk := range c.Checks {
		detail, err := chk.Check(ctx)
		res := checkResult{OK: err == nil, Detail: detail}
		if err != nil {
			res.Error = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
		resp.Checks[chk.Name] = res
	}
	w.Header().Set("Cache-Control", "no-store")
	helpers.WriteJSON(w, status, resp)
}

// Healthz es liveness: el proceso responde.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
