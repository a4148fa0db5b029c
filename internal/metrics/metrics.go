// Package metrics agrupa los collectors Prometheus del servicio.
// Vive en un paquete propio para evitar ciclos entre jwt, jwksclient y http.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jwkgate_tokens_issued_total",
		Help: "Tokens firmados por el issuer",
	})

	TokenVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jwkgate_token_verifications_total",
		Help: "Verificaciones de tokens por resultado (ok o tipo de falla)",
	}, []string{"result"})

	AuthzDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jwkgate_authz_decisions_total",
		Help: "Decisiones de autorización por policy y resultado",
	}, []string{"policy", "result"})

	KeySetFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jwkgate_jwks_fetch_total",
		Help: "Descargas del JWKS remoto por resultado",
	}, []string{"result"}) // ok|not_modified|error|stale|throttled

	KeySetFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "jwkgate_jwks_fetch_duration_seconds",
		Help:    "Latencia de la descarga del JWKS remoto",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	KeyRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jwkgate_signing_key_rotations_total",
		Help: "Rotaciones de la clave de firma",
	})

	KeysRetired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jwkgate_signing_keys_retired_total",
		Help: "Claves que pasaron de retiring a retired",
	})

	PublishedKeys = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jwkgate_signing_keys_published",
		Help: "Cantidad de claves públicas en el JWKS",
	})

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "path", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Register registra todas las métricas en el registry indicado (default si nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		TokensIssued,
		TokenVerifications,
		AuthzDecisions,
		KeySetFetches,
		KeySetFetchDuration,
		KeyRotations,
		KeysRetired,
		PublishedKeys,
		httpRequestsTotal,
		httpRequestDuration,
	}
	for _, c := range collectors {
		if err := registerCollector(reg, c); err != nil {
			return err
		}
	}
	return nil
}

// Handler devuelve el handler de /metrics para el gatherer dado (default si nil).
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveHTTP registra un request ya completado.
func ObserveHTTP(method, path string, status int, d time.Duration) {
	httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// registerCollector registra el collector ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}
