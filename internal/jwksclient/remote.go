// Package jwksclient mantiene, del lado de un resource service, una copia
// cacheada del JWKS publicado por el auth service.
//
// Modelo pull con TTL: dentro del TTL se usa la copia local; vencido el TTL
// se consulta primero el cache compartido (memory o redis) y después el URL.
// Si el URL falla y hay un set anterior, se sigue sirviendo ese set
// (last-known-good). Sin set previo el error es ErrKeySetFetch, que es de
// infraestructura y reintentable, nunca una falla de verificación.
package jwksclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/jwkgate/internal/cache"
	"github.com/dropDatabas3/jwkgate/internal/jwt"
	"github.com/dropDatabas3/jwkgate/internal/metrics"
	"github.com/dropDatabas3/jwkgate/internal/observability/logger"
)

// ErrKeySetFetch: no se pudo obtener el JWKS y no hay copia previa.
var ErrKeySetFetch = errors.New("key_set_fetch_failure")

const (
	defaultTTL          = 5 * time.Minute
	defaultTimeout      = 5 * time.Second
	defaultRetryInitial = 200 * time.Millisecond
	maxBodyBytes        = 1 << 20
	cacheKey            = "jwks"
)

// RemoteKeySet es seguro para uso concurrente.
type RemoteKeySet struct {
	URL        string
	TTL        time.Duration
	Timeout    time.Duration
	MaxRetries int
	// RetryInitial es el primer intervalo del backoff exponencial.
	RetryInitial time.Duration
	// Cache compartido opcional (nil = solo copia en proceso).
	Cache    cache.Client
	HTTP     *http.Client
	Verifier *jwt.Verifier
	Now      func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	set       jwt.KeySet
	have      bool
	etag      string
	fetchedAt time.Time
	// nextTry evita martillar el URL mientras se sirve last-known-good
	nextTry time.Time
	// nextForce acota los refresh forzados por kid desconocido: el kid lo
	// elige quien manda el token
	nextForce time.Time
}

// New arma un RemoteKeySet con defaults.
func New(url string, ttl time.Duration, c cache.Client, skew time.Duration) *RemoteKeySet {
	return &RemoteKeySet{
		URL:      url,
		TTL:      ttl,
		Cache:    c,
		Verifier: jwt.NewVerifier(skew),
	}
}

// cachedDoc es lo que se guarda en el cache compartido.
type cachedDoc struct {
	ETag      string          `json:"etag,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
	Body      json.RawMessage `json:"body"`
}

type fetchResult struct {
	set jwt.KeySet
	err error
}

func (r *RemoteKeySet) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *RemoteKeySet) ttl() time.Duration {
	if r.TTL > 0 {
		return r.TTL
	}
	return defaultTTL
}

func (r *RemoteKeySet) httpClient() *http.Client {
	if r.HTTP != nil {
		return r.HTTP
	}
	return http.DefaultClient
}

func (r *RemoteKeySet) log(ctx context.Context) *zap.Logger {
	return logger.From(ctx).With(logger.Component("jwksclient"), logger.URL(r.URL))
}

// Snapshot devuelve la copia local sin disparar fetch.
func (r *RemoteKeySet) Snapshot() (jwt.KeySet, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set, r.fetchedAt, r.have
}

// KeySet devuelve el set vigente, refrescando si venció el TTL.
func (r *RemoteKeySet) KeySet(ctx context.Context) (jwt.KeySet, error) {
	now := r.now()
	r.mu.RLock()
	fresh := r.have && now.Sub(r.fetchedAt) < r.ttl()
	backingOff := r.have && now.Before(r.nextTry)
	set := r.set
	r.mu.RUnlock()
	if fresh || backingOff {
		return set, nil
	}
	return r.refresh(ctx, false)
}

// Refresh fuerza una descarga del URL (ignora TTL y cache compartido). Con
// un set ya cargado hay a lo sumo un refresh forzado por cooldown
// (max(TTL/10, 1s)); dentro del cooldown, o mientras se sirve
// last-known-good, devuelve la copia local sin salir a la red.
func (r *RemoteKeySet) Refresh(ctx context.Context) (jwt.KeySet, error) {
	now := r.now()
	r.mu.RLock()
	throttled := r.have && (now.Before(r.nextForce) || now.Before(r.nextTry))
	set := r.set
	r.mu.RUnlock()
	if throttled {
		metrics.KeySetFetches.WithLabelValues("throttled").Inc()
		return set, nil
	}
	return r.refresh(ctx, true)
}

// Resolve verifica raw contra el set cacheado. Si el kid no está, refresca
// una sola vez y vuelve a verificar: así un kid recién rotado se acepta sin
// esperar el TTL.
func (r *RemoteKeySet) Resolve(ctx context.Context, raw string, now time.Time, expectedIssuer string) (jwt.Claims, error) {
	v := r.Verifier
	if v == nil {
		v = jwt.NewVerifier(0)
	}
	set, err := r.KeySet(ctx)
	if err != nil {
		return jwt.Claims{}, err
	}
	claims, err := v.Verify(raw, set, now, expectedIssuer)
	if jwt.KindOf(err) != jwt.FailureUnknownKey {
		return claims, err
	}

	r.log(ctx).Debug("unknown kid, forcing jwks refresh", logger.KID(kidOf(err)))
	set, ferr := r.Refresh(ctx)
	if ferr != nil {
		return jwt.Claims{}, err
	}
	return v.Verify(raw, set, now, expectedIssuer)
}

func kidOf(err error) string {
	var ve *jwt.VerificationError
	if errors.As(err, &ve) {
		return ve.KID
	}
	return ""
}

func (r *RemoteKeySet) refresh(ctx context.Context, force bool) (jwt.KeySet, error) {
	key := "shared"
	if force {
		key = "force"
	}
	// el fetch no hereda la cancelación del primer caller: otros esperan el
	// mismo resultado. Cada caller sí deja de esperar cuando vence su ctx.
	fctx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		set, err := r.load(fctx, force)
		if force {
			r.mu.Lock()
			r.nextForce = r.now().Add(r.retryCooldown())
			r.mu.Unlock()
		}
		return fetchResult{set: set, err: err}, nil
	})
	select {
	case res := <-ch:
		fr := res.Val.(fetchResult)
		return fr.set, fr.err
	case <-ctx.Done():
		if set, _, ok := r.Snapshot(); ok {
			return set, nil
		}
		return jwt.KeySet{}, fmt.Errorf("%w: %w", ErrKeySetFetch, ctx.Err())
	}
}

func (r *RemoteKeySet) load(ctx context.Context, force bool) (jwt.KeySet, error) {
	log := r.log(ctx)
	now := r.now()

	if !force && r.Cache != nil {
		if set, ok := r.fromSharedCache(ctx, now); ok {
			return set, nil
		}
	}

	start := time.Now()
	set, err := r.fetchWithRetry(ctx)
	metrics.KeySetFetchDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		return set, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.have {
		metrics.KeySetFetches.WithLabelValues("stale").Inc()
		r.nextTry = now.Add(r.retryCooldown())
		log.Warn("jwks fetch failed, serving last known good key set",
			logger.Err(err), logger.Count(r.set.Len()))
		return r.set, nil
	}
	metrics.KeySetFetches.WithLabelValues("error").Inc()
	log.Error("jwks fetch failed, no key set available", logger.Err(err))
	return jwt.KeySet{}, fmt.Errorf("%w: %v", ErrKeySetFetch, err)
}

func (r *RemoteKeySet) retryCooldown() time.Duration {
	c := r.ttl() / 10
	if c < time.Second {
		c = time.Second
	}
	return c
}

func (r *RemoteKeySet) fromSharedCache(ctx context.Context, now time.Time) (jwt.KeySet, bool) {
	b, err := r.Cache.Get(ctx, cacheKey)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			r.log(ctx).Warn("jwks shared cache read failed", logger.Err(err))
		}
		return jwt.KeySet{}, false
	}
	var doc cachedDoc
	if err := json.Unmarshal(b, &doc); err != nil || now.Sub(doc.FetchedAt) >= r.ttl() {
		return jwt.KeySet{}, false
	}
	set, err := jwt.ParseJWKS(doc.Body)
	if err != nil {
		return jwt.KeySet{}, false
	}
	r.store(set, doc.ETag, doc.FetchedAt)
	return set, true
}

func (r *RemoteKeySet) store(set jwt.KeySet, etag string, at time.Time) {
	r.mu.Lock()
	r.set = set
	r.have = true
	r.etag = etag
	r.fetchedAt = at
	r.nextTry = time.Time{}
	r.mu.Unlock()
}

// fetchWithRetry reintenta con backoff exponencial los errores transitorios
// (red, 5xx); 4xx y documentos inválidos cortan en el primer intento.
func (r *RemoteKeySet) fetchWithRetry(ctx context.Context) (jwt.KeySet, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.RetryInitial
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = defaultRetryInitial
	}
	eb.MaxInterval = 5 * eb.InitialInterval
	var policy backoff.BackOff = eb
	if r.MaxRetries >= 0 {
		policy = backoff.WithMaxRetries(eb, uint64(r.MaxRetries))
	}

	var set jwt.KeySet
	attempt := 0
	op := func() error {
		attempt++
		s, err := r.fetchOnce(ctx)
		if err != nil {
			r.log(ctx).Debug("jwks fetch attempt failed", logger.Int("attempt", attempt), logger.Err(err))
			return err
		}
		set = s
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return jwt.KeySet{}, err
	}
	return set, nil
}

func (r *RemoteKeySet) fetchOnce(ctx context.Context) (jwt.KeySet, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return jwt.KeySet{}, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	r.mu.RLock()
	etag, have, prev := r.etag, r.have, r.set
	r.mu.RUnlock()
	if have && etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return jwt.KeySet{}, fmt.Errorf("fetching jwks: %w", err)
	}
	defer resp.Body.Close()

	now := r.now()
	if resp.StatusCode == http.StatusNotModified && have {
		metrics.KeySetFetches.WithLabelValues("not_modified").Inc()
		r.store(prev, etag, now)
		return prev, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		err := fmt.Errorf("jwks fetch status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return jwt.KeySet{}, err
		}
		return jwt.KeySet{}, backoff.Permanent(err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return jwt.KeySet{}, fmt.Errorf("reading jwks: %w", err)
	}
	set, err := jwt.ParseJWKS(body)
	if err != nil {
		return jwt.KeySet{}, backoff.Permanent(err)
	}
	newETag := resp.Header.Get("ETag")
	r.store(set, newETag, now)
	metrics.KeySetFetches.WithLabelValues("ok").Inc()
	r.log(ctx).Info("jwks refreshed", logger.Count(set.Len()))

	if r.Cache != nil {
		doc, _ := json.Marshal(cachedDoc{ETag: newETag, FetchedAt: now, Body: body})
		if err := r.Cache.Set(ctx, cacheKey, doc, r.ttl()); err != nil {
			r.log(ctx).Warn("jwks shared cache write failed", logger.Err(err))
		}
	}
	return set, nil
}
