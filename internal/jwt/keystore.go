package jwt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dropDatabas3/jwkgate/internal/metrics"
	"github.com/dropDatabas3/jwkgate/internal/observability/logger"
)

// KeyStoreConfig parametriza el ciclo de vida de las claves.
type KeyStoreConfig struct {
	// Grace es cuánto sigue publicada una clave después de rotar. Debe ser
	// al menos el lifetime máximo de un token.
	Grace time.Duration
	// RSABits para claves nuevas. Default 2048.
	RSABits int
	// ReloadInterval es cada cuánto Run relee el store. Con réplicas sobre un
	// store compartido acota cuánto tarda una réplica en ver la rotación de
	// otra. 0 = releer solo en cada sweep.
	ReloadInterval time.Duration
	// Now permite inyectar el reloj en tests. Default time.Now.
	Now func() time.Time
}

// keySnapshot es inmutable: Rotate/Sweep/Reload arman uno nuevo y lo
// reemplazan entero, así un reader nunca ve un registro a medio actualizar.
type keySnapshot struct {
	active *SigningKey
	keys   []SigningKey
}

// KeyStore es la vista en proceso de las claves de firma: un writer
// (rotate/sweep/reload, serializados por writeMu) y muchos readers.
type KeyStore struct {
	store       SigningKeyStore
	grace       time.Duration
	bits        int
	reloadEvery time.Duration
	now         func() time.Time

	writeMu sync.Mutex

	mu   sync.RWMutex
	snap *keySnapshot
}

func NewKeyStore(store SigningKeyStore, cfg KeyStoreConfig) *KeyStore {
	if cfg.RSABits == 0 {
		cfg.RSABits = MinRSABits
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &KeyStore{
		store:       store,
		grace:       cfg.Grace,
		bits:        cfg.RSABits,
		reloadEvery: cfg.ReloadInterval,
		now:         cfg.Now,
		snap:        &keySnapshot{},
	}
}

// Grace devuelve el período de gracia configurado.
func (s *KeyStore) Grace() time.Duration { return s.grace }

// EnsureBootstrap carga las claves y, si no hay active, provisiona una.
func (s *KeyStore) EnsureBootstrap(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.reloadLocked(ctx); err != nil {
		return err
	}
	if s.snapshot().active != nil {
		return nil
	}

	k, err := GenerateRSA(s.bits, s.now())
	if err != nil {
		return err
	}
	if err := s.store.InsertSigningKey(ctx, k); err != nil {
		return fmt.Errorf("insert bootstrap key: %w", err)
	}
	logger.From(ctx).Info("signing key provisioned",
		logger.Component("keystore"), logger.Op("bootstrap"), logger.KID(k.KID))
	return s.reloadLocked(ctx)
}

// Reload relee el store. Útil cuando otra instancia rotó (store compartido).
func (s *KeyStore) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *KeyStore) reloadLocked(ctx context.Context) error {
	keys, err := s.store.ListSigningKeys(ctx)
	if err != nil {
		return fmt.Errorf("list signing keys: %w", err)
	}
	next := &keySnapshot{keys: keys}
	for i := range keys {
		if keys[i].Status != KeyActive {
			continue
		}
		if next.active != nil {
			return ErrMultipleActiveKeys
		}
		next.active = &keys[i]
	}
	if next.active != nil && next.active.PrivateKey == nil {
		return fmt.Errorf("active key %s has no private material", next.active.KID)
	}

	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()

	metrics.PublishedKeys.Set(float64(len(s.PublicKeySet().KIDs())))
	return nil
}

func (s *KeyStore) snapshot() *keySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// CurrentSigningKey devuelve la única clave active. ErrNoActiveKey si no hay
// ninguna provisionada (condición fatal al arrancar el auth service).
func (s *KeyStore) CurrentSigningKey() (SigningKey, error) {
	snap := s.snapshot()
	if snap.active == nil {
		return SigningKey{}, ErrNoActiveKey
	}
	return *snap.active, nil
}

// PublicKeySet devuelve las públicas de todas las claves no retired cuyo
// período de gracia no venció.
func (s *KeyStore) PublicKeySet() KeySet {
	snap := s.snapshot()
	now := s.now()
	pubs := make([]PublicKey, 0, len(snap.keys))
	for _, k := range snap.keys {
		if !k.Publishable(now) {
			continue
		}
		pubs = append(pubs, PublicKey{KID: k.KID, Alg: k.Alg, Key: k.PublicKey})
	}
	return NewKeySet(pubs...)
}

// Keys lista todas las claves conocidas sin material privado (CLI/admin).
func (s *KeyStore) Keys() []SigningKey {
	snap := s.snapshot()
	out := make([]SigningKey, len(snap.keys))
	for i, k := range snap.keys {
		out[i] = k.Public()
	}
	return out
}

// Rotate genera una clave nueva, la deja active y pasa la anterior a retiring
// con deadline now+grace. Devuelve el kid nuevo.
func (s *KeyStore) Rotate(ctx context.Context) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// segundos enteros: los tokens usan NumericDate
	now := s.now().UTC().Truncate(time.Second)
	next, err := GenerateRSA(s.bits, now)
	if err != nil {
		return "", err
	}
	prev, err := s.store.RotateSigningKey(ctx, next, now, now.Add(s.grace))
	if err != nil {
		return "", fmt.Errorf("rotate signing key: %w", err)
	}
	if err := s.reloadLocked(ctx); err != nil {
		return "", err
	}
	metrics.KeyRotations.Inc()

	log := logger.From(ctx).With(logger.Component("keystore"), logger.Op("rotate"))
	if prev != nil {
		log.Info("signing key rotated",
			logger.KID(next.KID),
			logger.String("retiring_kid", prev.KID),
			logger.String("retire_after", prev.RetireAfter.Format(time.RFC3339)))
	} else {
		log.Info("signing key rotated", logger.KID(next.KID))
	}
	return next.KID, nil
}

// Sweep pasa a retired las claves cuyo período de gracia venció y descarta
// su material privado. Devuelve cuántas se retiraron.
func (s *KeyStore) Sweep(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	kids, err := s.store.RetireSigningKeys(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("retire signing keys: %w", err)
	}
	if err := s.reloadLocked(ctx); err != nil {
		return len(kids), err
	}
	for _, kid := range kids {
		metrics.KeysRetired.Inc()
		logger.From(ctx).Info("signing key retired",
			logger.Component("keystore"), logger.Op("sweep"), logger.KID(kid))
	}
	return len(kids), nil
}

// Run ejecuta Sweep cada sweepEvery y, entre sweeps, Reload cada
// ReloadInterval, hasta que ctx se cancele.
func (s *KeyStore) Run(ctx context.Context, sweepEvery time.Duration) {
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	tick := sweepEvery
	if s.reloadEvery > 0 && s.reloadEvery < tick {
		tick = s.reloadEvery
	}
	log := logger.From(ctx).With(logger.Component("keystore"))
	lastSweep := time.Now()
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case at := <-t.C:
			if at.Sub(lastSweep) >= sweepEvery-tick/2 {
				lastSweep = at
				if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("key sweep failed", logger.Err(err))
				}
				continue
			}
			if err := s.Reload(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("key reload failed", logger.Err(err))
			}
		}
	}
}
