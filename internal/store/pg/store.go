// Package pg implementa jwt.SigningKeyStore sobre postgres (pgx).
// Varios auth services pueden compartir la tabla: la rotación corre en una
// tx con SELECT ... FOR UPDATE y el índice único parcial impide dos active.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/jwkgate/internal/jwt"
	"github.com/dropDatabas3/jwkgate/internal/security/keycrypto"
	migrations "github.com/dropDatabas3/jwkgate/migrations/postgres"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
	box  *keycrypto.Box
}

var _ jwt.SigningKeyStore = (*Store)(nil)

// Options de tuning del pool.
type Options struct {
	MaxConns int32
}

// Open conecta y verifica con Ping. masterKey cifra las privadas.
func Open(ctx context.Context, dsn, masterKey string, opts Options) (*Store, error) {
	box, err := keycrypto.New(masterKey)
	if err != nil {
		return nil, err
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		pcfg.MaxConns = opts.MaxConns
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 5
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Store{pool: pool, box: box}, nil
}

// Close cierra el pool (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Ping para el readiness.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// EnsureSchema aplica las migraciones embebidas (todas idempotentes).
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, name := range migrations.Files {
		b, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("pg: read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("pg: apply migration %s: %w", name, err)
		}
	}
	return nil
}

const selectCols = `kid, alg, public_key_pem, private_key_enc, status, created_at, rotated_at, retire_after`

func (s *Store) ListSigningKeys(ctx context.Context) ([]jwt.SigningKey, error) {
	const q = `SELECT ` + selectCols + `
FROM signing_keys
ORDER BY CASE status WHEN 'active' THEN 0 WHEN 'retiring' THEN 1 ELSE 2 END, kid DESC`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("pg: list signing keys: %w", err)
	}
	defer rows.Close()

	var out []jwt.SigningKey
	for rows.Next() {
		var r keyRow
		if err := rows.Scan(&r.KID, &r.Alg, &r.PublicKeyPEM, &r.PrivateKeyEnc, &r.Status, &r.CreatedAt, &r.RotatedAt, &r.RetireAfter); err != nil {
			return nil, err
		}
		k, err := r.toKey(s.box)
		if err != nil {
			return nil, fmt.Errorf("pg: key %s: %w", r.KID, err)
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func (s *Store) InsertSigningKey(ctx context.Context, k *jwt.SigningKey) error {
	r, err := fromKey(k, s.box)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO signing_keys (kid, alg, public_key_pem, private_key_enc, status, created_at, rotated_at, retire_after)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.pool.Exec(ctx, q, r.KID, r.Alg, r.PublicKeyPEM, r.PrivateKeyEnc, r.Status, r.CreatedAt, r.RotatedAt, r.RetireAfter)
	return mapInsertErr(err)
}

// RotateSigningKey: demueve la active a retiring e inserta next como active en una tx.
func (s *Store) RotateSigningKey(ctx context.Context, next *jwt.SigningKey, rotatedAt, retireAfter time.Time) (*jwt.SigningKey, error) {
	nk := *next
	nk.Status = jwt.KeyActive
	nr, err := fromKey(&nk, s.box)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prev *jwt.SigningKey
	{
		const q = `SELECT ` + selectCols + `
FROM signing_keys
WHERE status = 'active'
FOR UPDATE`
		var r keyRow
		err := tx.QueryRow(ctx, q).Scan(&r.KID, &r.Alg, &r.PublicKeyPEM, &r.PrivateKeyEnc, &r.Status, &r.CreatedAt, &r.RotatedAt, &r.RetireAfter)
		switch {
		case err == nil:
			if prev, err = r.toKey(s.box); err != nil {
				return nil, fmt.Errorf("pg: active key %s: %w", r.KID, err)
			}
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return nil, fmt.Errorf("pg: lock active key: %w", err)
		}
	}

	// demover primero: el índice parcial no admite dos active
	if prev != nil {
		const q = `UPDATE signing_keys SET status = 'retiring', rotated_at = $2, retire_after = $3 WHERE kid = $1 AND status = 'active'`
		if _, err := tx.Exec(ctx, q, prev.KID, rotatedAt.UTC(), retireAfter.UTC()); err != nil {
			return nil, fmt.Errorf("pg: demote %s: %w", prev.KID, err)
		}
		prev.Status = jwt.KeyRetiring
		prev.RotatedAt = rotatedAt.UTC()
		prev.RetireAfter = retireAfter.UTC()
	}

	{
		const q = `
INSERT INTO signing_keys (kid, alg, public_key_pem, private_key_enc, status, created_at)
VALUES ($1, $2, $3, $4, 'active', $5)`
		if _, err := tx.Exec(ctx, q, nr.KID, nr.Alg, nr.PublicKeyPEM, nr.PrivateKeyEnc, nr.CreatedAt); err != nil {
			return nil, mapInsertErr(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pg: commit rotation: %w", err)
	}
	return prev, nil
}

// RetireSigningKeys pasa a retired las retiring vencidas y borra su privada.
func (s *Store) RetireSigningKeys(ctx context.Context, now time.Time) ([]string, error) {
	const q = `
UPDATE signing_keys
SET status = 'retired', private_key_enc = NULL
WHERE status = 'retiring'
  AND retire_after IS NOT NULL
  AND retire_after <= $1
RETURNING kid`
	rows, err := s.pool.Query(ctx, q, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("pg: retire signing keys: %w", err)
	}
	kids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("pg: retire signing keys: %w", err)
	}
	return kids, nil
}

func mapInsertErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == "signing_keys_one_active" {
			return jwt.ErrMultipleActiveKeys
		}
		return jwt.ErrSigningKeyExists
	}
	return fmt.Errorf("pg: insert signing key: %w", err)
}
