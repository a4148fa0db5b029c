package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/jwkgate/internal/security/keycrypto"
	"github.com/dropDatabas3/jwkgate/internal/util/atomicwrite"
)

// FileSigningKeyStore persiste una clave por archivo (<kid>.json) en keysDir.
// Garantías:
//   - escritura atómica (tmp → fsync → rename)
//   - material privado cifrado con el master key (AES-GCM, aad = kid)
//   - la rotación demueve la active antes de escribir la nueva, así nunca
//     quedan dos active en disco; si la nueva no se puede escribir se
//     restaura la anterior
//
// El mutex serializa writers dentro del proceso; múltiples procesos sobre el
// mismo directorio no están soportados (usar postgres).
type FileSigningKeyStore struct {
	keysDir string
	box     *keycrypto.Box
	mu      sync.Mutex
	// write es atomicwrite.WriteFile; reemplazable en tests
	write func(path string, data []byte, perm fs.FileMode) error
}

// keyFileData es el formato en disco.
type keyFileData struct {
	KID           string    `json:"kid"`
	Algorithm     string    `json:"algorithm"`
	PrivateKeyEnc string    `json:"private_key_enc,omitempty"`
	PublicKeyPEM  string    `json:"public_key_pem"`
	Status        KeyStatus `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	RotatedAt     int64     `json:"rotated_at,omitempty"`
	RetireAfter   int64     `json:"retire_after,omitempty"`
}

// NewFileSigningKeyStore crea el directorio si no existe. masterKey es obligatorio.
func NewFileSigningKeyStore(keysDir, masterKey string) (*FileSigningKeyStore, error) {
	box, err := keycrypto.New(masterKey)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(keysDir, 0o700); err != nil {
		return nil, fmt.Errorf("create keys directory: %w", err)
	}
	return &FileSigningKeyStore{
		keysDir: filepath.Clean(keysDir),
		box:     box,
		write:   atomicwrite.WriteFile,
	}, nil
}

func (s *FileSigningKeyStore) path(kid string) string {
	return filepath.Join(s.keysDir, kid+".json")
}

func (s *FileSigningKeyStore) ListSigningKeys(ctx context.Context) ([]SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadAll()
}

func (s *FileSigningKeyStore) InsertSigningKey(ctx context.Context, k *SigningKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path(k.KID)); err == nil {
		return ErrSigningKeyExists
	}
	if k.Status == KeyActive {
		all, err := s.loadAll()
		if err != nil {
			return err
		}
		for _, e := range all {
			if e.Status == KeyActive {
				return ErrMultipleActiveKeys
			}
		}
	}
	return s.save(k)
}

func (s *FileSigningKeyStore) RotateSigningKey(ctx context.Context, next *SigningKey, rotatedAt, retireAfter time.Time) (*SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path(next.KID)); err == nil {
		return nil, ErrSigningKeyExists
	}
	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	var (
		prev    *SigningKey
		demoted []SigningKey
	)
	for i := range all {
		if all[i].Status != KeyActive {
			continue
		}
		k := all[i]
		k.Status = KeyRetiring
		k.RotatedAt = rotatedAt
		k.RetireAfter = retireAfter
		if err := s.save(&k); err != nil {
			return nil, s.rollback(fmt.Errorf("demote %s: %w", k.KID, err), demoted)
		}
		demoted = append(demoted, all[i])
		prev = &k
	}

	nk := *next
	nk.Status = KeyActive
	if err := s.save(&nk); err != nil {
		return nil, s.rollback(fmt.Errorf("save new active key: %w", err), demoted)
	}
	return prev, nil
}

// rollback reescribe las claves demovidas con su estado original.
func (s *FileSigningKeyStore) rollback(cause error, originals []SigningKey) error {
	for i := range originals {
		if err := s.save(&originals[i]); err != nil {
			return fmt.Errorf("%w (rollback %s: %v)", cause, originals[i].KID, err)
		}
	}
	return cause
}

func (s *FileSigningKeyStore) RetireSigningKeys(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	var kids []string
	for i := range all {
		k := all[i]
		if k.Status != KeyRetiring || now.Before(k.RetireAfter) {
			continue
		}
		k.Status = KeyRetired
		k.PrivateKey = nil
		if err := s.save(&k); err != nil {
			return kids, fmt.Errorf("retire %s: %w", k.KID, err)
		}
		kids = append(kids, k.KID)
	}
	return kids, nil
}

func (s *FileSigningKeyStore) loadAll() ([]SigningKey, error) {
	entries, err := os.ReadDir(s.keysDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read keys dir: %w", err)
	}
	var out []SigningKey
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		k, err := s.load(filepath.Join(s.keysDir, name))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		out = append(out, *k)
	}
	sortKeys(out)
	return out, nil
}

func (s *FileSigningKeyStore) load(path string) (*SigningKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kf keyFileData
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("unmarshal key data: %w", err)
	}
	pub, err := ParsePublicKeyPEM([]byte(kf.PublicKeyPEM))
	if err != nil {
		return nil, err
	}
	k := &SigningKey{
		KID:       kf.KID,
		Alg:       kf.Algorithm,
		PublicKey: pub,
		Status:    kf.Status,
		CreatedAt: kf.CreatedAt,
	}
	if kf.RotatedAt > 0 {
		k.RotatedAt = time.Unix(kf.RotatedAt, 0).UTC()
	}
	if kf.RetireAfter > 0 {
		k.RetireAfter = time.Unix(kf.RetireAfter, 0).UTC()
	}
	if kf.PrivateKeyEnc != "" && kf.Status != KeyRetired {
		der, err := s.box.Open(kf.PrivateKeyEnc, kf.KID)
		if err != nil {
			return nil, fmt.Errorf("decrypt private key: %w", err)
		}
		if k.PrivateKey, err = ParsePrivateKeyDER(der); err != nil {
			return nil, err
		}
	}
	return k, nil
}

func (s *FileSigningKeyStore) save(k *SigningKey) error {
	pubPEM, err := MarshalPublicKeyPEM(k.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}
	kf := keyFileData{
		KID:          k.KID,
		Algorithm:    k.Alg,
		PublicKeyPEM: string(pubPEM),
		Status:       k.Status,
		CreatedAt:    k.CreatedAt,
	}
	if !k.RotatedAt.IsZero() {
		kf.RotatedAt = k.RotatedAt.Unix()
	}
	if !k.RetireAfter.IsZero() {
		kf.RetireAfter = k.RetireAfter.Unix()
	}
	if k.PrivateKey != nil && k.Status != KeyRetired {
		if kf.PrivateKeyEnc, err = s.box.Seal(MarshalPrivateKeyDER(k.PrivateKey), k.KID); err != nil {
			return fmt.Errorf("encrypt private key: %w", err)
		}
	}
	b, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	return s.write(s.path(k.KID), b, 0o600)
}
