package pg

import (
	"fmt"
	"time"

	"github.com/dropDatabas3/jwkgate/internal/jwt"
	"github.com/dropDatabas3/jwkgate/internal/security/keycrypto"
)

// keyRow es la fila de signing_keys.
type keyRow struct {
	KID           string
	Alg           string
	PublicKeyPEM  string
	PrivateKeyEnc *string
	Status        string
	CreatedAt     time.Time
	RotatedAt     *time.Time
	RetireAfter   *time.Time
}

func fromKey(k *jwt.SigningKey, box *keycrypto.Box) (keyRow, error) {
	pub, err := jwt.MarshalPublicKeyPEM(k.PublicKey)
	if err != nil {
		return keyRow{}, fmt.Errorf("marshal public key: %w", err)
	}
	r := keyRow{
		KID:          k.KID,
		Alg:          k.Alg,
		PublicKeyPEM: string(pub),
		Status:       string(k.Status),
		CreatedAt:    k.CreatedAt.UTC(),
	}
	if r.Alg == "" {
		r.Alg = jwt.AlgRS256
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if !k.RotatedAt.IsZero() {
		t := k.RotatedAt.UTC()
		r.RotatedAt = &t
	}
	if !k.RetireAfter.IsZero() {
		t := k.RetireAfter.UTC()
		r.RetireAfter = &t
	}
	if k.PrivateKey != nil && k.Status != jwt.KeyRetired {
		enc, err := box.Seal(jwt.MarshalPrivateKeyDER(k.PrivateKey), k.KID)
		if err != nil {
			return keyRow{}, fmt.Errorf("encrypt private key: %w", err)
		}
		r.PrivateKeyEnc = &enc
	}
	return r, nil
}

func (r keyRow) toKey(box *keycrypto.Box) (*jwt.SigningKey, error) {
	pub, err := jwt.ParsePublicKeyPEM([]byte(r.PublicKeyPEM))
	if err != nil {
		return nil, err
	}
	k := &jwt.SigningKey{
		KID:       r.KID,
		Alg:       r.Alg,
		PublicKey: pub,
		Status:    jwt.KeyStatus(r.Status),
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.RotatedAt != nil {
		k.RotatedAt = r.RotatedAt.UTC()
	}
	if r.RetireAfter != nil {
		k.RetireAfter = r.RetireAfter.UTC()
	}
	if r.PrivateKeyEnc != nil && k.Status != jwt.KeyRetired {
		der, err := box.Open(*r.PrivateKeyEnc, r.KID)
		if err != nil {
			return nil, fmt.Errorf("decrypt private key: %w", err)
		}
		if k.PrivateKey, err = jwt.ParsePrivateKeyDER(der); err != nil {
			return nil, err
		}
	}
	return k, nil
}
