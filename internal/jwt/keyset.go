package jwt

import (
	"crypto/rsa"
	"sort"
)

// PublicKey es una entrada del key set: lo único que un verificador necesita.
type PublicKey struct {
	KID string
	Alg string
	Key *rsa.PublicKey
}

// KeySet es un conjunto inmutable de públicas indexado por kid.
type KeySet struct {
	keys map[string]PublicKey
}

func NewKeySet(keys ...PublicKey) KeySet {
	m := make(map[string]PublicKey, len(keys))
	for _, k := range keys {
		if k.KID == "" || k.Key == nil {
			continue
		}
		m[k.KID] = k
	}
	return KeySet{keys: m}
}

func (s KeySet) Lookup(kid string) (PublicKey, bool) {
	k, ok := s.keys[kid]
	return k, ok
}

func (s KeySet) Len() int { return len(s.keys) }

// KIDs devuelve los kids en orden descendente (más nuevo primero).
func (s KeySet) KIDs() []string {
	out := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		out = append(out, kid)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}
