package jwt

import (
	"context"
	"time"
)

// Resolver verifica un token crudo contra algún key set (local o remoto).
type Resolver interface {
	Resolve(ctx context.Context, raw string, now time.Time, expectedIssuer string) (Claims, error)
}

// LocalResolver verifica contra el key set del KeyStore en proceso. Lo usa
// el auth service para proteger sus propios endpoints de admin.
type LocalResolver struct {
	Keys     KeySource
	Verifier *Verifier
}

func NewLocalResolver(keys KeySource, v *Verifier) *LocalResolver {
	if v == nil {
		v = NewVerifier(0)
	}
	return &LocalResolver{Keys: keys, Verifier: v}
}

func (l *LocalResolver) Resolve(_ context.Context, raw string, now time.Time, expectedIssuer string) (Claims, error) {
	return l.Verifier.Verify(raw, l.Keys.PublicKeySet(), now, expectedIssuer)
}
