// Package replay rejects reuse of a (accessKey, nonce) pair within
// the signature validity window.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaoxin/api-gateway/internal/store"
)

// Guard marks nonces as used in the shared store. A nonce marker
// lives exactly as long as the signature it protects stays valid;
// after that the timestamp check rejects the request anyway.
type Guard struct {
	store store.Store
	ttl   time.Duration
}

// NewGuard creates a replay guard with the given marker lifetime.
func NewGuard(s store.Store, ttl time.Duration) *Guard {
	return &Guard{store: s, ttl: ttl}
}

// Check atomically claims the nonce for the access key. It returns
// true when this request is the first use. A store failure is
// reported through err with fresh=true: the caller decides to admit
// (availability over strictness) and logs the degradation.
func (g *Guard) Check(ctx context.Context, accessKey, nonce string) (fresh bool, err error) {
	key := fmt.Sprintf("replay:%s:%s", accessKey, nonce)
	created, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return true, err
	}
	return created, nil
}
