// Package registry defines the port to the admin backend: consumer
// lookup, interface lookup, and quota mutation. The postgres
// subpackage is the concrete implementation; Resilient wraps any
// implementation with a circuit breaker and bounded retries.
package registry

import (
	"context"

	"github.com/xiaoxin/api-gateway/internal/domain"
)

// Registry is the RPC surface the pipeline consumes. Lookups return
// (nil, nil) for unknown records; the filters translate that into a
// 403 without exposing which lookup failed.
type Registry interface {
	// GetInvokeUser resolves a consumer by access key. The returned
	// secret is plaintext.
	GetInvokeUser(ctx context.Context, accessKey string) (*domain.Consumer, error)

	// GetInterfaceInfo resolves an interface by incoming path and
	// HTTP method.
	GetInterfaceInfo(ctx context.Context, platformPath, method string) (*domain.InterfaceRecord, error)

	// PreConsume atomically decrements the remaining quota iff it is
	// positive, reporting whether a unit was consumed.
	PreConsume(ctx context.Context, interfaceID, consumerID int64) (bool, error)

	// InvokeCount atomically increments total_used after a successful
	// proxy call. Never rolls PreConsume back.
	InvokeCount(ctx context.Context, interfaceID, consumerID int64) (bool, error)
}
