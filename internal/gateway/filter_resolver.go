package gateway

import (
	"context"

	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/domain"
)

// InterfaceResolverFunc looks up the interface record for a route.
type InterfaceResolverFunc func(ctx context.Context, platformPath, method string) (*domain.InterfaceRecord, error)

// InterfaceResolver matches the request route against the published
// interfaces. Unknown, disabled, or misconfigured interfaces all map
// to the same opaque 403.
type InterfaceResolver struct {
	resolve InterfaceResolverFunc
	logger  *zap.Logger
}

// NewInterfaceResolver creates the route lookup filter.
func NewInterfaceResolver(resolve InterfaceResolverFunc, logger *zap.Logger) *InterfaceResolver {
	return &InterfaceResolver{resolve: resolve, logger: logger}
}

func (f *InterfaceResolver) Name() string { return "interface_resolver" }

func (f *InterfaceResolver) Run(ctx context.Context, ex *Exchange) error {
	rec, err := f.resolve(ctx, ex.PlatformPath, ex.Method)
	if err != nil {
		// Registry outages fail closed.
		f.logger.Error("interface lookup failed",
			zap.String("request_id", ex.RequestID), zap.Error(err))
		ex.Reject(RejectForbidden())
		return nil
	}
	if !rec.Enabled() || rec.ProviderURL == "" {
		ex.Reject(RejectForbidden())
		return nil
	}

	ex.Interface = rec
	return nil
}
