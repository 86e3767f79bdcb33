// Package postgres implements the registry port on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xiaoxin/api-gateway/internal/authcfg"
	"github.com/xiaoxin/api-gateway/internal/config"
	"github.com/xiaoxin/api-gateway/internal/domain"
	"github.com/xiaoxin/api-gateway/internal/registry"
)

// Registry is the pgx-backed registry. Consumer secrets stored as
// envelopes are decrypted on read; auth configs stay encrypted until
// the proxy needs them.
type Registry struct {
	pool         *pgxpool.Pool
	codec        *authcfg.Codec
	queryTimeout time.Duration
}

var _ registry.Registry = (*Registry)(nil)

// NewPool creates a pgx connection pool from the database config.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// New creates a Registry on an existing pool. codec may be nil when
// no master key is configured; plaintext secrets then pass through.
func New(pool *pgxpool.Pool, codec *authcfg.Codec, queryTimeout time.Duration) *Registry {
	if queryTimeout == 0 {
		queryTimeout = 5 * time.Second
	}
	return &Registry{pool: pool, codec: codec, queryTimeout: queryTimeout}
}

func (r *Registry) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.queryTimeout)
}

// GetInvokeUser resolves a consumer by access key. Unknown keys
// return (nil, nil).
func (r *Registry) GetInvokeUser(ctx context.Context, accessKey string) (*domain.Consumer, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	var c domain.Consumer
	var secret string
	err := r.pool.QueryRow(ctx,
		`SELECT id, role, access_key, secret_key FROM consumers WHERE access_key = $1`,
		accessKey,
	).Scan(&c.ID, &c.Role, &c.AccessKey, &secret)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invoke user: %w", err)
	}

	if authcfg.IsEnvelope(secret) {
		plain, err := r.codec.Decrypt(secret, []byte(c.AccessKey))
		if err != nil {
			return nil, fmt.Errorf("decrypt consumer secret: %w", err)
		}
		secret = plain
	}
	c.SecretKey = domain.Secret(secret)
	return &c, nil
}

// GetInterfaceInfo resolves an enabled interface by route. Unknown
// routes and routes whose records are all disabled return (nil, nil);
// the resolver filter maps both to a 403.
func (r *Registry) GetInterfaceInfo(ctx context.Context, platformPath, method string) (*domain.InterfaceRecord, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	var rec domain.InterfaceRecord
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, platform_path, method, provider_url, status,
		        auth_type, auth_config, timeout_ms, rate_limit, owner_id
		   FROM interfaces
		  WHERE platform_path = $1 AND method = $2 AND status = 1`,
		platformPath, method,
	).Scan(&rec.ID, &rec.Name, &rec.PlatformPath, &rec.Method, &rec.ProviderURL,
		&rec.Status, &rec.AuthType, &rec.AuthConfig, &rec.TimeoutMS, &rec.RateLimit, &rec.OwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get interface info: %w", err)
	}
	return &rec, nil
}

// PreConsume decrements the remaining quota iff it is positive. The
// single conditional UPDATE is the atomicity boundary; concurrent
// callers race on the row and exactly remaining of them win.
func (r *Registry) PreConsume(ctx context.Context, interfaceID, consumerID int64) (bool, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		`UPDATE user_interface_quotas
		    SET remaining = remaining - 1
		  WHERE consumer_id = $1 AND interface_id = $2 AND remaining > 0`,
		consumerID, interfaceID)
	if err != nil {
		return false, fmt.Errorf("pre-consume quota: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// InvokeCount increments total_used after a successful proxy call.
func (r *Registry) InvokeCount(ctx context.Context, interfaceID, consumerID int64) (bool, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		`UPDATE user_interface_quotas
		    SET total_used = total_used + 1
		  WHERE consumer_id = $1 AND interface_id = $2`,
		consumerID, interfaceID)
	if err != nil {
		return false, fmt.Errorf("invoke count: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
