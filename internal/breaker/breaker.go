// Package breaker implements the per-upstream circuit breaker. State
// lives in the shared coordination store so every gateway instance
// observes the same window of failures, and the HALF_OPEN probe is
// elected across instances with a single-flight token.
package breaker

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/observability"
	"github.com/xiaoxin/api-gateway/internal/store"
)

// State is the observed breaker state for a service key.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// stateGauge maps a State to its metrics gauge value.
func stateGauge(s State) float64 {
	switch s {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// probeTTL bounds how long a crashed probe winner can block the next
// election.
const probeTTL = 10 * time.Second

// probeRetryWait is how long a probe-lottery loser waits before
// re-reading the state.
const probeRetryWait = 100 * time.Millisecond

// Config holds the breaker tuning knobs.
type Config struct {
	FailureThreshold int
	Window           time.Duration
	OpenTimeout      time.Duration
	KeyExpire        time.Duration
}

// Breaker tracks upstream failures per service key and decides when
// to stop calling a service and when to probe it again.
type Breaker struct {
	store  store.Store
	cfg    Config
	logger *zap.Logger

	now func() time.Time
}

// New creates a distributed circuit breaker on the given store.
func New(s store.Store, cfg Config, logger *zap.Logger) *Breaker {
	return &Breaker{store: s, cfg: cfg, logger: logger, now: time.Now}
}

// SetClock overrides the breaker's time source. Test helper.
func (b *Breaker) SetClock(now func() time.Time) { b.now = now }

// ServiceKey derives the breaker isolation unit for an interface:
// the host of an absolute http(s) provider URL, otherwise a synthetic
// per-interface key.
func ServiceKey(providerURL string, interfaceID int64) string {
	u, err := url.Parse(providerURL)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return u.Host
	}
	return "interface:" + strconv.FormatInt(interfaceID, 10)
}

func stateKey(svc string) string    { return "cb:state:" + svc }
func openedAtKey(svc string) string { return "cb:opened_at:" + svc }
func failuresKey(svc string) string { return "cb:failures:" + svc }
func probeKey(svc string) string    { return "cb:probe:" + svc }

// State returns the observed state for the service key. The OPEN to
// HALF_OPEN transition is computed from the open timestamp, never
// written back. Any store error reads as CLOSED: an unreachable
// coordination store must not take upstreams offline.
func (b *Breaker) State(ctx context.Context, svc string) State {
	raw, err := b.store.Get(ctx, stateKey(svc))
	if err != nil {
		if err != store.ErrNotFound {
			b.logger.Error("breaker state read failed, assuming closed",
				zap.String("service", svc), zap.Error(err))
		}
		return b.observe(svc, StateClosed)
	}

	switch State(raw) {
	case StateHalfOpen:
		return b.observe(svc, StateHalfOpen)
	case StateOpen:
		openedAt, err := b.openedAt(ctx, svc)
		if err != nil {
			return b.observe(svc, StateClosed)
		}
		if b.now().UnixMilli()-openedAt >= b.cfg.OpenTimeout.Milliseconds() {
			return b.observe(svc, StateHalfOpen)
		}
		return b.observe(svc, StateOpen)
	default:
		return b.observe(svc, StateClosed)
	}
}

func (b *Breaker) observe(svc string, s State) State {
	observability.BreakerState.WithLabelValues(svc).Set(stateGauge(s))
	return s
}

func (b *Breaker) openedAt(ctx context.Context, svc string) (int64, error) {
	raw, err := b.store.Get(ctx, openedAtKey(svc))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// RecordFailure appends one failure to the service's window and trips
// the breaker to OPEN once the threshold is reached. Failures
// accumulated while CLOSED are retained; they are the window
// statistic.
func (b *Breaker) RecordFailure(ctx context.Context, svc string) {
	nowMS := b.now().UnixMilli()
	key := failuresKey(svc)

	if err := b.store.ZAdd(ctx, key, float64(nowMS), uuid.NewString()); err != nil {
		b.logger.Error("breaker failure record failed", zap.String("service", svc), zap.Error(err))
		return
	}
	windowStart := nowMS - b.cfg.Window.Milliseconds()
	_ = b.store.ZRemRangeByScore(ctx, key, 0, float64(windowStart-1))
	_ = b.store.Expire(ctx, key, b.cfg.KeyExpire)

	count, err := b.store.ZCount(ctx, key, float64(windowStart), float64(nowMS))
	if err != nil {
		b.logger.Error("breaker failure count failed", zap.String("service", svc), zap.Error(err))
		return
	}
	if count < int64(b.cfg.FailureThreshold) {
		return
	}

	if err := b.store.Set(ctx, stateKey(svc), string(StateOpen), b.cfg.KeyExpire); err != nil {
		b.logger.Error("breaker open transition failed", zap.String("service", svc), zap.Error(err))
		return
	}
	_ = b.store.Set(ctx, openedAtKey(svc), strconv.FormatInt(nowMS, 10), b.cfg.KeyExpire)
	b.observe(svc, StateOpen)
	b.logger.Warn("circuit breaker opened",
		zap.String("service", svc), zap.Int64("failures_in_window", count))
}

// RecordSuccess closes the breaker after a successful HALF_OPEN
// probe. Successes in any other state are not tracked.
func (b *Breaker) RecordSuccess(ctx context.Context, svc string) {
	if b.State(ctx, svc) != StateHalfOpen {
		return
	}
	if err := b.store.Del(ctx, stateKey(svc), openedAtKey(svc)); err != nil {
		b.logger.Error("breaker close transition failed", zap.String("service", svc), zap.Error(err))
		return
	}
	b.observe(svc, StateClosed)
	b.logger.Info("circuit breaker closed after successful probe", zap.String("service", svc))
}

// TryAcquireProbe elects this caller as the single HALF_OPEN probe.
// The token TTL guarantees liveness if the winner crashes mid-probe.
func (b *Breaker) TryAcquireProbe(ctx context.Context, svc string) bool {
	won, err := b.store.SetNX(ctx, probeKey(svc), uuid.NewString(), probeTTL)
	if err != nil {
		b.logger.Error("probe election failed, treating as lost",
			zap.String("service", svc), zap.Error(err))
		return false
	}
	return won
}

// ReleaseProbe frees the probe token after the winner finished.
func (b *Breaker) ReleaseProbe(ctx context.Context, svc string) {
	_ = b.store.Del(ctx, probeKey(svc))
}

// Decision tells the proxy what to do with the current request.
type Decision int

const (
	// Proceed calls the upstream normally; failures are recorded.
	Proceed Decision = iota
	// ProceedProbe calls the upstream as the elected HALF_OPEN probe.
	// The caller must RecordSuccess or Reopen, then ReleaseProbe.
	ProceedProbe
	// Reject returns the circuit-open fallback without an upstream
	// call.
	Reject
)

// Acquire runs the admission protocol for one request. In HALF_OPEN
// it holds the probe lottery: the winner probes, losers wait briefly
// and re-read the state in case the winner already recovered the
// service.
func (b *Breaker) Acquire(ctx context.Context, svc string) Decision {
	switch b.State(ctx, svc) {
	case StateClosed:
		return Proceed
	case StateOpen:
		return Reject
	}

	if b.TryAcquireProbe(ctx, svc) {
		return ProceedProbe
	}

	select {
	case <-time.After(probeRetryWait):
	case <-ctx.Done():
		return Reject
	}
	if b.State(ctx, svc) == StateClosed {
		return Proceed
	}
	return Reject
}

// Reopen re-opens the breaker after a failed probe.
func (b *Breaker) Reopen(ctx context.Context, svc string) {
	nowMS := b.now().UnixMilli()
	if err := b.store.Set(ctx, stateKey(svc), string(StateOpen), b.cfg.KeyExpire); err != nil {
		b.logger.Error("breaker reopen failed", zap.String("service", svc), zap.Error(err))
		return
	}
	_ = b.store.Set(ctx, openedAtKey(svc), strconv.FormatInt(nowMS, 10), b.cfg.KeyExpire)
	b.observe(svc, StateOpen)
	b.logger.Warn("circuit breaker reopened after failed probe", zap.String("service", svc))
}

// ConfigFromMinutes builds a Config from the minute-granularity
// configuration surface.
func ConfigFromMinutes(threshold, windowMin, openTimeoutMin, keyExpireMin int) Config {
	return Config{
		FailureThreshold: threshold,
		Window:           time.Duration(windowMin) * time.Minute,
		OpenTimeout:      time.Duration(openTimeoutMin) * time.Minute,
		KeyExpire:        time.Duration(keyExpireMin) * time.Minute,
	}
}

// String implements fmt.Stringer for log fields.
func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case ProceedProbe:
		return "probe"
	default:
		return "reject"
	}
}
