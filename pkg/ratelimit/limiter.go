package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrBlocked is returned while the provider rate limit window is open.
var ErrBlocked = errors.New("upstream rate limited")

// Prometheus metrics for upstream rate limiting.
var (
	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skai_upstream_rate_limit_waits_total",
		Help: "Total number of upstream calls delayed by the local rate limit",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skai_upstream_rate_limit_blocks_total",
		Help: "Total number of upstream calls refused while the provider rate limit window is open",
	})

	rateLimitBlocked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skai_upstream_rate_limit_blocked",
		Help: "1 while upstream calls are blocked after provider rate limiting",
	})
)

// Limiter gates upstream calls.
type Limiter struct {
	limiter *rate.Limiter
	rps     float64
	logger  zerolog.Logger
	now     func() time.Time

	mu           sync.Mutex
	blockedUntil time.Time
}

// NewLimiter creates a limiter allowing rps calls per second with the given
// burst. rps <= 0 disables the token bucket.
func NewLimiter(rps float64, burst int, logger zerolog.Logger) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
		rps = 0
	}
	if burst < 1 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		rps:     rps,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the time source of the block window (for testing).
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Wait blocks until a call may proceed. It fails fast with ErrBlocked while
// the provider rate limit window is open.
func (l *Limiter) Wait(ctx context.Context) error {
	state := l.State()
	if state.Blocked(l.now()) {
		rateLimitBlocksTotal.Inc()
		l.logger.Warn().
			Dur("wait_duration", state.TimeUntilReset(l.now())).
			Msg("Upstream rate limited - refusing call")
		return fmt.Errorf("%w for %s", ErrBlocked, state.TimeUntilReset(l.now()).Round(time.Second))
	}

	if !l.limiter.Allow() {
		rateLimitWaitsTotal.Inc()
		l.logger.Debug().Float64("rps", l.rps).Msg("Local rate limit reached - throttling call")
		if err := l.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return nil
}

// Block refuses calls for d, or DefaultBlockDuration if d <= 0. A shorter
// block never shortens an existing one.
func (l *Limiter) Block(d time.Duration) {
	if d <= 0 {
		d = DefaultBlockDuration
	}
	until := l.now().Add(d)

	l.mu.Lock()
	if until.After(l.blockedUntil) {
		l.blockedUntil = until
	}
	until = l.blockedUntil
	l.mu.Unlock()

	rateLimitBlocked.Set(1)
	l.logger.Error().Time("reset_at", until).Msg("Upstream rate limit CRITICAL - calls will be refused")
}

// State returns a snapshot of the limiter.
func (l *Limiter) State() State {
	l.mu.Lock()
	blockedUntil := l.blockedUntil
	l.mu.Unlock()

	s := State{
		RequestsPerSecond: l.rps,
		Burst:             l.limiter.Burst(),
		BlockedUntil:      blockedUntil,
	}
	if s.Unlimited() {
		s.Tokens = float64(s.Burst)
	} else {
		s.Tokens = l.limiter.Tokens()
	}
	if !s.Blocked(l.now()) {
		rateLimitBlocked.Set(0)
	}
	return s
}
