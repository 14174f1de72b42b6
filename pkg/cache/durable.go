package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrInvalidEntry indicates the cache entry is invalid or corrupted
var ErrInvalidEntry = errors.New("invalid cache entry")

// DurableStore persists AI results across runs. It never surfaces storage
// faults to callers: corrupt or expired records read as absent, failed writes
// simply mean nothing was cached.
type DurableStore struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// DurableOption configures a DurableStore.
type DurableOption func(*DurableStore)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) DurableOption {
	return func(s *DurableStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) DurableOption {
	return func(s *DurableStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) DurableOption {
	return func(s *DurableStore) {
		s.logger = logger
	}
}

// NewDurableStore creates a durable store on top of backend.
func NewDurableStore(backend Backend, opts ...DurableOption) *DurableStore {
	if backend == nil {
		panic("cache backend cannot be nil")
	}
	s := &DurableStore{
		backend: backend,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  log.With().Str("component", "durable-cache").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the freshness window.
func (s *DurableStore) TTL() time.Duration {
	return s.ttl
}

// Get returns the fresh entry for key, or false if there is none.
// Corrupted and expired records are removed.
func (s *DurableStore) Get(ctx context.Context, key CacheKey) (*CacheEntry, bool) {
	cacheKey := key.DurableKey()

	data, err := s.backend.Get(ctx, cacheKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			CacheErrors.WithLabelValues(TierDurable, "get").Inc()
			s.logger.Warn().Err(err).Str("key", cacheKey).Msg("Error reading from cache")
		}
		CacheMisses.WithLabelValues(TierDurable).Inc()
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues(TierDurable, "corrupt").Inc()
		s.logger.Warn().Err(err).Str("key", cacheKey).Msg("Discarding corrupted cache record")
		s.remove(ctx, cacheKey)
		CacheMisses.WithLabelValues(TierDurable).Inc()
		return nil, false
	}

	if entry.IsExpired(s.now(), s.ttl) {
		CacheExpirations.WithLabelValues(TierDurable).Inc()
		s.logger.Debug().
			Str("key", cacheKey).
			Time("cached_at", entry.Timestamp).
			Msg("Cache entry expired")
		s.remove(ctx, cacheKey)
		CacheMisses.WithLabelValues(TierDurable).Inc()
		return nil, false
	}

	CacheHits.WithLabelValues(TierDurable).Inc()
	s.logger.Debug().
		Str("key", cacheKey).
		Dur("age", entry.Age(s.now())).
		Msg("Cache hit")

	return &entry, true
}

// Put stores data under key with the current time, replacing any existing
// record.
func (s *DurableStore) Put(ctx context.Context, key CacheKey, data json.RawMessage) {
	cacheKey := key.DurableKey()

	raw, err := json.Marshal(CacheEntry{Data: data, Timestamp: s.now()})
	if err != nil {
		CacheErrors.WithLabelValues(TierDurable, "set").Inc()
		s.logger.Error().Err(fmt.Errorf("marshal cache entry: %w", err)).Str("key", cacheKey).Msg("Error saving to cache")
		return
	}

	if err := s.backend.Set(ctx, cacheKey, raw); err != nil {
		CacheErrors.WithLabelValues(TierDurable, "set").Inc()
		s.logger.Error().Err(err).Str("key", cacheKey).Msg("Error saving to cache")
		return
	}

	s.logger.Debug().Str("key", cacheKey).Int("bytes", len(raw)).Msg("Cached response")
}

// Delete removes the entry for key.
func (s *DurableStore) Delete(ctx context.Context, key CacheKey) {
	s.remove(ctx, key.DurableKey())
}

// Clear removes every astronomy events record.
func (s *DurableStore) Clear(ctx context.Context) {
	if err := s.backend.DeletePrefix(ctx, DurableKeyPrefix); err != nil {
		CacheErrors.WithLabelValues(TierDurable, "clear").Inc()
		s.logger.Error().Err(err).Msg("Error clearing cache")
		return
	}
	s.logger.Info().Msg("Cache cleared")
}

func (s *DurableStore) remove(ctx context.Context, cacheKey string) {
	if err := s.backend.Delete(ctx, cacheKey); err != nil {
		CacheErrors.WithLabelValues(TierDurable, "delete").Inc()
		s.logger.Warn().Err(err).Str("key", cacheKey).Msg("Error removing cache record")
	}
}
