// Package client provides the request dispatcher for astronomy events. It
// consults the durable cache first and only then reaches the proxy service
// or the AI provider.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/skai/pkg/cache"
	"github.com/Sternrassler/skai/pkg/query"
)

// Prometheus metrics for dispatcher operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skai_requests_total",
		Help: "Total astronomy event requests by result source",
	}, []string{"source"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skai_fetch_duration_seconds",
		Help:    "Upstream fetch duration in seconds by source",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"source"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skai_fetch_errors_total",
		Help: "Total fetch errors by class",
	}, []string{"class"})

	cancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skai_requests_cancelled_total",
		Help: "Total requests abandoned by the caller",
	})
)

// Source tells where a response came from.
type Source string

const (
	// SourceDurableCache is a fresh hit in the local durable cache.
	SourceDurableCache Source = "durable-cache"

	// SourceServerCacheHit is a proxy response served from its ephemeral cache.
	SourceServerCacheHit Source = "server-cache-hit"

	// SourceServerCacheMiss is a proxy response freshly generated upstream.
	SourceServerCacheMiss Source = "server-cache-miss"

	// SourceDirect is a response generated by calling the AI provider directly.
	SourceDirect Source = "direct"
)

// Response is the result of GetAstronomyEvents.
type Response struct {
	// Data is the events payload, an array or an {"events": [...]} object.
	Data json.RawMessage

	// FromCache is true for durable hits and proxy cache hits.
	FromCache bool

	// CacheAge is the age of a durable hit, zero otherwise.
	CacheAge time.Duration

	Source Source
}

// FetchResult is what a Fetcher returns on success.
type FetchResult struct {
	Data           json.RawMessage
	ServerCacheHit bool
	Source         Source
}

// Fetcher performs the upstream call for a cache miss. Implementations must
// honor ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, q query.Query) (*FetchResult, error)
}

// Config holds the dispatcher configuration.
type Config struct {
	// Store is the durable cache (required)
	Store *cache.DurableStore

	// Fetcher is consulted on cache misses (required)
	Fetcher Fetcher

	// Logger defaults to a "skai-client" component logger
	Logger *zerolog.Logger

	// Now defaults to time.Now
	Now func() time.Time
}

// Client is the request dispatcher.
type Client struct {
	store   *cache.DurableStore
	fetcher Fetcher
	now     func() time.Time
	logger  zerolog.Logger
}

// New creates a new dispatcher.
func New(cfg Config) (*Client, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("durable store is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}

	logger := log.With().Str("component", "skai-client").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		store:   cfg.Store,
		fetcher: cfg.Fetcher,
		now:     now,
		logger:  logger,
	}, nil
}

// GetAstronomyEvents returns the events for (country, month, year), from the
// durable cache when a fresh entry exists, otherwise from the fetcher.
//
// Errors match ErrValidation, ErrFetchFailed or ErrCancelled. A cancelled
// request never writes the cache.
func (c *Client) GetAstronomyEvents(ctx context.Context, country, month, year string) (*Response, error) {
	// Step 1: Validate
	q, err := query.Normalize(country, month, year)
	if err != nil {
		return nil, err
	}
	key := cache.KeyFor(q)

	// Step 2: Check durable cache
	if entry, ok := c.store.Get(ctx, key); ok {
		requestsTotal.WithLabelValues(string(SourceDurableCache)).Inc()
		return &Response{
			Data:      entry.Data,
			FromCache: true,
			CacheAge:  entry.Age(c.now()),
			Source:    SourceDurableCache,
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, c.cancelled(q, err)
	}

	// Step 3: Fetch
	c.logger.Debug().Str("query", q.String()).Msg("Cache miss, fetching")
	start := time.Now()
	result, err := c.fetcher.Fetch(ctx, q)

	// Step 4: Cancellation wins over any other outcome
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, c.cancelled(q, ctxErr)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, c.cancelled(q, err)
		}
		return nil, c.fetchFailed(q, err)
	}
	fetchDuration.WithLabelValues(string(result.Source)).Observe(time.Since(start).Seconds())

	// Step 5: Body must be JSON
	if !json.Valid(result.Data) {
		return nil, c.fetchFailed(q, &FetchError{
			Class:   ErrorClassDecode,
			Message: "response is not valid JSON",
		})
	}

	// Step 6: Write-through, unless cancelled meanwhile
	if err := ctx.Err(); err != nil {
		return nil, c.cancelled(q, err)
	}
	c.store.Put(ctx, key, result.Data)

	requestsTotal.WithLabelValues(string(result.Source)).Inc()
	c.logger.Debug().
		Str("query", q.String()).
		Str("source", string(result.Source)).
		Dur("duration", time.Since(start)).
		Msg("Fetched astronomy events")

	return &Response{
		Data:      result.Data,
		FromCache: result.ServerCacheHit,
		Source:    result.Source,
	}, nil
}

func (c *Client) cancelled(q query.Query, cause error) error {
	cancelledTotal.Inc()
	c.logger.Debug().Str("query", q.String()).Msg("Request cancelled")
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

func (c *Client) fetchFailed(q query.Query, err error) error {
	var fe *FetchError
	if !errors.As(err, &fe) {
		fe = &FetchError{Class: ErrorClassNetwork, Err: err}
	}
	fetchErrorsTotal.WithLabelValues(string(fe.Class)).Inc()
	c.logger.Warn().
		Err(fe).
		Str("query", q.String()).
		Str("error_class", string(fe.Class)).
		Msg("Fetch failed")
	return fe
}
