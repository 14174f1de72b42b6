// Package proxy implements the astronomy events HTTP endpoint that sits
// between requesting clients and the AI provider. It keeps the provider key
// server-side and holds the ephemeral cache tier.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/skai/pkg/cache"
	"github.com/Sternrassler/skai/pkg/provider"
	"github.com/Sternrassler/skai/pkg/query"
	"github.com/Sternrassler/skai/pkg/ratelimit"
)

const (
	// DefaultTimeout bounds one upstream generation.
	DefaultTimeout = 60 * time.Second

	// maxRequestBody bounds the accepted request body.
	maxRequestBody = 64 << 10
)

// Error messages returned in the "error" field.
const (
	MsgMethodNotAllowed = "Method not allowed"
	MsgBodyRequired     = "Request body is required"
	MsgInvalidJSON      = "Invalid JSON in request body"
	MsgMissingParams    = "Missing required parameters: country, month, year"
	MsgInvalidYear      = "Year must be a 4-digit number"
	MsgFetchFailed      = "Failed to fetch astronomy events"
)

// Config holds the handler configuration.
type Config struct {
	// Generator produces events on cache misses (required)
	Generator provider.Generator

	// Cache defaults to a NewEphemeralCache()
	Cache *cache.EphemeralCache

	// Limiter gates upstream calls; nil disables limiting
	Limiter *ratelimit.Limiter

	// Timeout defaults to DefaultTimeout
	Timeout time.Duration

	// Logger defaults to a "proxy" component logger
	Logger *zerolog.Logger
}

// Handler serves POST requests for astronomy events.
type Handler struct {
	generator provider.Generator
	cache     *cache.EphemeralCache
	limiter   *ratelimit.Limiter
	timeout   time.Duration
	logger    zerolog.Logger
	group     singleflight.Group
}

// New creates a handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewEphemeralCache()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := log.With().Str("component", "proxy").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Handler{
		generator: cfg.Generator,
		cache:     cfg.Cache,
		limiter:   cfg.Limiter,
		timeout:   cfg.Timeout,
		logger:    logger,
	}, nil
}

// Cache returns the ephemeral cache.
func (h *Handler) Cache() *cache.EphemeralCache {
	return h.cache
}

func setCORS(header http.Header) {
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Headers", "Content-Type")
	header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	cacheStatus := ""
	defer func() {
		code := strconv.Itoa(rec.status)
		requestsTotal.WithLabelValues(code).Inc()
		requestDuration.WithLabelValues(code).Observe(time.Since(start).Seconds())
		h.logger.Debug().
			Str("method", r.Method).
			Int("status", rec.status).
			Str("cache", cacheStatus).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	}()

	setCORS(rec.Header())

	// Step 1: Method
	if r.Method == http.MethodOptions {
		rec.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(rec, http.StatusMethodNotAllowed, MsgMethodNotAllowed, "")
		return
	}

	// Step 2: Parse and validate
	q, status, msg := parseRequest(r)
	if status != 0 {
		writeError(rec, status, msg, "")
		return
	}
	key := cache.KeyFor(q)

	// Step 3: Ephemeral cache
	if entry, ok := h.cache.Lookup(key); ok {
		cacheStatus = "HIT"
		writeEvents(rec, entry.Data, cacheStatus)
		return
	}

	// Step 4: Upstream, collapsed per key
	v, err, shared := h.group.Do(key.String(), func() (any, error) {
		return h.generate(r.Context(), key, q)
	})
	if shared {
		upstreamSharedTotal.Inc()
	}
	if err != nil {
		h.logger.Error().Err(err).Str("query", q.String()).Msg("Error fetching astronomy events")
		writeError(rec, http.StatusInternalServerError, MsgFetchFailed, err.Error())
		return
	}

	res := v.(generated)
	cacheStatus = "MISS"
	if res.cached {
		cacheStatus = "HIT"
	}
	writeEvents(rec, res.data, cacheStatus)
}

// generated is the shared result of one singleflight call.
type generated struct {
	data   json.RawMessage
	cached bool
}

// generate runs one upstream call. It is detached from the caller so a
// disconnecting client does not fail the other requests sharing the call.
// An entry stored since the caller's lookup is returned with cached set.
func (h *Handler) generate(parent context.Context, key cache.CacheKey, q query.Query) (generated, error) {
	if entry, ok := h.cache.Lookup(key); ok {
		return generated{data: entry.Data, cached: true}, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), h.timeout)
	defer cancel()

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			upstreamCallsTotal.WithLabelValues("rate_limited").Inc()
			return generated{}, err
		}
	}

	start := time.Now()
	raw, err := h.generator.Generate(ctx, q)
	upstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var apiErr *provider.APIError
		if h.limiter != nil && errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			h.limiter.Block(0)
		}
		upstreamCallsTotal.WithLabelValues("error").Inc()
		return generated{}, err
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		upstreamCallsTotal.WithLabelValues("invalid").Inc()
		return generated{}, fmt.Errorf("%w: %v", provider.ErrInvalidJSON, err)
	}
	data := json.RawMessage(buf.Bytes())

	h.cache.Store(key, data)
	upstreamCallsTotal.WithLabelValues("ok").Inc()
	h.logger.Info().
		Str("query", q.String()).
		Dur("duration", time.Since(start)).
		Int("cache_entries", h.cache.Len()).
		Msg("Generated and cached astronomy events")

	return generated{data: data}, nil
}

// parseRequest validates the body. A non-zero status means the request is
// rejected with msg.
func parseRequest(r *http.Request) (query.Query, int, string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		return query.Query{}, http.StatusBadRequest, MsgBodyRequired
	}
	if !gjson.ValidBytes(body) {
		return query.Query{}, http.StatusBadRequest, MsgInvalidJSON
	}

	fields := gjson.GetManyBytes(body, "country", "month", "year")
	country, month, year := field(fields[0]), field(fields[1]), field(fields[2])
	if country == "" || month == "" || year == "" {
		return query.Query{}, http.StatusBadRequest, MsgMissingParams
	}

	q, err := query.Normalize(country, month, year)
	if err != nil {
		var ve *query.ValidationError
		if errors.As(err, &ve) && ve.Reason == query.ReasonYearFormat {
			return query.Query{}, http.StatusBadRequest, MsgInvalidYear
		}
		return query.Query{}, http.StatusBadRequest, MsgMissingParams
	}
	return q, 0, ""
}

// field converts a JSON value to its parameter text. Strings and numbers are
// accepted; null, false, zero and missing values count as absent.
func field(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		if v.Num == 0 {
			return ""
		}
		return v.Raw
	case gjson.True:
		return "true"
	case gjson.JSON:
		return v.Raw
	default:
		return ""
	}
}

func writeEvents(w http.ResponseWriter, data json.RawMessage, cacheStatus string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	body := map[string]string{"error": msg}
	if detail != "" {
		body["message"] = detail
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
