// Command skai-proxy serves the astronomy events endpoint. It keeps the AI
// provider key server-side and holds the ephemeral cache tier.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/skai/internal/config"
	"github.com/Sternrassler/skai/pkg/cache"
	"github.com/Sternrassler/skai/pkg/logging"
	"github.com/Sternrassler/skai/pkg/metrics"
	"github.com/Sternrassler/skai/pkg/provider"
	"github.com/Sternrassler/skai/pkg/proxy"
	"github.com/Sternrassler/skai/pkg/ratelimit"
)

// Routes served by the proxy. The second events path keeps existing
// browser clients working.
const (
	eventsPath       = "/api/astronomy-events"
	legacyEventsPath = "/.netlify/functions/get-astronomy-events"
)

func main() {
	cfg, err := config.LoadProxy()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.Setup(logging.Config{
		Level:   level,
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "skai-proxy",
	})

	generator, err := provider.NewOpenAI(cfg.ProviderConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create AI provider")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, generator); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg config.ProxyConfig, generator provider.Generator) error {
	srv, err := newServer(cfg, generator)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Float64("upstream_rps", cfg.UpstreamRPS).
			Int("cache_capacity", cfg.CacheCapacity).
			Msg("Starting skai proxy")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.UpstreamTimeout+5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newServer wires the handler stack.
func newServer(cfg config.ProxyConfig, generator provider.Generator) (*http.Server, error) {
	logger := logging.NewLogger("proxy")
	limiter := ratelimit.NewLimiter(cfg.UpstreamRPS, cfg.UpstreamBurst, logging.NewLogger("ratelimit"))

	handler, err := proxy.New(proxy.Config{
		Generator: generator,
		Cache: cache.NewEphemeralCache(
			cache.WithCapacity(cfg.CacheCapacity),
			cache.WithEphemeralTTL(cfg.CacheTTL),
		),
		Limiter: limiter,
		Timeout: cfg.UpstreamTimeout,
		Logger:  &logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create proxy handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(eventsPath, handler)
	mux.Handle(legacyEventsPath, handler)
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(limiter, handler.Cache()))
	mux.Handle("/metrics", metrics.Handler())

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + 10*time.Second,
	}, nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

type readiness struct {
	Status       string          `json:"status"`
	CacheEntries int             `json:"cache_entries"`
	RateLimit    ratelimit.State `json:"rate_limit"`
}

// readyHandler reports 503 while the provider rate limit block is open.
func readyHandler(limiter *ratelimit.Limiter, ephemeral *cache.EphemeralCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := limiter.State()
		body := readiness{
			Status:       "ready",
			CacheEntries: ephemeral.Len(),
			RateLimit:    state,
		}
		status := http.StatusOK
		if state.Blocked(time.Now()) {
			body.Status = "rate_limited"
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Debug().Err(err).Msg("Failed to write readiness")
		}
	}
}
