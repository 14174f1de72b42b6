//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/skai/internal/testutil"
	"github.com/Sternrassler/skai/pkg/cache"
	"github.com/Sternrassler/skai/pkg/client"
	"github.com/Sternrassler/skai/pkg/debounce"
	"github.com/Sternrassler/skai/pkg/provider"
	"github.com/Sternrassler/skai/pkg/proxy"
	"github.com/Sternrassler/skai/pkg/query"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// stack is a proxy service plus the generator call counter behind it.
type stack struct {
	server *httptest.Server
	calls  *atomic.Int32
}

func startProxy(t *testing.T, gen provider.Generator) *stack {
	t.Helper()

	calls := &atomic.Int32{}
	counted := provider.GeneratorFunc(func(ctx context.Context, q query.Query) (json.RawMessage, error) {
		calls.Add(1)
		return gen.Generate(ctx, q)
	})

	logger := zerolog.Nop()
	h, err := proxy.New(proxy.Config{Generator: counted, Logger: &logger})
	if err != nil {
		t.Fatalf("Failed to create proxy handler: %v", err)
	}

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &stack{server: srv, calls: calls}
}

func newDispatcher(t *testing.T, s *stack, backend cache.Backend) *client.Client {
	t.Helper()

	fetcher, err := client.NewServerlessFetcher(s.server.URL, s.server.Client())
	if err != nil {
		t.Fatalf("Failed to create fetcher: %v", err)
	}

	logger := zerolog.Nop()
	c, err := client.New(client.Config{
		Store:   cache.NewDurableStore(backend, cache.WithLogger(logger)),
		Fetcher: fetcher,
		Logger:  &logger,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func fixedGenerator(payload string) provider.Generator {
	return provider.GeneratorFunc(func(ctx context.Context, q query.Query) (json.RawMessage, error) {
		return json.RawMessage(payload), nil
	})
}

func TestTwoTierCache(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	s := startProxy(t, fixedGenerator(`{"events":[{"title":"Perseids"}]}`))

	// First user: both tiers miss.
	alice := newDispatcher(t, s, cache.NewRedisBackend(redisClient, cache.DefaultTTL))
	resp, err := alice.GetAstronomyEvents(ctx, "Spain", "August", "2026")
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	if resp.Source != client.SourceServerCacheMiss || resp.FromCache {
		t.Errorf("Expected server cache miss, got source=%s fromCache=%v", resp.Source, resp.FromCache)
	}

	// Second user with an empty durable cache: served by the proxy cache.
	bob := newDispatcher(t, s, cache.NewMemoryBackend())
	resp, err = bob.GetAstronomyEvents(ctx, "spain", "AUGUST", "2026")
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}
	if resp.Source != client.SourceServerCacheHit || !resp.FromCache {
		t.Errorf("Expected server cache hit, got source=%s fromCache=%v", resp.Source, resp.FromCache)
	}

	// First user again: served from the durable cache without a request.
	resp, err = alice.GetAstronomyEvents(ctx, "Spain", "August", "2026")
	if err != nil {
		t.Fatalf("Third request failed: %v", err)
	}
	if resp.Source != client.SourceDurableCache {
		t.Errorf("Expected durable cache hit, got %s", resp.Source)
	}

	if got := s.calls.Load(); got != 1 {
		t.Errorf("Expected 1 generator call, got %d", got)
	}
}

func TestDurableCacheSurvivesRestart(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	s := startProxy(t, fixedGenerator(`[{"title":"Geminids"}]`))

	first := newDispatcher(t, s, cache.NewRedisBackend(redisClient, cache.DefaultTTL))
	if _, err := first.GetAstronomyEvents(ctx, "Chile", "December", "2025"); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	// A new process over the same redis.
	restarted := newDispatcher(t, s, cache.NewRedisBackend(redisClient, cache.DefaultTTL))
	resp, err := restarted.GetAstronomyEvents(ctx, "Chile", "December", "2025")
	if err != nil {
		t.Fatalf("Request after restart failed: %v", err)
	}
	if resp.Source != client.SourceDurableCache {
		t.Errorf("Expected durable cache hit after restart, got %s", resp.Source)
	}

	ttl, err := redisClient.TTL(ctx, cache.KeyFor(query.Query{Country: "Chile", Month: "December", Year: "2025"}).DurableKey()).Result()
	if err != nil {
		t.Fatalf("TTL lookup failed: %v", err)
	}
	if ttl <= 0 || ttl > cache.DefaultTTL {
		t.Errorf("Expected redis expiry within %v, got %v", cache.DefaultTTL, ttl)
	}
}

func TestProxyWithOpenAIProvider(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse(testutil.CompletionsPath, testutil.NewCompletionResponse(`{"events":[{"title":"Aurora season"}]}`))

	gen, err := provider.NewOpenAI(provider.Config{
		APIKey:     "test-key",
		BaseURL:    mock.URL(),
		HTTPClient: mock.Client(),
	})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	s := startProxy(t, gen)
	c := newDispatcher(t, s, cache.NewRedisBackend(redisClient, cache.DefaultTTL))

	resp, err := c.GetAstronomyEvents(context.Background(), "Norway", "February", "2026")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if string(resp.Data) != `{"events":[{"title":"Aurora season"}]}` {
		t.Errorf("Unexpected payload: %s", resp.Data)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("Expected 1 provider request, got %d", mock.GetRequestCount())
	}
}

func TestDebouncedSearchAgainstProxy(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	slow := provider.GeneratorFunc(func(ctx context.Context, q query.Query) (json.RawMessage, error) {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return json.RawMessage(`{"events":[]}`), nil
	})
	s := startProxy(t, slow)
	c := newDispatcher(t, s, cache.NewRedisBackend(redisClient, cache.DefaultTTL))

	outcomes := make(chan debounce.Outcome, 4)
	coord := debounce.New(c, func(o debounce.Outcome) { outcomes <- o },
		debounce.WithWindow(20*time.Millisecond),
		debounce.WithLogger(zerolog.Nop()),
	)
	defer coord.Close()

	if err := coord.Trigger("Ice", "March", "2026"); err != nil {
		t.Fatal(err)
	}
	if err := coord.Trigger("Iceland", "March", "2026"); err != nil {
		t.Fatal(err)
	}

	select {
	case o := <-outcomes:
		if o.Err != nil {
			t.Fatalf("Unexpected error: %v", o.Err)
		}
		if o.Query.Country != "Iceland" {
			t.Errorf("Expected outcome for Iceland, got %q", o.Query.Country)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("No outcome delivered")
	}

	select {
	case o := <-outcomes:
		t.Errorf("Unexpected second outcome for %q", o.Query.Country)
	case <-time.After(200 * time.Millisecond):
	}

	if got := s.calls.Load(); got != 1 {
		t.Errorf("Expected only the latest search to reach the proxy, got %d calls", got)
	}
}
