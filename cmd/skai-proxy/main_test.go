package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/skai/internal/config"
	"github.com/Sternrassler/skai/pkg/cache"
	"github.com/Sternrassler/skai/pkg/provider"
	"github.com/Sternrassler/skai/pkg/query"
	"github.com/Sternrassler/skai/pkg/ratelimit"
)

func testConfig() config.ProxyConfig {
	return config.ProxyConfig{
		Port:            "0",
		UpstreamTimeout: 5 * time.Second,
		CacheCapacity:   cache.DefaultCapacity,
		CacheTTL:        24 * time.Hour,
		LogLevel:        "info",
	}
}

func staticGenerator(calls *atomic.Int32) provider.Generator {
	return provider.GeneratorFunc(func(ctx context.Context, q query.Query) (json.RawMessage, error) {
		calls.Add(1)
		return json.RawMessage(`{"events":[{"date":"2025-09-07","title":"Total Lunar Eclipse"}]}`), nil
	})
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	limiter := ratelimit.NewLimiter(0, 0, zerolog.Nop())
	ephemeral := cache.NewEphemeralCache()
	ephemeral.Store(cache.CacheKey{Country: "Finland", Month: "September", Year: "2025"}, json.RawMessage(`[]`))

	handler := readyHandler(limiter, ephemeral)

	t.Run("ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}

		var body readiness
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("Invalid readiness body: %v", err)
		}
		if body.Status != "ready" || body.CacheEntries != 1 {
			t.Errorf("Unexpected readiness body: %+v", body)
		}
	})

	t.Run("not_ready_rate_limited", func(t *testing.T) {
		limiter.Block(time.Minute)

		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"rate_limited"`) {
			t.Errorf("Expected rate_limited status, got %s", w.Body.String())
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	var calls atomic.Int32
	srv, err := newServer(testConfig(), staticGenerator(&calls))
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	bodyStr := w.Body.String()
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	// Gauges are exported even before the first request.
	for _, name := range []string{"skai_cache_entries", "skai_upstream_rate_limit_blocked"} {
		if !strings.Contains(bodyStr, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}

func TestEventsRoutes(t *testing.T) {
	var calls atomic.Int32
	srv, err := newServer(testConfig(), staticGenerator(&calls))
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	post := func(path string) *http.Response {
		t.Helper()
		resp, err := http.Post(ts.URL+path, "application/json",
			strings.NewReader(`{"country":"Finland","month":"September","year":"2025"}`))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	first := post(eventsPath)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", first.StatusCode)
	}
	if got := first.Header.Get("X-Cache"); got != "MISS" {
		t.Errorf("Expected X-Cache MISS, got %q", got)
	}

	// Both paths share one ephemeral cache.
	second := post(legacyEventsPath)
	if got := second.Header.Get("X-Cache"); got != "HIT" {
		t.Errorf("Expected X-Cache HIT on legacy path, got %q", got)
	}

	if calls.Load() != 1 {
		t.Errorf("Expected 1 upstream call, got %d", calls.Load())
	}
}

func TestNewServer_RequiresGenerator(t *testing.T) {
	if _, err := newServer(testConfig(), nil); err == nil {
		t.Error("Expected error without generator")
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- run(ctx, testConfig(), staticGenerator(&calls)) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
