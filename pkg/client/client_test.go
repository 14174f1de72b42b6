package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/skai/internal/testutil"
	"github.com/Sternrassler/skai/pkg/cache"
	"github.com/Sternrassler/skai/pkg/query"
)

// stubFetcher records calls and returns a canned result.
type stubFetcher struct {
	mu     sync.Mutex
	calls  int
	result *FetchResult
	err    error
	fetch  func(ctx context.Context, q query.Query) (*FetchResult, error)
}

func (s *stubFetcher) Fetch(ctx context.Context, q query.Query) (*FetchResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fetch != nil {
		return s.fetch(ctx, q)
	}
	return s.result, s.err
}

func (s *stubFetcher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testEnv struct {
	client  *Client
	store   *cache.DurableStore
	backend *cache.MemoryBackend
	fetcher *stubFetcher
	clock   *testutil.Clock
}

func newTestEnv(t *testing.T, fetcher *stubFetcher) *testEnv {
	t.Helper()

	clock := testutil.NewClock(time.Date(2025, 9, 1, 20, 0, 0, 0, time.UTC))
	backend := cache.NewMemoryBackend()
	store := cache.NewDurableStore(backend, cache.WithClock(clock.Now), cache.WithLogger(zerolog.Nop()))
	logger := zerolog.Nop()

	c, err := New(Config{Store: store, Fetcher: fetcher, Logger: &logger, Now: clock.Now})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{client: c, store: store, backend: backend, fetcher: fetcher, clock: clock}
}

func TestNew_Validation(t *testing.T) {
	store := cache.NewDurableStore(cache.NewMemoryBackend())

	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{name: "valid config", config: Config{Store: store, Fetcher: &stubFetcher{}}},
		{name: "missing store", config: Config{Fetcher: &stubFetcher{}}, expectError: true},
		{name: "missing fetcher", config: Config{Store: store}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if (err != nil) != tt.expectError {
				t.Errorf("New() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

func TestGetAstronomyEvents_MissThenHit(t *testing.T) {
	payload := json.RawMessage(`[{"date":"2025-09-07","title":"Total Lunar Eclipse","visibility":"naked_eye"}]`)
	env := newTestEnv(t, &stubFetcher{result: &FetchResult{Data: payload, Source: SourceServerCacheMiss}})
	ctx := context.Background()

	resp, err := env.client.GetAstronomyEvents(ctx, "Finland", "September", "2025")
	if err != nil {
		t.Fatalf("GetAstronomyEvents() error = %v", err)
	}
	if resp.FromCache || resp.Source != SourceServerCacheMiss || resp.CacheAge != 0 {
		t.Errorf("first response = %+v, want fresh server miss", resp)
	}

	env.clock.Advance(2 * time.Hour)

	resp, err = env.client.GetAstronomyEvents(ctx, "FINLAND", "september", " 2025 ")
	if err != nil {
		t.Fatalf("GetAstronomyEvents() error = %v", err)
	}
	if !resp.FromCache || resp.Source != SourceDurableCache {
		t.Errorf("second response = %+v, want durable hit", resp)
	}
	if resp.CacheAge != 2*time.Hour {
		t.Errorf("CacheAge = %v, want 2h", resp.CacheAge)
	}
	if string(resp.Data) != string(payload) {
		t.Errorf("Data = %s, want %s", resp.Data, payload)
	}
	if env.fetcher.Calls() != 1 {
		t.Errorf("fetcher called %d times, want 1", env.fetcher.Calls())
	}
}

func TestGetAstronomyEvents_ServerCacheHit(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{result: &FetchResult{
		Data:           json.RawMessage(`{"events":[]}`),
		ServerCacheHit: true,
		Source:         SourceServerCacheHit,
	}})

	resp, err := env.client.GetAstronomyEvents(context.Background(), "Chile", "July", "2026")
	if err != nil {
		t.Fatalf("GetAstronomyEvents() error = %v", err)
	}
	if !resp.FromCache || resp.Source != SourceServerCacheHit || resp.CacheAge != 0 {
		t.Errorf("response = %+v, want server cache hit with zero age", resp)
	}
	if env.backend.Len() != 1 {
		t.Error("server hit should still be written through to the durable cache")
	}
}

func TestGetAstronomyEvents_ExpiredEntryRefetches(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{result: &FetchResult{Data: json.RawMessage(`[]`), Source: SourceDirect}})
	ctx := context.Background()

	if _, err := env.client.GetAstronomyEvents(ctx, "Chile", "July", "2026"); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(cache.DefaultTTL)
	resp, err := env.client.GetAstronomyEvents(ctx, "Chile", "July", "2026")
	if err != nil {
		t.Fatal(err)
	}
	if resp.FromCache {
		t.Error("expired entry should not be served")
	}
	if env.fetcher.Calls() != 2 {
		t.Errorf("fetcher called %d times, want 2", env.fetcher.Calls())
	}
}

func TestGetAstronomyEvents_Validation(t *testing.T) {
	tests := []struct {
		name                 string
		country, month, year string
	}{
		{name: "two digit year", country: "Finland", month: "May", year: "25"},
		{name: "letters year", country: "Finland", month: "May", year: "abcd"},
		{name: "missing country", country: "  ", month: "May", year: "2025"},
		{name: "missing month", country: "Finland", month: "", year: "2025"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &stubFetcher{result: &FetchResult{Data: json.RawMessage(`[]`)}})

			_, err := env.client.GetAstronomyEvents(context.Background(), tt.country, tt.month, tt.year)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
			if env.fetcher.Calls() != 0 {
				t.Error("no fetch should be attempted for invalid input")
			}
		})
	}
}

func TestGetAstronomyEvents_FetchFailures(t *testing.T) {
	tests := []struct {
		name      string
		fetcher   *stubFetcher
		wantClass ErrorClass
	}{
		{
			name:      "status error",
			fetcher:   &stubFetcher{err: &FetchError{Class: ErrorClassStatus, StatusCode: 500}},
			wantClass: ErrorClassStatus,
		},
		{
			name:      "plain error becomes network",
			fetcher:   &stubFetcher{err: errors.New("connection refused")},
			wantClass: ErrorClassNetwork,
		},
		{
			name:      "invalid json body",
			fetcher:   &stubFetcher{result: &FetchResult{Data: json.RawMessage(`<html>oops</html>`), Source: SourceServerCacheMiss}},
			wantClass: ErrorClassDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.fetcher)

			resp, err := env.client.GetAstronomyEvents(context.Background(), "Finland", "May", "2025")
			if resp != nil {
				t.Errorf("response = %+v, want nil", resp)
			}
			if !errors.Is(err, ErrFetchFailed) {
				t.Fatalf("error = %v, want ErrFetchFailed", err)
			}
			var fe *FetchError
			if !errors.As(err, &fe) || fe.Class != tt.wantClass {
				t.Errorf("error class = %v, want %s", err, tt.wantClass)
			}
			if env.backend.Len() != 0 {
				t.Error("failed fetch must not write the cache")
			}
			if env.fetcher.Calls() != 1 {
				t.Errorf("fetcher called %d times, want exactly 1 (no retries)", env.fetcher.Calls())
			}
		})
	}
}

// lateCancelContext reports cancellation once Err has been called more
// than liveChecks times.
type lateCancelContext struct {
	context.Context
	liveChecks int32
	checks     atomic.Int32
}

func (c *lateCancelContext) Err() error {
	if c.checks.Add(1) > c.liveChecks {
		return context.Canceled
	}
	return nil
}

func TestGetAstronomyEvents_Cancelled(t *testing.T) {
	t.Run("cancelled during fetch", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		env := newTestEnv(t, &stubFetcher{fetch: func(ctx context.Context, _ query.Query) (*FetchResult, error) {
			cancel()
			// The response arrives anyway; it must be discarded.
			return &FetchResult{Data: json.RawMessage(`[]`), Source: SourceServerCacheMiss}, nil
		}})

		_, err := env.client.GetAstronomyEvents(ctx, "Finland", "May", "2025")
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("error = %v, want ErrCancelled", err)
		}
		if errors.Is(err, ErrFetchFailed) {
			t.Error("cancellation must not be reported as a fetch failure")
		}
		if env.backend.Len() != 0 {
			t.Error("cancelled request must not write the cache")
		}
	})

	t.Run("cancelled before dispatch", func(t *testing.T) {
		env := newTestEnv(t, &stubFetcher{result: &FetchResult{Data: json.RawMessage(`[]`)}})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := env.client.GetAstronomyEvents(ctx, "Finland", "May", "2025")
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("error = %v, want ErrCancelled", err)
		}
		if env.fetcher.Calls() != 0 {
			t.Error("no fetch should start once cancelled")
		}
	})

	t.Run("cancelled after fetch before write", func(t *testing.T) {
		env := newTestEnv(t, &stubFetcher{result: &FetchResult{Data: json.RawMessage(`[]`), Source: SourceServerCacheMiss}})
		// Live for the checks before and right after the fetch.
		ctx := &lateCancelContext{Context: context.Background(), liveChecks: 2}

		_, err := env.client.GetAstronomyEvents(ctx, "Finland", "May", "2025")
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("error = %v, want ErrCancelled", err)
		}
		if env.fetcher.Calls() != 1 {
			t.Errorf("fetcher called %d times, want 1", env.fetcher.Calls())
		}
		if env.backend.Len() != 0 {
			t.Error("request cancelled before the write must not write the cache")
		}
	})

	t.Run("durable hit is served even if cancelled", func(t *testing.T) {
		env := newTestEnv(t, &stubFetcher{})
		env.store.Put(context.Background(), cache.CacheKey{Country: "Finland", Month: "May", Year: "2025"}, json.RawMessage(`[]`))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		resp, err := env.client.GetAstronomyEvents(ctx, "Finland", "May", "2025")
		if err != nil || !resp.FromCache {
			t.Errorf("got (%+v, %v), want durable hit", resp, err)
		}
	})
}
