package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Sternrassler/skai/pkg/provider"
	"github.com/Sternrassler/skai/pkg/query"
)

// maxBodySize bounds how much of a proxy response is read.
const maxBodySize = 4 << 20

// ServerlessFetcher posts queries to the proxy service.
type ServerlessFetcher struct {
	url        string
	httpClient *http.Client
}

// NewServerlessFetcher creates a fetcher for the proxy endpoint at url.
// A nil httpClient gets a client with a 90 second timeout.
func NewServerlessFetcher(url string, httpClient *http.Client) (*ServerlessFetcher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("proxy url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &ServerlessFetcher{url: url, httpClient: httpClient}, nil
}

// Fetch implements Fetcher.
func (f *ServerlessFetcher) Fetch(ctx context.Context, q query.Query) (*FetchResult, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Class: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{Class: ErrorClassNetwork, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			Class:      ErrorClassStatus,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data, resp.Status),
		}
	}

	hit := strings.EqualFold(resp.Header.Get("X-Cache"), "HIT")
	source := SourceServerCacheMiss
	if hit {
		source = SourceServerCacheHit
	}

	return &FetchResult{
		Data:           json.RawMessage(data),
		ServerCacheHit: hit,
		Source:         source,
	}, nil
}

// errorMessage extracts the proxy's error text, preferring "message" over
// "error".
func errorMessage(body []byte, fallback string) string {
	if !gjson.ValidBytes(body) {
		return fallback
	}
	for _, r := range gjson.GetManyBytes(body, "message", "error") {
		if r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return fallback
}

// DirectFetcher calls the AI provider without going through the proxy.
type DirectFetcher struct {
	generator provider.Generator
}

// NewDirectFetcher wraps generator.
func NewDirectFetcher(generator provider.Generator) (*DirectFetcher, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	return &DirectFetcher{generator: generator}, nil
}

// Fetch implements Fetcher.
func (f *DirectFetcher) Fetch(ctx context.Context, q query.Query) (*FetchResult, error) {
	data, err := f.generator.Generate(ctx, q)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidJSON) {
			return nil, &FetchError{Class: ErrorClassDecode, Err: err}
		}
		fe := &FetchError{Class: ErrorClassProvider, Err: err}
		var apiErr *provider.APIError
		if errors.As(err, &apiErr) {
			fe.StatusCode = apiErr.StatusCode
		}
		return nil, fe
	}
	return &FetchResult{Data: data, Source: SourceDirect}, nil
}
