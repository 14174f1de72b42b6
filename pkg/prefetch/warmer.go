// Package prefetch warms the durable cache for a whole year of one country.
//
// Example usage:
//
//	warmer := prefetch.NewWarmer(dispatcher, prefetch.DefaultConfig())
//	results, err := warmer.WarmYear(ctx, "Finland", "2026")
//
// Months are fetched by a bounded worker pool. Failed months do not stop
// the others; the returned error joins every failure and the results are
// always complete, in calendar order.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/skai/pkg/client"
)

// Months in calendar order, as offered by the search form.
var Months = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// Config holds warmer configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests
	MaxConcurrency int

	// Timeout per month fetch
	Timeout time.Duration
}

// DefaultConfig returns a configuration gentle on the proxy service.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 3,
		Timeout:        90 * time.Second,
	}
}

// Searcher is the request dispatcher.
type Searcher interface {
	GetAstronomyEvents(ctx context.Context, country, month, year string) (*client.Response, error)
}

// MonthResult is the outcome for one month.
type MonthResult struct {
	Month    string
	Response *client.Response
	Err      error
}

// Warmer fetches all months of a year.
type Warmer struct {
	searcher Searcher
	config   Config
	logger   zerolog.Logger
}

// NewWarmer creates a warmer.
func NewWarmer(searcher Searcher, config Config) *Warmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 90 * time.Second
	}
	return &Warmer{
		searcher: searcher,
		config:   config,
		logger:   log.With().Str("component", "prefetch").Logger(),
	}
}

// WarmYear requests every month of year for country.
func (w *Warmer) WarmYear(ctx context.Context, country, year string) ([]MonthResult, error) {
	start := time.Now()
	results := make([]MonthResult, len(Months))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.MaxConcurrency)

	for i, month := range Months {
		results[i].Month = month
		g.Go(func() error {
			monthCtx, cancel := context.WithTimeout(gctx, w.config.Timeout)
			defer cancel()

			resp, err := w.searcher.GetAstronomyEvents(monthCtx, country, month, year)
			results[i].Response = resp
			results[i].Err = err
			if err != nil {
				w.logger.Warn().Err(err).Str("month", month).Msg("Month fetch failed")
			}
			// Validation errors apply to every month; stop early.
			if errors.Is(err, client.ErrValidation) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	var errs []error
	cached := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", r.Month, r.Err))
		case r.Response.FromCache:
			cached++
		}
	}

	w.logger.Info().
		Str("country", country).
		Str("year", year).
		Int("months", len(Months)).
		Int("already_cached", cached).
		Int("failed", len(errs)).
		Dur("duration", time.Since(start)).
		Msg("Warm-up complete")

	return results, errors.Join(errs...)
}
