// Package debounce collapses bursts of search triggers into a single request
// and makes sure only the most recent request produces a visible outcome.
//
// State machine:
//
//	Idle -> Pending -> Resolved
//	               \-> Cancelled
//
// A Trigger first returns a terminal state to Idle, cancels whatever is in
// flight and restarts the debounce window. A call scheduled inside the window
// that is superseded never dispatches at all.
package debounce

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/skai/pkg/client"
	"github.com/Sternrassler/skai/pkg/query"
)

// DefaultWindow is the quiet period after the last trigger before a search
// is dispatched.
const DefaultWindow = 300 * time.Millisecond

// ErrClosed is returned by Trigger after Close.
var ErrClosed = errors.New("coordinator closed")

var (
	triggersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skai_debounce_triggers_total",
		Help: "Total search triggers received",
	})

	dispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skai_debounce_dispatched_total",
		Help: "Total searches dispatched after the debounce window",
	})

	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skai_debounce_dropped_total",
		Help: "Total search outcomes dropped by reason",
	}, []string{"reason"}) // "superseded", "cancelled"
)

// State is the coordinator state.
type State int

const (
	Idle State = iota
	Pending
	Resolved
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Searcher is the request dispatcher. *client.Client implements it.
type Searcher interface {
	GetAstronomyEvents(ctx context.Context, country, month, year string) (*client.Response, error)
}

// Outcome is delivered to the handler for the current search only. Err is
// never a cancellation.
type Outcome struct {
	Query    query.Query
	Response *client.Response
	Err      error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.window = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithBaseContext sets the parent of every dispatch context.
func WithBaseContext(ctx context.Context) Option {
	return func(c *Coordinator) {
		if ctx != nil {
			c.baseCtx = ctx
		}
	}
}

// Coordinator serializes user searches. The handler runs while the
// coordinator lock is held, so it must not call Trigger, Cancel or Close
// synchronously.
type Coordinator struct {
	searcher Searcher
	handler  func(Outcome)
	window   time.Duration
	baseCtx  context.Context
	logger   zerolog.Logger

	mu     sync.Mutex
	seq    uint64
	state  State
	timer  *time.Timer
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// New creates a coordinator that dispatches to searcher and reports to
// handler.
func New(searcher Searcher, handler func(Outcome), opts ...Option) *Coordinator {
	if searcher == nil {
		panic("searcher cannot be nil")
	}
	if handler == nil {
		panic("handler cannot be nil")
	}
	c := &Coordinator{
		searcher: searcher,
		handler:  handler,
		window:   DefaultWindow,
		baseCtx:  context.Background(),
		logger:   log.With().Str("component", "debounce").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trigger schedules a search for the given input after the debounce window,
// superseding anything scheduled or in flight.
func (c *Coordinator) Trigger(country, month, year string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	triggersTotal.Inc()

	c.abortLocked()
	c.state = Idle
	c.seq++
	id := c.seq
	q := query.Query{Country: country, Month: month, Year: year}

	c.wg.Add(1)
	c.timer = time.AfterFunc(c.window, func() {
		defer c.wg.Done()
		c.dispatch(id, q)
	})

	c.logger.Debug().Uint64("seq", id).Str("query", q.String()).Msg("Search scheduled")
	return nil
}

// Cancel drops the scheduled search and aborts the in-flight one, if any.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.abortLocked()
}

// State reports the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close cancels all work, refuses further triggers and waits for running
// dispatches to return.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.seq++
	c.abortLocked()
	c.mu.Unlock()

	c.wg.Wait()
}

// abortLocked stops the timer and cancels the in-flight call. Caller holds c.mu.
func (c *Coordinator) abortLocked() {
	if c.timer != nil {
		if c.timer.Stop() {
			// Never fired, so never dispatched.
			c.wg.Done()
		}
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		if c.state == Pending {
			c.state = Cancelled
		}
	}
}

func (c *Coordinator) dispatch(id uint64, q query.Query) {
	c.mu.Lock()
	if id != c.seq || c.closed {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel
	c.timer = nil
	c.state = Pending
	c.mu.Unlock()

	dispatchedTotal.Inc()
	resp, err := c.searcher.GetAstronomyEvents(ctx, q.Country, q.Month, q.Year)

	cancelled := ctx.Err() != nil || errors.Is(err, client.ErrCancelled)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.seq {
		droppedTotal.WithLabelValues("superseded").Inc()
		c.logger.Debug().Uint64("seq", id).Str("query", q.String()).Msg("Dropping superseded search result")
		return
	}
	c.cancel = nil

	if cancelled {
		c.state = Cancelled
		droppedTotal.WithLabelValues("cancelled").Inc()
		c.logger.Debug().Uint64("seq", id).Str("query", q.String()).Msg("Search cancelled")
		return
	}

	c.state = Resolved
	c.handler(Outcome{Query: q, Response: resp, Err: err})
}
