// Package ratelimit gates calls to the AI provider. It combines a local
// token bucket with a block window that opens when the provider itself
// reports rate limiting.
package ratelimit

import (
	"time"
)

// DefaultBlockDuration is used when the provider gives no Retry-After hint.
const DefaultBlockDuration = 60 * time.Second

// State is a snapshot of the limiter.
type State struct {
	// RequestsPerSecond is the token refill rate. Zero means unlimited.
	RequestsPerSecond float64 `json:"requests_per_second"`

	// Burst is the bucket size.
	Burst int `json:"burst"`

	// Tokens currently available.
	Tokens float64 `json:"tokens"`

	// BlockedUntil is set after the provider reported rate limiting.
	BlockedUntil time.Time `json:"blocked_until,omitempty"`
}

// Unlimited reports whether the token bucket is disabled.
func (s State) Unlimited() bool {
	return s.RequestsPerSecond <= 0
}

// Blocked reports whether calls are refused at now.
func (s State) Blocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilReset returns how long the block lasts from now, or 0 if not
// blocked.
func (s State) TimeUntilReset(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
