package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTTL is how long a cached result stays fresh.
const DefaultTTL = 24 * time.Hour

// CacheEntry represents a cached AI result. Entries are immutable once
// written; a refresh replaces the whole entry.
type CacheEntry struct {
	// Data is the opaque JSON payload returned by the upstream.
	Data json.RawMessage

	// Timestamp is when the payload was cached.
	Timestamp time.Time
}

// entryRecord is the serialized form: {"data": ..., "timestamp": <unix ms>}.
type entryRecord struct {
	Data      json.RawMessage `json:"data"`
	Timestamp *int64          `json:"timestamp"`
}

// MarshalJSON encodes the entry with a millisecond timestamp.
func (e CacheEntry) MarshalJSON() ([]byte, error) {
	ts := e.Timestamp.UnixMilli()
	return json.Marshal(entryRecord{Data: e.Data, Timestamp: &ts})
}

// UnmarshalJSON decodes an entry, rejecting records without data or timestamp.
func (e *CacheEntry) UnmarshalJSON(b []byte) error {
	var rec entryRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return err
	}
	if rec.Timestamp == nil {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEntry)
	}
	if len(rec.Data) == 0 || string(rec.Data) == "null" {
		return fmt.Errorf("%w: missing data", ErrInvalidEntry)
	}
	e.Data = rec.Data
	e.Timestamp = time.UnixMilli(*rec.Timestamp)
	return nil
}

// Age returns how long ago the entry was cached. Never negative.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	age := now.Sub(e.Timestamp)
	if age < 0 {
		return 0
	}
	return age
}

// IsExpired returns true once the entry is at least ttl old.
func (e *CacheEntry) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) >= ttl
}
