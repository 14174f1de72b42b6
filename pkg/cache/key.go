package cache

import (
	"strings"

	"github.com/Sternrassler/skai/pkg/query"
)

// DurableKeyPrefix namespaces every record the durable tier writes.
const DurableKeyPrefix = "astronomy_events_"

// keySeparator joins the key components.
const keySeparator = "_"

// CacheKey identifies cached astronomy events for one (country, month, year).
type CacheKey struct {
	Country string
	Month   string
	Year    string
}

// KeyFor builds the cache key of a normalized query.
func KeyFor(q query.Query) CacheKey {
	return CacheKey{Country: q.Country, Month: q.Month, Year: q.Year}
}

// String generates the deterministic, case-insensitive key string.
// Format: country_month_year (lowercased)
//
// Example:
//
//	finland_september_2025
func (k CacheKey) String() string {
	return strings.ToLower(strings.Join([]string{k.Country, k.Month, k.Year}, keySeparator))
}

// DurableKey is the key under which the durable tier stores the entry.
//
// Example:
//
//	astronomy_events_finland_september_2025
func (k CacheKey) DurableKey() string {
	return DurableKeyPrefix + k.String()
}
