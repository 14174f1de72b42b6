// Package cache provides the two cache tiers for astronomy events results.
//
// The durable tier (DurableStore) survives restarts of the requesting side and
// sits on top of a pluggable Backend:
//
//   - MemoryBackend - process memory, mainly for tests
//   - FileBackend - one JSON file per key under CacheDir()
//   - RedisBackend - shared Redis instance
//   - SQLiteBackend - single-file SQLite database
//
// The ephemeral tier (EphemeralCache) lives inside the proxy service for the
// lifetime of the process and holds at most DefaultCapacity entries, evicting
// the oldest first.
//
// Both tiers use the same freshness rule: an entry is fresh while
// now - timestamp < TTL (DefaultTTL is 24 hours).
//
// # Basic Usage
//
//	backend, err := cache.NewFileBackend(dir)
//	if err != nil {
//		return err
//	}
//	store := cache.NewDurableStore(backend)
//
//	key := cache.KeyFor(q)
//	if entry, ok := store.Get(ctx, key); ok {
//		// fresh hit, entry.Age(time.Now()) tells how old it is
//	}
//	store.Put(ctx, key, data)
//
// # Storage Faults
//
// The durable tier never returns storage errors. Unreadable or corrupt
// records are removed and read as absent, failed writes are logged and
// otherwise ignored.
//
// # Metrics
//
//   - skai_cache_hits_total{tier} - Fresh hits
//   - skai_cache_misses_total{tier} - Misses, including expired entries
//   - skai_cache_expirations_total{tier} - Entries dropped for age
//   - skai_cache_evictions_total - Ephemeral entries evicted for capacity
//   - skai_cache_entries - Current ephemeral entry count
//   - skai_cache_errors_total{tier,operation} - Storage faults
package cache
