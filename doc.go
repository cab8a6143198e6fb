// Package strata implements a multi-level read-through cache for fleets of
// concurrent workers: a bounded process-local L1 of materialized values, a
// shared byte region (L2) with per-entry expiry, and a per-key fleet-wide
// lock so the caller-supplied origin loader runs at most once per key at a
// time (no dog-piling).
//
// Components:
//   - Provider: shared byte store with TTL (e.g. Redis, BigCache).
//   - Codec[V]: (de)serializes V <-> []byte for the shared region.
//   - Locker: per-key advisory lock guarding origin fetches.
//   - Bus: append-only, sequence-numbered invalidation log; workers call
//     Update to evict L1 entries written or deleted by other workers.
//
// Keys:
//
//	entry:<ns>:<key> - cache entries (positive, negative and stale frames)
//	lock:<ns>:<key>  - loader locks
//	bus:<name>:*     - invalidation log
//
// Read pattern:
//
//	v, ok, lvl, err := cache.Get(ctx, key, func(ctx context.Context) (User, bool, time.Duration, error) {
//	    return readFromDB(ctx, key) // runs at most once fleet-wide per key
//	})
//
// Cached absence (ok=false, err=nil) is distinct from "not cached": the
// negative entry is visible to Peek and suppresses origin lookups until its
// TTL elapses. When ResurrectTTL is configured, a failing loader re-serves
// the previous value as stale instead of surfacing the error.
package strata
