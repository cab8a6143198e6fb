// Package provider defines the shared-region storage abstraction used by
// strata as its L2.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Set for a key (no
// prepended/appended metadata, no re-encoding, no mutation). If a store
// performs internal transforms (e.g., compression), they MUST be fully
// reversed so that the bytes returned by Get are identical to the bytes
// provided to Set.
//
// Important: the "entry:<ns>:" keyspace is owned by strata. External code
// MUST NOT write values under this prefix. Foreign writes may be treated as
// corruption by strict wire-format validation and deleted.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs, shared by every worker of a
// fleet. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (0 = no expiry). May ignore cost
	// if unsupported. Returns ok=false when the store rejected the write
	// under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// DelPrefix removes every key under prefix.
	DelPrefix(ctx context.Context, prefix string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Reclaimer is an optional Provider extension consulted between write
// retries: an implementation may free space by evicting its oldest entries
// under the given prefix.
type Reclaimer interface {
	Reclaim(ctx context.Context, prefix string) error
}

// Compacter is an optional Provider extension used by Purge(flushExpired) to
// release memory held by physically retained, already-expired entries.
// Stores that reclaim expired keys on their own do not implement it.
type Compacter interface {
	FlushExpired(ctx context.Context) error
}
