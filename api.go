package strata

import (
	"context"
	"time"

	"github.com/unkn0wn-root/strata/bus"
	c "github.com/unkn0wn-root/strata/codec"
	"github.com/unkn0wn-root/strata/lock"
	pr "github.com/unkn0wn-root/strata/provider"
)

// NeverExpires marks an entry that should not expire. A plain 0 means
// "use the configured default".
const NeverExpires time.Duration = -1

// HitLevel reports where a Get was satisfied from.
type HitLevel int

const (
	HitL1    HitLevel = iota + 1 // process-local cache
	HitL2                        // shared region
	HitLoad                      // freshly loaded from the origin
	HitStale                     // resurrected previous value
)

func (h HitLevel) String() string {
	switch h {
	case HitL1:
		return "l1"
	case HitL2:
		return "l2"
	case HitLoad:
		return "load"
	case HitStale:
		return "stale"
	default:
		return "none"
	}
}

// Loader fetches a value from the origin. found=false means the origin
// definitively has no value for the key (cached as a negative entry), as
// opposed to err != nil which means the fetch failed. ttl overrides the
// namespace default when > 0; NeverExpires disables expiry.
type Loader[V any] func(ctx context.Context) (value V, found bool, ttl time.Duration, err error)

// Serializer optionally transforms a value on its way from L2 (or a loader
// result) into L1, so expensive in-process materialization happens at most
// once per worker per value. Never invoked on L1 hits, Set or Peek.
type Serializer[V any] func(V) (V, error)

// Cache is the multi-level read-through cache. V is the caller's value type;
// serialization to the shared region is handled by a pluggable Codec[V].
type Cache[V any] interface {
	// Get returns the value for key, checking L1, then the shared region,
	// then invoking load under a fleet-wide per-key lock. ok=false with a
	// nil error is a cached negative: the origin has no value for key.
	Get(ctx context.Context, key string, load Loader[V], opts ...CallOption) (v V, ok bool, lvl HitLevel, err error)

	// Peek inspects the shared region only: no L1, no loader. It reports
	// the remaining TTL (0 = never expires) and the stored value; ok=false
	// with nil error means not cached. Negative entries are visible here
	// with a zero value.
	Peek(ctx context.Context, key string) (ttl time.Duration, ok bool, v V, err error)

	// Set writes value to the shared region and announces it on the bus.
	// It does not touch this worker's L1; Update does.
	Set(ctx context.Context, key string, value V, opts ...CallOption) error

	// Delete removes key from the shared region and announces it.
	Delete(ctx context.Context, key string) error

	// Purge clears L1 and the namespace's entire shared keyspace and
	// announces it. flushExpired additionally compacts physically retained
	// expired entries where the region supports it.
	Purge(ctx context.Context, flushExpired bool) error

	// Update drains invalidation events published by other workers since
	// the last call and evicts the matching L1 entries. Call it before
	// relying on Get whenever any worker may Set/Delete/Purge; without it,
	// L1 staleness is bounded only by TTL.
	Update(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Options tune the behavior of a cache namespace.
// Namespace, Region and Codec are required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace to avoid collisions, e.g. "user", "profile"
	Region    pr.Provider
	Codec     c.Codec[V]

	// NegativeRegion optionally isolates negative-entry churn in a separate
	// region. Defaults to Region.
	NegativeRegion pr.Provider

	// Locker sequences origin fetches fleet-wide. Defaults to an in-process
	// locker, which is only correct when the whole fleet is one process.
	Locker lock.Locker

	// Bus propagates Set/Delete/Purge across workers. If nil, Update is a
	// no-op and cross-worker staleness is bounded only by TTL.
	Bus bus.Bus

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	L1Capacity int64 // max L1 entries; 0 => 1024
	DisableL1  bool

	DefaultTTL   time.Duration // positive entries; 0 => 10m, NeverExpires => no expiry
	NegativeTTL  time.Duration // negative entries; 0 => 1m
	ResurrectTTL time.Duration // stale window on loader failure; 0 disables resurrection

	WriteRetryBudget int           // region write retries under pressure; 0 => 2
	LockTTL          time.Duration // upper bound on a loader lock; 0 => 30s
	LockTimeout      time.Duration // wait for a contended lock; 0 => 5s

	Serializer Serializer[V] // optional L2->L1 transform
}

// CallOption overrides namespace defaults for a single operation.
type CallOption func(*callOptions)

type callOptions struct {
	ttl         time.Duration
	negTTL      time.Duration
	lockTimeout time.Duration
}

// WithTTL overrides the positive-entry TTL for this call.
func WithTTL(d time.Duration) CallOption {
	return func(o *callOptions) { o.ttl = d }
}

// WithNegTTL overrides the negative-entry TTL for this call.
func WithNegTTL(d time.Duration) CallOption {
	return func(o *callOptions) { o.negTTL = d }
}

// WithLockTimeout overrides the loader-lock wait for this call.
func WithLockTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.lockTimeout = d }
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
