package strata

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// l1Entry is the materialized, post-serializer projection of an L2 entry.
type l1Entry[V any] struct {
	val      V
	negative bool
	stale    bool
}

// l1cache is the process-local bounded cache. Each entry costs 1, so MaxCost
// is the capacity. Never the source of truth: only a projection of a
// historical L2 entry, evicted by the bus consumer or by TTL.
type l1cache[V any] struct {
	rc *ristretto.Cache[string, l1Entry[V]]
}

func newL1[V any](capacity int64) (*l1cache[V], error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, l1Entry[V]]{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &l1cache[V]{rc: rc}, nil
}

func (l *l1cache[V]) get(key string) (l1Entry[V], bool) {
	return l.rc.Get(key)
}

// set stores an entry with ttl (0 = no expiry). Wait makes the write visible
// before returning, so a worker always sees its own promotions.
func (l *l1cache[V]) set(key string, e l1Entry[V], ttl time.Duration) {
	l.rc.SetWithTTL(key, e, 1, ttl)
	l.rc.Wait()
}

func (l *l1cache[V]) evict(key string) { l.rc.Del(key) }
func (l *l1cache[V]) clear()           { l.rc.Clear() }
func (l *l1cache[V]) close()           { l.rc.Close() }
