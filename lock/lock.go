// Package lock defines the per-key advisory lock used to guard origin
// fetches. Exactly one worker in the fleet may hold a given key's lock at a
// time; the lock only sequences callers, it never runs the loader itself.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrTimeout is returned by Acquire when the lock could not be obtained
// within the caller's timeout.
var ErrTimeout = errors.New("strata/lock: acquire timeout")

// Handle identifies one successful acquisition. Token fences Release so a
// holder cannot free a lock that has since expired and been re-acquired.
type Handle struct {
	Key   string
	Token string
}

// Locker is a keyed mutual-exclusion primitive scoped to a shared region.
// Keys arrive fully namespaced.
type Locker interface {
	// Acquire blocks until the lock on key is held or timeout elapses
	// (ErrTimeout), whichever is first. ttl bounds how long a crashed
	// holder can wedge the key.
	Acquire(ctx context.Context, key string, ttl, timeout time.Duration) (Handle, error)

	// Release frees the lock if h still owns it.
	Release(ctx context.Context, h Handle) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// NewToken returns a random fencing token.
func NewToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("strata/lock: rand: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
