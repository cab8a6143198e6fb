// Package local provides an in-process Locker for single-process fleets and
// tests. Waiters suspend on a channel closed by Release rather than polling.
package local

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/strata/lock"
)

type holder struct {
	token    string
	released chan struct{}
}

type Locker struct {
	mu   sync.Mutex
	held map[string]*holder
}

var _ lock.Locker = (*Locker)(nil)

func New() *Locker {
	return &Locker{held: make(map[string]*holder)}
}

// Acquire takes the key's lock or suspends until the current holder releases
// it. The ttl is ignored: a holder in the same process cannot vanish without
// its Release deferring.
func (l *Locker) Acquire(ctx context.Context, key string, _, timeout time.Duration) (lock.Handle, error) {
	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		timeoutCh = timer.C
		defer timer.Stop()
	}

	token := lock.NewToken()
	for {
		l.mu.Lock()
		h, taken := l.held[key]
		if !taken {
			l.held[key] = &holder{token: token, released: make(chan struct{})}
			l.mu.Unlock()
			return lock.Handle{Key: key, Token: token}, nil
		}
		released := h.released
		l.mu.Unlock()

		select {
		case <-released:
			// holder left; race for the lock again
		case <-timeoutCh:
			return lock.Handle{}, lock.ErrTimeout
		case <-ctx.Done():
			return lock.Handle{}, ctx.Err()
		}
	}
}

func (l *Locker) Release(_ context.Context, h lock.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.held[h.Key]
	if !ok || cur.token != h.Token {
		return nil // not ours anymore; nothing to do
	}
	delete(l.held, h.Key)
	close(cur.released)
	return nil
}

func (l *Locker) Close(context.Context) error { return nil }
