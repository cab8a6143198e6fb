package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/strata/lock"
)

var ErrNilClient = errors.New("redis locker: nil client")

// releaseScript deletes the lock key only when the fencing token still
// matches, so an expired-and-reacquired lock is never freed by a late holder.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker coordinates workers across processes with SET NX PX polling.
type Locker struct {
	rdb         goredis.UniversalClient
	retry       time.Duration
	closeClient bool
}

var _ lock.Locker = (*Locker)(nil)

type Config struct {
	Client        goredis.UniversalClient
	RetryInterval time.Duration // poll interval while contended; 0 => 25ms
	CloseClient   bool
}

func New(cfg Config) (*Locker, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	r := cfg.RetryInterval
	if r <= 0 {
		r = 25 * time.Millisecond
	}
	return &Locker{rdb: cfg.Client, retry: r, closeClient: cfg.CloseClient}, nil
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl, timeout time.Duration) (lock.Handle, error) {
	token := lock.NewToken()
	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return lock.Handle{}, err
		}
		if ok {
			return lock.Handle{Key: key, Token: token}, nil
		}

		wait := l.retry
		if timeout > 0 {
			rem := time.Until(deadline)
			if rem <= 0 {
				return lock.Handle{}, lock.ErrTimeout
			}
			if rem < wait {
				wait = rem
			}
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return lock.Handle{}, ctx.Err()
		case <-t.C:
		}
	}
}

func (l *Locker) Release(ctx context.Context, h lock.Handle) error {
	return releaseScript.Run(ctx, l.rdb, []string{h.Key}, h.Token).Err()
}

func (l *Locker) Close(context.Context) error {
	if l.closeClient {
		if err := l.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
