package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/strata/bus"
)

var ErrNilClient = errors.New("redis bus: nil client")

// Bus is the cross-process invalidation log: an INCR counter hands out
// sequence numbers and a bounded list retains the most recent events.
// Events are msgpack-encoded.
type Bus struct {
	rdb         goredis.UniversalClient
	name        string
	retention   int64
	ttl         time.Duration
	closeClient bool
}

var _ bus.Bus = (*Bus)(nil)

type Config struct {
	Client      goredis.UniversalClient
	Name        string        // log identity; fleets sharing a region share a name
	Retention   int64         // max retained events; 0 => 4096
	TTL         time.Duration // optional expiry on the log keys; 0 disables
	CloseClient bool
}

func New(cfg Config) (*Bus, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Name == "" {
		return nil, errors.New("redis bus: name is required")
	}
	r := cfg.Retention
	if r <= 0 {
		r = 4096
	}
	return &Bus{
		rdb:         cfg.Client,
		name:        cfg.Name,
		retention:   r,
		ttl:         cfg.TTL,
		closeClient: cfg.CloseClient,
	}, nil
}

func (b *Bus) seqKey() string { return "bus:" + b.name + ":seq" }
func (b *Bus) logKey() string { return "bus:" + b.name + ":log" }

// Append assigns the sequence number with INCR and publishes the event in a
// second round trip. ReadSince tolerates the window between the two: it never
// advances a cursor past a sequence number whose event has not landed yet.
func (b *Bus) Append(ctx context.Context, ev bus.Event) (uint64, error) {
	seq, err := b.rdb.Incr(ctx, b.seqKey()).Result()
	if err != nil {
		return 0, err
	}
	ev.Seq = uint64(seq)

	raw, err := msgpack.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("redis bus: encode event: %w", err)
	}

	// One round-trip for append + trim (+ optional key expiry).
	_, err = b.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.RPush(ctx, b.logKey(), raw)
		p.LTrim(ctx, b.logKey(), -b.retention, -1)
		if b.ttl > 0 {
			p.Expire(ctx, b.logKey(), b.ttl)
			p.Expire(ctx, b.seqKey(), b.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return ev.Seq, nil
}

func (b *Bus) ReadSince(ctx context.Context, cursor uint64) ([]bus.Event, uint64, bool, error) {
	head, err := b.Seq(ctx)
	if err != nil {
		return nil, cursor, false, err
	}
	if head <= cursor {
		return nil, cursor, false, nil
	}

	raws, err := b.rdb.LRange(ctx, b.logKey(), 0, -1).Result()
	if err != nil {
		return nil, cursor, false, err
	}

	evs := make([]bus.Event, 0, len(raws))
	for _, raw := range raws {
		var ev bus.Event
		if err := msgpack.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, cursor, false, fmt.Errorf("redis bus: decode event: %w", err)
		}
		evs = append(evs, ev)
	}

	out, next, gapped := collectSince(evs, cursor)
	if gapped {
		// Events newer than the cursor were trimmed from the window; the
		// reader cannot know what it missed.
		return nil, head, true, nil
	}
	return out, next, false, nil
}

// collectSince orders the retained window (concurrent appenders can push out
// of sequence) and advances the cursor only across the contiguous run of
// events actually present. An appender that has claimed a sequence number but
// not yet pushed its event leaves a hole; stopping at the hole makes the next
// read deliver that event instead of skipping past it.
func collectSince(evs []bus.Event, cursor uint64) (out []bus.Event, next uint64, gapped bool) {
	sort.Slice(evs, func(i, j int) bool { return evs[i].Seq < evs[j].Seq })
	if len(evs) == 0 || evs[0].Seq > cursor+1 {
		return nil, cursor, true
	}

	next = cursor
	for _, ev := range evs {
		if ev.Seq <= cursor {
			continue
		}
		if ev.Seq != next+1 {
			break
		}
		out = append(out, ev)
		next++
	}
	return out, next, false
}

func (b *Bus) Seq(ctx context.Context) (uint64, error) {
	res, err := b.rdb.Get(ctx, b.seqKey()).Result()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis bus: seq parse: %w", err)
	}
	return u, nil
}

func (b *Bus) Close(context.Context) error {
	if b.closeClient {
		if err := b.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
