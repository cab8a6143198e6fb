// Package local provides an in-process Bus for single-process fleets and
// tests: a bounded slice guarded by a mutex, sequence numbers handed out
// under the same lock.
package local

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/strata/bus"
)

type Bus struct {
	mu        sync.Mutex
	events    []bus.Event
	seq       uint64
	retention int
}

var _ bus.Bus = (*Bus)(nil)

// New creates a local bus retaining up to retention events (0 => 4096).
func New(retention int) *Bus {
	if retention <= 0 {
		retention = 4096
	}
	return &Bus{retention: retention}
}

func (b *Bus) Append(_ context.Context, ev bus.Event) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	ev.Seq = b.seq
	b.events = append(b.events, ev)
	if over := len(b.events) - b.retention; over > 0 {
		b.events = append(b.events[:0:0], b.events[over:]...)
	}
	return ev.Seq, nil
}

func (b *Bus) ReadSince(_ context.Context, cursor uint64) ([]bus.Event, uint64, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seq <= cursor {
		return nil, cursor, false, nil
	}

	var out []bus.Event
	for _, ev := range b.events {
		if ev.Seq > cursor {
			out = append(out, ev)
		}
	}

	gapped := len(b.events) == 0 || b.events[0].Seq > cursor+1
	return out, b.seq, gapped, nil
}

func (b *Bus) Seq(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq, nil
}

func (b *Bus) Close(context.Context) error { return nil }
