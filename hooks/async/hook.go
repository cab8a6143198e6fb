// Package asynchook decouples hook observers from the cache hot path: events
// are queued and delivered by background workers, and dropped when the queue
// is full rather than blocking a Get.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := strata.New[User](strata.Options[User]{
//	    Namespace: "user",
//	    Region:    region,
//	    Codec:     codec.JSON[User]{},
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/strata"
)

type Hooks struct {
	inner strata.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ strata.Hooks = (*Hooks)(nil)

func New(inner strata.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHeal(k, r string)       { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) WriteRetry(k string, n int) { h.try(func() { h.inner.WriteRetry(k, n) }) }
func (h *Hooks) WriteRejected(k string)     { h.try(func() { h.inner.WriteRejected(k) }) }
func (h *Hooks) LockTimeout(k string)       { h.try(func() { h.inner.LockTimeout(k) }) }
func (h *Hooks) Resurrected(k string)       { h.try(func() { h.inner.Resurrected(k) }) }
func (h *Hooks) LoaderPanic(k string)       { h.try(func() { h.inner.LoaderPanic(k) }) }
func (h *Hooks) BusGap(ns string)           { h.try(func() { h.inner.BusGap(ns) }) }
func (h *Hooks) SerializerFailed(k string, err error) {
	h.try(func() { h.inner.SerializerFailed(k, err) })
}
