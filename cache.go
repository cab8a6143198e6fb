package strata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/strata/bus"
	cd "github.com/unkn0wn-root/strata/codec"
	"github.com/unkn0wn-root/strata/internal/util"
	"github.com/unkn0wn-root/strata/internal/wire"
	"github.com/unkn0wn-root/strata/lock"
	"github.com/unkn0wn-root/strata/lock/local"
	pr "github.com/unkn0wn-root/strata/provider"
)

const (
	defaultL1Capacity  = int64(1024)
	defaultTTL         = 10 * time.Minute
	defaultNegTTL      = time.Minute
	defaultWriteRetry  = 2
	defaultLockTTL     = 30 * time.Second
	defaultLockTimeout = 5 * time.Second
)

// flightResult carries a collapsed miss-path outcome between goroutines of
// the same process.
type flightResult[V any] struct {
	val   V
	found bool
	lvl   HitLevel
}

type cache[V any] struct {
	ns        string
	region    pr.Provider
	negRegion pr.Provider // nil => region
	codec     cd.Codec[V]
	locker    lock.Locker
	bus       bus.Bus
	log       Logger
	hooks     Hooks

	l1         *l1cache[V] // nil when disabled
	serializer Serializer[V]

	defaultTTL   time.Duration
	negTTL       time.Duration
	resurrectTTL time.Duration
	writeRetry   int
	lockTTL      time.Duration
	lockTimeout  time.Duration

	// collapses same-key misses in-process before the fleet lock
	flight singleflight.Group

	cursorMu sync.Mutex
	cursor   uint64

	now func() time.Time
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("strata: namespace is required")
	}
	if opts.Region == nil {
		return nil, fmt.Errorf("strata: region is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("strata: codec is required")
	}

	cc := &cache[V]{
		ns:         opts.Namespace,
		region:     opts.Region,
		codec:      opts.Codec,
		bus:        opts.Bus,
		serializer: opts.Serializer,
		now:        time.Now,
	}

	// defaults
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultTTL)
	cc.negTTL = coalesce[time.Duration](opts.NegativeTTL, defaultNegTTL)
	cc.resurrectTTL = opts.ResurrectTTL
	cc.writeRetry = coalesce[int](opts.WriteRetryBudget, defaultWriteRetry)
	cc.lockTTL = coalesce[time.Duration](opts.LockTTL, defaultLockTTL)
	cc.lockTimeout = coalesce[time.Duration](opts.LockTimeout, defaultLockTimeout)

	if opts.NegativeRegion != nil && opts.NegativeRegion != opts.Region {
		cc.negRegion = opts.NegativeRegion
	}

	if opts.Locker != nil {
		cc.locker = opts.Locker
	} else {
		cc.locker = local.New()
		cc.log.Debug("no locker configured; using in-process locks", Fields{"ns": cc.ns})
	}

	if !opts.DisableL1 {
		capacity := coalesce[int64](opts.L1Capacity, defaultL1Capacity)
		l1, err := newL1[V](capacity)
		if err != nil {
			return nil, fmt.Errorf("strata: l1: %w", err)
		}
		cc.l1 = l1
	}

	// Start the invalidation cursor at the bus head so a fresh worker does
	// not replay history into an empty L1.
	if cc.bus != nil {
		seq, err := cc.bus.Seq(context.Background())
		if err != nil {
			cc.log.Warn("bus head unavailable; cursor starts at 0", Fields{"ns": cc.ns, "err": err})
		}
		cc.cursor = seq
	}

	return cc, nil
}

func (c *cache[V]) Close(ctx context.Context) error {
	if c.l1 != nil {
		c.l1.close()
	}
	if c.bus != nil {
		_ = c.bus.Close(ctx)
	}
	if c.locker != nil {
		_ = c.locker.Close(ctx)
	}
	if c.negRegion != nil {
		_ = c.negRegion.Close(ctx)
	}
	return c.region.Close(ctx)
}

func (c *cache[V]) callOpts(opts []CallOption) callOptions {
	co := callOptions{
		ttl:         c.defaultTTL,
		negTTL:      c.negTTL,
		lockTimeout: c.lockTimeout,
	}
	for _, o := range opts {
		o(&co)
	}
	return co
}

// expiryFor maps a logical TTL to an absolute expiry (0 = never) and the
// physical store TTL. With resurrection enabled the body is physically
// retained past its logical expiry so a failing loader can re-serve it.
func (c *cache[V]) expiryFor(ttl time.Duration) (expiresAt int64, phys time.Duration) {
	if ttl < 0 { // NeverExpires
		return 0, 0
	}
	phys = ttl
	if c.resurrectTTL > 0 {
		phys += c.resurrectTTL
	}
	return c.now().Add(ttl).UnixNano(), phys
}

func (c *cache[V]) Get(ctx context.Context, key string, load Loader[V], opts ...CallOption) (V, bool, HitLevel, error) {
	var zero V
	co := c.callOpts(opts)
	sk := util.EntryKey(c.ns, key)

	if c.l1 != nil {
		if e, ok := c.l1.get(sk); ok {
			if e.negative {
				return zero, false, HitL1, nil
			}
			if e.stale {
				return e.val, true, HitStale, nil
			}
			return e.val, true, HitL1, nil
		}
	}

	ent, ok, err := c.readEntry(ctx, key, sk)
	if err != nil {
		return zero, false, 0, err
	}
	if ok && !ent.Expired(c.now()) {
		v, found, lvl, err := c.promote(ctx, key, sk, ent)
		if err != nil {
			return zero, false, 0, err
		}
		return v, found, lvl, nil
	}

	res, err, _ := c.flight.Do(sk, func() (any, error) {
		v, found, lvl, err := c.loadUnderLock(ctx, key, sk, load, co)
		if err != nil {
			return nil, err
		}
		return flightResult[V]{val: v, found: found, lvl: lvl}, nil
	})
	if err != nil {
		return zero, false, 0, err
	}
	r := res.(flightResult[V])
	return r.val, r.found, r.lvl, nil
}

// loadUnderLock is the miss path: acquire the fleet-wide key lock, re-check
// the shared region (the previous holder's result may have landed), then run
// the loader.
func (c *cache[V]) loadUnderLock(ctx context.Context, key, sk string, load Loader[V], co callOptions) (V, bool, HitLevel, error) {
	var zero V
	h, err := c.locker.Acquire(ctx, util.LockKey(c.ns, key), c.lockTTL, co.lockTimeout)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return c.afterLockTimeout(ctx, key, sk)
		}
		return zero, false, 0, err
	}
	defer func() {
		if rerr := c.locker.Release(ctx, h); rerr != nil {
			c.log.Warn("lock release failed", Fields{"key": key, "err": rerr})
		}
	}()

	ent, ok, err := c.readEntry(ctx, key, sk)
	if err != nil {
		return zero, false, 0, err
	}
	if ok && !ent.Expired(c.now()) {
		v, found, lvl, err := c.promote(ctx, key, sk, ent)
		if err != nil {
			return zero, false, 0, err
		}
		return v, found, lvl, nil
	}

	return c.invokeLoader(ctx, key, sk, load, co)
}

// afterLockTimeout degrades a timed-out waiter: the winner's result may have
// landed, and failing that a physically retained stale body may be served.
// Only the lock holder resurrects; serving here never rewrites the region.
func (c *cache[V]) afterLockTimeout(ctx context.Context, key, sk string) (V, bool, HitLevel, error) {
	var zero V
	c.hooks.LockTimeout(key)

	ent, ok, err := c.readEntry(ctx, key, sk)
	if err != nil {
		return zero, false, 0, err
	}
	if ok {
		if !ent.Expired(c.now()) {
			v, found, lvl, err := c.promote(ctx, key, sk, ent)
			if err != nil {
				return zero, false, 0, err
			}
			return v, found, lvl, nil
		}
		if c.resurrectTTL > 0 && !ent.Negative() {
			v, err := c.decodeValue(ctx, key, sk, ent)
			if err != nil {
				return zero, false, 0, err
			}
			c.log.Debug("lock timeout; serving stale value", Fields{"key": key})
			return v, true, HitStale, nil
		}
	}
	return zero, false, 0, ErrLockTimeout
}

// invokeLoader runs the caller-supplied fetch inside a recover boundary and
// interprets its outcome: populate, negative-cache, or resurrect.
func (c *cache[V]) invokeLoader(ctx context.Context, key, sk string, load Loader[V], co callOptions) (V, bool, HitLevel, error) {
	var zero V
	v, found, ttl, lerr := c.safeLoad(ctx, key, load)
	if lerr != nil {
		return c.afterLoaderFailure(ctx, key, sk, lerr)
	}

	if !found {
		expiresAt, phys := c.expiryFor(co.negTTL)
		ent := wire.Entry{Flags: wire.FlagNegative, ExpiresAt: expiresAt}
		if err := c.writeEntry(ctx, key, sk, ent, phys); err != nil {
			return zero, false, 0, err
		}
		if c.l1 != nil {
			negTTL := co.negTTL
			if negTTL < 0 {
				negTTL = 0
			}
			c.l1.set(sk, l1Entry[V]{negative: true}, negTTL)
		}
		return zero, false, HitLoad, nil
	}

	if ttl == 0 {
		ttl = co.ttl
	}
	payload, err := c.codec.Encode(v)
	if err != nil {
		return zero, false, 0, err
	}
	expiresAt, phys := c.expiryFor(ttl)
	ent := wire.Entry{ExpiresAt: expiresAt, Payload: payload}
	if err := c.writeEntry(ctx, key, sk, ent, phys); err != nil {
		return zero, false, 0, err
	}

	mv, err := c.applySerializer(key, v)
	if err != nil {
		return zero, false, 0, err
	}
	if c.l1 != nil {
		l1TTL := ttl
		if l1TTL < 0 {
			l1TTL = 0
		}
		c.l1.set(sk, l1Entry[V]{val: mv}, l1TTL)
	}
	return mv, true, HitLoad, nil
}

// afterLoaderFailure resurrects the previous value when configured, else
// propagates the loader error. Repeated failures re-extend the stale window.
func (c *cache[V]) afterLoaderFailure(ctx context.Context, key, sk string, lerr error) (V, bool, HitLevel, error) {
	var zero V
	if c.resurrectTTL <= 0 {
		return zero, false, 0, lerr
	}

	prev, ok, err := c.readEntry(ctx, key, sk)
	if err != nil || !ok || prev.Negative() {
		if err != nil {
			c.log.Warn("resurrection read failed", Fields{"key": key, "err": err})
		}
		return zero, false, 0, lerr
	}

	expiresAt, phys := c.expiryFor(c.resurrectTTL)
	ent := wire.Entry{Flags: wire.FlagStale, ExpiresAt: expiresAt, Payload: prev.Payload}
	if werr := c.writeEntry(ctx, key, sk, ent, phys); werr != nil {
		return zero, false, 0, werr
	}
	c.hooks.Resurrected(key)
	c.log.Warn("loader failed; resurrected previous value", Fields{"key": key, "err": lerr})

	v, derr := c.decodeValue(ctx, key, sk, ent)
	if derr != nil {
		return zero, false, 0, derr
	}
	mv, serr := c.applySerializer(key, v)
	if serr != nil {
		return zero, false, 0, serr
	}
	if c.l1 != nil {
		c.l1.set(sk, l1Entry[V]{val: mv, stale: true}, c.resurrectTTL)
	}
	return mv, true, HitStale, nil
}

// safeLoad runs the loader behind a recover boundary so a panicking callback
// is captured as a LoaderError instead of terminating the worker.
func (c *cache[V]) safeLoad(ctx context.Context, key string, load Loader[V]) (v V, found bool, ttl time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.hooks.LoaderPanic(key)
			err = &LoaderError{Key: key, Err: fmt.Errorf("panic: %v", r), Panicked: true}
		}
	}()
	v, found, ttl, err = load(ctx)
	if err != nil {
		err = &LoaderError{Key: key, Err: err}
	}
	return
}

func (c *cache[V]) Peek(ctx context.Context, key string) (time.Duration, bool, V, error) {
	var zero V
	sk := util.EntryKey(c.ns, key)

	ent, ok, err := c.readEntry(ctx, key, sk)
	if err != nil || !ok {
		return 0, false, zero, err
	}
	now := c.now()
	if ent.Expired(now) {
		return 0, false, zero, nil
	}

	var ttl time.Duration
	if ent.ExpiresAt != 0 {
		ttl = ent.Remaining(now)
	}
	if ent.Negative() {
		return ttl, true, zero, nil
	}
	v, err := c.decodeValue(ctx, key, sk, ent)
	if err != nil {
		return 0, false, zero, err
	}
	return ttl, true, v, nil
}

func (c *cache[V]) Set(ctx context.Context, key string, value V, opts ...CallOption) error {
	co := c.callOpts(opts)
	sk := util.EntryKey(c.ns, key)

	payload, err := c.codec.Encode(value)
	if err != nil {
		return err
	}
	expiresAt, phys := c.expiryFor(co.ttl)
	ent := wire.Entry{ExpiresAt: expiresAt, Payload: payload}
	if err := c.writeEntry(ctx, key, sk, ent, phys); err != nil {
		return err
	}
	return c.publish(ctx, bus.Event{Namespace: c.ns, Key: key, Kind: bus.KindSet})
}

func (c *cache[V]) Delete(ctx context.Context, key string) error {
	sk := util.EntryKey(c.ns, key)
	if err := c.region.Del(ctx, sk); err != nil {
		return &StoreError{Op: "delete", Key: key, Err: err}
	}
	if c.negRegion != nil {
		if err := c.negRegion.Del(ctx, sk); err != nil {
			return &StoreError{Op: "delete", Key: key, Err: err}
		}
	}
	return c.publish(ctx, bus.Event{Namespace: c.ns, Key: key, Kind: bus.KindDelete})
}

func (c *cache[V]) Purge(ctx context.Context, flushExpired bool) error {
	if c.l1 != nil {
		c.l1.clear()
	}
	prefix := util.EntryPrefix(c.ns)
	if err := c.region.DelPrefix(ctx, prefix); err != nil {
		return &StoreError{Op: "purge", Key: c.ns, Err: err}
	}
	if c.negRegion != nil {
		if err := c.negRegion.DelPrefix(ctx, prefix); err != nil {
			return &StoreError{Op: "purge", Key: c.ns, Err: err}
		}
	}
	if flushExpired {
		if comp, ok := c.region.(pr.Compacter); ok {
			if err := comp.FlushExpired(ctx); err != nil {
				return &StoreError{Op: "purge", Key: c.ns, Err: err}
			}
		}
		if comp, ok := c.negRegion.(pr.Compacter); ok {
			if err := comp.FlushExpired(ctx); err != nil {
				return &StoreError{Op: "purge", Key: c.ns, Err: err}
			}
		}
	}
	return c.publish(ctx, bus.Event{Namespace: c.ns, Kind: bus.KindPurge})
}

func (c *cache[V]) Update(ctx context.Context) error {
	if c.bus == nil {
		return nil
	}
	c.cursorMu.Lock()
	defer c.cursorMu.Unlock()

	events, next, gapped, err := c.bus.ReadSince(ctx, c.cursor)
	if err != nil {
		return err
	}
	if gapped {
		// cannot know which keys were invalidated; drop everything local
		c.hooks.BusGap(c.ns)
		if c.l1 != nil {
			c.l1.clear()
		}
		c.cursor = next
		c.log.Warn("invalidation cursor behind retention; cleared L1", Fields{"ns": c.ns})
		return nil
	}

	for _, ev := range events {
		if ev.Namespace != c.ns {
			continue
		}
		if c.l1 == nil {
			continue
		}
		if ev.Kind == bus.KindPurge {
			c.l1.clear()
			continue
		}
		c.l1.evict(util.EntryKey(c.ns, ev.Key))
	}
	c.cursor = next
	return nil
}

func (c *cache[V]) publish(ctx context.Context, ev bus.Event) error {
	if c.bus == nil {
		return nil
	}
	if _, err := c.bus.Append(ctx, ev); err != nil {
		return &StoreError{Op: "publish", Key: ev.Key, Err: err}
	}
	return nil
}

// readEntry reads and validates the stored frame for sk, checking the main
// region first and the negative region if one is configured. Corrupt frames
// are deleted (self-heal) and surfaced: the cache never silently serves bad
// data. Logical expiry is NOT applied here; callers decide.
func (c *cache[V]) readEntry(ctx context.Context, key, sk string) (wire.Entry, bool, error) {
	regions := []pr.Provider{c.region}
	if c.negRegion != nil {
		regions = append(regions, c.negRegion)
	}
	for _, reg := range regions {
		raw, ok, err := reg.Get(ctx, sk)
		if err != nil {
			return wire.Entry{}, false, &StoreError{Op: "get", Key: key, Err: err}
		}
		if !ok {
			continue
		}
		ent, err := wire.Decode(raw)
		if err != nil {
			_ = reg.Del(ctx, sk)
			c.hooks.SelfHeal(sk, "corrupt")
			return wire.Entry{}, false, &StoreError{Op: "get", Key: key, Err: err}
		}
		return ent, true, nil
	}
	return wire.Entry{}, false, nil
}

// decodeValue decodes a positive entry's payload. A decode failure deletes
// the entry and surfaces a StoreError.
func (c *cache[V]) decodeValue(ctx context.Context, key, sk string, ent wire.Entry) (V, error) {
	v, err := c.codec.Decode(ent.Payload)
	if err != nil {
		var zero V
		_ = c.region.Del(ctx, sk)
		if c.negRegion != nil {
			_ = c.negRegion.Del(ctx, sk)
		}
		c.hooks.SelfHeal(sk, "value_decode")
		return zero, &StoreError{Op: "get", Key: key, Err: err}
	}
	return v, nil
}

// promote materializes an L2 entry into L1 (through the serializer) and
// returns it. found=false for negative entries. Resurrected entries keep
// reporting HitStale until replaced.
func (c *cache[V]) promote(ctx context.Context, key, sk string, ent wire.Entry) (V, bool, HitLevel, error) {
	var zero V
	lvl := HitL2
	if ent.Stale() {
		lvl = HitStale
	}
	remaining := ent.Remaining(c.now())
	if remaining < 0 {
		remaining = 0
	}

	if ent.Negative() {
		if c.l1 != nil {
			c.l1.set(sk, l1Entry[V]{negative: true}, remaining)
		}
		return zero, false, lvl, nil
	}

	v, err := c.decodeValue(ctx, key, sk, ent)
	if err != nil {
		return zero, false, 0, err
	}
	mv, err := c.applySerializer(key, v)
	if err != nil {
		return zero, false, 0, err
	}
	if c.l1 != nil {
		c.l1.set(sk, l1Entry[V]{val: mv, stale: ent.Stale()}, remaining)
	}
	return mv, true, lvl, nil
}

func (c *cache[V]) applySerializer(key string, v V) (V, error) {
	if c.serializer == nil {
		return v, nil
	}
	mv, err := c.serializer(v)
	if err != nil {
		var zero V
		c.hooks.SerializerFailed(key, err)
		return zero, &SerializerError{Key: key, Err: err}
	}
	return mv, nil
}

// writeEntry frames and stores an entry, retrying under pressure up to the
// configured budget. Between attempts a Reclaimer region may free space by
// evicting its oldest entries. Exhaustion loses the value but never corrupts.
func (c *cache[V]) writeEntry(ctx context.Context, key, sk string, ent wire.Entry, phys time.Duration) error {
	reg := c.region
	if ent.Negative() && c.negRegion != nil {
		reg = c.negRegion
	}
	raw := wire.Encode(ent)

	var lastErr error
	for attempt := 0; attempt <= c.writeRetry; attempt++ {
		if attempt > 0 {
			c.hooks.WriteRetry(sk, attempt)
			if rec, ok := reg.(pr.Reclaimer); ok {
				if rerr := rec.Reclaim(ctx, util.EntryPrefix(c.ns)); rerr != nil {
					c.log.Debug("region reclaim failed", Fields{"key": key, "err": rerr})
				}
			}
		}
		ok, err := reg.Set(ctx, sk, raw, int64(len(raw)), phys)
		if err == nil && ok {
			// keep the single-authoritative-entry invariant across regions
			if c.negRegion != nil {
				other := c.negRegion
				if reg == c.negRegion {
					other = c.region
				}
				_ = other.Del(ctx, sk)
			}
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = errors.New("region rejected write under pressure")
		}
	}
	c.hooks.WriteRejected(sk)
	return &StoreError{Op: "set", Key: key, Err: lastErr}
}
