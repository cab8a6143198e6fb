package strata

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A stored frame failed validation on read and was deleted.
	// reason is "corrupt" or "value_decode".
	SelfHeal(storageKey, reason string)

	// A region write failed or was rejected; attempt starts at 1 for the
	// first retry.
	WriteRetry(storageKey string, attempt int)

	// The write-retry budget is exhausted; the value was not stored.
	WriteRejected(storageKey string)

	// A caller gave up waiting for the per-key loader lock.
	LockTimeout(key string)

	// The loader failed and the previous value was re-served as stale.
	Resurrected(key string)

	// The caller-supplied loader panicked (captured, not propagated).
	LoaderPanic(key string)

	// The invalidation cursor fell out of the bus retention window;
	// the local L1 was cleared wholesale.
	BusGap(namespace string)

	// The L2->L1 serializer transform failed; nothing entered L1.
	SerializerFailed(key string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)        {}
func (NopHooks) WriteRetry(string, int)         {}
func (NopHooks) WriteRejected(string)           {}
func (NopHooks) LockTimeout(string)             {}
func (NopHooks) Resurrected(string)             {}
func (NopHooks) LoaderPanic(string)             {}
func (NopHooks) BusGap(string)                  {}
func (NopHooks) SerializerFailed(string, error) {}
