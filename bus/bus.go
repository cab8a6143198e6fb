// Package bus defines the append-only invalidation log that propagates
// Set/Delete/Purge events across a worker fleet. Events carry monotonically
// increasing sequence numbers; each worker keeps its own cursor, so replay is
// idempotent and concurrent readers need no coordination. Retention is
// bounded: a reader whose cursor predates the retained window is told so via
// gapped and must assume it missed events.
package bus

import "context"

// Kind discriminates invalidation events.
type Kind uint8

const (
	KindSet Kind = iota + 1
	KindDelete
	KindPurge // Key is empty; the whole namespace was cleared
)

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindDelete:
		return "delete"
	case KindPurge:
		return "purge"
	default:
		return "unknown"
	}
}

// Event is one invalidation record. Seq is assigned by the bus on Append.
type Event struct {
	Namespace string `msgpack:"n"`
	Key       string `msgpack:"k"`
	Kind      Kind   `msgpack:"t"`
	Seq       uint64 `msgpack:"s"`
}

// Bus is an append-only cross-worker event log read via sequence cursors.
type Bus interface {
	// Append assigns the next sequence number to ev, appends it, and
	// returns the assigned number.
	Append(ctx context.Context, ev Event) (uint64, error)

	// ReadSince returns every retained event with Seq > cursor, in order,
	// plus the new cursor. gapped is true when events newer than cursor
	// have already been trimmed from the retention window.
	ReadSince(ctx context.Context, cursor uint64) (events []Event, next uint64, gapped bool, err error)

	// Seq returns the highest sequence number assigned so far (0 if none).
	Seq(ctx context.Context) (uint64, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
