package strata

import (
	"fmt"

	"github.com/unkn0wn-root/strata/lock"
)

// ErrLockTimeout is returned by Get when the per-key loader lock could not be
// acquired in time and no previous value exists to fall back on.
var ErrLockTimeout = lock.ErrTimeout

// StoreError reports a shared-region failure. Op is one of "get", "set",
// "delete", "purge", "publish". Reads never silently serve corrupted data:
// a decode failure surfaces as a StoreError (after the bad entry is deleted).
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("strata: store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// LoaderError wraps a failure of the caller-supplied loader, including
// panics captured by the invocation boundary.
type LoaderError struct {
	Key      string
	Err      error
	Panicked bool
}

func (e *LoaderError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("strata: loader for %q panicked: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("strata: loader for %q failed: %v", e.Key, e.Err)
}

func (e *LoaderError) Unwrap() error { return e.Err }

// SerializerError wraps a failure of the L2->L1 serializer transform.
type SerializerError struct {
	Key string
	Err error
}

func (e *SerializerError) Error() string {
	return fmt.Sprintf("strata: serializer for %q failed: %v", e.Key, e.Err)
}

func (e *SerializerError) Unwrap() error { return e.Err }
