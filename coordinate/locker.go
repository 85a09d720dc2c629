// Package coordinate serializes concurrent writers so that a partition is
// never left in a corrupted state.
//
// The coordination mode is resolved once at construction time by injecting a
// Locker, never re-probed per operation: NoopLocker when single-process
// execution is already serialized, LocalLocker for in-process concurrency,
// or a distributed named-lock service (see the ddblock subpackage) when
// running under a distributed scheduler.
package coordinate

import (
	"context"
	"fmt"
	"time"
)

// Handle represents a held named lock. It exists only for the duration of a
// write and is never persisted.
type Handle struct {
	Name       string
	Holder     string
	AcquiredAt time.Time

	// token is implementation state needed to release.
	token any
}

// TimeoutError indicates the lock service did not grant the lock within the
// configured timeout. The partition is untouched; callers may retry with
// backoff at their discretion.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("lock %q not acquired within %s", e.Name, e.Timeout)
}

// Locker is a named-lock service.
//
// Only Acquire may block; it must honor ctx cancellation and return
// *TimeoutError when timeout elapses. Fairness among waiters is whatever the
// implementation provides; only mutual exclusion is guaranteed.
type Locker interface {
	Acquire(ctx context.Context, name, holder string, timeout time.Duration) (*Handle, error)
	Release(ctx context.Context, h *Handle) error
}

// NoopLocker grants every acquisition immediately. It is the correct mode
// when the process is the only writer and is therefore already serialized.
type NoopLocker struct{}

// Acquire implements Locker.
func (NoopLocker) Acquire(_ context.Context, name, holder string, _ time.Duration) (*Handle, error) {
	return &Handle{Name: name, Holder: holder, AcquiredAt: time.Now()}, nil
}

// Release implements Locker.
func (NoopLocker) Release(context.Context, *Handle) error { return nil }
