package coordinate

import (
	"context"
	"sync"
	"time"
)

// LocalLocker provides in-process named locks. It serializes goroutines
// within one process; it cannot coordinate across processes.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[name] = ch
	}
	return ch
}

// Acquire implements Locker. Waiters are served in whatever order the
// runtime scheduler wakes them; no fairness beyond mutual exclusion.
func (l *LocalLocker) Acquire(ctx context.Context, name, holder string, timeout time.Duration) (*Handle, error) {
	ch := l.slot(name)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return &Handle{Name: name, Holder: holder, AcquiredAt: time.Now(), token: ch}, nil
	case <-timer.C:
		return nil, &TimeoutError{Name: name, Timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release implements Locker.
func (l *LocalLocker) Release(_ context.Context, h *Handle) error {
	ch, ok := h.token.(chan struct{})
	if !ok {
		return nil
	}
	<-ch
	return nil
}
