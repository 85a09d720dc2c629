package coordinate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantfold/tickcat/partition"
)

// Options configures a Coordinator.
type Options struct {
	// Timeout bounds each lock acquisition. Default: 10s.
	Timeout time.Duration
	// HolderID identifies this process in lock handles. Default:
	// "hostname:pid".
	HolderID string
	// RateLimit, when set, throttles how often write operations may enter
	// their critical section. Nil disables limiting.
	RateLimit *rate.Limiter
	// Logger receives lock wait diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Coordinator guarantees at-most-one active writer per partition key.
//
// State machine per key: UNLOCKED -> LOCKED(holder) -> UNLOCKED. The
// coordinator never retries acquisition internally, to keep blocking
// behavior predictable.
type Coordinator struct {
	locker  Locker
	timeout time.Duration
	holder  string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Coordinator around the given lock service.
func New(locker Locker, optFns ...func(*Options)) *Coordinator {
	opts := Options{Timeout: 10 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HolderID == "" {
		host, _ := os.Hostname()
		opts.HolderID = fmt.Sprintf("%s:%d", host, os.Getpid())
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		locker:  locker,
		timeout: opts.Timeout,
		holder:  opts.HolderID,
		limiter: opts.RateLimit,
		logger:  opts.Logger,
	}
}

// HolderID returns the identity used for lock handles.
func (c *Coordinator) HolderID() string { return c.holder }

// WithLock runs op while holding the named lock for key.
//
// The lock is released on every exit path, including when op fails or the
// caller is cancelled mid-operation. A caller cancelled before acquisition
// never enters the critical section. op must stage its changes and finalize
// atomically so that a failure leaves the partition in its pre-call state.
func (c *Coordinator) WithLock(ctx context.Context, key partition.Key, op func(ctx context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	name := key.LockName()
	start := time.Now()
	h, err := c.locker.Acquire(ctx, name, c.holder, c.timeout)
	if err != nil {
		return err
	}
	if wait := time.Since(start); wait > time.Second {
		c.logger.Warn("slow lock acquisition", "lock", name, "wait", wait)
	}
	defer func() {
		// Release must not be lost to the caller's cancellation.
		if err := c.locker.Release(context.WithoutCancel(ctx), h); err != nil {
			c.logger.Error("lock release failed", "lock", name, "holder", h.Holder, "error", err)
		}
	}()

	return op(ctx)
}
