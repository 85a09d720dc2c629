package tickcat

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/quantfold/tickcat/codec"
	"github.com/quantfold/tickcat/coordinate"
	"github.com/quantfold/tickcat/partition"
)

type options struct {
	locker           coordinate.Locker
	codec            codec.Codec
	compression      partition.Compression
	logger           *Logger
	metrics          MetricsCollector
	lockTimeout      time.Duration
	bucket           time.Duration
	holderID         string
	rateLimit        *rate.Limiter
	queryConcurrency int
}

// Option configures catalog constructor behavior.
type Option func(*options)

// WithLocker injects the named-lock service serializing writers.
//
// The coordination mode is resolved here, once, at construction: pass
// coordinate.NoopLocker for single-process use (the default), a
// coordinate.LocalLocker to serialize goroutines, or a ddblock.Locker when
// running under a distributed scheduler. It is never re-probed per write.
func WithLocker(l coordinate.Locker) Option {
	return func(o *options) {
		if l != nil {
			o.locker = l
		}
	}
}

// WithCodec configures the codec used to encode record values in segments.
//
// If nil is passed, codec.Default is used. Sealed segments record the codec
// name in their header, so reading does not depend on this option.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression selects the segment payload compression codec.
// Default: zstd.
func WithCompression(c partition.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithLogger configures structured logging. Pass nil to keep the default
// (discard).
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

// WithLockTimeout bounds each partition lock acquisition. Default: 10s.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithBucketDuration sets the partition time-bucket granularity used by
// KeyFor helpers and query pruning. Default: 1h.
//
// All writers of one catalog must agree on this value; it is part of the
// deterministic partition path.
func WithBucketDuration(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.bucket = d
		}
	}
}

// WithHolderID overrides the identity recorded in lock handles.
// Default: "hostname:pid".
func WithHolderID(id string) Option {
	return func(o *options) {
		o.holderID = id
	}
}

// WithWriteRateLimit throttles how often writes may enter their critical
// section. Useful to keep a backfill from starving live ingest on shared
// storage. Pass nil to disable (the default).
func WithWriteRateLimit(l *rate.Limiter) Option {
	return func(o *options) {
		o.rateLimit = l
	}
}

// WithQueryConcurrency bounds the generic engine's segment prefetch
// fan-out. Default: 4.
func WithQueryConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queryConcurrency = n
		}
	}
}
