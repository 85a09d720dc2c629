package tickcat

import (
	"sync/atomic"
	"time"

	"github.com/quantfold/tickcat/engine"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordWrite is called after each write operation. records is the
	// batch size attempted, err is nil on success.
	RecordWrite(kind string, records int, duration time.Duration, err error)

	// RecordQuery is called after each query is planned. eng is the engine
	// the router selected (zero when planning failed).
	RecordQuery(kind string, eng engine.Engine, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordWrite(string, int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordQuery(string, engine.Engine, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	WriteCount      atomic.Int64
	WriteErrors     atomic.Int64
	WriteRecords    atomic.Int64
	WriteTotalNanos atomic.Int64
	QueryCount      atomic.Int64
	QueryErrors     atomic.Int64
	QueryNative     atomic.Int64
	QueryGeneric    atomic.Int64
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(_ string, records int, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
		return
	}
	b.WriteRecords.Add(int64(records))
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(_ string, eng engine.Engine, _ time.Duration, err error) {
	b.QueryCount.Add(1)
	if err != nil {
		b.QueryErrors.Add(1)
		return
	}
	switch eng {
	case engine.Native:
		b.QueryNative.Add(1)
	case engine.Generic:
		b.QueryGeneric.Add(1)
	}
}
