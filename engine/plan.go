package engine

import (
	"sync/atomic"
	"time"

	"github.com/quantfold/tickcat/backend"
	"github.com/quantfold/tickcat/schema"
)

// DefaultTimeField is the record field the time window of a Predicate
// applies to when none is named.
const DefaultTimeField = "ts_event"

// Predicate filters records in a query.
//
// The zero value matches everything. Begin/End bound the record timestamp
// (inclusive begin, inclusive end) read from TimeField.
type Predicate struct {
	InstrumentID string
	Begin, End   time.Time
	TimeField    string
}

func (p Predicate) timeField() string {
	if p.TimeField == "" {
		return DefaultTimeField
	}
	return p.TimeField
}

// Matches reports whether a normalized record satisfies the time window.
// Records without the time field pass; partition-level filtering has
// already restricted them to the right instrument.
func (p Predicate) Matches(rec schema.Record) bool {
	if p.Begin.IsZero() && p.End.IsZero() {
		return true
	}
	ts, ok := rec[p.timeField()].(int64)
	if !ok {
		return true
	}
	if !p.Begin.IsZero() && ts < p.Begin.UnixNano() {
		return false
	}
	if !p.End.IsZero() && ts > p.End.UnixNano() {
		return false
	}
	return true
}

// Plan is the transient output of Router.Plan: an engine choice, the
// predicate, and the sealed segments to scan. A plan is consumed exactly
// once; restart a query by planning again.
type Plan struct {
	Engine    Engine
	Kind      string
	Predicate Predicate
	Backend   backend.Descriptor
	Segments  []string

	consumed atomic.Bool
}

// consume marks the plan as executed and reports whether this caller won.
func (p *Plan) consume() bool {
	return p.consumed.CompareAndSwap(false, true)
}
