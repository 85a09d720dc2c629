// Package schema holds the fixed field layouts for each record kind and
// validates records before they are admitted to a write.
//
// Schemas are immutable once registered. Re-registering an identical schema
// is a no-op; re-registering a conflicting schema for the same kind is an
// error. The registry is initialized at startup and read-mostly thereafter.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// FieldType is the primitive semantic type of a schema field.
type FieldType uint8

const (
	// TypeString is a UTF-8 string (also used for serialized decimals).
	TypeString FieldType = iota + 1
	// TypeFloat64 is a 64-bit float.
	TypeFloat64
	// TypeInt64 is a 64-bit signed integer.
	TypeInt64
	// TypeTimestampNanos is a nanosecond UNIX timestamp, normalized to int64.
	TypeTimestampNanos
	// TypeBool is a boolean.
	TypeBool
)

// String returns the stable name of the field type.
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeFloat64:
		return "float64"
	case TypeInt64:
		return "int64"
	case TypeTimestampNanos:
		return "timestamp_ns"
	case TypeBool:
		return "bool"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Field is a single named, typed column of a record kind.
type Field struct {
	Name string
	Type FieldType
}

// RecordSchema is an ordered field layout for one record kind.
// It is immutable after construction.
type RecordSchema struct {
	fields []Field
	index  map[string]int
}

// New builds a RecordSchema from the given fields, preserving order.
func New(fields ...Field) (*RecordSchema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema: at least one field is required")
	}
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema: field %d has an empty name", i)
		}
		if f.Type < TypeString || f.Type > TypeBool {
			return nil, fmt.Errorf("schema: field %q has invalid type %d", f.Name, f.Type)
		}
		if _, ok := index[f.Name]; ok {
			return nil, fmt.Errorf("schema: duplicate field %q", f.Name)
		}
		index[f.Name] = i
	}
	return &RecordSchema{fields: append([]Field(nil), fields...), index: index}, nil
}

// MustNew is like New but panics on error. Intended for startup registration.
func MustNew(fields ...Field) *RecordSchema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns a copy of the ordered field layout.
func (s *RecordSchema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// NumFields returns the number of fields.
func (s *RecordSchema) NumFields() int { return len(s.fields) }

// Equal reports whether two schemas have identical fields in identical order.
func (s *RecordSchema) Equal(o *RecordSchema) bool {
	if o == nil || len(s.fields) != len(o.fields) {
		return false
	}
	for i, f := range s.fields {
		if o.fields[i] != f {
			return false
		}
	}
	return true
}

// Record is a record at the API boundary, keyed by field name.
type Record map[string]any

// RecordFromValues rebuilds a Record from values in schema field order.
// It is the inverse of Registry.Validate.
func (s *RecordSchema) RecordFromValues(vals []any) (Record, error) {
	if len(vals) != len(s.fields) {
		return nil, fmt.Errorf("schema: got %d values, want %d", len(vals), len(s.fields))
	}
	rec := make(Record, len(vals))
	for i, f := range s.fields {
		rec[f.Name] = vals[i]
	}
	return rec, nil
}

// coerce normalizes v to the canonical Go representation of t:
// string, float64, int64, int64 (nanos) or bool.
//
// json.Number inputs are accepted for the numeric types because segment
// payloads decode with number fidelity enabled; int64 and timestamp values
// go through strconv so nanosecond timestamps above 2^53 survive exactly.
// Integral float64 inputs are still accepted for callers that decoded JSON
// without UseNumber.
func coerce(t FieldType, v any) (any, bool) {
	switch t {
	case TypeString:
		s, ok := v.(string)
		return s, ok
	case TypeFloat64:
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		case int32:
			return float64(n), true
		case int64:
			return float64(n), true
		case json.Number:
			f, err := n.Float64()
			return f, err == nil
		}
		return nil, false
	case TypeInt64:
		return coerceInt64(v)
	case TypeTimestampNanos:
		if ts, ok := v.(time.Time); ok {
			return ts.UnixNano(), true
		}
		return coerceInt64(v)
	case TypeBool:
		b, ok := v.(bool)
		return b, ok
	}
	return nil, false
}

func coerceInt64(v any) (any, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if math.Trunc(n) == n && !math.IsInf(n, 0) {
			return int64(n), true
		}
	}
	return nil, false
}
