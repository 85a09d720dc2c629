package schema

import (
	"fmt"
	"sort"
	"sync"
)

// ConflictError indicates an incompatible re-registration of a record kind.
// This is a programming/config error and is fatal at startup.
type ConflictError struct {
	Kind string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("schema conflict: kind %q is already registered with a different schema", e.Kind)
}

// ViolationError indicates a record that fails validation against its
// registered schema. It names the first missing or mistyped field; the whole
// batch containing the record must be rejected.
type ViolationError struct {
	Kind   string
	Field  string
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("schema violation: kind %q field %q: %s", e.Kind, e.Field, e.Reason)
}

// Registry owns all RecordSchema instances for the process lifetime.
// Register at startup; validation is lock-cheap (RLock) in steady state.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*RecordSchema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*RecordSchema)}
}

// Register registers the schema for kind.
//
// Registering an identical schema again is an idempotent no-op. Registering
// a different schema for an already-registered kind fails with
// *ConflictError.
func (r *Registry) Register(kind string, s *RecordSchema) error {
	if kind == "" {
		return fmt.Errorf("schema: kind must not be empty")
	}
	if s == nil {
		return fmt.Errorf("schema: nil schema for kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.schemas[kind]; ok {
		if existing.Equal(s) {
			return nil
		}
		return &ConflictError{Kind: kind}
	}
	r.schemas[kind] = s
	return nil
}

// Lookup returns the schema registered for kind.
func (r *Registry) Lookup(kind string) (*RecordSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[kind]
	return s, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Validate checks rec against the schema registered for kind and returns its
// values coerced to canonical types, in schema field order.
//
// The first missing or mistyped field (in schema order) fails validation
// with *ViolationError. Fields not present in the schema are violations too.
func (r *Registry) Validate(kind string, rec Record) ([]any, error) {
	s, ok := r.Lookup(kind)
	if !ok {
		return nil, &ViolationError{Kind: kind, Reason: "kind is not registered"}
	}

	vals := make([]any, len(s.fields))
	for i, f := range s.fields {
		raw, ok := rec[f.Name]
		if !ok {
			return nil, &ViolationError{Kind: kind, Field: f.Name, Reason: "missing field"}
		}
		v, ok := coerce(f.Type, raw)
		if !ok {
			return nil, &ViolationError{
				Kind:   kind,
				Field:  f.Name,
				Reason: fmt.Sprintf("value %v (%T) is not a valid %s", raw, raw, f.Type),
			}
		}
		vals[i] = v
	}

	if len(rec) != len(s.fields) {
		for _, name := range sortedKeys(rec) {
			if _, ok := s.index[name]; !ok {
				return nil, &ViolationError{Kind: kind, Field: name, Reason: "field not in schema"}
			}
		}
	}
	return vals, nil
}

// Normalize validates rec and returns it rebuilt with canonical value types.
func (r *Registry) Normalize(kind string, rec Record) (Record, error) {
	vals, err := r.Validate(kind, rec)
	if err != nil {
		return nil, err
	}
	s, _ := r.Lookup(kind)
	return s.RecordFromValues(vals)
}

func sortedKeys(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
