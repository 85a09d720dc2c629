// Package engine selects and runs one of the two query execution
// strategies: the embedded native engine (local mmap reads, synchronous)
// and the backend-agnostic generic engine (streams through the blobstore).
//
// The two engines are a capability-tagged variant, not an inheritance
// hierarchy: selection is driven by the backend descriptor's static
// capability flags, never by inspecting the backend at runtime.
package engine

import (
	"fmt"

	"github.com/quantfold/tickcat/backend"
)

// Engine identifies a query execution strategy.
type Engine = backend.Engine

const (
	// Native is the embedded, synchronous engine (local backends only).
	Native = backend.EngineNative
	// Generic is the backend-agnostic engine.
	Generic = backend.EngineGeneric
)

// Preference expresses which engine the caller wants.
type Preference uint8

const (
	// PreferAuto selects the native engine when the backend supports it and
	// falls back to generic otherwise. It never fails for capability
	// reasons.
	PreferAuto Preference = iota
	// PreferNative demands the native engine; planning fails with
	// *CapabilityError on backends that cannot run it. The failure is
	// deliberate: silently switching engines would change performance and
	// consistency characteristics the caller may depend on.
	PreferNative
	// PreferGeneric demands the generic engine.
	PreferGeneric
)

// String returns the stable name of the preference.
func (p Preference) String() string {
	switch p {
	case PreferAuto:
		return "auto"
	case PreferNative:
		return "native"
	case PreferGeneric:
		return "generic"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// CapabilityError indicates a requested engine that the backend cannot
// legally run. It is surfaced immediately and never downgraded.
type CapabilityError struct {
	Protocol  string
	Requested Engine
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf(
		"backend protocol %q cannot run the %s engine: use the generic engine or materialize the data to a local backend first",
		e.Protocol, e.Requested)
}
