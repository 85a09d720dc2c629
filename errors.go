package tickcat

import (
	"errors"
	"fmt"

	"github.com/quantfold/tickcat/blobstore"
	"github.com/quantfold/tickcat/coordinate"
	"github.com/quantfold/tickcat/engine"
	"github.com/quantfold/tickcat/partition"
	"github.com/quantfold/tickcat/schema"
)

// The catalog surfaces its subsystem error types under stable names so
// callers only import this package for error handling.
type (
	// SchemaConflictError indicates an incompatible re-registration of a
	// record kind. Fatal at startup, never recovered.
	SchemaConflictError = schema.ConflictError

	// SchemaViolationError indicates a record failing validation; the whole
	// batch containing it is rejected and no partial write occurs.
	SchemaViolationError = schema.ViolationError

	// BackendCapabilityError indicates the native engine was requested
	// against a backend that cannot run it. Never silently downgraded.
	BackendCapabilityError = engine.CapabilityError

	// LockTimeoutError indicates coordination was unavailable within the
	// configured timeout. The partition is unmodified; callers may retry
	// with backoff.
	LockTimeoutError = coordinate.TimeoutError

	// PartitionCorruptionError indicates a sealed partition failing an
	// integrity check on read. The partition is not auto-repaired.
	PartitionCorruptionError = partition.CorruptionError
)

// WriteConflictError indicates two uncoordinated writers raced to create
// the same partition on a backend without a lock service, detected via an
// atomic-rename failure. The existing partition is preserved.
type WriteConflictError struct {
	Path  string
	cause error
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("write conflict: partition %s was sealed by a concurrent writer", e.Path)
}

func (e *WriteConflictError) Unwrap() error { return e.cause }

// translateWriteError maps storage-level failures onto the public error
// contract.
func translateWriteError(key partition.Key, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, blobstore.ErrExists) {
		return &WriteConflictError{Path: key.Path(), cause: err}
	}
	return err
}
