package types

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Store errors. Callers match them with errors.Is.
var (
	ErrNotFound            = errors.New("entity not found")
	ErrValidation          = errors.New("validation failed")
	ErrUninitializedEntity = errors.New("entity has no id")
	ErrSchemaMissing       = errors.New("table does not exist")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrMigrationFailed     = errors.New("migration failed")
	ErrInvalidKind         = errors.New("invalid kind")
	ErrKindMismatch        = errors.New("members must share one kind")
	ErrOutOfRange          = errors.New("position out of range")
)

// Lifecycle errors.
var (
	ErrDetached        = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
)

// ValidationError reports a field value rejected before a write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true for any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
