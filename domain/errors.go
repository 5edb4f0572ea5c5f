package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrStoreUnavailable wraps transport failures talking to the record store.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("not found")
	ErrValidationFailed = errors.New("validation failed")

	// The store answered but did not confirm the change.
	ErrCreateFailed = errors.New("create failed")
	ErrUpdateFailed = errors.New("update failed")
	ErrDeleteFailed = errors.New("delete failed")

	// ErrLoadFailed marks a list fetch that could not be completed, so an
	// empty board is never mistaken for a failed one.
	ErrLoadFailed = errors.New("load failed")

	// ErrReorderIncomplete is returned when some order changes were not persisted.
	ErrReorderIncomplete = errors.New("reorder incomplete")
)

// ValidationError carries field level rejections keyed by entity field name.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// Invalid is a shorthand for a single rejected field.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidationFailed.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
