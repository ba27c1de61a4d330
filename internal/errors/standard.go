// Package errors provides standardized error messaging for segheap's
// allocator, checker, and CLI.
package errors

import (
	"fmt"
	"runtime"
)

// ErrorCategory groups a StandardError's Code by the subsystem that
// raised it.
type ErrorCategory string

const (
	CategoryMemory     ErrorCategory = "memory"
	CategoryValidation ErrorCategory = "validation"
	CategorySystem     ErrorCategory = "system"
)

// StandardError is a dotted "<category>.<code>" error carrying the
// name of the function that called NewStandardError, derived from
// runtime.Caller rather than a hand-maintained string. For errors built
// by the constructors below that is the constructor itself (e.g.
// HeapCorruption); for a package-level error value it is that package's
// initializer.
type StandardError struct {
	Code    string
	Message string
	Caller  string
}

// Error implements the error interface.
func (e *StandardError) Error() string {
	return fmt.Sprintf("segheap: %s: %s (%s)", e.Code, e.Message, e.Caller)
}

// NewStandardError creates a StandardError, joining category and code
// into one dotted identifier.
func NewStandardError(category ErrorCategory, code, message string) *StandardError {
	pc, _, _, ok := runtime.Caller(1)
	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Code:    fmt.Sprintf("%s.%s", category, code),
		Message: message,
		Caller:  caller,
	}
}

// Common error constructors

// InvalidSize flags a malformed snapshot size field (LoadSnapshot's
// heap_bytes check). The allocator's Allocate never returns an error
// for a size; it returns NilPtr when the heap cannot grow.
func InvalidSize(size uint64, context string) *StandardError {
	return NewStandardError(CategoryValidation, "invalid_size",
		fmt.Sprintf("invalid size %d in %s", size, context))
}

// HeapCorruption wraps one Check finding as an error, for callers (the
// CLI's -check flag) that want to propagate a checker failure through
// a normal error return instead of scanning Describe's string slice.
func HeapCorruption(marker int, finding string) *StandardError {
	return NewStandardError(CategoryMemory, "heap_corruption",
		fmt.Sprintf("heap invariant violated at check %d: %s", marker, finding))
}
