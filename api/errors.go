// Package api defines the types and contracts shared between the ingest
// core and everything that consumes it: the Graph Port interface, the
// wire-level DTOs, and the error taxonomy.
package api

import (
	"errors"
	"fmt"
)

// Error kinds. No concrete type per kind — callers compare with errors.Is
// against these sentinels.
var (
	// ErrInvalidInput covers unknown languages, unsupported extensions,
	// a missing path-and-code pair, a malformed cursor, or a write query
	// presented to the read-only guard.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound covers a missing file record, AST span, or file version.
	// Never logged as an error — it is a normal, expected outcome of a lookup.
	ErrNotFound = errors.New("not found")

	// ErrOrderingConflict is fatal for the ingest that raised it: the edge
	// guard table rejected two children claiming the same child_index
	// under the same parent.
	ErrOrderingConflict = errors.New("ordering conflict")

	// ErrBackendFailure covers connection, timeout and constraint failures
	// other than the expected idempotent conflicts. Retryable by the caller.
	ErrBackendFailure = errors.New("backend failure")

	// ErrParseFailure is defined for completeness of the taxonomy but is
	// never returned: tree-sitter always produces a tree, even one full of
	// ERROR nodes, and those are ingested like any other node.
	ErrParseFailure = errors.New("parse failure")
)

// Wrap attaches cause to one of the sentinel kinds above so that
// errors.Is(err, api.ErrNotFound) (etc.) keeps working after wrapping.
func Wrap(kind error, cause error, msg string) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", msg, kind)
	}
	return fmt.Errorf("%s: %w: %v", msg, kind, cause)
}

// Invalid builds an ErrInvalidInput with a formatted message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidInput)...)
}
