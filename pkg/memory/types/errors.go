package types

import "errors"

// Sentinel errors for matching with errors.Is. The typed errors below carry
// the user-facing remediation text; callers that only care about the class
// should match against these sentinels.
var (
	ErrInvalidPath = errors.New("invalid memory path")
	ErrNotFound    = errors.New("memory entry not found")
	ErrAmbiguous   = errors.New("ambiguous replace target")
	ErrInvalidLine = errors.New("invalid line number")
)

// InvalidPathError indicates a path that failed validation before any
// storage access (out of scope, traversal, or control characters).
type InvalidPathError struct {
	Path    string
	Message string
}

func (e *InvalidPathError) Error() string {
	return e.Message
}

// Is reports whether this error matches the ErrInvalidPath sentinel.
func (e *InvalidPathError) Is(target error) bool {
	return target == ErrInvalidPath
}

// NotFoundError indicates an operation targeting a path that does not
// resolve to an entry. The message always includes remediation guidance.
type NotFoundError struct {
	Path    string
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// Is reports whether this error matches the ErrNotFound sentinel.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// AmbiguousError indicates a replace target that occurs more than once.
// Count is the exact number of occurrences found.
type AmbiguousError struct {
	Path    string
	Count   int
	Message string
}

func (e *AmbiguousError) Error() string {
	return e.Message
}

// Is reports whether this error matches the ErrAmbiguous sentinel.
func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}

// InvalidLineError indicates an insert index outside [0, lineCount].
type InvalidLineError struct {
	Path    string
	Line    int
	Message string
}

func (e *InvalidLineError) Error() string {
	return e.Message
}

// Is reports whether this error matches the ErrInvalidLine sentinel.
func (e *InvalidLineError) Is(target error) bool {
	return target == ErrInvalidLine
}
