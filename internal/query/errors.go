package query

import (
	"errors"
	"fmt"
)

var (
	// ErrNotQueryable marks a path that cannot be compiled: it names a member
	// without a descriptor or traverses a collection or many-association.
	ErrNotQueryable = errors.New("not queryable")

	// ErrInvalidLiteral marks a literal that does not fit the member it is compared with.
	ErrInvalidLiteral = errors.New("invalid literal")

	// ErrUnknownMember marks a path segment the schema does not declare.
	ErrUnknownMember = errors.New("unknown member")

	// ErrSyntax marks a textual expression the parser cannot map to a predicate.
	ErrSyntax = errors.New("invalid query expression")

	// ErrInvalidRequest marks pagination or ordering parameters out of range.
	ErrInvalidRequest = errors.New("invalid query request")
)

// PathError reports why a path could not be resolved or compiled.
type PathError struct {
	Path   string
	Reason string
	Err    error
}

func (e *PathError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("path %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("path %q: %v: %s", e.Path, e.Err, e.Reason)
}

func (e *PathError) Unwrap() error { return e.Err }

func notQueryable(p Path, format string, args ...any) error {
	return &PathError{Path: p.String(), Reason: fmt.Sprintf(format, args...), Err: ErrNotQueryable}
}

func invalidLiteral(p Path, format string, args ...any) error {
	return &PathError{Path: p.String(), Reason: fmt.Sprintf(format, args...), Err: ErrInvalidLiteral}
}

// UnsupportedPredicateError reports a predicate shape the compiler refuses,
// such as ordering comparisons on a composite value.
type UnsupportedPredicateError struct {
	Predicate string
	Reason    string
}

func (e *UnsupportedPredicateError) Error() string {
	return fmt.Sprintf("unsupported predicate %s: %s", e.Predicate, e.Reason)
}

func unsupported(pred, format string, args ...any) error {
	return &UnsupportedPredicateError{Predicate: pred, Reason: fmt.Sprintf(format, args...)}
}

// IsUnsupported returns true if err is or wraps an *UnsupportedPredicateError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedPredicateError
	return errors.As(err, &ue)
}
