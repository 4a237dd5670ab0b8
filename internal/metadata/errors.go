package metadata

import (
	"errors"
	"fmt"
)

// ErrUnknownQName is returned when a qualified name has no descriptor.
var ErrUnknownQName = errors.New("no descriptor for qualified name")

// ErrInvalidValue is returned when a value does not fit a member's declared type.
var ErrInvalidValue = errors.New("invalid value")

// ConfigError reports a mismatch between the declared object model and what can be indexed.
type ConfigError struct {
	Subject string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Subject, e.Reason)
}

func configErrorf(subject, format string, args ...any) *ConfigError {
	return &ConfigError{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError returns true if err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ErrUnknownType is returned when a type name is not a declared entity or interface type.
var ErrUnknownType = errors.New("unknown entity type")
