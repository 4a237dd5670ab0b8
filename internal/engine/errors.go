package engine

import (
	"errors"
	"fmt"

	"qindex/internal/metadata"
	"qindex/internal/query"
	"qindex/internal/store"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(what, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s %s not found", what, id),
	}
}

func UnknownTypeError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_TYPE",
		Status:  404,
		Message: fmt.Sprintf("Unknown entity type: %s", name),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

// MapError translates registry, compiler and store errors into AppErrors.
// Errors it does not recognise are returned unchanged and end up as 500s.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case metadata.IsConfigError(err), errors.Is(err, metadata.ErrUnknownQName):
		return &AppError{Code: "CONFIGURATION_ERROR", Status: 500, Message: err.Error()}
	case errors.Is(err, query.ErrNotQueryable):
		return &AppError{Code: "NOT_QUERYABLE", Status: 422, Message: err.Error()}
	case query.IsUnsupported(err):
		return &AppError{Code: "UNSUPPORTED_PREDICATE", Status: 422, Message: err.Error()}
	case errors.Is(err, metadata.ErrUnknownType):
		return &AppError{Code: "UNKNOWN_TYPE", Status: 404, Message: err.Error()}
	case errors.Is(err, query.ErrSyntax),
		errors.Is(err, query.ErrInvalidLiteral),
		errors.Is(err, query.ErrUnknownMember),
		errors.Is(err, query.ErrInvalidRequest):
		return &AppError{Code: "INVALID_QUERY", Status: 400, Message: err.Error()}
	case errors.Is(err, metadata.ErrInvalidValue):
		return &AppError{
			Code:    "VALIDATION_FAILED",
			Status:  422,
			Message: "Validation failed",
			Details: []ErrorDetail{{Message: err.Error()}},
		}
	case errors.Is(err, store.ErrNotFound):
		return &AppError{Code: "NOT_FOUND", Status: 404, Message: err.Error()}
	case errors.Is(err, store.ErrUniqueViolation):
		return &AppError{Code: "CONFLICT", Status: 409, Message: err.Error()}
	}
	return err
}
