package domain

import (
	"errors"
	"fmt"
)

// Error codes shared by the stores and the HTTP layer.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeForbidden            = "FORBIDDEN"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeInvalidState         = "INVALID_STATE"
	CodeInsufficientStock    = "INSUFFICIENT_STOCK"
	CodeExceedsOutstanding   = "EXCEEDS_OUTSTANDING"
	CodeLimitReached         = "LIMIT_REACHED"
	CodeSubscriptionInactive = "SUBSCRIPTION_INACTIVE"
	CodeConflict             = "CONFLICT"
)

// Error is a business rule violation carrying a stable code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error with the same code, so errors.Is(err, ErrNotFound)
// holds for every NOT_FOUND error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates an Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates an Error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrNotFound             = NewError(CodeNotFound, "resource not found")
	ErrForbidden            = NewError(CodeForbidden, "insufficient permissions")
	ErrInvalidInput         = NewError(CodeInvalidInput, "invalid input")
	ErrInvalidState         = NewError(CodeInvalidState, "operation not allowed in current state")
	ErrInsufficientStock    = NewError(CodeInsufficientStock, "insufficient stock")
	ErrExceedsOutstanding   = NewError(CodeExceedsOutstanding, "amount exceeds outstanding balance")
	ErrLimitReached         = NewError(CodeLimitReached, "plan limit reached")
	ErrSubscriptionInactive = NewError(CodeSubscriptionInactive, "subscription is not active")
	ErrConflict             = NewError(CodeConflict, "resource already exists")
)

// CodeOf returns the code of a domain error, or "" for anything else.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
