package shared

import "fmt"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError carrying the same code, so sentinels work with
// errors.Is even when the message was specialised.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorf creates a new domain error with a formatted message
func NewDomainErrorf(code, format string, args ...any) *DomainError {
	return NewDomainError(code, fmt.Sprintf(format, args...))
}

// Common domain error codes
const (
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeInvalidState           = "INVALID_STATE"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeUnauthorized           = "UNAUTHORIZED"
)

// Common domain errors
var (
	ErrNotFound               = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput           = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrInvalidState           = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrConcurrentModification = NewDomainError(CodeConcurrentModification, "Resource was modified by another process")
	ErrUnauthorized           = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
)
