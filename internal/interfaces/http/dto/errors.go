package dto

import "net/http"

// Transport error codes
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeValidation is used when request binding or validation fails
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeTokenExpired is used when the auth token has expired
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	// ErrCodePayloadTooLarge is used when the request body exceeds the limit
	ErrCodePayloadTooLarge = "ERR_PAYLOAD_TOO_LARGE"
)

// Domain error codes, rendered as-is
const (
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeInvalidInput           = "INVALID_INPUT"
	ErrCodeInvalidState           = "INVALID_STATE"
	ErrCodeConcurrentModification = "CONCURRENT_MODIFICATION"
	ErrCodeUnresolvedExceptions   = "UNRESOLVED_EXCEPTIONS"
	ErrCodeNoActiveRules          = "NO_ACTIVE_RULES"
	ErrCodeDomainUnauthorized     = "UNAUTHORIZED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeTokenExpired:    http.StatusUnauthorized,
	ErrCodePayloadTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeNotFound:               http.StatusNotFound,
	ErrCodeInvalidInput:           http.StatusBadRequest,
	ErrCodeInvalidState:           http.StatusBadRequest,
	ErrCodeConcurrentModification: http.StatusConflict,
	ErrCodeDomainUnauthorized:     http.StatusUnauthorized,

	// Finalization and auto-match preconditions -> 422 Unprocessable Entity
	ErrCodeUnresolvedExceptions: http.StatusUnprocessableEntity,
	ErrCodeNoActiveRules:        http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
