package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error defines the standard error shape for the API
type Error struct {
	// HTTP Status Code (e.g., 400, 401, 500)
	Code int
	// Safe message for the client
	Message string
	// Original error for internal logging, never serialized
	Log error
}

// Error implements standard error interface
func (e *Error) Error() string {
	if e.Log != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Log)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Log
}

// MarshalJSON renders the error as {"error": message}.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(ErrorResponse{Error: e.Message})
}

// NewError creates a generic application error
func NewError(code int, message string, err error) *Error {
	return &Error{Code: code, Message: message, Log: err}
}

// BadRequestError creates a 400 for caller input problems
func BadRequestError(msg string, err error) *Error {
	return &Error{Code: http.StatusBadRequest, Message: msg, Log: err}
}

// UnauthorizedError creates a 401 unauthed error. The cause is kept for
// logs only so callers cannot learn why a credential was refused.
func UnauthorizedError(err error) *Error {
	return &Error{Code: http.StatusUnauthorized, Message: "Unauthorized", Log: err}
}

// InternalError creates a standard error for any internal server error
func InternalError(msg string, err error) *Error {
	return &Error{Code: http.StatusInternalServerError, Message: msg, Log: err}
}

// ProviderError creates 502 gateway error for providers
func ProviderError(msg string, err error) *Error {
	return &Error{Code: http.StatusBadGateway, Message: msg, Log: err}
}

// RateLimitError creates standard 429 rate limit error
func RateLimitError(msg string) *Error {
	return &Error{Code: http.StatusTooManyRequests, Message: msg}
}
