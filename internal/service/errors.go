package service

import "net/http"

// Error is a structured failure that maps directly onto the widget API's
// error envelope.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

var (
	ErrSessionNotFound = &Error{
		Code: "SESSION_NOT_FOUND", Message: "Session not found", Status: http.StatusNotFound,
	}
	ErrSessionExpired = &Error{
		Code: "SESSION_EXPIRED", Message: "Session has expired", Status: http.StatusGone,
	}
	ErrSessionCompleted = &Error{
		Code: "SESSION_ALREADY_COMPLETED", Message: "Session already has a result", Status: http.StatusConflict,
	}
	ErrSessionProcessing = &Error{
		Code: "SESSION_PROCESSING", Message: "Session is already being processed", Status: http.StatusConflict,
	}
	ErrAccessDenied = &Error{
		Code: "ACCESS_DENIED", Message: "Session belongs to a different account", Status: http.StatusForbidden,
	}
	ErrValidation = &Error{
		Code: "VALIDATION_ERROR", Message: "Request validation failed", Status: http.StatusBadRequest,
	}
	ErrKeyNotFound = &Error{
		Code: "KEY_NOT_FOUND", Message: "API key not found", Status: http.StatusNotFound,
	}
)

// ValidationError returns a VALIDATION_ERROR with a specific message.
func ValidationError(message string) *Error {
	return &Error{Code: "VALIDATION_ERROR", Message: message, Status: http.StatusBadRequest}
}
