package errors

import "fmt"

// ErrorCode represents a Parley error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // 400
	ErrDeviceAccess        ErrorCode = "DEVICE_ACCESS"        // 403
	ErrNotFound            ErrorCode = "NOT_FOUND"            // 404
	ErrConflict            ErrorCode = "CONFLICT"             // 409
	ErrEncodingUnavailable ErrorCode = "ENCODING_UNAVAILABLE" // 422
	ErrStorage             ErrorCode = "STORAGE"              // 500
	ErrInternal            ErrorCode = "INTERNAL"             // 500
	ErrAnalysisService     ErrorCode = "ANALYSIS_SERVICE"     // 502
)

// ParleyError represents a structured error with code, status, and details.
type ParleyError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *ParleyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *ParleyError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ParleyError {
	return &ParleyError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewDeviceAccess creates a 403 error for denied or missing capture devices.
// Retrying start after the user grants access is the expected recovery.
func NewDeviceAccess(msg string, cause error) *ParleyError {
	return &ParleyError{
		Code:    ErrDeviceAccess,
		Status:  403,
		Message: msg,
		cause:   cause,
	}
}

// NewNotFound creates a 404 error for when a recording cannot be found.
func NewNotFound(id string) *ParleyError {
	return &ParleyError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("recording not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *ParleyError {
	return &ParleyError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewEncodingUnavailable creates a 422 error when no candidate encoder is
// supported for the requested capture kind. Fatal for that session only.
func NewEncodingUnavailable(kind string) *ParleyError {
	return &ParleyError{
		Code:    ErrEncodingUnavailable,
		Status:  422,
		Message: fmt.Sprintf("no supported encoder for %s capture on this platform", kind),
		Details: map[string]any{"kind": kind},
	}
}

// NewStorage creates a 500 error for failures in the persistence substrate.
func NewStorage(op string, cause error) *ParleyError {
	msg := fmt.Sprintf("storage %s failed", op)
	if cause != nil {
		msg = fmt.Sprintf("storage %s failed: %v", op, cause)
	}
	return &ParleyError{
		Code:    ErrStorage,
		Status:  500,
		Message: msg,
		Details: map[string]any{"op": op},
		cause:   cause,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ParleyError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ParleyError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// NewAnalysisService creates a 502 error attributed to one analysis request.
func NewAnalysisService(requestID, msg string) *ParleyError {
	return &ParleyError{
		Code:    ErrAnalysisService,
		Status:  502,
		Message: msg,
		Details: map[string]any{"request_id": requestID},
	}
}

// Is checks if an error is a ParleyError with the given code.
func Is(err error, code ErrorCode) bool {
	if pErr, ok := err.(*ParleyError); ok {
		return pErr.Code == code
	}
	return false
}
