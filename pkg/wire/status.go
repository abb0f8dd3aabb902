package wire

import "fmt"

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the query completed successfully.
	StatusSuccess Status = 0

	// StatusBadRequest indicates a malformed or incomplete query body.
	StatusBadRequest Status = 1

	// StatusNotFound indicates the room or collection doesn't exist.
	StatusNotFound Status = 2

	// StatusNotAuthorized indicates the connection lacks permission.
	StatusNotAuthorized Status = 3

	// StatusBusy indicates the backend is overloaded; try again later.
	StatusBusy Status = 4

	// StatusInternal indicates a backend-side failure.
	StatusInternal Status = 5

	// StatusTimeout indicates the query timed out backend-side.
	StatusTimeout Status = 6
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusNotAuthorized:
		return "NOT_AUTHORIZED"
	case StatusBusy:
		return "BUSY"
	case StatusInternal:
		return "INTERNAL"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}

// StatusError represents an error response from the backend.
type StatusError struct {
	Status  Status
	Message string
}

// Error returns the backend message, or the status name when no message
// was supplied.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Status.String()
}

// NewStatusError builds a StatusError from a response status and optional
// error payload.
func NewStatusError(status Status, payload *ErrorPayload) *StatusError {
	msg := ""
	if payload != nil {
		msg = payload.Message
	}
	return &StatusError{Status: status, Message: msg}
}

// ErrorPayload carries error details in responses and notifications.
//
// CBOR encoding:
//
//	{
//	  1: code,      // uint16 backend error code
//	  2: message    // human-readable description
//	}
type ErrorPayload struct {
	Code    uint16 `cbor:"1,keyasint,omitempty"`
	Message string `cbor:"2,keyasint,omitempty"`
}

// Error implements the error interface so an ErrorPayload embedded in a
// notification can be handed to callbacks directly.
func (e *ErrorPayload) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend error %d", e.Code)
}
