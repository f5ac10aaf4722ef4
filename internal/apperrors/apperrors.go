// Package apperrors provides structured error codes for the signing engine.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Lookup errors
	CodeNotFound Code = "NOT_FOUND"

	// State machine errors
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeAlreadySigned          Code = "ALREADY_SIGNED"
	CodeAlreadyDeclined        Code = "ALREADY_DECLINED"

	// Workflow errors
	CodeWorkflowViolation Code = "WORKFLOW_VIOLATION"
	CodeTimeout           Code = "TIMEOUT"

	// Token errors
	CodeTokenExpired      Code = "TOKEN_EXPIRED"
	CodeTokenAlreadyUsed  Code = "TOKEN_ALREADY_USED"
	CodeTokenRevoked      Code = "TOKEN_REVOKED"
	CodeInvalidExpiration Code = "INVALID_EXPIRATION"

	// Rule errors
	CodeComplianceViolation Code = "COMPLIANCE_VIOLATION"
	CodeSecurityViolation   Code = "SECURITY_VIOLATION"

	// External collaborator errors
	CodeSigningFailed Code = "SIGNING_FAILED"
	CodeConflict      Code = "CONFLICT"
)

// Error is a code-tagged error carrying enough context to render a precise
// message: the entity it concerns, its current status, and the attempted
// operation. Context fields are optional and omitted when empty.
type Error struct {
	Code      Code
	Message   string
	EntityID  string
	Status    string
	Operation string
	cause     error
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an underlying error with a code.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithEntity attaches the entity id the error concerns.
func (e *Error) WithEntity(id string) *Error {
	e.EntityID = id
	return e
}

// WithStatus attaches the entity's current status.
func (e *Error) WithStatus(status string) *Error {
	e.Status = status
	return e
}

// WithOperation attaches the attempted operation.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.EntityID != "" {
		msg += fmt.Sprintf(" (entity=%s", e.EntityID)
		if e.Status != "" {
			msg += fmt.Sprintf(" status=%s", e.Status)
		}
		if e.Operation != "" {
			msg += fmt.Sprintf(" op=%s", e.Operation)
		}
		msg += ")"
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match two apperrors by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// CodeOf extracts the code from any error, CodeUnknown when untagged.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// HTTPStatus maps error codes to HTTP status codes for the handler layer.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound

	// wrong order/timing or bad input: caller must change the request
	case CodeWorkflowViolation, CodeTimeout, CodeInvalidExpiration:
		return http.StatusBadRequest

	// state no longer allows the operation
	case CodeInvalidStateTransition, CodeAlreadySigned, CodeAlreadyDeclined,
		CodeConflict:
		return http.StatusConflict

	// token terminal states
	case CodeTokenExpired, CodeTokenAlreadyUsed, CodeTokenRevoked:
		return http.StatusGone

	case CodeSecurityViolation:
		return http.StatusForbidden
	case CodeComplianceViolation:
		return http.StatusUnprocessableEntity

	case CodeSigningFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
