// Package errors defines the structured error taxonomy of the job pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a pipeline error code.
type ErrorCode string

const (
	ErrInvalidInput  ErrorCode = "INVALID_INPUT"  // 400
	ErrNoEvidence    ErrorCode = "NO_EVIDENCE"    // 400
	ErrNotFound      ErrorCode = "NOT_FOUND"      // 404
	ErrConflict      ErrorCode = "CONFLICT"       // 409
	ErrOracleFailure ErrorCode = "ORACLE_FAILURE" // 502
	ErrParseFailure  ErrorCode = "PARSE_FAILURE"  // 502
	ErrInternal      ErrorCode = "INTERNAL"       // 500
)

// PipelineError is a structured error with code, HTTP status and an optional cause.
type PipelineError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *PipelineError) Unwrap() error {
	return e.cause
}

// NewInvalidInput creates a 400 error for missing or malformed job inputs.
func NewInvalidInput(msg string) *PipelineError {
	return &PipelineError{
		Code:    ErrInvalidInput,
		Status:  400,
		Message: msg,
	}
}

// NewNoEvidence creates a 400 error for an evidence location with nothing usable in it.
func NewNoEvidence(location string) *PipelineError {
	return &PipelineError{
		Code:    ErrNoEvidence,
		Status:  400,
		Message: fmt.Sprintf("no screenshots found at %s", location),
		Details: map[string]any{"evidence_location": location},
	}
}

// NewNotFound creates a 404 error for an unknown job.
func NewNotFound(jobID string) *PipelineError {
	return &PipelineError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("job not found: %s", jobID),
		Details: map[string]any{"job_id": jobID},
	}
}

// NewConflict creates a 409 error for transitions the job's state does not allow.
func NewConflict(msg string) *PipelineError {
	return &PipelineError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewOracle wraps a failed oracle call or upload.
func NewOracle(op string, err error) *PipelineError {
	return &PipelineError{
		Code:    ErrOracleFailure,
		Status:  502,
		Message: fmt.Sprintf("%s: %v", op, err),
		cause:   err,
	}
}

// NewParse creates an error for oracle output that could not be decoded.
func NewParse(msg string) *PipelineError {
	return &PipelineError{
		Code:    ErrParseFailure,
		Status:  502,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *PipelineError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &PipelineError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is, or wraps, a PipelineError with the given code.
func Is(err error, code ErrorCode) bool {
	var pErr *PipelineError
	if stderrors.As(err, &pErr) {
		return pErr.Code == code
	}
	return false
}

// StatusOf returns the HTTP status carried by err; 500 for foreign errors.
func StatusOf(err error) int {
	var pErr *PipelineError
	if stderrors.As(err, &pErr) {
		return pErr.Status
	}
	return 500
}

// Describe returns the message recorded on a failed job.
func Describe(err error) string {
	var pErr *PipelineError
	if stderrors.As(err, &pErr) {
		return pErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
