// Package svcerr provides the ambient, HTTP-status-bearing error envelope
// used by the orchestrator's public operations. It is deliberately separate
// from the engine's internal ErrorKind taxonomy (sessionclient.ErrKind,
// which package classifier maps to side effects): this
// type is for callers of the orchestrator, that one never leaves the engine.
package svcerr

import (
	"fmt"
	"net/http"
)

// Code identifies one error category.
type Code string

const (
	CodeInvalidInput      Code = "VAL_3001"
	CodeNotFound          Code = "RES_4001"
	CodeAlreadyRunning    Code = "RES_4002"
	CodeNoUsableSession   Code = "ENG_5001"
	CodeNoDeliverableGrp  Code = "ENG_5002"
	CodeInternal          Code = "SVC_5999"
)

// ServiceError is a structured error with a code, message, and HTTP status
// (kept even though this repo owns no HTTP API surface of its own — a future
// caller wrapping the orchestrator in HTTP wants the status already decided).
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped error to errors.Is/errors.As.
func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches structured context and returns the same error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a ServiceError.
func New(code Code, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates a ServiceError around an existing error.
func Wrap(code Code, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

func InvalidInput(message string) *ServiceError {
	return New(CodeInvalidInput, message, http.StatusBadRequest)
}

// NotFound builds a not-found error for the given entity kind and ID, e.g.
// NotFound("session", id).
func NotFound(kind, id string) *ServiceError {
	return New(CodeNotFound, fmt.Sprintf("%s %q not found", kind, id), http.StatusNotFound).WithDetails("id", id)
}

func AlreadyRunning(message string) *ServiceError {
	return New(CodeAlreadyRunning, message, http.StatusConflict)
}

// NoUsableSession corresponds to spec.md §7's NoUsableSession ErrorKind,
// surfaced to the StartPosting caller.
func NoUsableSession(message string) *ServiceError {
	return New(CodeNoUsableSession, message, http.StatusUnprocessableEntity)
}

// NoDeliverableGroup corresponds to spec.md §7's NoDeliverableGroup ErrorKind.
func NoDeliverableGroup(message string) *ServiceError {
	return New(CodeNoDeliverableGrp, message, http.StatusUnprocessableEntity)
}

func Internal(err error) *ServiceError {
	return Wrap(CodeInternal, "internal error", http.StatusInternalServerError, err)
}
