package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Callback errors
var (
	ErrUnauthorized = errors.New("callback: unauthorized")
)

// Dispatch errors
var (
	ErrDispatchQueueFull = errors.New("dispatch: queue is full")
)

// ValidationError carries per-field messages for a rejected request.
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

func (e *ValidationError) Add(field, message string) {
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// Err returns e when it holds at least one message, nil otherwise.
func (e *ValidationError) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Messages flattens the field errors in a stable order.
func (e *ValidationError) Messages() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		out = append(out, e.Fields[k]...)
	}
	return out
}

// DispatchErrorKind classifies an outbound delivery failure for retry decisions.
type DispatchErrorKind string

const (
	DispatchTransient DispatchErrorKind = "transient"
	DispatchPermanent DispatchErrorKind = "permanent"
)

// DispatchError describes why the workflow did not accept a task.
type DispatchError struct {
	Kind       DispatchErrorKind
	StatusCode int
	Message    string
	cause      error
}

func (e *DispatchError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *DispatchError) Unwrap() error {
	return e.cause
}

func (e *DispatchError) Retryable() bool {
	return e.Kind == DispatchTransient
}

func newTransientError(statusCode int, message string, cause error) *DispatchError {
	return &DispatchError{Kind: DispatchTransient, StatusCode: statusCode, Message: message, cause: cause}
}

func newPermanentError(statusCode int, message string, cause error) *DispatchError {
	return &DispatchError{Kind: DispatchPermanent, StatusCode: statusCode, Message: message, cause: cause}
}
