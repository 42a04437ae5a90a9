// Package apierr provides the typed error taxonomy shared by the conversion
// pipeline and the MCP serve path. Each component surfaces these at its
// contract boundary; composition sites branch on the code to retry, degrade,
// or abort.
package apierr

import (
	"errors"
	"fmt"
	"time"

	"github.com/fredcamaral/gomcp-sdk/protocol"
)

// Code represents semantic error codes for consistent error handling
type Code string

const (
	// Input and specification errors
	CodeInput                  Code = "INPUT_ERROR"
	CodeSpecInvariant          Code = "SPEC_INVARIANT_ERROR"
	CodeUnresolvableReference  Code = "UNRESOLVABLE_REFERENCE"

	// Storage and index errors
	CodeStorage Code = "STORAGE_ERROR"
	CodeIndex   Code = "INDEX_ERROR"

	// Serve-path errors
	CodeQuerySyntax Code = "QUERY_SYNTAX_ERROR"
	CodeNotFound    Code = "NOT_FOUND"
	CodeTimeout     Code = "TIMEOUT"
	CodeOverloaded  Code = "OVERLOADED"
	CodeInternal    Code = "INTERNAL_ERROR"
)

// Error is the unified error structure crossing component boundaries.
type Error struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	TraceID    string                 `json:"trace_id,omitempty"`
	Retryable  bool                   `json:"retryable,omitempty"`
	RetryAfter time.Duration          `json:"retry_after,omitempty"`
	cause      error
}

// Error implements the Go error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As
func (e *Error) Unwrap() error { return e.cause }

// WithTraceID attaches a correlation id for debugging
func (e *Error) WithTraceID(traceID string) *Error {
	e.TraceID = traceID
	return e
}

// WithDetail attaches a single detail entry
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a typed error with the given code
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Suggestion: hintFor(message)}
}

// Wrap creates a typed error wrapping a cause
func Wrap(code Code, message string, cause error) *Error {
	hint := hintFor(message)
	if hint == "" && cause != nil {
		hint = hintFor(cause.Error())
	}
	return &Error{Code: code, Message: message, Suggestion: hint, cause: cause}
}

// NewInput creates an InputError (file missing, too large, bad dialect)
func NewInput(message string, cause error) *Error {
	return Wrap(CodeInput, message, cause)
}

// NewSpecInvariant creates a SpecInvariantError (fatal only in strict mode)
func NewSpecInvariant(message string) *Error {
	return New(CodeSpecInvariant, message)
}

// NewUnresolvableReference creates the always-fatal missing-$ref error
func NewUnresolvableReference(ref string) *Error {
	e := New(CodeUnresolvableReference, fmt.Sprintf("unresolvable reference %q", ref))
	return e.WithDetail("ref", ref)
}

// NewStorage creates a StorageError, triggering rollback at the ingest site
func NewStorage(message string, cause error) *Error {
	return Wrap(CodeStorage, message, cause)
}

// NewIndex creates an IndexError
func NewIndex(message string, cause error) *Error {
	return Wrap(CodeIndex, message, cause)
}

// NewNotFound creates a typed tool error for an absent entity
func NewNotFound(entity, name string) *Error {
	e := New(CodeNotFound, fmt.Sprintf("%s %q not found", entity, name))
	return e.WithDetail("entity", entity).WithDetail("name", name)
}

// NewTimeout creates a retry-safe deadline error
func NewTimeout(operation string, limit time.Duration) *Error {
	e := New(CodeTimeout, fmt.Sprintf("%s exceeded deadline of %s", operation, limit))
	e.Retryable = true
	return e
}

// NewOverloaded creates the backpressure rejection with a retry-after hint
func NewOverloaded(retryAfter time.Duration) *Error {
	e := New(CodeOverloaded, "server overloaded, too many in-flight requests")
	e.Retryable = true
	e.RetryAfter = retryAfter
	return e
}

// NewInternal creates a generic failure carrying a correlation id
func NewInternal(message string, cause error, traceID string) *Error {
	e := Wrap(CodeInternal, message, cause)
	e.TraceID = traceID
	return e
}

// CodeOf extracts the semantic code from any error, CodeInternal otherwise.
func CodeOf(err error) Code {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// ToJSONRPCError converts the typed error to the MCP JSON-RPC error shape.
func (e *Error) ToJSONRPCError(id interface{}) *protocol.JSONRPCResponse {
	var rpcCode int
	switch e.Code {
	case CodeInput, CodeQuerySyntax:
		rpcCode = -32602 // invalid params
	case CodeNotFound:
		rpcCode = -32601
	case CodeTimeout:
		rpcCode = -32002
	case CodeOverloaded:
		rpcCode = -32001
	case CodeStorage, CodeIndex, CodeInternal, CodeSpecInvariant, CodeUnresolvableReference:
		rpcCode = -32603
	default:
		rpcCode = -32603
	}

	return &protocol.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &protocol.JSONRPCError{
			Code:    rpcCode,
			Message: e.Message,
			Data:    e,
		},
	}
}
