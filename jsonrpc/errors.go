package jsonrpc

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

const (
	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternalError   = -32603
	CodeServiceNotFound = -32001
)

// Error is the wire form of a failed call. It is also a Go error, so handlers
// may return one to pick their own code, and an *Error received from an
// upstream service can be returned unchanged to pass it through.
type Error struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	StackTrace string `json:"stacktrace,omitempty"`
	Data       any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError creates an *Error with the given code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func NewParseError(message string) *Error {
	return NewError(CodeParseError, message)
}

func NewInvalidRequestError(message string) *Error {
	return NewError(CodeInvalidRequest, message)
}

func NewMethodNotFoundError(message string) *Error {
	return NewError(CodeMethodNotFound, message)
}

func NewInvalidParamsError(message string) *Error {
	return NewError(CodeInvalidParams, message)
}

func NewInternalError(message string) *Error {
	return NewError(CodeInternalError, message)
}

func NewServiceNotFoundError(message string) *Error {
	return NewError(CodeServiceNotFound, message)
}

// annotate returns a copy of e whose trace has origin appended as a new frame.
func (e *Error) annotate(origin string) *Error {
	out := *e
	frame := "at " + origin
	if out.StackTrace == "" {
		out.StackTrace = frame
	} else {
		out.StackTrace = strings.TrimRight(out.StackTrace, "\n") + "\n" + frame
	}
	return &out
}

// ConfigurationError reports an invalid service definition. It is only
// returned by Build, and a registry is never produced alongside it.
type ConfigurationError struct {
	Service string
	Type    string
	Method  string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("jsonrpc: configuration: ")
	if e.Service != "" {
		b.WriteString("service ")
		b.WriteString(e.Service)
		b.WriteString(": ")
	}
	if e.Method != "" {
		fmt.Fprintf(&b, "method %s", e.Method)
		if e.Type != "" {
			fmt.Fprintf(&b, " in %s", e.Type)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Reason)
	return b.String()
}

// BindingError reports a parameter that could not be bound: either it is
// required and missing, or its JSON value does not convert to Type.
type BindingError struct {
	Param string
	Type  reflect.Type
	Err   error
}

var errMissingParam = errors.New("missing required parameter")

func (e *BindingError) Error() string {
	if errors.Is(e.Err, errMissingParam) {
		return "missing required parameter " + e.Param
	}
	if e.Type == nil {
		return fmt.Sprintf("invalid params: %v", e.Err)
	}
	return fmt.Sprintf("invalid value for parameter %s (expected %s): %v", e.Param, e.Type, e.Err)
}

func (e *BindingError) Unwrap() error {
	return e.Err
}

// InvocationError wraps a failure raised by a handler, or a recovered panic.
type InvocationError struct {
	Service string
	Method  string
	Err     error
	// Stack holds the goroutine stack for recovered panics.
	Stack []byte
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Service, e.Method, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// toWireError converts any failure raised while serving service.method to an
// *Error carrying the origin in its trace.
func toWireError(err error, service, method string, debug bool) *Error {
	origin := service + "." + method

	var rpcErr *Error
	if errors.As(err, &rpcErr) && rpcErr != nil {
		return rpcErr.annotate(origin)
	}

	var bindErr *BindingError
	if errors.As(err, &bindErr) {
		return NewInvalidParamsError(bindErr.Error()).annotate(origin)
	}

	out := NewInternalError(err.Error())
	var invErr *InvocationError
	if errors.As(err, &invErr) {
		out.Message = invErr.Err.Error()
		if debug && len(invErr.Stack) > 0 {
			out.StackTrace = strings.TrimRight(string(invErr.Stack), "\n")
		}
	}
	return out.annotate(origin)
}
