package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
)

// Method is one callable of a concrete service type.
type Method struct {
	Name string
	// Func is the handler, usually a method value bound to the service
	// instance. Accepted shapes:
	//
	//	func([ctx context.Context,] args...)
	//	func([ctx context.Context,] args...) error
	//	func([ctx context.Context,] args...) R
	//	func([ctx context.Context,] args...) (R, error)
	//
	// If R implements Future the method is asynchronous.
	Func   any
	Params []Param
	packed bool
}

// Func describes a handler whose Go arguments map one to one onto params.
func Func(name string, fn any, params ...Param) Method {
	return Method{Name: name, Func: fn, Params: params}
}

// StructFunc describes a handler taking a single params struct; its
// parameters are derived from the struct's fields.
func StructFunc(name string, fn any) Method {
	return Method{Name: name, Func: fn, packed: true}
}

// Future is the eventual result of an asynchronous method.
type Future interface {
	Await(ctx context.Context) (any, error)
}

type future struct {
	done  chan struct{}
	value any
	err   error
}

func (f *future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Go runs fn on a new goroutine and returns a Future for its result.
func Go[T any](fn func() (T, error)) Future {
	f := &future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = &InvocationError{Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
			}
		}()
		f.value, f.err = fn()
	}()
	return f
}

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
	futureType  = reflect.TypeFor[Future]()
)

// handler is the call path for one method, resolved once at registration.
type handler struct {
	fn        reflect.Value
	withCtx   bool
	argTypes  []reflect.Type
	packed    reflect.Type
	fields    []int
	hasResult bool
	hasError  bool
	async     bool
}

// newHandler inspects m.Func and returns its call path together with the
// parameter list implied by the handler's own signature.
func newHandler(m Method) (*handler, []Param, error) {
	fn := reflect.ValueOf(m.Func)
	if !fn.IsValid() || fn.Kind() != reflect.Func || fn.IsNil() {
		return nil, nil, errors.New("handler must be a non-nil func")
	}
	ft := fn.Type()
	if ft.IsVariadic() {
		return nil, nil, errors.New("variadic handlers are not supported")
	}

	h := &handler{fn: fn}
	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		h.withCtx = true
		first = 1
	}
	for i := first; i < ft.NumIn(); i++ {
		h.argTypes = append(h.argTypes, ft.In(i))
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			h.hasError = true
		} else {
			h.hasResult = true
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, nil, errors.New("second result must be error")
		}
		h.hasResult = true
		h.hasError = true
	default:
		return nil, nil, fmt.Errorf("handler returns %d values, at most 2 are supported", ft.NumOut())
	}
	if h.hasResult {
		h.async = ft.Out(0).Implements(futureType)
	}

	if m.packed {
		if len(h.argTypes) != 1 || h.argTypes[0].Kind() != reflect.Struct {
			return nil, nil, errors.New("struct handler must take exactly one struct argument")
		}
		h.packed = h.argTypes[0]
		params, fields, err := paramsFromStruct(h.packed)
		if err != nil {
			return nil, nil, err
		}
		h.fields = fields
		return h, params, nil
	}

	if len(m.Params) != len(h.argTypes) {
		return nil, nil, fmt.Errorf("declares %d parameters but the handler takes %d", len(m.Params), len(h.argTypes))
	}
	params := make([]Param, len(m.Params))
	for i, p := range m.Params {
		if p.Type == nil {
			p.Type = h.argTypes[i]
		} else if !p.Type.AssignableTo(h.argTypes[i]) {
			return nil, nil, fmt.Errorf("parameter %s: %s is not assignable to %s", p.Name, p.Type, h.argTypes[i])
		}
		params[i] = p
	}
	return h, params, nil
}

// targetTypes returns the Go types the bound parameters are passed as.
func (h *handler) targetTypes() []reflect.Type {
	if h.packed == nil {
		return h.argTypes
	}
	types := make([]reflect.Type, len(h.fields))
	for i, f := range h.fields {
		types[i] = h.packed.Field(f).Type
	}
	return types
}

// call invokes the handler with already bound arguments and normalizes its
// results: asynchronous results are awaited, and a handler without a result
// yields Void.
func (h *handler) call(ctx context.Context, bound []reflect.Value) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &InvocationError{Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()

	args := make([]reflect.Value, 0, len(bound)+1)
	if h.withCtx {
		args = append(args, reflect.ValueOf(&ctx).Elem())
	}
	if h.packed != nil {
		s := reflect.New(h.packed).Elem()
		for i, f := range h.fields {
			s.Field(f).Set(bound[i])
		}
		args = append(args, s)
	} else {
		args = append(args, bound...)
	}

	out := h.fn.Call(args)

	if h.hasError {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return nil, errv.Interface().(error)
		}
	}
	if !h.hasResult {
		return Void, nil
	}

	rv := out[0]
	if !h.async {
		return rv.Interface(), nil
	}
	if isNilValue(rv) {
		return Void, nil
	}
	value, err := rv.Interface().(Future).Await(ctx)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return Void, nil
	}
	return value, nil
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return v.IsNil()
	}
	return false
}

// MethodDescriptor is a registered method: its wire contract and the call
// path built for it. Descriptors are immutable and safe for concurrent use.
type MethodDescriptor struct {
	Service string
	Name    string
	Params  []Param
	Async   bool

	h *handler
}

// Invoke binds params and calls the method, waiting for asynchronous methods
// to complete. Handler failures are returned as *InvocationError and binding
// failures as *BindingError.
func (d *MethodDescriptor) Invoke(ctx context.Context, params json.RawMessage) (any, error) {
	args, err := Bind(params, d.Params)
	if err != nil {
		return nil, err
	}
	result, err := d.h.call(ctx, args)
	if err != nil {
		var invErr *InvocationError
		if errors.As(err, &invErr) && invErr.Service == "" {
			// invErr may be shared by other calls; label a copy.
			labelled := *invErr
			labelled.Service, labelled.Method = d.Service, d.Name
			return nil, &labelled
		}
		return nil, &InvocationError{Service: d.Service, Method: d.Name, Err: err}
	}
	return result, nil
}
