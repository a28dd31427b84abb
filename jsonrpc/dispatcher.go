package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
)

// ErrMalformedMessage is returned by ProcessMessage for payloads that cannot
// be answered with a structured reply.
var ErrMalformedMessage = errors.New("jsonrpc: malformed message")

// Dispatcher routes request envelopes to the methods of a Registry. It holds
// no per-call state; one Dispatcher serves all connections concurrently.
type Dispatcher struct {
	registry    *Registry
	hook        DispatchHook
	logger      *slog.Logger
	debugErrors bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for failures inside the dispatcher itself.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithDispatchHook registers a hook called around each dispatch.
func WithDispatchHook(hook DispatchHook) Option {
	return func(d *Dispatcher) {
		d.hook = hook
	}
}

// WithDebugErrors controls whether error traces include goroutine stacks of
// recovered panics. Leave it off for public-facing deployments.
func WithDebugErrors(enabled bool) Option {
	return func(d *Dispatcher) {
		d.debugErrors = enabled
	}
}

// NewDispatcher creates a Dispatcher over a built registry.
func NewDispatcher(reg *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: reg, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher serves.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// ProcessRequest invokes the method named by req on service and returns the
// reply. It never fails: every failure is reported inside the response, and
// the response id always equals the request id.
func (d *Dispatcher) ProcessRequest(ctx context.Context, service string, req *Request) (resp *Response) {
	if req == nil {
		return errorReply(nil, NewInvalidRequestError("empty request"))
	}

	var (
		info    DispatchInfo
		token   HookToken
		started bool // OnDispatchStart returned; OnDispatchEnd is owed
	)
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "jsonrpc panic", "service", service, "method", req.Method, "panic", r)
			rpcErr := NewInternalError("internal error")
			if d.debugErrors {
				rpcErr.StackTrace = string(debug.Stack())
			}
			resp = errorReply(req.ID, rpcErr)
			if started {
				started = false
				d.hook.OnDispatchEnd(ctx, token, info, rpcErr)
			}
		}
	}()

	if req.JSONRPC != "" && req.JSONRPC != Version {
		return errorReply(req.ID, NewInvalidRequestError(fmt.Sprintf("unsupported protocol version %q", req.JSONRPC)))
	}
	if strings.TrimSpace(req.Method) == "" {
		return errorReply(req.ID, NewInvalidRequestError("method required"))
	}

	info = DispatchInfo{
		Service:   service,
		Method:    req.Method,
		RequestID: string(req.ID),
	}
	if ti := transportFromContext(ctx); ti.name != "" {
		info.Transport = ti.name
		info.TransportMetadata = ti.metadata
	}

	if d.hook != nil {
		ctx, token = d.hook.OnDispatchStart(ctx, info)
		started = true
	}

	resp = d.invoke(ctx, service, req)

	if started {
		started = false
		d.hook.OnDispatchEnd(ctx, token, info, resp.Error)
	}
	return resp
}

func (d *Dispatcher) invoke(ctx context.Context, service string, req *Request) *Response {
	desc, lookupErr := d.registry.Lookup(service, req.Method)
	if lookupErr != nil {
		return errorReply(req.ID, lookupErr)
	}

	result, err := desc.Invoke(ctx, req.Params)
	if err != nil {
		return errorReply(req.ID, toWireError(err, desc.Service, desc.Name, d.debugErrors))
	}

	resp := newResponse(req.ID)
	resp.Result = result
	return resp
}

// ProcessMessage decodes one JSON document and processes it as a request to
// service. It returns an error wrapping ErrMalformedMessage when the document
// is not JSON, or is not a request and carries no recoverable id; transports
// drop such messages without a reply.
func (d *Dispatcher) ProcessMessage(ctx context.Context, service string, body []byte) (*Response, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedMessage)
	}
	if body[0] != '{' {
		return nil, fmt.Errorf("%w: request must be a JSON object", ErrMalformedMessage)
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		var idOnly struct {
			ID json.RawMessage `json:"id"`
		}
		if json.Unmarshal(body, &idOnly) == nil && len(idOnly.ID) > 0 {
			return errorReply(idOnly.ID, NewInvalidRequestError("invalid request: "+err.Error())), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return d.ProcessRequest(ctx, service, &req), nil
}
