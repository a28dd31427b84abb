package jsonrpc

import (
	"context"
	"log/slog"
	"time"
)

// DispatchHook provides observability callpoints around each dispatch.
// Implementations must be safe for concurrent use.
type DispatchHook interface {
	OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken)
	// OnDispatchEnd receives the wire error of a failed call, or nil.
	OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, err *Error)
}

// HookToken is an opaque value returned by OnDispatchStart and passed back to
// OnDispatchEnd. Only meaningful to the DispatchHook that created it.
type HookToken any

// DispatchInfo carries call metadata passed to hooks.
type DispatchInfo struct {
	Service           string
	Method            string
	RequestID         string            // raw JSON text of the request id
	Transport         string            // "http", "websocket", or empty
	TransportMetadata map[string]string // transport headers, e.g. traceparent
}

type transportKey struct{}

type transportInfo struct {
	name     string
	metadata map[string]string
}

// WithTransport records the delivering transport and its metadata on ctx so
// dispatch hooks can see them.
func WithTransport(ctx context.Context, name string, metadata map[string]string) context.Context {
	return context.WithValue(ctx, transportKey{}, transportInfo{name: name, metadata: metadata})
}

func transportFromContext(ctx context.Context) transportInfo {
	ti, _ := ctx.Value(transportKey{}).(transportInfo)
	return ti
}

// Hooks combines several hooks into one. Start hooks run in order and end
// hooks in reverse order.
func Hooks(hooks ...DispatchHook) DispatchHook {
	return multiHook(hooks)
}

type multiHook []DispatchHook

func (m multiHook) OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken) {
	tokens := make([]HookToken, len(m))
	for i, h := range m {
		ctx, tokens[i] = h.OnDispatchStart(ctx, info)
	}
	return ctx, tokens
}

func (m multiHook) OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, err *Error) {
	tokens, _ := token.([]HookToken)
	for i := len(m) - 1; i >= 0; i-- {
		var t HookToken
		if i < len(tokens) {
			t = tokens[i]
		}
		m[i].OnDispatchEnd(ctx, t, info, err)
	}
}

// LogHook logs every dispatch at debug level and failed ones at warn level.
func LogHook(logger *slog.Logger) DispatchHook {
	if logger == nil {
		logger = slog.Default()
	}
	return logHook{logger: logger}
}

type logHook struct {
	logger *slog.Logger
}

func (h logHook) OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken) {
	return ctx, time.Now()
}

func (h logHook) OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, err *Error) {
	attrs := []any{
		"service", info.Service,
		"method", info.Method,
		"id", info.RequestID,
	}
	if info.Transport != "" {
		attrs = append(attrs, "transport", info.Transport)
	}
	if start, ok := token.(time.Time); ok {
		attrs = append(attrs, "duration", time.Since(start))
	}
	if err != nil {
		attrs = append(attrs, "code", err.Code, "err", err.Message)
		h.logger.WarnContext(ctx, "rpc call failed", attrs...)
		return
	}
	h.logger.DebugContext(ctx, "rpc call", attrs...)
}
