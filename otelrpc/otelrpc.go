// Package otelrpc instruments a jsonrpc.Dispatcher with OpenTelemetry.
//
// The hook starts a server span per call, continuing any trace carried in the
// transport's traceparent metadata, and records a request counter and a
// duration histogram keyed by service, method and outcome.
//
//	hook, err := otelrpc.NewHook(otelrpc.DefaultConfig())
//	d := jsonrpc.NewDispatcher(reg, jsonrpc.WithDispatchHook(hook))
package otelrpc

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnehpets/onerpc/jsonrpc"
)

const instrumentationName = "github.com/mnehpets/onerpc/otelrpc"

// Config selects the providers and signals used by the hook.
type Config struct {
	// TracerProvider defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator extracts the parent trace from transport metadata.
	// Defaults to otel.GetTextMapPropagator().
	Propagator    propagation.TextMapPropagator
	EnableTracing bool
	EnableMetrics bool
	// RecordErrors adds an exception event to the span of a failed call.
	RecordErrors bool
	Attributes   []attribute.KeyValue
}

// DefaultConfig enables tracing, metrics and error events with the global
// providers.
func DefaultConfig() Config {
	return Config{
		EnableTracing: true,
		EnableMetrics: true,
		RecordErrors:  true,
	}
}

type hook struct {
	cfg      Config
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

type callToken struct {
	span  trace.Span
	start time.Time
}

// NewHook returns a jsonrpc.DispatchHook reporting to the providers in cfg.
func NewHook(cfg Config) (jsonrpc.DispatchHook, error) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}

	h := &hook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}
	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		var err error
		h.requests, err = meter.Int64Counter("rpc.server.requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of RPC requests"),
		)
		if err != nil {
			return nil, fmt.Errorf("otelrpc: %w", err)
		}
		h.duration, err = meter.Float64Histogram("rpc.server.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of RPC requests"),
		)
		if err != nil {
			return nil, fmt.Errorf("otelrpc: %w", err)
		}
	}
	return h, nil
}

func (h *hook) OnDispatchStart(ctx context.Context, info jsonrpc.DispatchInfo) (context.Context, jsonrpc.HookToken) {
	if len(info.TransportMetadata) > 0 {
		ctx = h.cfg.Propagator.Extract(ctx, propagation.MapCarrier(info.TransportMetadata))
	}
	tok := &callToken{start: time.Now()}
	if !h.cfg.EnableTracing {
		return ctx, tok
	}

	attrs := append(callAttributes(info), h.cfg.Attributes...)
	if info.RequestID != "" {
		attrs = append(attrs, attribute.String("rpc.jsonrpc.request_id", info.RequestID))
	}
	if info.Transport != "" {
		attrs = append(attrs, attribute.String("network.transport.name", info.Transport))
	}
	ctx, tok.span = h.tracer.Start(ctx, info.Service+"/"+info.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	return ctx, tok
}

func (h *hook) OnDispatchEnd(ctx context.Context, token jsonrpc.HookToken, info jsonrpc.DispatchInfo, rpcErr *jsonrpc.Error) {
	tok, ok := token.(*callToken)
	if !ok {
		return
	}

	if h.cfg.EnableMetrics {
		status := "ok"
		if rpcErr != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(append(callAttributes(info), attribute.String("status", status))...)
		h.requests.Add(ctx, 1, attrs)
		h.duration.Record(ctx, time.Since(tok.start).Seconds(), attrs)
	}

	if tok.span == nil {
		return
	}
	if rpcErr != nil {
		tok.span.SetAttributes(attribute.String("rpc.jsonrpc.error_code", strconv.Itoa(rpcErr.Code)))
		tok.span.SetStatus(codes.Error, rpcErr.Message)
		if h.cfg.RecordErrors {
			tok.span.RecordError(rpcErr)
		}
	} else {
		tok.span.SetStatus(codes.Ok, "")
	}
	tok.span.End()
}

func callAttributes(info jsonrpc.DispatchInfo) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.service", info.Service),
		attribute.String("rpc.method", info.Method),
	}
}
