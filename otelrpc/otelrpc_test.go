package otelrpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnehpets/onerpc/jsonrpc"
)

const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

type fixture struct {
	dispatcher *jsonrpc.Dispatcher
	spans      *tracetest.SpanRecorder
	reader     *sdkmetric.ManualReader
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	cfg.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	cfg.MeterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	cfg.Propagator = propagation.TraceContext{}

	hook, err := NewHook(cfg)
	require.NoError(t, err)

	reg, err := jsonrpc.Build(jsonrpc.Service{
		Name: "Calculator",
		Type: &jsonrpc.Type{
			Name: "Calculator",
			Methods: []jsonrpc.Method{
				jsonrpc.Func("Add", func(a, b int) int { return a + b }, jsonrpc.Required("a"), jsonrpc.Required("b")),
				jsonrpc.Func("Fail", func() error { return errors.New("boom") }),
			},
		},
	})
	require.NoError(t, err)

	return fixture{
		dispatcher: jsonrpc.NewDispatcher(reg, jsonrpc.WithDispatchHook(hook)),
		spans:      spans,
		reader:     reader,
	}
}

func (f fixture) call(ctx context.Context, method string) *jsonrpc.Response {
	return f.dispatcher.ProcessRequest(ctx, "Calculator", &jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		Method:  method,
		Params:  []byte(`[1,2]`),
		ID:      []byte(`1`),
	})
}

func attr(attrs []attribute.KeyValue, key string) string {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestSpanPerCall(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	resp := f.call(context.Background(), "Add")
	require.Nil(t, resp.Error)

	ended := f.spans.Ended()
	require.Len(t, ended, 1)
	span := ended[0]
	assert.Equal(t, "Calculator/Add", span.Name())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())
	assert.Equal(t, codes.Ok, span.Status().Code)
	assert.Equal(t, "jsonrpc", attr(span.Attributes(), "rpc.system"))
	assert.Equal(t, "Calculator", attr(span.Attributes(), "rpc.service"))
	assert.Equal(t, "Add", attr(span.Attributes(), "rpc.method"))
	assert.Equal(t, "1", attr(span.Attributes(), "rpc.jsonrpc.request_id"))
}

func TestFailedCallMarksSpan(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	resp := f.call(context.Background(), "Fail")
	require.NotNil(t, resp.Error)

	ended := f.spans.Ended()
	require.Len(t, ended, 1)
	span := ended[0]
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, "boom", span.Status().Description)
	assert.Equal(t, "-32603", attr(span.Attributes(), "rpc.jsonrpc.error_code"))
	require.Len(t, span.Events(), 1)
	assert.Equal(t, "exception", span.Events()[0].Name)
}

func TestParentFromTraceparent(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	ctx := jsonrpc.WithTransport(context.Background(), "http", map[string]string{"traceparent": traceparent})
	f.call(ctx, "Add")

	ended := f.spans.Ended()
	require.Len(t, ended, 1)
	span := ended[0]
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", span.Parent().SpanID().String())
	assert.True(t, span.Parent().IsRemote())
	assert.Equal(t, "http", attr(span.Attributes(), "network.transport.name"))
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	f.call(ctx, "Add")
	f.call(ctx, "Add")
	f.call(ctx, "Fail")

	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	var histograms uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				require.Equal(t, "rpc.server.requests", m.Name)
				for _, dp := range data.DataPoints {
					method, _ := dp.Attributes.Value("rpc.method")
					status, _ := dp.Attributes.Value("status")
					counts[method.AsString()+"/"+status.AsString()] += dp.Value
				}
			case metricdata.Histogram[float64]:
				require.Equal(t, "rpc.server.duration", m.Name)
				for _, dp := range data.DataPoints {
					histograms += dp.Count
				}
			}
		}
	}
	assert.Equal(t, map[string]int64{"Add/ok": 2, "Fail/error": 1}, counts)
	assert.Equal(t, uint64(3), histograms)
}

func TestTracingDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableTracing = false
	f := newFixture(t, cfg)

	f.call(context.Background(), "Add")
	assert.Empty(t, f.spans.Ended())

	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))
	assert.NotEmpty(t, rm.ScopeMetrics)
}
