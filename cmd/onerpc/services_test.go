package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnehpets/onerpc/jsonrpc"
)

func newDemoDispatcher(t *testing.T) *jsonrpc.Dispatcher {
	t.Helper()
	reg, err := jsonrpc.Build(demoServices()...)
	require.NoError(t, err)
	return jsonrpc.NewDispatcher(reg)
}

func call(t *testing.T, d *jsonrpc.Dispatcher, service, method, params string) *jsonrpc.Response {
	t.Helper()
	resp, err := d.ProcessMessage(context.Background(), service,
		[]byte(`{"jsonrpc":"2.0","method":"`+method+`","params":`+params+`,"id":1}`))
	require.NoError(t, err)
	return resp
}

func resultJSON(t *testing.T, resp *jsonrpc.Response) string {
	t.Helper()
	require.Nil(t, resp.Error)
	out, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	return string(out)
}

func TestDemoServices(t *testing.T) {
	d := newDemoDispatcher(t)

	tests := []struct {
		service, method, params, want string
	}{
		{"FirstService", "Test", `{"first":2,"second":3}`, `"5"`},
		{"FirstService", "test", `[2,3]`, `"5"`},
		{"SecondService", "Test", `null`, `"SecondService Test invoked"`},
		{"Calculator", "Add", `{"a":1.5,"b":2}`, `3.5`},
		{"Calculator", "Scale", `{"value":4}`, `8`},
		{"Calculator", "Scale", `[4,3]`, `12`},
		{"Calculator", "ping", `[]`, `"pong"`},
		{"Calculator", "Reset", `[]`, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.service+"."+tt.method, func(t *testing.T) {
			assert.JSONEq(t, tt.want, resultJSON(t, call(t, d, tt.service, tt.method, tt.params)))
		})
	}
}

func TestCalculatorBindsInterfaceNames(t *testing.T) {
	d := newDemoDispatcher(t)

	resp := call(t, d, "Calculator", "Add", `{"x":1,"y":2}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeInvalidParams, resp.Error.Code)
}

func TestCalculatorMemory(t *testing.T) {
	d := newDemoDispatcher(t)

	resultJSON(t, call(t, d, "Calculator", "Add", `[2,2]`))
	assert.JSONEq(t, `4`, resultJSON(t, call(t, d, "Calculator", "Memory", `[]`)))
	resultJSON(t, call(t, d, "Calculator", "Reset", `[]`))
	assert.JSONEq(t, `0`, resultJSON(t, call(t, d, "Calculator", "Memory", `[]`)))
}
