// Command jsonrpc serves a single service over HTTP POST.
//
//	curl -d '{"jsonrpc":"2.0","method":"sub","params":{"a":5,"b":2},"id":1}' localhost:8080/rpc/math
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/mnehpets/onerpc/httprpc"
	"github.com/mnehpets/onerpc/jsonrpc"
)

type MathMethods struct{}

func (m *MathMethods) Add(ctx context.Context, a, b int) (int, error) {
	return a + b, nil
}

type SubParams struct {
	A int `json:"a"`
	B int `json:"b"`
}

func (m *MathMethods) Sub(ctx context.Context, args SubParams) (int, error) {
	return args.A - args.B, nil
}

func main() {
	m := &MathMethods{}
	reg, err := jsonrpc.Build(jsonrpc.Service{
		Name: "math",
		Type: &jsonrpc.Type{
			Name: "MathMethods",
			Methods: []jsonrpc.Method{
				jsonrpc.Func("Add", m.Add, jsonrpc.Required("a"), jsonrpc.Required("b")),
				jsonrpc.StructFunc("Sub", m.Sub),
			},
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	http.Handle("/rpc/", httprpc.NewHandler(jsonrpc.NewDispatcher(reg), nil))

	log.Println("Starting server on :8080")
	log.Fatal(http.ListenAndServe(":8080", nil))
}
