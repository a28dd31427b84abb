// Package jsonrpc is a transport-agnostic JSON-RPC 2.0 dispatch engine.
//
// It maps an inbound request envelope (method name + params) to a method of
// a registered service, binds the JSON params to the method's typed
// parameters, calls it, and wraps the result or failure in a reply envelope.
// Transports (see packages httprpc and wsrpc) only move bytes; everything
// from envelope to envelope happens here.
//
// # Registration
//
// Services are described explicitly and validated once at startup by Build.
// The resulting Registry is immutable and shared by all requests:
//
//	calc := &Calculator{}
//	reg, err := jsonrpc.Build(jsonrpc.Service{
//	    Name: "Calculator",
//	    Type: &jsonrpc.Type{
//	        Name: "Calculator",
//	        Methods: []jsonrpc.Method{
//	            jsonrpc.Func("Add", calc.Add, jsonrpc.Required("a"), jsonrpc.Required("b")),
//	            jsonrpc.Func("Scale", calc.Scale, jsonrpc.Required("value"), jsonrpc.Default("factor", 2)),
//	        },
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err) // *jsonrpc.ConfigurationError
//	}
//
// Handlers take an optional leading context.Context followed by their
// parameters and return nothing, an error, a result, or a result and an
// error. A handler whose result implements Future is asynchronous; the
// dispatcher waits for it before replying:
//
//	func (s *FirstService) Test(first, second int) jsonrpc.Future {
//	    return jsonrpc.Go(func() (string, error) {
//	        return strconv.Itoa(first + second), nil
//	    })
//	}
//
// Handlers may instead take a single params struct (StructFunc, Reflect);
// its json tags name the parameters, `rpc:"optional"` marks optional ones
// and `default:"..."` gives a JSON literal default.
//
// # Method names
//
// Method names are matched case-insensitively. A method declared on a Type
// shadows a method of the same name inherited through Embeds. Two methods
// with the same name declared on the same Type, or two interface methods
// whose names differ only in case, make Build fail.
//
// # Interfaces
//
// A service may list the interfaces it implements. When a concrete method
// implements an interface method, callers bind against the interface's
// parameter names, defaults and types, while the concrete method is the one
// that runs:
//
//	jsonrpc.InterfaceOf[Arithmetic](
//	    jsonrpc.Sig("Add", jsonrpc.Required("a"), jsonrpc.Required("b")),
//	)
//
// # Params
//
// A JSON object binds by parameter name, a JSON array by position; extra
// members are ignored. A missing optional parameter takes its default (or
// its type's zero value); a missing required one fails the call with
// CodeInvalidParams.
//
// # Errors
//
// Return an *Error to pick the wire code:
//
//	return 0, jsonrpc.NewError(-1000, "division by zero")
//
// Any other error becomes CodeInternalError. An *Error received from another
// service can be returned as is: its code and message pass through and the
// trace gains a line naming this service and method.
//
// Standard error codes are defined as constants:
//   - CodeParseError (-32700)
//   - CodeInvalidRequest (-32600)
//   - CodeMethodNotFound (-32601)
//   - CodeInvalidParams (-32602)
//   - CodeInternalError (-32603)
//   - CodeServiceNotFound (-32001)
package jsonrpc
