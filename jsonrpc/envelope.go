package jsonrpc

import (
	"bytes"
	"encoding/json"
)

// Version is the protocol version tag written on every response.
const Version = "2.0"

// Request is an inbound call envelope.
//
// Params holds either a JSON array (positional) or a JSON object (named) and
// may be absent. ID is kept as raw JSON so it is echoed byte for byte.
type Request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is an outbound reply envelope. Exactly one of Result and Error is
// written on the wire; a successful call always carries a result member, even
// when the handler produced no value.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type successResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result"`
	ID      json.RawMessage `json:"id"`
}

type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Error   *Error          `json:"error"`
	ID      json.RawMessage `json:"id"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	id := r.ID
	if len(bytes.TrimSpace(id)) == 0 {
		id = nil
	}
	if r.Error != nil {
		return json.Marshal(errorResponse{JSONRPC: Version, Error: r.Error, ID: id})
	}
	result := r.Result
	if result == nil {
		result = Void
	}
	return json.Marshal(successResponse{JSONRPC: Version, Result: result, ID: id})
}

func newResponse(id json.RawMessage) *Response {
	return &Response{JSONRPC: Version, ID: id}
}

func errorReply(id json.RawMessage, err *Error) *Response {
	resp := newResponse(id)
	resp.Error = err
	return resp
}

type void struct{}

func (void) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Void is the result of a call whose handler returns no value. It encodes as
// JSON null and is distinct from any failure.
var Void any = void{}
