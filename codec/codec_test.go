package codec

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForContentType(t *testing.T) {
	tests := map[string]Codec{
		"":                                  JSON,
		"application/json":                  JSON,
		"application/json; charset=utf-8":   JSON,
		"application/cbor":                  CBOR,
		"Application/CBOR":                  CBOR,
		"text/plain":                        JSON,
		"application/x-www-form-urlencoded": JSON,
		"not a;; media type":                JSON,
	}
	for contentType, want := range tests {
		assert.Equal(t, want, ForContentType(contentType), contentType)
	}
}

func TestJSONCodec(t *testing.T) {
	doc := []byte(`{"method":"Test","params":[2,3],"id":1}`)
	out, err := JSON.ToJSON(doc)
	require.NoError(t, err)
	assert.Equal(t, doc, out)

	data, err := JSON.Encode(map[string]any{"result": "5"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"5"}`, string(data))

	var v struct{ Result string }
	require.NoError(t, JSON.Decode(data, &v))
	assert.Equal(t, "5", v.Result)
	assert.Equal(t, "application/json", JSON.ContentType())
}

func TestCBORToJSON(t *testing.T) {
	payload, err := cbor.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "Test",
		"params":  map[string]any{"first": 2, "second": -3, "ratio": 0.5},
		"id":      7,
	})
	require.NoError(t, err)

	doc, err := CBOR.ToJSON(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"Test","params":{"first":2,"second":-3,"ratio":0.5},"id":7}`, string(doc))
}

func TestCBORToJSONRejectsNonTextKeys(t *testing.T) {
	payload, err := cbor.Marshal(map[int]string{1: "a"})
	require.NoError(t, err)

	_, err = CBOR.ToJSON(payload)
	assert.Error(t, err)

	_, err = CBOR.ToJSON([]byte{0xff, 0x00})
	assert.Error(t, err)
}

func TestCBOREncode(t *testing.T) {
	type reply struct {
		JSONRPC string `json:"jsonrpc"`
		Result  any    `json:"result"`
		ID      int    `json:"id"`
	}
	data, err := CBOR.Encode(reply{JSONRPC: "2.0", Result: []any{1, 2.5, "x", nil}, ID: 3})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, cbor.Unmarshal(data, &raw))
	assert.Equal(t, "2.0", raw["jsonrpc"])
	assert.Equal(t, uint64(3), raw["id"])
	assert.Equal(t, []any{uint64(1), 2.5, "x", nil}, raw["result"])

	var back reply
	require.NoError(t, CBOR.Decode(data, &back))
	assert.Equal(t, 3, back.ID)
	assert.Equal(t, "application/cbor", CBOR.ContentType())
}
