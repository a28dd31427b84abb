package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// cborCodec carries JSON-RPC envelopes as CBOR. Payloads go through the
// envelope's JSON mapping so both codecs see the same document shape: CBOR
// maps must have text keys, byte strings become base64 text, and integers
// stay integers.
type cborCodec struct {
	dec cbor.DecMode
	enc cbor.EncMode
}

func newCBORCodec() cborCodec {
	dec, err := cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: 64,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return cborCodec{dec: dec, enc: enc}
}

func (c cborCodec) ToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := c.dec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("codec: cbor: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("codec: cbor: %w", err)
	}
	return out, nil
}

func (c cborCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return c.enc.Marshal(normalizeNumbers(doc))
}

func (c cborCodec) Decode(data []byte, v any) error {
	doc, err := c.ToJSON(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(doc, v)
}

func (cborCodec) Name() string {
	return "cbor"
}

func (cborCodec) ContentType() string {
	return "application/cbor"
}

// normalizeNumbers replaces json.Number values with int64 where the number
// is integral and fits, and float64 otherwise.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	}
	return v
}
