// Package codec converts transport payloads to and from the JSON documents
// handled by the jsonrpc dispatcher.
package codec

import (
	"mime"
	"strings"
)

// Codec translates between a wire payload and a JSON document.
type Codec interface {
	// ToJSON converts a payload in this codec's format to a JSON document.
	ToJSON(data []byte) ([]byte, error)
	// Encode serializes v, typically a *jsonrpc.Response, in this codec's format.
	Encode(v any) ([]byte, error)
	// Decode deserializes a payload into v using v's JSON mapping.
	Decode(data []byte, v any) error
	Name() string
	ContentType() string
}

var (
	JSON Codec = jsonCodec{}
	CBOR Codec = newCBORCodec()
)

// ForContentType returns the codec for a Content-Type header value. Only
// application/cbor selects CBOR; every other value, including a missing or
// unparsable one, is read as JSON.
func ForContentType(contentType string) Codec {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil && strings.EqualFold(mediaType, "application/cbor") {
		return CBOR
	}
	return JSON
}
