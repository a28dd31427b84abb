package codec

import (
	"encoding/json"
)

type jsonCodec struct{}

// ToJSON returns data unchanged; the dispatcher validates it.
func (jsonCodec) ToJSON(data []byte) ([]byte, error) {
	return data, nil
}

func (jsonCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) ContentType() string {
	return "application/json"
}
