package server

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec replaces connect's protojson codec so handlers can exchange
// plain Go structs.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// WithJSON is the codec option shared by handlers and clients.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
