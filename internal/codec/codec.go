package codec

import "encoding/json"

// Codec encodes payloads at the envelope serialization boundary. The
// envelope shape (topic/group or entity id plus payload) is fixed; a codec
// only covers the payload bytes carried inside it.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// Default is the codec the bridges use for payloads.
var Default Codec = JSONCodec{}
