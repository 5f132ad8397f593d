package codec

import "encoding/json"

// JSON uses encoding/json. Unexported fields are dropped, so prefer Msgpack or
// CBOR for snapshot cloning of types that rely on them.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
