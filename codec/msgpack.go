package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack is the compact choice for cold copies. Map keys are sorted and
// integers packed to their smallest form, so a snapshot of the same value
// encodes the same way every time. Tag fields with `msgpack:"name"` when the
// JSON names differ. The zero value is ready to use.
type Msgpack[V any] struct{}

var _ Codec[struct{}] = Msgpack[struct{}]{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	if err := msgpack.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		var zero V
		return zero, err
	}
	return v, nil
}
