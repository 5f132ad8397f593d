// Package codec serializes cached values. The cache uses codecs in two places:
// deep-copying optimistic rollback snapshots, and spilling evicted entries to a
// cold tier provider.
package codec

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Clone returns a deep copy of v by round-tripping it through c.
// The copy shares no memory with v as long as the codec does not alias input bytes.
func Clone[V any](c Codec[V], v V) (V, error) {
	b, err := c.Encode(v)
	if err != nil {
		var zero V
		return zero, err
	}
	return c.Decode(b)
}
