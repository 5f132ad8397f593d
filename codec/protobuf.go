package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

// Protobuf snapshots generated messages, e.g.
//
//	codec.NewProtobuf(func() *pb.Board { return &pb.Board{} })
//
// Encoding is deterministic so equal messages spill to equal bytes.
type Protobuf[T proto.Message] struct {
	fresh func() T
}

var errNoMessage = errors.New("codec: protobuf constructor is nil")

// NewProtobuf takes a constructor returning a new empty message on each call.
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{fresh: ctor}
}

var protoMarshal = proto.MarshalOptions{Deterministic: true}

func (c Protobuf[T]) Encode(v T) ([]byte, error) { return protoMarshal.Marshal(v) }

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	if c.fresh == nil {
		var zero T
		return zero, errNoMessage
	}
	m := c.fresh()
	if err := proto.Unmarshal(b, m); err != nil {
		var zero T
		return zero, err
	}
	return m, nil
}
