// Package wire frames cache entries spilled to a cold tier provider.
//
// Frame: magic(4) | ver(1) | gen(u64 be) | dataAt(i64 be, unix nanos) | vlen(u32 be) | payload(vlen)
//
// The generation is the key's generation at eviction time; a reader compares it to
// the live generation and drops frames written before an invalidation.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version byte = 1
	hdrLen       = 4 + 1 + 8 + 8 + 4
)

var (
	ErrCorrupt = errors.New("swrcache: corrupt cold entry")
	magic4     = [...]byte{'S', 'W', 'R', 'C'}
)

// Entry is a decoded frame.
type Entry struct {
	Gen     uint64
	DataAt  time.Time
	Payload []byte
}

func Encode(gen uint64, dataAt time.Time, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])

	var nanos int64
	if !dataAt.IsZero() {
		nanos = dataAt.UnixNano()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(nanos))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode parses a frame. The returned payload aliases b.
func Decode(b []byte) (Entry, error) {
	if len(b) < hdrLen || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return Entry{}, ErrCorrupt
	}
	off := 5

	gen := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	nanos := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	var dataAt time.Time
	if nanos != 0 {
		dataAt = time.Unix(0, nanos)
	}
	return Entry{Gen: gen, DataAt: dataAt, Payload: b[off : off+vlen]}, nil
}
