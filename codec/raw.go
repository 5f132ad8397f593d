package codec

import (
	"errors"
	"unicode/utf8"
)

// Bytes copies on both sides. A rollback snapshot taken with it stays intact
// even if the caller keeps writing into the slice it handed to the cache.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

// ErrInvalidUTF8 is returned by String.Decode for input that is not UTF-8,
// which for a cold copy means the frame was damaged.
var ErrInvalidUTF8 = errors.New("codec: invalid utf-8")

// String stores text values. Strings are immutable, so Clone is just a copy.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }

func (String) Decode(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}
