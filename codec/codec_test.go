package codec

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type post struct {
	ID    string   `json:"id" msgpack:"id" cbor:"id"`
	Title string   `json:"title" msgpack:"title" cbor:"title"`
	Tags  []string `json:"tags" msgpack:"tags" cbor:"tags"`
}

func TestCloneIsDeep(t *testing.T) {
	codecs := map[string]Codec[post]{
		"json":    JSON[post]{},
		"msgpack": Msgpack[post]{},
		"cbor":    MustCBOR[post](true),
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			orig := post{ID: "p1", Title: "hello", Tags: []string{"a", "b"}}
			cp, err := Clone(c, orig)
			if err != nil {
				t.Fatalf("Clone: %v", err)
			}
			if !reflect.DeepEqual(orig, cp) {
				t.Fatalf("clone differs: %+v vs %+v", orig, cp)
			}
			cp.Tags[0] = "mutated"
			if orig.Tags[0] != "a" {
				t.Fatalf("clone aliases original slice")
			}
		})
	}
}

func TestCBORDeterministicIsStable(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	a, err := c.Encode(map[string]int{"z": 1, "a": 2, "m": 3})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(map[string]int{"m": 3, "z": 1, "a": 2})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("deterministic encoding differs")
	}
}

func TestProtobufClone(t *testing.T) {
	c := NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })
	orig, err := structpb.NewStruct(map[string]any{"v": 1.0, "name": "K"})
	if err != nil {
		t.Fatal(err)
	}
	cp, err := Clone[*structpb.Struct](c, orig)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if !proto.Equal(orig, cp) {
		t.Fatalf("proto clone differs")
	}
	if cp == orig {
		t.Fatalf("clone returned the same pointer")
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte("abcd")); err != nil {
		t.Fatalf("at limit: %v", err)
	}
	_, err := c.Decode([]byte("abcde"))
	var tl *ErrTooLarge
	if !errors.As(err, &tl) || tl.Size != 5 || tl.Max != 4 {
		t.Fatalf("want ErrTooLarge{5,4}, got %v", err)
	}
}

func TestBytesDoesNotAlias(t *testing.T) {
	in := []byte("abc")
	out, _ := Clone[[]byte](Bytes{}, in)
	out[0] = 'x'
	if in[0] != 'a' {
		t.Fatalf("Bytes codec aliased input")
	}
}

func TestMsgpackSortsMapKeys(t *testing.T) {
	c := Msgpack[map[string]int]{}
	for i := 0; i < 20; i++ {
		a, err := c.Encode(map[string]int{"z": 1, "a": 2, "m": 3})
		if err != nil {
			t.Fatal(err)
		}
		b, err := c.Encode(map[string]int{"m": 3, "a": 2, "z": 1})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("msgpack encoding depends on map order")
		}
	}
}

func TestCBORRejectsDuplicateKeys(t *testing.T) {
	c := MustCBOR[map[string]int](false)
	// {"a": 1, "a": 2}
	dup := []byte{0xa2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}
	if _, err := c.Decode(dup); err == nil {
		t.Fatalf("duplicate map key accepted")
	}
}

func TestStringRejectsInvalidUTF8(t *testing.T) {
	if _, err := (String{}).Decode([]byte{0xff, 0xfe}); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("want ErrInvalidUTF8, got %v", err)
	}
	s, err := (String{}).Decode([]byte("héllo"))
	if err != nil || s != "héllo" {
		t.Fatalf("valid text rejected: %q %v", s, err)
	}
}

func TestProtobufWithoutConstructor(t *testing.T) {
	var c Protobuf[*structpb.Struct]
	if _, err := c.Decode(nil); err == nil {
		t.Fatalf("expected an error without a constructor")
	}
}
