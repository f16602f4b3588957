package recordkv

import (
	"bytes"
	"encoding/hex"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

func TestMarshalFlat(t *testing.T) {
	type Foo struct {
		A int64
		B string
	}
	type Nested struct {
		F   Foo
		Ptr *uint16
	}
	u := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	k := must(ksuid.FromParts(time.Unix(1700000000, 0), bytes.Repeat([]byte{0xAB}, 16)))
	u16 := uint16(7)

	tests := []struct {
		input      any
		expected   string
		decodeBase any
	}{
		{"test", "74657374 01", ""},
		{0x42, "8000000000000042 01", 0},
		{-1, "7fffffffffffffff 01", 0},
		{int8(-128), "7fffffffffffff80 01", int8(0)},
		{uint64(0x42), "0000000000000042 01", uint64(0)},
		{uint8(0xFF), "00000000000000ff 01", uint8(0)},
		{Foo{0x42, "test"}, "8000000000000042 74657374 08 02", Foo{}},
		{&Foo{0x42, "test"}, "8000000000000042 74657374 08 02", &Foo{}},
		{Nested{Foo{1, "a"}, &u16}, "8000000000000001 61 0000000000000007 08 01 03", Nested{}},
		{[]byte("test"), "74657374 01", []byte(nil)},
		{[4]byte{'t', 'e', 's', 't'}, "74657374 01", [4]byte{}},
		{time.Unix(1, 5).UTC(), "8000000000000001 00000005 01", time.Time{}},
		{u, "7d4448409dc011d1b2455ffdce74fad2 01", uuid.UUID{}},
		{k, hex.EncodeToString(k[:]) + " 01", ksuid.KSUID{}},
	}
	for _, test := range tests {
		test.expected = strings.Map(removeSpaces, test.expected)
		inputVal := reflect.ValueOf(test.input)
		enc := must(flatEncodingOf(inputVal.Type()))
		a := must(enc.encode(nil, inputVal))
		aStr := hex.EncodeToString(a)
		if aStr != test.expected {
			t.Errorf("** MarshalFlat(%v) = %v, wanted %q", test.input, aStr, test.expected)
		} else {
			decodedVal := reflect.New(reflect.TypeOf(test.decodeBase))
			err := enc.decode(a, decodedVal)
			if err != nil {
				t.Errorf("** UnmarshalFlat(%s) failed: %v", aStr, err)
			} else {
				decoded := decodedVal.Elem().Interface()
				if !reflect.DeepEqual(decoded, test.input) {
					t.Errorf("** UnmarshalFlat(%s) = %v, wanted %v", aStr, decoded, test.input)
				}
			}
		}
	}
}

func TestMarshalFlat_Ordering(t *testing.T) {
	encodeInt := must(flatEncodingOf(reflect.TypeFor[int64]()))
	ints := []int64{-1 << 63, -300, -1, 0, 1, 300, 1<<63 - 1}
	var prev []byte
	for _, v := range ints {
		cur := must(encodeInt.encode(nil, reflect.ValueOf(v)))
		if prev != nil && bytes.Compare(prev, cur) >= 0 {
			t.Errorf("** encoding of %d (%x) does not sort after previous (%x)", v, cur, prev)
		}
		prev = cur
	}

	encodeKSUID := must(flatEncodingOf(reflect.TypeFor[ksuid.KSUID]()))
	payload := bytes.Repeat([]byte{0xFF}, 16)
	earlier := must(ksuid.FromParts(time.Unix(1700000000, 0), payload))
	later := must(ksuid.FromParts(time.Unix(1700000001, 0), make([]byte, 16)))
	a := must(encodeKSUID.encode(nil, reflect.ValueOf(earlier)))
	b := must(encodeKSUID.encode(nil, reflect.ValueOf(later)))
	if bytes.Compare(a, b) >= 0 {
		t.Errorf("** earlier KSUID %x does not sort before later KSUID %x", a, b)
	}
}

func TestMarshalFlat_UnsupportedTypes(t *testing.T) {
	type Empty struct{}
	type Hidden struct {
		A      int
		hidden string
	}
	types := []reflect.Type{
		reflect.TypeFor[float64](),
		reflect.TypeFor[[]int](),
		reflect.TypeFor[map[string]int](),
		reflect.TypeFor[[4]int](),
		reflect.TypeFor[Empty](),
		reflect.TypeFor[Hidden](),
		reflect.TypeFor[any](),
	}
	for _, typ := range types {
		if _, err := flatEncodingOf(typ); err == nil {
			t.Errorf("** flatEncodingOf(%v) succeeded, wanted error", typ)
		}
	}
}

func TestUnmarshalFlat_Errors(t *testing.T) {
	enc := must(flatEncodingOf(reflect.TypeFor[int32]()))
	tests := []struct {
		name  string
		input string
	}{
		{"short int", "0000 01"},
		{"overflow", "8000000100000000 01"},
		{"too many components", "8000000000000001 8000000000000002 08 02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v int32
			err := enc.decode(x(tt.input), reflect.ValueOf(&v))
			if err == nil {
				t.Fatalf("decode(%s) = %d, wanted error", tt.input, v)
			}
		})
	}
}

func removeSpaces(r rune) rune {
	if r == ' ' {
		return -1
	} else {
		return r
	}
}
