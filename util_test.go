package recordkv

import (
	"log/slog"
	"testing"
)

func TestInc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		ok       bool
	}{
		{"0000", "0001", true},
		{"00ff", "0100", true},
		{"10ffff", "110000", true},
		{"ff", "ff", false},
		{"ffff", "ffff", false},
		{"", "", false},
	}
	for _, tt := range tests {
		b := x(tt.input)
		ok := inc(b)
		if ok != tt.ok || hexstr(b) != hexstr(x(tt.expected)) {
			t.Errorf("** inc(%s) = %x, %v, wanted %s, %v", tt.input, b, ok, tt.expected, tt.ok)
		}
	}
}

func TestHexHelpers(t *testing.T) {
	if got := hexstr(nil); got != "<nil>" {
		t.Fatalf("hexstr(nil) = %q, wanted <nil>", got)
	}
	if got := hexstr([]byte{}); got != "<empty>" {
		t.Fatalf("hexstr(empty) = %q, wanted <empty>", got)
	}
	if got := hexstr([]byte{0xAA, 0xBB}); got != "aabb" {
		t.Fatalf("hexstr = %q, wanted aabb", got)
	}
	a := hexAttr("k", []byte{0xAA})
	if a.Key != "k" || a.Value.Kind() != slog.KindString || a.Value.String() != "aa" {
		t.Fatalf("hexAttr returned unexpected attr: %+v", a)
	}
}

func TestCloneBytes(t *testing.T) {
	if cloneBytes(nil) != nil {
		t.Fatalf("cloneBytes(nil) != nil")
	}
	if b := cloneBytes([]byte{}); b == nil || len(b) != 0 {
		t.Fatalf("cloneBytes(empty) = %#v, wanted non-nil empty", b)
	}
	src := []byte{1, 2, 3}
	dst := cloneBytes(src)
	src[0] = 9
	deepEqual(t, dst, []byte{1, 2, 3})
}

func TestMustAndEnsure(t *testing.T) {
	if v := must(42, nil); v != 42 {
		t.Fatalf("must = %d, wanted 42", v)
	}
	assertPanics(t, func() {
		must(0, ErrMalformed)
	})
	assertPanics(t, func() {
		ensure(ErrMalformed)
	})
}
