package recordkv

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// keyCodec encodes the key field values of a record type, in key spec order.
// A codec for a single-field key writes exactly what encoding the bare field
// value would produce.
type keyCodec interface {
	encode(buf []byte, vals []reflect.Value) ([]byte, error)
	decode(data []byte) ([]reflect.Value, error)
}

// keyDecodeError carries the error kind (ErrMalformed or ErrSchemaMismatch)
// up to the record type, which wraps it into a DecodeError.
type keyDecodeError struct {
	kind error
	err  error
}

func (e *keyDecodeError) Error() string { return e.err.Error() }
func (e *keyDecodeError) Unwrap() error { return e.err }

func keyMalformed(err error) error { return &keyDecodeError{ErrMalformed, err} }
func keyMismatch(err error) error  { return &keyDecodeError{ErrSchemaMismatch, err} }

// classifyDecodeErr maps a codec error to ErrMalformed (ran out of data) or
// ErrSchemaMismatch (data is there, but has the wrong shape).
func classifyDecodeErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrMalformed
	}
	return ErrSchemaMismatch
}

type msgpackKeyCodec struct {
	types []reflect.Type
	// wantMap marks components that encode as a msgpack map. msgpack also
	// decodes structs from arrays, which would let a multi-field key of
	// another record type pass for a struct-typed key.
	wantMap []bool
}

func newMsgpackKeyCodec(types []reflect.Type) *msgpackKeyCodec {
	kc := &msgpackKeyCodec{types: types, wantMap: make([]bool, len(types))}
	for i, typ := range types {
		kc.wantMap[i] = encodesAsMsgpackMap(typ)
	}
	return kc
}

func encodesAsMsgpackMap(typ reflect.Type) bool {
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct || typ == timeType {
		return false
	}
	if f, ok := typ.FieldByName("_msgpack"); ok {
		tag := f.Tag.Get("msgpack")
		if strings.Contains(tag, "as_array") || strings.Contains(tag, "asArray") {
			return false
		}
	}
	for _, t := range []reflect.Type{typ, reflect.PointerTo(typ)} {
		if t.Implements(customEncoderType) || t.Implements(msgpackMarshalerType) ||
			t.Implements(binaryMarshalerType) || t.Implements(textMarshalerType) {
			return false
		}
	}
	return true
}

func (kc *msgpackKeyCodec) encode(buf []byte, vals []reflect.Value) ([]byte, error) {
	bb := bytesBuilder{buf}
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.ResetDict(&bb, nil)
	enc.SetSortMapKeys(true)

	if len(kc.types) != 1 {
		err := enc.EncodeArrayLen(len(vals))
		if err != nil {
			return nil, err
		}
	}
	for _, val := range vals {
		err := enc.EncodeValue(val)
		if err != nil {
			return nil, err
		}
	}
	return bb.Buf, nil
}

func (kc *msgpackKeyCodec) decode(data []byte) ([]reflect.Value, error) {
	if len(data) == 0 {
		return nil, keyMalformed(io.ErrUnexpectedEOF)
	}

	var r bytes.Reader
	r.Reset(data)
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.ResetDict(&r, nil)
	dec.DisallowUnknownFields(true)

	if len(kc.types) != 1 {
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, &keyDecodeError{classifyDecodeErr(err), err}
		}
		if n != len(kc.types) {
			return nil, keyMismatch(fmt.Errorf("got %d key components, wanted %d", n, len(kc.types)))
		}
	}

	vals := make([]reflect.Value, len(kc.types))
	for i, typ := range kc.types {
		if kc.wantMap[i] {
			c, err := dec.PeekCode()
			if err != nil {
				return nil, &keyDecodeError{classifyDecodeErr(err), err}
			}
			isNilPtr := c == msgpcode.Nil && typ.Kind() == reflect.Ptr
			if !isNilPtr && !msgpcode.IsFixedMap(c) && c != msgpcode.Map16 && c != msgpcode.Map32 {
				return nil, keyMismatch(fmt.Errorf("component %d (%v): expected a msgpack map, got code %#x", i, typ, c))
			}
		}
		ptr := reflect.New(typ)
		err := dec.Decode(ptr.Interface())
		if err != nil {
			return nil, &keyDecodeError{classifyDecodeErr(err), fmt.Errorf("component %d (%v): %w", i, typ, err)}
		}
		vals[i] = ptr.Elem()
	}
	if r.Len() > 0 {
		return nil, keyMalformed(fmt.Errorf("%d trailing bytes", r.Len()))
	}
	return vals, nil
}

type flatKeyCodec struct {
	types []reflect.Type
	encs  []*flatEncoding
}

func newFlatKeyCodec(types []reflect.Type) (*flatKeyCodec, error) {
	kc := &flatKeyCodec{types: types}
	for _, typ := range types {
		enc, err := flatEncodingOf(typ)
		if err != nil {
			return nil, err
		}
		for _, fc := range enc.components {
			if fc.ViaPtr {
				return nil, fmt.Errorf("%v%s: pointers cannot tell nil from zero in ordered keys", typ, fc.Path)
			}
		}
		kc.encs = append(kc.encs, enc)
	}
	return kc, nil
}

func (kc *flatKeyCodec) encode(buf []byte, vals []reflect.Value) ([]byte, error) {
	fe := flatEncoder{buf: buf}
	for i, enc := range kc.encs {
		err := enc.encodeInto(&fe, vals[i])
		if err != nil {
			return nil, err
		}
	}
	return fe.finalize(), nil
}

func (kc *flatKeyCodec) decode(data []byte) ([]reflect.Value, error) {
	if len(data) == 0 {
		return nil, keyMalformed(io.ErrUnexpectedEOF)
	}
	tup, err := decodeTuple(data)
	if err != nil {
		return nil, keyMalformed(err)
	}

	var total int
	for _, enc := range kc.encs {
		total += len(enc.components)
	}
	if len(tup) != total {
		return nil, keyMismatch(fmt.Errorf("got %d key components, wanted %d", len(tup), total))
	}

	vals := make([]reflect.Value, len(kc.types))
	for i, enc := range kc.encs {
		n := len(enc.components)
		ptr := reflect.New(kc.types[i])
		err := enc.decodeTup(tup[:n], ptr)
		if err != nil {
			return nil, keyMismatch(fmt.Errorf("component %d (%v): %w", i, kc.types[i], err))
		}
		tup = tup[n:]
		vals[i] = ptr.Elem()
	}
	return vals, nil
}
