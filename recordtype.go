package recordkv

import (
	"encoding/hex"
	"fmt"
	"reflect"
)

// KeySpecer is implemented by record types that declare their key fields
// themselves. TypeBuilder.Key takes precedence.
type KeySpecer interface {
	KeyFields() []string
}

// EncodedKey is the encoded key of a record of type R. The record type is only
// a type parameter, so keys of different record types cannot be mixed up.
type EncodedKey[R any] struct {
	raw []byte
}

// KeyFromBytes wraps raw bytes (e.g. read from the store by other means) as a
// key of R. The key takes ownership of b.
func KeyFromBytes[R any](b []byte) EncodedKey[R] {
	return EncodedKey[R]{b}
}

func (k EncodedKey[R]) Bytes() []byte  { return k.raw }
func (k EncodedKey[R]) IsZero() bool   { return k.raw == nil }
func (k EncodedKey[R]) String() string { return hex.EncodeToString(k.raw) }

// EncodedValue is a fully serialized record of type R.
type EncodedValue[R any] struct {
	raw []byte
}

func ValueFromBytes[R any](b []byte) EncodedValue[R] {
	return EncodedValue[R]{b}
}

func (v EncodedValue[R]) Bytes() []byte  { return v.raw }
func (v EncodedValue[R]) IsZero() bool   { return v.raw == nil }
func (v EncodedValue[R]) String() string { return hex.EncodeToString(v.raw) }

// KeyTupleRef holds pointers to the key fields of a record, in key spec order.
type KeyTupleRef []any

// KeyTuple holds the values of the key fields, in key spec order.
type KeyTuple []any

// RecordType describes how records of type R map onto store keys and values.
// It is immutable once defined and safe for concurrent use.
type RecordType[R any] struct {
	name            string
	typ             reflect.Type
	keySpec         []string
	keyFields       []keyField
	keyTypes        []reflect.Type
	keyEnc          keyCodec
	orderedKeys     bool
	valueEnc        encodingMethod
	suppressContent bool
}

type TypeBuilder[R any] struct {
	rt      *RecordType[R]
	keySpec []string
	keySet  bool
}

// Define validates R and its key spec and returns the record type. The
// callback may be nil when R implements KeySpecer.
func Define[R any](f func(b *TypeBuilder[R])) (*RecordType[R], error) {
	typ := reflect.TypeFor[R]()
	if typ.Kind() != reflect.Struct {
		return nil, validationErrf(typ, "", ErrUnsupportedShape, "%v is a %v, not a struct", typ, typ.Kind())
	}
	rt := &RecordType[R]{
		name:     typ.Name(),
		typ:      typ,
		valueEnc: defaultValueEncoding,
	}

	b := TypeBuilder[R]{rt: rt}
	if f != nil {
		f(&b)
	}
	spec := b.keySpec
	if !b.keySet {
		ks, ok := any(new(R)).(KeySpecer)
		if !ok {
			return nil, validationErrf(typ, "", ErrEmptyKeySpec, "call TypeBuilder.Key or implement KeyFields")
		}
		spec = ks.KeyFields()
	}
	rt.keySpec = append([]string(nil), spec...)

	if rt.valueEnc != MsgPack && rt.valueEnc != JSON {
		return nil, validationErrf(typ, "", ErrUnsupportedShape, "unknown value encoding %v", rt.valueEnc)
	}

	fields, err := resolveKeyFields(typ, rt.keySpec)
	if err != nil {
		return nil, err
	}
	rt.keyFields = fields
	for _, kf := range fields {
		rt.keyTypes = append(rt.keyTypes, kf.Type)
	}

	if rt.orderedKeys {
		kc, err := newFlatKeyCodec(rt.keyTypes)
		if err != nil {
			return nil, validationErrf(typ, "", ErrUnsupportedShape, "ordered keys: %v", err)
		}
		rt.keyEnc = kc
	} else {
		for _, kf := range fields {
			if err := checkMsgpackKeyType(kf.Type); err != nil {
				return nil, validationErrf(typ, kf.Name, ErrUnsupportedShape, "%v", err)
			}
		}
		rt.keyEnc = newMsgpackKeyCodec(rt.keyTypes)
	}
	return rt, nil
}

// MustDefine is Define that panics on error, for package-level variables.
func MustDefine[R any](f func(b *TypeBuilder[R])) *RecordType[R] {
	return must(Define(f))
}

// Key sets the key spec: the names of the fields forming the key, in order.
func (b *TypeBuilder[R]) Key(fields ...string) {
	b.keySpec = fields
	b.keySet = true
}

// Name overrides the name used in logs, errors and dumps.
func (b *TypeBuilder[R]) Name(name string) {
	b.rt.name = name
}

// OrderedKeys selects the tuple key encoding, which sorts logically for
// fixed-width leading components but supports fewer field types.
func (b *TypeBuilder[R]) OrderedKeys() {
	b.rt.orderedKeys = true
}

func (b *TypeBuilder[R]) ValueEncoding(enc encodingMethod) {
	b.rt.valueEnc = enc
}

func (b *TypeBuilder[R]) SuppressContentWhenLogging() {
	b.rt.suppressContent = true
}

func (rt *RecordType[R]) Name() string {
	return rt.name
}

func (rt *RecordType[R]) Type() reflect.Type {
	return rt.typ
}

func (rt *RecordType[R]) KeySpec() []string {
	return append([]string(nil), rt.keySpec...)
}

func (rt *RecordType[R]) KeyTypes() []reflect.Type {
	return append([]reflect.Type(nil), rt.keyTypes...)
}

func (rt *RecordType[R]) HasOrderedKeys() bool {
	return rt.orderedKeys
}

func (rt *RecordType[R]) keyVals(r *R) []reflect.Value {
	rowVal := reflect.ValueOf(r).Elem()
	vals := make([]reflect.Value, len(rt.keyFields))
	for i := range rt.keyFields {
		vals[i] = rt.keyFields[i].valueIn(rowVal)
	}
	return vals
}

// KeyRef returns pointers into r for its key fields: a KeyTupleRef, or the
// bare pointer for a single-field key.
func (rt *RecordType[R]) KeyRef(r *R) any {
	vals := rt.keyVals(r)
	if len(vals) == 1 {
		return vals[0].Addr().Interface()
	}
	ref := make(KeyTupleRef, len(vals))
	for i, v := range vals {
		ref[i] = v.Addr().Interface()
	}
	return ref
}

// KeyOf returns the key field values of r: a KeyTuple, or the bare value for
// a single-field key.
func (rt *RecordType[R]) KeyOf(r *R) any {
	return rt.collapse(rt.keyVals(r))
}

func (rt *RecordType[R]) collapse(vals []reflect.Value) any {
	if len(vals) == 1 {
		return vals[0].Interface()
	}
	tup := make(KeyTuple, len(vals))
	for i, v := range vals {
		tup[i] = v.Interface()
	}
	return tup
}

// Key encodes the key of r.
func (rt *RecordType[R]) Key(r *R) (EncodedKey[R], error) {
	return rt.encodeKeyVals(rt.keyVals(r))
}

// EncodeKey encodes a key from its parts, given in key spec order. A single
// KeyTuple or KeyTupleRef is accepted in place of the parts.
func (rt *RecordType[R]) EncodeKey(parts ...any) (EncodedKey[R], error) {
	if len(parts) == 1 && len(rt.keyFields) != 1 {
		switch p := parts[0].(type) {
		case KeyTuple:
			parts = p
		case KeyTupleRef:
			parts = p
		}
	}
	if len(parts) != len(rt.keyFields) {
		return EncodedKey[R]{}, encodeErrf(rt.typ, "key", ErrKeyMismatch, "got %d parts, key spec %v has %d", len(parts), rt.keySpec, len(rt.keyFields))
	}
	vals := make([]reflect.Value, len(parts))
	for i, part := range parts {
		v, err := coerceKeyPart(part, rt.keyFields[i].Type)
		if err != nil {
			return EncodedKey[R]{}, encodeErrf(rt.typ, "key", ErrKeyMismatch, "%s: %v", rt.keyFields[i].Name, err)
		}
		vals[i] = v
	}
	return rt.encodeKeyVals(vals)
}

func (rt *RecordType[R]) encodeKeyVals(vals []reflect.Value) (EncodedKey[R], error) {
	raw, err := rt.keyEnc.encode(nil, vals)
	if err != nil {
		return EncodedKey[R]{}, encodeErrf(rt.typ, "key", err, "")
	}
	return EncodedKey[R]{raw}, nil
}

// DecodeKey is the inverse of EncodeKey. It returns a KeyTuple, or the bare
// value for a single-field key.
func (rt *RecordType[R]) DecodeKey(k EncodedKey[R]) (any, error) {
	vals, err := rt.decodeKeyVals(k.raw)
	if err != nil {
		return nil, err
	}
	return rt.collapse(vals), nil
}

func (rt *RecordType[R]) decodeKeyVals(raw []byte) ([]reflect.Value, error) {
	vals, err := rt.keyEnc.decode(raw)
	if err != nil {
		kind := ErrSchemaMismatch
		if kerr, ok := err.(*keyDecodeError); ok {
			kind, err = kerr.kind, kerr.err
		}
		return nil, decodeErrf(rt.typ, "key", kind, raw, err, "")
	}
	return vals, nil
}

// SetKey decodes k into the key fields of r, leaving other fields alone.
func (rt *RecordType[R]) SetKey(r *R, k EncodedKey[R]) error {
	vals, err := rt.decodeKeyVals(k.raw)
	if err != nil {
		return err
	}
	rowVal := reflect.ValueOf(r).Elem()
	for i := range rt.keyFields {
		rt.keyFields[i].valueIn(rowVal).Set(vals[i])
	}
	return nil
}

func (rt *RecordType[R]) EncodeValue(r *R) (EncodedValue[R], error) {
	if r == nil {
		return EncodedValue[R]{}, encodeErrf(rt.typ, "value", fmt.Errorf("nil record"), "")
	}
	raw, err := rt.valueEnc.EncodeValue(nil, reflect.ValueOf(r).Elem())
	if err != nil {
		return EncodedValue[R]{}, encodeErrf(rt.typ, "value", err, "using %v", rt.valueEnc)
	}
	return EncodedValue[R]{raw}, nil
}

func (rt *RecordType[R]) DecodeValue(v EncodedValue[R]) (*R, error) {
	r := new(R)
	kind, err := rt.valueEnc.DecodeValue(v.raw, reflect.ValueOf(r))
	if err != nil {
		return nil, decodeErrf(rt.typ, "value", kind, v.raw, err, "using %v", rt.valueEnc)
	}
	return r, nil
}
