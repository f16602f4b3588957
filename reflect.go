package recordkv

import (
	"encoding"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

var customEncoderType = reflect.TypeFor[msgpack.CustomEncoder]()
var msgpackMarshalerType = reflect.TypeFor[msgpack.Marshaler]()
var textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()

type keyField struct {
	Name  string
	Index []int
	Type  reflect.Type
}

func (kf *keyField) valueIn(rowVal reflect.Value) reflect.Value {
	return rowVal.FieldByIndex(kf.Index)
}

// resolveKeyFields maps key spec names to struct fields of typ. Names may
// refer to fields promoted from embedded structs, but not through embedded
// pointers, since a nil pointer would leave the key unreadable.
func resolveKeyFields(typ reflect.Type, names []string) ([]keyField, error) {
	if len(names) == 0 {
		return nil, validationErrf(typ, "", ErrEmptyKeySpec, "")
	}
	fields := make([]keyField, 0, len(names))
	for _, name := range names {
		sf, ok := typ.FieldByName(name)
		if !ok {
			return nil, validationErrf(typ, name, ErrUnknownField, "no such field (or ambiguous)")
		}
		if !sf.IsExported() {
			return nil, validationErrf(typ, name, ErrUnexportedField, "")
		}
		t := typ
		for _, i := range sf.Index[:len(sf.Index)-1] {
			f := t.Field(i)
			if f.Type.Kind() != reflect.Struct {
				return nil, validationErrf(typ, name, ErrUnsupportedShape, "promoted through embedded %v", f.Type)
			}
			t = f.Type
		}
		fields = append(fields, keyField{
			Name:  name,
			Index: sf.Index,
			Type:  sf.Type,
		})
	}
	return fields, nil
}

// checkMsgpackKeyType rejects types that msgpack either cannot encode, cannot
// decode back into the same value, or can encode in more than one way.
func checkMsgpackKeyType(typ reflect.Type) error {
	return checkMsgpackKeyTypeRec(typ, make(map[reflect.Type]bool))
}

func checkMsgpackKeyTypeRec(typ reflect.Type, seen map[reflect.Type]bool) error {
	if seen[typ] {
		return nil
	}
	seen[typ] = true

	if typ == timeType || typ.Implements(customEncoderType) || typ.Implements(binaryMarshalerType) {
		return nil
	}
	switch typ.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Interface, reflect.Complex64, reflect.Complex128:
		return fmt.Errorf("cannot encode %v", typ)
	case reflect.Map:
		// msgpack writes most maps in iteration order
		return fmt.Errorf("%v: map encoding is not deterministic", typ)
	case reflect.Float32, reflect.Float64:
		// -0 and 0 are equal but encode differently, NaN never equals itself
		return fmt.Errorf("%v: floating point keys have no canonical encoding", typ)
	case reflect.Ptr, reflect.Slice, reflect.Array:
		return checkMsgpackKeyTypeRec(typ.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < typ.NumField(); i++ {
			f := typ.Field(i)
			if !f.IsExported() {
				continue
			}
			if err := checkMsgpackKeyTypeRec(f.Type, seen); err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
		}
	}
	return nil
}

// coerceKeyPart converts a caller-supplied key part to the key field type.
// Parts may be values or pointers to values of the field type, values of a
// type with the same underlying kind, or numbers that fit the field type.
func coerceKeyPart(part any, typ reflect.Type) (reflect.Value, error) {
	v := reflect.ValueOf(part)
	if !v.IsValid() {
		switch typ.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Map:
			return reflect.Zero(typ), nil
		}
		return reflect.Value{}, fmt.Errorf("nil for %v", typ)
	}
	if v.Type() == typ {
		return v, nil
	}
	if v.Kind() == reflect.Ptr && typ.Kind() != reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil %v for %v", v.Type(), typ)
		}
		v = v.Elem()
		if v.Type() == typ {
			return v, nil
		}
	}

	switch {
	case isIntKind(v.Kind()) && isIntKind(typ.Kind()):
		n := v.Int()
		out := reflect.New(typ).Elem()
		if out.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("%d overflows %v", n, typ)
		}
		out.SetInt(n)
		return out, nil
	case isIntKind(v.Kind()) && isUintKind(typ.Kind()):
		n := v.Int()
		out := reflect.New(typ).Elem()
		if n < 0 || out.OverflowUint(uint64(n)) {
			return reflect.Value{}, fmt.Errorf("%d overflows %v", n, typ)
		}
		out.SetUint(uint64(n))
		return out, nil
	case isUintKind(v.Kind()) && isUintKind(typ.Kind()):
		n := v.Uint()
		out := reflect.New(typ).Elem()
		if out.OverflowUint(n) {
			return reflect.Value{}, fmt.Errorf("%d overflows %v", n, typ)
		}
		out.SetUint(n)
		return out, nil
	case isUintKind(v.Kind()) && isIntKind(typ.Kind()):
		n := v.Uint()
		out := reflect.New(typ).Elem()
		if n > 1<<63-1 || out.OverflowInt(int64(n)) {
			return reflect.Value{}, fmt.Errorf("%d overflows %v", n, typ)
		}
		out.SetInt(int64(n))
		return out, nil
	case v.Kind() == typ.Kind() && v.Type().ConvertibleTo(typ):
		return v.Convert(typ), nil
	}
	return reflect.Value{}, fmt.Errorf("%v is not %v", v.Type(), typ)
}

func isIntKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}
