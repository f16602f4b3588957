package recordkv

import (
	"encoding"
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// FlatMarshaler lets a type choose its own representation inside ordered keys.
type FlatMarshaler interface {
	MarshalFlat(buf []byte) []byte
}

type FlatUnmarshaler interface {
	UnmarshalFlat(buf []byte) error
}

var flatMarshalerType = reflect.TypeFor[FlatMarshaler]()
var flatUnmarshalerType = reflect.TypeFor[FlatUnmarshaler]()
var binaryMarshalerType = reflect.TypeFor[encoding.BinaryMarshaler]()
var binaryUnmarshalerType = reflect.TypeFor[encoding.BinaryUnmarshaler]()
var timeType = reflect.TypeFor[time.Time]()
var byteType = reflect.TypeFor[byte]()

const signBit = uint64(1) << 63

func appendUint64(buf []byte, v uint64) []byte {
	off, buf := grow(buf, 8)
	binary.BigEndian.PutUint64(buf[off:], v)
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	off, buf := grow(buf, 4)
	binary.BigEndian.PutUint32(buf[off:], v)
	return buf
}

type flatEncoder struct {
	buf []byte
	tupleEncoder
}

func (fe *flatEncoder) begin() {
	fe.tupleEncoder.begin(fe.buf)
}
func (fe *flatEncoder) append(b []byte) {
	fe.buf = appendRaw(fe.buf, b)
}
func (fe *flatEncoder) finalize() []byte {
	return fe.tupleEncoder.finalize(fe.buf)
}

var flatEncodings sync.Map

type flatEncoding struct {
	typ        reflect.Type
	components []*flatComponent
}

type flatComponent struct {
	Type    reflect.Type
	Path    string
	Getters []func(v reflect.Value, init bool) reflect.Value
	Decode  func(b []byte, v reflect.Value) error
	Encode  func(fe *flatEncoder, v reflect.Value) error

	// ViaPtr is set when the component is reached through a pointer, which
	// encodes nil the same as a pointer to the zero value.
	ViaPtr bool
}

func (fc *flatComponent) valueIn(val reflect.Value, init bool) reflect.Value {
	for i := len(fc.Getters) - 1; i >= 0; i-- {
		if !val.IsValid() {
			return val
		}
		val = fc.Getters[i](val, init)
	}
	return val
}

func flatEncodingOf(typ reflect.Type) (*flatEncoding, error) {
	if e, ok := flatEncodings.Load(typ); ok {
		return e.(*flatEncoding), nil
	}
	enc := &flatEncoding{typ: typ}
	err := enumerateFlatComponents(typ, func(fc *flatComponent) {
		enc.components = append(enc.components, fc)
	})
	if err != nil {
		return nil, err
	}
	actual, _ := flatEncodings.LoadOrStore(typ, enc)
	return actual.(*flatEncoding), nil
}

func (enc *flatEncoding) encode(buf []byte, val reflect.Value) ([]byte, error) {
	fe := flatEncoder{buf: buf}
	err := enc.encodeInto(&fe, val)
	if err != nil {
		return nil, err
	}
	return fe.finalize(), nil
}

func (enc *flatEncoding) encodeInto(fe *flatEncoder, val reflect.Value) error {
	for _, fc := range enc.components {
		fe.begin()
		cval := fc.valueIn(val, false)
		if !cval.IsValid() {
			// nil pointer on the way, encode as zero
			cval = reflect.Zero(fc.Type)
		}
		err := fc.Encode(fe, cval)
		if err != nil {
			return fmt.Errorf("%s%w", pathPrefix(fc.Path), err)
		}
	}
	return nil
}

func (enc *flatEncoding) decode(buf []byte, ptrVal reflect.Value) error {
	tup, err := decodeTuple(buf)
	if err != nil {
		return err
	}
	return enc.decodeTup(tup, ptrVal)
}

func (enc *flatEncoding) decodeTup(tup tuple, ptrVal reflect.Value) error {
	if ptrVal.Kind() != reflect.Ptr {
		panic(fmt.Errorf("flatEncoding must be decoding into a ptr, got %v", ptrVal.Type()))
	}
	val := ptrVal.Elem()

	if len(tup) != len(enc.components) {
		return fmt.Errorf("wrong number of components: got %d, wanted %d", len(tup), len(enc.components))
	}

	for i, fc := range enc.components {
		cval := fc.valueIn(val, true)
		if !cval.IsValid() || !cval.CanSet() {
			panic(fmt.Errorf("unsettable cval while decoding %v%s", enc.typ, fc.Path))
		}
		err := fc.Decode(tup[i], cval)
		if err != nil {
			return fmt.Errorf("%s%w", pathPrefix(fc.Path), err)
		}
	}
	return nil
}

func enumerateFlatComponents(typ reflect.Type, f func(fc *flatComponent)) error {
	if typ == timeType {
		f(&flatComponent{
			Type: typ,
			Encode: func(fe *flatEncoder, v reflect.Value) error {
				value := v.Interface().(time.Time)
				fe.buf = appendUint64(fe.buf, uint64(value.Unix())^signBit)
				fe.buf = appendUint32(fe.buf, uint32(value.Nanosecond()))
				return nil
			},
			Decode: func(b []byte, v reflect.Value) error {
				if len(b) != 12 {
					return fmt.Errorf("invalid time.Time data length: got %d bytes, wanted %d", len(b), 12)
				}
				sec := int64(binary.BigEndian.Uint64(b) ^ signBit)
				nsec := int64(binary.BigEndian.Uint32(b[8:]))
				v.Set(reflect.ValueOf(time.Unix(sec, nsec).UTC()))
				return nil
			},
		})
		return nil
	}
	if typ.Implements(flatMarshalerType) && reflect.PointerTo(typ).Implements(flatUnmarshalerType) {
		f(&flatComponent{
			Type: typ,
			Encode: func(fe *flatEncoder, v reflect.Value) error {
				fe.buf = v.Interface().(FlatMarshaler).MarshalFlat(fe.buf)
				return nil
			},
			Decode: func(b []byte, v reflect.Value) error {
				return v.Addr().Interface().(FlatUnmarshaler).UnmarshalFlat(b)
			},
		})
		return nil
	}
	if typ.Implements(binaryMarshalerType) && reflect.PointerTo(typ).Implements(binaryUnmarshalerType) {
		f(&flatComponent{
			Type: typ,
			Encode: func(fe *flatEncoder, v reflect.Value) error {
				data, err := v.Interface().(encoding.BinaryMarshaler).MarshalBinary()
				if err != nil {
					return fmt.Errorf("%v.MarshalBinary: %w", v.Type(), err)
				}
				fe.append(data)
				return nil
			},
			Decode: func(b []byte, v reflect.Value) error {
				return v.Addr().Interface().(encoding.BinaryUnmarshaler).UnmarshalBinary(cloneBytes(b))
			},
		})
		return nil
	}
	switch typ.Kind() {
	case reflect.String:
		f(&flatComponent{
			Type: typ,
			Encode: func(fe *flatEncoder, v reflect.Value) error {
				fe.buf = append(fe.buf, v.String()...)
				return nil
			},
			Decode: func(b []byte, v reflect.Value) error {
				v.SetString(string(b))
				return nil
			},
		})
	case reflect.Uint, reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8, reflect.Uintptr:
		f(&flatComponent{
			Type: typ,
			Encode: func(fe *flatEncoder, v reflect.Value) error {
				fe.buf = appendUint64(fe.buf, v.Uint())
				return nil
			},
			Decode: func(b []byte, v reflect.Value) error {
				if len(b) != 8 {
					return fmt.Errorf("invalid uint length: got %d bytes, wanted %d", len(b), 8)
				}
				value := binary.BigEndian.Uint64(b)
				if v.OverflowUint(value) {
					return fmt.Errorf("value %d overflows %v", value, v.Type())
				}
				v.SetUint(value)
				return nil
			},
		})
	case reflect.Int, reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8:
		f(&flatComponent{
			Type: typ,
			Encode: func(fe *flatEncoder, v reflect.Value) error {
				fe.buf = appendUint64(fe.buf, uint64(v.Int())^signBit)
				return nil
			},
			Decode: func(b []byte, v reflect.Value) error {
				if len(b) != 8 {
					return fmt.Errorf("invalid int length: got %d bytes, wanted %d", len(b), 8)
				}
				value := int64(binary.BigEndian.Uint64(b) ^ signBit)
				if v.OverflowInt(value) {
					return fmt.Errorf("value %d overflows %v", value, v.Type())
				}
				v.SetInt(value)
				return nil
			},
		})
	case reflect.Ptr:
		elemType := typ.Elem()
		get := func(v reflect.Value, init bool) reflect.Value {
			if v.IsNil() {
				if !init {
					return reflect.Value{}
				}
				v.Set(reflect.New(elemType))
			}
			return v.Elem()
		}
		return enumerateFlatComponents(elemType, func(fc *flatComponent) {
			fc.Getters = append(fc.Getters, get)
			fc.ViaPtr = true
			f(fc)
		})
	case reflect.Struct:
		n := typ.NumField()
		if n == 0 {
			return fmt.Errorf("cannot encode empty struct %v", typ)
		}
		for i := 0; i < n; i++ {
			field := typ.Field(i)
			if !field.IsExported() {
				return fmt.Errorf("cannot encode unexported field %v.%s", typ, field.Name)
			}
			get := func(v reflect.Value, init bool) reflect.Value {
				return v.Field(i)
			}
			err := enumerateFlatComponents(field.Type, func(fc *flatComponent) {
				fc.Getters = append(fc.Getters, get)
				fc.Path = "." + field.Name + fc.Path
				f(fc)
			})
			if err != nil {
				return err
			}
		}
	case reflect.Slice:
		if typ.Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("cannot encode slice %v", typ)
		}
		f(&flatComponent{
			Type: typ,
			Encode: func(fe *flatEncoder, v reflect.Value) error {
				fe.append(v.Bytes())
				return nil
			},
			Decode: func(b []byte, v reflect.Value) error {
				v.SetBytes(cloneBytes(b))
				return nil
			},
		})
	case reflect.Array:
		if typ.Elem() != byteType {
			return fmt.Errorf("cannot encode array %v", typ)
		}
		f(&flatComponent{
			Type: typ,
			Encode: func(fe *flatEncoder, v reflect.Value) error {
				off, buf := grow(fe.buf, v.Len())
				reflect.Copy(reflect.ValueOf(buf[off:]), v)
				fe.buf = buf
				return nil
			},
			Decode: func(b []byte, v reflect.Value) error {
				if len(b) != v.Len() {
					return fmt.Errorf("invalid %v length: got %d bytes, wanted %d", v.Type(), len(b), v.Len())
				}
				reflect.Copy(v, reflect.ValueOf(b))
				return nil
			},
		})
	default:
		return fmt.Errorf("cannot encode %v", typ)
	}
	return nil
}

func pathPrefix(p string) string {
	if p == "" {
		return ""
	}
	return p + ": "
}
