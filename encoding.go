package recordkv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

type encodingMethod int

const (
	MsgPack encodingMethod = iota
	JSON

	defaultValueEncoding = MsgPack
)

func (enc encodingMethod) String() string {
	switch enc {
	case MsgPack:
		return "msgpack"
	case JSON:
		return "json"
	default:
		return fmt.Sprintf("encoding(%d)", int(enc))
	}
}

func (enc encodingMethod) EncodeValue(buf []byte, objVal reflect.Value) ([]byte, error) {
	switch enc {
	case MsgPack:
		bb := bytesBuilder{buf}
		enc := msgpack.GetEncoder()
		enc.ResetDict(&bb, nil)
		enc.SetSortMapKeys(true)
		err := enc.EncodeValue(objVal)
		msgpack.PutEncoder(enc)
		if err != nil {
			return nil, err
		}
		return bb.Buf, nil
	case JSON:
		raw, err := json.Marshal(objVal.Interface())
		if err != nil {
			return nil, err
		}
		return appendRaw(buf, raw), nil
	default:
		panic("unsupported encoding")
	}
}

// DecodeValue decodes buf into the struct objPtrVal points to. On failure it
// returns the error kind (ErrMalformed or ErrSchemaMismatch) and the cause.
func (enc encodingMethod) DecodeValue(buf []byte, objPtrVal reflect.Value) (kind error, err error) {
	switch enc {
	case MsgPack:
		if len(buf) == 0 {
			return ErrMalformed, fmt.Errorf("no data")
		}
		var r bytes.Reader
		r.Reset(buf)
		dec := msgpack.GetDecoder()
		defer msgpack.PutDecoder(dec)
		dec.ResetDict(&r, nil)
		dec.DisallowUnknownFields(true)

		c, err := dec.PeekCode()
		if err != nil {
			return classifyDecodeErr(err), err
		}
		if !msgpcode.IsFixedMap(c) && c != msgpcode.Map16 && c != msgpcode.Map32 {
			return ErrSchemaMismatch, fmt.Errorf("expected a msgpack map, got code %#x", c)
		}
		err = dec.Decode(objPtrVal.Interface())
		if err != nil {
			return classifyDecodeErr(err), err
		}
		if r.Len() > 0 {
			return ErrMalformed, fmt.Errorf("%d trailing bytes", r.Len())
		}
		return nil, nil
	case JSON:
		if !json.Valid(buf) {
			return ErrMalformed, fmt.Errorf("invalid JSON")
		}
		if b := bytes.TrimLeft(buf, " \t\r\n"); b[0] != '{' {
			return ErrSchemaMismatch, fmt.Errorf("expected a JSON object")
		}
		dec := json.NewDecoder(bytes.NewReader(buf))
		dec.DisallowUnknownFields()
		err := dec.Decode(objPtrVal.Interface())
		if err != nil {
			return ErrSchemaMismatch, err
		}
		return nil, nil
	default:
		panic("unsupported encoding")
	}
}
