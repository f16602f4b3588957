package recordkv

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	ErrUnknownField     = errors.New("unknown key field")
	ErrUnexportedField  = errors.New("key field not exported")
	ErrEmptyKeySpec     = errors.New("empty key spec")
	ErrUnsupportedShape = errors.New("unsupported shape")

	ErrKeyMismatch = errors.New("key does not match key spec")

	ErrMalformed      = errors.New("malformed data")
	ErrSchemaMismatch = errors.New("schema mismatch")

	ErrBatchSubmitted  = errors.New("batch already submitted")
	ErrForeignSnapshot = errors.New("snapshot belongs to another store")
	ErrSnapshotClosed  = errors.New("snapshot is closed")
)

// ValidationError is returned by Define when a record type or its key spec
// is invalid. Err is one of ErrUnknownField, ErrUnexportedField,
// ErrEmptyKeySpec or ErrUnsupportedShape.
type ValidationError struct {
	Type  reflect.Type
	Field string
	Err   error
	Msg   string
}

func validationErrf(typ reflect.Type, field string, err error, format string, args ...any) error {
	return &ValidationError{typ, field, err, fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Error() string {
	var buf strings.Builder
	buf.WriteString(typeName(e.Type))
	if e.Field != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Field)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Err.Error())
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	return buf.String()
}

type EncodeError struct {
	Type reflect.Type
	What string // "key" or "value"
	Err  error
	Msg  string
}

func encodeErrf(typ reflect.Type, what string, err error, format string, args ...any) error {
	return &EncodeError{typ, what, err, fmt.Sprintf(format, args...)}
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

func (e *EncodeError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("encoding %s %s: %v", typeName(e.Type), e.What, e.Err)
	}
	return fmt.Sprintf("encoding %s %s: %s: %v", typeName(e.Type), e.What, e.Msg, e.Err)
}

// DecodeError reports bytes that cannot be decoded as the expected key or
// value. errors.Is matches both Kind (ErrMalformed or ErrSchemaMismatch)
// and the underlying codec error.
type DecodeError struct {
	Type reflect.Type
	What string // "key" or "value"
	Kind error
	Data []byte
	Err  error
	Msg  string
}

func decodeErrf(typ reflect.Type, what string, kind error, data []byte, err error, format string, args ...any) error {
	return &DecodeError{typ, what, kind, data, err, fmt.Sprintf(format, args...)}
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func (e *DecodeError) Error() string {
	const prefixLen = 64
	const suffixLen = 32

	var buf strings.Builder
	fmt.Fprintf(&buf, "decoding %s %s: %v", typeName(e.Type), e.What, e.Kind)
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		fmt.Fprintf(&buf, ": (%d) %x", n, e.Data)
	} else {
		fmt.Fprintf(&buf, ": (%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
	return buf.String()
}

// StoreError wraps a failure of the underlying key-value store.
type StoreError struct {
	Op  string
	Key []byte
	Err error
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Error() string {
	if e.Key == nil {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, hexstr(e.Key), e.Err)
}

func typeName(typ reflect.Type) string {
	if typ == nil {
		return "<nil>"
	}
	return typ.String()
}
