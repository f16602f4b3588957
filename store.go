package recordkv

import (
	"context"
	"iter"
	"log/slog"
)

type StoreOptions struct {
	Logger  *slog.Logger
	Verbose bool
}

// Store reads and writes records of type R in a KV. It holds no state besides
// its configuration; every call goes to the KV.
type Store[R any] struct {
	kv      KV
	typ     *RecordType[R]
	logger  *slog.Logger
	verbose bool
}

func NewStore[R any](kv KV, typ *RecordType[R], opt StoreOptions) *Store[R] {
	if kv == nil {
		panic("recordkv: nil KV")
	}
	if typ == nil {
		panic("recordkv: nil record type")
	}
	s := &Store[R]{
		kv:      kv,
		typ:     typ,
		logger:  opt.Logger,
		verbose: opt.Verbose,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Store[R]) Type() *RecordType[R] { return s.typ }
func (s *Store[R]) KV() KV                { return s.kv }

func (s *Store[R]) logOp(op string, key []byte, attrs ...slog.Attr) {
	attrs = append([]slog.Attr{slog.String("type", s.typ.name), hexAttr("key", key)}, attrs...)
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "recordkv: "+op, attrs...)
}

func (s *Store[R]) PutEncoded(key EncodedKey[R], value EncodedValue[R], durable bool) error {
	err := s.kv.Put(key.raw, value.raw, durable)
	if err != nil {
		return &StoreError{Op: "put", Key: key.raw, Err: err}
	}
	if s.verbose {
		s.logOp("PUT", key.raw, slog.Bool("durable", durable), slog.Int("size", len(value.raw)))
	}
	return nil
}

// GetEncoded returns the stored value and true, or false if key is absent.
func (s *Store[R]) GetEncoded(key EncodedKey[R], opt ReadOptions) (EncodedValue[R], bool, error) {
	raw, err := s.kv.Get(key.raw, opt)
	if err != nil {
		return EncodedValue[R]{}, false, &StoreError{Op: "get", Key: key.raw, Err: err}
	}
	if raw == nil {
		if s.verbose {
			s.logOp("GET.NOTFOUND", key.raw)
		}
		return EncodedValue[R]{}, false, nil
	}
	return EncodedValue[R]{raw}, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store[R]) Delete(key EncodedKey[R], durable bool) error {
	err := s.kv.Delete(key.raw, durable)
	if err != nil {
		return &StoreError{Op: "delete", Key: key.raw, Err: err}
	}
	if s.verbose {
		s.logOp("DELETE", key.raw, slog.Bool("durable", durable))
	}
	return nil
}

// Put stores r under its key without waiting for durability.
func (s *Store[R]) Put(r *R) error {
	return s.PutSync(r, false)
}

func (s *Store[R]) PutSync(r *R, durable bool) error {
	key, value, err := s.encodeRecord(r)
	if err != nil {
		return err
	}
	err = s.kv.Put(key.raw, value.raw, durable)
	if err != nil {
		return &StoreError{Op: "put", Key: key.raw, Err: err}
	}
	if s.verbose {
		s.logOp("PUT", key.raw, slog.Bool("durable", durable), slog.String("record", loggableRecord(s.typ, r)))
	}
	return nil
}

func (s *Store[R]) encodeRecord(r *R) (EncodedKey[R], EncodedValue[R], error) {
	value, err := s.typ.EncodeValue(r)
	if err != nil {
		return EncodedKey[R]{}, EncodedValue[R]{}, err
	}
	key, err := s.typ.Key(r)
	if err != nil {
		return EncodedKey[R]{}, EncodedValue[R]{}, err
	}
	return key, value, nil
}

// Get returns the record stored under key, or nil if there is none.
func (s *Store[R]) Get(key EncodedKey[R]) (*R, error) {
	return s.GetWithOptions(key, ReadOptions{})
}

func (s *Store[R]) GetWithOptions(key EncodedKey[R], opt ReadOptions) (*R, error) {
	value, found, err := s.GetEncoded(key, opt)
	if err != nil || !found {
		return nil, err
	}
	r, err := s.typ.DecodeValue(value)
	if err != nil {
		return nil, err
	}
	if s.verbose {
		s.logOp("GET", key.raw, slog.String("record", loggableRecord(s.typ, r)))
	}
	return r, nil
}

// DeleteRecord removes the record stored under the key of r.
func (s *Store[R]) DeleteRecord(r *R, durable bool) error {
	key, err := s.typ.Key(r)
	if err != nil {
		return err
	}
	return s.Delete(key, durable)
}

// Iterate returns an iterator over the stored records in the byte order of
// their encoded keys. The iterator must be closed.
func (s *Store[R]) Iterate(opt ReadOptions) (*Iterator[R], error) {
	cur, err := s.kv.Iterate(opt)
	if err != nil {
		return nil, &StoreError{Op: "iterate", Err: err}
	}
	return &Iterator[R]{store: s, cur: cur}, nil
}

// Records is Iterate for range-over-func loops. Iteration stops after the
// first error.
func (s *Store[R]) Records(opt ReadOptions) iter.Seq2[*R, error] {
	return func(yield func(*R, error) bool) {
		it, err := s.Iterate(opt)
		if err != nil {
			yield(nil, err)
			return
		}
		defer it.Close()
		for it.Next() {
			r, err := it.Record()
			if !yield(r, err) || err != nil {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func (s *Store[R]) NewSnapshot() (Snapshot, error) {
	snap, err := s.kv.NewSnapshot()
	if err != nil {
		return nil, &StoreError{Op: "snapshot", Err: err}
	}
	return snap, nil
}
