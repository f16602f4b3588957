package recordkv

// Iterator walks over the records of a store. It is not safe for concurrent
// use. Close releases backend resources (a Bolt read transaction or a Pebble
// iterator).
type Iterator[R any] struct {
	store *Store[R]
	cur   Cursor
	err   error
}

func (it *Iterator[R]) Next() bool {
	if it.err != nil {
		return false
	}
	return it.cur.Next()
}

// Key returns a copy of the current key.
func (it *Iterator[R]) Key() EncodedKey[R] {
	return EncodedKey[R]{cloneBytes(it.cur.Key())}
}

// Value returns a copy of the current value.
func (it *Iterator[R]) Value() EncodedValue[R] {
	return EncodedValue[R]{cloneBytes(it.cur.Value())}
}

// KeyTuple decodes the current key, see RecordType.DecodeKey.
func (it *Iterator[R]) KeyTuple() (any, error) {
	return it.store.typ.DecodeKey(EncodedKey[R]{it.cur.Key()})
}

func (it *Iterator[R]) Record() (*R, error) {
	return it.store.typ.DecodeValue(EncodedValue[R]{it.cur.Value()})
}

func (it *Iterator[R]) Err() error {
	if it.err != nil {
		return it.err
	}
	if err := it.cur.Err(); err != nil {
		it.err = &StoreError{Op: "iterate", Err: err}
	}
	return it.err
}

func (it *Iterator[R]) Close() error {
	err := it.cur.Close()
	if err != nil {
		return &StoreError{Op: "iterate", Err: err}
	}
	return nil
}
