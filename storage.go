package recordkv

// KV is an ordered byte-oriented key-value store. Implementations are
// expected to be safe for concurrent use when the underlying engine is.
type KV interface {
	// Get returns the value stored under key, or nil, nil if there is none.
	// The returned slice is owned by the caller.
	Get(key []byte, opt ReadOptions) ([]byte, error)

	// Put stores a key-value pair. With sync, the engine flushes to durable
	// media before returning, if it distinguishes the two modes.
	Put(key, value []byte, sync bool) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key []byte, sync bool) error

	// Iterate returns a cursor over the keys in opt.Range, in byte order
	// (or reverse byte order).
	Iterate(opt ReadOptions) (Cursor, error)

	// Write applies all ops atomically.
	Write(ops []BatchOp, sync bool) error

	// NewSnapshot returns a consistent read-only view of the store, to be
	// passed in ReadOptions. The caller must close it.
	NewSnapshot() (Snapshot, error)
}

// Cursor iterates over key-value pairs. Key and Value are only valid until
// the next call to Next or Close.
type Cursor interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

type BatchOp struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// ReadOptions are passed through to the KV unchanged.
type ReadOptions struct {
	Range    RawRange
	Snapshot Snapshot
}

// Snapshot is released by Close, which may be called more than once. Reads
// through a closed snapshot fail with ErrSnapshotClosed.
type Snapshot interface {
	Close() error
}

// KVStats are backend statistics; backends fill in what they track.
type KVStats struct {
	Keys      int
	DataSize  int64
	DataAlloc int64
}

type statser interface {
	Stats() (KVStats, error)
}

// seekCursor is the positioning primitive shared by all backends; a nil key
// means the cursor ran off either end.
type seekCursor interface {
	First() (key, value []byte)
	Last() (key, value []byte)
	Seek(seek []byte) (key, value []byte)
	Next() (key, value []byte)
	Prev() (key, value []byte)
}
