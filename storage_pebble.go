package recordkv

import (
	"errors"
	"io"
	"log/slog"

	"github.com/cockroachdb/pebble"
)

// PebbleKV is a KV over a whole Pebble database. The sync flag picks between
// pebble.Sync and pebble.NoSync.
type PebbleKV struct {
	db     *pebble.DB
	logger *slog.Logger
}

var _ KV = (*PebbleKV)(nil)

func NewPebbleKV(db *pebble.DB, logger *slog.Logger) *PebbleKV {
	if logger == nil {
		logger = slog.Default()
	}
	return &PebbleKV{db: db, logger: logger}
}

func (kv *PebbleKV) Pebble() *pebble.DB {
	return kv.db
}

// pebbleReader is implemented by both *pebble.DB and *pebble.Snapshot.
type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

type pebbleSnapshot struct {
	db     *pebble.DB
	snap   *pebble.Snapshot
	closed bool
}

func (s *pebbleSnapshot) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.snap.Close()
}

func writeOptions(sync bool) *pebble.WriteOptions {
	if sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (kv *PebbleKV) reader(opt ReadOptions) (pebbleReader, error) {
	if opt.Snapshot == nil {
		return kv.db, nil
	}
	snap, ok := opt.Snapshot.(*pebbleSnapshot)
	if !ok || snap.db != kv.db {
		return nil, ErrForeignSnapshot
	}
	if snap.closed {
		return nil, ErrSnapshotClosed
	}
	return snap.snap, nil
}

func (kv *PebbleKV) Get(key []byte, opt ReadOptions) ([]byte, error) {
	r, err := kv.reader(opt)
	if err != nil {
		return nil, err
	}
	data, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	defer closer.Close()

	value := make([]byte, len(data))
	copy(value, data)
	return value, nil
}

func (kv *PebbleKV) Put(key, value []byte, sync bool) error {
	return kv.db.Set(key, value, writeOptions(sync))
}

func (kv *PebbleKV) Delete(key []byte, sync bool) error {
	return kv.db.Delete(key, writeOptions(sync))
}

func (kv *PebbleKV) Write(ops []BatchOp, sync bool) error {
	b := kv.db.NewBatch()
	defer b.Close()
	for _, op := range ops {
		var err error
		if op.Delete {
			err = b.Delete(op.Key, nil)
		} else {
			err = b.Set(op.Key, op.Value, nil)
		}
		if err != nil {
			return err
		}
	}
	return b.Commit(writeOptions(sync))
}

func (kv *PebbleKV) Iterate(opt ReadOptions) (Cursor, error) {
	if err := opt.Range.validate(); err != nil {
		return nil, err
	}
	r, err := kv.reader(opt)
	if err != nil {
		return nil, err
	}
	it, err := r.NewIter(nil)
	if err != nil {
		return nil, err
	}
	c := opt.Range.newCursor(pebbleCursor{it}, kv.logger)
	c.errf = it.Error
	c.closef = it.Close
	return c, nil
}

func (kv *PebbleKV) NewSnapshot() (Snapshot, error) {
	return &pebbleSnapshot{db: kv.db, snap: kv.db.NewSnapshot()}, nil
}

func (kv *PebbleKV) Stats() (KVStats, error) {
	m := kv.db.Metrics()
	var result KVStats
	for _, level := range m.Levels {
		result.DataSize += level.Size
	}
	result.DataAlloc = result.DataSize + int64(m.MemTable.Size)

	// pebble does not track live key counts
	it, err := kv.db.NewIter(nil)
	if err != nil {
		return result, err
	}
	for valid := it.First(); valid; valid = it.Next() {
		result.Keys++
	}
	if err := it.Error(); err != nil {
		it.Close()
		return result, err
	}
	return result, it.Close()
}

type pebbleCursor struct {
	it *pebble.Iterator
}

func (c pebbleCursor) current(ok bool) ([]byte, []byte) {
	if !ok {
		return nil, nil
	}
	return c.it.Key(), c.it.Value()
}

func (c pebbleCursor) First() ([]byte, []byte)           { return c.current(c.it.First()) }
func (c pebbleCursor) Last() ([]byte, []byte)            { return c.current(c.it.Last()) }
func (c pebbleCursor) Seek(seek []byte) ([]byte, []byte) { return c.current(c.it.SeekGE(seek)) }
func (c pebbleCursor) Next() ([]byte, []byte)            { return c.current(c.it.Next()) }
func (c pebbleCursor) Prev() ([]byte, []byte)            { return c.current(c.it.Prev()) }
