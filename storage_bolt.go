package recordkv

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"
)

var errBucketMissing = errors.New("bucket missing")

// BoltKV stores its keys in one bucket of a Bolt database. The sync flag is
// ignored: every Bolt write transaction is synced unless the database was
// opened with NoSync.
type BoltKV struct {
	bdb    *bbolt.DB
	bucket []byte
	logger *slog.Logger
}

var _ KV = (*BoltKV)(nil)

type BoltOptions struct {
	Logger    *slog.Logger
	IsTesting bool
	MmapSize  int
}

// OpenBolt opens a Bolt database with the settings used throughout this
// package. The caller closes it.
func OpenBolt(path string, opt BoltOptions) (*bbolt.DB, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("recordkv: %w", err)
	}
	return bdb, nil
}

// NewBoltKV returns a KV over the named bucket, creating it if needed.
func NewBoltKV(bdb *bbolt.DB, bucket string, opt BoltOptions) (*BoltKV, error) {
	kv := &BoltKV{
		bdb:    bdb,
		bucket: []byte(bucket),
		logger: opt.Logger,
	}
	if kv.logger == nil {
		kv.logger = slog.Default()
	}
	err := bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(kv.bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recordkv: creating bucket %q: %w", bucket, err)
	}
	return kv, nil
}

func (kv *BoltKV) Bolt() *bbolt.DB {
	return kv.bdb
}

type boltSnapshot struct {
	bdb    *bbolt.DB
	btx    *bbolt.Tx
	closed bool
}

func (s *boltSnapshot) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.btx.Rollback()
	if err == bbolt.ErrTxClosed {
		return nil
	}
	return err
}

func (kv *BoltKV) bucketIn(btx *bbolt.Tx) (*bbolt.Bucket, error) {
	b := btx.Bucket(kv.bucket)
	if b == nil {
		return nil, fmt.Errorf("%w: %q", errBucketMissing, kv.bucket)
	}
	return b, nil
}

// snapshotTx returns the read transaction of a snapshot taken on the same
// Bolt database, or nil.
func (kv *BoltKV) snapshotTx(opt ReadOptions) (*bbolt.Tx, error) {
	if opt.Snapshot == nil {
		return nil, nil
	}
	snap, ok := opt.Snapshot.(*boltSnapshot)
	if !ok || snap.bdb != kv.bdb {
		return nil, ErrForeignSnapshot
	}
	if snap.closed {
		return nil, ErrSnapshotClosed
	}
	return snap.btx, nil
}

func (kv *BoltKV) Get(key []byte, opt ReadOptions) ([]byte, error) {
	stx, err := kv.snapshotTx(opt)
	if err != nil {
		return nil, err
	}
	var result []byte
	get := func(btx *bbolt.Tx) error {
		b, err := kv.bucketIn(btx)
		if err != nil {
			return err
		}
		result = cloneBytes(b.Get(key))
		return nil
	}
	if stx != nil {
		err = get(stx)
	} else {
		err = kv.bdb.View(get)
	}
	return result, err
}

func (kv *BoltKV) Put(key, value []byte, sync bool) error {
	return kv.bdb.Update(func(btx *bbolt.Tx) error {
		b, err := kv.bucketIn(btx)
		if err != nil {
			return err
		}
		if value == nil {
			value = []byte{}
		}
		return b.Put(key, value)
	})
}

func (kv *BoltKV) Delete(key []byte, sync bool) error {
	return kv.bdb.Update(func(btx *bbolt.Tx) error {
		b, err := kv.bucketIn(btx)
		if err != nil {
			return err
		}
		return b.Delete(key)
	})
}

func (kv *BoltKV) Write(ops []BatchOp, sync bool) error {
	return kv.bdb.Update(func(btx *bbolt.Tx) error {
		b, err := kv.bucketIn(btx)
		if err != nil {
			return err
		}
		for _, op := range ops {
			if op.Delete {
				err = b.Delete(op.Key)
			} else {
				value := op.Value
				if value == nil {
					value = []byte{}
				}
				err = b.Put(op.Key, value)
			}
			if err != nil {
				return fmt.Errorf("%x: %w", op.Key, err)
			}
		}
		return nil
	})
}

// Iterate holds a Bolt read transaction until the cursor is closed (unless
// reading from a snapshot, which owns its transaction).
func (kv *BoltKV) Iterate(opt ReadOptions) (Cursor, error) {
	if err := opt.Range.validate(); err != nil {
		return nil, err
	}
	stx, err := kv.snapshotTx(opt)
	if err != nil {
		return nil, err
	}
	btx := stx
	if btx == nil {
		btx, err = kv.bdb.Begin(false)
		if err != nil {
			return nil, err
		}
	}
	b, err := kv.bucketIn(btx)
	if err != nil {
		if stx == nil {
			btx.Rollback()
		}
		return nil, err
	}

	c := opt.Range.newCursor(b.Cursor(), kv.logger)
	if stx == nil {
		c.closef = btx.Rollback
	}
	return c, nil
}

func (kv *BoltKV) NewSnapshot() (Snapshot, error) {
	btx, err := kv.bdb.Begin(false)
	if err != nil {
		return nil, err
	}
	return &boltSnapshot{bdb: kv.bdb, btx: btx}, nil
}

func (kv *BoltKV) Stats() (KVStats, error) {
	var result KVStats
	err := kv.bdb.View(func(btx *bbolt.Tx) error {
		b, err := kv.bucketIn(btx)
		if err != nil {
			return err
		}
		bs := b.Stats()
		result = KVStats{
			Keys:      bs.KeyN,
			DataSize:  int64(bs.LeafInuse),
			DataAlloc: int64(bs.BranchAlloc + bs.LeafAlloc),
		}
		return nil
	})
	return result, err
}
