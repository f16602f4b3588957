package recordkv

import (
	"log/slog"
)

// Batch collects writes in memory and applies them atomically on Submit.
// A batch is single-use and not safe for concurrent use.
type Batch[R any] struct {
	store     *Store[R]
	ops       []BatchOp
	submitted bool
}

func (s *Store[R]) NewBatch() *Batch[R] {
	return &Batch[R]{store: s}
}

func (b *Batch[R]) Put(r *R) error {
	if b.submitted {
		return ErrBatchSubmitted
	}
	key, value, err := b.store.encodeRecord(r)
	if err != nil {
		return err
	}
	b.ops = append(b.ops, BatchOp{Key: key.raw, Value: value.raw})
	return nil
}

func (b *Batch[R]) PutEncoded(key EncodedKey[R], value EncodedValue[R]) error {
	if b.submitted {
		return ErrBatchSubmitted
	}
	b.ops = append(b.ops, BatchOp{Key: key.raw, Value: value.raw})
	return nil
}

func (b *Batch[R]) Delete(key EncodedKey[R]) error {
	if b.submitted {
		return ErrBatchSubmitted
	}
	b.ops = append(b.ops, BatchOp{Key: key.raw, Delete: true})
	return nil
}

func (b *Batch[R]) Len() int {
	return len(b.ops)
}

func (b *Batch[R]) Submitted() bool {
	return b.submitted
}

// Submit applies all collected writes in one atomic KV write. The batch is
// consumed even if the write fails.
func (b *Batch[R]) Submit(durable bool) error {
	if b.submitted {
		return ErrBatchSubmitted
	}
	b.submitted = true
	ops := b.ops
	b.ops = nil
	if len(ops) == 0 {
		return nil
	}

	err := b.store.kv.Write(ops, durable)
	if err != nil {
		return &StoreError{Op: "batch", Err: err}
	}
	if b.store.verbose {
		var puts, deletes int
		for _, op := range ops {
			if op.Delete {
				deletes++
			} else {
				puts++
			}
		}
		b.store.logOp("BATCH", nil, slog.Int("puts", puts), slog.Int("deletes", deletes), slog.Bool("durable", durable))
	}
	return nil
}
