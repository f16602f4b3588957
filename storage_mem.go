package recordkv

import (
	"bytes"
	"log/slog"
	"slices"
	"sort"
	"sync"
)

// MemKV is a transient in-memory KV intended for tests and ephemeral data.
//
// Snapshots and cursors share the current item slice; the next write after
// one is taken copies the slice, so readers never see later changes.
type MemKV struct {
	mu     sync.Mutex
	items  []memItem // sorted by key
	shared bool
	logger *slog.Logger
}

var _ KV = (*MemKV)(nil)

func NewMemKV() *MemKV {
	return &MemKV{logger: slog.Default()}
}

type memItem struct {
	key   []byte
	value []byte
}

type memSnapshot struct {
	owner  *MemKV
	items  []memItem
	closed bool
}

func (s *memSnapshot) Close() error {
	s.items = nil
	s.closed = true
	return nil
}

func (m *MemKV) view(opt ReadOptions) ([]memItem, error) {
	if opt.Snapshot != nil {
		snap, ok := opt.Snapshot.(*memSnapshot)
		if !ok || snap.owner != m {
			return nil, ErrForeignSnapshot
		}
		if snap.closed {
			return nil, ErrSnapshotClosed
		}
		return snap.items, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shared = true
	return m.items, nil
}

// mutableLocked returns the item slice for writing, copying it if readers hold it.
func (m *MemKV) mutableLocked() []memItem {
	if m.shared {
		m.items = slices.Clone(m.items)
		m.shared = false
	}
	return m.items
}

func findMemItem(items []memItem, key []byte) (idx int, ok bool) {
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, key) >= 0
	})
	if i < len(items) && bytes.Equal(items[i].key, key) {
		return i, true
	}
	return i, false
}

func (m *MemKV) Get(key []byte, opt ReadOptions) ([]byte, error) {
	if opt.Snapshot != nil {
		items, err := m.view(opt)
		if err != nil {
			return nil, err
		}
		return memGet(items, key), nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return memGet(m.items, key), nil
}

func memGet(items []memItem, key []byte) []byte {
	i, ok := findMemItem(items, key)
	if !ok {
		return nil
	}
	return slices.Clone(items[i].value)
}

func (m *MemKV) Put(key, value []byte, sync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(key, value)
	return nil
}

func (m *MemKV) putLocked(key, value []byte) {
	key = slices.Clone(key)
	value = slices.Clone(value)
	if value == nil {
		value = []byte{}
	}

	items := m.mutableLocked()
	i, ok := findMemItem(items, key)
	if ok {
		items[i].value = value
		return
	}
	m.items = slices.Insert(items, i, memItem{key: key, value: value})
}

func (m *MemKV) Delete(key []byte, sync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(key)
	return nil
}

func (m *MemKV) deleteLocked(key []byte) {
	if _, ok := findMemItem(m.items, key); !ok {
		return
	}
	items := m.mutableLocked()
	i, _ := findMemItem(items, key)
	m.items = slices.Delete(items, i, i+1)
}

func (m *MemKV) Write(ops []BatchOp, sync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if op.Delete {
			m.deleteLocked(op.Key)
		} else {
			m.putLocked(op.Key, op.Value)
		}
	}
	return nil
}

func (m *MemKV) Iterate(opt ReadOptions) (Cursor, error) {
	if err := opt.Range.validate(); err != nil {
		return nil, err
	}
	items, err := m.view(opt)
	if err != nil {
		return nil, err
	}
	return opt.Range.newCursor(&memCursor{items: items, pos: -1}, m.logger), nil
}

func (m *MemKV) NewSnapshot() (Snapshot, error) {
	items, err := m.view(ReadOptions{})
	if err != nil {
		return nil, err
	}
	return &memSnapshot{owner: m, items: items}, nil
}

func (m *MemKV) Stats() (KVStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inuse int64
	for _, kv := range m.items {
		inuse += int64(len(kv.key) + len(kv.value))
	}
	return KVStats{
		Keys:      len(m.items),
		DataSize:  inuse,
		DataAlloc: inuse,
	}, nil
}

type memCursor struct {
	items []memItem
	pos   int
}

func (c *memCursor) First() ([]byte, []byte) {
	c.pos = 0
	if len(c.items) == 0 {
		return nil, nil
	}
	kv := c.items[c.pos]
	return kv.key, kv.value
}

func (c *memCursor) Last() ([]byte, []byte) {
	if len(c.items) == 0 {
		c.pos = 0
		return nil, nil
	}
	c.pos = len(c.items) - 1
	kv := c.items[c.pos]
	return kv.key, kv.value
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	i, _ := findMemItem(c.items, seek)
	c.pos = i
	if i >= len(c.items) {
		return nil, nil
	}
	kv := c.items[i]
	return kv.key, kv.value
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.pos < 0 {
		return c.First()
	}
	c.pos++
	if c.pos >= len(c.items) {
		c.pos = len(c.items)
		return nil, nil
	}
	kv := c.items[c.pos]
	return kv.key, kv.value
}

func (c *memCursor) Prev() ([]byte, []byte) {
	if c.pos <= 0 {
		c.pos = -1
		return nil, nil
	}
	c.pos--
	if c.pos >= len(c.items) {
		c.pos = len(c.items) - 1
	}
	if c.pos < 0 {
		return nil, nil
	}
	kv := c.items[c.pos]
	return kv.key, kv.value
}
