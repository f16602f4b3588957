package recordkv

import (
	"errors"
	"testing"
)

func TestBatch_Submit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		s := NewStore(kv, commandType, StoreOptions{Verbose: true})
		stale := &Command{Executable: 9, Args: []string{"old"}}
		ensure(s.Put(stale))

		b := s.NewBatch()
		cmds := []*Command{
			{Executable: 1, Args: []string{"a"}},
			{Executable: 2, Args: []string{"b"}, CurrentDir: strptr("/tmp")},
		}
		for _, cmd := range cmds {
			ensure(b.Put(cmd))
		}
		ensure(b.Delete(must(commandType.Key(stale))))
		extra := &Command{Executable: 3}
		ensure(b.PutEncoded(must(commandType.Key(extra)), must(commandType.EncodeValue(extra))))
		deepEqual(t, b.Len(), 4)

		// nothing is visible before Submit
		isnil(t, must(s.Get(must(commandType.Key(cmds[0])))))
		isnonnil(t, must(s.Get(must(commandType.Key(stale)))))

		ensure(b.Submit(true))
		deepEqual(t, b.Submitted(), true)
		deepEqual(t, b.Len(), 0)

		var got []*Command
		for r, err := range s.Records(ReadOptions{}) {
			ensure(err)
			got = append(got, r)
		}
		deepEqual(t, got, []*Command{cmds[0], cmds[1], extra})
	})
}

func TestBatch_LastWriteWins(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		s := NewStore(kv, userType, StoreOptions{})
		b := s.NewBatch()
		ensure(b.Put(&User{Name: "foo", Email: "first@example.com"}))
		ensure(b.Put(&User{Name: "foo", Email: "second@example.com"}))
		ensure(b.Put(&User{Name: "bar", Email: "bar@example.com"}))
		ensure(b.Delete(must(userType.EncodeKey("bar"))))
		ensure(b.Submit(false))

		deepEqual(t, must(s.Get(must(userType.EncodeKey("foo")))), &User{Name: "foo", Email: "second@example.com"})
		isnil(t, must(s.Get(must(userType.EncodeKey("bar")))))
	})
}

func TestBatch_SingleUse(t *testing.T) {
	s := NewStore(NewMemKV(), userType, StoreOptions{})
	b := s.NewBatch()
	ensure(b.Put(&User{Name: "foo"}))
	ensure(b.Submit(false))

	u := &User{Name: "bar"}
	key := must(userType.Key(u))
	for _, err := range []error{
		b.Put(u),
		b.PutEncoded(key, must(userType.EncodeValue(u))),
		b.Delete(key),
		b.Submit(false),
	} {
		if !errors.Is(err, ErrBatchSubmitted) {
			t.Errorf("** err = %v, wanted ErrBatchSubmitted", err)
		}
	}
	isnil(t, must(s.Get(key)))
}

func TestBatch_Empty(t *testing.T) {
	s := NewStore(failingKV{errors.New("should not be called")}, userType, StoreOptions{})
	b := s.NewBatch()
	ensure(b.Submit(true))
	deepEqual(t, b.Submitted(), true)
}

func TestBatch_EncodeErrorKeepsBatchUsable(t *testing.T) {
	s := NewStore(NewMemKV(), userType, StoreOptions{})
	b := s.NewBatch()
	var ee *EncodeError
	if err := b.Put(nil); !errors.As(err, &ee) {
		t.Fatalf("Put(nil) err = %v, wanted *EncodeError", err)
	}
	deepEqual(t, b.Len(), 0)
	ensure(b.Put(&User{Name: "foo"}))
	ensure(b.Submit(false))
	isnonnil(t, must(s.Get(must(userType.EncodeKey("foo")))))
}

func TestBatch_FailedSubmitConsumesBatch(t *testing.T) {
	diskErr := errors.New("disk on fire")
	s := NewStore(failingKV{diskErr}, userType, StoreOptions{})
	b := s.NewBatch()
	ensure(b.Put(&User{Name: "foo"}))
	if err := b.Submit(false); !errors.Is(err, diskErr) {
		t.Fatalf("Submit err = %v, wanted backend error", err)
	}
	if err := b.Submit(false); !errors.Is(err, ErrBatchSubmitted) {
		t.Fatalf("second Submit err = %v, wanted ErrBatchSubmitted", err)
	}
}
