package recordkv

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestRawRange_Scans(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		for _, k := range []string{"1002", "1101", "1001", "12", "1003"} {
			ensure(kv.Put(x(k), []byte("v"+k), false))
		}

		tests := []struct {
			name     string
			rang     RawRange
			expected string
		}{
			{"all", RawOO(), "1001 1002 1003 1101 12"},
			{"all reversed", RawOO().Reversed(), "12 1101 1003 1002 1001"},
			{"prefix", RawPrefix(x("10")), "1001 1002 1003"},
			{"prefix reversed", RawPrefix(x("10")).Reversed(), "1003 1002 1001"},
			{"prefix single", RawPrefix(x("11")).Reversed(), "1101"},
			{"prefix before all", RawPrefix(x("0f")), ""},
			{"prefix before all reversed", RawPrefix(x("0f")).Reversed(), ""},
			{"prefix after all reversed", RawPrefix(x("13")).Reversed(), ""},
			{"prefix ff reversed", RawPrefix(x("ff")).Reversed(), ""},
			{"lower inclusive", RawIO(x("1002")), "1002 1003 1101 12"},
			{"lower exclusive", RawEO(x("1001")), "1002 1003 1101 12"},
			{"lower exclusive missing", RawEO(x("1000")), "1001 1002 1003 1101 12"},
			{"upper exclusive", RawOE(x("1003")), "1001 1002"},
			{"upper inclusive", RawOI(x("1003")), "1001 1002 1003"},
			{"upper exclusive reversed", RawOE(x("1003")).Reversed(), "1002 1001"},
			{"upper inclusive reversed", RawOI(x("1003")).Reversed(), "1003 1002 1001"},
			{"upper missing reversed", RawOI(x("10ff")).Reversed(), "1003 1002 1001"},
			{"upper past end reversed", RawOE(x("ff")).Reversed(), "12 1101 1003 1002 1001"},
			{"upper before all reversed", RawOE(x("1001")).Reversed(), ""},
			{"closed", RawII(x("1002"), x("1101")), "1002 1003 1101"},
			{"half open", RawIE(x("1002"), x("1101")), "1002 1003"},
			{"half open other way", RawEI(x("1002"), x("1101")), "1003 1101"},
			{"open", RawEE(x("1001"), x("1101")), "1002 1003"},
			{"open reversed", RawEE(x("1001"), x("1101")).Reversed(), "1003 1002"},
			{"prefix and lower", RawIO(x("1002")).Prefixed(x("10")), "1002 1003"},
			{"prefix and upper reversed", RawOI(x("1002")).Prefixed(x("10")).Reversed(), "1002 1001"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				deepEqual(t, scanKeys(t, kv, ReadOptions{Range: tt.rang}), tt.expected)
			})
		}
	})
}

func TestRawRange_PrefixMismatch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ensure(kv.Put(x("10"), []byte("a"), false))

		_, err := kv.Iterate(ReadOptions{Range: RawIO(x("11")).Prefixed(x("10"))})
		if !errors.Is(err, errLowerOutsidePrefix) {
			t.Errorf("** lower outside prefix: err = %v", err)
		}
		_, err = kv.Iterate(ReadOptions{Range: RawOI(x("11")).Prefixed(x("10")).Reversed()})
		if !errors.Is(err, errUpperOutsidePrefix) {
			t.Errorf("** upper outside prefix: err = %v", err)
		}
	})
}

func TestKV_GetPutDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		v, err := kv.Get(x("01"), ReadOptions{})
		ensure(err)
		if v != nil {
			t.Fatalf("Get(missing) = %x, wanted nil", v)
		}

		ensure(kv.Put(x("01"), []byte("one"), true))
		v = must(kv.Get(x("01"), ReadOptions{}))
		deepEqual(t, string(v), "one")

		// the caller owns the result
		v[0] = 'X'
		deepEqual(t, string(must(kv.Get(x("01"), ReadOptions{}))), "one")

		ensure(kv.Delete(x("01"), false))
		ensure(kv.Delete(x("01"), false))
		deepEqual(t, must(kv.Get(x("01"), ReadOptions{})), []byte(nil))
	})
}

func TestKV_Write(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ensure(kv.Put(x("03"), []byte("three"), false))
		ensure(kv.Write([]BatchOp{
			{Key: x("01"), Value: []byte("one")},
			{Key: x("02"), Value: []byte("two")},
			{Key: x("01"), Value: []byte("uno")},
			{Key: x("03"), Delete: true},
		}, true))
		deepEqual(t, scanKeys(t, kv, ReadOptions{}), "01 02")
		deepEqual(t, string(must(kv.Get(x("01"), ReadOptions{}))), "uno")
	})
}

func TestKV_Snapshot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ensure(kv.Put(x("01"), []byte("v1"), false))
		ensure(kv.Put(x("03"), []byte("v3"), false))

		snap := must(kv.NewSnapshot())
		ensure(kv.Put(x("01"), []byte("v1.2"), false))
		ensure(kv.Put(x("02"), []byte("v2"), false))
		ensure(kv.Delete(x("03"), false))

		opt := ReadOptions{Snapshot: snap}
		deepEqual(t, string(must(kv.Get(x("01"), opt))), "v1")
		deepEqual(t, must(kv.Get(x("02"), opt)), []byte(nil))
		deepEqual(t, string(must(kv.Get(x("03"), opt))), "v3")
		deepEqual(t, scanKeys(t, kv, opt), "01 03")
		deepEqual(t, scanKeys(t, kv, ReadOptions{Range: RawOO().Reversed(), Snapshot: snap}), "03 01")

		deepEqual(t, scanKeys(t, kv, ReadOptions{}), "01 02")
		ensure(snap.Close())
		ensure(snap.Close())

		if _, err := kv.Get(x("01"), opt); !errors.Is(err, ErrSnapshotClosed) {
			t.Errorf("** Get after Close: err = %v, wanted ErrSnapshotClosed", err)
		}
		if _, err := kv.Iterate(opt); !errors.Is(err, ErrSnapshotClosed) {
			t.Errorf("** Iterate after Close: err = %v, wanted ErrSnapshotClosed", err)
		}
	})
}

func TestKV_ForeignSnapshot(t *testing.T) {
	for _, b := range testBackends {
		t.Run(b.name, func(t *testing.T) {
			kv1 := b.open(t)
			kv2 := b.open(t)
			ensure(kv1.Put(x("01"), []byte("v1"), false))

			foreign := []Snapshot{must(kv2.NewSnapshot()), must(NewMemKV().NewSnapshot())}
			for _, snap := range foreign {
				opt := ReadOptions{Snapshot: snap}
				if _, err := kv1.Get(x("01"), opt); !errors.Is(err, ErrForeignSnapshot) {
					t.Errorf("** Get with %T: err = %v, wanted ErrForeignSnapshot", snap, err)
				}
				if _, err := kv1.Iterate(opt); !errors.Is(err, ErrForeignSnapshot) {
					t.Errorf("** Iterate with %T: err = %v, wanted ErrForeignSnapshot", snap, err)
				}
				ensure(snap.Close())
			}
		})
	}
}

func TestKV_Stats(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		for _, k := range []string{"01", "02", "03"} {
			ensure(kv.Put(x(k), []byte("value"), false))
		}
		stats := must(kv.(statser).Stats())
		deepEqual(t, stats.Keys, 3)
	})
}

func TestCursor_CloseIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kv KV) {
		ensure(kv.Put(x("01"), []byte("v1"), false))
		ensure(kv.Put(x("02"), []byte("v2"), false))

		cur := must(kv.Iterate(ReadOptions{}))
		if !cur.Next() {
			t.Fatalf("Next() = false, wanted a first key")
		}
		deepEqual(t, cur.Key(), x("01"))
		deepEqual(t, string(cur.Value()), "v1")
		ensure(cur.Close())
		ensure(cur.Close())
		deepEqual(t, cur.Next(), false)
		ensure(cur.Err())
	})
}

func TestMemKV_CursorIgnoresLaterWrites(t *testing.T) {
	kv := NewMemKV()
	ensure(kv.Put(x("01"), []byte("v1"), false))
	ensure(kv.Put(x("03"), []byte("v3"), false))

	cur := must(kv.Iterate(ReadOptions{}))
	defer cur.Close()
	ensure(kv.Put(x("02"), []byte("v2"), false))
	ensure(kv.Put(x("01"), []byte("v1.2"), false))

	var got []string
	for cur.Next() {
		got = append(got, hex.EncodeToString(cur.Key())+"="+string(cur.Value()))
	}
	deepEqual(t, got, []string{"01=v1", "03=v3"})
	deepEqual(t, scanKeys(t, kv, ReadOptions{}), "01 02 03")
}

func scanKeys(t testing.TB, kv KV, opt ReadOptions) string {
	t.Helper()
	cur, err := kv.Iterate(opt)
	if err != nil {
		t.Fatalf("Iterate failed: %v", err)
	}
	defer cur.Close()
	var keys []string
	for cur.Next() {
		keys = append(keys, hex.EncodeToString(cur.Key()))
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("cursor failed: %v", err)
	}
	return strings.Join(keys, " ")
}
