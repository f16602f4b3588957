package recordkv

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpHeader = DumpFlags(1 << iota)
	DumpRecords
	DumpStats

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the records of the store in key order, one per line, for
// debugging and tests. Records that fail to decode are listed with the error.
func (s *Store[R]) Dump(f DumpFlags, opt ReadOptions) (string, error) {
	var lines []string
	it, err := s.Iterate(opt)
	if err != nil {
		return "", err
	}
	defer it.Close()

	prefix := s.typ.name
	for it.Next() {
		lines = append(lines, s.dumpRecord(prefix, len(lines)+1, it))
	}
	if err := it.Err(); err != nil {
		return "", err
	}

	var w strings.Builder
	if f.Contains(DumpHeader) {
		fmt.Fprintln(&w, dumpSep1)
		fmt.Fprintf(&w, "%s (%d records)\n", prefix, len(lines))
	}
	if f.Contains(DumpStats) {
		if st, ok := s.kv.(statser); ok {
			stats, err := st.Stats()
			if err != nil {
				return "", &StoreError{Op: "stats", Err: err}
			}
			fmt.Fprintf(&w, "%s.stats: keys = %d, data_size = %d, data_alloc = %d\n", prefix, stats.Keys, stats.DataSize, stats.DataAlloc)
		}
	}
	if f.Contains(DumpRecords) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(&w, dumpSep2)
		}
		for _, line := range lines {
			w.WriteString(line)
			w.WriteByte('\n')
		}
	}
	return w.String(), nil
}

func (s *Store[R]) dumpRecord(prefix string, pos int, it *Iterator[R]) string {
	key, err := it.KeyTuple()
	if err != nil {
		return fmt.Sprintf("%s.%d = %s ** ERROR: %v", prefix, pos, hexstr(it.cur.Key()), err)
	}
	r, err := it.Record()
	if err != nil {
		return fmt.Sprintf("%s.%d = %s ** ERROR: %v", prefix, pos, loggableVal(key), err)
	}
	return fmt.Sprintf("%s.%d = %s %s", prefix, pos, loggableVal(key), loggableVal(r))
}
