package recordkv

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// tuple format: el1 el2 ... elN len1 len2 ... lenN-1  n
type tuple [][]byte

func (tup tuple) String() string {
	var buf strings.Builder
	for i, el := range tup {
		if i > 0 {
			buf.WriteByte('|')
		}
		buf.WriteString(hex.EncodeToString(el))
	}
	return buf.String()
}

func decodeTuple(raw []byte) (tuple, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	c, raw, err := decodeRuvarint(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid tuple count: %w", err)
	}
	if c == 0 {
		return nil, nil
	}
	// every component except the last one needs at least one length byte
	if uint64(c-1) > uint64(len(raw)) {
		return nil, fmt.Errorf("invalid tuple: %d components in %d bytes", c, len(raw))
	}

	lens := make([]uint32, c)
	for i := int(c) - 2; i >= 0; i-- {
		lens[i], raw, err = decodeRuvarint(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid tuple component %d length: %w", i, err)
		}
	}

	var explicitLen uint64
	for i := uint32(0); i < c-1; i++ {
		explicitLen += uint64(lens[i])
	}
	if explicitLen > uint64(len(raw)) {
		return nil, fmt.Errorf("invalid tuple: sum of explicit lens %d is greater than total data len %d", explicitLen, len(raw))
	}

	tup := make(tuple, c)
	var start uint32
	for i := uint32(0); i < c-1; i++ {
		tup[i] = raw[start : start+lens[i]]
		start += lens[i]
	}
	tup[c-1] = raw[start:]
	return tup, nil
}

func (tup tuple) encode(buf []byte) []byte {
	var tb tupleEncoder
	for _, el := range tup {
		tb.begin(buf)
		buf = appendRaw(buf, el)
	}
	return tb.finalize(buf)
}

type tupleEncoder struct {
	startOffPlus1 int
	lens          []int
}

func (tb *tupleEncoder) count() int {
	return len(tb.lens) + 1
}

func (tb *tupleEncoder) begin(buf []byte) {
	off := tb.startOffPlus1
	if off < 0 {
		panic("tupleEncoder finalized")
	} else if off != 0 {
		itemLen := len(buf) + 1 - off
		tb.lens = append(tb.lens, itemLen)
	}
	tb.startOffPlus1 = len(buf) + 1
}

func (tb *tupleEncoder) finalize(buf []byte) []byte {
	for _, v := range tb.lens {
		buf = appendRuvarint(buf, uint32(v))
	}
	buf = appendRuvarint(buf, uint32(tb.count()))
	tb.startOffPlus1 = -1
	return buf
}

// Reverse Uvarint is just byte-reversed Uvarint, for right-to-left reading
func appendRuvarint(buf []byte, v uint32) []byte {
	var vb [binary.MaxVarintLen32]byte
	vn := binary.PutUvarint(vb[:], uint64(v))
	off, buf := grow(buf, vn)
	for i, b := range vb[:vn] {
		buf[off+vn-i-1] = b
	}
	return buf
}

func decodeRuvarint(buf []byte) (uint32, []byte, error) {
	var vb [binary.MaxVarintLen32]byte
	n := len(buf)
	if n == 0 {
		return 0, nil, fmt.Errorf("no data")
	}
	c := binary.MaxVarintLen32
	if n < c {
		c = n
	}
	for i := 0; i < c; i++ {
		vb[i] = buf[n-i-1]
	}
	v, vn := binary.Uvarint(vb[:c])
	if vn <= 0 || v > math.MaxUint32 {
		return 0, nil, fmt.Errorf("invalid ruvarint in %x", buf[n-c:])
	}
	return uint32(v), buf[:n-vn], nil
}
