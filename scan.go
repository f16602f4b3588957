package recordkv

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
)

const (
	debugLogRawScans = false
)

// RawRange defines a range of byte strings. The constructors use mnemonics:
// O means open, I means inclusive, E means exclusive; the first letter is for
// the lower bound, the second for the upper bound.
type RawRange struct {
	Prefix   []byte
	Lower    []byte
	Upper    []byte
	LowerInc bool
	UpperInc bool
	Reverse  bool
}

func RawOO() RawRange            { return RawRange{} }
func RawIO(l []byte) RawRange    { return RawRange{Lower: l, LowerInc: true} }
func RawEO(l []byte) RawRange    { return RawRange{Lower: l, LowerInc: false} }
func RawOI(u []byte) RawRange    { return RawRange{Upper: u, UpperInc: true} }
func RawOE(u []byte) RawRange    { return RawRange{Upper: u, UpperInc: false} }
func RawII(l, u []byte) RawRange { return RawRange{Lower: l, Upper: u, LowerInc: true, UpperInc: true} }
func RawIE(l, u []byte) RawRange {
	return RawRange{Lower: l, Upper: u, LowerInc: true, UpperInc: false}
}
func RawEI(l, u []byte) RawRange {
	return RawRange{Lower: l, Upper: u, LowerInc: false, UpperInc: true}
}
func RawEE(l, u []byte) RawRange {
	return RawRange{Lower: l, Upper: u, LowerInc: false, UpperInc: false}
}
func RawPrefix(p []byte) RawRange                { return RawRange{Prefix: p} }
func (rang RawRange) Prefixed(p []byte) RawRange { rang.Prefix = p; return rang }
func (rang RawRange) Reversed() RawRange         { rang.Reverse = true; return rang }

var (
	errLowerOutsidePrefix = errors.New("lower bound does not match prefix")
	errUpperOutsidePrefix = errors.New("upper bound does not match prefix")
)

func (r *RawRange) validate() error {
	if r.Prefix != nil {
		if r.Lower != nil && !bytes.HasPrefix(r.Lower, r.Prefix) {
			return errLowerOutsidePrefix
		}
		if r.Upper != nil && !bytes.HasPrefix(r.Upper, r.Prefix) {
			return errUpperOutsidePrefix
		}
	}
	return nil
}

func (r *RawRange) start(bcur seekCursor, logger *slog.Logger) ([]byte, []byte) {
	var k, v []byte
	if r.Reverse {
		if upper := r.Upper; upper != nil {
			k, v = bcur.Seek(upper)
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "SEEK to upper", hexAttr("upper", upper), hexAttr("key", k), hexAttr("val", v))
			}
			if k == nil {
				k, v = bcur.Last()
			} else if cmp := bytes.Compare(k, upper); cmp > 0 || (cmp == 0 && !r.UpperInc) {
				k, v = bcur.Prev()
			}
		} else if r.Prefix != nil {
			k, v = seekLast(bcur, r.Prefix)
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "SEEK to last with prefix", hexAttr("prefix", r.Prefix), hexAttr("key", k), hexAttr("val", v))
			}
		} else {
			k, v = bcur.Last()
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "LAST", hexAttr("key", k), hexAttr("val", v))
			}
		}
	} else {
		lower := r.Lower
		if lower == nil {
			lower = r.Prefix
		}
		if lower != nil {
			k, v = bcur.Seek(lower)
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "SEEK to lower", hexAttr("lower", lower), hexAttr("key", k), hexAttr("val", v))
			}
			if k != nil && r.Lower != nil && !r.LowerInc && bytes.Equal(k, r.Lower) {
				if debugLogRawScans {
					logger.LogAttrs(context.Background(), slog.LevelDebug, "SKIP_INITIAL")
				}
				k, v = bcur.Next()
			}
		} else {
			k, v = bcur.First()
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "FIRST", hexAttr("key", k), hexAttr("val", v))
			}
		}
	}
	if k != nil && r.match(k, v, logger) {
		return k, v
	} else {
		return nil, nil
	}
}

// seekLast positions the cursor at the last key starting with prefix, or at
// the last key before where such keys would be.
func seekLast(bcur seekCursor, prefix []byte) ([]byte, []byte) {
	limit := cloneBytes(prefix)
	if !inc(limit) {
		return bcur.Last()
	}
	k, _ := bcur.Seek(limit)
	if k == nil {
		return bcur.Last()
	}
	return bcur.Prev()
}

func (r *RawRange) next(bcur seekCursor, logger *slog.Logger) ([]byte, []byte) {
	var k, v []byte
	if r.Reverse {
		k, v = bcur.Prev()
		if debugLogRawScans {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "PREV", hexAttr("key", k), hexAttr("val", v))
		}
	} else {
		k, v = bcur.Next()
		if debugLogRawScans {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "NEXT", hexAttr("key", k), hexAttr("val", v))
		}
	}
	if k != nil && r.match(k, v, logger) {
		return k, v
	} else {
		return nil, nil
	}
}

func (r *RawRange) match(k, v []byte, logger *slog.Logger) bool {
	if r.Prefix != nil && !bytes.HasPrefix(k, r.Prefix) {
		if debugLogRawScans {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "BAIL on prefix", hexAttr("prefix", r.Prefix), hexAttr("key", k), hexAttr("val", v))
		}
		return false
	}
	if lower := r.Lower; lower != nil {
		cmp := bytes.Compare(k, lower)
		if cmp == -1 || (cmp == 0 && !r.LowerInc) {
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "BAIL on lower", hexAttr("lower", lower), hexAttr("key", k), hexAttr("val", v))
			}
			return false
		}
	}
	if upper := r.Upper; upper != nil {
		cmp := bytes.Compare(k, upper)
		if cmp == 1 || (cmp == 0 && !r.UpperInc) {
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "BAIL on upper", hexAttr("upper", upper), hexAttr("key", k), hexAttr("val", v))
			}
			return false
		}
	}
	if debugLogRawScans {
		logger.LogAttrs(context.Background(), slog.LevelDebug, "MATCH", hexAttr("key", k), hexAttr("val", v))
	}
	return true
}

func (rang *RawRange) newCursor(bcur seekCursor, logger *slog.Logger) *rangeCursor {
	return &rangeCursor{rang: *rang, bcur: bcur, logger: logger}
}

// rangeCursor implements Cursor on top of a backend seekCursor.
type rangeCursor struct {
	rang   RawRange
	bcur   seekCursor
	logger *slog.Logger
	k, v   []byte
	init   bool
	done   bool

	errf   func() error
	closef func() error
	closed bool
}

func (c *rangeCursor) Next() bool {
	if c.done {
		return false
	}
	if c.init {
		c.k, c.v = c.rang.next(c.bcur, c.logger)
	} else {
		c.init = true
		c.k, c.v = c.rang.start(c.bcur, c.logger)
	}
	if c.k == nil {
		c.done = true
		c.v = nil
	}
	return c.k != nil
}

func (c *rangeCursor) Key() []byte   { return c.k }
func (c *rangeCursor) Value() []byte { return c.v }

func (c *rangeCursor) Err() error {
	if c.errf == nil {
		return nil
	}
	return c.errf()
}

func (c *rangeCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.done = true
	c.k, c.v = nil, nil
	c.errf = nil
	if c.closef == nil {
		return nil
	}
	return c.closef()
}
