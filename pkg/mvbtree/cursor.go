package mvbtree

import (
	"mvbtree/pkg/config"
	"mvbtree/pkg/cursor"
	"mvbtree/pkg/keycodec"
	"mvbtree/pkg/rid"
)

// rangeCursor holds a range scan's state: bounds, inclusivity (already
// folded into the padded KeyItem bounds), direction, the last emitted
// key, and a buffered page of pairs. It holds no page pins between
// Next() calls - each refill reacquires the read lock, walks, and
// releases before returning.
type rangeCursor struct {
	t         *Tree
	ascending bool
	keysOnly  bool // keyCursor mode: emit one representative RID per entry

	paddedLow, paddedHigh []keycodec.KeyItem // nil = unbounded on that side

	prefetchSize int32
	afterKey     []byte // resume marker: the last emitted entry's key bytes
	started      bool
	exhausted    bool

	buf    []cursor.Pair
	bufPos int
	cur    cursor.Pair
	err    error
}

func clampPrefetch(n int) int32 {
	if n <= 0 {
		return config.DefaultPrefetchSize
	}
	if n > config.MaxPrefetchSize {
		return config.MaxPrefetchSize
	}
	return int32(n)
}

// IterateBetween returns a cursor over every (key, rid) pair with
// low <= key <= high (subject to the inclusive flags), in ascending or
// descending key order.
func (t *Tree) IterateBetween(low, high []keycodec.KeyItem, lowIncl, highIncl bool, ascending bool, prefetchSize int) cursor.Cursor {
	c := &rangeCursor{t: t, ascending: ascending, prefetchSize: clampPrefetch(prefetchSize)}
	if low != nil {
		c.paddedLow = keycodec.PadKey(low, t.keyArity, keycodec.FromBoundary, lowIncl)
	}
	if high != nil {
		c.paddedHigh = keycodec.PadKey(high, t.keyArity, keycodec.ToBoundary, highIncl)
	}
	return c
}

// IterateMajor returns a cursor over every pair with key >= from (or >
// from if !inclusive) - "from" up to +infinity.
func (t *Tree) IterateMajor(from []keycodec.KeyItem, inclusive bool, ascending bool, prefetchSize int) cursor.Cursor {
	return t.IterateBetween(from, nil, inclusive, true, ascending, prefetchSize)
}

// IterateMinor returns a cursor over every pair with key <= to (or <
// to if !inclusive) - -infinity up to "to".
func (t *Tree) IterateMinor(to []keycodec.KeyItem, inclusive bool, ascending bool, prefetchSize int) cursor.Cursor {
	return t.IterateBetween(nil, to, true, inclusive, ascending, prefetchSize)
}

// KeyCursor returns a cursor over distinct(ish) keys in ascending
// order: one representative RID per leaf entry. Duplicate keys may
// still appear more than once if they straddle sibling leaves.
func (t *Tree) KeyCursor(prefetchSize int) cursor.Cursor {
	c := &rangeCursor{t: t, ascending: true, keysOnly: true, prefetchSize: clampPrefetch(prefetchSize)}
	return c
}

func (c *rangeCursor) Next() bool {
	for c.bufPos >= len(c.buf) {
		if c.exhausted {
			return false
		}
		if err := c.refill(); err != nil {
			c.err = err
			c.exhausted = true
			return false
		}
		if len(c.buf) == 0 {
			c.exhausted = true
			return false
		}
	}
	c.cur = c.buf[c.bufPos]
	c.bufPos++
	return true
}

func (c *rangeCursor) Pair() (cursor.Pair, error) { return c.cur, c.err }

// Close is a no-op: a cursor holds no pins between
// calls, so there is nothing to release.
func (c *rangeCursor) Close() {}

// refill walks forward or backward from the cursor's current position,
// gathering up to prefetchSize entries' worth of pairs.
func (c *rangeCursor) refill() error {
	t := c.t
	t.mu.RLock()
	defer t.mu.RUnlock()

	c.buf = nil
	c.bufPos = 0

	lb, idx, err := c.seek()
	if err != nil {
		return err
	}
	if lb == nil {
		return nil
	}

	var out []cursor.Pair
	emitted := int32(0)
	for emitted < c.prefetchSize {
		n := lb.NumEntries()
		if c.ascending && idx >= n {
			next := lb.RightSibling()
			t.pgr.PutPage(lb.Page())
			if next == NoSibling {
				c.buf = out
				c.exhausted = true
				return nil
			}
			page, err := t.pgr.GetPage(next)
			if err != nil {
				return err
			}
			lb = newLeafBucket(page)
			idx = 0
			continue
		}
		if !c.ascending && idx < 0 {
			prev := lb.LeftSibling()
			t.pgr.PutPage(lb.Page())
			if prev == NoSibling {
				c.buf = out
				c.exhausted = true
				return nil
			}
			page, err := t.pgr.GetPage(prev)
			if err != nil {
				return err
			}
			lb = newLeafBucket(page)
			idx = lb.NumEntries() - 1
			continue
		}

		items := t.decodeKey(lb.KeyBytesAt(idx))
		if c.ascending && c.paddedHigh != nil && keycodec.CompareKeys(c.paddedHigh, items) < 0 {
			t.pgr.PutPage(lb.Page())
			c.buf = out
			c.exhausted = true
			return nil
		}
		if !c.ascending && c.paddedLow != nil && keycodec.CompareKeys(c.paddedLow, items) > 0 {
			t.pgr.PutPage(lb.Page())
			c.buf = out
			c.exhausted = true
			return nil
		}

		entry := lb.EntryAt(idx)
		rids := append([]rid.RID(nil), entry.Inline...)
		if entry.HasOverflow() {
			more, err := t.overflow.RangeForMID(entry.MID)
			if err != nil {
				t.pgr.PutPage(lb.Page())
				return err
			}
			rids = append(rids, more...)
		}
		if c.keysOnly {
			if len(rids) > 0 {
				out = append(out, cursor.Pair{Key: keycodec.KeyItem(items), RID: rids[0]})
			}
		} else {
			for _, r := range rids {
				out = append(out, cursor.Pair{Key: keycodec.KeyItem(items), RID: r})
			}
		}
		c.afterKey = append([]byte(nil), lb.KeyBytesAt(idx)...)
		c.started = true
		emitted++

		if c.ascending {
			idx++
		} else {
			idx--
		}
	}
	t.pgr.PutPage(lb.Page())
	c.buf = out
	return nil
}

// seek locates the leaf and index to resume scanning from: either the
// cursor's bound-derived starting point (first call) or the position
// just past the last emitted key (subsequent calls).
func (c *rangeCursor) seek() (*LeafBucket, int32, error) {
	t := c.t
	if !c.started {
		return c.seekBound()
	}
	lb, err := t.descendForRead(c.afterKey)
	if err != nil {
		return nil, 0, err
	}
	idx, found := t.findInLeaf(lb, c.afterKey)
	if c.ascending {
		if found {
			idx++
		}
		return lb, idx, nil
	}
	return lb, idx - 1, nil
}

func (c *rangeCursor) seekBound() (*LeafBucket, int32, error) {
	t := c.t
	if c.ascending {
		if c.paddedLow == nil {
			lb, err := t.leftmostLeaf()
			return lb, 0, err
		}
		lb, err := t.descendForReadCmp(func(k []keycodec.KeyItem) int {
			return keycodec.CompareKeys(c.paddedLow, k)
		})
		if err != nil {
			return nil, 0, err
		}
		idx := lb.Search(func(i int32) bool {
			return keycodec.CompareKeys(c.paddedLow, t.decodeKey(lb.KeyBytesAt(i))) < 0
		})
		return lb, idx, nil
	}
	if c.paddedHigh == nil {
		lb, err := t.rightmostLeaf()
		if err != nil {
			return nil, 0, err
		}
		return lb, lb.NumEntries() - 1, nil
	}
	lb, err := t.descendForReadCmp(func(k []keycodec.KeyItem) int {
		return keycodec.CompareKeys(c.paddedHigh, k)
	})
	if err != nil {
		return nil, 0, err
	}
	idx := lb.Search(func(i int32) bool {
		return keycodec.CompareKeys(c.paddedHigh, t.decodeKey(lb.KeyBytesAt(i))) < 0
	})
	return lb, idx - 1, nil
}

// descendForReadCmp is descendForRead generalized to an item-level
// comparator, used when the probe is a padded boundary key (possibly
// carrying AlwaysLess/AlwaysGreater sentinels) rather than a real,
// serializable key - sentinels have no byte encoding, so this never
// goes through cmpKeyBytes.
func (t *Tree) descendForReadCmp(cmp func(leafKey []keycodec.KeyItem) int) (*LeafBucket, error) {
	pn := rootPN
	for depth := 0; ; depth++ {
		if depth > config.MaxPathLength {
			return nil, ErrCorruption
		}
		page, err := t.pgr.GetPage(pn)
		if err != nil {
			return nil, t.wrapIOError("descend", err)
		}
		if isLeafPage(page) {
			return newLeafBucket(page), nil
		}
		ib := newInternalBucket(page)
		child := ib.ChildFor(func(i int32) bool {
			return cmp(t.decodeKey(ib.KeyBytesAt(i))) < 0
		})
		t.pgr.PutPage(page)
		pn = child
	}
}

func (t *Tree) leftmostLeaf() (*LeafBucket, error) {
	pn := rootPN
	for {
		page, err := t.pgr.GetPage(pn)
		if err != nil {
			return nil, t.wrapIOError("leftmostLeaf", err)
		}
		if isLeafPage(page) {
			return newLeafBucket(page), nil
		}
		ib := newInternalBucket(page)
		child := ib.LeftChildAt(0)
		t.pgr.PutPage(page)
		pn = child
	}
}

func (t *Tree) rightmostLeaf() (*LeafBucket, error) {
	pn := rootPN
	for {
		page, err := t.pgr.GetPage(pn)
		if err != nil {
			return nil, t.wrapIOError("rightmostLeaf", err)
		}
		if isLeafPage(page) {
			return newLeafBucket(page), nil
		}
		ib := newInternalBucket(page)
		child := ib.RightChildAt(ib.NumKeys() - 1)
		t.pgr.PutPage(page)
		pn = child
	}
}
