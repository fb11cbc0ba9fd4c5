// Package cursor defines the generic forward/backward iteration contract
// shared by every index built on top of the pager.
package cursor

import (
	"mvbtree/pkg/keycodec"
	"mvbtree/pkg/rid"
)

// Pair is one (key, rid) emission of a range-scan cursor. Because a key
// may own many RIDs, and because equal keys may straddle sibling leaves,
// a single key can be emitted across many successive Pairs.
type Pair struct {
	Key keycodec.KeyItem
	RID rid.RID
}

// Cursor traverses an index's entries in key order, forwards or
// backwards depending on how it was constructed. Cursors are
// snapshot-free: every Next() call is safe to interleave with concurrent
// writers.
type Cursor interface {
	// Next advances the cursor by one (key, rid) pair. Returns false once
	// there are no more pairs to emit.
	Next() bool
	// Pair returns the pair currently pointed to by the cursor.
	Pair() (Pair, error)
	// Close releases any resources (page pins) held by the cursor. Safe
	// to call multiple times and safe to skip if the cursor was drained.
	Close()
}
