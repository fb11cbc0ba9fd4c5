package mvbtree

import (
	"encoding/binary"

	"mvbtree/pkg/pager"
)

// internalRecordFixedLen is the per-record byte cost beyond the key: a
// left child page number and a right child page number, stored
// redundantly on every slot so that, for adjacent slots i-1 and i,
// left(i) == right(i-1) always holds literally in the bytes on the page
// rather than just as a derived invariant.
const internalRecordFixedLen = 8 + 8

// InternalBucket is a read/write view over a page known to hold an
// internal node: a sorted array of separator keys, each carrying the
// page numbers of the child subtree to its left and to its right.
type InternalBucket struct {
	page *pager.Page
}

func newInternalBucket(page *pager.Page) *InternalBucket {
	return &InternalBucket{page: page}
}

// createInternalBucket allocates a fresh internal page with a single
// separator key, as produced whenever a child node splits and its
// parent gains its first key (or a new root is grown over the old
// root and its split sibling).
func createInternalBucket(pgr *pager.Pager, keyBytes []byte, leftPN, rightPN int64) (*InternalBucket, error) {
	page, err := pgr.GetNewPage()
	if err != nil {
		return nil, err
	}
	initBucketPage(page, false)
	ib := newInternalBucket(page)
	ib.insertKeyAt(0, keyBytes, leftPN, rightPN)
	return ib, nil
}

func (ib *InternalBucket) Page() *pager.Page { return ib.page }

func (ib *InternalBucket) NumKeys() int32 { return readNumSlots(ib.page) }

func marshalInternalRecord(keyBytes []byte, leftPN, rightPN int64) []byte {
	buf := make([]byte, 2+len(keyBytes)+internalRecordFixedLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(keyBytes)))
	copy(buf[2:], keyBytes)
	pos := 2 + len(keyBytes)
	binary.BigEndian.PutUint64(buf[pos:], uint64(leftPN))
	binary.BigEndian.PutUint64(buf[pos+8:], uint64(rightPN))
	return buf
}

func (ib *InternalBucket) recordBounds(i int32) (start, keyEnd, end int32) {
	off := readSlot(ib.page, false, i)
	data := ib.page.GetData()
	keyLen := int32(binary.BigEndian.Uint16(data[off:]))
	start = off
	keyEnd = off + 2 + keyLen
	end = keyEnd + internalRecordFixedLen
	return
}

// KeyBytesAt decodes the separator key at slot i.
func (ib *InternalBucket) KeyBytesAt(i int32) []byte {
	start, keyEnd, _ := ib.recordBounds(i)
	return ib.page.GetData()[start+2 : keyEnd]
}

// LeftChildAt returns the page number of the subtree holding keys less
// than (or, for i>0, between the previous and current) the separator at
// slot i.
func (ib *InternalBucket) LeftChildAt(i int32) int64 {
	_, keyEnd, _ := ib.recordBounds(i)
	return int64(binary.BigEndian.Uint64(ib.page.GetData()[keyEnd : keyEnd+8]))
}

// RightChildAt returns the page number of the subtree holding keys
// greater than or equal to the separator at slot i.
func (ib *InternalBucket) RightChildAt(i int32) int64 {
	_, keyEnd, _ := ib.recordBounds(i)
	return int64(binary.BigEndian.Uint64(ib.page.GetData()[keyEnd+8 : keyEnd+16]))
}

func (ib *InternalBucket) setLeftChildAt(i int32, pn int64) {
	_, keyEnd, _ := ib.recordBounds(i)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(pn))
	ib.page.Update(buf[:], int64(keyEnd), 8)
}

func (ib *InternalBucket) setRightChildAt(i int32, pn int64) {
	_, keyEnd, _ := ib.recordBounds(i)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(pn))
	ib.page.Update(buf[:], int64(keyEnd+8), 8)
}

// Search returns the smallest index i in [0, NumKeys()] for which ge(i)
// is true, same contract as LeafBucket.Search.
func (ib *InternalBucket) Search(ge func(i int32) bool) int32 {
	n := ib.NumKeys()
	lo, hi := int32(0), n
	for lo < hi {
		mid := (lo + hi) / 2
		if ge(mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// ChildFor returns the page number of the child subtree to descend into
// for a search key, given ge(i), which must report whether the key is
// strictly less than the separator at slot i.
func (ib *InternalBucket) ChildFor(ge func(i int32) bool) int64 {
	i := ib.Search(ge)
	if i == 0 {
		return ib.LeftChildAt(0)
	}
	return ib.RightChildAt(i - 1)
}

// insertKeyAt is the low-level slot insertion shared by bucket creation
// and InsertSplitKey.
func (ib *InternalBucket) insertKeyAt(i int32, keyBytes []byte, leftPN, rightPN int64) bool {
	data := marshalInternalRecord(keyBytes, leftPN, rightPN)
	off, ok := appendRecordToTail(ib.page, false, ib.NumKeys(), data)
	if !ok {
		return false
	}
	insertSlot(ib.page, false, i, ib.NumKeys(), off)
	return true
}

// InsertSplitKey records a new separator produced when the child
// currently reached by some slot splits into (leftPN, rightPN): leftPN
// keeps the original child's page number and rightPN is the freshly
// allocated sibling. i is the position the new key belongs at, found by
// the same search that located the child before it split. Returns false
// if the page has no room (caller must split this node too).
func (ib *InternalBucket) InsertSplitKey(i int32, keyBytes []byte, leftPN, rightPN int64) bool {
	if !ib.insertKeyAt(i, keyBytes, leftPN, rightPN) {
		return false
	}
	// The slot that used to sit at i (now shifted to i+1) still has
	// leftChild == leftPN, the child's old identity; it must now read
	// rightPN, since splitting pushed everything from the split point
	// onward into the new right page. This is the one fixup needed to
	// keep left(i) == right(i-1) literally true on adjacent slots.
	if i+1 < ib.NumKeys() {
		ib.setLeftChildAt(i+1, rightPN)
	}
	return true
}

// Shrink truncates the key array to the first idx keys and rebuilds the
// record region, mirroring LeafBucket.Shrink for internal nodes.
func (ib *InternalBucket) Shrink(idx int32) {
	type kept struct {
		key             []byte
		leftPN, rightPN int64
	}
	entries := make([]kept, idx)
	for i := int32(0); i < idx; i++ {
		k := make([]byte, len(ib.KeyBytesAt(i)))
		copy(k, ib.KeyBytesAt(i))
		entries[i] = kept{key: k, leftPN: ib.LeftChildAt(i), rightPN: ib.RightChildAt(i)}
	}
	initBucketPage(ib.page, false)
	for i, e := range entries {
		data := marshalInternalRecord(e.key, e.leftPN, e.rightPN)
		off, ok := appendRecordToTail(ib.page, false, int32(i), data)
		if !ok {
			panic("mvbtree: shrink could not re-fit retained keys")
		}
		insertSlot(ib.page, false, int32(i), int32(i), off)
	}
}
