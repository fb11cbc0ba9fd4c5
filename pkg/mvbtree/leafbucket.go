package mvbtree

import (
	"encoding/binary"

	"mvbtree/pkg/pager"
	"mvbtree/pkg/rid"
)

// maxInlineRIDs bounds the number of RIDs a leaf entry keeps inline
// while it still shares its page with other keys' entries - past this,
// further puts spill into the overflow container rather than letting
// one key's bag crowd its neighbors off the page. A leaf entry that has
// the page to itself is exempt (see AppendNewLeafEntry): it keeps
// growing inline until the page is genuinely full, at which point a
// split partitions its RID bag instead.
const maxInlineRIDs = 8

// LeafEntry is the decoded form of one key's record in a leaf bucket.
type LeafEntry struct {
	KeyBytes     []byte
	MID          int64
	Inline       []rid.RID
	EntriesCount int64
}

// HasOverflow reports whether this entry owns RIDs beyond its inline list.
func (e LeafEntry) HasOverflow() bool {
	return e.EntriesCount > int64(len(e.Inline))
}

func marshalLeafEntry(e LeafEntry) []byte {
	buf := make([]byte, 2+len(e.KeyBytes)+8+2+len(e.Inline)*rid.Size+8)
	pos := 0
	binary.BigEndian.PutUint16(buf[pos:], uint16(len(e.KeyBytes)))
	pos += 2
	copy(buf[pos:], e.KeyBytes)
	pos += len(e.KeyBytes)
	binary.BigEndian.PutUint64(buf[pos:], uint64(e.MID))
	pos += 8
	binary.BigEndian.PutUint16(buf[pos:], uint16(len(e.Inline)))
	pos += 2
	for _, r := range e.Inline {
		r.PutTo(buf[pos:])
		pos += rid.Size
	}
	binary.BigEndian.PutUint64(buf[pos:], uint64(e.EntriesCount))
	return buf
}

func unmarshalLeafEntry(data []byte) LeafEntry {
	pos := 0
	keyLen := int(binary.BigEndian.Uint16(data[pos:]))
	pos += 2
	keyBytes := make([]byte, keyLen)
	copy(keyBytes, data[pos:pos+keyLen])
	pos += keyLen
	mID := int64(binary.BigEndian.Uint64(data[pos:]))
	pos += 8
	inlineCount := int(binary.BigEndian.Uint16(data[pos:]))
	pos += 2
	inline := make([]rid.RID, inlineCount)
	for i := 0; i < inlineCount; i++ {
		inline[i] = rid.Unmarshal(data[pos:])
		pos += rid.Size
	}
	entriesCount := int64(binary.BigEndian.Uint64(data[pos:]))
	return LeafEntry{KeyBytes: keyBytes, MID: mID, Inline: inline, EntriesCount: entriesCount}
}

// entriesCountByteOffset returns the offset, relative to the start of a
// marshaled leaf entry, of its trailing entriesCount field - the one
// field that can change without changing the record's length, so it can
// be rewritten in place. The inline-count field is two bytes, not one,
// so a leaf entry growing into the hundreds of inline RIDs (a single
// heavily-duplicated key, see AppendNewLeafEntry) can't silently wrap.
func entriesCountByteOffset(keyLen, inlineCount int) int {
	return 2 + keyLen + 8 + 2 + inlineCount*rid.Size
}

// LeafBucket is a read/write view over a page known to hold a leaf node.
type LeafBucket struct {
	page *pager.Page
}

func newLeafBucket(page *pager.Page) *LeafBucket {
	return &LeafBucket{page: page}
}

// createLeafBucket allocates and initializes a fresh leaf page.
func createLeafBucket(pgr *pager.Pager) (*LeafBucket, error) {
	page, err := pgr.GetNewPage()
	if err != nil {
		return nil, err
	}
	initBucketPage(page, true)
	return newLeafBucket(page), nil
}

func (lb *LeafBucket) Page() *pager.Page { return lb.page }

func (lb *LeafBucket) NumEntries() int32 { return readNumSlots(lb.page) }

func (lb *LeafBucket) LeftSibling() int64  { return readSibling(lb.page, leftSiblingOffset) }
func (lb *LeafBucket) RightSibling() int64 { return readSibling(lb.page, rightSiblingOffset) }

func (lb *LeafBucket) SetLeftSibling(pn int64)  { writeSibling(lb.page, leftSiblingOffset, pn) }
func (lb *LeafBucket) SetRightSibling(pn int64) { writeSibling(lb.page, rightSiblingOffset, pn) }

func (lb *LeafBucket) recordAt(i int32) []byte {
	off := readSlot(lb.page, true, i)
	// A leaf record has no externally-stored length, so decode enough of
	// the header to know how far it runs.
	data := lb.page.GetData()
	keyLen := int(binary.BigEndian.Uint16(data[off:]))
	inlineCountOff := int(off) + 2 + keyLen + 8
	inlineCount := int(binary.BigEndian.Uint16(data[inlineCountOff:]))
	recLen := entriesCountByteOffset(keyLen, inlineCount) + 8
	return data[off : int(off)+recLen]
}

// EntryAt decodes the entry stored at slot i.
func (lb *LeafBucket) EntryAt(i int32) LeafEntry {
	return unmarshalLeafEntry(lb.recordAt(i))
}

// KeyBytesAt decodes only the key of the entry at slot i, for use by the
// tree's binary search without paying for RID decoding.
func (lb *LeafBucket) KeyBytesAt(i int32) []byte {
	off := readSlot(lb.page, true, i)
	data := lb.page.GetData()
	keyLen := int(binary.BigEndian.Uint16(data[off:]))
	return data[int(off)+2 : int(off)+2+keyLen]
}

// Search returns the smallest index i in [0, NumEntries()] for which
// ge(i) is true, assuming ge is monotonic (false*, true*) over that
// range - the same contract as sort.Search, specialized to avoid an
// interface allocation per candidate.
func (lb *LeafBucket) Search(ge func(i int32) bool) int32 {
	n := lb.NumEntries()
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

// rewriteEntryAt replaces the entry at slot i with newEntry by appending
// a fresh record to the tail and repointing the slot. The old record's
// bytes are abandoned, matching the no-compaction insert discipline used
// elsewhere in this package.
func (lb *LeafBucket) rewriteEntryAt(i int32, newEntry LeafEntry) bool {
	data := marshalLeafEntry(newEntry)
	off, ok := appendRecordToTail(lb.page, true, lb.NumEntries(), data)
	if !ok {
		return false
	}
	writeSlot(lb.page, true, i, off)
	return true
}

// CreateMainLeafEntry inserts a brand-new entry for a key not previously
// present at slot i. Returns false if the page has no room (caller must
// split).
func (lb *LeafBucket) CreateMainLeafEntry(i int32, keyBytes []byte, first rid.RID, mID int64) bool {
	entry := LeafEntry{KeyBytes: keyBytes, MID: mID, Inline: []rid.RID{first}, EntriesCount: 1}
	data := marshalLeafEntry(entry)
	off, ok := appendRecordToTail(lb.page, true, lb.NumEntries(), data)
	if !ok {
		return false
	}
	insertSlot(lb.page, true, i, lb.NumEntries(), off)
	return true
}

// InsertOutcome is the Go sum-type replacement for the source's magic
// return codes on an append-to-existing-entry insert.
type InsertOutcome int

const (
	// OutcomeAppendedInline means the RID was added to the entry's
	// inline list; no further caller action needed.
	OutcomeAppendedInline InsertOutcome = iota
	// OutcomeNeedsOverflow means the inline list is full; the caller
	// must validated-put the RID into the overflow container keyed by
	// the returned m-id, then call BumpEntriesCount.
	OutcomeNeedsOverflow
	// OutcomeNeedsSplit means the page had no room even to grow the
	// entry in place; the caller must split and retry.
	OutcomeNeedsSplit
)

// AppendNewLeafEntry appends a RID to the entry already present at slot
// i. See InsertOutcome for what each result means.
//
// A leaf entry sharing its page with other keys stops growing inline at
// maxInlineRIDs, so one heavily-duplicated key can't crowd its
// neighbors off the page - the rest of its bag goes to the overflow
// container instead. An entry that already has the page to itself
// (NumEntries() == 1) has no neighbors to protect, so it keeps growing
// past that cap until the page is actually full; the caller's eventual
// split then partitions its RID bag across two leaves rather than
// moving it wholesale, which is the only way a single key's bag can
// come to span more than one leaf (see splitSingleEntryLeaf).
func (lb *LeafBucket) AppendNewLeafEntry(i int32, r rid.RID) (outcome InsertOutcome, overflowMID int64) {
	entry := lb.EntryAt(i)
	alone := lb.NumEntries() == 1
	if len(entry.Inline) < maxInlineRIDs || alone {
		grown := entry
		grown.Inline = append(append([]rid.RID(nil), entry.Inline...), r)
		grown.EntriesCount++
		if lb.rewriteEntryAt(i, grown) {
			return OutcomeAppendedInline, 0
		}
		// The page is full. If there are at least two RIDs already on
		// this entry, a split can partition them into two non-empty
		// halves; otherwise (a single RID whose key bytes alone nearly
		// fill the page) splitting couldn't produce two valid halves,
		// so fall back to overflow same as the shared-page case.
		if alone && len(entry.Inline) < 2 {
			return OutcomeNeedsOverflow, entry.MID
		}
		return OutcomeNeedsSplit, 0
	}
	return OutcomeNeedsOverflow, entry.MID
}

// BumpEntriesCount increments the entriesCount field of the entry at
// slot i in place - the field's width never changes, so this never needs
// to move the record. Used after a successful overflow-container
// validated-put.
func (lb *LeafBucket) BumpEntriesCount(i int32) {
	off := readSlot(lb.page, true, i)
	data := lb.page.GetData()
	keyLen := int(binary.BigEndian.Uint16(data[off:]))
	inlineCountOff := int(off) + 2 + keyLen + 8
	inlineCount := int(binary.BigEndian.Uint16(data[inlineCountOff:]))
	countOff := int(off) + entriesCountByteOffset(keyLen, inlineCount)
	cur := int64(binary.BigEndian.Uint64(data[countOff:]))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(cur+1))
	lb.page.Update(buf[:], int64(countOff), 8)
}

// RemoveLeafEntryRID tries to remove r from the entry's inline list.
// Returns the new entriesCount and whether the removal happened inline.
// If removedInline is false and the entry has overflow (the caller
// checks entriesCount > len(inline) before this call), the caller must
// try the overflow container and then call DecrementEntriesCount.
func (lb *LeafBucket) RemoveLeafEntryRID(i int32, r rid.RID) (newCount int64, removedInline bool) {
	entry := lb.EntryAt(i)
	idx := -1
	for j, cur := range entry.Inline {
		if cur == r {
			idx = j
			break
		}
	}
	if idx == -1 {
		return entry.EntriesCount, false
	}
	entry.Inline = append(entry.Inline[:idx], entry.Inline[idx+1:]...)
	entry.EntriesCount--
	if entry.EntriesCount == 0 {
		removeSlot(lb.page, true, i, lb.NumEntries())
		return 0, true
	}
	lb.rewriteEntryAt(i, entry)
	return entry.EntriesCount, true
}

// DecrementEntriesCount is the overflow-removal counterpart of
// BumpEntriesCount: it lowers the count in place, or drops the slot
// entirely if the entry's RID bag is now empty.
func (lb *LeafBucket) DecrementEntriesCount(i int32) (newCount int64) {
	entry := lb.EntryAt(i)
	entry.EntriesCount--
	if entry.EntriesCount <= 0 {
		removeSlot(lb.page, true, i, lb.NumEntries())
		return 0
	}
	off := readSlot(lb.page, true, i)
	data := lb.page.GetData()
	keyLen := int(binary.BigEndian.Uint16(data[off:]))
	inlineCount := len(entry.Inline)
	countOff := int(off) + entriesCountByteOffset(keyLen, inlineCount)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(entry.EntriesCount))
	lb.page.Update(buf[:], int64(countOff), 8)
	return entry.EntriesCount
}

// appendEntryRaw appends a pre-decoded entry verbatim - used only by
// split, which moves existing entries between pages without altering
// their mID or inline RID bag.
func (lb *LeafBucket) appendEntryRaw(e LeafEntry) bool {
	off, ok := appendRecordToTail(lb.page, true, lb.NumEntries(), marshalLeafEntry(e))
	if !ok {
		return false
	}
	insertSlot(lb.page, true, lb.NumEntries(), lb.NumEntries(), off)
	return true
}

// Shrink truncates the entry array to the first idx entries and rebuilds
// the record region to match, Used only by split.
func (lb *LeafBucket) Shrink(idx int32) {
	kept := make([]LeafEntry, idx)
	for i := int32(0); i < idx; i++ {
		kept[i] = lb.EntryAt(i)
	}
	left, right := lb.LeftSibling(), lb.RightSibling()
	initBucketPage(lb.page, true)
	lb.SetLeftSibling(left)
	lb.SetRightSibling(right)
	for i, e := range kept {
		off, ok := appendRecordToTail(lb.page, true, int32(i), marshalLeafEntry(e))
		if !ok {
			panic("mvbtree: shrink could not re-fit retained entries")
		}
		insertSlot(lb.page, true, int32(i), int32(i), off)
	}
}

// ReplaceSoleEntry rewrites a leaf known to hold exactly one entry with
// a smaller replacement, reclaiming the old entry's (page-filling)
// space by clearing the page rather than trying to append beside it -
// the single-entry counterpart of Shrink, used by
// splitSingleEntryLeaf to install the left half of a partitioned entry
// back into the page it came from.
func (lb *LeafBucket) ReplaceSoleEntry(e LeafEntry) {
	left, right := lb.LeftSibling(), lb.RightSibling()
	initBucketPage(lb.page, true)
	lb.SetLeftSibling(left)
	lb.SetRightSibling(right)
	if !lb.appendEntryRaw(e) {
		panic("mvbtree: a partitioned leaf entry half did not fit into its own freshly cleared page")
	}
}

// splitSingleEntry partitions e's inline RID bag roughly in half,
// producing two entries that share e's key and m-id. e must have at
// least two inline RIDs; a key can't itself be divided, so this is how
// a leaf holding exactly one (heavily-duplicated) entry is split
// instead of moving that entry wholesale.
func splitSingleEntry(e LeafEntry) (left, right LeafEntry) {
	mid := len(e.Inline) / 2
	if mid == 0 {
		mid = 1
	}
	leftInline := append([]rid.RID(nil), e.Inline[:mid]...)
	rightInline := append([]rid.RID(nil), e.Inline[mid:]...)
	left = LeafEntry{KeyBytes: e.KeyBytes, MID: e.MID, Inline: leftInline, EntriesCount: int64(len(leftInline))}
	right = LeafEntry{KeyBytes: e.KeyBytes, MID: e.MID, Inline: rightInline, EntriesCount: int64(len(rightInline))}
	return left, right
}
