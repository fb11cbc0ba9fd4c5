// Package mvbtree implements the paged, durable multi-value B+-tree index
// described by the design: a double-ended slotted bucket page (this file
// and leafbucket.go/internalbucket.go), an entry-point page of tree-wide
// counters (entrypoint.go), a null-key bucket (nullbucket.go), an overflow
// container for RID bags that outgrow their leaf entry (overflow.go), and
// the tree engine that ties them together (tree.go, split.go, cursor.go).
//
// The page layout generalizes a fixed 2-varint leaf/internal entry
// format into a true double-ended slotted page: a slot array growing
// from the header, and a record region of variable-length entries
// growing from the page's tail.
package mvbtree

import (
	"encoding/binary"

	"mvbtree/pkg/pager"
)

// nodeType distinguishes a leaf page from an internal page; only the
// bucket package needs to know about it, the tree engine works through
// LeafBucket / InternalBucket.
type nodeType bool

const (
	internalNode nodeType = false
	leafNode     nodeType = true
)

// Common bucket header layout, present on every page regardless of type.
const (
	flagsOffset     = 0
	flagsSize       = 1
	numSlotsOffset  = flagsOffset + flagsSize
	numSlotsSize    = 4
	recTopOffset    = numSlotsOffset + numSlotsSize
	recTopSize      = 4
	commonHeaderLen = recTopOffset + recTopSize
)

// Leaf pages extend the common header with sibling pointers.
const (
	leftSiblingOffset  = commonHeaderLen
	leftSiblingSize    = 8
	rightSiblingOffset = leftSiblingOffset + leftSiblingSize
	rightSiblingSize   = 8
	leafHeaderLen      = rightSiblingOffset + rightSiblingSize
)

const internalHeaderLen = commonHeaderLen

const slotSize = 4 // each slot is a byte offset into the page, as int32

// NoSibling marks the absence of a left/right sibling link.
const NoSibling int64 = -1

func headerLen(isLeaf bool) int32 {
	if isLeaf {
		return leafHeaderLen
	}
	return internalHeaderLen
}

func slotOffset(isLeaf bool, i int32) int32 {
	return headerLen(isLeaf) + i*slotSize
}

// initBucketPage resets page's data and writes a fresh empty header of
// the requested type.
func initBucketPage(page *pager.Page, isLeaf bool) {
	blank := make([]byte, pager.Pagesize)
	if isLeaf {
		blank[flagsOffset] = 1
	}
	page.Update(blank, 0, pager.Pagesize)
	writeNumSlots(page, 0)
	writeRecordsTop(page, int32(pager.Pagesize))
	if isLeaf {
		writeSibling(page, leftSiblingOffset, NoSibling)
		writeSibling(page, rightSiblingOffset, NoSibling)
	}
}

func isLeafPage(page *pager.Page) bool {
	return page.GetData()[flagsOffset] != 0
}

func readNumSlots(page *pager.Page) int32 {
	return int32(binary.BigEndian.Uint32(page.GetData()[numSlotsOffset : numSlotsOffset+numSlotsSize]))
}

func writeNumSlots(page *pager.Page, n int32) {
	var buf [numSlotsSize]byte
	binary.BigEndian.PutUint32(buf[:], uint32(n))
	page.Update(buf[:], numSlotsOffset, numSlotsSize)
}

func readRecordsTop(page *pager.Page) int32 {
	return int32(binary.BigEndian.Uint32(page.GetData()[recTopOffset : recTopOffset+recTopSize]))
}

func writeRecordsTop(page *pager.Page, v int32) {
	var buf [recTopSize]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	page.Update(buf[:], recTopOffset, recTopSize)
}

func readSibling(page *pager.Page, offset int32) int64 {
	return int64(binary.BigEndian.Uint64(page.GetData()[offset : offset+8]))
}

func writeSibling(page *pager.Page, offset int32, pn int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(pn))
	page.Update(buf[:], int64(offset), 8)
}

func readSlot(page *pager.Page, isLeaf bool, i int32) int32 {
	off := slotOffset(isLeaf, i)
	return int32(binary.BigEndian.Uint32(page.GetData()[off : off+slotSize]))
}

func writeSlot(page *pager.Page, isLeaf bool, i int32, recOffset int32) {
	off := slotOffset(isLeaf, i)
	var buf [slotSize]byte
	binary.BigEndian.PutUint32(buf[:], uint32(recOffset))
	page.Update(buf[:], int64(off), slotSize)
}

// insertSlot shifts slots [i, numSlots) right by one and writes
// recOffset at slot i, then bumps numSlots. Caller must have already
// verified there's room.
func insertSlot(page *pager.Page, isLeaf bool, i, numSlots, recOffset int32) {
	for j := numSlots - 1; j >= i; j-- {
		writeSlot(page, isLeaf, j+1, readSlot(page, isLeaf, j))
	}
	writeSlot(page, isLeaf, i, recOffset)
	writeNumSlots(page, numSlots+1)
}

// removeSlot shifts slots (i, numSlots) left by one, dropping slot i, and
// decrements numSlots. The vacated record bytes are not reclaimed -
// compaction only happens via shrink() during a split.
func removeSlot(page *pager.Page, isLeaf bool, i, numSlots int32) {
	for j := i; j < numSlots-1; j++ {
		writeSlot(page, isLeaf, j, readSlot(page, isLeaf, j+1))
	}
	writeNumSlots(page, numSlots-1)
}

// freeSpace reports how many bytes are available for a new record,
// assuming one more slot will be consumed.
func freeSpace(page *pager.Page, isLeaf bool, numSlots int32) int32 {
	recordsTop := readRecordsTop(page)
	slotsEnd := slotOffset(isLeaf, numSlots+1)
	return recordsTop - slotsEnd
}

// appendRecordToTail writes data at the current tail of the record
// region and returns its offset, or ok=false if there isn't room for
// both the record and one more slot.
func appendRecordToTail(page *pager.Page, isLeaf bool, numSlots int32, data []byte) (offset int32, ok bool) {
	if int32(len(data)) > freeSpace(page, isLeaf, numSlots) {
		return 0, false
	}
	recordsTop := readRecordsTop(page)
	newTop := recordsTop - int32(len(data))
	page.Update(data, int64(newTop), int64(len(data)))
	writeRecordsTop(page, newTop)
	return newTop, true
}
