package mvbtree

import (
	"encoding/binary"

	"mvbtree/pkg/config"
	"mvbtree/pkg/pager"
)

// Entry-point page layout (page 0 of the main file): tree-wide counters
// that must survive a reload.
const (
	epTreeSizeOffset  = 0
	epPagesSizeOffset = epTreeSizeOffset + 8
	epEntryIDOffset   = epPagesSizeOffset + 4
	epHeaderLen       = epEntryIDOffset + 8
)

// EntryPoint is the fixed page-0 view of a tree's size, high-water page
// index, and persisted m-id batch boundary.
type EntryPoint struct {
	page *pager.Page

	// mIdCounter is the in-memory next-m-id to hand out. It is advanced
	// past entryID() in batches of config.MIdBatchSize so that most
	// NextMID calls cost no page write at all.
	mIdCounter int64
}

// initEntryPoint formats page 0 for a freshly created tree.
func initEntryPoint(page *pager.Page) *EntryPoint {
	blank := make([]byte, pager.Pagesize)
	page.Update(blank, 0, pager.Pagesize)
	ep := &EntryPoint{page: page}
	ep.setTreeSize(0)
	ep.setPagesSize(0)
	ep.setEntryID(0)
	return ep
}

// loadEntryPoint wraps an existing page-0, resuming the in-memory m-id
// counter from the persisted high-water mark so freshly minted m-ids
// stay monotonic and unique across a crash/reload.
func loadEntryPoint(page *pager.Page) *EntryPoint {
	ep := &EntryPoint{page: page}
	ep.mIdCounter = ep.entryID()
	return ep
}

func (ep *EntryPoint) TreeSize() int64 {
	return int64(binary.BigEndian.Uint64(ep.page.GetData()[epTreeSizeOffset : epTreeSizeOffset+8]))
}

func (ep *EntryPoint) setTreeSize(v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	ep.page.Update(buf[:], epTreeSizeOffset, 8)
}

// AddToTreeSize adjusts the persisted size counter by delta (positive on
// put, negative on remove).
func (ep *EntryPoint) AddToTreeSize(delta int64) {
	ep.setTreeSize(ep.TreeSize() + delta)
}

func (ep *EntryPoint) PagesSize() int32 {
	return int32(binary.BigEndian.Uint32(ep.page.GetData()[epPagesSizeOffset : epPagesSizeOffset+4]))
}

func (ep *EntryPoint) setPagesSize(v int32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	ep.page.Update(buf[:], epPagesSizeOffset, 4)
}

// NotePageAllocated advances pagesSize to at least pn+1. A split can
// allocate two fresh pages before the pager's own page count catches
// up, so this is tracked independently.
func (ep *EntryPoint) NotePageAllocated(pn int64) {
	if int32(pn+1) > ep.PagesSize() {
		ep.setPagesSize(int32(pn + 1))
	}
}

func (ep *EntryPoint) entryID() int64 {
	return int64(binary.BigEndian.Uint64(ep.page.GetData()[epEntryIDOffset : epEntryIDOffset+8]))
}

func (ep *EntryPoint) setEntryID(v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	ep.page.Update(buf[:], epEntryIDOffset, 8)
}

// NextMID hands out the next monotonic m-id for this tree, persisting a
// fresh high-water mark in batches of config.MIdBatchSize so a mutation
// that doesn't cross a batch boundary touches no extra page.
func (ep *EntryPoint) NextMID() int64 {
	if ep.mIdCounter >= ep.entryID() {
		ep.setEntryID(ep.mIdCounter + config.MIdBatchSize)
	}
	id := ep.mIdCounter
	ep.mIdCounter++
	return id
}
