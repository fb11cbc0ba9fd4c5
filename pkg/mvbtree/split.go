package mvbtree

// This file implements the split algorithm: a leaf or
// internal node that reports itself full is divided in half, its
// separator is promoted to its parent, and the promotion recurses up
// the path recorded during descent. A split of the root is special-
// cased, since the root's page number is fixed and must stay an
// internal node afterward even if it used to be the tree's only leaf.

// copyLeafEntries copies src's entries in [from, to) onto the end of
// dst, which must be a freshly initialized, empty leaf page.
func copyLeafEntries(src *LeafBucket, from, to int32, dst *LeafBucket) {
	for i := from; i < to; i++ {
		if !dst.appendEntryRaw(src.EntryAt(i)) {
			invariantf("split target leaf page had no room for a carried-over entry")
		}
	}
}

// splitLeaf splits the full leaf bucket lb, currently at page pn, and
// propagates the promoted separator up through path. A leaf holding
// only one entry has no other key to split on - its entry is the whole
// page - so that case is delegated to splitSingleEntryLeaf, which
// partitions the entry's RID bag instead of moving it wholesale.
func (t *Tree) splitLeaf(pn int64, lb *LeafBucket, path []pathStep) error {
	n := lb.NumEntries()
	if n == 1 {
		if pn == rootPN {
			return t.splitSingleEntryRootLeaf(lb)
		}
		return t.splitSingleEntryLeaf(pn, lb, path)
	}
	mid := n / 2
	sepKey := append([]byte(nil), lb.KeyBytesAt(mid)...)

	if pn == rootPN {
		return t.splitRootLeaf(lb, mid)
	}

	newPage, err := t.pgr.GetNewPage()
	if err != nil {
		return err
	}
	t.entry.NotePageAllocated(newPage.GetPageNum())
	initBucketPage(newPage, true)
	nrb := newLeafBucket(newPage)
	copyLeafEntries(lb, mid, n, nrb)

	oldRight := lb.RightSibling()
	nrb.SetLeftSibling(pn)
	nrb.SetRightSibling(oldRight)
	lb.SetRightSibling(newPage.GetPageNum())
	if oldRight != NoSibling {
		rp, err := t.pgr.GetPage(oldRight)
		if err != nil {
			t.pgr.PutPage(newPage)
			return err
		}
		newLeafBucket(rp).SetLeftSibling(newPage.GetPageNum())
		t.pgr.PutPage(rp)
	}

	lb.Shrink(mid)
	t.pgr.PutPage(newPage)

	return t.insertSeparatorUp(path, pn, newPage.GetPageNum(), sepKey)
}

// splitRootLeaf handles the case where the tree's one and only leaf -
// the root itself - is full. Two fresh leaf pages take the split
// halves, and the root page is reinitialized in place as an internal
// node holding a single separator key.
func (t *Tree) splitRootLeaf(lb *LeafBucket, mid int32) error {
	n := lb.NumEntries()
	sepKey := append([]byte(nil), lb.KeyBytesAt(mid)...)

	leftPage, err := t.pgr.GetNewPage()
	if err != nil {
		return err
	}
	t.entry.NotePageAllocated(leftPage.GetPageNum())
	initBucketPage(leftPage, true)
	leftLB := newLeafBucket(leftPage)
	copyLeafEntries(lb, 0, mid, leftLB)

	rightPage, err := t.pgr.GetNewPage()
	if err != nil {
		t.pgr.PutPage(leftPage)
		return err
	}
	t.entry.NotePageAllocated(rightPage.GetPageNum())
	initBucketPage(rightPage, true)
	rightLB := newLeafBucket(rightPage)
	copyLeafEntries(lb, mid, n, rightLB)

	leftLB.SetLeftSibling(NoSibling)
	leftLB.SetRightSibling(rightPage.GetPageNum())
	rightLB.SetLeftSibling(leftPage.GetPageNum())
	rightLB.SetRightSibling(NoSibling)

	initBucketPage(lb.Page(), false)
	rootIB := newInternalBucket(lb.Page())
	if !rootIB.insertKeyAt(0, sepKey, leftPage.GetPageNum(), rightPage.GetPageNum()) {
		invariantf("fresh internal root page had no room for its first key")
	}

	t.pgr.PutPage(leftPage)
	t.pgr.PutPage(rightPage)
	return nil
}

// splitSingleEntryLeaf handles a non-root leaf whose single entry has
// outgrown the page (see AppendNewLeafEntry): the entry's key becomes
// the promoted separator, and its RID bag is partitioned between the
// existing page (left half) and a freshly allocated sibling (right
// half). Descent always resolves the key to the right half afterward
// (a separator routes equal keys right); the left half is reachable
// only via the sibling-boundary walk in Tree.getNonNull/removeNonNull.
func (t *Tree) splitSingleEntryLeaf(pn int64, lb *LeafBucket, path []pathStep) error {
	left, right := splitSingleEntry(lb.EntryAt(0))
	sepKey := append([]byte(nil), left.KeyBytes...)

	newPage, err := t.pgr.GetNewPage()
	if err != nil {
		return err
	}
	t.entry.NotePageAllocated(newPage.GetPageNum())
	initBucketPage(newPage, true)
	nrb := newLeafBucket(newPage)
	if !nrb.appendEntryRaw(right) {
		invariantf("split target leaf page had no room for its half of a partitioned entry")
	}

	oldRight := lb.RightSibling()
	nrb.SetLeftSibling(pn)
	nrb.SetRightSibling(oldRight)
	lb.SetRightSibling(newPage.GetPageNum())
	if oldRight != NoSibling {
		rp, err := t.pgr.GetPage(oldRight)
		if err != nil {
			t.pgr.PutPage(newPage)
			return err
		}
		newLeafBucket(rp).SetLeftSibling(newPage.GetPageNum())
		t.pgr.PutPage(rp)
	}

	lb.ReplaceSoleEntry(left)
	t.pgr.PutPage(newPage)

	return t.insertSeparatorUp(path, pn, newPage.GetPageNum(), sepKey)
}

// splitSingleEntryRootLeaf is splitSingleEntryLeaf's root-split
// counterpart, mirroring splitRootLeaf: two fresh leaves take the
// partitioned halves and the root page becomes an internal node.
func (t *Tree) splitSingleEntryRootLeaf(lb *LeafBucket) error {
	left, right := splitSingleEntry(lb.EntryAt(0))
	sepKey := append([]byte(nil), left.KeyBytes...)

	leftPage, err := t.pgr.GetNewPage()
	if err != nil {
		return err
	}
	t.entry.NotePageAllocated(leftPage.GetPageNum())
	initBucketPage(leftPage, true)
	leftLB := newLeafBucket(leftPage)
	if !leftLB.appendEntryRaw(left) {
		invariantf("fresh split leaf page had no room for a partitioned entry half")
	}

	rightPage, err := t.pgr.GetNewPage()
	if err != nil {
		t.pgr.PutPage(leftPage)
		return err
	}
	t.entry.NotePageAllocated(rightPage.GetPageNum())
	initBucketPage(rightPage, true)
	rightLB := newLeafBucket(rightPage)
	if !rightLB.appendEntryRaw(right) {
		invariantf("fresh split leaf page had no room for a partitioned entry half")
	}

	leftLB.SetLeftSibling(NoSibling)
	leftLB.SetRightSibling(rightPage.GetPageNum())
	rightLB.SetLeftSibling(leftPage.GetPageNum())
	rightLB.SetRightSibling(NoSibling)

	initBucketPage(lb.Page(), false)
	rootIB := newInternalBucket(lb.Page())
	if !rootIB.insertKeyAt(0, sepKey, leftPage.GetPageNum(), rightPage.GetPageNum()) {
		invariantf("fresh internal root page had no room for its first key")
	}

	t.pgr.PutPage(leftPage)
	t.pgr.PutPage(rightPage)
	return nil
}

// insertSeparatorUp records a promoted separator in the nearest
// ancestor on path, splitting that ancestor in turn if it has no room.
func (t *Tree) insertSeparatorUp(path []pathStep, leftPN, rightPN int64, sepKey []byte) error {
	if len(path) == 0 {
		invariantf("insertSeparatorUp called with an empty path for a non-root split")
	}
	last := path[len(path)-1]
	parentPage, err := t.pgr.GetPage(last.pn)
	if err != nil {
		return err
	}
	ib := newInternalBucket(parentPage)
	if ib.InsertSplitKey(last.idx, sepKey, leftPN, rightPN) {
		t.pgr.PutPage(parentPage)
		return nil
	}
	err = t.splitInternal(last.pn, ib, path[:len(path)-1], last.idx, sepKey, leftPN, rightPN)
	t.pgr.PutPage(parentPage)
	return err
}

// internalSplitEntry is one (key, leftChild, rightChild) triple from an
// internal node being rebuilt during a split, including the pending key
// that did not fit.
type internalSplitEntry struct {
	key         []byte
	left, right int64
}

// splitInternal handles a full internal node at page pn that needs to
// record a new separator (newKey, newLeftPN, newRightPN) at position
// insertIdx. It merges the existing keys with the pending one in
// memory, then rebuilds the node (or, for the root, two fresh nodes)
// from the merged list, promoting the middle entry.
func (t *Tree) splitInternal(pn int64, ib *InternalBucket, path []pathStep, insertIdx int32, newKey []byte, newLeftPN, newRightPN int64) error {
	n := ib.NumKeys()
	merged := make([]internalSplitEntry, 0, n+1)
	for i := int32(0); i < n; i++ {
		if i == insertIdx {
			merged = append(merged, internalSplitEntry{newKey, newLeftPN, newRightPN})
		}
		k := append([]byte(nil), ib.KeyBytesAt(i)...)
		merged = append(merged, internalSplitEntry{k, ib.LeftChildAt(i), ib.RightChildAt(i)})
	}
	if insertIdx == n {
		merged = append(merged, internalSplitEntry{newKey, newLeftPN, newRightPN})
	}
	// The slot right after the inserted key inherited the old single
	// child's identity; give it the split's right half, mirroring
	// InternalBucket.InsertSplitKey's fixup.
	if int(insertIdx)+1 < len(merged) {
		merged[insertIdx+1].left = newRightPN
	}

	mid := len(merged) / 2
	sep := merged[mid]

	if pn == rootPN {
		return t.splitRootInternal(ib, merged, mid)
	}

	newPage, err := t.pgr.GetNewPage()
	if err != nil {
		return err
	}
	t.entry.NotePageAllocated(newPage.GetPageNum())
	initBucketPage(newPage, false)
	rightIB := newInternalBucket(newPage)
	for i := mid + 1; i < len(merged); i++ {
		e := merged[i]
		if !rightIB.insertKeyAt(rightIB.NumKeys(), e.key, e.left, e.right) {
			invariantf("fresh internal split page had no room for a carried-over key")
		}
	}

	initBucketPage(ib.Page(), false)
	for i := 0; i < mid; i++ {
		e := merged[i]
		if !ib.insertKeyAt(ib.NumKeys(), e.key, e.left, e.right) {
			invariantf("rebuilt internal page had no room for its left half")
		}
	}

	t.pgr.PutPage(newPage)
	return t.insertSeparatorUp(path, pn, newPage.GetPageNum(), sep.key)
}

// splitRootInternal handles a full internal root: two fresh internal
// pages take the split halves and the root page is reinitialized in
// place to hold just the promoted separator.
func (t *Tree) splitRootInternal(ib *InternalBucket, merged []internalSplitEntry, mid int) error {
	sep := merged[mid]

	leftPage, err := t.pgr.GetNewPage()
	if err != nil {
		return err
	}
	t.entry.NotePageAllocated(leftPage.GetPageNum())
	initBucketPage(leftPage, false)
	leftIB := newInternalBucket(leftPage)
	for i := 0; i < mid; i++ {
		e := merged[i]
		if !leftIB.insertKeyAt(leftIB.NumKeys(), e.key, e.left, e.right) {
			invariantf("fresh internal root-split left page had no room")
		}
	}

	rightPage, err := t.pgr.GetNewPage()
	if err != nil {
		t.pgr.PutPage(leftPage)
		return err
	}
	t.entry.NotePageAllocated(rightPage.GetPageNum())
	initBucketPage(rightPage, false)
	rightIB := newInternalBucket(rightPage)
	for i := mid + 1; i < len(merged); i++ {
		e := merged[i]
		if !rightIB.insertKeyAt(rightIB.NumKeys(), e.key, e.left, e.right) {
			invariantf("fresh internal root-split right page had no room")
		}
	}

	initBucketPage(ib.Page(), false)
	rootIB := newInternalBucket(ib.Page())
	if !rootIB.insertKeyAt(0, sep.key, leftPage.GetPageNum(), rightPage.GetPageNum()) {
		invariantf("reinitialized internal root page had no room for its single key")
	}

	t.pgr.PutPage(leftPage)
	t.pgr.PutPage(rightPage)
	return nil
}
