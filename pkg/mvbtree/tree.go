package mvbtree

import (
	"encoding/binary"
	"os"
	"sync"

	"mvbtree/pkg/config"
	"mvbtree/pkg/keycodec"
	"mvbtree/pkg/pager"
	"mvbtree/pkg/rid"
	"mvbtree/pkg/walrec"
)

// removeFile deletes path if it is non-empty, ignoring a missing file -
// used by Delete to clean up whichever of the tree's files were
// actually created.
func removeFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// rootPN and entryPointPN are fixed by construction: every
// tree's main file always has its entry-point page at 0 and its root at
// 1, even after arbitrarily many splits.
const rootPN int64 = 1
const entryPointPN int64 = 0

// Tree is the multi-value B+-tree engine (C8): root I/O, descent,
// split/grow, duplicate-key leaf spanning, and cursors - generalized
// from a fixed int64-keyed unique index to a variable-length-key,
// multi-value one.
type Tree struct {
	mu sync.RWMutex // level-2 latch: protects the pagers, entry point and bucket pages below

	name string

	pgr     *pager.Pager // main file: entry-point + root + nodes
	nullPgr *pager.Pager // secondary file: the null bucket; nil for an overflow-container tree

	entry    *EntryPoint
	overflow *OverflowContainer // nil for an overflow-container tree itself

	keyArity   int
	serializer KeySerializer
	encryption Encryption

	// isContainer marks a Tree used internally as an overflow
	// container (C7): it never routes a null key and never owns a
	// nested overflow container of its own, because its keys are
	// always unique by construction.
	isContainer bool

	atomic AtomicOperationManager // optional; nil for an internal container tree
}

// Create allocates a tree's three on-disk files and returns a freshly
// initialized tree: basePath+".idx" (entry-point + root),
// basePath+".nul" (null bucket), basePath+".ovf" (overflow container).
func Create(name, basePath string, keyArity int, serializer KeySerializer, encryption Encryption, atomic AtomicOperationManager) (*Tree, error) {
	pgr, err := pager.New(basePath + config.DataFileExt)
	if err != nil {
		return nil, err
	}
	epPage, err := pgr.GetNewPage()
	if err != nil {
		return nil, err
	}
	entry := initEntryPoint(epPage)
	pgr.PutPage(epPage)

	rootPage, err := pgr.GetNewPage()
	if err != nil {
		return nil, err
	}
	initBucketPage(rootPage, true)
	pgr.PutPage(rootPage)
	entry.NotePageAllocated(rootPage.GetPageNum())

	t := &Tree{
		name:       name,
		pgr:        pgr,
		entry:      entry,
		keyArity:   keyArity,
		serializer: serializer,
		encryption: encryption,
		atomic:     atomic,
	}

	nullPgr, err := pager.New(basePath + config.NullBucketExt)
	if err != nil {
		return nil, err
	}
	nullPage, err := nullPgr.GetNewPage()
	if err != nil {
		return nil, err
	}
	initNullBucket(nullPage, entry.NextMID())
	nullPgr.PutPage(nullPage)
	t.nullPgr = nullPgr

	overflow, err := createOverflowContainer(basePath + config.OverflowFileExt)
	if err != nil {
		return nil, err
	}
	t.overflow = overflow

	return t, nil
}

// Load rehydrates a tree previously created at basePath.
func Load(name, basePath string, keyArity int, serializer KeySerializer, encryption Encryption, atomic AtomicOperationManager) (*Tree, error) {
	pgr, err := pager.New(basePath + config.DataFileExt)
	if err != nil {
		return nil, err
	}
	epPage, err := pgr.GetPage(entryPointPN)
	if err != nil {
		return nil, err
	}
	entry := loadEntryPoint(epPage)
	pgr.PutPage(epPage)

	t := &Tree{
		name:       name,
		pgr:        pgr,
		entry:      entry,
		keyArity:   keyArity,
		serializer: serializer,
		encryption: encryption,
		atomic:     atomic,
	}

	nullPgr, err := pager.New(basePath + config.NullBucketExt)
	if err != nil {
		return nil, err
	}
	t.nullPgr = nullPgr

	overflow, err := loadOverflowContainer(basePath + config.OverflowFileExt)
	if err != nil {
		return nil, err
	}
	t.overflow = overflow

	return t, nil
}

// createContainerTree builds the stripped-down internal Tree backing an
// OverflowContainer: one file, no null bucket, no nested overflow - an
// independently persisted ordered map.
func createContainerTree(path string) (*Tree, error) {
	pgr, err := pager.New(path)
	if err != nil {
		return nil, err
	}
	epPage, err := pgr.GetNewPage()
	if err != nil {
		return nil, err
	}
	entry := initEntryPoint(epPage)
	pgr.PutPage(epPage)
	rootPage, err := pgr.GetNewPage()
	if err != nil {
		return nil, err
	}
	initBucketPage(rootPage, true)
	pgr.PutPage(rootPage)
	entry.NotePageAllocated(rootPage.GetPageNum())
	return &Tree{
		name:        path,
		pgr:         pgr,
		entry:       entry,
		keyArity:    1,
		serializer:  keycodec.NativeSerializer{},
		isContainer: true,
	}, nil
}

func loadContainerTree(path string) (*Tree, error) {
	pgr, err := pager.New(path)
	if err != nil {
		return nil, err
	}
	epPage, err := pgr.GetPage(entryPointPN)
	if err != nil {
		return nil, err
	}
	entry := loadEntryPoint(epPage)
	pgr.PutPage(epPage)
	return &Tree{
		name:        path,
		pgr:         pgr,
		entry:       entry,
		keyArity:    1,
		serializer:  keycodec.NativeSerializer{},
		isContainer: true,
	}, nil
}

// Name returns the tree's configured name, used as the txn.Resource it
// locks and as the WAL records' IndexName field.
func (t *Tree) Name() string { return t.name }

// --- key encode/decode -----------------------------------------------

func (t *Tree) encodeKey(items []keycodec.KeyItem) ([]byte, error) {
	items = t.serializer.Preprocess(items)
	data := t.serializer.SerializeNativeAsWhole(items)
	if t.encryption != nil {
		plain := data
		enc := t.encryption.Encrypt(plain)
		buf := make([]byte, 4+len(enc))
		binary.BigEndian.PutUint32(buf, uint32(len(plain)))
		copy(buf[4:], enc)
		data = buf
	}
	if len(data) > config.MaxKeySize {
		return nil, ErrOversizeKey
	}
	return data, nil
}

func (t *Tree) decodeKey(data []byte) []keycodec.KeyItem {
	if t.encryption != nil {
		plainLen := binary.BigEndian.Uint32(data[:4])
		dec := t.encryption.Decrypt(data[4:], 0, len(data)-4)
		data = dec[:plainLen]
	}
	return t.serializer.DeserializeNativeObject(data)
}

// cmpKeyBytes orders two serialized keys semantically rather than
// byte-lexicographically: NativeSerializer's int64 encoding is plain
// big-endian without a sign-bit flip, so raw byte order would mis-rank
// negative keys. Decoding both sides and comparing KeyItems is the
// simpler, always-correct choice at the cost of a decode per comparison.
func (t *Tree) cmpKeyBytes(a, b []byte) int {
	return keycodec.CompareKeys(t.decodeKey(a), t.decodeKey(b))
}

// --- descent -----------------------------------------------------------

// pathStep records one internal node visited on the way down, and the
// slot index the search chose there - the same index a promoted
// separator must be inserted at if a split later needs to propagate up
// through this level.
type pathStep struct {
	pn  int64
	idx int32
}

func (t *Tree) descendForRead(keyBytes []byte) (*LeafBucket, error) {
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
			return t.cmpKeyBytes(keyBytes, ib.KeyBytesAt(i)) < 0
		})
		t.pgr.PutPage(page)
		pn = child
	}
}

func (t *Tree) descendForWrite(keyBytes []byte) ([]pathStep, *LeafBucket, error) {
	var path []pathStep
	pn := rootPN
	for depth := 0; ; depth++ {
		if depth > config.MaxPathLength {
			return nil, nil, ErrCorruption
		}
		page, err := t.pgr.GetPage(pn)
		if err != nil {
			return nil, nil, t.wrapIOError("descend", err)
		}
		if isLeafPage(page) {
			return path, newLeafBucket(page), nil
		}
		ib := newInternalBucket(page)
		idx := ib.Search(func(i int32) bool {
			return t.cmpKeyBytes(keyBytes, ib.KeyBytesAt(i)) < 0
		})
		var child int64
		if idx == 0 {
			child = ib.LeftChildAt(0)
		} else {
			child = ib.RightChildAt(idx - 1)
		}
		path = append(path, pathStep{pn: pn, idx: idx})
		t.pgr.PutPage(page)
		pn = child
	}
}

// findInLeaf binary-searches lb for keyBytes, returning the exact slot
// if present or the insertion point otherwise.
func (t *Tree) findInLeaf(lb *LeafBucket, keyBytes []byte) (idx int32, found bool) {
	n := lb.NumEntries()
	lo, hi := int32(0), n
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmpKeyBytes(keyBytes, lb.KeyBytesAt(mid)) <= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo < n && t.cmpKeyBytes(keyBytes, lb.KeyBytesAt(lo)) == 0 {
		return lo, true
	}
	return lo, false
}

// --- Put -----------------------------------------------------------

// Put inserts rid under key, or under the null key if key is nil.
func (t *Tree) Put(key []keycodec.KeyItem, r rid.RID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	opID, err := t.begin(true)
	if err != nil {
		return err
	}
	rollback := true
	defer func() { t.end(opID, &rollback) }()

	if t.isContainer && key == nil {
		invariantf("Put called with a null key against an overflow container tree")
	}

	var keyBytes []byte
	if key != nil {
		keyBytes, err = t.encodeKey(key)
		if err != nil {
			return err
		}
	}

	if t.atomic != nil {
		if err := t.atomic.AcquirePagePin(); err != nil {
			return err
		}
		defer t.atomic.ReleasePagePin()
	}

	if key == nil {
		if err := t.putNull(r); err != nil {
			return err
		}
	} else if err := t.putNonNull(keyBytes, r); err != nil {
		return err
	}

	if t.atomic != nil {
		rec := walrec.PutCO{IndexName: t.name, SerializerID: t.serializer.GetID(), KeyBytes: keyBytes, RID: r}
		if t.encryption != nil {
			rec.EncryptionName = t.encryption.Name()
		}
		if err := t.atomic.AddComponentOperation(opID, rec); err != nil {
			return err
		}
	}
	rollback = false
	return nil
}

func (t *Tree) begin(write bool) (string, error) {
	if t.atomic == nil {
		return "", nil
	}
	return t.atomic.Begin(t.name, write)
}

func (t *Tree) end(opID string, rollback *bool) {
	if t.atomic == nil {
		return
	}
	t.atomic.End(opID, *rollback)
}

func (t *Tree) putNull(r rid.RID) error {
	nbPage, err := t.nullPgr.GetPage(0)
	if err != nil {
		return t.wrapIOError("putNull", err)
	}
	defer t.nullPgr.PutPage(nbPage)
	nb := loadNullBucket(nbPage)
	if nb.AppendInline(r) {
		t.entry.AddToTreeSize(1)
		return nil
	}
	inserted := false
	if err := t.overflow.ValidatedPut(nb.MID(), r, func() { inserted = true; nb.BumpEntriesCount() }); err != nil {
		return err
	}
	if inserted {
		t.entry.AddToTreeSize(1)
	}
	return nil
}

// putNonNull is the workhorse shared by Put (after the null-key check)
// and is never itself called with a nil key.
func (t *Tree) putNonNull(keyBytes []byte, r rid.RID) error {
	for attempt := 0; attempt <= config.MaxPathLength+1; attempt++ {
		path, lb, err := t.descendForWrite(keyBytes)
		if err != nil {
			return err
		}

		idx, found := t.findInLeaf(lb, keyBytes)
		if found {
			for _, have := range lb.EntryAt(idx).Inline {
				if have == r {
					// An identical (key, rid) pair already held inline is a no-op.
					t.pgr.PutPage(lb.Page())
					return nil
				}
			}
			outcome, mID := lb.AppendNewLeafEntry(idx, r)
			switch outcome {
			case OutcomeAppendedInline:
				t.pgr.PutPage(lb.Page())
				t.entry.AddToTreeSize(1)
				return nil
			case OutcomeNeedsOverflow:
				inserted := false
				err := t.overflow.ValidatedPut(mID, r, func() { inserted = true; lb.BumpEntriesCount(idx) })
				t.pgr.PutPage(lb.Page())
				if err != nil {
					return err
				}
				if inserted {
					t.entry.AddToTreeSize(1)
				}
				// A duplicate (key, rid) pair is silently absorbed here;
				// the WAL record is still emitted by the caller regardless.
				return nil
			default: // OutcomeNeedsSplit
				pn := lb.Page().GetPageNum()
				splitErr := t.splitLeaf(pn, lb, path)
				t.pgr.PutPage(lb.Page())
				if splitErr != nil {
					return splitErr
				}
				continue
			}
		}

		mID := t.entry.NextMID()
		if lb.CreateMainLeafEntry(idx, keyBytes, r, mID) {
			t.pgr.PutPage(lb.Page())
			t.entry.AddToTreeSize(1)
			return nil
		}
		pn := lb.Page().GetPageNum()
		splitErr := t.splitLeaf(pn, lb, path)
		t.pgr.PutPage(lb.Page())
		if splitErr != nil {
			return splitErr
		}
	}
	return ErrCorruption
}

// --- Get -----------------------------------------------------------

// Get returns every RID stored under key (or the null key if key is
// nil), in unspecified order.
func (t *Tree) Get(key []keycodec.KeyItem) ([]rid.RID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	opID, err := t.begin(false)
	if err != nil {
		return nil, err
	}
	rollback := false
	defer t.end(opID, &rollback)

	if key == nil {
		if t.isContainer {
			invariantf("Get called with a null key against an overflow container tree")
		}
		return t.getNull()
	}
	keyBytes, err := t.encodeKey(key)
	if err != nil {
		return nil, err
	}
	return t.getNonNull(keyBytes)
}

func (t *Tree) getNull() ([]rid.RID, error) {
	nbPage, err := t.nullPgr.GetPage(0)
	if err != nil {
		return nil, t.wrapIOError("getNull", err)
	}
	defer t.nullPgr.PutPage(nbPage)
	nb := loadNullBucket(nbPage)
	out := append([]rid.RID(nil), nb.Inline()...)
	if nb.HasOverflow() {
		more, err := t.overflow.RangeForMID(nb.MID())
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}
	return out, nil
}

func (t *Tree) getNonNull(keyBytes []byte) ([]rid.RID, error) {
	lb, err := t.descendForRead(keyBytes)
	if err != nil {
		return nil, err
	}
	idx, found := t.findInLeaf(lb, keyBytes)
	if !found {
		// An empty leaf (its only entry fully drained by prior removals,
		// see splitSingleEntryLeaf) carries no key to compare against, so
		// it is not known to be a boundary - walk both directions rather
		// than assume the key, if present at all, is only ever to one
		// side.
		if lb.NumEntries() == 0 {
			left, right := lb.LeftSibling(), lb.RightSibling()
			t.pgr.PutPage(lb.Page())
			out, err := t.walkSiblingCollect(left, keyBytes, false)
			if err != nil {
				return nil, err
			}
			more, err := t.walkSiblingCollect(right, keyBytes, true)
			if err != nil {
				return nil, err
			}
			return append(out, more...), nil
		}
		t.pgr.PutPage(lb.Page())
		return nil, nil
	}
	out, err := t.collectEntryRIDs(lb, idx)
	isFirst := idx == 0
	isLast := idx == lb.NumEntries()-1
	left, right := lb.LeftSibling(), lb.RightSibling()
	t.pgr.PutPage(lb.Page())
	if err != nil {
		return nil, err
	}

	if isFirst {
		more, err := t.walkSiblingCollect(left, keyBytes, false)
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}
	if isLast {
		more, err := t.walkSiblingCollect(right, keyBytes, true)
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}
	return out, nil
}

// collectEntryRIDs gathers a leaf entry's full RID bag: its inline list
// plus, if it has spilled, every RID the overflow container holds under
// its m-id.
func (t *Tree) collectEntryRIDs(lb *LeafBucket, idx int32) ([]rid.RID, error) {
	entry := lb.EntryAt(idx)
	out := append([]rid.RID(nil), entry.Inline...)
	if entry.HasOverflow() {
		more, err := t.overflow.RangeForMID(entry.MID)
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}
	return out, nil
}

// walkSiblingCollect follows the left or right sibling chain from a
// boundary slot while the sibling's bordering key still equals
// probeKey, aggregating RIDs along the way. Empty siblings are skipped
// through rather than stopping the walk.
func (t *Tree) walkSiblingCollect(startPN int64, probeKey []byte, goingRight bool) ([]rid.RID, error) {
	var out []rid.RID
	pn := startPN
	for pn != NoSibling {
		page, err := t.pgr.GetPage(pn)
		if err != nil {
			return nil, t.wrapIOError("walkSiblingCollect", err)
		}
		lb := newLeafBucket(page)
		n := lb.NumEntries()
		if n == 0 {
			next := lb.RightSibling()
			if !goingRight {
				next = lb.LeftSibling()
			}
			t.pgr.PutPage(page)
			pn = next
			continue
		}
		var borderIdx int32
		if goingRight {
			borderIdx = 0
		} else {
			borderIdx = n - 1
		}
		if t.cmpKeyBytes(probeKey, lb.KeyBytesAt(borderIdx)) != 0 {
			t.pgr.PutPage(page)
			return out, nil
		}
		entryRIDs, err := t.collectEntryRIDs(lb, borderIdx)
		if err != nil {
			t.pgr.PutPage(page)
			return nil, err
		}
		out = append(out, entryRIDs...)
		next := lb.RightSibling()
		if !goingRight {
			next = lb.LeftSibling()
		}
		t.pgr.PutPage(page)
		pn = next
	}
	return out, nil
}

// --- Remove -----------------------------------------------------------

// Remove deletes one occurrence of rid under key. Returns whether
// anything was removed.
func (t *Tree) Remove(key []keycodec.KeyItem, r rid.RID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	opID, err := t.begin(true)
	if err != nil {
		return false, err
	}
	rollback := true
	defer func() { t.end(opID, &rollback) }()

	var keyBytes []byte
	var removed bool
	if key == nil {
		if t.isContainer {
			invariantf("Remove called with a null key against an overflow container tree")
		}
		removed, err = t.removeNull(r)
	} else {
		keyBytes, err = t.encodeKey(key)
		if err == nil {
			removed, err = t.removeNonNull(keyBytes, r)
		}
	}
	if err != nil {
		return false, err
	}
	if !removed {
		rollback = false
		return false, nil
	}

	if t.atomic != nil {
		rec := walrec.RemoveEntryCO{IndexName: t.name, SerializerID: t.serializer.GetID(), KeyBytes: keyBytes, RID: r}
		if t.encryption != nil {
			rec.EncryptionName = t.encryption.Name()
		}
		if err := t.atomic.AddComponentOperation(opID, rec); err != nil {
			return false, err
		}
	}
	rollback = false
	return true, nil
}

func (t *Tree) removeNull(r rid.RID) (bool, error) {
	nbPage, err := t.nullPgr.GetPage(0)
	if err != nil {
		return false, t.wrapIOError("removeNull", err)
	}
	defer t.nullPgr.PutPage(nbPage)
	nb := loadNullBucket(nbPage)
	if nb.RemoveInline(r) {
		t.entry.AddToTreeSize(-1)
		return true, nil
	}
	if nb.HasOverflow() {
		ok, err := t.overflow.Remove(nb.MID(), r)
		if err != nil {
			return false, err
		}
		if ok {
			nb.DecrementEntriesCount()
			t.entry.AddToTreeSize(-1)
			return true, nil
		}
	}
	return false, nil
}

func (t *Tree) removeNonNull(keyBytes []byte, r rid.RID) (bool, error) {
	lb, err := t.descendForRead(keyBytes)
	if err != nil {
		return false, err
	}
	idx, found := t.findInLeaf(lb, keyBytes)
	if !found {
		// Same empty-leaf boundary case as getNonNull: this leaf's share
		// of the key may have been fully removed already while siblings
		// still hold it.
		if lb.NumEntries() == 0 {
			left, right := lb.LeftSibling(), lb.RightSibling()
			t.pgr.PutPage(lb.Page())
			if ok, err := t.walkSiblingRemove(left, keyBytes, r, false); err != nil || ok {
				if ok {
					t.entry.AddToTreeSize(-1)
				}
				return ok, err
			}
			if ok, err := t.walkSiblingRemove(right, keyBytes, r, true); err != nil || ok {
				if ok {
					t.entry.AddToTreeSize(-1)
				}
				return ok, err
			}
			return false, nil
		}
		t.pgr.PutPage(lb.Page())
		return false, nil
	}

	removed, err := t.removeFromEntry(lb, idx, r)
	isFirst := idx == 0
	isLast := idx == lb.NumEntries()-1
	left, right := lb.LeftSibling(), lb.RightSibling()
	t.pgr.PutPage(lb.Page())
	if err != nil {
		return false, err
	}
	if removed {
		t.entry.AddToTreeSize(-1)
		return true, nil
	}

	// Boundary walk: an equal-key entry may live in a sibling leaf.
	// Stop on the first successful removal. A single-entry leaf is
	// both first and last, so both directions may need to be tried.
	if isFirst {
		if ok, err := t.walkSiblingRemove(left, keyBytes, r, false); err != nil || ok {
			if ok {
				t.entry.AddToTreeSize(-1)
			}
			return ok, err
		}
	}
	if isLast {
		if ok, err := t.walkSiblingRemove(right, keyBytes, r, true); err != nil || ok {
			if ok {
				t.entry.AddToTreeSize(-1)
			}
			return ok, err
		}
	}
	return false, nil
}

// removeFromEntry attempts to remove r from the entry at slot idx,
// trying the inline list first and the overflow container second.
func (t *Tree) removeFromEntry(lb *LeafBucket, idx int32, r rid.RID) (bool, error) {
	entry := lb.EntryAt(idx)
	if _, removedInline := lb.RemoveLeafEntryRID(idx, r); removedInline {
		return true, nil
	}
	if entry.HasOverflow() {
		ok, err := t.overflow.Remove(entry.MID, r)
		if err != nil {
			return false, err
		}
		if ok {
			lb.DecrementEntriesCount(idx)
			return true, nil
		}
	}
	return false, nil
}

func (t *Tree) walkSiblingRemove(startPN int64, probeKey []byte, r rid.RID, goingRight bool) (bool, error) {
	pn := startPN
	for pn != NoSibling {
		page, err := t.pgr.GetPage(pn)
		if err != nil {
			return false, t.wrapIOError("walkSiblingRemove", err)
		}
		lb := newLeafBucket(page)
		n := lb.NumEntries()
		if n == 0 {
			next := lb.RightSibling()
			if !goingRight {
				next = lb.LeftSibling()
			}
			t.pgr.PutPage(page)
			pn = next
			continue
		}
		var borderIdx int32
		if goingRight {
			borderIdx = 0
		} else {
			borderIdx = n - 1
		}
		if t.cmpKeyBytes(probeKey, lb.KeyBytesAt(borderIdx)) != 0 {
			t.pgr.PutPage(page)
			return false, nil
		}
		removed, err := t.removeFromEntry(lb, borderIdx, r)
		next := lb.RightSibling()
		if !goingRight {
			next = lb.LeftSibling()
		}
		t.pgr.PutPage(page)
		if err != nil {
			return false, err
		}
		if removed {
			return true, nil
		}
		pn = next
	}
	return false, nil
}

// --- whole-tree metadata -----------------------------------------------

// Size returns the total RID count across the whole tree, including the
// null bucket.
func (t *Tree) Size() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entry.TreeSize()
}

// FirstKey returns the smallest non-null key present, if any.
func (t *Tree) FirstKey() ([]keycodec.KeyItem, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pn := rootPN
	for {
		page, err := t.pgr.GetPage(pn)
		if err != nil {
			return nil, false, t.wrapIOError("firstKey", err)
		}
		if isLeafPage(page) {
			lb := newLeafBucket(page)
			if lb.NumEntries() == 0 {
				t.pgr.PutPage(page)
				return nil, false, nil
			}
			items := t.decodeKey(lb.KeyBytesAt(0))
			t.pgr.PutPage(page)
			return items, true, nil
		}
		ib := newInternalBucket(page)
		child := ib.LeftChildAt(0)
		t.pgr.PutPage(page)
		pn = child
	}
}

// LastKey returns the largest non-null key present, if any.
func (t *Tree) LastKey() ([]keycodec.KeyItem, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pn := rootPN
	for {
		page, err := t.pgr.GetPage(pn)
		if err != nil {
			return nil, false, t.wrapIOError("lastKey", err)
		}
		if isLeafPage(page) {
			lb := newLeafBucket(page)
			n := lb.NumEntries()
			if n == 0 {
				t.pgr.PutPage(page)
				return nil, false, nil
			}
			items := t.decodeKey(lb.KeyBytesAt(n - 1))
			t.pgr.PutPage(page)
			return items, true, nil
		}
		ib := newInternalBucket(page)
		child := ib.RightChildAt(ib.NumKeys() - 1)
		t.pgr.PutPage(page)
		pn = child
	}
}

// Close flushes and closes every file backing the tree.
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.pgr.Close(); err != nil {
		return t.wrapIOError("close", err)
	}
	if t.nullPgr != nil {
		if err := t.nullPgr.Close(); err != nil {
			return t.wrapIOError("close", err)
		}
	}
	if t.overflow != nil {
		if err := t.overflow.tree.Close(); err != nil {
			return t.wrapIOError("close", err)
		}
	}
	return nil
}

// Delete closes and removes the tree's files. It refuses if the tree is
// non-empty - a deliberate safety check against deleting live data.
func (t *Tree) Delete() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entry.TreeSize() != 0 {
		return ErrNotEmptyOnDelete
	}
	dataPath := t.pgr.GetFileName()
	nullPath := ""
	if t.nullPgr != nil {
		nullPath = t.nullPgr.GetFileName()
	}
	ovfPath := ""
	if t.overflow != nil {
		ovfPath = t.overflow.tree.pgr.GetFileName()
	}
	t.pgr.Close()
	if t.nullPgr != nil {
		t.nullPgr.Close()
	}
	if t.overflow != nil {
		t.overflow.tree.pgr.Close()
	}
	removeFile(dataPath)
	removeFile(nullPath)
	removeFile(ovfPath)
	return nil
}
