package mvbtree

import (
	"encoding/binary"

	"mvbtree/pkg/keycodec"
	"mvbtree/pkg/rid"
)

// OverflowContainer is the C7 collaborator: an independently persisted
// ordered map keyed by (m-id, clusterID, clusterPos), whose value is the
// RID itself (the full 10-byte RID, not a one-byte presence flag);
// RangeForMID reads the RIDs back from those values. A leaf entry that has spilled past
// its inline cap stores the rest of its RID bag here, addressed by its
// m-id.
//
// It is implemented as a second, simpler Tree rather than a bespoke
// data structure, reusing the same bucket/leaf/internal machinery: its
// keys are always unique by construction (ValidatedPut checks absence
// before inserting), so it never itself needs an overflow container,
// avoiding the unbounded recursion a fully general nested multi-value
// tree would risk.
type OverflowContainer struct {
	tree *Tree
}

func createOverflowContainer(path string) (*OverflowContainer, error) {
	t, err := createContainerTree(path)
	if err != nil {
		return nil, err
	}
	return &OverflowContainer{tree: t}, nil
}

func loadOverflowContainer(path string) (*OverflowContainer, error) {
	t, err := loadContainerTree(path)
	if err != nil {
		return nil, err
	}
	return &OverflowContainer{tree: t}, nil
}

// encodeContainerKey packs (mID, clusterID, clusterPos) into an
// 18-byte big-endian blob. Ordering under bytes.Compare matches tuple
// ordering because m-ids are a non-negative monotonic counter and
// cluster coordinates are non-negative in practice (documented as an
// assumption, not enforced).
func encodeContainerKey(mID int64, clusterID int16, clusterPos int64) []byte {
	buf := make([]byte, 18)
	binary.BigEndian.PutUint64(buf[0:8], uint64(mID))
	binary.BigEndian.PutUint16(buf[8:10], uint16(clusterID))
	binary.BigEndian.PutUint64(buf[10:18], uint64(clusterPos))
	return buf
}

// ValidatedPut records r under mID if it is not already present,
// calling onInserted exactly when a new key was actually created. A
// duplicate (mID, r) pair is a silent no-op, which is how a duplicate
// Put on an already-spilled key avoids double-counting tree_size.
func (oc *OverflowContainer) ValidatedPut(mID int64, r rid.RID, onInserted func()) error {
	keyBytes := encodeContainerKey(mID, r.ClusterID, r.ClusterPos)
	key := []keycodec.KeyItem{keyBytes}
	existing, err := oc.tree.Get(key)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	if err := oc.tree.Put(key, r); err != nil {
		return err
	}
	onInserted()
	return nil
}

// Remove deletes the (mID, r) pair if present.
func (oc *OverflowContainer) Remove(mID int64, r rid.RID) (bool, error) {
	keyBytes := encodeContainerKey(mID, r.ClusterID, r.ClusterPos)
	return oc.tree.Remove([]keycodec.KeyItem{keyBytes}, r)
}

// RangeForMID returns every RID stored under mID. Implemented as a
// direct leaf-and-sibling walk rather than through the general cursor
// API: the container's keys are a single opaque []byte item, not a
// composite one, so the cursor's per-item boundary padding does not
// apply here.
func (oc *OverflowContainer) RangeForMID(mID int64) ([]rid.RID, error) {
	t := oc.tree
	lowBytes, err := t.encodeKey([]keycodec.KeyItem{encodeContainerKey(mID, 0, 0)})
	if err != nil {
		return nil, err
	}
	highBytes, err := t.encodeKey([]keycodec.KeyItem{encodeContainerKey(mID+1, 0, 0)})
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	lb, err := t.descendForRead(lowBytes)
	if err != nil {
		return nil, err
	}
	var out []rid.RID
	for {
		n := lb.NumEntries()
		idx, _ := t.findInLeaf(lb, lowBytes)
		stop := false
		for ; idx < n; idx++ {
			if t.cmpKeyBytes(lb.KeyBytesAt(idx), highBytes) >= 0 {
				stop = true
				break
			}
			out = append(out, lb.EntryAt(idx).Inline...)
		}
		next := lb.RightSibling()
		t.pgr.PutPage(lb.Page())
		if stop || next == NoSibling {
			return out, nil
		}
		page, err := t.pgr.GetPage(next)
		if err != nil {
			return nil, err
		}
		lb = newLeafBucket(page)
	}
}
