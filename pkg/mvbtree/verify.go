package mvbtree

// This file checks the tree's structural invariants as a recursive
// page-level walk: bounds propagation returning (lowest, highest, ok),
// adapted to the slotted double-child-pointer internal layout and to
// duplicate keys that may legitimately span a page boundary.

import "github.com/pkg/errors"

// ShapeReport is the result of a VerifyShape pass.
type ShapeReport struct {
	OK bool
	// Pages lists every page visited during the root-down walk, in visit
	// order (root first).
	Pages []int64
	// DescentLeaves lists every leaf page reached during the root-down
	// walk, in visit order.
	DescentLeaves []int64
	// SiblingLeaves lists every leaf page reached by following
	// right_sibling from the leftmost leaf, in chain order.
	SiblingLeaves []int64
	// Err is the first structural problem found, if !OK.
	Err error
}

// VerifyShape walks the tree's page structure root-down, checking
// internal-node coherence (right(i-1) == left(i) for every internal
// slot) and that every separator key correctly bounds its two neighbor
// subtrees, then separately walks the leaf sibling chain from the
// leftmost leaf. It does not compare the two leaf sets against each
// other - cross-checking DescentLeaves against SiblingLeaves, including
// for duplicate or missing pages, is left to pkg/diag.
func (t *Tree) VerifyShape() (*ShapeReport, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rep := &ShapeReport{OK: true}
	if _, _, err := t.verifyNode(rootPN, rep); err != nil {
		rep.OK = false
		rep.Err = err
		return rep, nil
	}
	if err := t.verifySiblingChain(rep); err != nil {
		rep.OK = false
		rep.Err = err
	}
	return rep, nil
}

// verifyNode recursively checks the subtree rooted at pn, returning its
// lowest and highest key (nil, nil if the subtree is an empty leaf).
func (t *Tree) verifyNode(pn int64, rep *ShapeReport) (low, high []byte, err error) {
	page, err := t.pgr.GetPage(pn)
	if err != nil {
		return nil, nil, t.wrapIOError("verifyNode", err)
	}
	rep.Pages = append(rep.Pages, pn)

	if isLeafPage(page) {
		lb := newLeafBucket(page)
		n := lb.NumEntries()
		rep.DescentLeaves = append(rep.DescentLeaves, pn)
		for i := int32(1); i < n; i++ {
			if t.cmpKeyBytes(lb.KeyBytesAt(i-1), lb.KeyBytesAt(i)) > 0 {
				t.pgr.PutPage(page)
				return nil, nil, errors.Errorf("mvbtree: leaf page %d keys out of order at slot %d", pn, i)
			}
		}
		var lo, hi []byte
		if n > 0 {
			lo = append([]byte(nil), lb.KeyBytesAt(0)...)
			hi = append([]byte(nil), lb.KeyBytesAt(n-1)...)
		}
		t.pgr.PutPage(page)
		return lo, hi, nil
	}

	ib := newInternalBucket(page)
	numKeys := ib.NumKeys()
	if numKeys == 0 {
		t.pgr.PutPage(page)
		return nil, nil, errors.Errorf("mvbtree: internal page %d has no keys", pn)
	}
	for i := int32(1); i < numKeys; i++ {
		if ib.RightChildAt(i-1) != ib.LeftChildAt(i) {
			t.pgr.PutPage(page)
			return nil, nil, errors.Errorf("mvbtree: internal page %d slot %d: right(%d)=%d != left(%d)=%d",
				pn, i, i-1, ib.RightChildAt(i-1), i, ib.LeftChildAt(i))
		}
	}
	children := make([]int64, 0, numKeys+1)
	children = append(children, ib.LeftChildAt(0))
	keys := make([][]byte, numKeys)
	for i := int32(0); i < numKeys; i++ {
		children = append(children, ib.RightChildAt(i))
		keys[i] = append([]byte(nil), ib.KeyBytesAt(i)...)
	}
	t.pgr.PutPage(page)

	var lo, hi []byte
	for i, childPN := range children {
		cl, ch, err := t.verifyNode(childPN, rep)
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			lo = cl
		}
		if i == len(children)-1 {
			hi = ch
		}
		// children[i] sits to the right of keys[i-1] (its low bound) and
		// to the left of keys[i] (its high bound). A child's bound may
		// equal its neighboring separator - duplicate keys are allowed
		// to span the boundary - but never cross it.
		if i > 0 && cl != nil {
			sep := keys[i-1]
			if t.cmpKeyBytes(cl, sep) < 0 {
				return nil, nil, errors.Errorf("mvbtree: internal page %d: child %d low bound precedes separator %d", pn, childPN, i-1)
			}
		}
		if i < len(children)-1 && ch != nil {
			sep := keys[i]
			if t.cmpKeyBytes(ch, sep) > 0 {
				return nil, nil, errors.Errorf("mvbtree: internal page %d: child %d high bound exceeds separator %d", pn, childPN, i)
			}
		}
	}
	return lo, hi, nil
}

// verifySiblingChain walks the leaf level left to right via
// right_sibling, checking it terminates, never repeats a page, and
// yields keys in non-decreasing order across the whole chain.
func (t *Tree) verifySiblingChain(rep *ShapeReport) error {
	lb, err := t.leftmostLeaf()
	if err != nil {
		return err
	}
	seen := make(map[int64]bool)
	var prevKey []byte
	for {
		pn := lb.Page().GetPageNum()
		if seen[pn] {
			t.pgr.PutPage(lb.Page())
			return errors.Errorf("mvbtree: sibling chain revisits page %d", pn)
		}
		seen[pn] = true
		rep.SiblingLeaves = append(rep.SiblingLeaves, pn)

		n := lb.NumEntries()
		for i := int32(0); i < n; i++ {
			kb := lb.KeyBytesAt(i)
			if prevKey != nil && t.cmpKeyBytes(prevKey, kb) > 0 {
				t.pgr.PutPage(lb.Page())
				return errors.Errorf("mvbtree: sibling chain out of order at page %d slot %d", pn, i)
			}
			prevKey = append([]byte(nil), kb...)
		}

		next := lb.RightSibling()
		t.pgr.PutPage(lb.Page())
		if next == NoSibling {
			return nil
		}
		page, err := t.pgr.GetPage(next)
		if err != nil {
			return t.wrapIOError("verifySiblingChain", err)
		}
		lb = newLeafBucket(page)
	}
}
