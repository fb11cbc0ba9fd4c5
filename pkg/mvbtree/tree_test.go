package mvbtree

import (
	"path/filepath"
	"testing"

	"mvbtree/pkg/keycodec"
	"mvbtree/pkg/rid"
)

// openTestTree creates a fresh tree of the given key arity backed by a
// fresh temp directory.
func openTestTree(t *testing.T, keyArity int) *Tree {
	t.Helper()
	dir := t.TempDir()
	tree, err := Create("t", filepath.Join(dir, "t"), keyArity, keycodec.NativeSerializer{}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { tree.Close() })
	return tree
}

func intKey(v int64) []keycodec.KeyItem { return []keycodec.KeyItem{v} }

func mustPut(t *testing.T, tree *Tree, key []keycodec.KeyItem, r rid.RID) {
	t.Helper()
	if err := tree.Put(key, r); err != nil {
		t.Fatalf("Put(%v, %v): %v", key, r, err)
	}
}

func ridsEqual(a, b []rid.RID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[rid.RID]int)
	for _, r := range a {
		seen[r]++
	}
	for _, r := range b {
		seen[r]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

func TestPutGetBasic(t *testing.T) {
	tree := openTestTree(t, 1)
	mustPut(t, tree, intKey(7), rid.New(0, 100))

	got, err := tree.Get(intKey(7))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ridsEqual(got, []rid.RID{rid.New(0, 100)}) {
		t.Fatalf("Get(7) = %v, want [{0 100}]", got)
	}

	got, err = tree.Get(intKey(8))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Get(8) = %v, want empty", got)
	}
}

func TestPutSameKeyTwiceDeduplicates(t *testing.T) {
	// put("x", r1); put("x", r2); put("x", r1) dedupes the repeated r1.
	tree := openTestTree(t, 1)
	mustPut(t, tree, intKey(42), rid.New(1, 100))
	mustPut(t, tree, intKey(42), rid.New(1, 101))
	mustPut(t, tree, intKey(42), rid.New(1, 100))

	got, err := tree.Get(intKey(42))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := []rid.RID{rid.New(1, 100), rid.New(1, 101)}
	if !ridsEqual(got, want) {
		t.Fatalf("Get(42) = %v, want %v", got, want)
	}
	if tree.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", tree.Size())
	}
}

func TestPutRemoveRestoresState(t *testing.T) {
	tree := openTestTree(t, 1)
	preSize := tree.Size()
	r := rid.New(3, 9)

	mustPut(t, tree, intKey(5), r)
	removed, err := tree.Remove(intKey(5), r)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatalf("Remove reported false for a present pair")
	}
	if tree.Size() != preSize {
		t.Fatalf("Size() = %d after put+remove, want %d", tree.Size(), preSize)
	}
	got, err := tree.Get(intKey(5))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Get(5) after remove = %v, want empty", got)
	}
}

func TestRemoveIsIdempotentWhenAbsent(t *testing.T) {
	tree := openTestTree(t, 1)
	removed, err := tree.Remove(intKey(999), rid.New(0, 0))
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed {
		t.Fatalf("Remove reported true for a pair that was never present")
	}
}

func TestAscendingBulkInsertAndRange(t *testing.T) {
	// Scaled down from a full-size bulk load to keep the test fast
	// while still forcing several splits.
	const n = 2000
	tree := openTestTree(t, 1)
	for i := int64(0); i < n; i++ {
		mustPut(t, tree, intKey(i), rid.New(0, i))
	}
	if tree.Size() != n {
		t.Fatalf("Size() = %d, want %d", tree.Size(), n)
	}

	first, ok, err := tree.FirstKey()
	if err != nil || !ok {
		t.Fatalf("FirstKey: %v, ok=%v", err, ok)
	}
	if first[0].(int64) != 0 {
		t.Fatalf("FirstKey = %v, want 0", first)
	}
	last, ok, err := tree.LastKey()
	if err != nil || !ok {
		t.Fatalf("LastKey: %v, ok=%v", err, ok)
	}
	if last[0].(int64) != n-1 {
		t.Fatalf("LastKey = %v, want %d", last, n-1)
	}

	c := tree.IterateBetween(intKey(500), intKey(1500), true, false, true, 64)
	defer c.Close()
	var count int64
	var prev int64 = -1
	for c.Next() {
		p, err := c.Pair()
		if err != nil {
			t.Fatalf("Pair: %v", err)
		}
		items := p.Key.([]keycodec.KeyItem)
		k := items[0].(int64)
		if k < 500 || k >= 1500 {
			t.Fatalf("iterate yielded out-of-range key %d", k)
		}
		if k < prev {
			t.Fatalf("iterate yielded keys out of order: %d after %d", k, prev)
		}
		prev = k
		count++
	}
	if count != 1000 {
		t.Fatalf("iterate(500,1500) yielded %d pairs, want 1000", count)
	}
}

func TestDuplicateKeySpansMultipleLeaves(t *testing.T) {
	// A leaf holding one key's entry grows past maxInlineRIDs (it has
	// no neighbors to crowd off the page) until the page is actually
	// full, then splits by partitioning the entry's RID bag rather than
	// moving it wholesale - so enough copies of one key genuinely force
	// that key's bag to span several leaves, and Get must walk the
	// sibling chain in both directions to recover all of it.
	const n = 3000
	tree := openTestTree(t, 1)
	for i := int64(0); i < n; i++ {
		mustPut(t, tree, intKey(1), rid.New(int16(i%1000), i))
	}
	rep, err := tree.VerifyShape()
	if err != nil {
		t.Fatalf("VerifyShape: %v", err)
	}
	if !rep.OK {
		t.Fatalf("VerifyShape: %v", rep.Err)
	}
	if len(rep.DescentLeaves) < 2 {
		t.Fatalf("expected key 1's bag to span multiple leaves, got %d leaf(ves)", len(rep.DescentLeaves))
	}
	got, err := tree.Get(intKey(1))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if int64(len(got)) != n {
		t.Fatalf("Get(1) returned %d RIDs, want %d", len(got), n)
	}
}

func TestRemoveAcrossDuplicateKeySpanningLeaves(t *testing.T) {
	// Once a key's bag spans several leaves, removing individual RIDs
	// must also walk the sibling chain (Tree.removeNonNull's boundary
	// walk), not just the one leaf descent happens to land on.
	const n = 3000
	tree := openTestTree(t, 1)
	rids := make([]rid.RID, n)
	for i := int64(0); i < n; i++ {
		r := rid.New(int16(i%1000), i)
		rids[i] = r
		mustPut(t, tree, intKey(1), r)
	}
	rep, err := tree.VerifyShape()
	if err != nil {
		t.Fatalf("VerifyShape: %v", err)
	}
	if len(rep.DescentLeaves) < 2 {
		t.Fatalf("expected key 1's bag to span multiple leaves, got %d leaf(ves)", len(rep.DescentLeaves))
	}

	for _, r := range rids {
		removed, err := tree.Remove(intKey(1), r)
		if err != nil {
			t.Fatalf("Remove: %v", err)
		}
		if !removed {
			t.Fatalf("Remove(1, %v) reported false for a present pair", r)
		}
	}
	got, err := tree.Get(intKey(1))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Get(1) after removing every RID = %v, want empty", got)
	}
}

func TestNullKeyIndependentOfNonNullKeys(t *testing.T) {
	tree := openTestTree(t, 1)
	mustPut(t, tree, intKey(1), rid.New(0, 1))
	mustPut(t, tree, nil, rid.New(2, 7))
	mustPut(t, tree, nil, rid.New(2, 8))

	got, err := tree.Get(intKey(1))
	if err != nil {
		t.Fatalf("Get(1): %v", err)
	}
	if !ridsEqual(got, []rid.RID{rid.New(0, 1)}) {
		t.Fatalf("Get(1) = %v after null-key puts, want unaffected", got)
	}

	nullGot, err := tree.Get(nil)
	if err != nil {
		t.Fatalf("Get(nil): %v", err)
	}
	if len(nullGot) != 2 {
		t.Fatalf("Get(nil) = %v, want 2 entries", nullGot)
	}
}

func TestNullKeyManyInsertsOverflow(t *testing.T) {
	// Enough null-key puts to force the null bucket's inline cap to
	// spill into the overflow container.
	const n = 500
	tree := openTestTree(t, 1)
	for i := int64(0); i < n; i++ {
		mustPut(t, tree, nil, rid.New(2, i))
	}
	got, err := tree.Get(nil)
	if err != nil {
		t.Fatalf("Get(nil): %v", err)
	}
	if int64(len(got)) != n {
		t.Fatalf("Get(nil) returned %d, want %d", len(got), n)
	}
}

func TestCloseAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t")
	tree, err := Create("t", path, 1, keycodec.NativeSerializer{}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := int64(0); i < 100; i++ {
		mustPut(t, tree, intKey(i), rid.New(0, i))
	}
	if err := tree.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reloaded, err := Load("t", path, 1, keycodec.NativeSerializer{}, nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer reloaded.Close()

	if reloaded.Size() != 100 {
		t.Fatalf("Size() after reload = %d, want 100", reloaded.Size())
	}
	got, err := reloaded.Get(intKey(42))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ridsEqual(got, []rid.RID{rid.New(0, 42)}) {
		t.Fatalf("Get(42) after reload = %v", got)
	}

	// A fresh put must mint an m-id disjoint from anything used before
	// the reload - otherwise resuming mIdCounter from entry_id is broken.
	mustPut(t, reloaded, intKey(200), rid.New(0, 200))
	got, err = reloaded.Get(intKey(200))
	if err != nil || !ridsEqual(got, []rid.RID{rid.New(0, 200)}) {
		t.Fatalf("Get(200) after reload+put = %v, err=%v", got, err)
	}
}

func TestEmptyTree(t *testing.T) {
	tree := openTestTree(t, 1)
	if tree.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", tree.Size())
	}
	if _, ok, err := tree.FirstKey(); err != nil || ok {
		t.Fatalf("FirstKey on empty tree: ok=%v err=%v", ok, err)
	}
	got, err := tree.Get(intKey(1))
	if err != nil || len(got) != 0 {
		t.Fatalf("Get on empty tree = %v, err=%v", got, err)
	}
	if err := tree.Delete(); err != nil {
		t.Fatalf("Delete on empty tree: %v", err)
	}
}

func TestDeleteRefusesNonEmptyTree(t *testing.T) {
	tree := openTestTree(t, 1)
	mustPut(t, tree, intKey(1), rid.New(0, 1))
	if err := tree.Delete(); err != ErrNotEmptyOnDelete {
		t.Fatalf("Delete on non-empty tree = %v, want ErrNotEmptyOnDelete", err)
	}
}

func TestCompositeKeyPadding(t *testing.T) {
	// iterateBetween(("a",), incl, ("a",), incl) over a 2-arity tree
	// returns every pair whose first sub-key == "a".
	tree := openTestTree(t, 2)
	mustPut(t, tree, []keycodec.KeyItem{"a", int64(1)}, rid.New(0, 1))
	mustPut(t, tree, []keycodec.KeyItem{"a", int64(2)}, rid.New(0, 2))
	mustPut(t, tree, []keycodec.KeyItem{"b", int64(1)}, rid.New(0, 3))

	c := tree.IterateBetween(
		[]keycodec.KeyItem{"a"}, []keycodec.KeyItem{"a"}, true, true, true, 64)
	defer c.Close()
	var count int
	for c.Next() {
		if _, err := c.Pair(); err != nil {
			t.Fatalf("Pair: %v", err)
		}
		count++
	}
	if count != 2 {
		t.Fatalf("composite-key prefix scan yielded %d pairs, want 2", count)
	}
}
