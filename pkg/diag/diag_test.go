package diag

import (
	"path/filepath"
	"testing"

	"mvbtree/pkg/keycodec"
	"mvbtree/pkg/mvbtree"
	"mvbtree/pkg/rid"
)

func openTestTree(t *testing.T, keyArity int) *mvbtree.Tree {
	t.Helper()
	dir := t.TempDir()
	tree, err := mvbtree.Create("t", filepath.Join(dir, "t"), keyArity, keycodec.NativeSerializer{}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { tree.Close() })
	return tree
}

func TestVerifyOnWellFormedTree(t *testing.T) {
	tree := openTestTree(t, 1)
	for i := int64(0); i < 4000; i++ {
		if err := tree.Put([]keycodec.KeyItem{i}, rid.New(0, i)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	rep, err := Verify(tree)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !rep.OK() {
		t.Fatalf("Verify reported not-OK: shapeOK=%v leafSetOK=%v sizeOK=%v reported=%d scanned=%d err=%v",
			rep.Shape.OK, rep.LeafSetOK, rep.SizeOK, rep.ReportedSize, rep.ScannedSize, rep.Err)
	}
	if len(rep.OnlyInDescent) != 0 || len(rep.OnlyInSiblings) != 0 {
		t.Fatalf("unexpected leaf-set divergence: onlyDescent=%v onlySiblings=%v",
			rep.OnlyInDescent, rep.OnlyInSiblings)
	}
	if rep.ReportedSize != rep.ScannedSize {
		t.Fatalf("ReportedSize=%d != ScannedSize=%d", rep.ReportedSize, rep.ScannedSize)
	}
}

func TestVerifyOnEmptyTree(t *testing.T) {
	tree := openTestTree(t, 1)
	rep, err := Verify(tree)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !rep.OK() {
		t.Fatalf("Verify reported not-OK on an empty tree: %v", rep.Err)
	}
	if rep.ReportedSize != 0 || rep.ScannedSize != 0 {
		t.Fatalf("empty tree reported size %d scanned %d, want 0/0", rep.ReportedSize, rep.ScannedSize)
	}
}

func TestVerifyAfterRemovals(t *testing.T) {
	tree := openTestTree(t, 1)
	for i := int64(0); i < 1000; i++ {
		if err := tree.Put([]keycodec.KeyItem{i}, rid.New(0, i)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	for i := int64(0); i < 1000; i += 2 {
		if _, err := tree.Remove([]keycodec.KeyItem{i}, rid.New(0, i)); err != nil {
			t.Fatalf("Remove: %v", err)
		}
	}
	rep, err := Verify(tree)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !rep.OK() {
		t.Fatalf("Verify reported not-OK after removals: %+v", rep)
	}
	if rep.ReportedSize != 500 {
		t.Fatalf("ReportedSize = %d, want 500", rep.ReportedSize)
	}
}

func TestCompositeKeyHelper(t *testing.T) {
	k := CompositeKey(int64(1), "x")
	if len(k) != 2 {
		t.Fatalf("CompositeKey returned %d items, want 2", len(k))
	}
}
