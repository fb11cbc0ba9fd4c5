package uniqueindex

import (
	"path/filepath"
	"testing"

	"mvbtree/pkg/keycodec"
	"mvbtree/pkg/mvbtree"
	"mvbtree/pkg/rid"
)

func openTestIndex(t *testing.T, dir, name string) *Index {
	t.Helper()
	tree, err := mvbtree.Create(name, filepath.Join(dir, name), 1, keycodec.NativeSerializer{}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	idx := New(tree)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestPutGetSingleValue(t *testing.T) {
	idx := openTestIndex(t, t.TempDir(), "t")
	key := []keycodec.KeyItem{int64(1)}
	r := rid.New(0, 100)

	if err := idx.Put(key, r); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := idx.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("Get reported not-found for a present key")
	}
	if got != r {
		t.Fatalf("Get = %v, want %v", got, r)
	}
}

func TestGetMissingKey(t *testing.T) {
	idx := openTestIndex(t, t.TempDir(), "t")
	_, ok, err := idx.Get([]keycodec.KeyItem{int64(1)})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("Get reported found for an absent key")
	}
}

func TestGetMultipleValuesIsAnError(t *testing.T) {
	// The facade does not enforce uniqueness itself - a caller that puts
	// two RIDs under one key breaks its own contract, and Get surfaces
	// that as ErrMultipleValues rather than silently picking one.
	idx := openTestIndex(t, t.TempDir(), "t")
	key := []keycodec.KeyItem{int64(1)}
	if err := idx.Put(key, rid.New(0, 1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := idx.Put(key, rid.New(0, 2)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, _, err := idx.Get(key)
	if err != ErrMultipleValues {
		t.Fatalf("Get = %v, want ErrMultipleValues", err)
	}
}

func TestCount(t *testing.T) {
	idx := openTestIndex(t, t.TempDir(), "t")
	key := []keycodec.KeyItem{int64(1)}
	n, err := idx.Count(key)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("Count = %d, want 0", n)
	}
	if err := idx.Put(key, rid.New(0, 1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	n, err = idx.Count(key)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
}

func TestRemove(t *testing.T) {
	idx := openTestIndex(t, t.TempDir(), "t")
	key := []keycodec.KeyItem{int64(1)}
	r := rid.New(0, 1)
	if err := idx.Put(key, r); err != nil {
		t.Fatalf("Put: %v", err)
	}
	removed, err := idx.Remove(key, r)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatalf("Remove reported false for a present pair")
	}
	_, ok, err := idx.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("Get reported found after Remove")
	}
}

// fakeReloader stands in for a catalog that can look a tree up by name
// after a crash-recovery reload swaps the underlying files out from
// under an already-open Index.
type fakeReloader struct {
	tree *mvbtree.Tree
	name string
}

func (f *fakeReloader) Lookup(name string) (*mvbtree.Tree, bool) {
	if name != f.name {
		return nil, false
	}
	return f.tree, true
}

func TestReattachAndWithRetry(t *testing.T) {
	dir := t.TempDir()
	tree, err := mvbtree.Create("t", filepath.Join(dir, "t"), 1, keycodec.NativeSerializer{}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { tree.Close() })
	idx := New(tree)

	r := &fakeReloader{tree: tree, name: "t"}
	if !idx.Reattach(r) {
		t.Fatalf("Reattach failed against a reloader that knows this index's name")
	}

	unknown := &fakeReloader{tree: tree, name: "other"}
	if idx.Reattach(unknown) {
		t.Fatalf("Reattach succeeded against a reloader that does not know this name")
	}

	var attempts int
	err = WithRetry(idx, r, func(i *Index) error {
		attempts++
		return i.Put([]keycodec.KeyItem{int64(1)}, rid.New(0, 1))
	})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("WithRetry ran the op %d times on first-try success, want 1", attempts)
	}
}
