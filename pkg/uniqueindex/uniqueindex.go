// Package uniqueindex implements the C9 collaborator: a one-value facade
// over a multi-value tree, for callers that have their own guarantee that
// a key never owns more than one RID (e.g. a primary-key index) and want
// the simpler get-a-single-RID contract instead of get-a-bag.
//
// The facade does not itself enforce uniqueness - a Put that lands a
// second RID under an already-present key is a caller bug, not something
// this package detects or corrects.
package uniqueindex

import (
	"mvbtree/pkg/cursor"
	"mvbtree/pkg/keycodec"
	"mvbtree/pkg/mvbtree"
	"mvbtree/pkg/rid"

	"github.com/pkg/errors"
)

// ErrMultipleValues is returned by Get when the underlying tree holds
// more than one RID for a key that the facade's caller promised would be
// unique. It signals a violated caller contract, not a tree-engine bug.
var ErrMultipleValues = errors.New("uniqueindex: key holds more than one value")

// Index is a unique-key view over a *mvbtree.Tree.
type Index struct {
	tree *mvbtree.Tree
}

// New wraps an already created or loaded tree.
func New(tree *mvbtree.Tree) *Index {
	return &Index{tree: tree}
}

func (idx *Index) Name() string { return idx.tree.Name() }

// Put records r under key, overwriting nothing: a second Put under an
// already-present key grows the tree's internal RID bag to two entries,
// which Get then reports as ErrMultipleValues rather than silently
// picking one.
func (idx *Index) Put(key []keycodec.KeyItem, r rid.RID) error {
	return idx.tree.Put(key, r)
}

// Remove deletes r from key's bag, if present.
func (idx *Index) Remove(key []keycodec.KeyItem, r rid.RID) (bool, error) {
	return idx.tree.Remove(key, r)
}

// Get returns the single RID stored under key, and whether key is
// present at all.
func (idx *Index) Get(key []keycodec.KeyItem) (rid.RID, bool, error) {
	rids, err := idx.tree.Get(key)
	if err != nil {
		return rid.RID{}, false, err
	}
	switch len(rids) {
	case 0:
		return rid.RID{}, false, nil
	case 1:
		return rids[0], true, nil
	default:
		return rid.RID{}, false, ErrMultipleValues
	}
}

// Count reports how many RIDs key owns - 0 or 1 in the well-formed case,
// surfaced raw (rather than collapsed to a bool) so a caller auditing for
// ErrMultipleValues-shaped corruption can see the real count.
func (idx *Index) Count(key []keycodec.KeyItem) (int, error) {
	rids, err := idx.tree.Get(key)
	if err != nil {
		return 0, err
	}
	return len(rids), nil
}

func (idx *Index) Size() int64 { return idx.tree.Size() }

func (idx *Index) Close() error { return idx.tree.Close() }

func (idx *Index) Delete() error { return idx.tree.Delete() }

// Cursor returns an ascending cursor over the whole key range. Since
// every key owns at most one RID by contract, this also serves as the
// facade's key cursor.
func (idx *Index) Cursor(prefetchSize int) cursor.Cursor {
	return idx.tree.IterateBetween(nil, nil, true, true, true, prefetchSize)
}

// Reloader is satisfied by whatever owns the facade's underlying tree
// reference. The tree itself never raises an "invalid index engine id"
// style error on a stale reference - that check, and the retry it
// drives, belongs to the caller, not this package. A typical caller's
// retry loop looks up the live tree by name on every attempt and calls
// Reattach before retrying, so a Close followed by a fresh Load
// elsewhere is picked up transparently.
type Reloader interface {
	// Lookup returns the tree currently registered under name, or false
	// if no such tree exists (e.g. because it was dropped).
	Lookup(name string) (*mvbtree.Tree, bool)
}

// Reattach repoints the facade at whatever tree r currently has
// registered under idx's name. Callers use this inside a retry loop after
// an operation fails because the tree it was using got closed out from
// under it by a concurrent reload - a protocol between caller and facade,
// not a rule the tree enforces itself.
func (idx *Index) Reattach(r Reloader) bool {
	tree, ok := r.Lookup(idx.Name())
	if !ok {
		return false
	}
	idx.tree = tree
	return true
}

// WithRetry runs op, and if op reports an error, attempts one Reattach
// via r and retries op once more. This protocol lives outside the
// tree's core: the tree itself never raises a reload-specific error, so
// the caller decides what "failed because of a reload" means for op and
// whether retrying is safe (e.g. safe for Get, not safe for a Put whose
// first attempt may have partially applied).
func WithRetry(idx *Index, r Reloader, op func(*Index) error) error {
	err := op(idx)
	if err == nil {
		return nil
	}
	if !idx.Reattach(r) {
		return err
	}
	return op(idx)
}
