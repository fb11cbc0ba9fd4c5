package mvbtree

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrOversizeKey is returned by Put when a key's serialized length
// exceeds config.MaxKeySize ("OversizeKey").
var ErrOversizeKey = errors.New("mvbtree: serialized key exceeds max key size")

// ErrCorruption marks a descent depth past config.MaxPathLength or an
// entry-point inconsistency - fatal for the enclosing operation.
var ErrCorruption = errors.New("mvbtree: tree structure is corrupt")

// ErrNotEmptyOnDelete is returned by Delete when the tree's size is
// nonzero - a deliberate safety check, not a bug.
var ErrNotEmptyOnDelete = errors.New("mvbtree: delete refused, tree is not empty")

// wrapIOError wraps a page or file failure with the tree's name for
// diagnostics.
func (t *Tree) wrapIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "mvbtree %q: %s", t.name, op)
}

// invariantf panics on a violated load-bearing invariant - an engine
// bug, not corrupt data, for conditions that should be impossible by
// construction.
func invariantf(format string, args ...interface{}) {
	panic(fmt.Sprintf("mvbtree: invariant violated: "+format, args...))
}
