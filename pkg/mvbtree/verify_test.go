package mvbtree

import (
	"testing"

	"mvbtree/pkg/rid"
)

func TestVerifyShapeOnFreshlyBuiltTree(t *testing.T) {
	tree := openTestTree(t, 1)
	for i := int64(0); i < 5000; i++ {
		mustPut(t, tree, intKey(i), rid.New(0, i))
	}
	rep, err := tree.VerifyShape()
	if err != nil {
		t.Fatalf("VerifyShape: %v", err)
	}
	if !rep.OK {
		t.Fatalf("VerifyShape reported not-OK: %v", rep.Err)
	}
	if len(rep.DescentLeaves) == 0 {
		t.Fatalf("VerifyShape found no leaves")
	}
	if len(rep.DescentLeaves) != len(rep.SiblingLeaves) {
		t.Fatalf("descent walk found %d leaves, sibling chain found %d",
			len(rep.DescentLeaves), len(rep.SiblingLeaves))
	}
}

func TestVerifyShapeToleratesDuplicateSpanningLeaves(t *testing.T) {
	// Enough copies of a single key genuinely split that key's entry
	// across several leaves (see splitSingleEntryLeaf), which leaves a
	// separator in an ancestor internal page equal to - not strictly
	// less than - a child's low bound on one side and a child's high
	// bound on the other. VerifyShape's boundary check must accept this
	// non-strict equality rather than flagging it as a violation.
	tree := openTestTree(t, 1)
	for i := int64(0); i < 3000; i++ {
		mustPut(t, tree, intKey(7), rid.New(0, i))
	}
	rep, err := tree.VerifyShape()
	if err != nil {
		t.Fatalf("VerifyShape: %v", err)
	}
	if !rep.OK {
		t.Fatalf("VerifyShape reported not-OK on duplicate-spanning leaves: %v", rep.Err)
	}
	if len(rep.DescentLeaves) < 2 {
		t.Fatalf("expected key 7's bag to span multiple leaves, got %d leaf(ves)", len(rep.DescentLeaves))
	}
}

func TestVerifyShapeOnEmptyTree(t *testing.T) {
	tree := openTestTree(t, 1)
	rep, err := tree.VerifyShape()
	if err != nil {
		t.Fatalf("VerifyShape: %v", err)
	}
	if !rep.OK {
		t.Fatalf("VerifyShape reported not-OK on an empty tree: %v", rep.Err)
	}
	if len(rep.DescentLeaves) != 1 {
		t.Fatalf("empty tree should have exactly one (root) leaf, got %d", len(rep.DescentLeaves))
	}
}
