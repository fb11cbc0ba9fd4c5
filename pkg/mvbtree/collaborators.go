package mvbtree

import "mvbtree/pkg/keycodec"

// KeySerializer is the C3 collaborator boundary: encode and
// decode composite keys, and probe a single item's serialized size.
type KeySerializer = keycodec.Serializer

// Encryption is the optional half of C3: wraps serialized key bytes
// before they reach a page.
type Encryption = keycodec.Encryption

// AtomicOperationManager is the C2 collaborator boundary: begin/commit/
// rollback of a nested atomic operation, holding the per-tree read or
// write lock until it ends, plus WAL component-record emission.
// Satisfied by pkg/txn.Manager. A Tree used as an internal overflow
// container runs with a nil AtomicOperationManager: its mutations happen
// inside the owning tree's already-open operation, so it starts none of
// its own, keeping the two structures atomic with each other.
type AtomicOperationManager interface {
	// Begin starts a nested atomic operation against the named resource
	// and returns an operation id used to end it. write selects the
	// exclusive or shared side of the per-resource lock.
	Begin(resource string, write bool) (opID string, err error)
	// End commits (rollback=false) or rolls back (rollback=true) the
	// operation identified by opID and releases its lock.
	End(opID string, rollback bool) error
	// AddComponentOperation appends an opaque WAL record to the
	// operation's log.
	AddComponentOperation(opID string, record interface{}) error
	// AcquirePagePin reserves this operation's share of the page-pin
	// budget, blocking if the budget is exhausted. Tree.Put calls it
	// once per operation, not once per page, so "pin" here means
	// "an operation's worth of page traffic" rather than a literal
	// per-page token.
	AcquirePagePin() error
	// ReleasePagePin returns the reservation acquired by AcquirePagePin.
	ReleasePagePin()
}
