// Package txn implements the atomic-operation manager that pkg/mvbtree
// consumes as its C2 collaborator: per-tree read/write locking with
// deadlock detection, WAL emission through pkg/walrec, and a page-pin
// budget shared across concurrently running operations. Locking is
// per whole tree rather than per row, since the tree permits one
// writer at a time via its own latch.
package txn

import (
	"context"
	"errors"
	"sync"

	"mvbtree/pkg/config"
	"mvbtree/pkg/mvlog"
	"mvbtree/pkg/walrec"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// LockType distinguishes a shared (read) from an exclusive (write) hold
// on a Resource.
type LockType int

const (
	RLock LockType = iota
	WLock
)

// Resource is a whole tree, identified by name - the unit a Manager
// locks.
type Resource struct {
	TreeName string
}

// Transaction tracks one in-flight atomic operation's held resources,
// mirroring concurrency.Transaction.
type Transaction struct {
	id     uuid.UUID
	locked map[Resource]LockType
	mtx    sync.RWMutex
}

func (t *Transaction) RLock()   { t.mtx.RLock() }
func (t *Transaction) RUnlock() { t.mtx.RUnlock() }
func (t *Transaction) WLock()   { t.mtx.Lock() }
func (t *Transaction) WUnlock() { t.mtx.Unlock() }

// ResourceLockManager owns one sync.RWMutex per resource, created
// lazily, mirroring concurrency.ResourceLockManager.
type ResourceLockManager struct {
	locks map[Resource]*sync.RWMutex
	mtx   sync.Mutex
}

func newResourceLockManager() *ResourceLockManager {
	return &ResourceLockManager{locks: make(map[Resource]*sync.RWMutex)}
}

func (lm *ResourceLockManager) lockFor(r Resource) *sync.RWMutex {
	lm.mtx.Lock()
	defer lm.mtx.Unlock()
	lock, found := lm.locks[r]
	if !found {
		lock = &sync.RWMutex{}
		lm.locks[r] = lock
	}
	return lock
}

func (lm *ResourceLockManager) Lock(r Resource, lt LockType) {
	lock := lm.lockFor(r)
	if lt == RLock {
		lock.RLock()
	} else {
		lock.Lock()
	}
}

func (lm *ResourceLockManager) Unlock(r Resource, lt LockType) error {
	lm.mtx.Lock()
	lock, found := lm.locks[r]
	lm.mtx.Unlock()
	if !found {
		return errors.New("txn: tried to unlock a resource that was never locked")
	}
	if lt == RLock {
		lock.RUnlock()
	} else {
		lock.Unlock()
	}
	return nil
}

// edge is a directed "waits for" arc: from waits on a resource held by to.
type edge struct{ from, to *Transaction }

// waitsForGraph is a cycle-detecting precedence graph used to reject a
// lock request that would deadlock, mirroring concurrency.WaitsForGraph.
type waitsForGraph struct {
	edges []edge
	mtx   sync.RWMutex
}

func newWaitsForGraph() *waitsForGraph { return &waitsForGraph{} }

func (g *waitsForGraph) addEdge(from, to *Transaction) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.edges = append(g.edges, edge{from, to})
}

func (g *waitsForGraph) removeEdge(from, to *Transaction) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	target := edge{from, to}
	for i, e := range g.edges {
		if e == target {
			g.edges[i] = g.edges[len(g.edges)-1]
			g.edges = g.edges[:len(g.edges)-1]
			return
		}
	}
}

func (g *waitsForGraph) detectCycle() bool {
	g.mtx.RLock()
	defer g.mtx.RUnlock()
	if len(g.edges) == 0 {
		return false
	}
	return dfsHasCycle(g, g.edges[0].from, make(map[*Transaction]bool))
}

func dfsHasCycle(g *waitsForGraph, from *Transaction, seen map[*Transaction]bool) bool {
	for _, e := range g.edges {
		if e.from == from {
			if seen[e.to] {
				return true
			}
			seen[e.to] = true
			if dfsHasCycle(g, e.to, seen) {
				return true
			}
		}
	}
	return false
}

// Manager is the AtomicOperationManager pkg/mvbtree.Tree consumes.
type Manager struct {
	lockMgr      *ResourceLockManager
	graph        *waitsForGraph
	transactions map[uuid.UUID]*Transaction
	mtx          sync.RWMutex

	log    *walrec.Logger
	pinSem *semaphore.Weighted
	zlog   *zap.Logger
}

// NewManager constructs a Manager that writes its WAL through log. log
// may be nil, in which case AddComponentOperation is a no-op - useful
// for an internal overflow-container tree, which never holds its own
// Manager at all.
func NewManager(log *walrec.Logger) *Manager {
	return &Manager{
		lockMgr:      newResourceLockManager(),
		graph:        newWaitsForGraph(),
		transactions: make(map[uuid.UUID]*Transaction),
		log:          log,
		pinSem:       semaphore.NewWeighted(int64(config.MaxPagesInBuffer)),
		zlog:         mvlog.Nop(),
	}
}

// SetLogger points m's diagnostic logging (deadlock rejections, commits,
// rollbacks) at zlog instead of the no-op default.
func (m *Manager) SetLogger(zlog *zap.Logger) { m.zlog = zlog }

// Begin starts a new atomic operation holding resource's read or write
// lock, running deadlock detection before blocking on the resource's own
// mutex (concurrency.TransactionManager.Lock's protocol, generalized to
// one resource per call since a tree operation only ever touches its own
// tree).
func (m *Manager) Begin(resource string, write bool) (string, error) {
	id := uuid.New()
	tx := &Transaction{id: id, locked: make(map[Resource]LockType)}

	m.mtx.Lock()
	m.transactions[id] = tx
	m.mtx.Unlock()

	lt := RLock
	if write {
		lt = WLock
	}
	r := Resource{TreeName: resource}

	conflicts := m.conflictingTransactions(r, lt)
	for _, other := range conflicts {
		m.graph.addEdge(tx, other)
	}
	if m.graph.detectCycle() {
		for _, other := range conflicts {
			m.graph.removeEdge(tx, other)
		}
		m.mtx.Lock()
		delete(m.transactions, id)
		m.mtx.Unlock()
		m.zlog.Warn("deadlock detected, operation rejected",
			zap.String("resource", resource), zap.Bool("write", write))
		return "", errors.New("txn: deadlock detected, operation rejected")
	}

	m.lockMgr.Lock(r, lt)
	for _, other := range conflicts {
		m.graph.removeEdge(tx, other)
	}

	tx.WLock()
	tx.locked[r] = lt
	tx.WUnlock()

	if m.log != nil {
		if err := m.log.Start(id); err != nil {
			return "", err
		}
	}
	return id.String(), nil
}

func (m *Manager) conflictingTransactions(r Resource, lt LockType) []*Transaction {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	var conflicts []*Transaction
	for _, t := range m.transactions {
		t.RLock()
		held, locked := t.locked[r]
		t.RUnlock()
		if locked && (held == WLock || lt == WLock) {
			conflicts = append(conflicts, t)
		}
	}
	return conflicts
}

// End releases opID's held resources and, if rollback is false, writes a
// commit record. Rollback itself (undoing already-applied page writes)
// is the caller's responsibility at the mvbtree layer; Manager only
// guarantees the lock is released either way.
func (m *Manager) End(opID string, rollback bool) error {
	id, err := uuid.Parse(opID)
	if err != nil {
		return err
	}
	m.mtx.Lock()
	tx, found := m.transactions[id]
	delete(m.transactions, id)
	m.mtx.Unlock()
	if !found {
		return errors.New("txn: no such operation")
	}

	tx.RLock()
	held := make(map[Resource]LockType, len(tx.locked))
	for r, lt := range tx.locked {
		held[r] = lt
	}
	tx.RUnlock()
	for r, lt := range held {
		if err := m.lockMgr.Unlock(r, lt); err != nil {
			return err
		}
	}

	if rollback {
		m.zlog.Debug("operation rolled back", zap.String("op_id", opID))
	} else {
		m.zlog.Debug("operation committed", zap.String("op_id", opID))
	}

	if m.log != nil && !rollback {
		return m.log.Commit(id)
	}
	return nil
}

// AddComponentOperation appends a WAL record for opID. record must be a
// walrec.ComponentRecord (walrec.PutCO or walrec.RemoveEntryCO).
func (m *Manager) AddComponentOperation(opID string, record interface{}) error {
	if m.log == nil {
		return nil
	}
	id, err := uuid.Parse(opID)
	if err != nil {
		return err
	}
	rec, ok := record.(walrec.ComponentRecord)
	if !ok {
		return errors.New("txn: record does not satisfy walrec.ComponentRecord")
	}
	return m.log.Append(id, rec)
}

// AcquirePagePin reserves this operation's share of the shared page-pin
// budget (golang.org/x/sync/semaphore): one unit per call out of
// config.MaxPagesInBuffer, so it bounds how many operations hold a share
// at once, not how many pages any one operation pins. The Tree API stays
// context-free; context.Background is used internally since the
// semaphore package requires one.
func (m *Manager) AcquirePagePin() error {
	return m.pinSem.Acquire(context.Background(), 1)
}

// ReleasePagePin returns the reservation taken by AcquirePagePin.
func (m *Manager) ReleasePagePin() {
	m.pinSem.Release(1)
}

// Checkpoint flushes a WAL checkpoint naming every still-active
// operation, for a caller that has already flushed every tree's pager.
func (m *Manager) Checkpoint() error {
	if m.log == nil {
		return nil
	}
	m.mtx.RLock()
	ids := make([]uuid.UUID, 0, len(m.transactions))
	for id := range m.transactions {
		ids = append(ids, id)
	}
	m.mtx.RUnlock()
	return m.log.Checkpoint(ids)
}
