// Package database is the REPL-facing catalog of named multi-value
// trees: a map of table name to Tree, all sharing one atomic-operation
// manager, parameterized by key arity instead of by index type.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"mvbtree/pkg/keycodec"
	"mvbtree/pkg/mvbtree"
	"mvbtree/pkg/mvlog"
	"mvbtree/pkg/txn"
	"mvbtree/pkg/walrec"

	"go.uber.org/zap"
)

var nameRE = regexp.MustCompile(`\W`)

// Database owns a directory of named tables, each a *mvbtree.Tree, all
// sharing one atomic-operation manager and WAL.
type Database struct {
	basepath string
	mgr      *txn.Manager
	log      *zap.Logger

	mu     sync.Mutex
	tables map[string]*mvbtree.Tree
	arity  map[string]int
}

// Open opens (creating if necessary) the database directory at folder,
// with its write-ahead log in walPath's directory, under the file name
// config.LogFileName.
func Open(folder, walPath string) (*Database, error) {
	if !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	if err := os.MkdirAll(folder, 0775); err != nil {
		return nil, err
	}
	if err := walrec.Prime(folder); err != nil {
		return nil, err
	}

	wlog, err := walrec.Open(filepath.Dir(walPath))
	if err != nil {
		return nil, err
	}

	zlog, err := mvlog.New(false)
	if err != nil {
		zlog = mvlog.Nop()
	}

	mgr := txn.NewManager(wlog)
	mgr.SetLogger(zlog)

	return &Database{
		basepath: folder,
		mgr:      mgr,
		log:      zlog,
		tables:   make(map[string]*mvbtree.Tree),
		arity:    make(map[string]int),
	}, nil
}

// Close closes every open table, then the database's own WAL.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	var first error
	for name, t := range db.tables {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
		delete(db.tables, name)
	}
	db.log.Sync()
	return first
}

// CreateTable creates a fresh, empty table named name with the given
// key arity, backed by keycodec's default native key serializer.
func (db *Database) CreateTable(name string, keyArity int) (*mvbtree.Tree, error) {
	if nameRE.MatchString(name) {
		return nil, fmt.Errorf("database: table name must be alphanumeric")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.tables[name]; exists {
		return nil, fmt.Errorf("database: table %q already exists", name)
	}
	path := filepath.Join(db.basepath, name)
	if _, err := os.Stat(path + ".idx"); err == nil {
		return nil, fmt.Errorf("database: table %q already exists on disk", name)
	}

	t, err := mvbtree.Create(name, path, keyArity, keycodec.NativeSerializer{}, nil, db.mgr)
	if err != nil {
		return nil, err
	}
	db.tables[name] = t
	db.arity[name] = keyArity
	db.log.Info("table created", mvlog.TreeName(name), zap.Int("key_arity", keyArity))
	return t, nil
}

// GetTable returns the named table, loading it from disk on first
// access if it isn't already open. keyArity must match the arity the
// table was created with; the database has no on-disk record of it, so
// the caller is trusted to pass the right value.
func (db *Database) GetTable(name string, keyArity int) (*mvbtree.Tree, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if t, ok := db.tables[name]; ok {
		return t, nil
	}
	path := filepath.Join(db.basepath, name)
	if _, err := os.Stat(path + ".idx"); err != nil {
		return nil, fmt.Errorf("database: table %q not found", name)
	}
	t, err := mvbtree.Load(name, path, keyArity, keycodec.NativeSerializer{}, nil, db.mgr)
	if err != nil {
		return nil, err
	}
	db.tables[name] = t
	db.arity[name] = keyArity
	return t, nil
}

// DropTable closes and deletes the named table's backing files. The
// table must be empty (mvbtree.Tree.Delete's own safety check).
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.tables[name]
	if !ok {
		return fmt.Errorf("database: table %q not found", name)
	}
	if err := t.Delete(); err != nil {
		return err
	}
	delete(db.tables, name)
	delete(db.arity, name)
	return nil
}

// TableNames lists every currently open table.
func (db *Database) TableNames() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	return names
}

func (db *Database) BasePath() string { return db.basepath }
