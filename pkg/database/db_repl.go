package database

import (
	"fmt"
	"strconv"
	"strings"

	"mvbtree/pkg/diag"
	"mvbtree/pkg/keycodec"
	"mvbtree/pkg/repl"
	"mvbtree/pkg/rid"
)

// DatabaseRepl wires every table operation this package supports into a
// REPL, built around multi-value RID bags: a "put" can run more than
// once against the same key, and "get" returns every RID that key
// currently owns.
//
// Every command here treats a key as a space-separated run of int64
// components - one component per table arity - so composite keys are
// just "put 7 42 rid... into t" for a 2-arity table.
func DatabaseRepl(db *Database) *repl.REPL {
	r := repl.NewRepl()

	r.AddCommand("create", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleCreateTable(db, payload)
	}, "Create a table. usage: create table <table> arity <n>")

	r.AddCommand("put", func(payload string, _ *repl.REPLConfig) (string, error) {
		return "", handlePut(db, payload)
	}, "Insert a value under a key. usage: put <key...> rid <clusterId> <clusterPos> into <table>")

	r.AddCommand("get", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleGet(db, payload)
	}, "Get every value under a key. usage: get <key...> from <table>")

	r.AddCommand("remove", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleRemove(db, payload)
	}, "Remove one value from a key. usage: remove <key...> rid <clusterId> <clusterPos> from <table>")

	r.AddCommand("iterate", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleIterate(db, payload)
	}, "Scan a whole table in ascending key order. usage: iterate <table>")

	r.AddCommand("size", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleSize(db, payload)
	}, "Report a table's size. usage: size <table>")

	r.AddCommand("verify", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleVerify(db, payload)
	}, "Check a table's structural invariants. usage: verify <table>")

	r.AddCommand("drop", func(payload string, _ *repl.REPLConfig) (string, error) {
		return "", handleDrop(db, payload)
	}, "Drop an empty table. usage: drop table <table>")

	return r
}

func parseIntKey(fields []string) ([]keycodec.KeyItem, error) {
	items := make([]keycodec.KeyItem, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad key component %q: %v", f, err)
		}
		items[i] = v
	}
	return items, nil
}

func handleCreateTable(db *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	// create table <name> arity <n>
	if len(fields) != 5 || fields[1] != "table" || fields[3] != "arity" {
		return "", fmt.Errorf("usage: create table <table> arity <n>")
	}
	arity, err := strconv.Atoi(fields[4])
	if err != nil || arity < 1 {
		return "", fmt.Errorf("create error: bad arity %q", fields[4])
	}
	if _, err := db.CreateTable(fields[2], arity); err != nil {
		return "", err
	}
	return fmt.Sprintf("table %s created with arity %d.\n", fields[2], arity), nil
}

// splitKeyRIDInto finds the "rid" token in fields and parses everything
// before it (after the command word) as an int64 key, the following two
// tokens as a RID, and the token after that must be sep (into/from)
// followed by the table name, whose index it returns as tableIdx.
func splitKeyRIDInto(fields []string, sep string) (key []keycodec.KeyItem, r rid.RID, tableIdx int, err error) {
	idx := -1
	for i, f := range fields {
		if f == "rid" {
			idx = i
			break
		}
	}
	if idx < 1 || idx+4 >= len(fields) || fields[idx+3] != sep {
		err = fmt.Errorf("usage: <key...> rid <clusterId> <clusterPos> %s <table>", sep)
		return
	}
	key, err = parseIntKey(fields[1:idx])
	if err != nil {
		return
	}
	clusterID, err := strconv.ParseInt(fields[idx+1], 10, 16)
	if err != nil {
		err = fmt.Errorf("bad clusterId %q: %v", fields[idx+1], err)
		return
	}
	clusterPos, err := strconv.ParseInt(fields[idx+2], 10, 64)
	if err != nil {
		err = fmt.Errorf("bad clusterPos %q: %v", fields[idx+2], err)
		return
	}
	r = rid.New(int16(clusterID), clusterPos)
	tableIdx = idx + 4
	return
}

func handlePut(db *Database, payload string) error {
	fields := strings.Fields(payload)
	key, r, tableIdx, err := splitKeyRIDInto(fields, "into")
	if err != nil {
		return fmt.Errorf("put error: %v", err)
	}
	tableName := fields[tableIdx]
	t, err := db.GetTable(tableName, len(key))
	if err != nil {
		return fmt.Errorf("put error: %v", err)
	}
	if err := t.Put(key, r); err != nil {
		return fmt.Errorf("put error: %v", err)
	}
	return nil
}

func handleGet(db *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	idx := indexOf(fields, "from")
	if idx < 2 || idx+1 >= len(fields) {
		return "", fmt.Errorf("usage: get <key...> from <table>")
	}
	key, err := parseIntKey(fields[1:idx])
	if err != nil {
		return "", fmt.Errorf("get error: %v", err)
	}
	tableName := fields[idx+1]
	t, err := db.GetTable(tableName, len(key))
	if err != nil {
		return "", fmt.Errorf("get error: %v", err)
	}
	rids, err := t.Get(key)
	if err != nil {
		return "", fmt.Errorf("get error: %v", err)
	}
	var sb strings.Builder
	for _, rr := range rids {
		fmt.Fprintf(&sb, "(%d, %d)\n", rr.ClusterID, rr.ClusterPos)
	}
	return sb.String(), nil
}

func handleRemove(db *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	key, r, tableIdx, err := splitKeyRIDInto(fields, "from")
	if err != nil {
		return "", fmt.Errorf("remove error: %v", err)
	}
	tableName := fields[tableIdx]
	t, err := db.GetTable(tableName, len(key))
	if err != nil {
		return "", fmt.Errorf("remove error: %v", err)
	}
	removed, err := t.Remove(key, r)
	if err != nil {
		return "", fmt.Errorf("remove error: %v", err)
	}
	return fmt.Sprintf("removed: %v\n", removed), nil
}

func handleIterate(db *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return "", fmt.Errorf("usage: iterate <table>")
	}
	t, err := db.GetTable(fields[1], db.arityOf(fields[1]))
	if err != nil {
		return "", fmt.Errorf("iterate error: %v", err)
	}
	c := t.IterateBetween(nil, nil, true, true, true, 256)
	defer c.Close()
	var sb strings.Builder
	for c.Next() {
		p, err := c.Pair()
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "%v -> (%d, %d)\n", p.Key, p.RID.ClusterID, p.RID.ClusterPos)
	}
	return sb.String(), nil
}

func handleSize(db *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return "", fmt.Errorf("usage: size <table>")
	}
	t, err := db.GetTable(fields[1], db.arityOf(fields[1]))
	if err != nil {
		return "", fmt.Errorf("size error: %v", err)
	}
	return fmt.Sprintf("%d\n", t.Size()), nil
}

func handleVerify(db *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return "", fmt.Errorf("usage: verify <table>")
	}
	t, err := db.GetTable(fields[1], db.arityOf(fields[1]))
	if err != nil {
		return "", fmt.Errorf("verify error: %v", err)
	}
	rep, err := diag.Verify(t)
	if err != nil {
		return "", fmt.Errorf("verify error: %v", err)
	}
	if rep.OK() {
		return "ok\n", nil
	}
	return fmt.Sprintf("FAILED: shapeOK=%v leafSetOK=%v sizeOK=%v (reported=%d scanned=%d) err=%v\n",
		rep.Shape.OK, rep.LeafSetOK, rep.SizeOK, rep.ReportedSize, rep.ScannedSize, rep.Err), nil
}

func handleDrop(db *Database, payload string) error {
	fields := strings.Fields(payload)
	if len(fields) != 3 || fields[1] != "table" {
		return fmt.Errorf("usage: drop table <table>")
	}
	return db.DropTable(fields[2])
}

func indexOf(fields []string, s string) int {
	for i, f := range fields {
		if f == s {
			return i
		}
	}
	return -1
}

// arityOf defaults to the arity the table was created with, if it is
// already open; a table that was never opened this process and whose
// caller doesn't know its arity can't be found via the REPL.
func (db *Database) arityOf(name string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	if a, ok := db.arity[name]; ok {
		return a
	}
	return 1
}
