// Package walrec implements the write-ahead log record schema and
// recovery manager consumed by pkg/txn and pkg/mvbtree's tree engine.
// The record types (PutCO, RemoveEntryCO) are opaque to the tree core;
// this package owns their schema and their on-disk textual encoding,
// adapted from a recovery log format generalized from row edits to
// tree component operations.
package walrec

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"mvbtree/pkg/config"
	"mvbtree/pkg/rid"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
	"github.com/icza/backscanner"
	"github.com/otiai10/copy"
)

// PutCO is the component-operation WAL record emitted by a tree's Put,
// KeyBytes is nil for the null key.
type PutCO struct {
	IndexName      string
	SerializerID   byte
	EncryptionName string
	KeyBytes       []byte
	RID            rid.RID
}

func (r PutCO) toString(txID uuid.UUID) string {
	body := fmt.Sprintf("%s, put, %s, %d, %s, %x, %d, %d",
		txID, r.IndexName, r.SerializerID, r.EncryptionName, r.KeyBytes, r.RID.ClusterID, r.RID.ClusterPos)
	return framedLine(body)
}

// RemoveEntryCO is the component-operation WAL record emitted by a
// tree's Remove.
type RemoveEntryCO struct {
	IndexName      string
	SerializerID   byte
	EncryptionName string
	KeyBytes       []byte
	RID            rid.RID
}

func (r RemoveEntryCO) toString(txID uuid.UUID) string {
	body := fmt.Sprintf("%s, remove, %s, %d, %s, %x, %d, %d",
		txID, r.IndexName, r.SerializerID, r.EncryptionName, r.KeyBytes, r.RID.ClusterID, r.RID.ClusterPos)
	return framedLine(body)
}

// ComponentRecord is satisfied by PutCO and RemoveEntryCO.
type ComponentRecord interface {
	toString(txID uuid.UUID) string
}

// framedLine wraps a component-operation body with an xxhash checksum
// so a torn write at the WAL's tail (the last line written before a
// crash, possibly only partially flushed) can be told apart from a
// genuine, fully-durable record during recovery.
func framedLine(body string) string {
	return fmt.Sprintf("< %s, %016x >\n", body, xxhash.Sum64String(body))
}

var componentLineExp = regexp.MustCompile(`^< (.*), ([0-9a-f]{16}) >$`)

// verifyComponentLine reports whether s is a component-operation line
// (as opposed to a start/commit/checkpoint marker) whose trailing
// checksum matches its body. Non-component lines report ok=false,
// isComponent=false and should be handled by the marker regexes instead.
func verifyComponentLine(s string) (isComponent, ok bool) {
	m := componentLineExp.FindStringSubmatch(s)
	if m == nil {
		return false, false
	}
	body, want := m[1], m[2]
	if !strings.Contains(body, ", put, ") && !strings.Contains(body, ", remove, ") {
		return false, false
	}
	got := fmt.Sprintf("%016x", xxhash.Sum64String(body))
	return true, got == want
}

var startExp = regexp.MustCompile(`< ([0-9a-f-]+) start >`)
var commitExp = regexp.MustCompile(`< ([0-9a-f-]+) commit >`)
var checkpointExp = regexp.MustCompile(`checkpoint >`)
var uuidExp = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// Logger appends records to a single append-only WAL file shared by
// every tree in a database, and can replay or checkpoint it.
type Logger struct {
	basePath string // directory containing the WAL file and the tree files it guards
	file     *os.File
	mtx      sync.Mutex
}

// Open opens (creating if necessary) the WAL file at
// <basePath>/config.LogFileName.
func Open(basePath string) (*Logger, error) {
	if err := os.MkdirAll(basePath, 0775); err != nil {
		return nil, err
	}
	path := filepath.Join(basePath, config.LogFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, err
	}
	return &Logger{basePath: basePath, file: f}, nil
}

func (l *Logger) write(s string) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if _, err := l.file.WriteString(s); err != nil {
		return err
	}
	return l.file.Sync()
}

// Start logs the beginning of an atomic operation.
func (l *Logger) Start(txID uuid.UUID) error {
	return l.write(fmt.Sprintf("< %s start >\n", txID))
}

// Commit logs the end of an atomic operation.
func (l *Logger) Commit(txID uuid.UUID) error {
	return l.write(fmt.Sprintf("< %s commit >\n", txID))
}

// Append logs one component operation belonging to txID.
func (l *Logger) Append(txID uuid.UUID, rec ComponentRecord) error {
	return l.write(rec.toString(txID))
}

// Checkpoint writes a checkpoint marker and snapshots basePath into a
// sibling "-recovery" directory. Callers are expected to have already
// flushed every tree's pager before calling this.
func (l *Logger) Checkpoint(activeTxs []uuid.UUID) error {
	l.mtx.Lock()
	ids := make([]string, len(activeTxs))
	for i, id := range activeTxs {
		ids[i] = id.String()
	}
	line := "< checkpoint >\n"
	if len(ids) > 0 {
		line = fmt.Sprintf("< %s checkpoint >\n", strings.Join(ids, ", "))
	}
	_, err := l.file.WriteString(line)
	l.mtx.Unlock()
	if err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	return l.snapshot()
}

func (l *Logger) snapshot() error {
	base := filepath.Clean(l.basePath)
	recoveryDir := base + "-recovery"
	if err := os.RemoveAll(recoveryDir); err != nil {
		return err
	}
	return copy.Copy(base, recoveryDir)
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	return l.file.Close()
}

// Prime prepares basePath for use after a possible crash: if a
// "-recovery" snapshot exists from a prior checkpoint, it replaces
// basePath wholesale (the snapshot is always a consistent, checkpointed
// state); otherwise basePath is used as-is. Works against any tree's
// base directory, not just a fixed database folder.
func Prime(basePath string) error {
	base := filepath.Clean(basePath)
	recoveryDir := base + "-recovery"
	if _, err := os.Stat(recoveryDir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(base); err != nil {
		return err
	}
	return copy.Copy(recoveryDir, base)
}

// ScanSinceCheckpoint reads the WAL file backwards from its tail (via
// backscanner) and returns every line from the most recent checkpoint
// onward, oldest first, along with the set of transaction ids that
// checkpoint named as still active. Used by a recovery pass to
// redo/undo exactly the operations not covered by the last snapshot.
func (l *Logger) ScanSinceCheckpoint() (lines []string, activeAtCheckpoint map[uuid.UUID]bool, err error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	info, err := l.file.Stat()
	if err != nil {
		return nil, nil, err
	}
	scanner := backscanner.New(l.file, int(info.Size()))
	activeAtCheckpoint = make(map[uuid.UUID]bool)
	checkpointHit := false
	for {
		line, _, serr := scanner.LineBytes()
		if serr != nil {
			if serr == io.EOF {
				return lines, activeAtCheckpoint, nil
			}
			return nil, nil, serr
		}
		s := string(line)
		if len(lines) == 0 {
			if isComponent, ok := verifyComponentLine(s); isComponent && !ok {
				// Torn write at the tail: the process crashed mid-append, so
				// this record was never fully durable. Drop it rather than
				// replay a partially-written mutation.
				continue
			}
		}
		lines = append([]string{s}, lines...)
		if !checkpointHit && checkpointExp.MatchString(s) {
			checkpointHit = true
			for _, m := range uuidExp.FindAllString(s, -1) {
				activeAtCheckpoint[uuid.MustParse(m)] = true
			}
			lines = lines[len(lines)-1:]
			continue
		}
		if checkpointHit && bytes.Contains(line, []byte(" start ")) {
			if m := startExp.FindStringSubmatch(s); m != nil {
				delete(activeAtCheckpoint, uuid.MustParse(m[1]))
			}
		}
		if checkpointHit && len(activeAtCheckpoint) == 0 {
			return lines, activeAtCheckpoint, nil
		}
	}
}
