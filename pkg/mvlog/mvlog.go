// Package mvlog is the structured-logging collaborator the rest of this
// module reaches for instead of fmt.Printf or the standard log package,
// following the *zap.Logger field the retrieved NexusKV B+-tree keeps on
// its own tree struct.
package mvlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-shaped logger: JSON encoding, ISO8601
// timestamps, info level unless debug is set.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// Nop returns a logger that discards everything, for callers (tests, a
// txn.Manager that was never given a logger) that don't want a real sink.
func Nop() *zap.Logger { return zap.NewNop() }

// TreeName tags a log entry with the tree a log line concerns.
func TreeName(name string) zap.Field { return zap.String("tree", name) }

// Page tags a log entry with the page number it concerns.
func Page(pn int64) zap.Field { return zap.Int64("page", pn) }

// MID tags a log entry with the m-id it concerns.
func MID(mID int64) zap.Field { return zap.Int64("m_id", mID) }

// OpID tags a log entry with the atomic-operation id it concerns.
func OpID(opID string) zap.Field { return zap.String("op_id", opID) }
