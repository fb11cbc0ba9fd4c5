// Package keycodec implements the key-serializer and optional-encryption
// collaborator that the multi-value tree (pkg/mvbtree) consumes at its
// boundary (C3 in the design). It also defines the composite-key sentinel
// items used to pad range-scan boundaries.
package keycodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// KeyItem is one component of a (possibly composite) key. Concrete types
// used by the default codecs are int64, string, and []byte; AlwaysLess
// and AlwaysGreater are sentinels injected by padKey.
type KeyItem interface{}

type alwaysLess struct{}
type alwaysGreater struct{}

// AlwaysLess compares below every other KeyItem.
var AlwaysLess KeyItem = alwaysLess{}

// AlwaysGreater compares above every other KeyItem.
var AlwaysGreater KeyItem = alwaysGreater{}

// Compare orders two KeyItems of the same underlying type, honoring the
// AlwaysLess/AlwaysGreater sentinels. Returns <0, 0, >0.
func Compare(a, b KeyItem) int {
	if _, ok := a.(alwaysLess); ok {
		if _, ok := b.(alwaysLess); ok {
			return 0
		}
		return -1
	}
	if _, ok := b.(alwaysLess); ok {
		return 1
	}
	if _, ok := a.(alwaysGreater); ok {
		if _, ok := b.(alwaysGreater); ok {
			return 0
		}
		return 1
	}
	if _, ok := b.(alwaysGreater); ok {
		return -1
	}
	switch av := a.(type) {
	case int64:
		bv := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		return bytes.Compare([]byte(av), []byte(b.(string)))
	case []byte:
		return bytes.Compare(av, b.([]byte))
	default:
		panic(fmt.Sprintf("keycodec: unsupported key item type %T", a))
	}
}

// CompareKeys lexicographically compares two composite keys item by item.
// Shorter keys are "less" than a longer key that shares their prefix,
// matching standard tuple ordering.
func CompareKeys(a, b []KeyItem) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// BoundaryKind distinguishes which end of a range a caller-supplied key
// bounds, used to pick the padding sentinel.
type BoundaryKind int

const (
	// FromBoundary marks a range's lower (ascending "from"/descending "to") bound.
	FromBoundary BoundaryKind = iota
	// ToBoundary marks a range's upper (ascending "to"/descending "from") bound.
	ToBoundary
)

// PadKey completes a composite key of fewer than arity items by appending
// AlwaysLess or AlwaysGreater sentinels so that range-scan inclusivity
// behaves correctly:
//
//	from, inclusive      -> pad with AlwaysLess  (include everything >= key)
//	from, exclusive      -> pad with AlwaysGreater (exclude everything == key prefix)
//	to,   inclusive      -> pad with AlwaysGreater (include everything <= key)
//	to,   exclusive      -> pad with AlwaysLess  (exclude everything == key prefix)
func PadKey(key []KeyItem, arity int, boundary BoundaryKind, inclusive bool) []KeyItem {
	if len(key) >= arity {
		return key
	}
	var pad KeyItem
	switch {
	case boundary == FromBoundary && inclusive:
		pad = AlwaysLess
	case boundary == FromBoundary && !inclusive:
		pad = AlwaysGreater
	case boundary == ToBoundary && inclusive:
		pad = AlwaysGreater
	default:
		pad = AlwaysLess
	}
	padded := make([]KeyItem, arity)
	copy(padded, key)
	for i := len(key); i < arity; i++ {
		padded[i] = pad
	}
	return padded
}

// Serializer encodes/decodes composite keys to/from bytes and reports a
// size probe used to enforce config.MaxKeySize before a page write is
// attempted. Satisfied by NativeSerializer below, or by a caller's own
// implementation (the tree only depends on this interface).
type Serializer interface {
	// Preprocess applies any collation/type coercion the caller wants
	// before a key is serialized (e.g. case folding for a text column).
	Preprocess(items []KeyItem) []KeyItem
	// SerializeNativeAsWhole encodes a composite key to its wire form.
	SerializeNativeAsWhole(items []KeyItem) []byte
	// DeserializeNativeObject decodes a composite key from its wire form.
	DeserializeNativeObject(data []byte) []KeyItem
	// GetObjectSize returns the serialized length of a single KeyItem.
	GetObjectSize(item KeyItem) int
	// GetID identifies this serializer's encoding, persisted alongside
	// a tree's metadata so a reload can verify compatibility.
	GetID() byte
}

// NativeSerializer is the default Serializer: int64 as 8-byte big-endian,
// string/[]byte as length-prefixed raw bytes, with no collation.
type NativeSerializer struct{}

const (
	tagInt64  byte = 1
	tagString byte = 2
	tagBytes  byte = 3
)

func (NativeSerializer) Preprocess(items []KeyItem) []KeyItem { return items }

func (NativeSerializer) GetID() byte { return 1 }

func (s NativeSerializer) GetObjectSize(item KeyItem) int {
	switch v := item.(type) {
	case int64:
		return 9
	case string:
		return 5 + len(v)
	case []byte:
		return 5 + len(v)
	case alwaysLess, alwaysGreater:
		return 1
	default:
		panic(fmt.Sprintf("keycodec: unsupported key item type %T", item))
	}
}

func (s NativeSerializer) SerializeNativeAsWhole(items []KeyItem) []byte {
	var buf bytes.Buffer
	lenHdr := make([]byte, 2)
	binary.BigEndian.PutUint16(lenHdr, uint16(len(items)))
	buf.Write(lenHdr)
	for _, item := range items {
		switch v := item.(type) {
		case int64:
			buf.WriteByte(tagInt64)
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(v))
			buf.Write(b[:])
		case string:
			buf.WriteByte(tagString)
			writeLenPrefixed(&buf, []byte(v))
		case []byte:
			buf.WriteByte(tagBytes)
			writeLenPrefixed(&buf, v)
		default:
			panic(fmt.Sprintf("keycodec: unsupported key item type %T", item))
		}
	}
	return buf.Bytes()
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(data)))
	buf.Write(l[:])
	buf.Write(data)
}

func (s NativeSerializer) DeserializeNativeObject(data []byte) []KeyItem {
	n := binary.BigEndian.Uint16(data[:2])
	pos := 2
	items := make([]KeyItem, 0, n)
	for i := uint16(0); i < n; i++ {
		tag := data[pos]
		pos++
		switch tag {
		case tagInt64:
			v := int64(binary.BigEndian.Uint64(data[pos : pos+8]))
			pos += 8
			items = append(items, v)
		case tagString:
			l := int(binary.BigEndian.Uint32(data[pos : pos+4]))
			pos += 4
			items = append(items, string(data[pos:pos+l]))
			pos += l
		case tagBytes:
			l := int(binary.BigEndian.Uint32(data[pos : pos+4]))
			pos += 4
			b := make([]byte, l)
			copy(b, data[pos:pos+l])
			items = append(items, b)
			pos += l
		default:
			panic("keycodec: corrupt key encoding")
		}
	}
	return items
}

// Encryption is the optional collaborator that wraps serialized key bytes
// before they are written into a page. When present, every on-page key
// record is preceded by a 4-byte plaintext length.
type Encryption interface {
	Name() string
	Encrypt(plain []byte) []byte
	Decrypt(cipher []byte, offset, length int) []byte
}

// XOREncryption is a minimal stream-cipher-shaped Encryption
// implementation. It exists to exercise the Encryption collaborator
// boundary end to end; it is not meant to be cryptographically strong,
// and a production embedder should supply an AEAD-backed implementation.
type XOREncryption struct {
	Key []byte
}

func (x XOREncryption) Name() string { return "xor" }

func (x XOREncryption) Encrypt(plain []byte) []byte {
	out := make([]byte, len(plain))
	for i, b := range plain {
		out[i] = b ^ x.Key[i%len(x.Key)]
	}
	return out
}

func (x XOREncryption) Decrypt(cipher []byte, offset, length int) []byte {
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		out[i] = cipher[offset+i] ^ x.Key[i%len(x.Key)]
	}
	return out
}
