package keycodec

import (
	"bytes"
	"testing"
)

func TestCompareInt64(t *testing.T) {
	if Compare(int64(1), int64(2)) >= 0 {
		t.Fatalf("Compare(1, 2) >= 0")
	}
	if Compare(int64(2), int64(1)) <= 0 {
		t.Fatalf("Compare(2, 1) <= 0")
	}
	if Compare(int64(1), int64(1)) != 0 {
		t.Fatalf("Compare(1, 1) != 0")
	}
}

func TestCompareString(t *testing.T) {
	if Compare("a", "b") >= 0 {
		t.Fatalf("Compare(a, b) >= 0")
	}
	if Compare("b", "a") <= 0 {
		t.Fatalf("Compare(b, a) <= 0")
	}
}

func TestCompareSentinels(t *testing.T) {
	if Compare(AlwaysLess, int64(-1000000)) >= 0 {
		t.Fatalf("AlwaysLess did not sort below an ordinary value")
	}
	if Compare(AlwaysGreater, int64(1000000)) <= 0 {
		t.Fatalf("AlwaysGreater did not sort above an ordinary value")
	}
	if Compare(AlwaysLess, AlwaysLess) != 0 {
		t.Fatalf("AlwaysLess did not compare equal to itself")
	}
	if Compare(AlwaysGreater, AlwaysLess) <= 0 {
		t.Fatalf("AlwaysGreater did not sort above AlwaysLess")
	}
}

func TestCompareKeysPrefixOrdering(t *testing.T) {
	a := []KeyItem{int64(1)}
	b := []KeyItem{int64(1), int64(2)}
	if CompareKeys(a, b) >= 0 {
		t.Fatalf("a shorter key sharing a prefix did not sort below the longer key")
	}
	if CompareKeys(b, a) <= 0 {
		t.Fatalf("CompareKeys is not antisymmetric")
	}
	if CompareKeys(a, a) != 0 {
		t.Fatalf("CompareKeys(a, a) != 0")
	}
}

func TestPadKeyNoopWhenAlreadyFullArity(t *testing.T) {
	key := []KeyItem{int64(1), int64(2)}
	padded := PadKey(key, 2, FromBoundary, true)
	if len(padded) != 2 || padded[0] != int64(1) || padded[1] != int64(2) {
		t.Fatalf("PadKey modified an already-full-arity key: %v", padded)
	}
}

func TestPadKeyBoundarySentinelTable(t *testing.T) {
	// from+inclusive pads AlwaysLess, from+exclusive pads AlwaysGreater,
	// to+inclusive pads AlwaysGreater, to+exclusive pads AlwaysLess.
	cases := []struct {
		boundary  BoundaryKind
		inclusive bool
		want      KeyItem
	}{
		{FromBoundary, true, AlwaysLess},
		{FromBoundary, false, AlwaysGreater},
		{ToBoundary, true, AlwaysGreater},
		{ToBoundary, false, AlwaysLess},
	}
	for _, c := range cases {
		padded := PadKey([]KeyItem{int64(5)}, 2, c.boundary, c.inclusive)
		if len(padded) != 2 {
			t.Fatalf("PadKey returned %d items, want 2", len(padded))
		}
		if padded[1] != c.want {
			t.Fatalf("PadKey(boundary=%v, inclusive=%v)[1] = %v, want %v",
				c.boundary, c.inclusive, padded[1], c.want)
		}
	}
}

func TestNativeSerializerRoundTrip(t *testing.T) {
	s := NativeSerializer{}
	items := []KeyItem{int64(42), "hello", []byte{1, 2, 3}}
	encoded := s.SerializeNativeAsWhole(items)
	decoded := s.DeserializeNativeObject(encoded)
	if len(decoded) != len(items) {
		t.Fatalf("round trip returned %d items, want %d", len(decoded), len(items))
	}
	if decoded[0].(int64) != int64(42) {
		t.Fatalf("decoded[0] = %v, want 42", decoded[0])
	}
	if decoded[1].(string) != "hello" {
		t.Fatalf("decoded[1] = %v, want hello", decoded[1])
	}
	if !bytes.Equal(decoded[2].([]byte), []byte{1, 2, 3}) {
		t.Fatalf("decoded[2] = %v, want [1 2 3]", decoded[2])
	}
}

func TestNativeSerializerEmptyKey(t *testing.T) {
	s := NativeSerializer{}
	encoded := s.SerializeNativeAsWhole(nil)
	decoded := s.DeserializeNativeObject(encoded)
	if len(decoded) != 0 {
		t.Fatalf("round trip of an empty key returned %d items", len(decoded))
	}
}

func TestNativeSerializerGetObjectSize(t *testing.T) {
	s := NativeSerializer{}
	if s.GetObjectSize(int64(1)) != 9 {
		t.Fatalf("GetObjectSize(int64) = %d, want 9", s.GetObjectSize(int64(1)))
	}
	if s.GetObjectSize("ab") != 7 {
		t.Fatalf("GetObjectSize(string) = %d, want 7", s.GetObjectSize("ab"))
	}
}

func TestXOREncryptionRoundTrip(t *testing.T) {
	enc := XOREncryption{Key: []byte("secret-key")}
	plain := []byte("a composite key's serialized bytes")
	cipher := enc.Encrypt(plain)
	if bytes.Equal(cipher, plain) {
		t.Fatalf("Encrypt returned the plaintext unchanged")
	}
	decrypted := enc.Decrypt(cipher, 0, len(cipher))
	if !bytes.Equal(decrypted, plain) {
		t.Fatalf("Decrypt(Encrypt(x)) = %v, want %v", decrypted, plain)
	}
}

func TestXOREncryptionPartialDecrypt(t *testing.T) {
	enc := XOREncryption{Key: []byte("k")}
	plain := []byte("0123456789")
	cipher := enc.Encrypt(plain)
	mid := enc.Decrypt(cipher, 3, 4)
	if !bytes.Equal(mid, plain[3:7]) {
		t.Fatalf("Decrypt(cipher, 3, 4) = %v, want %v", mid, plain[3:7])
	}
}
