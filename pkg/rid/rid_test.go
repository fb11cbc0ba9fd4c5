package rid

import "testing"

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	r := New(7, 123456789)
	buf := r.Marshal()
	if len(buf) != Size {
		t.Fatalf("Marshal produced %d bytes, want %d", len(buf), Size)
	}
	got := Unmarshal(buf)
	if got != r {
		t.Fatalf("Unmarshal(Marshal(r)) = %v, want %v", got, r)
	}
}

func TestMarshalNegativeClusterPos(t *testing.T) {
	r := New(-1, -42)
	got := Unmarshal(r.Marshal())
	if got != r {
		t.Fatalf("round trip of negative fields = %v, want %v", got, r)
	}
}

func TestPutToIntoLargerBuffer(t *testing.T) {
	r := New(3, 9)
	buf := make([]byte, Size+5)
	r.PutTo(buf)
	got := Unmarshal(buf[:Size])
	if got != r {
		t.Fatalf("PutTo into an oversized buffer round-tripped to %v, want %v", got, r)
	}
}

func TestLessOrdersByClusterThenPos(t *testing.T) {
	a := New(1, 100)
	b := New(1, 200)
	c := New(2, 0)
	if !a.Less(b) {
		t.Fatalf("Less: same cluster, lower pos should sort first")
	}
	if b.Less(a) {
		t.Fatalf("Less: higher pos should not sort before lower pos")
	}
	if !b.Less(c) {
		t.Fatalf("Less: lower cluster id should sort first regardless of pos")
	}
	if a.Less(a) {
		t.Fatalf("Less: a value should not be Less than itself")
	}
}
