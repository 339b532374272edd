package uart8250

import "testing"

func TestStrideByteLayout(t *testing.T) {
	if s := stride(lsrOff, false); s != lsrOff {
		t.Fatalf("byte stride of lsrOff = %d, want %d", s, lsrOff)
	}
}

func TestStrideWordLayout(t *testing.T) {
	if s := stride(lsrOff, true); s != lsrOff<<2 {
		t.Fatalf("word stride of lsrOff = %d, want %d", s, lsrOff<<2)
	}
	if s := stride(ierOff, true); s != 4 {
		t.Fatalf("word stride of ierOff = %d, want 4", s)
	}
}
