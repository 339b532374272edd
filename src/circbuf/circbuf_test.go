package circbuf

import "testing"

func TestInitSizesBuffer(t *testing.T) {
	var c Circbuf_t
	c.Init(128)
	if c.Size() != 128 {
		t.Fatalf("Size() = %d, want 128", c.Size())
	}
}

func TestAtSetWrapAroundSize(t *testing.T) {
	var c Circbuf_t
	c.Init(4)
	c.Set(0, 'a')
	c.Set(5, 'b') // wraps to index 1
	if c.At(0) != 'a' {
		t.Fatalf("At(0) = %q, want 'a'", c.At(0))
	}
	if c.At(5) != 'b' {
		t.Fatalf("At(5) = %q, want 'b' (wraps to index 1)", c.At(5))
	}
	if c.At(1) != c.At(5) {
		t.Fatal("At should wrap modulo the buffer size")
	}
}
