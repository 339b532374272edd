// Package circbuf is the raw fixed-size byte storage the console's
// input ring buffer is built on (spec §4.H: "a circbuf.Circbuf_t sized
// to 128 bytes, holding raw bytes"). The read/write/edit cursors that
// turn this storage into a line-disciplined buffer live in
// console.Cons_t, not here — this package only owns the bytes.
//
// Grounded on biscuit/src/circbuf/circbuf.go's separation of "backing
// storage" from "cursor logic", trimmed of its page-allocator-backed
// laziness and fdops.Userio_i plumbing: this kernel's console buffer
// is fixed-size and allocated once at boot, so there is no lazy
// allocation path to port.
package circbuf

// Circbuf_t is a fixed-size byte array. It is not safe for concurrent
// use; console.Cons_t's own lock serializes access, the same division
// original_source/os/console.c draws between cons's fields and
// cons.lock.
type Circbuf_t struct {
	Buf []byte
}

// Init allocates size bytes of backing storage (spec: "128-byte input
// buffer", original_source/os/console.h's INPUT_BUF_SIZE).
func (c *Circbuf_t) Init(size int) {
	c.Buf = make([]byte, size)
}

// Size returns the buffer's fixed capacity.
func (c *Circbuf_t) Size() int { return len(c.Buf) }

// At returns the byte at logical position i, wrapped modulo the
// buffer's size — the one operation every cursor-based consumer needs.
func (c *Circbuf_t) At(i uint) byte { return c.Buf[i%uint(len(c.Buf))] }

// Set writes b at logical position i, wrapped modulo the buffer's
// size.
func (c *Circbuf_t) Set(i uint, b byte) { c.Buf[i%uint(len(c.Buf))] = b }
