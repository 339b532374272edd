// Package fdops declares the descriptor operation contract a kernel
// object (today: the console) satisfies to be reachable through a
// generic "read/write this fd" syscall path (spec §4.H: syscalls
// #22/#23 dispatch through one `fd.Fd_t` whose `Fdops_i` implementation
// forwards to the underlying device).
//
// No source for this package survived distillation from the teacher's
// own pack (its fdops directory holds only a bare go.mod); the
// interface shapes below are reconstructed from how
// biscuit/src/fd/fd.go (Fops.Reopen/Fops.Close) and
// biscuit/src/circbuf/circbuf.go (Copyin/Copyout over a
// fdops.Userio_i) use a value satisfying them.
package fdops

import "defs"

// Userio_i abstracts a byte-transfer endpoint on the other side of a
// read or write, so an Fdops_i implementation never has to know
// whether it is copying to/from a user virtual address or a plain
// kernel buffer (biscuit/src/vm/userbuf.go's Userbuf_t/Fakeubuf_t fill
// this role for the teacher; vm.Userbuf_t does the same job here).
type Userio_i interface {
	Uioread(dst []byte) (int, defs.Err_t)
	Uiowrite(src []byte) (int, defs.Err_t)
	Remain() int
	Totalsz() int
}

// Fdops_i is the operation set an open file descriptor forwards
// through. This kernel has no on-disk filesystem (spec Non-goal), so
// the method set is trimmed to what a device-backed descriptor needs:
// read, write, close and the dup-time reopen hook fd.Copyfd calls.
type Fdops_i interface {
	Read(dst Userio_i) (int, defs.Err_t)
	Write(src Userio_i) (int, defs.Err_t)
	Close() defs.Err_t
	Reopen() defs.Err_t
}
