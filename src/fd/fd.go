// Package fd wraps a descriptor's operations (fdops.Fdops_i) with the
// permission bits a syscall checks before dispatching through it
// (spec §4.H). There is no filesystem (Non-goal), so unlike the
// teacher's fd.Fd_t this package carries no current-working-directory
// or path state — only the console device exists behind a descriptor.
//
// Grounded on biscuit/src/fd/fd.go, trimmed of Cwd_t/bpath/ustr path
// resolution, which exists only to support a filesystem.
package fd

import "defs"
import "fdops"

// File descriptor permission bits (biscuit/src/fd/fd.go).
const (
	FD_READ    = 0x1
	FD_WRITE   = 0x2
	FD_CLOEXEC = 0x4
)

// Fd_t is an open descriptor: a reference to its operations plus the
// permissions it was opened with.
type Fd_t struct {
	Fops  fdops.Fdops_i
	Perms int
}

// Copyfd duplicates an open descriptor by reopening it
// (biscuit/src/fd/fd.go:Copyfd). Nothing in the process lifecycle
// calls it: allocproc installs a fresh console fd through
// NewConsoleFd, and fork does not copy descriptors.
func Copyfd(fd *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *fd
	if err := nfd.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

// Close_panic closes the descriptor and panics on failure, for call
// sites where a close failing would mean a kernel invariant broke
// (biscuit/src/fd/fd.go:Close_panic).
func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("must succeed")
	}
}
