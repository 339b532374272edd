package vm

import "defs"
import "fdops"

// Userbuf_t adapts a user virtual-address range into an fdops.Userio_i
// endpoint, so a descriptor's Fdops_i implementation never has to
// reach into a process's memory map itself (spec §4.H's fd/fdops
// wiring). Grounded on biscuit/src/vm/userbuf.go's Userbuf_t, trimmed
// to a single non-paged transfer per call: CopyToUser/CopyFromUser
// already cross page boundaries internally, so there is no need for
// the teacher's per-page _tx loop here.
type Userbuf_t struct {
	mm  *Vmmap_t
	uva uint64
	len int
	off int
}

// UbInit initializes ub for uva..uva+length inside mm's address
// space.
func (ub *Userbuf_t) UbInit(mm *Vmmap_t, uva uint64, length int) {
	ub.mm = mm
	ub.uva = uva
	ub.len = length
	ub.off = 0
}

func (ub *Userbuf_t) Remain() int  { return ub.len - ub.off }
func (ub *Userbuf_t) Totalsz() int { return ub.len }

// Uioread copies from user memory into dst.
func (ub *Userbuf_t) Uioread(dst []byte) (int, defs.Err_t) {
	n := len(dst)
	if n > ub.Remain() {
		n = ub.Remain()
	}
	ub.mm.Lock()
	err := ub.mm.CopyFromUser(dst[:n], ub.uva+uint64(ub.off))
	ub.mm.Unlock()
	if err != 0 {
		return 0, err
	}
	ub.off += n
	return n, 0
}

// Uiowrite copies src into user memory.
func (ub *Userbuf_t) Uiowrite(src []byte) (int, defs.Err_t) {
	n := len(src)
	if n > ub.Remain() {
		n = ub.Remain()
	}
	ub.mm.Lock()
	err := ub.mm.CopyToUser(ub.uva+uint64(ub.off), src[:n])
	ub.mm.Unlock()
	if err != 0 {
		return 0, err
	}
	ub.off += n
	return n, 0
}

var _ fdops.Userio_i = (*Userbuf_t)(nil)
