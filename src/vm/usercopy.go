package vm

import (
	"defs"
	"mem"
	"riscv"
	"ustr"
)

// resolve returns the physical page backing va, driving demand paging
// or swap-in if necessary (spec §4.D "User-space access": "copy_to_user,
// copy_from_user... translate user VAs via walkaddr, which resolves
// lazy and swapped PTEs"). The caller must hold mm's lock.
func (mm *Vmmap_t) resolve(va uint64) (*uint64, defs.Err_t) {
	page := pgrounddown(va)
	pte, err := Walk(mm.Root, page, false)
	if err != 0 {
		return nil, err
	}
	if pte == nil {
		return nil, -defs.EINVAL
	}
	if *pte&riscv.PTE_V != 0 {
		return pte, 0
	}
	if isLazy(*pte) {
		vma := mm.FindVma(page)
		if vma == nil {
			return nil, -defs.EINVAL
		}
		if err := mm.doDemandPaging(vma, page, pte); err != 0 {
			return nil, err
		}
		return pte, 0
	}
	if isSwapped(*pte) {
		if err := mm.swapIn(page, pte); err != 0 {
			return nil, err
		}
		return pte, 0
	}
	return nil, -defs.EINVAL
}

// byteSlice returns the bytes of the page va resolves into, from
// the page offset of va to the end of that page.
func (mm *Vmmap_t) byteSlice(va uint64) ([]byte, defs.Err_t) {
	pte, err := mm.resolve(va)
	if err != 0 {
		return nil, err
	}
	if *pte&riscv.PTE_U == 0 {
		return nil, -defs.EINVAL
	}
	pa := mem.Pa_t(riscv.PTE2PA(*pte))
	pg := mem.Physmem.Dmap(pa)
	off := va & (riscv.PGSIZE - 1)
	return pg[off:], 0
}

// CopyToUser copies src into the user address space at uva, crossing
// page boundaries transparently. The caller must hold mm's lock (spec
// §4.D "User-space access").
func (mm *Vmmap_t) CopyToUser(uva uint64, src []byte) defs.Err_t {
	for len(src) > 0 {
		dst, err := mm.byteSlice(uva)
		if err != 0 {
			return -defs.EINVAL
		}
		n := copy(dst, src)
		src = src[n:]
		uva += uint64(n)
	}
	return 0
}

// CopyFromUser copies len(dst) bytes from the user address uva into
// dst, crossing page boundaries transparently.
func (mm *Vmmap_t) CopyFromUser(dst []byte, uva uint64) defs.Err_t {
	for len(dst) > 0 {
		src, err := mm.byteSlice(uva)
		if err != 0 {
			return -defs.EINVAL
		}
		n := copy(dst, src)
		dst = dst[n:]
		uva += uint64(n)
	}
	return 0
}

// CopyStrFromUser copies a NUL-terminated string from user space, up
// to lenmax bytes, returning ENAMETOOLONG if no terminator is found in
// range (spec §4.D).
func (mm *Vmmap_t) CopyStrFromUser(uva uint64, lenmax int) (ustr.Ustr, defs.Err_t) {
	if lenmax < 0 {
		return nil, 0
	}
	s := ustr.MkUstr()
	for {
		chunk, err := mm.byteSlice(uva)
		if err != 0 {
			return nil, err
		}
		if rem := lenmax - len(s); len(chunk) > rem {
			chunk = chunk[:rem]
		}
		for j, c := range chunk {
			if c == 0 {
				s = append(s, chunk[:j]...)
				return s, 0
			}
		}
		s = append(s, chunk...)
		uva += uint64(len(chunk))
		if len(s) >= lenmax {
			return nil, -defs.ENAMETOOLONG
		}
	}
}
