package vm

import (
	"defs"
	"mem"
	"riscv"
	"util"
)

// Vma_t is a half-open, page-aligned user address range with uniform
// permissions and a demand-paging descriptor (spec §3 "Virtual memory
// area"). SourceSize <= End-Start; bytes beyond it within the range
// are BSS and fault in zeroed.
type Vma_t struct {
	Start, End uint64
	Perms      uint64 // riscv.PTE_R|PTE_W|PTE_X, U is implicit
	Next       *Vma_t

	BackedByFile bool
	Source       []byte // the in-memory ELF image; nil for pure-anon VMAs
	SourceOffset uint64
	SourceSize   uint64
}

func pgalign(x uint64) bool { return x%riscv.PGSIZE == 0 }

// overlaps reports whether [start,end) intersects any VMA in mm's list
// other than exclude.
func (mm *Vmmap_t) overlaps(start, end uint64, exclude *Vma_t) bool {
	if start == end {
		return false
	}
	for v := mm.vmas; v != nil; v = v.Next {
		if v == exclude {
			continue
		}
		if start < v.End && end > v.Start {
			return true
		}
	}
	return false
}

// FindVma returns the VMA containing va, or nil.
func (mm *Vmmap_t) FindVma(va uint64) *Vma_t {
	for v := mm.vmas; v != nil; v = v.Next {
		if va >= v.Start && va < v.End {
			return v
		}
	}
	return nil
}

// clearRange installs the zero PTE (Absent) across [start,end); used
// to roll back a partially-installed VMA.
func (mm *Vmmap_t) clearRange(start, end uint64) {
	for va := start; va < end; va += riscv.PGSIZE {
		pte, _ := Walk(mm.Root, va, false)
		if pte != nil {
			*pte = 0
		}
	}
}

// MmMappages installs a new VMA over [start,end) as all-Lazy PTEs
// (spec §4.D "VMA mapping"). It requires page alignment, no overlap
// with an existing VMA, and at least one of R/W/X set. On success the
// VMA is prepended to mm's list and the caller's TLB is flushed.
func (mm *Vmmap_t) MmMappages(start, end uint64, perms uint64, backedByFile bool,
	source []byte, srcOff, srcSize uint64) (*Vma_t, defs.Err_t) {
	if !pgalign(start) || !pgalign(end) {
		panic("vm: mappages with unaligned range")
	}
	if perms&riscv.PTE_RWX == 0 {
		panic("vm: mappages with no RWX bit set")
	}
	if mm.overlaps(start, end, nil) {
		return nil, -defs.EINVAL
	}

	for va := start; va < end; va += riscv.PGSIZE {
		pte, err := Walk(mm.Root, va, true)
		if err != 0 {
			mm.clearRange(start, va)
			return nil, err
		}
		if pte == nil {
			mm.clearRange(start, va)
			return nil, -defs.ENOMEM
		}
		*pte = makeLazy(perms)
	}
	riscv.SfenceVMA()

	vma := &Vma_t{
		Start: start, End: end, Perms: perms,
		BackedByFile: backedByFile, Source: source,
		SourceOffset: srcOff, SourceSize: srcSize,
	}
	vma.Next = mm.vmas
	mm.vmas = vma
	return vma, 0
}

// freeVmaPages unmaps vma's present pages, returning each to the page
// allocator, and zeroes every PTE in its range.
func (mm *Vmmap_t) freeVmaPages(vma *Vma_t) {
	for va := vma.Start; va < vma.End; va += riscv.PGSIZE {
		pte, _ := Walk(mm.Root, va, false)
		if pte == nil {
			continue
		}
		if *pte&riscv.PTE_V != 0 {
			mem.Physmem.Free(mem.Pa_t(riscv.PTE2PA(*pte)))
		} else if isSwapped(*pte) {
			freeSwapSlot(swapIdxOf(*pte))
		}
		*pte = 0
	}
}

// MmFreeVmas walks the VMA list, frees each VMA's present pages back
// to the page allocator (and any swap slot it pins), and discards the
// list (spec §4.D "Free").
func (mm *Vmmap_t) MmFreeVmas() {
	for v := mm.vmas; v != nil; v = v.Next {
		mm.freeVmaPages(v)
	}
	mm.vmas = nil
	mm.Brk = nil
}

// MmRemap grows or shrinks vma to [start,end) with updated perms,
// eagerly allocating any newly-covered page and freeing any page that
// falls outside the new range (spec §4.D "Remap", used by sbrk).
// Retained pages keep whatever state they were already in (present,
// lazy, or swapped) with their permission bits updated; only pages in
// the grown region that don't exist are freshly materialised present.
func (mm *Vmmap_t) MmRemap(vma *Vma_t, start, end uint64, perms uint64) defs.Err_t {
	if !pgalign(start) || !pgalign(end) {
		panic("vm: remap with unaligned range")
	}
	if perms&riscv.PTE_RWX == 0 {
		panic("vm: remap with no RWX bit set")
	}
	if mm.overlaps(start, end, vma) {
		return -defs.EINVAL
	}

	iterstart := util.Min(start, vma.Start)
	iterend := util.Max(end, vma.End)

	var touched []remapSaved_t

	for va := iterstart; va < iterend; va += riscv.PGSIZE {
		if va < start || va >= end {
			continue // falls outside the new range; handled in the free pass
		}
		pte, err := Walk(mm.Root, va, true)
		if err != 0 || pte == nil {
			mm.remapRollback(touched)
			return -defs.ENOMEM
		}
		touched = append(touched, remapSaved_t{va, *pte})
		if *pte == 0 {
			pa, ok := mem.Physmem.Alloc()
			if !ok {
				mm.remapRollback(touched)
				return -defs.ENOMEM
			}
			zeroPaPage(pa)
			*pte = riscv.MakePTE(uint64(pa), perms|riscv.PTE_U)
		} else if *pte&riscv.PTE_V != 0 {
			*pte = (*pte &^ riscv.PTE_RWX) | (perms & riscv.PTE_RWX)
		} else {
			// lazy or swapped marker: preserve, just refresh RWX bits.
			*pte = (*pte &^ riscv.PTE_RWX) | (perms & riscv.PTE_RWX)
		}
	}

	for va := iterstart; va < iterend; va += riscv.PGSIZE {
		if va >= start && va < end {
			continue
		}
		pte, _ := Walk(mm.Root, va, false)
		if pte == nil {
			continue
		}
		if *pte&riscv.PTE_V != 0 {
			mem.Physmem.Free(mem.Pa_t(riscv.PTE2PA(*pte)))
		} else if isSwapped(*pte) {
			freeSwapSlot(swapIdxOf(*pte))
		}
		*pte = 0
	}
	riscv.SfenceVMA()

	vma.Start, vma.End, vma.Perms = start, end, perms
	return 0
}

// remapSaved_t records a PTE's value before MmRemap touched it, so a
// failed allocation partway through can restore the prior state.
type remapSaved_t struct {
	va  uint64
	pte uint64
}

func (mm *Vmmap_t) remapRollback(touched []remapSaved_t) {
	for _, t := range touched {
		pte, _ := Walk(mm.Root, t.va, false)
		if pte == nil {
			continue
		}
		if t.pte == 0 {
			// this slot was freshly materialised by this remap attempt;
			// undo it entirely.
			if *pte&riscv.PTE_V != 0 {
				mem.Physmem.Free(mem.Pa_t(riscv.PTE2PA(*pte)))
			}
			*pte = 0
		} else {
			*pte = t.pte
		}
	}
}

// MmCopy duplicates every VMA of src into dst (same ranges, lazy),
// then materialises and copies every page that was present in src
// (spec §4.D "Fork copy"). src's lock must be held by the caller;
// proc.Fork does not lock dst. On any failure the partially-built child VMAs are freed and
// ENOMEM is returned.
func (dst *Vmmap_t) MmCopy(src *Vmmap_t) defs.Err_t {
	for v := src.vmas; v != nil; v = v.Next {
		nv, err := dst.MmMappages(v.Start, v.End, v.Perms, v.BackedByFile, v.Source, v.SourceOffset, v.SourceSize)
		if err != 0 {
			dst.MmFreeVmas()
			return -defs.ENOMEM
		}
		if v == src.Brk {
			dst.Brk = nv
		}
		for va := v.Start; va < v.End; va += riscv.PGSIZE {
			spte, _ := Walk(src.Root, va, false)
			if spte == nil {
				continue
			}
			if isSwapped(*spte) {
				// Materialising the child page means materialising the
				// parent's first: fault the parent's page back in from its
				// swap slot so the copy below sees real contents instead of
				// silently dropping them (spec §4.D "Fork copy":
				// "Materialising triggers demand-paging in both directions").
				if err := src.swapIn(va, spte); err != 0 {
					dst.MmFreeVmas()
					return -defs.ENOMEM
				}
			}
			if *spte&riscv.PTE_V == 0 {
				continue // still lazy/absent in the parent: stays lazy in the child
			}
			dpa, ok := mem.Physmem.Alloc()
			if !ok {
				dst.MmFreeVmas()
				return -defs.ENOMEM
			}
			spa := mem.Pa_t(riscv.PTE2PA(*spte))
			*mem.Physmem.Dmap(dpa) = *mem.Physmem.Dmap(spa)
			dpte, _ := Walk(dst.Root, va, false)
			*dpte = riscv.MakePTE(uint64(dpa), v.Perms|riscv.PTE_U)
		}
	}
	riscv.SfenceVMA()
	return 0
}
