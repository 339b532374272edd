package vm

import (
	"defs"
	"mem"
	"riscv"
	"stats"
)

// faultStats counts demand-page fills (spec §4.E), compiled away
// entirely when stats.Stats is false.
var faultStats struct {
	DemandFills stats.Counter_t
}

// A non-present user PTE is in one of three states, disambiguated by
// a 16-bit marker in its top bits (spec §3 "PTE encoding for lazy
// states"); the RWX bits stay live in the low bits of lazy/swapped
// PTEs so MmRemap can update permissions without first resolving the
// page. Grounded on original_source/os/swap.c's swap marker
// (0xbbbb...); the lazy marker is this design's own, built the same
// way, since the original eagerly maps instead of deferring.
const (
	lazyMarker    uint64 = 0xaaaa000000000000
	swappedMarker uint64 = 0xbbbb000000000000
	markerMask    uint64 = 0xffff000000000000
	swapIdxShift         = 16
	swapIdxMask   uint64 = 0xffffffff
)

func makeLazy(perms uint64) uint64 {
	return lazyMarker | (perms & riscv.PTE_RWX)
}

func isLazy(pte uint64) bool {
	return pte&riscv.PTE_V == 0 && pte&markerMask == lazyMarker
}

func makeSwapped(idx uint32, perms uint64) uint64 {
	return swappedMarker | (uint64(idx) << swapIdxShift) | (perms & riscv.PTE_RWX)
}

func isSwapped(pte uint64) bool {
	return pte&riscv.PTE_V == 0 && pte&markerMask == swappedMarker
}

func swapIdxOf(pte uint64) uint32 {
	return uint32((pte >> swapIdxShift) & swapIdxMask)
}

// Cause codes the trap plane passes into PageFault, matching the
// riscv scause encodings for the three fault-capable exceptions.
const (
	CauseLoadFault  = 13
	CauseStoreFault = 15
	CauseFetchFault = 12
)

// PageFault resolves a user page fault at va with the given scause
// cause (spec §4.E "Page fault handler"). It returns 0 on success (the
// faulting instruction may be retried) or a negative error; a caller
// that receives EFAULT should treat the process as killed.
func (mm *Vmmap_t) PageFault(va uint64, cause uint64) defs.Err_t {
	va = pgrounddown(va)
	vma := mm.FindVma(va)
	if vma == nil {
		return -defs.EFAULT
	}

	pte, err := Walk(mm.Root, va, false)
	if err != 0 {
		return err
	}
	if pte == nil {
		return -defs.EFAULT
	}

	switch {
	case isLazy(*pte):
		return mm.doDemandPaging(vma, va, pte)
	case isSwapped(*pte):
		return mm.swapIn(va, pte)
	case *pte&riscv.PTE_V != 0:
		wantsWrite := cause == CauseStoreFault
		if wantsWrite && *pte&riscv.PTE_D == 0 {
			*pte |= riscv.PTE_D | riscv.PTE_A
			riscv.SfenceVMA()
			return 0
		}
		if !wantsWrite && *pte&riscv.PTE_A == 0 {
			*pte |= riscv.PTE_A
			riscv.SfenceVMA()
			return 0
		}
		return 0
	default:
		return -defs.EFAULT
	}
}

func pgrounddown(va uint64) uint64 {
	return va &^ (riscv.PGSIZE - 1)
}

// doDemandPaging materialises a lazy page: allocates one physical
// page, zero-fills it, copies in the VMA's file-backed bytes (if any)
// that overlap this page, and installs a present PTE (spec §4.E
// "do_demand_paging").
func (mm *Vmmap_t) doDemandPaging(vma *Vma_t, va uint64, pte *uint64) defs.Err_t {
	pa, err := mm.allocPage()
	if err != 0 {
		return err
	}
	zeroPaPage(pa)

	if vma.BackedByFile && va < vma.Start+vma.SourceSize {
		pageOff := va - vma.Start
		n := vma.SourceSize - pageOff
		if n > riscv.PGSIZE {
			n = riscv.PGSIZE
		}
		dst := mem.Physmem.Dmap(pa)
		copy(dst[:n], vma.Source[vma.SourceOffset+pageOff:])
	}

	*pte = riscv.MakePTE(uint64(pa), (vma.Perms&riscv.PTE_RWX)|riscv.PTE_U)
	riscv.SfenceVMA()
	faultStats.DemandFills.Inc()
	return 0
}
