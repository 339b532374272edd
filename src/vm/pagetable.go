// Package vm implements the Sv39 virtual-memory subsystem: page-table
// walk and construction, per-process memory maps with demand-paged
// VMAs, fork copy, brk remap, safe user-copy helpers, and a
// RAM-simulated swap tier.
//
// This is new code, not a line-for-line port of the teacher's x86-64
// vm/as.go: that file's addressing (2-level then later a
// recursively-mapped 4-level table), its reference-counted
// copy-on-write pages, and its bounds/res accounting belong to a
// different MMU and a different VMA source-tracking design. What
// carries over is the shape: a Vm_t-like map type guarding a region
// list and a page table under one lock, Userdmap8_inner-style "resolve
// then demand-page then retry" user access, and Sys_pgfault's
// dispatch-by-region-type structure. The concrete walk/fork/swap
// semantics are grounded on original_source/os/vm.c and
// original_source/os/swap.c, adapted from eager mapping to the lazy
// scheme this design calls for.
package vm

import (
	"unsafe"

	"defs"
	"lock"
	"mem"
	"riscv"
)

// TrampolinePA is the physical address of the boot-built trap
// trampoline code page, set through SetTrampoline before any
// process's memory map is created.
var TrampolinePA mem.Pa_t

// SetTrampoline records the trampoline's physical page for mm_create
// to map into every new address space.
func SetTrampoline(pa mem.Pa_t) {
	TrampolinePA = pa
}

func ptview(pa mem.Pa_t) *[512]uint64 {
	pg := mem.Physmem.Dmap(pa)
	return (*[512]uint64)(unsafe.Pointer(pg))
}

func zeroPaPage(pa mem.Pa_t) {
	pg := mem.Physmem.Dmap(pa)
	for i := range pg {
		pg[i] = 0
	}
}

// Walk descends the three Sv39 levels rooted at root and returns the
// leaf PTE slot for va. When create is true, missing non-leaf tables
// are allocated and zeroed; when false, a missing level returns
// (nil, 0) rather than allocating. Walk only resolves user virtual
// addresses below riscv.MAXVA.
func Walk(root mem.Pa_t, va uint64, create bool) (*uint64, defs.Err_t) {
	if va >= riscv.MAXVA {
		panic("vm: walk of a non-user virtual address")
	}
	pt := root
	for level := uint(2); level > 0; level-- {
		tbl := ptview(pt)
		pte := &tbl[riscv.PX(level, va)]
		if *pte&riscv.PTE_V != 0 {
			pt = mem.Pa_t(riscv.PTE2PA(*pte))
			continue
		}
		if !create {
			return nil, 0
		}
		npa, ok := mem.Physmem.Alloc()
		if !ok {
			return nil, -defs.ENOMEM
		}
		zeroPaPage(npa)
		*pte = riscv.MakePTE(uint64(npa), 0)
		pt = npa
	}
	tbl := ptview(pt)
	return &tbl[riscv.PX(0, va)], 0
}

// WalkAddr resolves a mapped, present user PTE to its physical
// address. It does not drive demand paging or swap-in; callers that
// need that do so first (see Vmmap_t.resolve in usercopy.go). Returns
// (0, false) if va has no present user mapping.
func WalkAddr(root mem.Pa_t, va uint64) (mem.Pa_t, bool) {
	pte, _ := Walk(root, va, false)
	if pte == nil || *pte&riscv.PTE_V == 0 {
		return 0, false
	}
	if *pte&riscv.PTE_U == 0 {
		panic("vm: walkaddr resolved a kernel-only pte")
	}
	return mem.Pa_t(riscv.PTE2PA(*pte)), true
}

// mapStructural installs a single fixed leaf mapping outside the VMA
// list: used only for the trampoline and trapframe pages that mm_create
// wires into every address space.
func mapStructural(root mem.Pa_t, va uint64, pa mem.Pa_t, perms uint64) defs.Err_t {
	pte, err := Walk(root, va, true)
	if err != 0 {
		return err
	}
	if pte == nil {
		return -defs.ENOMEM
	}
	*pte = riscv.MakePTE(uint64(pa), perms)
	return 0
}

// Vmmap_t is one process's address space: its Sv39 root page table,
// the list of VMAs carved out of it, and the lock guarding both (spec
// §3 "Memory map").
type Vmmap_t struct {
	lock.Spinlock_t

	Root   mem.Pa_t
	vmas   *Vma_t
	Refcnt int

	// Brk names the VMA whose End tracks the current program break;
	// nil until the loader installs one.
	Brk *Vma_t
}

// MmCreate allocates a root page-table page and wires in the
// structural trampoline and trapframe mappings (spec §4.D "Map
// construction"). trapframePA is this process's private trapframe
// page, already allocated by the caller (proc.ProcInit allocates one
// per process-table slot).
func MmCreate(trapframePA mem.Pa_t) (*Vmmap_t, defs.Err_t) {
	root, ok := mem.Physmem.Alloc()
	if !ok {
		return nil, -defs.ENOMEM
	}
	zeroPaPage(root)

	mm := &Vmmap_t{Root: root, Refcnt: 1}
	mm.Spinlock_t.Name = "vmmap"

	if err := mapStructural(root, riscv.Trampoline, TrampolinePA, riscv.PTE_R|riscv.PTE_X); err != 0 {
		mem.Physmem.Free(root)
		return nil, err
	}
	if err := mapStructural(root, riscv.Trapframe, trapframePA, riscv.PTE_R|riscv.PTE_W); err != 0 {
		mem.Physmem.Free(root)
		return nil, err
	}
	return mm, 0
}

// freePagetable recursively frees every page-table page in the tree
// rooted at pa, identifying non-leaf entries by RWX == 0 (spec §4.D
// "Free"). It does not free the leaf pages VMAs own; callers must call
// MmFreeVmas first.
func freePagetable(pa mem.Pa_t) {
	tbl := ptview(pa)
	for i := range tbl {
		pte := tbl[i]
		if pte&riscv.PTE_V != 0 && pte&riscv.PTE_RWX == 0 {
			freePagetable(mem.Pa_t(riscv.PTE2PA(pte)))
			tbl[i] = 0
		}
	}
	mem.Physmem.Free(pa)
}

// MmFree releases every VMA's present pages, the page-table tree, and
// drops this map's reference. The caller must hold mm's lock; MmFree
// releases it. If the refcount reaches zero the map is fully torn
// down (spec §4.D "Free").
func (mm *Vmmap_t) MmFree() {
	mm.MmFreeVmas()
	mm.Refcnt--
	last := mm.Refcnt == 0
	mm.Unlock()
	if last {
		freePagetable(mm.Root)
	}
}
