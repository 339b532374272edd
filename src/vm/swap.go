package vm

import (
	"sync"

	"defs"
	"mem"
	"riscv"
	"stats"
)

// swapStats counts swap-out/swap-in events (spec §4.E), compiled away
// entirely when stats.Stats is false.
var swapStats struct {
	SwapOuts stats.Counter_t
	SwapIns  stats.Counter_t
}

// swapPages backs the simulated swap tier: a contiguous run of
// page-sized slots held in ordinary RAM, since there is no disk (spec
// §3 "Swap area"; grounded on original_source/os/swap.c, which carves
// its swap area out of the same DRAM region for the same reason).
var (
	swapMu    sync.Mutex
	swapSlots [][riscv.PGSIZE]byte
	swapUsed  []bool
)

// InitSwap sizes the swap tier to n pages. Called once at boot.
func InitSwap(n int) {
	swapMu.Lock()
	defer swapMu.Unlock()
	swapSlots = make([][riscv.PGSIZE]byte, n)
	swapUsed = make([]bool, n)
}

func allocSwapSlot() (uint32, bool) {
	swapMu.Lock()
	defer swapMu.Unlock()
	for i, used := range swapUsed {
		if !used {
			swapUsed[i] = true
			return uint32(i), true
		}
	}
	return 0, false
}

func freeSwapSlot(idx uint32) {
	swapMu.Lock()
	defer swapMu.Unlock()
	swapUsed[idx] = false
}

// victimSource is registered by the process package at boot: given the
// map currently faulting, it returns every other map eligible for
// victim scanning (already filtered by process state, which is proc's
// concern, not vm's; no map lock is taken or checked).
var victimSource func(exclude *Vmmap_t) []*Vmmap_t

// RegisterVictimSource wires the process-table scan the swap-out path
// needs; it must be called once at boot before any fault can exhaust
// the page allocator.
func RegisterVictimSource(f func(exclude *Vmmap_t) []*Vmmap_t) {
	victimSource = f
}

// allocPage allocates one physical page, stealing it from another
// address space via swap-out if the free list is exhausted (spec
// §4.E "Swap-out victim selection"). self is excluded from scanning.
func (self *Vmmap_t) allocPage() (mem.Pa_t, defs.Err_t) {
	if pa, ok := mem.Physmem.Alloc(); ok {
		return pa, 0
	}
	if victimSource == nil {
		panic("vm: page allocator exhausted and no victim source registered")
	}
	candidates := victimSource(self)
	if pa, ok := swapOutVictim(candidates, true); ok {
		return pa, 0
	}
	if pa, ok := swapOutVictim(candidates, false); ok {
		return pa, 0
	}
	panic("vm: page allocator exhausted and no swap victim found")
}

// swapOutVictim performs one scanning pass over candidates' VMAs,
// looking for a present user page. When checkAD is true it skips pages
// with A or D set (pass 1, "recently used"); when false it takes the
// first present user page it finds (pass 2, the fallback). The chosen
// page's contents move to a free swap slot, the slot is marked used,
// and the victim's PTE is rewritten to the Swapped encoding with its
// RWX bits preserved. Returns the freed physical page.
func swapOutVictim(candidates []*Vmmap_t, checkAD bool) (mem.Pa_t, bool) {
	for _, mm := range candidates {
		for v := mm.vmas; v != nil; v = v.Next {
			for va := v.Start; va < v.End; va += riscv.PGSIZE {
				pte, _ := Walk(mm.Root, va, false)
				if pte == nil || *pte&riscv.PTE_V == 0 || *pte&riscv.PTE_U == 0 {
					continue
				}
				if checkAD && (*pte&riscv.PTE_A != 0 || *pte&riscv.PTE_D != 0) {
					continue
				}
				idx, ok := allocSwapSlot()
				if !ok {
					return 0, false
				}
				pa := mem.Pa_t(riscv.PTE2PA(*pte))
				swapMu.Lock()
				swapSlots[idx] = *mem.Physmem.Dmap(pa)
				swapMu.Unlock()
				rwx := *pte & riscv.PTE_RWX
				*pte = makeSwapped(idx, rwx)
				riscv.SfenceVMA()
				swapStats.SwapOuts.Inc()
				return pa, true
			}
		}
	}
	return 0, false
}

// swapIn materialises a swapped-out page: allocates a fresh physical
// page, copies the slot's contents in, releases the slot, and
// rewrites the PTE to a present encoding with its RWX preserved (spec
// §4.E "swap_in"; grounded on original_source/os/swap.c:swap_in).
func (mm *Vmmap_t) swapIn(va uint64, pte *uint64) defs.Err_t {
	idx := swapIdxOf(*pte)
	rwx := *pte & riscv.PTE_RWX

	pa, ok := mem.Physmem.Alloc()
	if !ok {
		return -defs.ENOMEM
	}
	swapMu.Lock()
	*mem.Physmem.Dmap(pa) = swapSlots[idx]
	swapMu.Unlock()
	freeSwapSlot(idx)

	*pte = riscv.MakePTE(uint64(pa), rwx|riscv.PTE_U)
	riscv.SfenceVMA()
	swapStats.SwapIns.Inc()
	return 0
}
