package vm

import (
	"testing"

	"mem"
	"riscv"
)

func setupPhysmem(t *testing.T, pages int) {
	t.Helper()
	mem.Physmem = &mem.Physmem_t{}
	mem.Physmem.Init(make([]byte, pages*mem.PGSIZE))
	TrampolinePA, _ = mem.Physmem.Alloc()
}

func newMap(t *testing.T) *Vmmap_t {
	t.Helper()
	tf, ok := mem.Physmem.Alloc()
	if !ok {
		t.Fatal("out of pages setting up trapframe")
	}
	mm, err := MmCreate(tf)
	if err != 0 {
		t.Fatalf("MmCreate failed: %v", err)
	}
	return mm
}

func TestMarkerRoundTrip(t *testing.T) {
	pte := makeLazy(riscv.PTE_R | riscv.PTE_W)
	if !isLazy(pte) {
		t.Fatal("lazy marker not recognised")
	}
	if isSwapped(pte) {
		t.Fatal("lazy marker misread as swapped")
	}
	if pte&riscv.PTE_V != 0 {
		t.Fatal("lazy pte must have V=0")
	}

	spte := makeSwapped(7, riscv.PTE_R|riscv.PTE_X)
	if !isSwapped(spte) {
		t.Fatal("swapped marker not recognised")
	}
	if swapIdxOf(spte) != 7 {
		t.Fatalf("swap index = %d, want 7", swapIdxOf(spte))
	}
	if spte&riscv.PTE_RWX != riscv.PTE_R|riscv.PTE_X {
		t.Fatal("swapped marker lost rwx bits")
	}
}

func TestMmCreateStructuralMappings(t *testing.T) {
	setupPhysmem(t, 16)
	mm := newMap(t)

	pte, err := Walk(mm.Root, riscv.Trampoline, false)
	if err != 0 || pte == nil || *pte&riscv.PTE_V == 0 {
		t.Fatal("trampoline mapping missing")
	}
	pte, err = Walk(mm.Root, riscv.Trapframe, false)
	if err != 0 || pte == nil || *pte&riscv.PTE_V == 0 {
		t.Fatal("trapframe mapping missing")
	}
}

func TestMmMappagesRejectsOverlap(t *testing.T) {
	setupPhysmem(t, 32)
	mm := newMap(t)

	base := uint64(0x1000 * 16)
	if _, err := mm.MmMappages(base, base+4*riscv.PGSIZE, riscv.PTE_R|riscv.PTE_W, false, nil, 0, 0); err != 0 {
		t.Fatalf("first mappages failed: %v", err)
	}
	if _, err := mm.MmMappages(base+riscv.PGSIZE, base+5*riscv.PGSIZE, riscv.PTE_R, false, nil, 0, 0); err == 0 {
		t.Fatal("overlapping mappages should have failed")
	}
}

func TestDemandPagingZeroFill(t *testing.T) {
	setupPhysmem(t, 32)
	mm := newMap(t)

	base := uint64(0x1000 * 16)
	if _, err := mm.MmMappages(base, base+riscv.PGSIZE, riscv.PTE_R|riscv.PTE_W, false, nil, 0, 0); err != 0 {
		t.Fatalf("mappages failed: %v", err)
	}

	var dst [8]byte
	if err := mm.CopyFromUser(dst[:], base); err != 0 {
		t.Fatalf("copy from fresh demand page failed: %v", err)
	}
	for _, b := range dst {
		if b != 0 {
			t.Fatal("demand-paged anon page was not zero-filled")
		}
	}
}

func TestDemandPagingFileBacked(t *testing.T) {
	setupPhysmem(t, 32)
	mm := newMap(t)

	image := make([]byte, riscv.PGSIZE)
	for i := range image[:16] {
		image[i] = byte(i + 1)
	}
	base := uint64(0x1000 * 16)
	if _, err := mm.MmMappages(base, base+riscv.PGSIZE, riscv.PTE_R, true, image, 0, 16); err != 0 {
		t.Fatalf("mappages failed: %v", err)
	}

	var dst [16]byte
	if err := mm.CopyFromUser(dst[:], base); err != 0 {
		t.Fatalf("copy failed: %v", err)
	}
	for i, b := range dst {
		if b != byte(i+1) {
			t.Fatalf("byte %d = %d, want %d", i, b, i+1)
		}
	}
}

func TestCopyToUserThenFromUser(t *testing.T) {
	setupPhysmem(t, 32)
	mm := newMap(t)

	base := uint64(0x1000 * 16)
	if _, err := mm.MmMappages(base, base+2*riscv.PGSIZE, riscv.PTE_R|riscv.PTE_W, false, nil, 0, 0); err != 0 {
		t.Fatalf("mappages failed: %v", err)
	}

	src := make([]byte, riscv.PGSIZE+32)
	for i := range src {
		src[i] = byte(i)
	}
	if err := mm.CopyToUser(base, src); err != 0 {
		t.Fatalf("copy to user failed: %v", err)
	}
	dst := make([]byte, len(src))
	if err := mm.CopyFromUser(dst, base); err != 0 {
		t.Fatalf("copy from user failed: %v", err)
	}
	for i := range src {
		if src[i] != dst[i] {
			t.Fatalf("byte %d mismatch: wrote %d read %d", i, src[i], dst[i])
		}
	}
}

func TestSwapOutAndIn(t *testing.T) {
	setupPhysmem(t, 32)
	InitSwap(4)
	mm := newMap(t)
	RegisterVictimSource(func(exclude *Vmmap_t) []*Vmmap_t {
		if exclude == mm {
			return nil
		}
		return []*Vmmap_t{mm}
	})

	base := uint64(0x1000 * 16)
	if _, err := mm.MmMappages(base, base+riscv.PGSIZE, riscv.PTE_R|riscv.PTE_W, false, nil, 0, 0); err != 0 {
		t.Fatalf("mappages failed: %v", err)
	}
	pattern := make([]byte, riscv.PGSIZE)
	for i := range pattern {
		pattern[i] = byte(i % 251)
	}
	if err := mm.CopyToUser(base, pattern); err != 0 {
		t.Fatalf("copy to user failed: %v", err)
	}

	pte, _ := Walk(mm.Root, base, false)
	rwx := *pte & riscv.PTE_RWX
	pa := mem.Pa_t(riscv.PTE2PA(*pte))
	idx, ok := allocSwapSlot()
	if !ok {
		t.Fatal("no swap slot")
	}
	swapMu.Lock()
	swapSlots[idx] = *mem.Physmem.Dmap(pa)
	swapMu.Unlock()
	mem.Physmem.Free(pa)
	*pte = makeSwapped(idx, rwx)

	got := make([]byte, riscv.PGSIZE)
	if err := mm.CopyFromUser(got, base); err != 0 {
		t.Fatalf("copy from user after swap-in failed: %v", err)
	}
	for i := range pattern {
		if pattern[i] != got[i] {
			t.Fatalf("byte %d mismatch after swap round trip: wrote %d read %d", i, pattern[i], got[i])
		}
	}
}

func TestSbrkGrowThenShrink(t *testing.T) {
	setupPhysmem(t, 32)
	mm := newMap(t)

	base := uint64(0x1000 * 16)
	vma, err := mm.MmMappages(base, base+riscv.PGSIZE, riscv.PTE_R|riscv.PTE_W, false, nil, 0, 0)
	if err != 0 {
		t.Fatalf("mappages failed: %v", err)
	}
	mm.Brk = vma

	if err := mm.MmRemap(vma, base, base+3*riscv.PGSIZE, riscv.PTE_R|riscv.PTE_W); err != 0 {
		t.Fatalf("grow failed: %v", err)
	}
	if vma.End != base+3*riscv.PGSIZE {
		t.Fatalf("vma.End = %x after grow", vma.End)
	}

	if err := mm.MmRemap(vma, base, base+riscv.PGSIZE, riscv.PTE_R|riscv.PTE_W); err != 0 {
		t.Fatalf("shrink failed: %v", err)
	}
	if vma.End != base+riscv.PGSIZE {
		t.Fatalf("vma.End = %x after shrink", vma.End)
	}
	pte, _ := Walk(mm.Root, base+riscv.PGSIZE, false)
	if pte != nil && *pte != 0 {
		t.Fatal("page freed by shrink should have a zero pte")
	}
}
