package mem

import "testing"

func newTestArena(npages int) *Physmem_t {
	p := &Physmem_t{}
	p.Init(make([]byte, npages*PGSIZE))
	return p
}

func TestAllocFreeRoundTrip(t *testing.T) {
	p := newTestArena(4)
	if got := p.Freepages(); got != 4 {
		t.Fatalf("freepages = %d, want 4", got)
	}
	pa, ok := p.Alloc()
	if !ok {
		t.Fatal("alloc failed on fresh arena")
	}
	if p.Freepages() != 3 {
		t.Fatalf("freepages after one alloc = %d, want 3", p.Freepages())
	}
	p.Free(pa)
	if p.Freepages() != 4 {
		t.Fatalf("freepages after free = %d, want 4", p.Freepages())
	}
}

func TestAllocReturnsDistinctPages(t *testing.T) {
	p := newTestArena(3)
	seen := map[Pa_t]bool{}
	for i := 0; i < 3; i++ {
		pa, ok := p.Alloc()
		if !ok {
			t.Fatalf("alloc %d failed", i)
		}
		if seen[pa] {
			t.Fatalf("alloc returned duplicate address %d", pa)
		}
		seen[pa] = true
	}
	if _, ok := p.Alloc(); ok {
		t.Fatal("alloc succeeded past exhaustion")
	}
}

func TestAllocPoisonsPage(t *testing.T) {
	p := newTestArena(1)
	pa, ok := p.Alloc()
	if !ok {
		t.Fatal("alloc failed")
	}
	pg := p.Dmap(pa)
	for i, b := range pg {
		if b != poisonAlloc {
			t.Fatalf("byte %d = %x, want alloc-poison %x", i, b, poisonAlloc)
		}
	}
}

func TestFreePoisonsPage(t *testing.T) {
	p := newTestArena(1)
	pa, _ := p.Alloc()
	p.Free(pa)
	pg := p.Dmap(pa)
	for i, b := range pg {
		if b != poisonFree {
			t.Fatalf("byte %d = %x, want free-poison %x", i, b, poisonFree)
		}
	}
}

func TestFreeOfUnalignedAddressPanics(t *testing.T) {
	p := newTestArena(1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unaligned free")
		}
	}()
	p.Free(1)
}

func TestDmapMasksToPageBase(t *testing.T) {
	p := newTestArena(2)
	pa, _ := p.Alloc()
	got := p.Dmap(pa + 17)
	want := p.Dmap(pa)
	if got != want {
		t.Fatal("dmap of an address mid-page did not resolve to the page base")
	}
}
