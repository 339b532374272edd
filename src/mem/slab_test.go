package mem

import (
	"testing"
	"unsafe"
)

func addrOfSlice(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

type smallObj struct {
	A, B uint64
}

func TestSlabInitInvariant(t *testing.T) {
	p := newTestArena(8)
	var s Slab_t
	if err := s.Init(p, "test", 16, 50); err != 0 {
		t.Fatalf("init failed: %v", err)
	}
	if s.Allocated+s.Available != s.Max {
		t.Fatalf("allocated+available = %d, want max %d", s.Allocated+s.Available, s.Max)
	}
	if s.Available != 50 {
		t.Fatalf("available = %d, want 50", s.Available)
	}
}

func TestSlabAllocFreeRoundTrip(t *testing.T) {
	p := newTestArena(4)
	var s Slab_t
	if err := s.Init(p, "test", 24, 10); err != 0 {
		t.Fatalf("init failed: %v", err)
	}
	obj, err := s.Alloc()
	if err != 0 {
		t.Fatalf("alloc failed: %v", err)
	}
	if s.Allocated != 1 || s.Available != 9 {
		t.Fatalf("counts after alloc: allocated=%d available=%d", s.Allocated, s.Available)
	}
	s.Free(obj)
	if s.Allocated != 0 || s.Available != 10 {
		t.Fatalf("counts after free: allocated=%d available=%d", s.Allocated, s.Available)
	}
}

func TestSlabExhaustion(t *testing.T) {
	p := newTestArena(1)
	var s Slab_t
	if err := s.Init(p, "test", 64, 3); err != 0 {
		t.Fatalf("init failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Alloc(); err != 0 {
			t.Fatalf("alloc %d failed unexpectedly: %v", i, err)
		}
	}
	if _, err := s.Alloc(); err != ErrOOM {
		t.Fatalf("alloc past exhaustion = %v, want ENOMEM", err)
	}
}

func TestSlabAllocPoisonsObject(t *testing.T) {
	p := newTestArena(2)
	var s Slab_t
	if err := s.Init(p, "test", 32, 5); err != 0 {
		t.Fatalf("init failed: %v", err)
	}
	obj, err := s.Alloc()
	if err != 0 {
		t.Fatalf("alloc failed: %v", err)
	}
	for i, b := range obj {
		if b != poisonAlloc {
			t.Fatalf("byte %d = %x, want alloc-poison", i, b)
		}
	}
}

func TestSlabDistinctObjects(t *testing.T) {
	p := newTestArena(4)
	var s Slab_t
	if err := s.Init(p, "test", 16, 20); err != 0 {
		t.Fatalf("init failed: %v", err)
	}
	seen := map[uintptr]bool{}
	for i := 0; i < 20; i++ {
		obj, err := s.Alloc()
		if err != 0 {
			t.Fatalf("alloc %d failed: %v", i, err)
		}
		addr := addrOfSlice(obj)
		if seen[addr] {
			t.Fatalf("alloc %d returned duplicate object", i)
		}
		seen[addr] = true
	}
}
