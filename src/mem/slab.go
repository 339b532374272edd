package mem

import (
	"unsafe"

	"defs"
	"lock"
)

// Slab pool layout mirrors the spec exactly rather than the teacher's
// (which this pack's copy of biscuit/src/mem never actually carried a
// slab allocator for — the teacher's object pools are just Go slices).
// Each free object's first word is a link to the next free object;
// objects are laid out back to back within a page, and whenever an
// object would straddle a page boundary the pool skips ahead to the
// next page instead, recording that discontinuity purely in the
// freelist linkage.

const objHdrSize = int(unsafe.Sizeof(Pa_t(0)))

/// Slab_t is a named, fixed-object-size pool carved from pages obtained
/// from a Physmem_t.
type Slab_t struct {
	mu lock.Spinlock_t

	Name       string
	ObjSize    int
	AlignSize  int
	Allocated  int
	Available  int
	Max        int

	backing    *Physmem_t
	pages      []Pa_t
	freehead   uintptr
	hasFree    bool
}

func roundupObj(sz int) int {
	const word = 8
	if r := sz % word; r != 0 {
		sz += word - r
	}
	return sz
}

/// Init lays out count objects of object_size bytes, allocating
/// whatever pages are needed from backing. Returns ENOMEM if the page
/// allocator runs out partway through.
func (s *Slab_t) Init(backing *Physmem_t, name string, objectSize, count int) defs.Err_t {
	s.mu.Name = name + ".slab"
	s.Name = name
	s.backing = backing
	s.ObjSize = objectSize
	s.AlignSize = roundupObj(objHdrSize + objectSize)
	s.Max = count
	s.Available = 0
	s.Allocated = 0
	s.hasFree = false

	perPage := PGSIZE / s.AlignSize
	if perPage == 0 {
		panic("mem: slab object too large for a page")
	}

	remaining := count
	for remaining > 0 {
		pa, ok := backing.Alloc()
		if !ok {
			return defs.ENOMEM
		}
		s.pages = append(s.pages, pa)
		n := perPage
		if n > remaining {
			n = remaining
		}
		for i := 0; i < n; i++ {
			addr := uintptr(pa) + uintptr(i*s.AlignSize)
			s.pushFree(addr)
			s.Available++
		}
		remaining -= n
	}
	return 0
}

func (s *Slab_t) objAt(addr uintptr) []byte {
	pa := Pa_t(addr &^ (PGSIZE - 1))
	pg := s.backing.Dmap(pa)
	off := addr & (PGSIZE - 1)
	return pg[off : off+uintptr(s.AlignSize)]
}

func (s *Slab_t) linkAt(addr uintptr) *uintptr {
	obj := s.objAt(addr)
	return (*uintptr)(unsafe.Pointer(&obj[0]))
}

// noNext marks the tail of the freelist. Real addresses never reach
// this value, so it is safe to use as a sentinel even though address 0
// is otherwise a perfectly ordinary (simulated) physical address.
const noNext = ^uintptr(0)

func (s *Slab_t) pushFree(addr uintptr) {
	link := s.linkAt(addr)
	if s.hasFree {
		*link = s.freehead
	} else {
		*link = noNext
	}
	s.freehead = addr
	s.hasFree = true
}

func poisonBytes(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

/// Alloc pops one object, poisons header and body, and returns the
/// body as a byte slice (the object's useful bytes, excluding the
/// link header). Returns (nil, ENOMEM) on exhaustion.
func (s *Slab_t) Alloc() ([]byte, defs.Err_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasFree {
		return nil, defs.ENOMEM
	}
	addr := s.freehead
	link := s.linkAt(addr)
	next := *link
	obj := s.objAt(addr)
	poisonBytes(obj, poisonAlloc)
	s.Available--
	s.Allocated++
	if next == noNext {
		s.hasFree = false
	} else {
		s.freehead = next
	}
	if s.Allocated+s.Available != s.Max {
		panic("mem: slab invariant violated on alloc: allocated+available != max")
	}
	return obj[objHdrSize:], 0
}

/// Free returns an object previously returned by Alloc to the pool.
/// obj must be the exact slice Alloc returned.
func (s *Slab_t) Free(obj []byte) {
	objOff := uintptr(unsafe.Pointer(&obj[0])) - uintptr(unsafe.Pointer(&s.backing.Arena[0]))
	addr := objOff - uintptr(objHdrSize)
	s.mu.Lock()
	defer s.mu.Unlock()
	full := s.objAt(addr)
	poisonBytes(full[objHdrSize:], poisonFree)
	s.pushFree(addr)
	s.Available++
	s.Allocated--
	if s.Allocated+s.Available != s.Max {
		panic("mem: slab invariant violated on free: allocated+available != max")
	}
}
