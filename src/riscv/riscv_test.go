package riscv

import "testing"

func TestPXDecomposition(t *testing.T) {
	va := uint64(0x123456789)
	l2 := PX(2, va)
	l1 := PX(1, va)
	l0 := PX(0, va)
	if l2 > PXMASK || l1 > PXMASK || l0 > PXMASK {
		t.Fatal("index out of range")
	}
}

func TestPTEPack(t *testing.T) {
	pa := uint64(0x80201000)
	pte := MakePTE(pa, PTE_R|PTE_W|PTE_U)
	if PTE2PA(pte) != pa {
		t.Fatalf("round trip: got %x want %x", PTE2PA(pte), pa)
	}
	if pte&PTE_V == 0 {
		t.Fatal("valid bit not set")
	}
	if PTEFlags(pte)&PTE_W == 0 {
		t.Fatal("writable bit lost")
	}
}

func TestMakeSatp(t *testing.T) {
	root := uint64(0x80300000)
	satp := MakeSatp(root)
	if satp&SATP_SV39 == 0 {
		t.Fatal("sv39 mode bit missing")
	}
}
