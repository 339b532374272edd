package elf

import (
	"testing"

	"riscv"
)

// buildElf delegates to BuildImage, the same ELF writer the kernel's
// built-in application table uses, since this package has nothing
// else to exercise Load against.
func buildElf(t *testing.T, vaddr, memsz uint64, payload []byte, entry uint64) []byte {
	t.Helper()
	return BuildImage(vaddr, memsz, payload, entry)
}

func TestLoadSingleSegment(t *testing.T) {
	payload := []byte("hello world")
	image := buildElf(t, 0x10000, riscv.PGSIZE, payload, 0x10000+8)

	img, err := Load(image)
	if err != 0 {
		t.Fatalf("Load failed: %v", err)
	}
	if img.Entry != 0x10000+8 {
		t.Fatalf("entry = %x", img.Entry)
	}
	if len(img.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(img.Segments))
	}
	seg := img.Segments[0]
	if seg.Vaddr != 0x10000 || seg.Filesz != uint64(len(payload)) {
		t.Fatalf("segment mismatch: %+v", seg)
	}
	if seg.Perms&riscv.PTE_R == 0 || seg.Perms&riscv.PTE_W == 0 || seg.Perms&riscv.PTE_X == 0 || seg.Perms&riscv.PTE_U == 0 {
		t.Fatalf("segment perms = %x, want RWXU", seg.Perms)
	}
	if img.MaxVaEnd != 0x10000+riscv.PGSIZE {
		t.Fatalf("maxVaEnd = %x", img.MaxVaEnd)
	}
}

func TestLoadRejectsUnalignedVaddr(t *testing.T) {
	image := buildElf(t, 0x10001, riscv.PGSIZE, []byte("x"), 0x10001)
	if _, err := Load(image); err == 0 {
		t.Fatal("unaligned PT_LOAD vaddr should have been rejected")
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	if _, err := Load([]byte("not an elf")); err == 0 {
		t.Fatal("garbage input should have been rejected")
	}
}
