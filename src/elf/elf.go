// Package elf scans an in-memory ELF64 image into the load segments
// proc.Exec needs to build a fresh memory map (spec §4.J). It parses
// with the standard library's debug/elf, the same approach the
// teacher's kernel/chentry.go tool uses (there validating an x86-64
// kernel image; here validating a RISC-V user binary), rather than
// hand-rolling a program-header reader.
package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"defs"
	"riscv"
	"util"
)

// Segment_t is one PT_LOAD program header, translated into the form
// vm.MmMappages wants: a page-aligned VA range, its permissions, and
// where in the image its file-backed bytes live.
type Segment_t struct {
	Vaddr  uint64
	Memsz  uint64
	Filesz uint64
	Off    uint64
	Perms  uint64 // riscv.PTE_R|W|X|U
}

// Image_t is a scanned binary: its PT_LOAD segments, entry point, and
// the page-rounded-up end of its highest segment (the initial brk).
type Image_t struct {
	Segments []Segment_t
	Entry    uint64
	MaxVaEnd uint64
}

// Load scans image, the same underlying []byte the caller keeps
// around as Vma_t.Source for demand-paging (spec §4.J: "source_base =
// elf_image_base"). It rejects anything that is not a 64-bit RISC-V
// ELF, has no PT_LOAD segments, or places a PT_LOAD at a
// non-page-aligned virtual address.
func Load(image []byte) (*Image_t, defs.Err_t) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, -defs.EINVAL
	}
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_RISCV {
		return nil, -defs.EINVAL
	}

	var segs []Segment_t
	var maxEnd uint64
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if p.Vaddr%riscv.PGSIZE != 0 {
			return nil, -defs.EINVAL
		}
		perms := riscv.PTE_U
		if p.Flags&elf.PF_R != 0 {
			perms |= riscv.PTE_R
		}
		if p.Flags&elf.PF_W != 0 {
			perms |= riscv.PTE_W
		}
		if p.Flags&elf.PF_X != 0 {
			perms |= riscv.PTE_X
		}
		segs = append(segs, Segment_t{
			Vaddr: p.Vaddr, Memsz: p.Memsz, Filesz: p.Filesz, Off: p.Off,
			Perms: perms,
		})
		end := util.Roundup(p.Vaddr+p.Memsz, riscv.PGSIZE)
		if end > maxEnd {
			maxEnd = end
		}
	}
	if len(segs) == 0 {
		return nil, -defs.EINVAL
	}
	return &Image_t{Segments: segs, Entry: f.Entry, MaxVaEnd: maxEnd}, 0
}

// BuildImage assembles a minimal ELF64/RISC-V image with one PT_LOAD
// segment covering payload, by hand: the only ELF writer this tree
// needs is the one that builds the kernel's own built-in application
// table (spec §4.G "the built-in application table"), and the
// standard library offers a reader but no writer.
func BuildImage(vaddr, memsz uint64, payload []byte, entry uint64) []byte {
	const ehsize = 64
	const phentsize = 56

	var buf bytes.Buffer
	ident := [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}
	buf.Write(ident[:])
	binary.Write(&buf, binary.LittleEndian, uint16(2))         // e_type = ET_EXEC
	binary.Write(&buf, binary.LittleEndian, uint16(0xf3))      // e_machine = EM_RISCV
	binary.Write(&buf, binary.LittleEndian, uint32(1))         // e_version
	binary.Write(&buf, binary.LittleEndian, entry)             // e_entry
	binary.Write(&buf, binary.LittleEndian, uint64(ehsize))    // e_phoff
	binary.Write(&buf, binary.LittleEndian, uint64(0))         // e_shoff
	binary.Write(&buf, binary.LittleEndian, uint32(0))         // e_flags
	binary.Write(&buf, binary.LittleEndian, uint16(ehsize))    // e_ehsize
	binary.Write(&buf, binary.LittleEndian, uint16(phentsize)) // e_phentsize
	binary.Write(&buf, binary.LittleEndian, uint16(1))         // e_phnum
	binary.Write(&buf, binary.LittleEndian, uint16(0))         // e_shentsize
	binary.Write(&buf, binary.LittleEndian, uint16(0))         // e_shnum
	binary.Write(&buf, binary.LittleEndian, uint16(0))         // e_shstrndx

	payloadOff := uint64(ehsize + phentsize)
	binary.Write(&buf, binary.LittleEndian, uint32(1))           // p_type = PT_LOAD
	binary.Write(&buf, binary.LittleEndian, uint32(1|2|4))        // p_flags = RWX
	binary.Write(&buf, binary.LittleEndian, payloadOff)           // p_offset
	binary.Write(&buf, binary.LittleEndian, vaddr)                // p_vaddr
	binary.Write(&buf, binary.LittleEndian, vaddr)                // p_paddr
	binary.Write(&buf, binary.LittleEndian, uint64(len(payload))) // p_filesz
	binary.Write(&buf, binary.LittleEndian, memsz)                // p_memsz
	binary.Write(&buf, binary.LittleEndian, uint64(riscv.PGSIZE)) // p_align

	buf.Write(payload)
	return buf.Bytes()
}
