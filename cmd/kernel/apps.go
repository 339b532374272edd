// Built-in test programs for the application table kmain populates at
// boot (spec §4.G "Exec": "Resolve the binary by name from the
// built-in application table"). Each is hand-assembled RV64I machine
// code rather than a compiled binary, since nothing in this retrieval
// pack ships a prebuilt RISC-V ELF to embed; every instruction below
// is encoded directly from the RISC-V base ISA's I-type/U-type bit
// layouts (rd/rs1/funct3/opcode, imm<<20 for I-type, imm<<12 for
// U-type) rather than assembled by a toolchain, deliberately avoiding
// any branch instruction so the bit-scrambled B-type immediate never
// has to be hand-encoded.
package main

import (
	"encoding/binary"

	"elf"
	"proc"
	"riscv"
	"util"
)

const appVaddr = 0x1000

// RISC-V registers used below, per the standard calling convention
// scall.Dispatch already marshals syscall arguments through (a7 =
// syscall number, a0..a2 = arguments).
const (
	regA0 = 10
	regA1 = 11
	regA2 = 12
	regA7 = 17
)

const opcodeOpImm = 0x13
const opcodeAuipc = 0x17

func iType(imm int32, rs1, rd uint32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | rd<<7 | opcodeOpImm
}

func uType(imm uint32, rd uint32) uint32 {
	return imm<<12 | rd<<7 | opcodeAuipc
}

// addi encodes "addi rd, rs1, imm" (funct3 = 0 within opcodeOpImm).
func addi(rd, rs1 uint32, imm int32) uint32 { return iType(imm, rs1, rd) }

// auipc encodes "auipc rd, imm".
func auipc(rd uint32, imm uint32) uint32 { return uType(imm, rd) }

const ecall = 0x00000073

// asm packs a sequence of 32-bit instruction words into their
// little-endian byte encoding.
func asm(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return buf
}

// exitCall appends "addi a0, x0, code; addi a7, x0, sysExit; ecall" to
// words, the same three-instruction tail every built-in program ends
// with.
func exitCall(words []uint32, code int32) []uint32 {
	return append(words,
		addi(regA0, 0, code),
		addi(regA7, 0, sysExit),
		ecall,
	)
}

const (
	sysExit  = 3
	sysYield = 11
	sysWrite = 23
)

// buildExit0 is the minimal built-in program: it exits immediately
// with status 0.
func buildExit0() []byte {
	words := exitCall(nil, 0)
	code := asm(words...)
	return elf.BuildImage(appVaddr, riscv.PGSIZE, code, appVaddr)
}

// buildHello writes "hi\n" to its console fd (syscall #23, fd 0, the
// only open fd a freshly spawned process has per spec §4.H) and then
// exits 0. The pointer to the trailing payload is computed with
// auipc+addi instead of loaded from a data section, since there is no
// linker here to resolve a symbol reference.
func buildHello() []byte {
	payload := []byte("hi\n")

	const auipcIdx = 1 // the auipc instruction is the 2nd word (offset 4)
	words := []uint32{
		addi(regA0, 0, 0),  // a0 = fd 0
		auipc(regA1, 0),    // a1 = pc of this instruction
		0,                  // placeholder: addi a1, a1, <payload offset>
		addi(regA2, 0, int32(len(payload))),
		addi(regA7, 0, sysWrite),
		ecall,
	}
	words = exitCall(words, 0)

	codeLen := int32(4 * len(words))
	auipcAddr := int32(4 * auipcIdx)
	offset := codeLen - auipcAddr
	words[auipcIdx+1] = addi(regA1, regA1, offset)

	code := append(asm(words...), payload...)
	memsz := util.Roundup(uint64(len(code)), uint64(riscv.PGSIZE))
	return elf.BuildImage(appVaddr, memsz, code, appVaddr)
}

// buildSpin yields the hart five times before exiting with status 7,
// a cheap way to exercise the scheduler's preemption and voluntary
// Yield paths without looping (a loop needs a backward branch, the one
// instruction class deliberately not hand-encoded here).
func buildSpin() []byte {
	var words []uint32
	for i := 0; i < 5; i++ {
		words = append(words, addi(regA7, 0, sysYield), ecall)
	}
	words = exitCall(words, 7)
	code := asm(words...)
	return elf.BuildImage(appVaddr, riscv.PGSIZE, code, appVaddr)
}

// registerApps installs the built-in application table (spec §4.G).
func registerApps() {
	proc.RegisterApp("exit0", buildExit0())
	proc.RegisterApp("hello", buildHello())
	proc.RegisterApp("spin", buildSpin())
}
