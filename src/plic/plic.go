// Package plic drives the RISC-V Platform-Level Interrupt Controller:
// per-source priority, per-hart enable bits, and the claim/complete
// protocol external interrupts are routed through (spec §4.F, §6
// "Platform interrupt controller MMIO").
//
// Grounded directly on original_source/os/plic.c and plic.h — the
// teacher's x86-64 analogue, biscuit/src/apic, is a stub-only module
// in the retrieved pack (no APIC source survived distillation), so
// there is no teacher MMIO-accessor idiom to port; the register-offset
// constant block below follows the documentation style of this port's
// own mem.KernelDirectBase-style layout constants instead.
package plic

import "unsafe"

// Register layout (spec §6 "Platform interrupt controller MMIO"),
// relative to Base. ctx is 2*hartid+1 on QEMU and 2*hartid on the
// SiFive board variant (original_source/os/plic.c:plicinithart).
const (
	priorityOff       = 0x0
	pendingOff        = 0x1000
	enableStride       = 0x80
	enableBase        = 0x2000
	thresholdStride   = 0x1000
	thresholdBase     = 0x200000
	claimStride       = 0x1000
	claimBase         = 0x200004
)

// Base is the kernel virtual address the PLIC's MMIO window is mapped
// at. Set once by the boot sequence before Init/InitHart are called.
var Base uintptr

// OnBoard selects the SiFive-board context numbering (ctx = 2*hartid)
// instead of QEMU's (ctx = 2*hartid+1), mirroring
// original_source/os/plic.c's on_vf2_board flag.
var OnBoard bool

func ctx(hartid int) int {
	c := hartid*2 + 1
	if OnBoard {
		c--
	}
	return c
}

func reg32(off uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(Base + off))
}

// Init sets uart's priority non-zero; a source with priority zero is
// permanently disabled (original_source/os/plic.c:plicinit).
func Init(uartIrq uint32) {
	*reg32(priorityOff + uintptr(uartIrq)*4) = 1
}

// InitHart enables uartIrq for this hart's supervisor context and
// drops its priority threshold to zero, so every enabled source is
// visible to Claim (original_source/os/plic.c:plicinithart). Every
// hart calls this once during its own bring-up.
func InitHart(hartid int, uartIrq uint32) {
	c := ctx(hartid)
	off, bit := uartIrq/32, uartIrq%32
	enable := reg32(enableBase + uintptr(c)*enableStride + uintptr(off)*4)
	*enable |= 1 << bit

	*reg32(thresholdBase + uintptr(c)*thresholdStride) = 0
}

// Claim asks the PLIC which interrupt this hart should service next,
// or 0 if none is pending.
func Claim(hartid int) uint32 {
	return *reg32(claimBase + uintptr(ctx(hartid))*claimStride)
}

// Complete tells the PLIC this hart is done servicing irq, making it
// eligible to fire again.
func Complete(hartid int, irq uint32) {
	*reg32(claimBase + uintptr(ctx(hartid))*claimStride) = irq
}
