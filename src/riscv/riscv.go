// Package riscv mirrors the hardware contract a RISC-V supervisor
// kernel depends on: control-and-status register access and the Sv39
// paging layout. The CSR accessors are declared, not implemented —
// each is a single instruction (csrr/csrw) that belongs in a small
// assembly stub, the same boundary the kernel this design descends
// from draws around its trap-vector assembly (see DESIGN.md).
package riscv

// Supervisor Status Register bits.
const (
	SSTATUS_SUM  uint64 = 1 << 18 // permit supervisor access to user memory
	SSTATUS_SPP  uint64 = 1 << 8  // previous privilege mode, 1=S 0=U
	SSTATUS_SPIE uint64 = 1 << 5  // previous interrupt-enable
	SSTATUS_SIE  uint64 = 1 << 1  // interrupt-enable
)

// Supervisor Interrupt Enable bits.
const (
	SIE_SEIE uint64 = 1 << 9 // external
	SIE_STIE uint64 = 1 << 5 // timer
	SIE_SSIE uint64 = 1 << 1 // software
)

// SATP_SV39 selects the Sv39 paging mode in the satp CSR.
const SATP_SV39 uint64 = 8 << 60

// MakeSatp builds a satp value pointing at the given root page-table
// physical address.
func MakeSatp(pagetable uint64) uint64 {
	return SATP_SV39 | (pagetable >> PGSHIFT)
}

// Page and Sv39 geometry.
const (
	PGSIZE   = 4096
	PGSHIFT  = 12
	PXMASK   = 0x1ff
	SV39BITS = 9 + 9 + 9 + 12
)

// PTE permission/status bits (RISC-V privileged spec order).
const (
	PTE_V uint64 = 1 << 0 // valid
	PTE_R uint64 = 1 << 1
	PTE_W uint64 = 1 << 2
	PTE_X uint64 = 1 << 3
	PTE_U uint64 = 1 << 4 // user accessible
	PTE_G uint64 = 1 << 5 // global
	PTE_A uint64 = 1 << 6 // accessed
	PTE_D uint64 = 1 << 7 // dirty

	PTE_RWX = PTE_R | PTE_W | PTE_X
)

// PXShift returns the bit offset of the level-th 9-bit VPN field.
func PXShift(level uint) uint {
	return PGSHIFT + 9*level
}

// PX extracts the level-th 9-bit index from a virtual address.
func PX(level uint, va uint64) uint64 {
	return (va >> PXShift(level)) & PXMASK
}

// PA2PTE shifts a physical address into PTE PPN position.
func PA2PTE(pa uint64) uint64 {
	return (pa >> PGSHIFT) << 10
}

// PTE2PA extracts the physical address named by a PTE.
func PTE2PA(pte uint64) uint64 {
	return (pte >> 10) << PGSHIFT
}

// PTEFlags extracts the low 10 flag bits of a PTE.
func PTEFlags(pte uint64) uint64 {
	return pte & 0x3ff
}

// MakePTE builds a leaf PTE for physical page pa with the given flags
// (PTE_V is added automatically).
func MakePTE(pa uint64, flags uint64) uint64 {
	return PA2PTE(pa) | flags | PTE_V
}

// MAXVA is one beyond the highest representable Sv39 virtual address,
// kept one bit below the full 2^39 range so addresses never need
// sign-extension through the canonical-address gap.
const MAXVA uint64 = 1 << (SV39BITS - 1)

// User-space layout: the trampoline sits at the top page of every
// address space (shared, mapped R+X), the trapframe one page below it
// (private, R+W), and the user stack grows down from below that.
const (
	UserTop    = MAXVA
	Trampoline = UserTop - PGSIZE
	Trapframe  = Trampoline - PGSIZE
	UstackTop  = Trapframe
)

// Trap cause codes, read out of scause. The top bit distinguishes an
// interrupt from an exception (ScauseInterrupt); the remaining bits
// are original_source/os/trap.c's usertrap switch, spelled out as
// named constants instead of the magic numbers trap.c itself
// switches on, since nothing here has that file's surrounding comment
// to explain them.
const (
	ScauseInterrupt uint64 = 1 << 63

	ExcInstrMisaligned     uint64 = 0
	ExcInstrAccessFault    uint64 = 1
	ExcIllegalInstruction  uint64 = 2
	ExcBreakpoint          uint64 = 3
	ExcLoadMisaligned      uint64 = 4
	ExcLoadAccessFault     uint64 = 5
	ExcStoreMisaligned     uint64 = 6
	ExcStoreAccessFault    uint64 = 7
	ExcUserEnvCall         uint64 = 8
	ExcInstructionPageFault uint64 = 12
	ExcLoadPageFault       uint64 = 13
	ExcStorePageFault      uint64 = 15

	IntSupervisorSoftware uint64 = 1
	IntSupervisorTimer    uint64 = 5
	IntSupervisorExternal uint64 = 9
)

// Kernel direct-mapping window: KVA = PA + KernelDirectBase maps every
// physical page into the kernel's address space without a page-table
// walk, per spec §3's "Page table" invariant.
const KernelDirectBase uint64 = 0xffffffc000000000

// Trapframe_t is the per-process register-save page mapped at
// riscv.Trapframe. The trampoline assembly saves all of the user's
// general registers here on entry and restores them (plus the new
// epc) on the way back out; the kernel_* fields are filled in by the
// trap package on every return to user mode and read by the
// trampoline so it can get back into
// supervisor mode without any other page being mapped.
type Trapframe_t struct {
	KernelSatp   uint64 // kernel page table, for trampoline's sret path
	KernelSp     uint64 // top of this process's kernel stack
	KernelTrap   uint64 // address of usertrap
	KernelHartid uint64 // this hart's id, restored into tp

	Epc uint64 // saved user pc

	Ra, Sp, Gp, Tp             uint64
	T0, T1, T2                 uint64
	S0, S1                     uint64
	A0, A1, A2, A3, A4, A5, A6, A7 uint64
	S2, S3, S4, S5, S6, S7, S8, S9, S10, S11 uint64
	T3, T4, T5, T6             uint64
}

// CSR accessors. Implemented in a small assembly stub outside this
// package's scope (spec §1: boot/trap-vector assembly is an interface
// contract, not something this design implements).
func RSstatus() uint64     { return csrRead("sstatus") }
func WSstatus(x uint64)    { csrWrite("sstatus", x) }
func RSip() uint64         { return csrRead("sip") }
func WSip(x uint64)        { csrWrite("sip", x) }
func RSie() uint64         { return csrRead("sie") }
func WSie(x uint64)        { csrWrite("sie", x) }
func RSepc() uint64        { return csrRead("sepc") }
func WSepc(x uint64)       { csrWrite("sepc", x) }
func RStvec() uint64       { return csrRead("stvec") }
func WStvec(x uint64)      { csrWrite("stvec", x) }
func RSatp() uint64        { return csrRead("satp") }
func WSatp(x uint64)       { csrWrite("satp", x) }
func WSscratch(x uint64)   { csrWrite("sscratch", x) }
func RScause() uint64      { return csrRead("scause") }
func RStval() uint64       { return csrRead("stval") }
func RTime() uint64        { return csrRead("time") }
func SfenceVMA()           { fence() }

// IntrOn enables device interrupts on this hart.
func IntrOn() { WSstatus(RSstatus() | SSTATUS_SIE) }

// IntrOff disables device interrupts on this hart and reports whether
// they were enabled beforehand.
func IntrOff() bool {
	was := RSstatus()&SSTATUS_SIE != 0
	WSstatus(RSstatus() &^ SSTATUS_SIE)
	return was
}

// IntrGet reports whether device interrupts are enabled on this hart.
func IntrGet() bool {
	return RSstatus()&SSTATUS_SIE != 0
}

// csrRead/csrWrite/fence are the assembly-backed primitives this
// package declares a contract for; they are never called from a
// hosted test (tests exercise the pure bit-manipulation helpers
// above), and have no portable Go body.
func csrRead(name string) uint64  { panic("riscv: " + name + " requires assembly support") }
func csrWrite(name string, _ uint64) { panic("riscv: " + name + " requires assembly support") }
func fence()                      { panic("riscv: sfence.vma requires assembly support") }

// Context_t holds the callee-saved registers a kernel-to-kernel
// context switch must preserve (spec §4.G: "saves callee-saved
// registers only, ra, sp, s0..s11"). Every process and every hart's
// scheduler loop has one.
type Context_t struct {
	Ra, Sp uint64
	S      [12]uint64
}

// Swtch saves the caller's registers into old and loads new's,
// resuming execution wherever new last called Swtch. Implemented in
// assembly outside this package's scope, like the CSR accessors
// above; it is the single instruction sequence the scheduler and
// proc.sched both build on.
func Swtch(old, new *Context_t) {
	panic("riscv: swtch requires assembly support")
}
