// Package trap implements the kernel- and user-trap dispatch (spec
// §4.F), the supervisor-timer tick counter, and the fatal-exception
// panic path.
//
// Grounded on original_source/os/trap.c for dispatch semantics
// (kernel_trap/usertrap/usertrapret's division of labour, the
// interrupt-vs-exception split on scause's top bit, set_kerneltrap's
// stvec-direct-mode install) and on biscuit/src/caller/caller.go for
// the panic dump shape, since the teacher's own trap vectors live in
// x86-64 assembly this port has no use for.
package trap

import (
	"fmt"

	"caller"
	"console"
	"cpu"
	"plic"
	"riscv"
)

// kernelTrapEntry/userTrapEntry/trampolineReturn are the assembly trap
// vectors stvec is pointed at. Like riscv.Swtch, they have no portable
// Go body: entering supervisor mode from a trap is a single hand
// written instruction sequence that saves/restores registers around a
// call into KernelTrap/UserTrap, and returning to user mode is the
// trampoline page's job (spec §1, boot/trap-vector assembly is an
// interface contract this design does not implement).
func kernelTrapEntry()                 { panic("trap: kernel trap vector requires assembly support") }
func userTrapEntry()                   { panic("trap: user trap vector requires assembly support") }
func trampolineReturn(satp, stvec uint64) { panic("trap: trampoline return requires assembly support") }

// fatalTrap handles a trap this kernel never expects to recover from
// (spec §4.F "Any exception: the kernel considered this a fatal bug;
// lock the panic printer against other harts and panic with a full
// register dump"). The first hart to arrive takes the kernel-print
// priority lock, marks the kernel panicked so every other hart's
// console output falls back to the raw firmware path (console.Putc),
// prints the trapframe and a call stack, and spins forever; any hart
// that arrives after console.Panicked() is already set skips straight
// to the spin, matching spec §9's "a second hart observing panicked !=
// 0 aborts its current action and waits."
func fatalTrap(reason string, epc, scause, stval uint64) {
	if !console.Panicked() {
		console.AcquireKprint()
		console.SetPanicked()
		fmt.Printf("fatal trap: %s\n", reason)
		fmt.Printf("  epc=%#x scause=%#x stval=%#x\n", epc, scause, stval)
		fmt.Printf("  stack: %s\n", caller.Dumpstring(2))
		console.ReleaseKprint()
	}
	for {
	}
}

// Init points stvec at the kernel trap vector in direct mode (spec
// §4.F "trap_init"). Every hart calls this once during its own
// initialisation, since stvec is per-hart.
func Init() {
	setKernelTrap()
}

func setKernelTrap() {
	riscv.WStvec(uint64(kernelTrapEntryAddr()) &^ 0x3)
}

// kernelTrapEntryAddr stands in for taking the address of
// kernelTrapEntry's assembly label; a real implementation reads this
// out of the linked trap-vector symbol instead of a Go function value.
func kernelTrapEntryAddr() uintptr {
	panic("trap: kernel trap vector address requires assembly support")
}

// ktrapframe_t is the minimal diagnostic snapshot KernelTrap prints
// before panicking (original_source/os/trap.c never returns from a
// kernel trap either; this kernel does not implement kernel-mode
// exception recovery, matching spec's non-goal on that front).
type ktrapframe_t struct {
	Epc    uint64
	Scause uint64
	Stval  uint64
}

// KernelTrap handles a trap taken while already in supervisor mode.
// A supervisor timer interrupt rearms the timer and returns without
// preempting, a supervisor external interrupt is claimed, dispatched
// and completed, and every other cause is fatal.
func KernelTrap(ktf *ktrapframe_t) {
	if riscv.RSstatus()&riscv.SSTATUS_SPP == 0 {
		fatalTrap("kerneltrap not entered from supervisor mode", ktf.Epc, ktf.Scause, ktf.Stval)
	}
	if ktf.Scause&riscv.ScauseInterrupt != 0 {
		cause := ktf.Scause &^ riscv.ScauseInterrupt
		switch cause {
		case riscv.IntSupervisorTimer:
			// Kernel threads are not preempted; just rearm and return.
			armNextTick()
			return
		case riscv.IntSupervisorExternal:
			// A keystroke can arrive while every hart is idling in its
			// scheduler loop, not just while a process is running; service
			// it the same way UserTrap does instead of treating it as
			// fatal, unlike original_source/os/trap.c's kernel_trap, which
			// rejects any interrupt scause outright.
			hart := cpu.Current().Cpuid
			if irq := plic.Claim(hart); irq != 0 {
				if irq == UartIRQ {
					console.HandleInterrupt()
				}
				plic.Complete(hart, irq)
			}
			return
		}
	}
	c := cpu.Current()
	if c.Inkerneltrap {
		fatalTrap("nested kernel trap", ktf.Epc, ktf.Scause, ktf.Stval)
	}
	c.Inkerneltrap = true
	fatalTrap("fatal trap from kernel mode", ktf.Epc, ktf.Scause, ktf.Stval)
}

// clearInkerneltrap resets this hart's kernel-trap flag
// (cpu.Cpu_t.Inkerneltrap). KernelTrap sets the flag only on its fatal
// path and never returns from there, and nothing in this package calls
// clearInkerneltrap.
func clearInkerneltrap() {
	cpu.Current().Inkerneltrap = false
}
