// Package cpu tracks per-hart state: which hart this is, the
// preempt-disable nesting depth, whether interrupts were enabled
// before the current nested disable, whether this hart is currently
// servicing a kernel trap, and a pointer to the process currently
// running here.
//
// Hart-local storage is obtained the same way the kernel this design
// descends from gets goroutine-local storage on its patched Go
// runtime: a pointer stashed in the running goroutine's runtime.g via
// runtime.Setgptr/runtime.Gptr. Before a hart has pinned its slot,
// ForHart looks it up by logical cpu id instead. Every hart pins one
// goroutine for its entire lifetime (see cmd/kernel's bootHart and
// secondaryHart), so this is equivalent to true per-hart TLS.
package cpu

import (
	"runtime"
	"unsafe"

	"riscv"
)

const MaxHarts = runtime.MAXCPUS

// Cpu_t is one hart's kernel-visible state.
type Cpu_t struct {
	Hartid uint64
	Cpuid  int

	// Ncli counts nested spin-lock acquisitions; interrupts are
	// disabled while Ncli > 0 and restored to Introadbled once it
	// returns to zero (spec §4.A).
	Ncli int
	// Introadbled records whether interrupts were enabled just
	// before the outermost lock in the current nest was acquired.
	Introadbled bool

	// Inkerneltrap is set for the duration of kernel-trap servicing;
	// a timer interrupt taken while it is set must not preempt
	// (spec §4.F: "Kernel threads are not preempted by timer").
	Inkerneltrap bool

	// Proc points at the process currently running on this hart, or
	// nil if the scheduler loop itself is running.
	Proc interface{}

	// Sched is this hart's scheduler-loop context: the Swtch target
	// a process's sched() call returns control to, and the Swtch
	// source the scheduler loop uses to dispatch the next process
	// (spec §4.G: "a distinct scheduler context per hart").
	Sched riscv.Context_t
}

var cpus [MaxHarts]Cpu_t

// ForHart returns the Cpu_t slot for the given logical cpu id. Used at
// SMP boot before a hart has pinned its own goroutine.
func ForHart(cpuid int) *Cpu_t {
	return &cpus[cpuid]
}

// Current returns this hart's Cpu_t, resolved via the hart-pinned
// goroutine's stashed pointer.
func Current() *Cpu_t {
	p := runtime.Gptr()
	if p == nil {
		panic("cpu: hart has not pinned its Cpu_t yet")
	}
	return (*Cpu_t)(p)
}

// Pin installs c as the calling (hart-bound) goroutine's Cpu_t. Called
// exactly once per hart, after runtime.LockOSThread, before any code
// that calls Current.
func Pin(c *Cpu_t) {
	if runtime.Gptr() != nil {
		panic("cpu: hart already pinned")
	}
	runtime.Setgptr(unsafe.Pointer(c))
}

// Pushcli disables interrupts and increments the nesting count. Must
// be paired with Popcli. Holding any lock.Spinlock_t implies
// interrupts are disabled on this hart (spec §4.A invariant); locks
// implement that by calling Pushcli/Popcli around their critical
// section.
func Pushcli() {
	enabled := riscv.IntrGet()
	riscv.IntrOff()
	c := Current()
	if c.Ncli == 0 {
		c.Introadbled = enabled
	}
	c.Ncli++
}

// Popcli undoes one Pushcli, restoring interrupts once the nesting
// count returns to zero.
func Popcli() {
	if riscv.IntrGet() {
		panic("cpu: popcli with interrupts already enabled")
	}
	c := Current()
	c.Ncli--
	if c.Ncli < 0 {
		panic("cpu: popcli without matching pushcli")
	}
	if c.Ncli == 0 && c.Introadbled {
		riscv.IntrOn()
	}
}
