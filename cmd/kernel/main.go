// Command kernel is the supervisor kernel's entry point: platform
// bring-up on the boot hart, SMP start of the remaining harts, and the
// per-hart trap/PLIC init that hands off into each hart's scheduler
// loop (spec §4.G "SMP boot").
//
// Grounded on original_source/os/main.c's bootcpu_entry/bootcpu_init/
// secondarycpu_entry/secondarycpu_init structure. The hart
// synchronisation original_source uses (a busy-wait on a volatile
// booted_count, then a busy-wait on a volatile halt_specific_init) is
// kept as the same two counters, but as sync/atomic variables rather
// than bare globals.
package main

import (
	"fmt"
	"sync/atomic"

	"console"
	"cpu"
	"defs"
	"mem"
	"plic"
	"proc"
	"riscv"
	"sbi"
	"trap"
	"uart8250"
	"vm"
)

// NCPU bounds the number of harts this kernel brings up (spec §4.G "a
// distinct scheduler context per hart"), matching cpu.MaxHarts.
const NCPU = cpu.MaxHarts

// physMemPages sizes the simulated physical-memory arena
// mem.Physmem.Init carves into pages; swapPages sizes the RAM-backed
// swap tier vm.InitSwap manages (spec §3 "Swap area").
const (
	physMemPages = 8192
	swapPages    = 2048
)

// qemuUartIRQ is the PLIC source number QEMU's virt machine wires its
// 16550 UART to (original_source/os/plic.c names this QEMU_UART0_IRQ
// in a comment without a numeric header to grep, so the figure is
// QEMU's well known virt-machine wiring).
const qemuUartIRQ = 10

// uartBase/plicBase are the kernel virtual addresses the UART and
// PLIC MMIO windows are mapped at. A real platform-init routine would
// resolve these from the device tree boot firmware hands off; that is
// out of this design's scope, so they are fixed at the QEMU virt
// machine's documented physical addresses, offset into the kernel
// direct map (spec §3 "KVA = PA + KernelDirectBase").
const (
	uartBase = riscv.KernelDirectBase + 0x10000000
	plicBase = riscv.KernelDirectBase + 0x0c000000
)

var bootedCount int32
var haltSpecificInit int32

func main() {
	bootHart()
}

// bootHart brings up hart 0: platform-wide init that must happen
// exactly once (memory, console, PLIC priorities, the process table),
// starts every other hart via the SBI HSM extension, then falls into
// this hart's own per-hart init and scheduler loop
// (original_source/os/main.c:bootcpu_init).
func bootHart() {
	cpu.Pin(cpu.ForHart(0))
	fmt.Println("=====\nHello World!\n=====")

	arena := make([]byte, physMemPages*mem.PGSIZE)
	mem.Physmem.Init(arena)
	vm.InitSwap(swapPages)

	dev := &uart8250.Uart_t{Base: uintptr(uartBase)}
	console.Init(dev)
	fmt.Println("UART inited.")

	plic.Base = uintptr(plicBase)
	plic.Init(qemuUartIRQ)
	trap.UartIRQ = qemuUartIRQ

	proc.ProcInit()
	proc.NewConsoleFd = console.NewFd
	registerApps()

	for hart := 1; hart < NCPU; hart++ {
		saved := atomic.LoadInt32(&bootedCount)
		ret := sbi.HartStart(uint64(hart), secondaryEntryAddr(), uint64(hart))
		if ret.Error < 0 {
			fmt.Printf("skipped hart %d\n", hart)
			continue
		}
		for atomic.LoadInt32(&bootedCount) == saved {
		}
	}
	fmt.Printf("System has %d cpus online\n", NCPU)

	haltInit(0)

	if _, err := proc.CreateKthread("init", initMain, 0); err != 0 {
		panic("kernel: failed to create init kthread")
	}

	atomic.StoreInt32(&haltSpecificInit, 1)

	fmt.Println("start scheduler!")
	proc.Scheduler()
	panic("kernel: scheduler returned")
}

// secondaryHart is the per-hart entry every non-boot hart resumes at
// after sbi.HartStart (original_source/os/main.c:secondarycpu_entry).
// It pins this hart's cpu.Cpu_t, announces itself, waits for the boot
// hart's platform-wide init to finish, then falls into the same
// per-hart init path bootHart used for hart 0.
func secondaryHart(hartid int) {
	cpu.Pin(cpu.ForHart(hartid))
	fmt.Printf("cpu %d booting\n", hartid)
	atomic.AddInt32(&bootedCount, 1)
	for atomic.LoadInt32(&haltSpecificInit) == 0 {
	}

	haltInit(hartid)

	fmt.Println("start scheduler!")
	proc.Scheduler()
	panic("kernel: scheduler returned")
}

// haltInit is the per-hart bring-up every hart, boot or secondary,
// performs on its own: point stvec at the kernel trap vector, then
// enable and unmask the UART source for this hart's PLIC supervisor
// context (original_source/os/main.c runs trap_init/plicinithart on
// both the boot and secondary paths).
func haltInit(hartid int) {
	trap.Init()
	plic.InitHart(hartid, qemuUartIRQ)
}

// secondaryEntryAddr stands in for the address OpenSBI jumps a started
// hart to. On real hardware this is the secondary entry point's linked
// symbol; like riscv.Swtch and the trap vectors, bringing a hart up at
// a bare physical address has no portable Go body (spec §1, boot
// assembly is an interface contract this design does not implement).
func secondaryEntryAddr() uint64 {
	panic("kernel: secondary hart entry requires boot assembly support")
}

const nWorkers = 8

// initMain is the kernel's first user-visible process: it spawns
// nWorkers worker kthreads and waits for each in turn, the same
// fork/wait demonstration original_source/os/main.c's init()/worker()
// run (spec §4.G "Wait and exit").
func initMain(arg uint64) {
	fmt.Println("kthread: init starts!")

	for _, app := range []string{"exit0", "hello", "spin"} {
		pid, err := proc.SpawnApp(app, nil)
		if err != 0 {
			panic("kernel: failed to spawn " + app)
		}
		cpid, code, err := proc.Wait(pid)
		if err != 0 {
			panic("kernel: wait on " + app + " failed")
		}
		fmt.Printf("app %q (pid %d) exited with code %d\n", app, cpid, code)
	}

	pids := make([]defs.Pid_t, nWorkers)
	for i := 0; i < nWorkers; i++ {
		pid, err := proc.CreateKthread("worker", worker, uint64(i))
		if err != 0 {
			panic("kernel: failed to create worker kthread")
		}
		pids[i] = pid
	}

	for i := 0; i < nWorkers; i++ {
		cpid, code, err := proc.Wait(pids[i])
		if err != 0 {
			panic("kernel: wait failed")
		}
		fmt.Printf("thread %d exited with code %d, expected %d\n", cpid, code, i+114514)
	}

	fmt.Println("kthread: init ends!")
	proc.Exit(0)
}

var workCount int64

// worker increments a shared counter a million times, yielding every
// hundredth increment, then exits with a distinctive code so initMain
// can confirm it collected the right child
// (original_source/os/main.c:worker).
func worker(id uint64) {
	for i := 0; i < 1000000; i++ {
		n := atomic.AddInt64(&workCount, 1)
		if n%100 == 0 {
			proc.Yield()
		}
	}
	proc.Exit(int(id) + 114514)
}
