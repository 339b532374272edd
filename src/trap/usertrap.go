package trap

import (
	"console"
	"cpu"
	"plic"
	"proc"
	"riscv"
	"scall"
	"vm"
)

// UartIRQ is the PLIC source number the UART is wired to on this
// board, set once by the boot sequence (spec §6's register layout
// note: QEMU and the SiFive board disagree on context numbering, not
// on IRQ numbering, so one value suffices for both).
var UartIRQ uint32

// UserTrap handles every trap taken while running user-mode code:
// syscalls, the three page-fault exceptions, misaligned/illegal
// exceptions (all fatal to the faulting process), and the supervisor
// timer (spec §4.F "User trap"; grounded on
// original_source/os/trap.c:usertrap).
func UserTrap() {
	setKernelTrap()

	p := proc.Current()
	tf := p.Tf()
	p.AcctEnterKernel()

	if riscv.RSstatus()&riscv.SSTATUS_SPP != 0 {
		fatalTrap("usertrap not entered from user mode", tf.Epc, riscv.RScause(), riscv.RStval())
	}

	cause := riscv.RScause()
	if cause&riscv.ScauseInterrupt != 0 {
		switch cause &^ riscv.ScauseInterrupt {
		case riscv.IntSupervisorTimer:
			armNextTick()
			if cpu.Current().Cpuid == 0 {
				tick()
			}
			proc.Yield()
		case riscv.IntSupervisorExternal:
			hart := cpu.Current().Cpuid
			if irq := plic.Claim(hart); irq != 0 {
				if irq == UartIRQ {
					console.HandleInterrupt()
				}
				plic.Complete(hart, irq)
			}
		default:
			unknownTrap(cause)
		}
	} else {
		switch cause {
		case riscv.ExcUserEnvCall:
			tf.Epc += 4
			scall.Dispatch(p)

		case riscv.ExcLoadPageFault, riscv.ExcStorePageFault, riscv.ExcInstructionPageFault:
			addr := riscv.RStval()
			pfCause := pageFaultCause(cause)
			if err := p.Mm.PageFault(addr, pfCause); err != 0 {
				p.Killed = true
			}

		case riscv.ExcStoreMisaligned, riscv.ExcInstrMisaligned, riscv.ExcLoadMisaligned:
			p.Killed = true

		case riscv.ExcIllegalInstruction:
			p.Killed = true

		default:
			unknownTrap(cause)
		}
	}

	if p.Killed {
		proc.Exit(-1)
	}

	userTrapRet()
}

// pageFaultCause translates a scause exception code into the
// load/store/fetch distinction vm.PageFault wants (it needs to know
// whether to set the dirty bit, not which scause value fired).
func pageFaultCause(cause uint64) uint64 {
	switch cause {
	case riscv.ExcStorePageFault:
		return vm.CauseStoreFault
	case riscv.ExcInstructionPageFault:
		return vm.CauseFetchFault
	default:
		return vm.CauseLoadFault
	}
}

func unknownTrap(cause uint64) {
	proc.Exit(-1)
}

// userTrapRet fills in the trapframe's kernel_* fields the trampoline
// needs to get back into supervisor mode on the next trap, then hands
// off to the trampoline's return path (spec §4.F "usertrapret";
// grounded on original_source/os/trap.c:usertrapret). trampolineReturn
// has no portable Go body, like riscv.Swtch; see trap.go.
func userTrapRet() {
	p := proc.Current()
	tf := p.Tf()
	p.AcctLeaveKernel()

	tf.KernelSatp = riscv.RSatp()
	tf.KernelSp = p.KStackTop()
	tf.KernelTrap = uint64(userTrapEntryAddr())
	tf.KernelHartid = cpu.Current().Hartid

	riscv.WSepc(tf.Epc)

	x := riscv.RSstatus()
	x &^= riscv.SSTATUS_SPP
	x |= riscv.SSTATUS_SPIE
	riscv.WSstatus(x)

	satp := riscv.MakeSatp(uint64(walkRoot(p)))
	stvec := (riscv.Trampoline + userVecOffset()) &^ 0x3

	trampolineReturn(satp, stvec)
}

// userTrapEntryAddr/walkRoot/userVecOffset stand in for address-of and
// linker-symbol computations a real trampoline implementation needs;
// see kernelTrapEntryAddr in trap.go for the same pattern.
func userTrapEntryAddr() uintptr {
	panic("trap: user trap vector address requires assembly support")
}

func userVecOffset() uint64 {
	panic("trap: uservec offset requires assembly support")
}

func walkRoot(p *proc.Proc_t) uintptr {
	return uintptr(p.Mm.Root)
}
