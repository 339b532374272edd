// Package sbi declares the boot-firmware (OpenSBI) call surface this
// kernel runs on top of. Per spec §1 these calls are an interface
// contract the core design does not implement: the machine-mode
// supervisor environment that backs them (ecall-based SBI) is
// boot-firmware's job, not the kernel's.
package sbi

// Ret mirrors the two-word {error, value} result SBI calls return.
type Ret struct {
	Error int64
	Value int64
}

// PutChar writes one byte to the firmware console.
func PutChar(c int) { sbiUnimplemented("sbi_putchar") }

// Shutdown powers the machine off and never returns.
func Shutdown() { sbiUnimplemented("sbi_shutdown") }

// SetTimer arms the next supervisor-timer interrupt to fire at the
// given absolute mtime value.
func SetTimer(stime uint64) { sbiUnimplemented("sbi_set_timer") }

// HartStart asks the firmware to start the given hart executing at
// startAddr with a1 = arg.
func HartStart(hartid, startAddr, arg uint64) Ret {
	sbiUnimplemented("sbi_hart_start")
	return Ret{}
}

// GetMvendorid/GetMimpid query the machine vendor/implementation id,
// used for platform-variant dispatch (e.g. 8250 register stride).
func GetMvendorid() uint64 { sbiUnimplemented("sbi_get_mvendorid"); return 0 }
func GetMimpid() uint64    { sbiUnimplemented("sbi_get_mimpid"); return 0 }

func sbiUnimplemented(name string) {
	panic("sbi: " + name + " requires the firmware ecall trampoline")
}
