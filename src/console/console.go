// Package console implements the UART line discipline: an
// interrupt-driven 128-byte input ring buffer with Ctrl-U/DEL/Ctrl-D
// editing, an arbitrated transmit path, and the kernel-print priority
// lock that keeps panic output from interleaving with user writes
// (spec §4.H).
//
// Grounded on original_source/os/console.c for the line-discipline
// state machine (consintr/consputc/user_console_read/
// user_console_write) and spec §9's "Global kernel-print priority"
// note for the two-test-and-set-flag design, implemented with
// sync/atomic to match the teacher's lock-free-counter style in
// biscuit/src/stats. The register-level 8250 driver is an interface
// contract (spec §1): this package depends on a Dev UartDevice a
// platform init routine installs, never on raw MMIO offsets itself.
package console

import (
	"sync/atomic"

	"circbuf"
	"defs"
	"fd"
	"fdops"
	"lock"
	"proc"
	"sbi"
)

// UartDevice is the register-level contract a platform driver
// satisfies (spec §1: "the UART 8250 register-level driver" is out of
// scope for this design, left as an interface).
type UartDevice interface {
	Reset()
	EnableRxInterrupt()
	TxReady() bool
	PutByte(b byte)
	GetByte() (b byte, ok bool)
}

// Dev is installed once by the platform's boot sequence, before Init
// runs.
var Dev UartDevice

const inputBufSize = 128

// Cons_t pairs a raw circbuf.Circbuf_t with the read/write/edit
// cursors that turn it into a line-disciplined input buffer (spec
// §4.H: "the r/w/e indices live in console.Cons_t alongside the
// buffer"). r is the next byte a reader will consume, w bounds the
// committed region a reader may consume up to, and e bounds the
// region still being typed, invisible to readers until commit moves w
// up to it. original_source/os/console.c keeps this same triple
// directly on its global cons struct; here it travels with the buffer
// inside Cons_t instead.
type Cons_t struct {
	buf     circbuf.Circbuf_t
	r, w, e uint
}

func (cn *Cons_t) init(size int) {
	cn.buf.Init(size)
	cn.r, cn.w, cn.e = 0, 0, 0
}

// full reports whether the edit region has caught up to a full
// buffer's worth of unread data, the point at which
// original_source/os/console.c's consintr stops accepting further
// input until a reader drains some.
func (cn *Cons_t) full() bool {
	return cn.e-cn.r >= uint(cn.buf.Size())
}

// pushEdit appends c to the in-progress edit region.
func (cn *Cons_t) pushEdit(c byte) {
	cn.buf.Set(cn.e, c)
	cn.e++
}

// backspace removes the most recently typed, uncommitted byte, if
// any, reporting whether it removed one.
func (cn *Cons_t) backspace() bool {
	if cn.e == cn.w {
		return false
	}
	cn.e--
	return true
}

// commit moves the write cursor up to the edit cursor, making
// everything typed since the last commit visible to a reader.
func (cn *Cons_t) commit() {
	cn.w = cn.e
}

// hasLine reports whether there is committed, unread input.
func (cn *Cons_t) hasLine() bool {
	return cn.r != cn.w
}

// pop consumes and returns the next committed byte.
func (cn *Cons_t) pop() byte {
	c := cn.buf.At(cn.r)
	cn.r++
	return c
}

// unpop pushes the last popped byte back, used to leave a Ctrl-D
// marker in place for the next reader (original_source/os/console.c's
// "cons.r--" in console_read).
func (cn *Cons_t) unpop() {
	cn.r--
}

var (
	consLock lock.Spinlock_t
	input    Cons_t
)

// txLock serializes writers onto the UART's transmit path
// (original_source/os/console.c's uart_tx_lock), spec §5 lock-order
// position 7.
var txLock lock.Spinlock_t

// panicked and kprintBusy are the "two global test-and-set flags"
// spec §9 calls for: panicked, once set, is never cleared (a second
// hart observing it must back off forever); kprintBusy arbitrates
// ordinary kernel output against itself the same way txLock arbitrates
// user writes. Write takes AcquireKprint second, after txLock
// (spec §5: "console lock / transmit lock / kernel-print lock"); the
// trap package's fatal path takes it on its own, without txLock.
var panicked int32
var kprintBusy int32

func init() {
	consLock.Name = "cons"
	txLock.Name = "uart_tx"
}

// Init wires up Dev and resets the input buffer. Called once by hart
// 0 during platform bring-up (original_source/os/console.c:console_init).
func Init(dev UartDevice) {
	Dev = dev
	input.init(inputBufSize)
	Dev.Reset()
	Dev.EnableRxInterrupt()
}

// Panicked reports whether a hart has already entered the panic path;
// SetPanicked latches it permanently true.
func Panicked() bool { return atomic.LoadInt32(&panicked) != 0 }
func SetPanicked()   { atomic.StoreInt32(&panicked, 1) }

// AcquireKprint/ReleaseKprint bracket kernel output that must not
// interleave with another hart's kernel output or a user write (spec
// §4.H: "acquires the kernel-print priority lock"). It is a spin loop
// over a single word, not a queueing lock: kernel panic output is rare
// enough that fairness does not matter, only mutual exclusion.
func AcquireKprint() {
	for !atomic.CompareAndSwapInt32(&kprintBusy, 0, 1) {
	}
}

func ReleaseKprint() {
	atomic.StoreInt32(&kprintBusy, 0)
}

const backspaceCode = 0x100

// Putc emits one byte to the console, translating backspace/newline
// the way a real terminal expects (original_source/os/console.c:consputc).
// Before Dev is installed, or once the kernel has panicked, output
// falls back to the firmware's own console call so the operator still
// sees something even with interrupts and the UART driver untrusted.
func Putc(c int) {
	if Dev == nil || Panicked() {
		sbi.PutChar(c)
		return
	}
	switch c {
	case backspaceCode:
		uartPut('\b')
		uartPut(' ')
		uartPut('\b')
	case '\n':
		uartPut('\r')
		uartPut('\n')
	default:
		uartPut(byte(c))
	}
}

func uartPut(b byte) {
	for !Dev.TxReady() {
	}
	Dev.PutByte(b)
}

// DumpProcs/DumpMem are Ctrl-P/Ctrl-Q diagnostic hooks a platform's
// boot sequence installs once the process table and page allocator
// exist (original_source/os/console.c's print_procs/print_kpgmgr); a
// nil hook is simply ignored.
var DumpProcs func()
var DumpMem func()

const ctrlP = 'P' - '@'
const ctrlQ = 'Q' - '@'
const ctrlU = 'U' - '@'
const ctrlD = 'D' - '@'
const del = 0x7f

// HandleInterrupt drains every byte currently waiting in the UART's
// receive holding register into the line discipline. Called by the
// trap plane once per claimed UART interrupt (spec §4.F "Supervisor
// external": "claim from the platform interrupt controller, dispatch
// by IRQ number (UART), complete"); the drain loop itself mirrors
// original_source/os/console.c's uartgetc being polled until it
// returns -1 from inside the interrupt-driven receive path.
func HandleInterrupt() {
	if Dev == nil {
		return
	}
	for {
		c, ok := Dev.GetByte()
		if !ok {
			break
		}
		Intr(c)
	}
}

// Intr is the UART receive-interrupt handler: one input byte, routed
// through the line discipline (original_source/os/console.c:consintr).
func Intr(c byte) {
	consLock.Lock()
	defer consLock.Unlock()

	switch c {
	case ctrlP:
		if DumpProcs != nil {
			DumpProcs()
		}
	case ctrlQ:
		if DumpMem != nil {
			DumpMem()
		}
	case ctrlU:
		for input.backspace() {
			Putc(backspaceCode)
		}
	case del:
		if input.backspace() {
			Putc(backspaceCode)
		}
	default:
		if c == 0 || input.full() {
			return
		}
		if c == '\r' {
			c = '\n'
		}
		Putc(int(c))
		input.pushEdit(c)
		if c == '\n' || c == ctrlD || input.full() {
			input.commit()
			proc.Wakeup(&input)
		}
	}
}

// Read implements the read side of syscall #22 (user_console_read):
// block until a committed line exists, then copy it byte-by-byte into
// dst, stopping at newline or Ctrl-D (spec §4.H). Ctrl-D is left
// unconsumed in the buffer so the next call sees it again and returns
// 0 immediately, per original_source/os/console.c's "cons.r--".
func Read(dst []byte) (int, defs.Err_t) {
	consLock.Lock()
	defer consLock.Unlock()

	n := 0
	for n < len(dst) {
		for !input.hasLine() {
			proc.Sleep(&input, &consLock)
		}
		c := input.pop()
		if c == ctrlD {
			if n > 0 {
				input.unpop()
			}
			break
		}
		dst[n] = c
		n++
		if c == '\n' {
			break
		}
	}
	return n, 0
}

// Write implements the write side of syscall #23 (user_console_write):
// emit every byte of src under the transmit and kernel-print locks, in
// that order, so a user write is never split by a concurrent writer
// nor by the kernel's own panic output (spec §4.H, §5 lock order).
func Write(src []byte) (int, defs.Err_t) {
	txLock.Lock()
	AcquireKprint()
	for _, c := range src {
		Putc(int(c))
	}
	ReleaseKprint()
	txLock.Unlock()
	return len(src), 0
}

// ConsFops is the fdops.Fdops_i the console installs on every
// process's console descriptor at allocproc time (spec §4.H: syscalls
// #22/#23 dispatch through a single fd.Fd_t "whose fdops.Fdops_i
// implementation forwards to console.Read/console.Write"), letting
// scall's read/write handlers stay generic "read/write this fd" code
// instead of console-specific dispatch.
type ConsFops struct{}

// Read drains up to dst's remaining capacity from the console into a
// kernel-side buffer, then hands it to dst (a user-backed
// fdops.Userio_i, typically vm.Userbuf_t).
func (ConsFops) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	kbuf := make([]byte, dst.Remain())
	n, err := Read(kbuf)
	if err != 0 {
		return 0, err
	}
	return dst.Uiowrite(kbuf[:n])
}

// Write pulls src's remaining bytes into a kernel-side buffer, then
// writes them to the console.
func (ConsFops) Write(src fdops.Userio_i) (int, defs.Err_t) {
	kbuf := make([]byte, src.Remain())
	n, err := src.Uioread(kbuf)
	if err != 0 {
		return 0, err
	}
	return Write(kbuf[:n])
}

// Close and Reopen are no-ops: the console is a singleton device, not
// a per-open resource, so closing or duplicating a console descriptor
// never changes anything observable.
func (ConsFops) Close() defs.Err_t  { return 0 }
func (ConsFops) Reopen() defs.Err_t { return 0 }

// NewFd builds a console descriptor open for both read and write, the
// one every process's allocproc call installs (spec §4.H: "opened for
// every process at allocproc time").
func NewFd() *fd.Fd_t {
	return &fd.Fd_t{Fops: ConsFops{}, Perms: fd.FD_READ | fd.FD_WRITE}
}
