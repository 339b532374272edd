// Package uart8250 drives the 16550-compatible UART this kernel's
// console console.UartDevice contract runs over (spec §1 "UART
// controller MMIO", §6 "Platform interrupt controller MMIO" register
// layout note).
//
// Grounded on original_source/os/console.c's set_reg/read_reg/
// uart_putchar/uartgetc and the register names it reads and writes
// (THR, RHR, IER, FCR, LSR); the retrieved header set names those
// registers but never gives their numeric offsets, so the offsets
// below are the standard NS16550A layout every 16550-compatible part
// shares. The on-board byte-vs-word register stride switch mirrors
// original_source/os/console.c's set_reg/read_reg on_vf2_board branch
// (plic.OnBoard is the same switch for the interrupt controller); the
// unsafe.Pointer MMIO-accessor idiom follows plic.go's reg32, since
// this tree has no teacher Go driver for a memory-mapped UART to
// imitate instead.
package uart8250

import "unsafe"

// Register offsets, byte-stride (QEMU virt machine).
const (
	rhrOff = 0 // receiver holding register (read)
	thrOff = 0 // transmitter holding register (write)
	ierOff = 1 // interrupt enable register
	fcrOff = 2 // FIFO control register
	lsrOff = 5 // line status register
)

const (
	ierRxEnable   = 0x01
	fcrFifoEnable = 0x01
	fcrFifoClear  = 0x06
	lsrRxReady    = 0x01
	lsrTxIdle     = 0x20
)

// Uart_t is one 16550-compatible UART's MMIO window.
type Uart_t struct {
	Base uintptr

	// OnBoard selects the VisionFive 2 board's word-register stride
	// (each register occupies a 4-byte-aligned 32-bit word) instead
	// of QEMU's packed byte-register layout, mirroring plic.OnBoard.
	OnBoard bool
}

func stride(reg uintptr, onBoard bool) uintptr {
	if onBoard {
		return reg << 2
	}
	return reg
}

func (u *Uart_t) writeReg(off uintptr, val uint32) {
	addr := u.Base + stride(off, u.OnBoard)
	if u.OnBoard {
		*(*uint32)(unsafe.Pointer(addr)) = val
	} else {
		*(*uint8)(unsafe.Pointer(addr)) = uint8(val)
	}
}

func (u *Uart_t) readReg(off uintptr) uint32 {
	addr := u.Base + stride(off, u.OnBoard)
	if u.OnBoard {
		return *(*uint32)(unsafe.Pointer(addr))
	}
	return uint32(*(*uint8)(unsafe.Pointer(addr)))
}

// Reset disables interrupts and resets/enables the FIFOs
// (original_source/os/console.c:console_init, minus the "already
// inited by OpenSBI" baud-rate step this kernel never performs
// either).
func (u *Uart_t) Reset() {
	u.writeReg(ierOff, 0)
	u.writeReg(fcrOff, fcrFifoEnable|fcrFifoClear)
}

// EnableRxInterrupt turns on receive-data-available interrupts.
func (u *Uart_t) EnableRxInterrupt() {
	u.writeReg(ierOff, ierRxEnable)
}

// TxReady reports whether the transmit holding register is empty.
func (u *Uart_t) TxReady() bool {
	return u.readReg(lsrOff)&lsrTxIdle != 0
}

// PutByte writes one byte to the transmit holding register. The
// caller must have already confirmed TxReady.
func (u *Uart_t) PutByte(b byte) {
	u.writeReg(thrOff, uint32(b))
}

// GetByte returns the next received byte, or ok=false if none is
// waiting (original_source/os/console.c:uartgetc).
func (u *Uart_t) GetByte() (b byte, ok bool) {
	if u.readReg(lsrOff)&lsrRxReady == 0 {
		return 0, false
	}
	return byte(u.readReg(rhrOff)), true
}
