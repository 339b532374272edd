package trap

import (
	"lock"
	"proc"
	"riscv"
	"sbi"
	"stats"
)

// timerStats counts timer ticks taken (spec §4.F), compiled away
// entirely when stats.Stats is false.
var timerStats struct {
	Ticks stats.Counter_t
}

// tickInterval is the number of mtime cycles between supervisor-timer
// interrupts. The exact figure is a platform tuning knob spec.md
// leaves unspecified ("arm the next tick"); original_source/os/timer.c
// is not in the retrieved source set, so this picks a figure typical
// of the board's clock (10ms at a 1MHz mtime rate) rather than
// inventing a number with no grounding at all.
const tickInterval = 10000

// ticksLock is the dedicated "tick lock" named in spec §5's total lock
// order (position 8, the last lock in the order): it guards ticks,
// the global counter user-trap's timer path increments and sleep(n)
// blocks against.
var ticksLock lock.Spinlock_t
var ticks uint64

func init() {
	ticksLock.Name = "ticks"
}

// armNextTick schedules the next supervisor-timer interrupt
// tickInterval cycles from now (spec §4.F "arm the next tick").
func armNextTick() {
	sbi.SetTimer(riscv.RTime() + tickInterval)
}

// tick is called once per supervisor-timer interrupt taken on hart 0's
// user-trap path (spec §4.F: "if this hart is hart 0 ... increment a
// global ticks and wake sleepers blocked on the ticks channel").
func tick() {
	ticksLock.Lock()
	ticks++
	ticksLock.Unlock()
	timerStats.Ticks.Inc()
	proc.Wakeup(&ticks)
}

// Ticks returns the current tick count, used by a gettimeofday-style
// syscall and by SleepTicks's deadline math.
func Ticks() uint64 {
	ticksLock.Lock()
	defer ticksLock.Unlock()
	return ticks
}

// SleepTicks blocks the calling process for n ticks (syscall #10:
// "sleeps n ticks on the global ticks channel", spec §6). It re-checks
// the deadline every time it wakes, since a spurious wakeup on the
// shared ticks channel is possible whenever any process sleeps on it.
func SleepTicks(n uint64) {
	if n == 0 {
		return
	}
	ticksLock.Lock()
	deadline := ticks + n
	for ticks < deadline {
		proc.Sleep(&ticks, &ticksLock)
	}
	ticksLock.Unlock()
}
