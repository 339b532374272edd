package proc

import (
	"cpu"
	"lock"
	"riscv"
	"stats"
)

// schedStats counts context switches (spec §4.G), compiled away
// entirely when stats.Stats is false.
var schedStats struct {
	Switches stats.Counter_t
}

// runq is the single shared run queue every hart's scheduler loop
// pulls from (spec §4.G "Run queue and scheduler": "add_task/pop_task
// with FIFO semantics").
var (
	runqLock lock.Spinlock_t
	runq     []*Proc_t
)

func schedInit() {
	runqLock.Name = "runq"
}

func addTask(p *Proc_t) {
	runqLock.Lock()
	runq = append(runq, p)
	runqLock.Unlock()
}

func popTask() (*Proc_t, bool) {
	runqLock.Lock()
	defer runqLock.Unlock()
	if len(runq) == 0 {
		return nil, false
	}
	p := runq[0]
	runq = runq[1:]
	return p, true
}

// Scheduler runs forever on the calling hart: pop a RUNNABLE process,
// mark it RUNNING, and context-switch into it. When control returns
// here (the process yielded, slept, or exited), the process's own
// code has already set its new state and still holds its lock, which
// the loop releases; the loop does nothing else with it (spec §4.G "Run queue and
// scheduler": "examine its new state and do nothing else at the
// scheduler-loop layer").
func Scheduler() {
	c := cpu.Current()
	for {
		p, ok := popTask()
		if !ok {
			continue
		}
		p.Lock()
		if p.State != RUNNABLE {
			p.Unlock()
			continue
		}
		p.State = RUNNING
		c.Proc = p
		schedStats.Switches.Inc()
		riscv.Swtch(&c.Sched, &p.Context)
		c.Proc = nil
		p.Unlock()
	}
}

// sched switches the current process out to this hart's scheduler
// loop. The caller must already hold the current process's lock and
// no other lock, and must have set the process's new state away from
// RUNNING before calling (spec §5 "Suspension points": "holding a
// spin lock across any of (a)-(c) is forbidden" except the process's
// own lock).
func sched() {
	p := Current()
	if !p.Holding() {
		panic("proc: sched without process lock held")
	}
	if cpu.Current().Ncli != 1 {
		panic("proc: sched with additional locks held")
	}
	if p.State == RUNNING {
		panic("proc: sched of a still-running process")
	}
	riscv.Swtch(&p.Context, &cpu.Current().Sched)
}

// Yield gives up the hart voluntarily, re-enqueuing the caller as
// RUNNABLE (syscall #11).
func Yield() {
	p := Current()
	p.Lock()
	p.State = RUNNABLE
	addTask(p)
	sched()
	p.Unlock()
}

// Sleep puts the current process to sleep on channel, atomically with
// respect to wakeup, by acquiring the process lock before releasing
// lk (spec §4.G "sleep/wake channel", steps 1-5 verbatim).
func Sleep(channel interface{}, lk *lock.Spinlock_t) {
	p := Current()
	p.Lock()
	lk.Unlock()

	p.SleepChan = channel
	p.State = SLEEPING

	sched()

	p.SleepChan = nil
	p.Unlock()
	lk.Lock()
}

// Wakeup makes every SLEEPING process waiting on channel RUNNABLE and
// enqueues it. Correctness relies on the caller of Sleep having
// already acquired the lock that guards the condition being
// signalled, per spec §4.G.
func Wakeup(channel interface{}) {
	for _, p := range table {
		p.Lock()
		if p.State == SLEEPING && p.SleepChan == channel {
			p.State = RUNNABLE
			addTask(p)
		}
		p.Unlock()
	}
}

// firstSchedRet is what a freshly created process's Context.Ra would
// point to on real hardware: the scheduler switches into a process
// for the first time holding that process's lock (mirroring
// Scheduler's p.Lock() above), so the very first thing the process
// must do upon resuming is release it, then either fall into
// usertrapret (user processes, via the trampoline) or call its
// kernel-thread entry point directly. riscv.Swtch has no executable
// body in this tree (see riscv.go), so this function documents the
// contract rather than ever running; CreateKthread still performs the
// setup its caller would need once Swtch exists.
func firstSchedRet(p *Proc_t) {
	p.Unlock()
	riscv.IntrOn()
	if p.KernelEntry != nil {
		p.KernelEntry(p.KernelArg)
		panic("proc: kernel thread entry returned; call Exit instead")
	}
}
