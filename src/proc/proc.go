// Package proc implements the process table, scheduler, sleep/wake
// channel, and process lifecycle (fork/exec/wait/exit/kill) of spec
// §4.G. There is no teacher source to port from: the retrieved
// biscuit/src/proc module is a bare go.mod with no code behind it.
// The shape below is grounded directly on original_source/os/proc.c
// (allocproc/freeproc, sleep/wakeup, wait/exit's reparenting and
// global wait-lock protocol) and expressed in the Go idiom the rest of
// this tree already established: a lock.Spinlock_t embedded on the
// guarded struct (vm.Vmmap_t's style), and the killed/doomed flag
// shape of the teacher's tinfo.Tnote_t collapsed onto Proc_t directly,
// since this kernel gives each process exactly one thread of control.
package proc

import (
	"unsafe"

	"accnt"
	"cpu"
	"defs"
	"fd"
	"lock"
	"mem"
	"riscv"
	"vm"
)

// NPROC bounds the process table (spec §4.G "a fixed-size pool of
// process slots allocated from the slab allocator at boot").
const NPROC = 64

// state_t is a process's position in its lifecycle.
type state_t int

const (
	UNUSED state_t = iota
	USED
	SLEEPING
	RUNNABLE
	RUNNING
	ZOMBIE
)

// procPod_t is the plain-old-data portion of a process slot: every
// field is a scalar or a scalar-only struct, with no Go pointer,
// interface, func, or string anywhere in it. That makes it safe to
// carve out of Physmem's arena through procSlab (spec §4.G "Table and
// allocation": "a fixed-size pool of process slots allocated from the
// slab allocator at boot") instead of the ordinary Go heap: the
// garbage collector never has to see through a pointer living inside
// slab memory, since there isn't one. Proc_t embeds one by pointer;
// every field of Proc_t the collector does need to see through (Mm,
// ConsoleFd, KernelEntry, SleepChan, Name) stays in Proc_t itself,
// ordinary Go-managed memory.
type procPod_t struct {
	Index    int
	Pid      defs.Pid_t
	Ppid     defs.Pid_t
	State    state_t
	Killed   bool
	ExitCode int

	Context riscv.Context_t

	// TfPA/KStackPA are allocated once at boot and never freed: every
	// slot keeps its trapframe and kernel-stack pages for the life of
	// the kernel image, matching the original's per-slot kalloc at
	// proc_init time.
	TfPA     mem.Pa_t
	KStackPA mem.Pa_t

	// Acct is this process's user/system CPU time (spec §4.G: "each
	// process carries an accnt.Accnt_t"). kernelEnteredAt is the
	// timestamp of the most recent user->kernel transition, used to
	// attribute the interval since then to user time on the way back
	// out; it is zero while the process has never yet trapped from
	// user mode (its first schedule, via CreateKthread/exec's initial
	// run, never charges user time for time before that).
	Acct            accnt.Accnt_t
	kernelEnteredAt int64
}

// procSlab backs every slot's procPod_t (spec §4.G "Table and
// allocation"). Sized and populated once by ProcInit.
var procSlab mem.Slab_t

// Proc_t is one process (and its single thread of control). Every
// field promoted from procPod_t (State, Killed, ExitCode, Context) is
// guarded by the embedded process lock, same as SleepChan below; Mm
// has its own lock and is only ever read or swapped under the process
// lock (exec installs a new one atomically).
type Proc_t struct {
	lock.Spinlock_t

	*procPod_t

	Name string

	SleepChan interface{}

	Mm *vm.Vmmap_t

	// KernelEntry/KernelArg are set only for kernel threads created by
	// CreateKthread; see firstSchedRet in sched.go.
	KernelEntry func(uint64)
	KernelArg   uint64

	// ConsoleFd is the descriptor scall's read/write handlers dispatch
	// through (spec §4.H: "opened for every process at allocproc
	// time"). Installed by NewConsoleFd, a hook the boot sequence sets
	// so this package never has to import console directly (console
	// already imports proc for Sleep/Wakeup).
	ConsoleFd *fd.Fd_t
}

// AcctEnterKernel charges the time since the last kernel exit to user
// time (nothing on the first call), and records now as the start of a
// kernel-mode interval. Called once at the top of every user trap
// (spec §4.F "User trap"; original_source/os/trap.c does not track
// accounting itself, but spec §4.G requires the field to exist and be
// updated from the trap plane).
func (p *Proc_t) AcctEnterKernel() {
	now := p.Acct.Now()
	if p.kernelEnteredAt != 0 {
		p.Acct.Utadd(now - int(p.kernelEnteredAt))
	}
	p.kernelEnteredAt = int64(now)
}

// AcctLeaveKernel charges the time since AcctEnterKernel to system
// time, on the way back to user mode.
func (p *Proc_t) AcctLeaveKernel() {
	now := p.Acct.Now()
	p.Acct.Systadd(now - int(p.kernelEnteredAt))
	p.kernelEnteredAt = int64(now)
}

// NewConsoleFd builds the descriptor installed on every freshly
// allocated process. Set once by the boot sequence to console.NewFd;
// left nil in any hosted test that never calls Allocproc.
var NewConsoleFd func() *fd.Fd_t

// Tf returns this process's trapframe, viewed through the kernel
// direct map (spec §3 "Page table": "KVA = PA + KernelDirectBase").
func (p *Proc_t) Tf() *riscv.Trapframe_t {
	pg := mem.Physmem.Dmap(p.TfPA)
	return (*riscv.Trapframe_t)(unsafe.Pointer(pg))
}

// KStackTop is the initial stack pointer for a freshly allocated
// process: the kernel stack page's direct-mapped top.
func (p *Proc_t) KStackTop() uint64 {
	return riscv.KernelDirectBase + uint64(p.KStackPA) + riscv.PGSIZE
}

var table [NPROC]*Proc_t

var pidLock lock.Spinlock_t
var nextPid defs.Pid_t = 1

var waitLock lock.Spinlock_t

// InitProc is the process orphaned children are reparented to (spec
// §4.G "Wait and exit"). Allocproc defaults it to whichever process is
// created first; the boot sequence overrides it with SetInitProc once
// the real "init" user process has been exec'd, mirroring
// original_source/os/loader.c:load_init_app re-assigning init_proc
// after proc.c:allocproc already set it once.
var InitProc *Proc_t

// SetInitProc overrides InitProc. Called once by the boot sequence.
func SetInitProc(p *Proc_t) {
	InitProc = p
}

// ProcInit carves every process slot's procPod_t out of procSlab,
// allocates its trapframe and kernel-stack page up front, and wires
// the swap subsystem's victim-selection callback to this table (spec
// §4.G "Table and allocation"). Must run after mem.Physmem.Init and
// before any process is created.
func ProcInit() {
	podSize := int(unsafe.Sizeof(procPod_t{}))
	if err := procSlab.Init(mem.Physmem, "proc", podSize, NPROC); err != 0 {
		panic("proc: out of memory initialising process-slot slab")
	}

	for i := range table {
		podBytes, err := procSlab.Alloc()
		if err != 0 {
			panic("proc: out of memory initialising process table")
		}
		pod := (*procPod_t)(unsafe.Pointer(&podBytes[0]))
		*pod = procPod_t{Index: i, State: UNUSED}

		p := &Proc_t{procPod_t: pod}
		p.Spinlock_t.Name = "proc"

		tfpa, ok := mem.Physmem.Alloc()
		if !ok {
			panic("proc: out of memory initialising process table")
		}
		pod.TfPA = tfpa

		kpa, ok := mem.Physmem.Alloc()
		if !ok {
			panic("proc: out of memory initialising process table")
		}
		pod.KStackPA = kpa

		table[i] = p
	}
	schedInit()
	vm.RegisterVictimSource(victimSource)
}

func allocpid() defs.Pid_t {
	pidLock.Lock()
	pid := nextPid
	nextPid++
	pidLock.Unlock()
	return pid
}

// Allocproc scans the table for an UNUSED slot, marks it USED with a
// freshly allocated pid, and returns it with its lock held (mirroring
// original_source/os/proc.c:allocproc, which returns with p->lock
// held so the caller can finish initialising the slot before anyone
// else observes it). Returns nil if the table is full.
func Allocproc() *Proc_t {
	for _, p := range table {
		p.Lock()
		if p.State == UNUSED {
			p.Pid = allocpid()
			p.State = USED
			p.Killed = false
			p.SleepChan = nil
			p.Ppid = 0
			p.ExitCode = 0
			p.Context = riscv.Context_t{}
			p.Acct = accnt.Accnt_t{}
			p.kernelEnteredAt = 0
			if NewConsoleFd != nil {
				p.ConsoleFd = NewConsoleFd()
			}
			if InitProc == nil {
				InitProc = p
			}
			return p
		}
		p.Unlock()
	}
	return nil
}

// freeproc resets p to UNUSED. The caller must hold p's lock and must
// have already torn down p.Mm.
func freeproc(p *Proc_t) {
	if p.ConsoleFd != nil {
		fd.Close_panic(p.ConsoleFd)
		p.ConsoleFd = nil
	}
	p.State = UNUSED
	p.Pid = 0
	p.Ppid = 0
	p.ExitCode = 0
	p.SleepChan = nil
	p.Killed = false
	p.Mm = nil
}

// Current returns the process running on this hart. Panics if the
// scheduler loop itself (not a process) is running here.
func Current() *Proc_t {
	c := cpu.Current()
	if c.Proc == nil {
		panic("proc: hart is not running a process")
	}
	return c.Proc.(*Proc_t)
}

// victimSource implements vm.RegisterVictimSource: every other
// process's memory map is a candidate for swap-out scanning. Reading
// State/Mm here without the process lock mirrors the same
// best-effort, no-cross-lock discipline swap.go's own victim walk
// uses when it rewrites a victim's PTE without that map's lock (spec
// §4.E does not require exact victim selection, only that one is
// found); acquiring another process's lock here while potentially
// already holding the faulting process's memory-map lock would also
// invert the total lock order of spec §5 (process lock before
// memory-map lock, never the reverse).
func victimSource(exclude *vm.Vmmap_t) []*vm.Vmmap_t {
	var out []*vm.Vmmap_t
	for _, p := range table {
		switch p.State {
		case RUNNABLE, RUNNING, SLEEPING:
		default:
			continue
		}
		if p.Mm != nil && p.Mm != exclude {
			out = append(out, p.Mm)
		}
	}
	return out
}
