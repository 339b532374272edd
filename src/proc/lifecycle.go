package proc

import (
	"defs"
	"elf"
	"hashtable"
	"riscv"
	"util"
	"vm"
)

// appTable maps an application name to its in-memory ELF image,
// populated once at boot by whatever embeds the built-in binaries
// (spec §4.G "Exec": "Resolve the binary by name from the built-in
// application table"), grounded on original_source/os/loader.c's
// user_apps table and get_elf lookup.
var appTable = hashtable.MkHash(32)

// RegisterApp installs name's ELF image into the built-in application
// table. Called at boot, once per embedded binary.
func RegisterApp(name string, image []byte) {
	appTable.Set(name, image)
}

func lookupApp(name string) ([]byte, bool) {
	v, ok := appTable.Get(name)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// CreateKthread allocates a process slot for a kernel thread running
// entry(arg), with no memory map of its own (spec §4.G "Table and
// allocation": "calls the kernel-thread entry with saved arguments
// for kernel threads"), grounded on
// original_source/os/proc.c:create_kthread.
func CreateKthread(name string, entry func(uint64), arg uint64) (defs.Pid_t, defs.Err_t) {
	p := Allocproc()
	if p == nil {
		return 0, -defs.ENOMEM
	}
	p.Name = name
	p.KernelEntry = entry
	p.KernelArg = arg
	p.Context.Sp = p.KStackTop()
	if InitProc != p {
		p.Ppid = InitProc.Pid
	}
	p.State = RUNNABLE
	pid := p.Pid
	addTask(p)
	p.Unlock()
	return pid, 0
}

// Fork duplicates parent into a new process: a fresh memory map
// copying every present page of parent's, a cloned trapframe with the
// child's a0 forced to 0, marked RUNNABLE (spec §4.G "Fork"). On any
// failure the child slot is fully unwound and parent is left
// untouched.
func Fork(parent *Proc_t) (defs.Pid_t, defs.Err_t) {
	child := Allocproc()
	if child == nil {
		return 0, -defs.ENOMEM
	}

	mm, err := vm.MmCreate(child.TfPA)
	if err != 0 {
		freeproc(child)
		child.Unlock()
		return 0, err
	}

	parent.Mm.Lock()
	cerr := mm.MmCopy(parent.Mm)
	parent.Mm.Unlock()
	if cerr != 0 {
		mm.Lock()
		mm.MmFree()
		freeproc(child)
		child.Unlock()
		return 0, cerr
	}

	child.Mm = mm
	child.Name = parent.Name
	child.Ppid = parent.Pid
	*child.Tf() = *parent.Tf()
	child.Tf().A0 = 0
	child.Context.Sp = child.KStackTop()

	child.State = RUNNABLE
	pid := child.Pid
	addTask(child)
	child.Unlock()
	return pid, 0
}

// Exec replaces the calling process's memory map with a fresh one
// built from name's ELF image: lazy file-backed VMAs for every
// PT_LOAD, an initially empty brk VMA above the highest load segment,
// and a user stack VMA with argv pushed onto it (spec §4.G "Exec";
// segment/stack layout grounded on original_source/os/loader.c, made
// lazy instead of eagerly copied per the demand-paging scheme this
// design uses throughout). Only after every allocation succeeds is
// the process's map swapped; on failure the old map is untouched.
func Exec(p *Proc_t, name string, argv []string) defs.Err_t {
	image, ok := lookupApp(name)
	if !ok {
		return -defs.ENOENT
	}
	img, err := elf.Load(image)
	if err != 0 {
		return err
	}

	mm, err := vm.MmCreate(p.TfPA)
	if err != 0 {
		return err
	}

	for _, seg := range img.Segments {
		start := seg.Vaddr
		end := util.Roundup(seg.Vaddr+seg.Memsz, uint64(riscv.PGSIZE))
		if _, err := mm.MmMappages(start, end, seg.Perms, true, image, seg.Off, seg.Filesz); err != 0 {
			mm.Lock()
			mm.MmFree()
			return err
		}
	}

	brk, err := mm.MmMappages(img.MaxVaEnd, img.MaxVaEnd, riscv.PTE_R|riscv.PTE_W|riscv.PTE_U, false, nil, 0, 0)
	if err != 0 {
		mm.Lock()
		mm.MmFree()
		return err
	}
	mm.Brk = brk

	ustackEnd := riscv.UstackTop
	ustackStart := ustackEnd - ustackSize
	if _, err := mm.MmMappages(ustackStart, ustackEnd, riscv.PTE_R|riscv.PTE_W|riscv.PTE_U, false, nil, 0, 0); err != 0 {
		mm.Lock()
		mm.MmFree()
		return err
	}

	sp, uargv, argc, err := pushArgv(mm, ustackEnd, argv)
	if err != 0 {
		mm.Lock()
		mm.MmFree()
		return err
	}

	old := p.Mm
	p.Mm = mm
	tf := p.Tf()
	tf.Sp = sp
	tf.Epc = img.Entry
	tf.A0 = uint64(argc)
	tf.A1 = uargv

	if old != nil {
		old.Lock()
		old.MmFree()
	}
	return 0
}

// SpawnApp allocates a fresh process slot and execs name into it
// directly, with no parent memory map to fork from. This is how the
// very first processes enter the system: kmain's init kthread has no
// Mm of its own to Fork (spec §4.G "Table and allocation" draws no
// process tree edge for kernel threads), so the built-in application
// table needs an entry point that bootstraps a runnable process from
// nothing rather than duplicating an existing one, the same gap
// original_source/os/proc.c leaves to its own userinit-equivalent
// rather than routing through create_kthread or fork.
func SpawnApp(name string, argv []string) (defs.Pid_t, defs.Err_t) {
	p := Allocproc()
	if p == nil {
		return 0, -defs.ENOMEM
	}

	p.Name = name
	if InitProc != p {
		p.Ppid = InitProc.Pid
	}

	if err := Exec(p, name, argv); err != 0 {
		freeproc(p)
		p.Unlock()
		return 0, err
	}

	p.Context.Sp = p.KStackTop()
	p.State = RUNNABLE
	pid := p.Pid
	addTask(p)
	p.Unlock()
	return pid, 0
}

// ustackSize is the fixed size of every process's user stack VMA
// (spec §6 "User memory layout": "user stack VMA grows down from a
// fixed USTACK_START").
const ustackSize = 16 * riscv.PGSIZE

// pushArgv copies argv's strings onto the top of the stack VMA and
// builds the argv pointer array below them, 8-byte aligning each
// string push and leaving the final stack pointer 16-byte aligned
// (spec §4.G "Exec"). It drives the VMA's demand paging transparently
// through mm.CopyToUser.
func pushArgv(mm *vm.Vmmap_t, ustackTop uint64, argv []string) (sp uint64, uargvPtr uint64, argc int, reterr defs.Err_t) {
	sp = ustackTop
	ptrs := make([]uint64, len(argv))
	for i, a := range argv {
		n := uint64(len(a) + 1)
		sp -= n
		sp = util.Rounddown(sp, 8)
		buf := make([]byte, n)
		copy(buf, a)
		if err := mm.CopyToUser(sp, buf); err != 0 {
			return 0, 0, 0, err
		}
		ptrs[i] = sp
	}

	sp -= 8 // NULL terminator slot
	for i := len(ptrs) - 1; i >= 0; i-- {
		sp -= 8
		var word [8]byte
		putLE64(word[:], ptrs[i])
		if err := mm.CopyToUser(sp, word[:]); err != 0 {
			return 0, 0, 0, err
		}
	}
	uargvPtr = sp
	sp = util.Rounddown(sp, 16)
	return sp, uargvPtr, len(argv), 0
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

// Wait scans for an exited child matching pid (or any child if
// pid <= 0); on a hit it frees the child slot and returns its exit
// code. If the caller has children but none have exited, it sleeps on
// itself as the channel until exit() wakes it (spec §4.G "Wait and
// exit"; grounded on original_source/os/proc.c:wait).
func Wait(pid defs.Pid_t) (defs.Pid_t, int, defs.Err_t) {
	return waitAs(Current(), pid)
}

// waitAs does Wait's work for an explicit calling process, so that the
// reaping and reparenting bookkeeping can be driven directly by a test
// without going through cpu.Current (which requires a hart-pinned
// goroutine this tree has no portable way to set up).
func waitAs(p *Proc_t, pid defs.Pid_t) (defs.Pid_t, int, defs.Err_t) {
	waitLock.Lock()
	for {
		havekids := false
		for _, child := range table {
			if child == p {
				continue
			}
			child.Lock()
			if child.Ppid == p.Pid {
				havekids = true
				if child.State == ZOMBIE && (pid <= 0 || child.Pid == pid) {
					cpid := child.Pid
					code := child.ExitCode
					freeproc(child)
					child.Unlock()
					waitLock.Unlock()
					return cpid, code, 0
				}
			}
			child.Unlock()
		}
		if !havekids || p.Killed {
			waitLock.Unlock()
			return 0, 0, -defs.ECHILD
		}
		Sleep(p, &waitLock)
	}
}

func byPid(pid defs.Pid_t) *Proc_t {
	for _, p := range table {
		if p.State != UNUSED && p.Pid == pid {
			return p
		}
	}
	return nil
}

// Exit tears down the calling process's memory map, reparents its
// children to init (waking init so it may reap zombies), wakes its
// own parent, and switches away as a ZOMBIE holding exit_code (spec
// §4.G "Wait and exit"; grounded on
// original_source/os/proc.c:exit). Never returns.
func Exit(code int) {
	p := Current()
	if p == InitProc {
		panic("proc: init process exited")
	}

	if p.Mm != nil {
		p.Mm.Lock()
		p.Mm.MmFree()
	}

	waitLock.Lock()

	wakeinit := false
	for _, child := range table {
		if child == p {
			continue
		}
		child.Lock()
		if child.State != UNUSED && child.Ppid == p.Pid {
			child.Ppid = InitProc.Pid
			wakeinit = true
		}
		child.Unlock()
	}
	if wakeinit {
		Wakeup(InitProc)
	}
	if parent := byPid(p.Ppid); parent != nil {
		Wakeup(parent)
	}

	p.Lock()
	p.ExitCode = code
	p.State = ZOMBIE
	waitLock.Unlock()

	sched()
	panic("proc: exit returned")
}

// Kill marks pid killed; if it is currently SLEEPING it is made
// RUNNABLE and enqueued so it observes the mark at its next
// syscall/trap boundary (spec §4.G "Kill"). Returns -ESRCH if no such
// process exists.
func Kill(pid defs.Pid_t) defs.Err_t {
	for _, p := range table {
		p.Lock()
		if p.State != UNUSED && p.Pid == pid {
			p.Killed = true
			if p.State == SLEEPING {
				p.State = RUNNABLE
				addTask(p)
			}
			p.Unlock()
			return 0
		}
		p.Unlock()
	}
	return -defs.ESRCH
}
