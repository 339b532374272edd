// Package scall implements the closed syscall table (spec §4.I):
// argument marshalling out of the trapframe and a memory map, dispatch
// by number, and the single 64-bit return value written back to a0.
//
// Grounded on original_source/os/syscall.c for the dispatch switch and
// each handler's argument marshalling (sys_exec's path/argv copy loop,
// sys_wait's optional status pointer, sys_sbrk's brk-VMA remap), with
// the user-copy idiom taken from biscuit/src/vm/as.go's
// Userreadn/Userstr (here vm.Vmmap_t's CopyFromUser/CopyToUser/
// CopyStrFromUser).
package scall

import (
	"defs"
	"proc"
	"riscv"
	"stats"
	"trap"
	"util"
	"vm"
)

// callStats counts syscall dispatches (spec §4.I), compiled away
// entirely when stats.Stats is false.
var callStats struct {
	Calls stats.Counter_t
}

const (
	sysFork    = 1
	sysExec    = 2
	sysExit    = 3
	sysWait    = 4
	sysGetpid  = 5
	sysGetppid = 6

	sysSleep = 10
	sysYield = 11

	sysSbrk = 20

	sysRead  = 22
	sysWrite = 23
)

const maxArg = 20
const kstringMax = 256

// Dispatch decodes the syscall number and arguments a7/a0..a5 out of
// p's trapframe, runs the matching handler, and writes its result back
// to a0 (spec §4.I: "Handlers receive up to six 64-bit arguments...
// return a single 64-bit value that is written back to a0").
func Dispatch(p *proc.Proc_t) {
	tf := p.Tf()
	id := tf.A7
	args := [6]uint64{tf.A0, tf.A1, tf.A2, tf.A3, tf.A4, tf.A5}
	callStats.Calls.Inc()

	var ret uint64
	switch id {
	case sysFork:
		ret = syscallFork(p)
	case sysExec:
		ret = syscallExec(p, args[0], args[1])
	case sysExit:
		proc.Exit(int(int64(args[0])))
		panic("scall: exit returned")
	case sysWait:
		ret = syscallWait(p, defs.Pid_t(int64(args[0])), args[1])
	case sysGetpid:
		ret = uint64(p.Pid)
	case sysGetppid:
		ret = uint64(p.Ppid)
	case sysSleep:
		trap.SleepTicks(args[0])
		ret = 0
	case sysYield:
		proc.Yield()
		ret = 0
	case sysSbrk:
		ret = uint64(sysSbrkDo(p, int64(args[0])))
	case sysRead:
		ret = sysReadWrite(p, args[1], args[2], false)
	case sysWrite:
		ret = sysReadWrite(p, args[1], args[2], true)
	default:
		ret = uint64(int64(-1))
	}
	p.Tf().A0 = ret
}

func syscallFork(p *proc.Proc_t) uint64 {
	pid, err := proc.Fork(p)
	if err != 0 {
		return uint64(int64(err))
	}
	return uint64(pid)
}

// syscallExec copies the path string and up to maxArg argv pointers
// out of user space before calling proc.Exec, matching
// original_source/os/syscall.c:sys_exec's copy-then-exec order (argv
// strings must be read before exec tears down the old address space).
func syscallExec(p *proc.Proc_t, pathVa, argvVa uint64) uint64 {
	p.Mm.Lock()
	path, err := p.Mm.CopyStrFromUser(pathVa, kstringMax)
	if err != 0 {
		p.Mm.Unlock()
		return uint64(int64(err))
	}

	var argv []string
	for i := 0; i < maxArg; i++ {
		var word [8]byte
		if err := p.Mm.CopyFromUser(word[:], argvVa+uint64(i)*8); err != 0 {
			p.Mm.Unlock()
			return uint64(int64(err))
		}
		uaddr := uint64(util.Readn(word[:], 8, 0))
		if uaddr == 0 {
			break
		}
		s, err := p.Mm.CopyStrFromUser(uaddr, kstringMax)
		if err != 0 {
			p.Mm.Unlock()
			return uint64(int64(err))
		}
		argv = append(argv, s.String())
	}
	p.Mm.Unlock()

	if err := proc.Exec(p, path.String(), argv); err != 0 {
		return uint64(int64(err))
	}
	return 0
}

// syscallWait runs proc.Wait and then, if codeVa is non-zero, copies
// the 4-byte exit code to that user address under the caller's map
// lock. The pointer is not checked before Wait returns.
func syscallWait(p *proc.Proc_t, pid defs.Pid_t, codeVa uint64) uint64 {
	cpid, code, err := proc.Wait(pid)
	if err != 0 {
		return uint64(int64(err))
	}
	if codeVa != 0 {
		var word [4]byte
		util.Writen(word[:], 4, 0, code)
		p.Mm.Lock()
		werr := p.Mm.CopyToUser(codeVa, word[:])
		p.Mm.Unlock()
		if werr != 0 {
			return uint64(int64(werr))
		}
	}
	return uint64(cpid)
}

// sysSbrkDo grows or shrinks the brk VMA by n bytes, returning the old
// break on success or a negative error (spec #20 "sbrk": "old brk /
// err", original_source/os/syscall.c:sys_sbrk).
func sysSbrkDo(p *proc.Proc_t, n int64) int64 {
	p.Mm.Lock()
	defer p.Mm.Unlock()

	vma := p.Mm.Brk
	if vma == nil {
		return int64(-defs.EINVAL)
	}
	oldBrk := int64(vma.End)
	newBrk := oldBrk + n
	if newBrk < int64(vma.Start) {
		return int64(-defs.EINVAL)
	}
	if err := p.Mm.MmRemap(vma, vma.Start, uint64(newBrk), vma.Perms); err != 0 {
		return int64(err)
	}
	return oldBrk
}

// sysReadWrite dispatches syscall #22/#23 through p's console
// descriptor (spec §4.H: "exposed to syscall through a single fd.Fd_t
// ... whose fdops.Fdops_i implementation forwards to
// console.Read/console.Write"), so this handler is generic "read/write
// this fd" dispatch rather than console-specific: it builds a
// vm.Userbuf_t over the caller's buffer and hands it to
// p.ConsoleFd.Fops, the same split original_source/os/syscall.c avoids
// only because it never grew a second device to read or write.
func sysReadWrite(p *proc.Proc_t, va, length uint64, write bool) uint64 {
	n := length
	if n > riscv.PGSIZE {
		n = riscv.PGSIZE
	}

	var ub vm.Userbuf_t
	ub.UbInit(p.Mm, va, int(n))

	if write {
		written, err := p.ConsoleFd.Fops.Write(&ub)
		if err != 0 {
			return uint64(int64(err))
		}
		return uint64(written)
	}

	got, err := p.ConsoleFd.Fops.Read(&ub)
	if err != 0 {
		return uint64(int64(err))
	}
	return uint64(got)
}
