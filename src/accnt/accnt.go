// Package accnt tracks per-process CPU accounting: nanoseconds spent
// in user mode versus kernel mode, updated from the trap plane at user
// trap entry/exit (spec §4.G: "each process carries an
// accnt.Accnt_t").
//
// Grounded on biscuit/src/accnt/accnt.go, kept verbatim: the
// sync.Mutex + sync/atomic split (atomic adds from the hot trap path,
// a locked snapshot for the rare getrusage-style consumer) and the
// time.Now wall-clock source are exactly the teacher's own.
package accnt

import "sync"
import "sync/atomic"
import "time"

import "util"

// Accnt_t accumulates one process's runtime, in nanoseconds, split
// between user and system time. The embedded mutex lets a consumer
// take a consistent snapshot of both fields together.
type Accnt_t struct {
	Userns int64
	Sysns  int64
	sync.Mutex
}

// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

// Now returns the current wall-clock time in nanoseconds.
func (a *Accnt_t) Now() int {
	return int(time.Now().UnixNano())
}

// Io_time removes time spent waiting for I/O, begun at since, from
// system time.
func (a *Accnt_t) Io_time(since int) {
	d := a.Now() - since
	a.Systadd(-d)
}

// Sleep_time removes time spent sleeping, begun at since, from system
// time.
func (a *Accnt_t) Sleep_time(since int) {
	d := a.Now() - since
	a.Systadd(-d)
}

// Finish adds the time elapsed since inttime to system time, for the
// final accounting update a process makes on its way to exit.
func (a *Accnt_t) Finish(inttime int) {
	a.Systadd(a.Now() - inttime)
}

// Add merges n's counters into a, for a parent collecting a reaped
// child's usage (spec §4.G wait's rusage accumulation).
func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	a.Userns += n.Userns
	a.Sysns += n.Sysns
	a.Unlock()
}

// Fetch takes a locked snapshot and encodes it as an rusage byte
// buffer.
func (a *Accnt_t) Fetch() []uint8 {
	a.Lock()
	ru := a.To_rusage()
	a.Unlock()
	return ru
}

// To_rusage packs Userns/Sysns into the four-word (user sec, user
// usec, sys sec, sys usec) layout a getrusage-style syscall would copy
// to user space.
func (a *Accnt_t) To_rusage() []uint8 {
	words := 4
	ret := make([]uint8, words*8)
	totv := func(nano int64) (int, int) {
		secs := int(nano / 1e9)
		usecs := int((nano % 1e9) / 1000)
		return secs, usecs
	}
	off := 0
	s, us := totv(a.Userns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	off += 8
	s, us = totv(a.Sysns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	off += 8
	return ret
}
