package proc

import (
	"testing"

	"hashtable"
	"mem"
	"vm"
)

// Every exported lifecycle entry point (Allocproc, Fork, Wait, Wakeup,
// Kill, CreateKthread, Yield, Exit, Scheduler) takes the process lock,
// which bottoms out in cpu.Pushcli -> riscv.IntrGet -> riscv.RSstatus,
// a CSR read riscv.go documents as never called from a hosted test
// (see its csrRead/csrWrite/fence doc comment) and with no portable Go
// body. So this file, like riscv_test.go and vm_test.go, restricts
// itself to the lock-free bookkeeping underneath those entry points:
// table setup, victim-source scanning, slot freeing, pid-free lookup,
// and the application table. The locking logic itself is exercised
// only by inspection against original_source/os/proc.c, the same
// boundary drawn around riscv.Swtch.
func resetProc(t *testing.T, pages int) {
	t.Helper()
	mem.Physmem = &mem.Physmem_t{}
	mem.Physmem.Init(make([]byte, pages*mem.PGSIZE))
	trampa, ok := mem.Physmem.Alloc()
	if !ok {
		t.Fatal("out of pages reserving the trampoline page")
	}
	vm.SetTrampoline(trampa)
	nextPid = 1
	InitProc = nil
	runq = nil
	appTable = hashtable.MkHash(32)
	ProcInit()
}

func TestProcInitPopulatesEveryUnusedSlotWithAStackAndTrapframe(t *testing.T) {
	resetProc(t, 256)

	for i, p := range table {
		if p == nil {
			t.Fatalf("slot %d is nil after ProcInit", i)
		}
		if p.State != UNUSED {
			t.Fatalf("slot %d state = %v, want UNUSED", i, p.State)
		}
		if p.Index != i {
			t.Fatalf("slot %d Index = %d, want %d", i, p.Index, i)
		}
		if p.TfPA == 0 {
			t.Fatalf("slot %d has no trapframe page", i)
		}
		if p.KStackPA == 0 {
			t.Fatalf("slot %d has no kernel stack page", i)
		}
	}
}

func TestByPidFindsOnlySlotsInUse(t *testing.T) {
	resetProc(t, 256)

	table[3].State = RUNNABLE
	table[3].Pid = 77

	if p := byPid(77); p != table[3] {
		t.Fatal("byPid did not find the slot carrying its pid")
	}
	if p := byPid(0); p != nil {
		t.Fatal("byPid matched an UNUSED slot's zero pid")
	}
	if p := byPid(999); p != nil {
		t.Fatal("byPid matched a pid nothing carries")
	}
}

func TestFreeprocResetsSlotToUnused(t *testing.T) {
	resetProc(t, 256)

	p := table[5]
	p.State = ZOMBIE
	p.Pid = 42
	p.Ppid = 1
	p.ExitCode = 7
	p.SleepChan = &p
	p.Killed = true
	p.Mm = &vm.Vmmap_t{}

	freeproc(p)

	if p.State != UNUSED {
		t.Fatalf("State = %v, want UNUSED", p.State)
	}
	if p.Pid != 0 || p.Ppid != 0 || p.ExitCode != 0 {
		t.Fatal("freeproc left pid/ppid/exitcode set")
	}
	if p.SleepChan != nil || p.Killed || p.Mm != nil {
		t.Fatal("freeproc left sleepchan/killed/mm set")
	}
}

func TestVictimSourceExcludesSelfDeadAndUnusedProcs(t *testing.T) {
	resetProc(t, 256)

	live := table[0]
	live.State = RUNNABLE
	live.Mm = &vm.Vmmap_t{}

	sleeping := table[1]
	sleeping.State = SLEEPING
	sleeping.Mm = &vm.Vmmap_t{}

	dead := table[2]
	dead.State = ZOMBIE
	dead.Mm = &vm.Vmmap_t{}

	unused := table[3]
	unused.State = UNUSED
	unused.Mm = nil

	out := victimSource(live.Mm)

	found := map[*vm.Vmmap_t]bool{}
	for _, mm := range out {
		found[mm] = true
	}
	if found[live.Mm] {
		t.Fatal("victimSource returned the excluded map")
	}
	if !found[sleeping.Mm] {
		t.Fatal("victimSource should have returned a sleeping process's map")
	}
	if found[dead.Mm] {
		t.Fatal("victimSource returned a zombie's map")
	}
}

func TestRegisterAndLookupApp(t *testing.T) {
	resetProc(t, 256)

	image := []byte{0x7f, 'E', 'L', 'F'}
	RegisterApp("init", image)

	got, ok := lookupApp("init")
	if !ok {
		t.Fatal("lookupApp did not find a registered app")
	}
	if string(got) != string(image) {
		t.Fatal("lookupApp returned a different image than registered")
	}

	if _, ok := lookupApp("nonexistent"); ok {
		t.Fatal("lookupApp found an app that was never registered")
	}
}

func TestInitProcDefaultsNilUntilAssigned(t *testing.T) {
	resetProc(t, 256)

	if InitProc != nil {
		t.Fatal("InitProc should start nil until the boot sequence assigns it")
	}

	p := table[0]
	p.State = RUNNABLE
	SetInitProc(p)
	if InitProc != p {
		t.Fatal("SetInitProc did not override InitProc")
	}
}
