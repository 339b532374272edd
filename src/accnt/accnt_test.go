package accnt

import "testing"

func TestUtaddSystaddAccumulate(t *testing.T) {
	var a Accnt_t
	a.Utadd(100)
	a.Utadd(50)
	a.Systadd(25)
	if a.Userns != 150 {
		t.Fatalf("Userns = %d, want 150", a.Userns)
	}
	if a.Sysns != 25 {
		t.Fatalf("Sysns = %d, want 25", a.Sysns)
	}
}

func TestIoTimeAndSleepTimeSubtractFromSysns(t *testing.T) {
	var a Accnt_t
	a.Systadd(1000)
	a.Io_time(a.Now())
	if a.Sysns > 1000 {
		t.Fatalf("Io_time should not increase Sysns, got %d", a.Sysns)
	}
	a.Sleep_time(a.Now())
	if a.Sysns > 1000 {
		t.Fatalf("Sleep_time should not increase Sysns, got %d", a.Sysns)
	}
}

func TestAddMergesCounters(t *testing.T) {
	var total, child Accnt_t
	total.Userns, total.Sysns = 10, 20
	child.Userns, child.Sysns = 5, 7

	total.Add(&child)
	if total.Userns != 15 || total.Sysns != 27 {
		t.Fatalf("Add() = {%d,%d}, want {15,27}", total.Userns, total.Sysns)
	}
}

func TestToRusageEncodesFourWords(t *testing.T) {
	var a Accnt_t
	a.Userns = 2_500_000_000 // 2.5s
	a.Sysns = 1_000_000      // 1ms

	buf := a.To_rusage()
	if len(buf) != 32 {
		t.Fatalf("To_rusage() len = %d, want 32", len(buf))
	}
}

func TestFetchTakesALockedSnapshot(t *testing.T) {
	var a Accnt_t
	a.Userns = 42
	buf := a.Fetch()
	if len(buf) != 32 {
		t.Fatalf("Fetch() len = %d, want 32", len(buf))
	}
}
