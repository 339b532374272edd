package signal

import (
	"defs"
	"testing"
)

func TestSigactionInstallsAndReturnsPrevious(t *testing.T) {
	var k Ksignal_t
	Init(&k)

	first := Sigaction_t{Handler: 0x1000}
	if err := Sigaction(&k, SIGUSR0, &first, nil); err != 0 {
		t.Fatalf("Sigaction install failed: %v", err)
	}

	var old Sigaction_t
	second := Sigaction_t{Handler: 0x2000}
	if err := Sigaction(&k, SIGUSR0, &second, &old); err != 0 {
		t.Fatalf("Sigaction replace failed: %v", err)
	}
	if old.Handler != 0x1000 {
		t.Fatalf("old handler = %x, want 0x1000", old.Handler)
	}
	if k.Actions[SIGUSR0].Handler != 0x2000 {
		t.Fatal("Sigaction did not install the new action")
	}
}

func TestSigactionRejectsOutOfRangeSignal(t *testing.T) {
	var k Ksignal_t
	if err := Sigaction(&k, 99, nil, nil); err != -defs.EINVAL {
		t.Fatalf("Sigaction(99) = %v, want -EINVAL", err)
	}
}

func TestSigprocmaskBlockUnblockSetmask(t *testing.T) {
	var k Ksignal_t
	blk := uint64(1 << SIGUSR0)
	if err := Sigprocmask(&k, 1, &blk, nil); err != 0 {
		t.Fatalf("SIG_BLOCK failed: %v", err)
	}
	if k.Mask&blk == 0 {
		t.Fatal("SIG_BLOCK did not set the mask bit")
	}

	if err := Sigprocmask(&k, 2, &blk, nil); err != 0 {
		t.Fatalf("SIG_UNBLOCK failed: %v", err)
	}
	if k.Mask&blk != 0 {
		t.Fatal("SIG_UNBLOCK did not clear the mask bit")
	}

	all := uint64(0xff)
	var old uint64
	if err := Sigprocmask(&k, 3, &all, &old); err != 0 {
		t.Fatalf("SIG_SETMASK failed: %v", err)
	}
	if k.Mask != all {
		t.Fatal("SIG_SETMASK did not replace the mask")
	}
}

func TestKillSetsPendingBit(t *testing.T) {
	var k Ksignal_t
	if err := Kill(&k, SIGTERM); err != 0 {
		t.Fatalf("Kill failed: %v", err)
	}
	var pending uint64
	Sigpending(&k, &pending)
	if pending&(1<<SIGTERM) == 0 {
		t.Fatal("Kill did not set the pending bit")
	}
}

func TestForkInitCopiesActionsButNotPending(t *testing.T) {
	var parent Ksignal_t
	parent.Actions[SIGINT] = Sigaction_t{Handler: 0x42}
	parent.Pending = 1 << SIGINT

	var child Ksignal_t
	ForkInit(&parent, &child)

	if child.Actions[SIGINT].Handler != 0x42 {
		t.Fatal("ForkInit did not copy the parent's actions")
	}
	if child.Pending != 0 {
		t.Fatal("ForkInit should not inherit pending signals")
	}
}
