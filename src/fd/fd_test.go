package fd

import (
	"defs"
	"testing"

	"fdops"
)

type fakeFops struct {
	reopened bool
	closed   bool
	reopenErr defs.Err_t
	closeErr  defs.Err_t
}

func (f *fakeFops) Read(dst fdops.Userio_i) (int, defs.Err_t)  { return 0, 0 }
func (f *fakeFops) Write(src fdops.Userio_i) (int, defs.Err_t) { return 0, 0 }
func (f *fakeFops) Close() defs.Err_t                          { f.closed = true; return f.closeErr }
func (f *fakeFops) Reopen() defs.Err_t                         { f.reopened = true; return f.reopenErr }

func TestCopyfdReopensAndCopiesPerms(t *testing.T) {
	ops := &fakeFops{}
	orig := &Fd_t{Fops: ops, Perms: FD_READ | FD_WRITE}

	dup, err := Copyfd(orig)
	if err != 0 {
		t.Fatalf("Copyfd failed: %v", err)
	}
	if !ops.reopened {
		t.Fatal("Copyfd did not call Fops.Reopen")
	}
	if dup.Perms != orig.Perms {
		t.Fatalf("dup.Perms = %v, want %v", dup.Perms, orig.Perms)
	}
	if dup == orig {
		t.Fatal("Copyfd should return a distinct Fd_t")
	}
}

func TestCopyfdPropagatesReopenError(t *testing.T) {
	ops := &fakeFops{reopenErr: -defs.EINVAL}
	orig := &Fd_t{Fops: ops}

	if _, err := Copyfd(orig); err != -defs.EINVAL {
		t.Fatalf("Copyfd error = %v, want -EINVAL", err)
	}
}

func TestClosePanicOnFailure(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Close_panic should panic when Fops.Close fails")
		}
	}()
	ops := &fakeFops{closeErr: -defs.EINVAL}
	Close_panic(&Fd_t{Fops: ops})
}

func TestClosePanicSucceeds(t *testing.T) {
	ops := &fakeFops{}
	Close_panic(&Fd_t{Fops: ops})
	if !ops.closed {
		t.Fatal("Close_panic did not call Fops.Close")
	}
}
