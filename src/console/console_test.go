package console

import (
	"sync/atomic"
	"testing"
)

// Most of this package's surface takes consLock/txLock
// (lock.Spinlock_t), which this tree cannot exercise in a hosted test
// (see proc_test.go's doc comment); AcquireKprint/ReleaseKprint and the
// panicked flag are plain sync/atomic and are fully testable.
func TestAcquireKprintExcludesConcurrentAcquire(t *testing.T) {
	kprintBusy = 0
	AcquireKprint()
	if atomic.CompareAndSwapInt32(&kprintBusy, 0, 1) {
		t.Fatal("AcquireKprint should have left kprintBusy set")
	}
	ReleaseKprint()
	if !atomic.CompareAndSwapInt32(&kprintBusy, 0, 1) {
		t.Fatal("ReleaseKprint should have cleared kprintBusy")
	}
	kprintBusy = 0
}

func TestSetPanickedLatches(t *testing.T) {
	panicked = 0
	if Panicked() {
		t.Fatal("Panicked should start false")
	}
	SetPanicked()
	if !Panicked() {
		t.Fatal("SetPanicked should latch Panicked true")
	}
}
