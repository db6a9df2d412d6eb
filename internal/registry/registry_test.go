package registry

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestAddressFromBytes(t *testing.T) {
	a := AddressFromBytes([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	if a != 0x060504030201 {
		t.Errorf("AddressFromBytes() = %#x, want 0x060504030201", uint64(a))
	}
	if a.String() != "06:05:04:03:02:01" {
		t.Errorf("String() = %q, want 06:05:04:03:02:01", a.String())
	}
	if b := a.Bytes(); b != [6]byte{1, 2, 3, 4, 5, 6} {
		t.Errorf("Bytes() = %v", b)
	}
	if AddressFromBytes([]byte{1, 2}) != 0 {
		t.Error("short input should yield 0")
	}
}

func TestTryClaim(t *testing.T) {
	r := New()
	const addr Address = 42

	if !r.TryClaim(addr) {
		t.Fatal("first TryClaim should succeed")
	}
	if r.TryClaim(addr) {
		t.Error("second TryClaim on a Connecting peer should fail")
	}

	r.SetState(addr, NotConnected)
	if !r.TryClaim(addr) {
		t.Error("TryClaim on a NotConnected peer should succeed")
	}

	for _, st := range []State{ScanningServices, ScanningCharacteristics, Connected, SendCompleted, NotTargetDevice} {
		r.SetState(addr, st)
		if r.TryClaim(addr) {
			t.Errorf("TryClaim succeeded on peer in state %s", st)
		}
	}
}

func TestTryClaimExclusive(t *testing.T) {
	for round := 0; round < 100; round++ {
		r := New()
		var wins atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if r.TryClaim(7) {
					wins.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()
		if wins.Load() != 1 {
			t.Fatalf("round %d: %d claims succeeded, want exactly 1", round, wins.Load())
		}
	}
}

func TestRemoveAndClear(t *testing.T) {
	r := New()
	r.SetState(1, Connected)
	r.SetState(2, NotTargetDevice)

	r.Remove(1)
	if _, ok := r.Get(1); ok {
		t.Error("Get(1) found a removed peer")
	}
	if st, ok := r.Get(2); !ok || st != NotTargetDevice {
		t.Errorf("Get(2) = %s, %v, want not-target-device, true", st, ok)
	}

	snap := r.Snapshot()
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", r.Len())
	}
	if len(snap) != 1 {
		t.Errorf("snapshot was affected by Clear: %v", snap)
	}
}

func TestStateString(t *testing.T) {
	if NotTargetDevice.String() != "not-target-device" {
		t.Errorf("String() = %q", NotTargetDevice.String())
	}
	if State(99).String() != "state(99)" {
		t.Errorf("String() = %q", State(99).String())
	}
}
