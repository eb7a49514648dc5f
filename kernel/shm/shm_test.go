package shm

import (
	"testing"

	"nucleus/kernel"
	"nucleus/kernel/mem/pmm"
)

func resetRegistry() {
	regions = map[uint64]*Region{}
	nextRegionID = 1
}

func fakeAllocator(nextFrame *uintptr) func() (pmm.Frame, *kernel.Error) {
	return func() (pmm.Frame, *kernel.Error) {
		*nextFrame++
		return pmm.Frame(*nextFrame), nil
	}
}

// fakeDeallocator records every frame handed back so tests can assert the
// rollback/Leave paths actually release what they allocated.
func fakeDeallocator(freed *[]pmm.Frame) func(pmm.Frame) *kernel.Error {
	return func(f pmm.Frame) *kernel.Error {
		*freed = append(*freed, f)
		return nil
	}
}

func TestCreateEager(t *testing.T) {
	resetRegistry()
	var next uintptr
	SetFrameAllocator(fakeAllocator(&next))

	r, err := Create(1, 4, 0, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Pages != 4 || r.CreatorID != 1 || r.NotifyMID != 42 {
		t.Fatalf("unexpected region fields: %+v", r)
	}
	for i := uint64(0); i < r.Pages; i++ {
		if !r.IsPageAllocated(i) {
			t.Errorf("expected slot %d to be eagerly backed", i)
		}
	}

	got, ok := Lookup(r.ID)
	if !ok || got != r {
		t.Fatalf("expected Lookup to find the created region; got %v, ok=%v", got, ok)
	}
}

func TestCreateLazy(t *testing.T) {
	resetRegistry()
	var next uintptr
	SetFrameAllocator(fakeAllocator(&next))

	r, err := Create(1, 3, FlagLazilyAllocated, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := uint64(0); i < r.Pages; i++ {
		if r.IsPageAllocated(i) {
			t.Errorf("expected slot %d to start unbacked under lazy allocation", i)
		}
	}
	if next != 0 {
		t.Fatalf("expected no eager frame allocation; allocator called %d times", next)
	}
}

func TestCreateEagerOutOfMemory(t *testing.T) {
	resetRegistry()
	expErr := &kernel.Error{Module: "test", Message: "out of frames"}
	calls := 0
	SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
		calls++
		if calls > 2 {
			return pmm.InvalidFrame, expErr
		}
		return pmm.Frame(calls), nil
	})
	var freed []pmm.Frame
	SetFrameDeallocator(fakeDeallocator(&freed))

	if _, err := Create(1, 5, 0, 0); err != errOutOfMemory {
		t.Fatalf("expected errOutOfMemory; got %v", err)
	}

	if len(regions) != 0 {
		t.Fatalf("expected a failed Create to leave no region registered; got %d", len(regions))
	}
	if len(freed) != 2 {
		t.Fatalf("expected the 2 frames obtained before the failure to be released; got %v", freed)
	}
}

func TestLookupMissing(t *testing.T) {
	resetRegistry()
	if _, ok := Lookup(999); ok {
		t.Fatal("expected Lookup on an unknown id to report false")
	}
}

func TestMoveInAndDrainWaiters(t *testing.T) {
	resetRegistry()
	var next uintptr
	SetFrameAllocator(fakeAllocator(&next))

	r, err := Create(1, 2, FlagLazilyAllocated, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.AddWaiter(0, 10, 100)
	r.AddWaiter(0, 10, 101)
	r.AddWaiter(1, 20, 200)

	frame, err := frameAllocator()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	woken, err := MoveIn(r, 0, frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(woken) != 2 {
		t.Fatalf("expected 2 waiters woken on slot 0; got %d", len(woken))
	}
	if !r.IsPageAllocated(0) {
		t.Fatal("expected slot 0 to be backed after MoveIn")
	}

	phys, err := r.PhysAddr(0)
	if err != nil || phys != frame.Address() {
		t.Fatalf("expected PhysAddr to return the backing frame's address; got %x, err=%v", phys, err)
	}

	if _, err := r.PhysAddr(1); err != errNoFrameForSlot {
		t.Fatalf("expected slot 1 to still report errNoFrameForSlot; got %v", err)
	}

	// Slot 1's waiter must remain parked.
	woken = r.DrainWaiters(1)
	if len(woken) != 1 || woken[0].ThreadID != 200 {
		t.Fatalf("expected slot 1's waiter to still be parked; got %v", woken)
	}
}

func TestMoveInAlreadyBacked(t *testing.T) {
	resetRegistry()
	var next uintptr
	SetFrameAllocator(fakeAllocator(&next))

	r, _ := Create(1, 1, 0, 0)
	frame, _ := frameAllocator()

	if _, err := MoveIn(r, 0, frame); err != errAlreadyBacked {
		t.Fatalf("expected errAlreadyBacked for an eagerly-backed slot; got %v", err)
	}
}

func TestRemoveWaiterAndEverywhere(t *testing.T) {
	resetRegistry()
	var next uintptr
	SetFrameAllocator(fakeAllocator(&next))

	r, _ := Create(1, 1, FlagLazilyAllocated, 0)
	r.AddWaiter(0, 10, 100)
	r.AddWaiter(0, 10, 101)

	r.RemoveWaiter(10, 100)
	woken := r.DrainWaiters(0)
	if len(woken) != 1 || woken[0].ThreadID != 101 {
		t.Fatalf("expected only thread 101 to remain parked; got %v", woken)
	}

	r.AddWaiter(0, 10, 200)
	RemoveWaiterEverywhere(10, 200)
	if woken := r.DrainWaiters(0); len(woken) != 0 {
		t.Fatalf("expected RemoveWaiterEverywhere to drop the waiter; got %v", woken)
	}
}

func TestGrow(t *testing.T) {
	resetRegistry()
	var next uintptr
	SetFrameAllocator(fakeAllocator(&next))

	r, _ := Create(1, 2, FlagLazilyAllocated, 0)
	r.Grow(3)

	if r.Pages != 5 {
		t.Fatalf("expected 5 pages after growing by 3; got %d", r.Pages)
	}
	for i := uint64(2); i < 5; i++ {
		if r.IsPageAllocated(i) {
			t.Errorf("expected newly grown slot %d to start unbacked", i)
		}
	}
}

func TestGrantAssignPermissionAndSlotWritable(t *testing.T) {
	resetRegistry()
	var next uintptr
	SetFrameAllocator(fakeAllocator(&next))

	r, _ := Create(1, 1, 0, 0)
	if r.slotWritable(2) {
		t.Fatal("expected a non-delegate, non-creator process to lack write access")
	}

	GrantAssignPermission(r, 2)
	if !r.slotWritable(2) {
		t.Fatal("expected a delegate to have write access")
	}

	r2, _ := Create(1, 1, FlagJoinersCanWrite, 0)
	if !r2.slotWritable(999) {
		t.Fatal("expected FlagJoinersCanWrite to grant write access to any joiner")
	}
}
