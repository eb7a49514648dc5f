// Package shm implements spec.md 4.6's shared-memory regions: named runs of
// logical pages backed by at most one physical frame each, joined by
// multiple processes, with lazy per-page allocation and producer
// notification. It depends only on vmm/pmm so that the proc package (which
// owns the process table) can sit above it without an import cycle.
package shm

import (
	"nucleus/kernel"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/vmm"
)

const (
	// FlagLazilyAllocated marks a region whose pages are backed on first
	// touch rather than at creation time.
	FlagLazilyAllocated = uint32(1)

	// FlagJoinersCanWrite grants every joiner (not just the creator)
	// write access to the region's pages.
	FlagJoinersCanWrite = uint32(2)
)

var (
	errNoSuchRegion   = &kernel.Error{Module: "shm", Message: "no such shared memory region"}
	errNotCreator     = &kernel.Error{Module: "shm", Message: "caller is not the region's creator or delegate"}
	errBadOffset      = &kernel.Error{Module: "shm", Message: "offset is not a multiple of the page size"}
	errOutOfMemory    = &kernel.Error{Module: "shm", Message: "out of memory while building shared region"}
	errAlreadyBacked  = &kernel.Error{Module: "shm", Message: "slot already has a backing frame"}
	errNoFrameForSlot = &kernel.Error{Module: "shm", Message: "slot has no backing frame yet"}

	frameAllocator   func() (pmm.Frame, *kernel.Error)
	frameDeallocator func(pmm.Frame) *kernel.Error

	regions       = map[uint64]*Region{}
	nextRegionID  = uint64(1)
	notBackedFrame = pmm.InvalidFrame
)

// SetFrameAllocator wires the physical frame allocator used to back new
// shared-memory slots. Called once during proc.Init.
func SetFrameAllocator(fn func() (pmm.Frame, *kernel.Error)) {
	frameAllocator = fn
}

// SetFrameDeallocator wires the physical frame deallocator used to release a
// region's slots, both on eager-allocation rollback and when the last
// joiner leaves. Called once during proc.Init, alongside SetFrameAllocator.
func SetFrameDeallocator(fn func(pmm.Frame) *kernel.Error) {
	frameDeallocator = fn
}

// Waiter identifies a thread parked on a specific unbacked slot of a
// region. ProcessID is carried alongside ThreadID since thread ids are only
// unique within their owning process.
type Waiter struct {
	Slot      uint64
	ProcessID uint64
	ThreadID  uint64
}

// join is a single (process, region) binding.
type join struct {
	processID uint64
	virtAddr  uintptr
	refCount  uint64
	writable  bool
}

// Region is a shared-memory region: spec.md's SharedMemory record.
type Region struct {
	ID           uint64
	Pages        uint64
	Flags        uint32
	CreatorID    uint64
	NotifyMID    uint64
	delegates    map[uint64]bool
	frames       []pmm.Frame
	joins        map[uint64]*join
	waiters      []Waiter
}

// Create allocates a new region of the given page count and flags. If the
// region is not lazy, a frame is eagerly allocated for every page; any
// allocation failure during eager backing releases every frame obtained so
// far.
func Create(creatorID uint64, pages uint64, flags uint32, notifyMID uint64) (*Region, *kernel.Error) {
	r := &Region{
		ID:        nextRegionID,
		Pages:     pages,
		Flags:     flags,
		CreatorID: creatorID,
		NotifyMID: notifyMID,
		delegates: map[uint64]bool{creatorID: true},
		frames:    make([]pmm.Frame, pages),
		joins:     map[uint64]*join{},
	}
	nextRegionID++

	for i := range r.frames {
		r.frames[i] = pmm.InvalidFrame
	}

	if flags&FlagLazilyAllocated == 0 {
		for i := uint64(0); i < pages; i++ {
			frame, err := frameAllocator()
			if err != nil {
				for j := uint64(0); j < i; j++ {
					_ = frameDeallocator(r.frames[j])
				}
				return nil, errOutOfMemory
			}
			r.frames[i] = frame
		}
	}

	regions[r.ID] = r
	return r, nil
}

// Lookup returns the region with the given id, if any.
func Lookup(id uint64) (*Region, bool) {
	r, ok := regions[id]
	return r, ok
}

// slotWritable reports whether processID may write to this region's pages.
func (r *Region) slotWritable(processID uint64) bool {
	return r.Flags&FlagJoinersCanWrite != 0 || r.delegates[processID]
}

// mapSlot installs (or reinstalls) slot's mapping at virtAddr in the given
// address space, choosing between a real frame, a dud (unbacked lazy) entry,
// or a read-only/writable mapping based on region state and caller rights.
func (r *Region) mapSlot(as *vmm.AddressSpace, slot uint64, virtAddr uintptr, writable bool) *kernel.Error {
	page := vmm.PageFromAddress(virtAddr)
	frame := r.frames[slot]
	if !frame.Valid() {
		return as.Map(page, pmm.InvalidFrame, false, false, true)
	}
	return as.Map(page, frame, writable, false, false)
}

// Join binds processID's address space to the region, reserving a fresh
// page-count-sized range (or the exact range named by atAddr, when
// fixed is true) and mapping every already-backed slot. Joins from the
// same process dedupe by bumping the existing binding's reference count.
func Join(r *Region, processID uint64, as *vmm.AddressSpace, fixed bool, atAddr uintptr) (uintptr, *kernel.Error) {
	if j, ok := r.joins[processID]; ok {
		j.refCount++
		return j.virtAddr, nil
	}

	var base vmm.Page
	var err *kernel.Error
	if fixed {
		base = vmm.PageFromAddress(atAddr)
		err = as.ReserveAt(base, r.Pages)
	} else {
		base, err = as.ReserveRange(r.Pages)
	}
	if err != nil {
		return 0, err
	}

	writable := r.slotWritable(processID)
	for i := uint64(0); i < r.Pages; i++ {
		slotAddr := base.Address() + uintptr(i)*uintptr(mem.PageSize)
		if err := r.mapSlot(as, i, slotAddr, writable); err != nil {
			as.MarkFree(base, r.Pages)
			return 0, err
		}
	}

	r.joins[processID] = &join{processID: processID, virtAddr: base.Address(), refCount: 1, writable: writable}
	return base.Address(), nil
}

// Leave decrements processID's join reference count; at zero it unmaps the
// whole range (without freeing the region's frames, which remain owned by
// the region itself) and drops the binding. A region with no joiners left
// releases its frames entirely.
func Leave(r *Region, processID uint64, as *vmm.AddressSpace) *kernel.Error {
	j, ok := r.joins[processID]
	if !ok {
		return nil
	}

	j.refCount--
	if j.refCount > 0 {
		return nil
	}

	for i := uint64(0); i < r.Pages; i++ {
		page := vmm.PageFromAddress(j.virtAddr + uintptr(i)*uintptr(mem.PageSize))
		if err := as.Unmap(page, false, nil); err != nil {
			return err
		}
	}
	delete(r.joins, processID)

	if len(r.joins) == 0 {
		for _, frame := range r.frames {
			if frame.Valid() {
				if err := frameDeallocator(frame); err != nil {
					return err
				}
			}
		}
		r.frames = nil
		delete(regions, r.ID)
	}
	return nil
}

// GrantAssignPermission adds granteeID to the region's delegates, which
// gives that process, and only that process, the creator's write access to
// the region's pages (see slotWritable). No other joiner gains anything
// from the grant, and the move-page-in path does not consult the delegates.
func GrantAssignPermission(r *Region, granteeID uint64) {
	r.delegates[granteeID] = true
}

// IsPageAllocated reports whether slot already has a backing frame.
func (r *Region) IsPageAllocated(slot uint64) bool {
	return slot < uint64(len(r.frames)) && r.frames[slot].Valid()
}

// PhysAddr returns the physical address backing slot, if allocated.
func (r *Region) PhysAddr(slot uint64) (uintptr, *kernel.Error) {
	if !r.IsPageAllocated(slot) {
		return 0, errNoFrameForSlot
	}
	return r.frames[slot].Address(), nil
}

// Grow extends the region by extraPages pages. Existing joiners do not
// automatically see the new range mapped; they must rejoin to pick it up.
func (r *Region) Grow(extraPages uint64) {
	for i := uint64(0); i < extraPages; i++ {
		r.frames = append(r.frames, pmm.InvalidFrame)
	}
	r.Pages += extraPages
}

// AddWaiter parks (processID, threadID) on (region, slot) until MoveIn
// backs that slot.
func (r *Region) AddWaiter(slot, processID, threadID uint64) {
	r.waiters = append(r.waiters, Waiter{Slot: slot, ProcessID: processID, ThreadID: threadID})
}

// DrainWaiters removes and returns every waiter parked on slot.
func (r *Region) DrainWaiters(slot uint64) []Waiter {
	var woken []Waiter
	remaining := r.waiters[:0]
	for _, w := range r.waiters {
		if w.Slot == slot {
			woken = append(woken, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	r.waiters = remaining
	return woken
}

// RemoveWaiter drops a single (processID, threadID) registration without
// waking it, used when a thread is torn down while still parked.
func (r *Region) RemoveWaiter(processID, threadID uint64) {
	remaining := r.waiters[:0]
	for _, w := range r.waiters {
		if w.ProcessID != processID || w.ThreadID != threadID {
			remaining = append(remaining, w)
		}
	}
	r.waiters = remaining
}

// RemoveWaiterEverywhere drops (processID, threadID) from whichever region
// it may be parked on. Thread teardown does not track which region (or
// slot) a thread is waiting on, so it sweeps every live region instead.
func RemoveWaiterEverywhere(processID, threadID uint64) {
	for _, r := range regions {
		r.RemoveWaiter(processID, threadID)
	}
}

// MoveIn installs frame as the backing of slot and returns the threads
// that were waiting on that slot so the caller (proc package) can wake
// them. It does not touch any joiner's mappings; the caller calls Remap
// once per joiner for that.
func MoveIn(r *Region, slot uint64, frame pmm.Frame) ([]Waiter, *kernel.Error) {
	if slot >= uint64(len(r.frames)) {
		return nil, errNoSuchRegion
	}
	if r.frames[slot].Valid() {
		return nil, errAlreadyBacked
	}
	r.frames[slot] = frame
	return r.DrainWaiters(slot), nil
}

// Remap rewrites slot's mapping in every current joiner's address space
// once it has been backed; callers resolve each joiner's *vmm.AddressSpace
// through the process table (shm has no visibility into it) and invoke this
// once per joiner.
func (r *Region) Remap(processID uint64, as *vmm.AddressSpace, slot uint64) *kernel.Error {
	j, ok := r.joins[processID]
	if !ok {
		return nil
	}
	slotAddr := j.virtAddr + uintptr(slot)*uintptr(mem.PageSize)
	page := vmm.PageFromAddress(slotAddr)
	if err := as.Unmap(page, false, nil); err != nil {
		return err
	}
	return r.mapSlot(as, slot, slotAddr, j.writable)
}

// Joiners returns the process ids currently joined to r.
func (r *Region) Joiners() []uint64 {
	ids := make([]uint64, 0, len(r.joins))
	for pid := range r.joins {
		ids = append(ids, pid)
	}
	return ids
}

// SlotForAddr returns the slot index and owning region for a joiner's
// virtual address, if it falls inside one of processID's joined ranges.
func SlotForAddr(processID uint64, addr uintptr) (*Region, uint64, bool) {
	for _, r := range regions {
		j, ok := r.joins[processID]
		if !ok {
			continue
		}
		if addr < j.virtAddr || addr >= j.virtAddr+uintptr(r.Pages)*uintptr(mem.PageSize) {
			continue
		}
		slot := uint64(addr-j.virtAddr) / uint64(mem.PageSize)
		return r, slot, true
	}
	return nil, 0, false
}
