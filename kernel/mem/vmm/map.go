package vmm

import (
	"unsafe"

	"nucleus/kernel"
	"nucleus/kernel/cpu"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
)

// ReservedZeroedFrame is a single zero-cleared frame allocated by Init. It
// backs lazily-allocated mappings installed with FlagCopyOnWrite: a page
// fault on a write makes a private copy and installs it in place.
var ReservedZeroedFrame pmm.Frame

var (
	// protectReservedZeroedPage is flipped on once ReservedZeroedFrame is
	// initialized, rejecting any attempt to map it with FlagRW.
	protectReservedZeroedPage bool

	// frameAllocator supplies frames for intermediate page tables
	// allocated on demand by Map. It is nil until SetFrameAllocator is
	// called (see mem/pmm/allocator.Init).
	frameAllocator func() (pmm.Frame, *kernel.Error)

	// flushTLBEntryFn is overridden by tests; the kernel build inlines it
	// away.
	flushTLBEntryFn = cpu.FlushTLBEntry

	errNoFrameAllocator            = &kernel.Error{Module: "vmm", Message: "no frame allocator registered"}
	errNoHugePageSupport           = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errAttemptToRWMapReservedFrame = &kernel.Error{Module: "vmm", Message: "reserved blank frame cannot be mapped with a RW flag"}
)

// SetFrameAllocator registers the function Map uses to obtain frames for
// intermediate page tables. The frame allocator subsystem calls this twice:
// once with the boot allocator while bootstrapping the kernel's own tables,
// and again with the free-stack allocator once it is running.
func SetFrameAllocator(fn func() (pmm.Frame, *kernel.Error)) {
	frameAllocator = fn
}

// Map establishes a mapping from page to frame in the currently active page
// table, allocating any missing intermediate tables along the way. owned
// records the kernel's ownership bit on the leaf entry: an owned mapping's
// frame is returned to the allocator on Unmap.
//
// Attempts to map ReservedZeroedFrame with FlagRW set are rejected.
func Map(page Page, frame pmm.Frame, flags PageTableEntryFlag, owned bool) *kernel.Error {
	if protectReservedZeroedPage && frame == ReservedZeroedFrame && (flags&FlagRW) != 0 {
		return errAttemptToRWMapReservedFrame
	}

	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags)
			if owned {
				pte.SetFlags(FlagOwned)
			}
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		if !pte.HasFlags(FlagPresent) {
			if frameAllocator == nil {
				err = errNoFrameAllocator
				return false
			}

			newTableFrame, allocErr := frameAllocator()
			if allocErr != nil {
				err = allocErr
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)

			// The freshly allocated table becomes reachable one level
			// deeper through the same recursive mapping walk() uses;
			// clear its contents before anyone reads it.
			nextTableAddr := uintptr(unsafe.Pointer(pte)) << pageLevelBits[pteLevel+1]
			mem.Memset(nextTableAddr, 0, mem.PageSize)
		}

		return true
	})

	return err
}

// MapTemporary establishes a short-lived RW mapping of frame at a single
// reserved virtual address, overwriting any previous occupant. It is used
// by the vmm package itself (and the frame allocator) to read or write the
// contents of a physical frame that has no permanent mapping yet.
//
// Attempts to map ReservedZeroedFrame are rejected.
func MapTemporary(frame pmm.Frame) (Page, *kernel.Error) {
	if protectReservedZeroedPage && frame == ReservedZeroedFrame {
		return 0, errAttemptToRWMapReservedFrame
	}

	if err := Map(PageFromAddress(tempMappingAddr), frame, FlagPresent|FlagRW, false); err != nil {
		return 0, err
	}

	return PageFromAddress(tempMappingAddr), nil
}

// Unmap clears the leaf entry for page. It is a no-op if the page is not
// mapped. It never frees the underlying frame; callers that need that
// perform it via an AddressSpace's Unmap, which also consults the owned bit.
func Unmap(page Page) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			*pte = 0
			flushTLBEntryFn(page.Address())
			return true
		}

		if !pte.HasFlags(FlagPresent) {
			return false
		}
		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}
		return true
	})

	return err
}

// Translate returns the physical address that corresponds to virtAddr, or
// ErrInvalidMapping if it is not mapped.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	return pte.Frame().Address() + PageOffset(virtAddr), nil
}

// PageOffset returns the offset of virtAddr within its containing page.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1)
}
