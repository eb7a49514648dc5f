package vmm

import (
	"unsafe"

	"nucleus/kernel"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
)

const (
	// kernelSlotLow is the PML4 index that backs ordinary kernel virtual
	// memory (the temporary-mapping window, and anything else the kernel
	// maps for itself). It is copied into every user address space so
	// kernel code and data stay visible regardless of which process is
	// current.
	kernelSlotLow = 510

	// kernelSlotRecursive is the PML4 index dedicated to the recursive
	// self-mapping trick walk() relies on. It too is copied into every
	// user address space, since the kernel must be able to walk page
	// tables while any process's address space is active.
	kernelSlotRecursive = 511
)

var (
	// kernelSpaceStart is the first page of PML4 slot kernelSlotLow.
	kernelSpaceStart = PageFromAddress(0xffff000000000000 | uintptr(kernelSlotLow)<<pageLevelShifts[0])

	// nonCanonicalHoleStart/End bound the unusable "hole" in the middle
	// of the 48-bit canonical address range that every amd64 virtual
	// address must avoid.
	nonCanonicalHoleStart = PageFromAddress(0x0000800000000000)
	nonCanonicalHoleEnd   = PageFromAddress(0xffff800000000000)

	errNotOwned          = &kernel.Error{Module: "vmm", Message: "page is not owned by this address space"}
	errAddressSpaceNoMem = &kernel.Error{Module: "vmm", Message: "out of memory while updating address space"}
)

// AddressSpace is a process-private mapping from virtual pages to physical
// frames, plus the index of address ranges not currently in use. One
// instance, KernelSpace, is a singleton built at boot before dynamic frame
// allocation exists; every other instance backs a single user process.
type AddressSpace struct {
	pdt    PageDirectoryTable
	free   regionIndex
	kernel bool

	pagesMapped uint64
}

// KernelSpace is the address space shared by the kernel itself. It is
// initialized once by Init and its top-level PML4 entries are copied into
// every user AddressSpace created afterwards.
var KernelSpace AddressSpace

// New allocates a PML4 frame, installs the recursive self-mapping and the
// shared kernel slots, and seeds the free-region index with both canonical
// user halves.
func New() (*AddressSpace, *kernel.Error) {
	frame, err := frameAllocator()
	if err != nil {
		return nil, err
	}

	as := &AddressSpace{}
	if err := as.pdt.Init(frame); err != nil {
		return nil, err
	}
	if err := as.pdt.CopyKernelSlot(KernelSpace.pdt, kernelSlotLow); err != nil {
		return nil, err
	}
	if err := as.pdt.CopyKernelSlot(KernelSpace.pdt, kernelSlotRecursive); err != nil {
		return nil, err
	}

	as.free.regions = []freeRegion{
		{start: PageFromAddress(uintptr(mem.PageSize)), pages: uint64(nonCanonicalHoleStart - PageFromAddress(uintptr(mem.PageSize)))},
		{start: nonCanonicalHoleEnd, pages: uint64(kernelSpaceStart - nonCanonicalHoleEnd)},
	}

	return as, nil
}

// ReserveRange removes an n-page free region from the index (best-fit) and
// returns its start page.
func (as *AddressSpace) ReserveRange(n uint64) (Page, *kernel.Error) {
	return as.free.reserveRange(n)
}

// ReserveAt removes exactly [addr, addr+n) from the free index.
func (as *AddressSpace) ReserveAt(addr Page, n uint64) *kernel.Error {
	return as.free.reserveAt(addr, n)
}

// MarkFree returns [addr, addr+n) to the free index, coalescing with
// adjacent regions.
func (as *AddressSpace) MarkFree(addr Page, n uint64) *kernel.Error {
	return as.free.markFree(addr, n)
}

// Map installs a mapping for page in this address space. noAccess installs
// the reserved "dud" entry instead of a real mapping, reserving the slot
// while guaranteeing any access faults -- used for lazily-allocated
// shared-memory pages that have not yet received a backing frame.
func (as *AddressSpace) Map(page Page, frame pmm.Frame, writable, owned, noAccess bool) *kernel.Error {
	if noAccess {
		return as.installDud(page)
	}

	flags := FlagPresent | FlagUserAccessible
	if writable {
		flags |= FlagRW
	}

	var err *kernel.Error
	if as.kernel {
		err = Map(page, frame, flags, owned)
	} else {
		err = as.pdt.Map(page, frame, flags, owned)
	}
	if err != nil {
		return err
	}

	as.pagesMapped++
	return nil
}

// installDud writes the reserved always-fault marker into page's leaf
// entry without touching the free index (the caller has already reserved
// the range).
func (as *AddressSpace) installDud(page Page) *kernel.Error {
	var err *kernel.Error
	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			*pte = dudEntry
			return true
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
		}
		return true
	})
	return err
}

// Unmap clears page's leaf entry. If the entry was owned and freePage is
// true, its frame is returned to alloc and the page is added back to the
// free index. It is a no-op for absent mappings.
func (as *AddressSpace) Unmap(page Page, freePage bool, alloc func(pmm.Frame) *kernel.Error) *kernel.Error {
	pte, err := pteForAddress(page.Address())
	if err == ErrInvalidMapping {
		return nil
	} else if err != nil {
		return err
	}

	owned := pte.HasFlags(FlagOwned)
	frame := pte.Frame()

	var unmapErr *kernel.Error
	if as.kernel {
		unmapErr = Unmap(page)
	} else {
		unmapErr = as.pdt.Unmap(page)
	}
	if unmapErr != nil {
		return unmapErr
	}

	as.pagesMapped--

	if owned && freePage && alloc != nil {
		if err := alloc(frame); err != nil {
			return err
		}
	}

	return as.free.markFree(page, 1)
}

// Translate walks the page tables for virtAddr and returns the physical
// address it resolves to. If requireOwned is set, a present-but-unowned
// mapping (e.g. MMIO, a shared-memory window) is rejected.
func (as *AddressSpace) Translate(virtAddr uintptr, requireOwned bool) (uintptr, *kernel.Error) {
	pte, err := pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}
	if requireOwned && !pte.HasFlags(FlagOwned) {
		return 0, errNotOwned
	}
	return pte.Frame().Address() + PageOffset(virtAddr), nil
}

// GetOrCreate translates virtAddr, allocating and mapping a fresh owned
// frame on a miss.
func (as *AddressSpace) GetOrCreate(virtAddr uintptr) (pmm.Frame, *kernel.Error) {
	if phys, err := as.Translate(virtAddr, false); err == nil {
		return pmm.FrameFromAddress(phys), nil
	}

	page := PageFromAddress(virtAddr)
	if err := as.free.reserveAt(page, 1); err != nil {
		return pmm.InvalidFrame, err
	}

	frame, err := frameAllocator()
	if err != nil {
		as.free.markFree(page, 1)
		return pmm.InvalidFrame, errAddressSpaceNoMem
	}

	if err := as.Map(page, frame, true, true, false); err != nil {
		as.free.markFree(page, 1)
		return pmm.InvalidFrame, err
	}

	return frame, nil
}

// SetRights rewrites the write permission of an owned, present mapping and
// flushes its TLB entry. It is a no-op for non-owned or absent mappings.
func (as *AddressSpace) SetRights(virtAddr uintptr, writable bool) {
	pte, err := pteForAddress(virtAddr)
	if err != nil || !pte.HasFlags(FlagOwned) {
		return
	}

	if writable {
		pte.SetFlags(FlagRW)
	} else {
		pte.ClearFlags(FlagRW)
	}
	flushTLBEntryFn(virtAddr)
}

// SwitchTo loads this address space's root table into CR3, unless it is
// already active.
func (as *AddressSpace) SwitchTo() {
	as.pdt.Activate()
}

// PagesMapped returns the number of pages currently mapped in this address
// space, for the process-used-memory/total-system-memory syscalls.
func (as *AddressSpace) PagesMapped() uint64 {
	return as.pagesMapped
}

// Release frees every owned leaf frame and every intermediate page table
// this address space allocated for its own private PML4 slots (indices
// below kernelSlotLow). It deliberately never walks into kernelSlotLow or
// kernelSlotRecursive -- both subtrees are shared with every other address
// space, so freeing them here would free a table still in use elsewhere --
// and it never frees as's own PML4 frame; proc.Destroy, its only caller,
// does not free that frame either (spec.md 9's teardown asymmetry: the open question
// names this a deliberate property of the original teardown walk, not a
// bug, and this port preserves it rather than resolving it).
func (as *AddressSpace) Release(freeFrame func(pmm.Frame) *kernel.Error) *kernel.Error {
	if as.kernel {
		return nil
	}
	return as.pdt.withActive(func() *kernel.Error {
		return releaseSubtree(as.pdt.Frame(), 0, int(kernelSlotLow), freeFrame)
	})
}

// releaseSubtree frees every present entry in [0, hi) of the table backing
// frame at the given page level: owned leaf frames are returned directly,
// intermediate tables are recursed into and then freed themselves. It
// copies the table's contents out to a local array before recursing, since
// MapTemporary has only one reserved virtual address and a nested call
// would otherwise repoint it out from under the caller's still-unfinished
// loop.
func releaseSubtree(frame pmm.Frame, level uint8, hi int, freeFrame func(pmm.Frame) *kernel.Error) *kernel.Error {
	page, err := MapTemporary(frame)
	if err != nil {
		return err
	}
	var entries [512]pageTableEntry
	copy(entries[:], (*[512]pageTableEntry)(unsafe.Pointer(page.Address()))[:])
	if err := Unmap(page); err != nil {
		return err
	}

	for i := 0; i < hi; i++ {
		pte := entries[i]
		if !pte.HasFlags(FlagPresent) || pte.IsDud() {
			continue
		}
		child := pte.Frame()

		if level == pageLevels-1 {
			if pte.HasFlags(FlagOwned) {
				if err := freeFrame(child); err != nil {
					return err
				}
			}
			continue
		}

		if err := releaseSubtree(child, level+1, 512, freeFrame); err != nil {
			return err
		}
		if err := freeFrame(child); err != nil {
			return err
		}
	}

	return nil
}
