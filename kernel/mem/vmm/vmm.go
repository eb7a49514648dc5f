package vmm

import (
	"nucleus/kernel"
	"nucleus/kernel/cpu"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
)

var (
	// readCR2Fn is overridden by tests; the kernel build inlines it away.
	readCR2Fn = cpu.ReadCR2

	// windowBase is the first page of the 512-slot temporary-mapping
	// window (spec.md 4.2). It sits directly below tempMappingAddr, the
	// single legacy slot used internally while bootstrapping page tables
	// before the window itself exists.
	windowBase = PageFromAddress(tempMappingAddr) - tempWindowSlots

	errTempWindowSlot = &kernel.Error{Module: "vmm", Message: "temporary mapping window slot out of range"}
)

// Init brings up the kernel's own address space: a PML4 with the recursive
// self-mapping installed, a coarse identity-style mapping for the loaded
// kernel image, the reserved zero frame used for copy-on-write, and the
// 512-slot scratch window used to touch physical frames that have no
// permanent mapping yet.
//
// kernelStart/kernelEnd bound the kernel image as reported by the
// bootloader; kernelPageOffset is the virtual address the link-time kernel
// base was relocated to.
func Init(kernelStart, kernelEnd, kernelPageOffset uintptr) *kernel.Error {
	kernelPDTFrame, err := frameAllocator()
	if err != nil {
		return err
	}

	if err := KernelSpace.pdt.Init(kernelPDTFrame); err != nil {
		return err
	}
	KernelSpace.kernel = true
	KernelSpace.free.regions = []freeRegion{
		{start: kernelSpaceStart, pages: uint64(windowBase - kernelSpaceStart)},
	}

	KernelSpace.pdt.Activate()

	for page := PageFromAddress(kernelStart); page.Address() < kernelEnd; page++ {
		frame := pmm.FrameFromAddress(page.Address() - kernelPageOffset + kernelStart)
		if err := Map(page, frame, FlagPresent|FlagRW, false); err != nil {
			return err
		}
	}

	installFaultHandlers()

	if err := reserveZeroedFrame(); err != nil {
		return err
	}

	return initTempWindow()
}

// reserveZeroedFrame allocates and clears ReservedZeroedFrame, the blank
// page lazily-allocated mappings point to until the first write forces a
// private copy.
func reserveZeroedFrame() *kernel.Error {
	frame, err := frameAllocator()
	if err != nil {
		return err
	}

	page, err := MapTemporary(frame)
	if err != nil {
		return err
	}
	mem.Memset(page.Address(), 0, mem.PageSize)
	if err := Unmap(page); err != nil {
		return err
	}

	ReservedZeroedFrame = frame
	protectReservedZeroedPage = true
	return nil
}

// initTempWindow eagerly maps every slot of the temporary-mapping window
// to ReservedZeroedFrame, forcing allocation of the intermediate tables so
// that later calls to TempMapPhysical only ever rewrite a leaf entry.
func initTempWindow() *kernel.Error {
	for i := uint16(0); i < tempWindowSlots; i++ {
		page := windowBase + Page(i)
		if err := Map(page, ReservedZeroedFrame, FlagPresent, false); err != nil {
			return err
		}
	}
	return nil
}

// EarlyReserveRegion reserves a page-aligned region of the requested size
// (rounded up) from the kernel address space's free-region index and
// returns its start virtual address. It is the size-based convenience
// wrapper the Go runtime bootstrap (goruntime) uses on top of
// AddressSpace.ReserveRange's page-count API.
func EarlyReserveRegion(size uintptr) (uintptr, *kernel.Error) {
	pages := mem.Size(size).Pages()
	page, err := KernelSpace.ReserveRange(uint64(pages))
	if err != nil {
		return 0, err
	}
	return page.Address(), nil
}

// TempMapPhysical rewrites window slot index to point at frame and returns
// its virtual address. Slots are pure scratch: callers must not assume a
// slot's contents survive a later call with the same index.
func TempMapPhysical(index uint16, frame pmm.Frame) (uintptr, *kernel.Error) {
	if index >= tempWindowSlots {
		return 0, errTempWindowSlot
	}

	page := windowBase + Page(index)
	pte, err := pteForAddress(page.Address())
	if err != nil {
		return 0, err
	}

	pte.SetFrame(frame)
	pte.SetFlags(FlagPresent | FlagRW)
	flushTLBEntryFn(page.Address())

	return page.Address(), nil
}
