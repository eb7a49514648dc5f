package proc

import (
	"nucleus/kernel"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/pmm/allocator"
	"nucleus/kernel/mem/vmm"
)

var errNotDriver = &kernel.Error{Module: "proc", Message: "operation requires a driver process"}

// AllocatePages reserves and backs a fresh, writable, owned range of pages
// in p's address space, rolling back everything it mapped if it runs out of
// memory partway through.
func AllocatePages(p *Process, pages uint64) (uintptr, *kernel.Error) {
	return allocatePages(p, pages, allocator.AllocFrame)
}

// AllocatePagesBelowPhysicalBase is the driver-only variant used for
// devices that can only DMA into low physical memory (e.g. legacy ISA
// hardware): every backing frame is guaranteed to sit below maxPhys.
func AllocatePagesBelowPhysicalBase(p *Process, pages uint64, maxPhys uintptr) (uintptr, *kernel.Error) {
	if !p.IsDriver {
		return 0, errNotDriver
	}
	return allocatePages(p, pages, func() (pmm.Frame, *kernel.Error) {
		return allocator.FrameAllocator.AllocateBelow(maxPhys)
	})
}

func allocatePages(p *Process, pages uint64, alloc func() (pmm.Frame, *kernel.Error)) (uintptr, *kernel.Error) {
	base, err := p.AddressSpace.ReserveRange(pages)
	if err != nil {
		return 0, err
	}

	var i uint64
	for i = 0; i < pages; i++ {
		frame, ferr := alloc()
		if ferr != nil {
			break
		}
		if merr := p.AddressSpace.Map(base+vmm.Page(i), frame, true, true, false); merr != nil {
			break
		}
	}
	if i < pages {
		for j := uint64(0); j < i; j++ {
			p.AddressSpace.Unmap(base+vmm.Page(j), true, frameFreer)
		}
		// Each Unmap above already returned its page to the free index;
		// only the never-mapped tail is still reserved.
		p.AddressSpace.MarkFree(base+vmm.Page(i), pages-i)
		return 0, errSendOOM
	}

	return base.Address(), nil
}

// ReleasePages unmaps and frees a previously allocated range.
func ReleasePages(p *Process, addr uintptr, pages uint64) *kernel.Error {
	base := vmm.PageFromAddress(addr)
	for i := uint64(0); i < pages; i++ {
		if err := p.AddressSpace.Unmap(base+vmm.Page(i), true, frameFreer); err != nil {
			return err
		}
	}
	return nil
}

// MapPhysical is the driver-only primitive that maps an arbitrary physical
// address range (MMIO, a framebuffer, ...) into p's address space without
// transferring frame ownership: the mapping is never counted as owned, so
// releasing it never returns the underlying frames to the allocator.
func MapPhysical(p *Process, physAddr uintptr, pages uint64, writable bool) (uintptr, *kernel.Error) {
	if !p.IsDriver {
		return 0, errNotDriver
	}

	base, err := p.AddressSpace.ReserveRange(pages)
	if err != nil {
		return 0, err
	}

	for i := uint64(0); i < pages; i++ {
		frame := pmm.FrameFromAddress(physAddr + uintptr(i)*uintptr(mem.PageSize))
		if merr := p.AddressSpace.Map(base+vmm.Page(i), frame, writable, false, false); merr != nil {
			p.AddressSpace.MarkFree(base, pages)
			return 0, merr
		}
	}
	return base.Address(), nil
}

// VirtToPhys is the driver-only virtual-to-physical translation primitive.
func VirtToPhys(p *Process, virtAddr uintptr) (uintptr, *kernel.Error) {
	if !p.IsDriver {
		return 0, errNotDriver
	}
	return p.AddressSpace.Translate(virtAddr, false)
}

// SetMemoryRights rewrites the write permission of a single owned, present
// page.
func SetMemoryRights(p *Process, addr uintptr, writable bool) {
	p.AddressSpace.SetRights(addr, writable)
}
