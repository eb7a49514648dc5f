package allocator

import (
	"nucleus/kernel"
	"nucleus/kernel/hal/multiboot"
	"nucleus/kernel/kfmt/early"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
)

var (
	// earlyAllocator is a static instance of the boot memory allocator which
	// is used to bootstrap the kernel (in particular, the vmm package's own
	// page tables) before the free-stack allocator can be built.
	earlyAllocator bootMemAllocator

	errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// bootMemAllocator implements a rudimentary physical memory allocator which
// is used to bootstrap the kernel.
//
// The allocator implementation uses the memory region information provided
// by the bootloader to detect free memory blocks and return the next
// available free frame.
//
// Allocations are tracked via an internal counter that contains the last
// allocated frame index. The system memory regions are mapped into a linear
// page index by aligning the region start address to the system's page size
// and then dividing by the page size.
//
// Due to the way that the allocator works, it is not possible to free
// allocated pages. Once the stack allocator is initialized, the frames
// consumed here are marked as reserved so they are never handed out twice.
type bootMemAllocator struct {
	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// lastAllocFrame tracks the last allocated frame.
	lastAllocFrame pmm.Frame
}

// init resets the allocator state and prints out the system memory map.
func (alloc *bootMemAllocator) init() {
	alloc.lastAllocFrame = pmm.InvalidFrame

	early.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree mem.Size
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		early.Printf("\t[%10x - %10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == multiboot.MemAvailable {
			totalFree += mem.Size(region.Length)
		}
		return true
	})
	early.Printf("[boot_mem_alloc] free memory: %dKb\n", uint64(totalFree/mem.Kb))
}

// AllocFrame scans the system memory regions reported by the bootloader and
// reserves the next available free frame.
func (alloc *bootMemAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	var (
		foundFrame                = pmm.InvalidFrame
		regionStartFrame, regionEndFrame pmm.Frame
	)

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}

		// Align region start address to a page boundary and find the start
		// and end frames for the region.
		regionStartFrame = pmm.Frame(((region.PhysAddress + uint64(mem.PageSize-1)) &^ uint64(mem.PageSize-1)) >> mem.PageShift)
		regionEndFrame = pmm.Frame(((region.PhysAddress+region.Length)&^uint64(mem.PageSize-1))>>mem.PageShift) - 1

		// Ignore already allocated regions.
		if alloc.allocCount != 0 && alloc.lastAllocFrame >= regionEndFrame {
			return true
		}

		// The last allocated frame either points to a previous region or
		// points inside this one. In the first case select the region's
		// start frame; in the latter case select the next available frame.
		if alloc.allocCount == 0 || alloc.lastAllocFrame < regionStartFrame {
			foundFrame = regionStartFrame
		} else {
			foundFrame = alloc.lastAllocFrame + 1
		}
		return false
	})

	if !foundFrame.Valid() {
		return pmm.InvalidFrame, errBootAllocOutOfMemory
	}

	alloc.allocCount++
	alloc.lastAllocFrame = foundFrame

	return foundFrame, nil
}
