package allocator

import (
	"unsafe"

	"nucleus/kernel"
	"nucleus/kernel/hal/multiboot"
	"nucleus/kernel/kfmt/early"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/vmm"
)

var (
	// FrameAllocator is the StackAllocator instance that serves as the
	// primary physical frame allocator once the kernel is far enough along
	// to have a working vmm temporary-mapping window.
	FrameAllocator StackAllocator

	// The following functions are used by tests to mock calls to the vmm
	// package and are automatically inlined by the compiler when building
	// the kernel.
	mapTemporaryFn = vmm.MapTemporary
	unmapFn        = vmm.Unmap

	errStackAllocOutOfMemory = &kernel.Error{Module: "stack_alloc", Message: "out of memory"}
)

// StackAllocator implements spec.md 4.1's physical frame allocator: a LIFO
// stack of free frames where the "next" pointer is written into the first
// machine word of each free page, so the free list requires no separate
// backing storage. Touching a physical page's first word requires mapping
// it, which is done through the vmm package's temporary-mapping window.
type StackAllocator struct {
	// top is the frame at the head of the free stack, or pmm.InvalidFrame
	// if the stack is empty.
	top pmm.Frame

	// freePages is the number of frames currently on the free stack. It
	// must always equal the stack's length (spec.md 8, invariant 4).
	freePages uint64

	// trimFn is invoked once by Allocate when the stack is found empty, to
	// give the rest of the kernel a chance to release cached pages before
	// giving up with OOM.
	trimFn  func()
	trimmed bool
}

// SetTrimFn registers the pool-trim callback invoked once per Allocate call
// that finds the free stack empty.
func (alloc *StackAllocator) SetTrimFn(fn func()) {
	alloc.trimFn = fn
}

// FreePages returns the number of frames currently on the free stack.
func (alloc *StackAllocator) FreePages() uint64 {
	return alloc.freePages
}

// AllocFrame allocates a frame from the package's singleton FrameAllocator.
// It exists as a free function so callers (e.g. the Go runtime bootstrap)
// do not need to reach into the allocator package's internal state.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	return FrameAllocator.Allocate()
}

// readNext reads the "next frame" link stored in the first word of the
// given (currently unmapped, currently free) physical frame.
func (alloc *StackAllocator) readNext(frame pmm.Frame) (pmm.Frame, *kernel.Error) {
	page, err := mapTemporaryFn(frame)
	if err != nil {
		return pmm.InvalidFrame, err
	}
	defer unmapFn(page)

	return *(*pmm.Frame)(unsafe.Pointer(page.Address())), nil
}

// writeNext stores next as the "next frame" link of frame.
func (alloc *StackAllocator) writeNext(frame, next pmm.Frame) *kernel.Error {
	page, err := mapTemporaryFn(frame)
	if err != nil {
		return err
	}
	defer unmapFn(page)

	*(*pmm.Frame)(unsafe.Pointer(page.Address())) = next
	return nil
}

// zero clears the contents of frame.
func (alloc *StackAllocator) zero(frame pmm.Frame) *kernel.Error {
	page, err := mapTemporaryFn(frame)
	if err != nil {
		return err
	}
	defer unmapFn(page)

	mem.Memset(page.Address(), 0, mem.PageSize)
	return nil
}

// pop removes and returns the frame at the top of the free stack.
func (alloc *StackAllocator) pop() (pmm.Frame, *kernel.Error) {
	if !alloc.top.Valid() {
		return pmm.InvalidFrame, errStackAllocOutOfMemory
	}

	frame := alloc.top
	next, err := alloc.readNext(frame)
	if err != nil {
		return pmm.InvalidFrame, err
	}

	alloc.top = next
	alloc.freePages--
	return frame, nil
}

// Allocate pops the top of the free stack and returns it, zeroed. If the
// stack is empty, the registered trim callback (if any) is invoked once and
// the pop is retried before giving up with OOM.
func (alloc *StackAllocator) Allocate() (pmm.Frame, *kernel.Error) {
	frame, err := alloc.pop()
	if err != nil && alloc.trimFn != nil && !alloc.trimmed {
		alloc.trimmed = true
		alloc.trimFn()
		frame, err = alloc.pop()
		alloc.trimmed = false
	}
	if err != nil {
		return pmm.InvalidFrame, errStackAllocOutOfMemory
	}

	if err := alloc.zero(frame); err != nil {
		return pmm.InvalidFrame, err
	}

	return frame, nil
}

// AllocateBelow walks the free stack looking for the first frame whose
// physical address is <= maxPhys, unlinks it and returns it, zeroed. It is
// used by drivers that require DMA-addressable memory.
func (alloc *StackAllocator) AllocateBelow(maxPhys uintptr) (pmm.Frame, *kernel.Error) {
	prev := pmm.InvalidFrame
	cur := alloc.top

	for cur.Valid() {
		next, err := alloc.readNext(cur)
		if err != nil {
			return pmm.InvalidFrame, err
		}

		if cur.Address() <= maxPhys {
			if prev.Valid() {
				if err := alloc.writeNext(prev, next); err != nil {
					return pmm.InvalidFrame, err
				}
			} else {
				alloc.top = next
			}
			alloc.freePages--

			if err := alloc.zero(cur); err != nil {
				return pmm.InvalidFrame, err
			}
			return cur, nil
		}

		prev, cur = cur, next
	}

	return pmm.InvalidFrame, errStackAllocOutOfMemory
}

// Free zeroes frame's contents and pushes it onto the free stack.
func (alloc *StackAllocator) Free(frame pmm.Frame) *kernel.Error {
	if err := alloc.zero(frame); err != nil {
		return err
	}
	if err := alloc.writeNext(frame, alloc.top); err != nil {
		return err
	}

	alloc.top = frame
	alloc.freePages++
	return nil
}

// earlyAllocFrame delegates a frame allocation request to the boot
// allocator. It is passed as an argument to vmm.SetFrameAllocator instead of
// earlyAllocator.AllocFrame directly because the latter confuses the
// compiler's escape analysis into thinking earlyAllocator escapes to heap.
func earlyAllocFrame() (pmm.Frame, *kernel.Error) {
	return earlyAllocator.AllocFrame()
}

// reserveBootFrames replays the boot allocator's allocation sequence to
// discover which frames it already handed out, and pushes every other
// available frame reported by the bootloader onto the free stack. Frames
// that fall inside [kernelStart, kernelEnd] (the loaded kernel image) are
// never pushed; they remain permanently reserved.
func (alloc *StackAllocator) reserveBootFrames(kernelStart, kernelEnd uintptr) *kernel.Error {
	bootAllocated := make(map[pmm.Frame]bool, earlyAllocator.allocCount)
	replay := bootMemAllocator{}
	for i := uint64(0); i < earlyAllocator.allocCount; i++ {
		frame, _ := replay.AllocFrame()
		bootAllocated[frame] = true
	}

	kernelStartFrame := pmm.FrameFromAddress(kernelStart)
	kernelEndFrame := pmm.FrameFromAddress(kernelEnd)

	var pushErr *kernel.Error
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}

		startFrame := pmm.Frame(((region.PhysAddress + uint64(mem.PageSize-1)) &^ uint64(mem.PageSize-1)) >> mem.PageShift)
		endFrame := pmm.Frame(((region.PhysAddress+region.Length)&^uint64(mem.PageSize-1))>>mem.PageShift) - 1

		for frame := startFrame; frame <= endFrame; frame++ {
			if bootAllocated[frame] {
				continue
			}
			if frame >= kernelStartFrame && frame <= kernelEndFrame {
				continue
			}

			if err := alloc.Free(frame); err != nil {
				pushErr = err
				return false
			}
		}
		return true
	})

	return pushErr
}

// Init bootstraps the physical memory subsystem: it starts the boot
// allocator (used by vmm.Init to build the kernel's own page tables) and
// wires it into the vmm package. Handing the remaining available memory to
// the free-stack allocator is left to FinalizeBootMemory, which the caller
// invokes once vmm is up.
func Init(kernelStart, kernelEnd uintptr) *kernel.Error {
	earlyAllocator.init()
	vmm.SetFrameAllocator(earlyAllocFrame)
	return nil
}

// FinalizeBootMemory transfers ownership of physical memory from the boot
// allocator to the free-stack allocator. It must be called once vmm.Init
// has completed, so that the temporary-mapping window used to write free
// stack links is available.
func FinalizeBootMemory(kernelStart, kernelEnd uintptr) *kernel.Error {
	if err := FrameAllocator.reserveBootFrames(kernelStart, kernelEnd); err != nil {
		return err
	}

	vmm.SetFrameAllocator(FrameAllocator.Allocate)
	early.Printf("[stack_alloc] free pages: %d\n", FrameAllocator.FreePages())
	return nil
}

// DoneWithBootMemory releases the kernel's virtual mapping for the
// bootloader's scratch region (the low-memory area used to stage multiboot
// modules) once every module has been consumed by its loader. The
// underlying frames are returned to the free stack.
func DoneWithBootMemory() *kernel.Error {
	var err *kernel.Error
	multiboot.VisitModules(func(mod *multiboot.Module) bool {
		startFrame := pmm.FrameFromAddress(uintptr(mod.Start))
		endFrame := pmm.FrameFromAddress(uintptr(mod.End))

		for frame := startFrame; frame <= endFrame; frame++ {
			page := vmm.PageFromAddress(frame.Address())
			if uerr := vmm.Unmap(page); uerr != nil {
				err = uerr
				return false
			}
			if ferr := FrameAllocator.Free(frame); ferr != nil {
				err = ferr
				return false
			}
		}
		return true
	})

	return err
}
