// Package pmm contains code that manages physical memory frame allocations.
package pmm

import (
	"math"

	"nucleus/kernel/mem"
)

// Frame describes a physical memory page index. The system model supports a
// single page size (mem.PageSize); there is no page-order packing.
type Frame uint64

// InvalidFrame is returned by page allocators when they fail to reserve the
// requested frame.
const InvalidFrame = Frame(math.MaxUint64)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << mem.PageShift)
}

// FrameFromAddress returns the Frame that contains the given physical
// address. The address is rounded down to the nearest frame boundary.
func FrameFromAddress(phys uintptr) Frame {
	return Frame(phys >> mem.PageShift)
}
