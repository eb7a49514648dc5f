package syscall

import (
	"nucleus/kernel/irq"
	"nucleus/kernel/proc"
)

// memAllocatePages reserves and maps RBX fresh pages in the caller's
// address space. Result: RBX = base virtual address.
func memAllocatePages(t *proc.Thread, regs *irq.Regs) {
	addr, err := proc.AllocatePages(t.Process, regs.RBX)
	regs.RAX = mapError(err)
	regs.RBX = uint64(addr)
}

// memAllocatePagesBelowPhysicalBase is the driver-only DMA-addressable
// variant. Arguments: RBX = page count, RCX = max physical address.
func memAllocatePagesBelowPhysicalBase(t *proc.Thread, regs *irq.Regs) {
	addr, err := proc.AllocatePagesBelowPhysicalBase(t.Process, regs.RBX, uintptr(regs.RCX))
	regs.RAX = mapError(err)
	regs.RBX = uint64(addr)
}

// memReleasePages unmaps and frees RCX pages starting at RBX.
func memReleasePages(t *proc.Thread, regs *irq.Regs) {
	err := proc.ReleasePages(t.Process, uintptr(regs.RBX), regs.RCX)
	regs.RAX = mapError(err)
}

// memMapPhysical maps RCX pages of physical memory starting at RBX into the
// caller's address space (driver-only). Arguments: RBX = physical address,
// RCX = page count, RDX = writable (non-zero). Result: RBX = virtual
// address.
func memMapPhysical(t *proc.Thread, regs *irq.Regs) {
	addr, err := proc.MapPhysical(t.Process, uintptr(regs.RBX), regs.RCX, regs.RDX != 0)
	regs.RAX = mapError(err)
	regs.RBX = uint64(addr)
}

// memVirtToPhys translates RBX, a virtual address owned by the caller
// (driver-only), to its backing physical address in RBX.
func memVirtToPhys(t *proc.Thread, regs *irq.Regs) {
	phys, err := proc.VirtToPhys(t.Process, uintptr(regs.RBX))
	regs.RAX = mapError(err)
	regs.RBX = uint64(phys)
}

// memFreeSystemMemory returns the number of frames still on the free stack.
func memFreeSystemMemory(t *proc.Thread, regs *irq.Regs) {
	regs.RBX = proc.FreeSystemFrames()
	regs.RAX = ErrOK
}

// memProcessUsedMemory returns the number of frames mapped into the
// caller's own address space.
func memProcessUsedMemory(t *proc.Thread, regs *irq.Regs) {
	regs.RBX = proc.UsedSystemFrames(t.Process)
	regs.RAX = ErrOK
}

// memTotalSystemMemory returns the total frame count the system booted
// with.
func memTotalSystemMemory(t *proc.Thread, regs *irq.Regs) {
	regs.RBX = proc.TotalSystemFrames()
	regs.RAX = ErrOK
}

// memSetRights changes the writable bit of the page at RBX in the caller's
// address space. Arguments: RBX = address, RCX = writable (non-zero).
func memSetRights(t *proc.Thread, regs *irq.Regs) {
	proc.SetMemoryRights(t.Process, uintptr(regs.RBX), regs.RCX != 0)
	regs.RAX = ErrOK
}
