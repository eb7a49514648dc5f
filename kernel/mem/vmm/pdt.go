package vmm

import (
	"unsafe"

	"nucleus/kernel"
	"nucleus/kernel/cpu"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
)

var (
	// activePDTFn and switchPDTFn are overridden by tests; the kernel
	// build inlines them away.
	activePDTFn = cpu.ActivePDT
	switchPDTFn = cpu.SwitchPDT
)

func lastEntryAddr(pdtFrame pmm.Frame) uintptr {
	return pdtFrame.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)
}

// PageDirectoryTable is the top-most table (PML4) of a 4-level paging
// hierarchy: the root of one AddressSpace.
type PageDirectoryTable struct {
	pdtFrame pmm.Frame
}

// Frame returns the physical frame backing this table.
func (pdt PageDirectoryTable) Frame() pmm.Frame {
	return pdt.pdtFrame
}

// Init points this table at pdtFrame. If pdtFrame is not the currently
// active table, Init assumes it is freshly allocated and needs
// bootstrapping: it clears the frame and installs the recursive mapping in
// its last entry (the entry points back at pdtFrame itself), which is what
// lets walk() reach every table level through ordinary virtual addressing.
func (pdt *PageDirectoryTable) Init(pdtFrame pmm.Frame) *kernel.Error {
	pdt.pdtFrame = pdtFrame

	if pdtFrame.Address() == activePDTFn() {
		return nil
	}

	pdtPage, err := MapTemporary(pdtFrame)
	if err != nil {
		return err
	}

	mem.Memset(pdtPage.Address(), 0, mem.PageSize)
	lastEntry := (*pageTableEntry)(unsafe.Pointer(pdtPage.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)))
	*lastEntry = 0
	lastEntry.SetFlags(FlagPresent | FlagRW)
	lastEntry.SetFrame(pdtFrame)

	return Unmap(pdtPage)
}

// CopyKernelSlot copies the shared kernel top-level PML4 entry from src into
// this table, so that user-mode traps find the kernel's mappings without a
// CR3-relative lookup. It must be called after Init.
func (pdt *PageDirectoryTable) CopyKernelSlot(src PageDirectoryTable, slot uintptr) *kernel.Error {
	srcPage, err := MapTemporary(src.pdtFrame)
	if err != nil {
		return err
	}
	srcEntry := *(*pageTableEntry)(unsafe.Pointer(srcPage.Address() + (slot << mem.PointerShift)))
	if err := Unmap(srcPage); err != nil {
		return err
	}

	dstPage, err := MapTemporary(pdt.pdtFrame)
	if err != nil {
		return err
	}
	defer Unmap(dstPage)

	*(*pageTableEntry)(unsafe.Pointer(dstPage.Address() + (slot << mem.PointerShift))) = srcEntry
	return nil
}

// withActive temporarily installs pdt's frame into the currently active
// PML4's recursive self-mapping slot so that Map/Unmap/Translate (which
// always operate through the *active* recursive mapping) can reach an
// inactive table's entries. It is restored on return.
func (pdt PageDirectoryTable) withActive(fn func() *kernel.Error) *kernel.Error {
	activePdtFrame := pmm.FrameFromAddress(activePDTFn())
	if activePdtFrame == pdt.pdtFrame {
		return fn()
	}

	addr := lastEntryAddr(activePdtFrame)
	entry := (*pageTableEntry)(unsafe.Pointer(addr))
	entry.SetFrame(pdt.pdtFrame)
	flushTLBEntryFn(addr)

	err := fn()

	entry.SetFrame(activePdtFrame)
	flushTLBEntryFn(addr)

	return err
}

// Map behaves like the package-level Map but also works for inactive
// tables, by temporarily substituting pdt into the active recursive
// mapping slot.
func (pdt PageDirectoryTable) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag, owned bool) *kernel.Error {
	return pdt.withActive(func() *kernel.Error { return Map(page, frame, flags, owned) })
}

// Unmap behaves like the package-level Unmap but also works for inactive
// tables.
func (pdt PageDirectoryTable) Unmap(page Page) *kernel.Error {
	return pdt.withActive(func() *kernel.Error { return Unmap(page) })
}

// Activate loads this table into CR3 and flushes the TLB, unless it is
// already the active table.
func (pdt PageDirectoryTable) Activate() {
	if pdt.pdtFrame.Address() == activePDTFn() {
		return
	}
	switchPDTFn(pdt.pdtFrame.Address())
}
