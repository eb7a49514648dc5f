package vmm

import (
	"nucleus/kernel"
	"nucleus/kernel/irq"
	"nucleus/kernel/kfmt/early"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
)

var errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "page/gpf fault"}

// userCodeSelectorRing3Mask isolates the requested-privilege-level bits of
// a CS selector; a non-zero result means the fault was taken from ring 3.
const userCodeSelectorRing3Mask = 0x3

// LazyFaultHandler is consulted by the page fault handler whenever the
// faulting entry is the reserved dud marker: a page reserved for lazy
// allocation (spec.md's SharedMemory) that has not yet received a backing
// frame. It returns the frame to install and true if it handled the fault,
// or false to let the fault fall through as unrecoverable. Wired by the
// proc package once it initializes.
var LazyFaultHandler func(faultAddr uintptr) (pmm.Frame, bool)

// UserFaultHandler is consulted whenever a page or general-protection
// fault reaches user mode unresolved by the dud/copy-on-write paths above.
// Per spec.md 4.8/6, a fault whose rip lies in kernel space always halts
// the system (below); a fault from ring 3 is instead routed here so the
// faulting process can be torn down while the rest of the system keeps
// running. Wired by the proc package.
var UserFaultHandler func(faultAddr uintptr, frame *irq.Frame, regs *irq.Regs)

func installFaultHandlers() {
	irq.HandleExceptionWithCode(irq.PageFaultException, pageFaultHandler)
	irq.HandleException(irq.GPFException, generalProtectionFaultHandler)
}

func pageFaultHandler(errorCode uint64, frame *irq.Frame, regs *irq.Regs) {
	var (
		faultAddress = uintptr(readCR2Fn())
		faultPage    = PageFromAddress(faultAddress)
		pageEntry    *pageTableEntry
	)

	walk(faultPage.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			pageEntry = pte
			return false
		}
		return pte.HasFlags(FlagPresent)
	})

	if pageEntry != nil {
		switch {
		case pageEntry.IsDud() && LazyFaultHandler != nil:
			if frame, ok := LazyFaultHandler(faultAddress); ok {
				*pageEntry = 0
				pageEntry.SetFrame(frame)
				pageEntry.SetFlags(FlagPresent | FlagRW | FlagUserAccessible | FlagOwned)
				flushTLBEntryFn(faultPage.Address())
				return
			}
		case !pageEntry.HasFlags(FlagRW) && pageEntry.HasFlags(FlagCopyOnWrite):
			if recoverCopyOnWrite(faultPage, pageEntry) {
				return
			}
		}
	}

	nonRecoverablePageFault(faultAddress, errorCode, frame, regs, errUnrecoverableFault)
}

// recoverCopyOnWrite makes a private copy of the reserved zero frame (or
// whatever frame a lazily-allocated mapping pointed to) and installs it in
// place with write access, clearing the CoW flag.
func recoverCopyOnWrite(faultPage Page, pageEntry *pageTableEntry) bool {
	copyFrame, err := frameAllocator()
	if err != nil {
		return false
	}

	tmpPage, err := MapTemporary(copyFrame)
	if err != nil {
		return false
	}
	mem.Memcopy(faultPage.Address(), tmpPage.Address(), mem.PageSize)
	if err := Unmap(tmpPage); err != nil {
		return false
	}

	pageEntry.ClearFlags(FlagCopyOnWrite)
	pageEntry.SetFlags(FlagPresent | FlagRW)
	pageEntry.SetFrame(copyFrame)
	flushTLBEntryFn(faultPage.Address())
	return true
}

func nonRecoverablePageFault(faultAddress uintptr, errorCode uint64, frame *irq.Frame, regs *irq.Regs, err *kernel.Error) {
	if frame.CS&userCodeSelectorRing3Mask != 0 && UserFaultHandler != nil {
		UserFaultHandler(faultAddress, frame, regs)
		return
	}

	early.Printf("\npage fault while accessing address: 0x%16x\nreason: ", faultAddress)
	switch errorCode {
	case 0:
		early.Printf("read from non-present page")
	case 1:
		early.Printf("page protection violation (read)")
	case 2:
		early.Printf("write to non-present page")
	case 3:
		early.Printf("page protection violation (write)")
	case 4:
		early.Printf("page-fault in user-mode")
	case 8:
		early.Printf("page table has reserved bit set")
	case 16:
		early.Printf("instruction fetch")
	default:
		early.Printf("unknown")
	}

	early.Printf("\n\nregisters:\n")
	regs.Print()
	frame.Print()

	kernel.Panic(err)
}

func generalProtectionFaultHandler(frame *irq.Frame, regs *irq.Regs) {
	if frame.CS&userCodeSelectorRing3Mask != 0 && UserFaultHandler != nil {
		UserFaultHandler(uintptr(readCR2Fn()), frame, regs)
		return
	}

	early.Printf("\ngeneral protection fault while accessing address: 0x%x\n", readCR2Fn())
	regs.Print()
	frame.Print()

	kernel.Panic(errUnrecoverableFault)
}
