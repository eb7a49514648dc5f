package vmm

import "math"

const (
	// pageLevels indicates the number of page table levels supported by
	// the amd64 architecture (PML4, PDPT, PD, PT).
	pageLevels = 4

	// ptePhysPageMask isolates bits 12-51 of a page table entry, which
	// hold the physical frame address it points to.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// tempMappingAddr is a reserved virtual page used for single-shot
	// temporary physical page mappings (e.g. reading/writing an inactive
	// page table). For amd64 this address resolves to table indices
	// 510, 511, 511, 511.
	tempMappingAddr = uintptr(0xffffff7ffffff000)

	// tempWindowSlots is the number of indexable slots backing the
	// kernel temporary-mapping window (spec.md 4.2): a single leaf page
	// table whose 512 entries back a 2MiB virtual region reserved for
	// scratch physical-page access.
	tempWindowSlots = 512
)

var (
	// pdtVirtualAddr exploits the recursive mapping installed in the last
	// PML4 entry: setting every page-level index to the last entry (511)
	// makes the MMU walk back into the PML4 itself at every level,
	// exposing it (and, with fewer maximal indices, any inner table) as
	// an ordinary virtual address.
	pdtVirtualAddr = uintptr(math.MaxUint64 &^ ((1 << 12) - 1))

	// pageLevelBits is the number of address bits consumed by each page
	// level; every level uses 9 bits (512 entries).
	pageLevelBits = [pageLevels]uint8{9, 9, 9, 9}

	// pageLevelShifts is the bit offset of each page level's index field
	// within a virtual address.
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)

const (
	// FlagPresent is set when the page is resident in memory.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page may be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode code may access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching selects write-through caching.
	FlagWriteThroughCaching

	// FlagDoNotCache disables caching for this page.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when the page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when the page is written.
	FlagDirty

	// FlagHugePage selects a 2MiB page instead of a 4KiB one. Not
	// supported by this kernel; Map rejects it.
	FlagHugePage

	// FlagGlobal prevents the TLB from dropping this entry on a CR3
	// reload.
	FlagGlobal

	// FlagOwned is a kernel-defined bit (spec.md 4.2): it records that
	// the address space owns the backing frame and must free it on
	// unmap, as opposed to a merely-projected page (MMIO, shared memory
	// windows backed by someone else's frame).
	FlagOwned = 1 << 9

	// FlagCopyOnWrite marks a read-only page whose write fault should
	// allocate a private copy. Mutually exclusive with FlagRW.
	FlagCopyOnWrite = 1 << 10

	// FlagNoExecute marks the page as non-executable.
	FlagNoExecute = 1 << 63
)

// dudEntry is the bit pattern written into a reserved-but-unbacked leaf
// entry: present and owned are clear so any access faults, while every
// other bit is set so the entry is never confused with a zero (never
// touched) entry.
var dudEntry = pageTableEntry(uintptr(math.MaxUint64) &^ (uintptr(FlagPresent) | uintptr(FlagOwned)))
