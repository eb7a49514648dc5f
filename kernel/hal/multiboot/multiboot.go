package multiboot

import (
	"reflect"
	"strings"
	"unsafe"
)

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

// info describes the multiboot info section header.
type info struct {
	// Total size of multiboot info section.
	totalSize uint32

	// Always set to zero; reserved for future use
	reserved uint32
}

// tagHeader describes the header the preceedes each tag.
type tagHeader struct {
	// The type of the tag
	tagType tagType

	// The size of the tag including the header but *not* including any
	// padding. According to the spec, each tag starts at a 8-byte aligned
	// address.
	size uint32
}

// mmapHeader describes the header for a memory map specification.
type mmapHeader struct {
	// The size of each entry.
	entrySize uint32

	// The version of the entries that follow.
	entryVersion uint32
}

// FramebufferType defines the type of the initialized framebuffer.
type FramebufferType uint8

const (
	// FrameBufferTypeIndexed specifies a 256-color palette.
	FrameBufferTypeIndexed FramebufferType = iota

	// FramebufferTypeRGB specifies direct RGB mode.
	FramebufferTypeRGB

	// FramebufferTypeEGA specifies EGA text mode.
	FramebufferTypeEGA
)

// FramebufferInfo provides information about the initialized framebuffer.
type FramebufferInfo struct {
	// The framebuffer physical address.
	PhysAddr uint64

	// Row pitch in bytes.
	Pitch uint32

	// Width and height in pixels (or characters if Type = FramebufferTypeEGA)
	Width, Height uint32

	// Bits per pixel (non EGA modes only).
	Bpp uint8

	// Framebuffer type.
	Type FramebufferType
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// moduleHeader describes the header that follows a tagModules tagHeader.
type moduleHeader struct {
	// modStart and modEnd delimit the physical memory range occupied by
	// the module's payload.
	modStart uint32
	modEnd   uint32
}

// Module describes a single multiboot module: a blob of memory loaded by the
// bootloader alongside the kernel, tagged with a command line. By convention
// the command line begins with a run of permission letters, a space, and
// then the module's name (spec.md 6).
type Module struct {
	// Start and End delimit the physical memory occupied by the module.
	Start, End uint64

	// CmdLine is the raw, unparsed command line the bootloader attached
	// to this module.
	CmdLine string
}

// ModuleFlags describes the permissions encoded in a module's command-line
// prefix.
type ModuleFlags struct {
	// IsDriver grants I/O instruction access and the right to bind
	// hardware interrupts to messages.
	IsDriver bool

	// CanCreateProcesses grants the right to create child processes.
	CanCreateProcesses bool
}

// Flags parses the letters that prefix this module's command line (up to
// the first space) into a ModuleFlags value. Unrecognized letters are
// ignored.
func (m *Module) Flags() ModuleFlags {
	var flags ModuleFlags

	prefix := m.CmdLine
	if idx := strings.IndexByte(prefix, ' '); idx >= 0 {
		prefix = prefix[:idx]
	}

	for i := 0; i < len(prefix); i++ {
		switch prefix[i] {
		case 'd':
			flags.IsDriver = true
		case 'l':
			flags.CanCreateProcesses = true
		}
	}

	return flags
}

// Name returns the module name: the command line with the leading
// permission-letter prefix and its separating space stripped.
func (m *Module) Name() string {
	if idx := strings.IndexByte(m.CmdLine, ' '); idx >= 0 {
		return m.CmdLine[idx+1:]
	}
	return m.CmdLine
}

// ModuleVisitor defines a visitor function that gets invoked by VisitModules
// for each module supplied by the bootloader. The visitor must return true
// to continue or false to abort the scan.
type ModuleVisitor func(mod *Module) bool

var (
	infoData uintptr
)

// MemRegionVisitor defies a visitor function that gets invoked by VisitMemRegions
// for each memory region provided by the boot loader. The visitor must return true
// to continue or false to abort the scan.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// SetInfoPtr updates the internal multiboot information pointer to the given
// value. This function must be invoked before invoking any other function
// exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	// curPtr points to the memory map header (2 dwords long)
	ptrMapHeader := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)
	curPtr += 8

	var entry *MemoryMapEntry
	for curPtr != endPtr {
		entry = (*MemoryMapEntry)(unsafe.Pointer(curPtr))

		// Mark unknown entry types as reserved
		if entry.Type == 0 || entry.Type > memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}

		curPtr += uintptr(ptrMapHeader.entrySize)
	}
}

// VisitModules invokes the supplied visitor once for every module tag
// present in the multiboot info data. Unlike the memory map, module tags
// are not grouped under a single tag header; each module gets its own tag,
// so this function scans the full tag list rather than a single payload.
func VisitModules(visitor ModuleVisitor) {
	curPtr := infoData + 8
	for {
		hdr := (*tagHeader)(unsafe.Pointer(curPtr))
		if hdr.tagType == tagMbSectionEnd {
			return
		}

		if hdr.tagType == tagModules {
			modHdr := (*moduleHeader)(unsafe.Pointer(curPtr + 8))
			cmdLineLen := uintptr(hdr.size) - 16
			mod := &Module{
				Start:   uint64(modHdr.modStart),
				End:     uint64(modHdr.modEnd),
				CmdLine: cStringAt(curPtr+16, cmdLineLen),
			}

			if !visitor(mod) {
				return
			}
		}

		// Tags are aligned at 8-byte aligned addresses.
		curPtr += uintptr(int32(hdr.size+7) & ^7)
	}
}

// ModuleAt returns the index'th module supplied by the bootloader (0-based,
// in tag order), for the paginated get-next-multiboot-module syscall.
func ModuleAt(index int) (Module, bool) {
	var found Module
	var ok bool
	i := 0
	VisitModules(func(mod *Module) bool {
		if i == index {
			found = *mod
			ok = true
			return false
		}
		i++
		return true
	})
	return found, ok
}

// cStringAt reads a NULL-terminated (or maxLen-bounded) string starting at
// ptr without allocating a copy of the full maxLen-sized backing array.
func cStringAt(ptr uintptr, maxLen uintptr) string {
	raw := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(maxLen),
		Cap:  int(maxLen),
		Data: ptr,
	}))

	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}

	return string(raw[:n])
}

// GetFramebufferInfo returns information about the framebuffer initialized by the
// bootloader. This function returns nil if no framebuffer info is available.
func GetFramebufferInfo() *FramebufferInfo {
	var info *FramebufferInfo

	curPtr, size := findTagByType(tagFramebufferInfo)
	if size != 0 {
		info = (*FramebufferInfo)(unsafe.Pointer(curPtr))
	}

	return info
}

// findTagByType scans the multiboot info data looking for the start of of the
// specified type. It returns a pointer to the tag contents start offset and
// the content length exluding the tag header.
//
// If the tag is not present in the multiboot info, findTagByType will return
// back (0,0).
func findTagByType(tagType tagType) (uintptr, uint32) {
	var ptrTagHeader *tagHeader

	curPtr := infoData + 8
	for ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)); ptrTagHeader.tagType != tagMbSectionEnd; ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)) {
		if ptrTagHeader.tagType == tagType {
			return curPtr + 8, ptrTagHeader.size - 8
		}

		// Tags are aligned at 8-byte aligned addresses
		curPtr += uintptr(int32(ptrTagHeader.size+7) & ^7)
	}

	return 0, 0
}
