package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the contents of the CR2 register, populated by the CPU
// with the faulting address whenever a page fault exception fires.
func ReadCR2() uint64

// SaveFPUState executes FXSAVE, writing the CPU's FPU/SSE state out to the
// 512-byte, 16-byte-aligned area pointed to by addr.
func SaveFPUState(addr uintptr)

// RestoreFPUState executes FXRSTOR, loading the CPU's FPU/SSE state from
// the 512-byte, 16-byte-aligned area pointed to by addr.
func RestoreFPUState(addr uintptr)

// SetFSBase writes the FS segment base address via the FSBASE
// model-specific register. Threads use it for thread-local storage.
func SetFSBase(base uintptr)

// InByte reads a single byte from an I/O port (the IN instruction).
func InByte(port uint16) uint8

// OutByte writes a single byte to an I/O port (the OUT instruction).
func OutByte(port uint16, value uint8)
