// Package syscall implements spec.md 4.8's syscall and interrupt dispatch:
// the single numeric-opcode entry point every user-mode trap funnels
// through, the exception handler policy (kernel-rip faults halt, user-rip
// faults destroy the process, lazy shared-memory faults resume the
// thread), and the driver-bound hardware IRQ fan-out.
package syscall

// Opcode identifies one syscall operation. The numbering follows spec.md
// 6's family table in order; nothing outside this package depends on the
// exact values, so each family starts at its own 16-aligned base purely
// for readability when reading a raw opcode off the wire.
type Opcode uint64

// Debug family.
const (
	OpDebugPrintChar Opcode = iota
	OpDebugPrintRegs
)

// Threads family.
const (
	OpThreadCreate Opcode = 16 + iota
	OpThreadGetSelfID
	OpThreadTerminateSelf
	OpThreadTerminateByID
	OpThreadYield
	OpThreadSetFSBase
	OpThreadSetZeroOnTerminate
)

// Memory family.
const (
	OpMemAllocatePages Opcode = 32 + iota
	OpMemAllocatePagesBelowPhysicalBase
	OpMemReleasePages
	OpMemMapPhysical
	OpMemVirtToPhys
	OpMemFreeSystemMemory
	OpMemProcessUsedMemory
	OpMemTotalSystemMemory
	OpMemSetRights
)

// Shared memory family.
const (
	OpShmCreate Opcode = 48 + iota
	OpShmJoin
	OpShmJoinChildAtAddress
	OpShmLeave
	OpShmGetDetails
	OpShmMovePageIn
	OpShmGrantAssignPermission
	OpShmIsPageAllocated
	OpShmPagePhysAddr
	OpShmGrow
)

// Processes family.
const (
	OpProcGetSelfPID Opcode = 64 + iota
	OpProcTerminateSelf
	OpProcTerminateByID
	OpProcEnumerateByName
	OpProcGetName
	OpProcNotifyOnDeath
	OpProcCancelNotifyOnDeath
	OpProcCreateChild
	OpProcSetChildMemoryPage
	OpProcStartChild
	OpProcDestroyChild
	OpProcGetNextMultibootModule
)

// Services family.
const (
	OpSvcRegister Opcode = 80 + iota
	OpSvcUnregisterByMID
	OpSvcEnumerateByName
	OpSvcGetName
	OpSvcNotifyOnAppearance
	OpSvcCancelNotifyOnAppearance
	OpSvcNotifyOnDisappearance
	OpSvcCancelNotifyOnDisappearance
)

// Messaging family.
const (
	OpMsgSend Opcode = 96 + iota
	OpMsgPoll
	OpMsgSleepForMessage
	OpMsgRegisterMessageOnInterrupt
	OpMsgUnregisterMessageOnInterrupt
)

// System family.
const (
	OpSysGetMultibootFramebuffer Opcode = 112 + iota
	OpSysSendMessageAfterMicroseconds
	OpSysSendMessageAtTimestamp
	OpSysGetCurrentTimestamp
	OpSysEnableProfiling
	OpSysDisableAndOutputProfiling
)
