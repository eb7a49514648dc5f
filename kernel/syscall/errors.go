package syscall

import (
	"nucleus/kernel"
	"nucleus/kernel/proc"
)

// Stable error codes returned in RAX (spec.md 7). Zero always means
// success; NO_MESSAGE is a distinct sentinel reserved for the non-blocking
// poll opcode rather than a general error.
const (
	ErrOK                   = uint64(0)
	ErrOutOfMemory          = uint64(1)
	ErrProcessDoesNotExist  = uint64(2)
	ErrReceiversQueueIsFull = uint64(3)
	ErrInvalidMemoryRange   = uint64(4)
	ErrUnsupported          = uint64(5)

	// NoMessage is returned by the non-blocking poll opcode when the
	// calling process's queue is empty.
	NoMessage = ^uint64(0)
)

// mapError classifies a *kernel.Error into one of spec.md 7's stable
// codes. proc's own sentinels (shared by ipc/shm send/receive paths) map
// directly; everything else kernel-internal is a resource exhaustion or
// bad-range condition, the only two categories that can arise from the
// vmm/pmm layer this deep into a syscall.
func mapError(err *kernel.Error) uint64 {
	if err == nil {
		return ErrOK
	}
	switch err {
	case proc.ErrReceiverMissing:
		return ErrProcessDoesNotExist
	case proc.ErrQueueFull:
		return ErrReceiversQueueIsFull
	case proc.ErrBadPageRange:
		return ErrInvalidMemoryRange
	case proc.ErrSendOOM:
		return ErrOutOfMemory
	}
	if err.Module == "vmm" || err.Module == "pmm" || err.Module == "stack_alloc" || err.Module == "shm" {
		return ErrOutOfMemory
	}
	return ErrOutOfMemory
}
