package syscall

import (
	"nucleus/kernel/irq"
	"nucleus/kernel/proc"
)

// threadCreate spawns a new thread in the caller's own process. Arguments:
// RBX = entry point, RCX = argument. Result: RBX = new thread id.
func threadCreate(t *proc.Thread, regs *irq.Regs) {
	nt, err := proc.CreateThread(t.Process, uintptr(regs.RBX), uintptr(regs.RCX))
	if err != nil {
		regs.RAX = mapError(err)
		return
	}
	proc.Schedule(nt)
	regs.RBX = nt.ID
	regs.RAX = ErrOK
}

// threadGetSelfID returns the calling thread's id in RBX.
func threadGetSelfID(t *proc.Thread, regs *irq.Regs) {
	regs.RBX = t.ID
	regs.RAX = ErrOK
}

// threadTerminateSelf destroys the calling thread. Since t is the thread
// currently executing, DestroyThread's internal unschedule already switches
// the live trap context over to whatever thread runs next; this handler
// must not write to regs afterward, since by the time it returns regs holds
// that next thread's register snapshot, not t's.
func threadTerminateSelf(t *proc.Thread, regs *irq.Regs) {
	_ = proc.DestroyThread(t)
}

// threadTerminateByID destroys one of the caller's own threads by id.
// Arguments: RBX = thread id.
func threadTerminateByID(t *proc.Thread, regs *irq.Regs) {
	targetID := regs.RBX
	if targetID == t.ID {
		threadTerminateSelf(t, regs)
		return
	}
	for _, other := range t.Process.Threads {
		if other.ID == targetID {
			regs.RAX = mapError(proc.DestroyThread(other))
			return
		}
	}
	regs.RAX = ErrProcessDoesNotExist
}

// threadYield voluntarily gives up the remainder of the calling thread's
// time slice. Like terminate-self, the scheduler switch this triggers
// reuses the live trap context for whatever thread runs next, so regs must
// not be touched once Yield returns.
func threadYield(t *proc.Thread, regs *irq.Regs) {
	proc.Yield(t)
}

// threadSetFSBase sets the calling thread's FS segment base (thread-local
// storage). Arguments: RBX = base address.
func threadSetFSBase(t *proc.Thread, regs *irq.Regs) {
	t.SetFSBase(uintptr(regs.RBX), true)
	regs.RAX = ErrOK
}

// threadSetZeroOnTerminate records the page to zero on thread teardown
// (user-space TLS cleanup). Arguments: RBX = address.
func threadSetZeroOnTerminate(t *proc.Thread, regs *irq.Regs) {
	t.SetZeroOnTerminate(uintptr(regs.RBX))
	regs.RAX = ErrOK
}
