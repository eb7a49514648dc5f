// Package sched implements spec.md 4.4's round-robin scheduler: a flat,
// FIFO-ordered list of awake threads cycled on every timer tick, plus the
// context-switch primitive proc's hook variables drive whenever a thread
// blocks or wakes. The algorithm (ScheduleThread/UnscheduleThread/
// ScheduleNextThread) is carried over directly from the original kernel's
// scheduler; only the register save/restore mechanics differ, since this
// port saves/restores through the trap frame's Regs/Frame pointers rather
// than through a swappable pointer to a heap-allocated register block.
package sched

import (
	"unsafe"

	"nucleus/kernel"
	"nucleus/kernel/cpu"
	"nucleus/kernel/irq"
	"nucleus/kernel/mem/vmm"
	"nucleus/kernel/proc"
)

var (
	// runningThread is the thread whose context is currently loaded into the
	// CPU, or nil when every thread is asleep and the idle loop is spinning.
	runningThread *proc.Thread

	// awakeThreads is the round-robin ring; new threads join at the back.
	awakeThreads []*proc.Thread

	// currentFrame/currentRegs point at the trap frame of whichever
	// interrupt or syscall is currently being serviced. Schedule/Unschedule
	// are only ever invoked from inside such a trap (a thread can only block
	// or wake as a side effect of handling one), so stashing these here lets
	// scheduleNext reach them without threading a frame/regs pair through
	// every call in proc that might transitively block or wake a thread.
	currentFrame *irq.Frame
	currentRegs  *irq.Regs
)

// Init wires the scheduler into proc's hook seam and installs the timer
// IRQ handler that drives preemption.
func Init() *kernel.Error {
	proc.SetSchedulerHooks(Schedule, Unschedule, Current)
	irq.HandleIRQ(irq.TimerIRQ, onTimerIRQ)
	return nil
}

// Current returns the thread currently executing, or nil if the CPU is
// idle.
func Current() *proc.Thread {
	return runningThread
}

// Schedule adds thread to the awake ring if it is not already there. If the
// CPU is currently idle this also switches to it immediately, the same way
// ScheduleThreadIfWeAreHalted does in the original scheduler.
func Schedule(t *proc.Thread) {
	if t.Awake {
		return
	}
	t.Awake = true
	awakeThreads = append(awakeThreads, t)

	if runningThread == nil {
		scheduleNext()
	}
}

// Unschedule removes thread from the awake ring. If it is the thread
// currently running, the next thread is switched in both before and after
// the removal: before, so the about-to-be-removed thread does not
// artificially win priority by being "next" relative to itself; after, in
// case it was the only awake thread and the CPU must fall back to idle.
func Unschedule(t *proc.Thread) {
	if !t.Awake {
		return
	}

	if t == runningThread {
		scheduleNext()
	}

	for i, awake := range awakeThreads {
		if awake == t {
			awakeThreads = append(awakeThreads[:i], awakeThreads[i+1:]...)
			break
		}
	}
	t.Awake = false

	if t == runningThread {
		scheduleNext()
	}
}

// nextAfter returns the awake thread that follows cur in ring order, or the
// first awake thread if cur is nil or not found (including "reached the
// end of the line, wrap to the front").
func nextAfter(cur *proc.Thread) *proc.Thread {
	if len(awakeThreads) == 0 {
		return nil
	}
	if cur == nil {
		return awakeThreads[0]
	}
	for i, t := range awakeThreads {
		if t == cur {
			if i+1 < len(awakeThreads) {
				return awakeThreads[i+1]
			}
			return awakeThreads[0]
		}
	}
	return awakeThreads[0]
}

// scheduleNext performs the actual context switch: it saves the outgoing
// thread's register snapshot and FPU state (if any), picks the next awake
// thread, switches address spaces, and loads the incoming thread's context
// into the live trap frame so the trap-return path resumes into it. With no
// awake thread left to run, control instead falls back to the idle loop.
func scheduleNext() {
	if runningThread != nil {
		saveContext(runningThread)
	}

	next := nextAfter(runningThread)
	if next == nil {
		runningThread = nil
		vmm.KernelSpace.SwitchTo()
		return
	}

	runningThread = next
	runningThread.TimeSlices++
	runningThread.Process.AddressSpace.SwitchTo()
	loadContext(runningThread)
}

// saveContext copies the live trap frame into t's saved register block and,
// if t uses the FPU, snapshots it too. A nil currentFrame/currentRegs (no
// trap is in progress) leaves the thread's last-saved context untouched,
// which only happens if Schedule/Unschedule is ever called outside of a
// trap -- not a case the kernel's own call sites exercise.
func saveContext(t *proc.Thread) {
	if t.UsesFPU {
		cpu.SaveFPUState(uintptr(unsafe.Pointer(&t.FPU[0])))
	}
	if currentRegs != nil {
		t.Regs.Regs = *currentRegs
	}
	if currentFrame != nil {
		t.Regs.Frame = *currentFrame
	}
}

// loadContext writes t's saved register block into the live trap frame and
// restores its FPU state and FS base, the mirror image of saveContext.
func loadContext(t *proc.Thread) {
	if currentRegs != nil {
		*currentRegs = t.Regs.Regs
	}
	if currentFrame != nil {
		*currentFrame = t.Regs.Frame
	}
	if t.UsesFPU {
		cpu.RestoreFPUState(uintptr(unsafe.Pointer(&t.FPU[0])))
	}
	cpu.SetFSBase(t.FSBase)
}

// EnterTrap records the frame/regs pointers of whatever trap is currently
// being serviced, so a Schedule/Unschedule call anywhere in its call chain
// can reach them. Traps are not re-entrant on this kernel (interrupts stay
// disabled for their duration), so there is no stack to maintain here.
// Every handler that can transitively wake or block a thread -- syscalls,
// driver IRQ fan-out, the timer tick -- calls this first.
func EnterTrap(frame *irq.Frame, regs *irq.Regs) {
	currentFrame = frame
	currentRegs = regs
}

// onTimerIRQ drives preemption: it ticks the timer subsystem, delivers any
// timer sends that came due, and round-robins to the next awake thread.
func onTimerIRQ(frame *irq.Frame, regs *irq.Regs) {
	EnterTrap(frame, regs)
	tick()
	scheduleNext()
}

// Idle is the kernel's halt loop, entered once boot-time initialization
// completes. It enables interrupts (the timer tick is what ever wakes the
// CPU back up) and halts until one arrives.
func Idle() {
	cpu.EnableInterrupts()
	for {
		cpu.Halt()
	}
}
