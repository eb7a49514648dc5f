package syscall

import (
	"nucleus/kernel/hal/multiboot"
	"nucleus/kernel/irq"
	"nucleus/kernel/proc"
	"nucleus/kernel/timer"
)

// sysGetMultibootFramebuffer returns the bootloader-initialized
// framebuffer's location and geometry. Result: RBX = physical address, RCX
// = pitch, RDX = width, RSI = height, RDI = bits per pixel, R8 = type.
func sysGetMultibootFramebuffer(t *proc.Thread, regs *irq.Regs) {
	fb := multiboot.GetFramebufferInfo()
	if fb == nil {
		regs.RAX = ErrUnsupported
		return
	}
	regs.RBX = fb.PhysAddr
	regs.RCX = uint64(fb.Pitch)
	regs.RDX = uint64(fb.Width)
	regs.RSI = uint64(fb.Height)
	regs.RDI = uint64(fb.Bpp)
	regs.R8 = uint64(fb.Type)
	regs.RAX = ErrOK
}

// sysSendMessageAfterMicroseconds arms a timer event relative to now.
// Arguments: RBX = delay in microseconds, RCX = message id.
func sysSendMessageAfterMicroseconds(t *proc.Thread, regs *irq.Regs) {
	timer.SendAfter(t.Process.ID, regs.RCX, regs.RBX)
	regs.RAX = ErrOK
}

// sysSendMessageAtTimestamp arms a timer event at an absolute timestamp.
// Arguments: RBX = timestamp in microseconds since boot, RCX = message id.
func sysSendMessageAtTimestamp(t *proc.Thread, regs *irq.Regs) {
	timer.SendAt(t.Process.ID, regs.RCX, regs.RBX)
	regs.RAX = ErrOK
}

// sysGetCurrentTimestamp returns the kernel's microsecond clock reading in
// RBX.
func sysGetCurrentTimestamp(t *proc.Thread, regs *irq.Regs) {
	regs.RBX = timer.NowMicros()
	regs.RAX = ErrOK
}

// sysEnableProfiling bumps the caller's nested profiling-enabled count.
func sysEnableProfiling(t *proc.Thread, regs *irq.Regs) {
	proc.EnableProfiling(t.Process)
	regs.RAX = ErrOK
}

// sysDisableAndOutputProfiling decrements the nesting count and, once it
// reaches zero, returns the process's profiled-cycle counter (see
// proc.DisableProfiling). Result: RBX = cycle
// count (valid only when RCX = 1), RCX = 1 if the count nesting reached
// zero and RBX is final, 0 if profiling is still nested.
func sysDisableAndOutputProfiling(t *proc.Thread, regs *irq.Regs) {
	cycles, done := proc.DisableProfiling(t.Process)
	regs.RBX = cycles
	if done {
		regs.RCX = 1
	} else {
		regs.RCX = 0
	}
	regs.RAX = ErrOK
}
