package syscall

import (
	"nucleus/kernel/hal"
	"nucleus/kernel/irq"
	"nucleus/kernel/proc"
)

// debugPrintChar writes a single character to the active console. Argument:
// RBX = character code.
func debugPrintChar(t *proc.Thread, regs *irq.Regs) {
	hal.ActiveTerminal.WriteByte(byte(regs.RBX))
	regs.RAX = ErrOK
}

// debugPrintRegs dumps the calling thread's general-purpose registers to
// the console, for user-space debugging.
func debugPrintRegs(t *proc.Thread, regs *irq.Regs) {
	regs.Print()
	regs.RAX = ErrOK
}
