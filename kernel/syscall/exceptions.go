package syscall

import (
	"nucleus/kernel"
	"nucleus/kernel/coredump"
	"nucleus/kernel/irq"
	"nucleus/kernel/kfmt/early"
	"nucleus/kernel/proc"
	"nucleus/kernel/sched"
)

var errKernelException = &kernel.Error{Module: "syscall", Message: "unhandled kernel-mode CPU exception"}

// userCodeSelectorRing3Mask isolates the requested-privilege-level bits of
// a CS selector; a non-zero result means the exception was taken from ring
// 3, matching the same check the vmm package applies to page/GPF faults.
const userCodeSelectorRing3Mask = 0x3

// installGeneralExceptionHandlers wires the CPU exceptions spec.md 4.8
// describes generically ("invalid opcode, division by zero, ..."): a fault
// taken from kernel space halts the system, one taken from user space
// optionally core-dumps and destroys the faulting process.
func installGeneralExceptionHandlers() {
	irq.HandleException(irq.DivideByZeroException, exceptionHandler("divide by zero"))
	irq.HandleException(irq.InvalidOpcodeException, exceptionHandler("invalid opcode"))
}

func exceptionHandler(reason string) irq.ExceptionHandler {
	return func(frame *irq.Frame, regs *irq.Regs) {
		if frame.CS&userCodeSelectorRing3Mask == 0 {
			early.Printf("\nkernel exception: %s\n", reason)
			regs.Print()
			frame.Print()
			kernel.Panic(errKernelException)
		}

		t := proc.Current()
		if t == nil {
			return
		}
		sched.EnterTrap(frame, regs)
		early.Printf("\nprocess %d: %s, terminating\n", t.Process.ID, reason)
		coredump.Dump(t.Process)
		proc.Destroy(t.Process)
	}
}
