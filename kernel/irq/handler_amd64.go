package irq

// ExceptionNum identifies a CPU exception vector.
type ExceptionNum uint8

const (
	// DivideByZeroException is raised by DIV/IDIV with a zero divisor.
	DivideByZeroException = ExceptionNum(0)

	// InvalidOpcodeException is raised when the CPU decodes a byte
	// sequence it does not recognize as an instruction.
	InvalidOpcodeException = ExceptionNum(6)

	// DoubleFault fires when an exception is unhandled, or when an
	// exception occurs while the CPU is already servicing one.
	DoubleFault = ExceptionNum(8)

	// GPFException is raised on a general protection fault.
	GPFException = ExceptionNum(13)

	// PageFaultException is raised when a page-table walk hits a
	// not-present entry or fails a privilege/RW check.
	PageFaultException = ExceptionNum(14)
)

// IRQNum identifies one of the 16 legacy PIC lines, remapped by the kernel
// to vectors 32-47 so they do not collide with the CPU exception range.
type IRQNum uint8

// TimerIRQ is the PIC line the programmable interval timer is wired to; IRQ
// 0 drives the scheduler's preemption tick.
const TimerIRQ = IRQNum(0)

// SyscallInterrupt is the software interrupt vector user-mode code raises
// to enter the kernel (spec.md 4.8). Unlike the CPU exceptions above, user
// code chooses to raise it, so there is exactly one handler rather than a
// table of them.
const SyscallInterrupt = ExceptionNum(0x80)

// ExceptionHandler handles an exception that does not push an error code.
type ExceptionHandler func(*Frame, *Regs)

// ExceptionHandlerWithCode handles an exception that pushes an error code.
type ExceptionHandlerWithCode func(uint64, *Frame, *Regs)

// Handler handles a hardware IRQ.
type Handler func(*Frame, *Regs)

var (
	exceptionHandlers         [32]ExceptionHandler
	exceptionHandlersWithCode [32]ExceptionHandlerWithCode
	irqHandlers               [16]Handler
	syscallHandler            Handler
)

// HandleException registers handler for an exception vector that does not
// push an error code.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler) {
	exceptionHandlers[exceptionNum] = handler
}

// HandleExceptionWithCode registers handler for an exception vector that
// pushes an error code.
func HandleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode) {
	exceptionHandlersWithCode[exceptionNum] = handler
}

// HandleIRQ registers handler for a PIC line. Only driver processes are
// permitted to bind an IRQ to a message at the syscall layer; this function
// itself is a kernel-internal primitive used to wire that binding in, and
// to install the scheduler's own timer handler.
func HandleIRQ(num IRQNum, handler Handler) {
	irqHandlers[num] = handler
}

// DispatchException is invoked by the assembly trap stub for exceptions
// that do not carry an error code.
func DispatchException(num ExceptionNum, frame *Frame, regs *Regs) {
	if h := exceptionHandlers[num]; h != nil {
		h(frame, regs)
	}
}

// DispatchExceptionWithCode is invoked by the assembly trap stub for
// exceptions that carry an error code.
func DispatchExceptionWithCode(num ExceptionNum, code uint64, frame *Frame, regs *Regs) {
	if h := exceptionHandlersWithCode[num]; h != nil {
		h(code, frame, regs)
	}
}

// DispatchIRQ is invoked by the assembly trap stub for a remapped hardware
// IRQ. The PIC's end-of-interrupt is sent by the stub after this returns.
func DispatchIRQ(num IRQNum, frame *Frame, regs *Regs) {
	if h := irqHandlers[num]; h != nil {
		h(frame, regs)
	}
}

// HandleSyscall registers the single handler invoked for SyscallInterrupt.
func HandleSyscall(handler Handler) {
	syscallHandler = handler
}

// DispatchSyscall is invoked by the assembly trap stub for the syscall
// software interrupt.
func DispatchSyscall(frame *Frame, regs *Regs) {
	if syscallHandler != nil {
		syscallHandler(frame, regs)
	}
}
