// Package irq provides the register/exception-frame types and handler
// registration surface the kernel's trap entry points use to reach Go code
// (spec.md 6): CPU exceptions, the timer tick, and driver-bound hardware
// IRQs all funnel through here.
package irq

import "nucleus/kernel/kfmt/early"

// Regs is a snapshot of the general-purpose registers saved by the
// assembly trap entry stub before calling into a Go handler.
type Regs struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
}

// Print dumps the register snapshot to the active console.
func (r *Regs) Print() {
	early.Printf("RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	early.Printf("RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	early.Printf("RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	early.Printf("RBP = %16x\n", r.RBP)
	early.Printf("R8  = %16x R9  = %16x\n", r.R8, r.R9)
	early.Printf("R10 = %16x R11 = %16x\n", r.R10, r.R11)
	early.Printf("R12 = %16x R13 = %16x\n", r.R12, r.R13)
	early.Printf("R14 = %16x R15 = %16x\n", r.R14, r.R15)
}

// Frame is the exception frame the CPU pushes automatically before
// transferring control to a trap handler.
type Frame struct {
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// Print dumps the exception frame to the active console.
func (f *Frame) Print() {
	early.Printf("RIP = %16x CS  = %16x\n", f.RIP, f.CS)
	early.Printf("RSP = %16x SS  = %16x\n", f.RSP, f.SS)
	early.Printf("RFL = %16x\n", f.RFlags)
}
