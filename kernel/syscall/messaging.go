package syscall

import (
	"nucleus/kernel/ipc"
	"nucleus/kernel/irq"
	"nucleus/kernel/proc"
)

// msgSend delivers a message to another process, optionally transferring
// pages. Arguments: RBX = receiver process id, RCX = message id, RDX =
// metadata (bit 0 set means transfer pages, per ipc.MetaHasPages), RSI/RDI/
// R8/R9/R10 = the five payload words (for a page transfer, R9 holds the
// source virtual address and R10 the page count).
func msgSend(t *proc.Thread, regs *irq.Regs) {
	msg := ipc.Message{
		ID:       regs.RCX,
		SenderID: t.Process.ID,
		Metadata: regs.RDX,
		Payload:  [5]uint64{regs.RSI, regs.RDI, regs.R8, regs.R9, regs.R10},
	}
	transferPages := regs.RDX&ipc.MetaHasPages != 0
	regs.RAX = mapError(proc.Send(t.Process, regs.RBX, msg, transferPages))
}

// writeReceivedMessage applies the message-delivery register convention
// directly to the live trap context: RAX = message id, RBX = sender id,
// RCX = metadata, RDX/RSI/RDI/R8/R9 = the five payload words.
func writeReceivedMessage(regs *irq.Regs, msg ipc.Message) {
	regs.RAX = msg.ID
	regs.RBX = msg.SenderID
	regs.RCX = msg.Metadata
	regs.RDX = msg.Payload[0]
	regs.RSI = msg.Payload[1]
	regs.RDI = msg.Payload[2]
	regs.R8 = msg.Payload[3]
	regs.R9 = msg.Payload[4]
}

// msgPoll is the non-blocking receive: it never suspends the caller, so the
// live trap context is always still the caller's own.
func msgPoll(t *proc.Thread, regs *irq.Regs) {
	msg, ok := proc.Poll(t.Process)
	if !ok {
		regs.RAX = NoMessage
		return
	}
	writeReceivedMessage(regs, msg)
}

// msgSleepForMessage behaves like poll if a message is already queued.
// Otherwise the calling thread is parked and unscheduled, which reuses the
// live trap context for whatever thread the scheduler switches into next
// -- so regs must not be touched in that branch.
func msgSleepForMessage(t *proc.Thread, regs *irq.Regs) {
	msg, ok := proc.SleepForMessage(t)
	if !ok {
		return
	}
	writeReceivedMessage(regs, msg)
}

// msgRegisterMessageOnInterrupt binds a driver's IRQ line to either a bare
// message (method 0) or a status/data port drain (method 1). Arguments:
// RBX = IRQ line, RCX = method, RDX = message id, RSI = status port, RDI =
// data port, R8 = status mask (method 1 only).
func msgRegisterMessageOnInterrupt(t *proc.Thread, regs *irq.Regs) {
	if !t.Process.IsDriver {
		regs.RAX = ErrUnsupported
		return
	}
	if regs.RCX == 0 {
		proc.BindIRQMessage(t.Process, uint8(regs.RBX), regs.RDX)
	} else {
		proc.BindIRQPortDrain(t.Process, uint8(regs.RBX), regs.RDX, uint16(regs.RSI), uint16(regs.RDI), uint8(regs.R8))
	}
	regs.RAX = ErrOK
}

// msgUnregisterMessageOnInterrupt removes a previously registered binding.
// Arguments: RBX = IRQ line, RCX = message id.
func msgUnregisterMessageOnInterrupt(t *proc.Thread, regs *irq.Regs) {
	if !t.Process.IsDriver {
		regs.RAX = ErrUnsupported
		return
	}
	proc.UnbindIRQMessage(t.Process, uint8(regs.RBX), regs.RCX)
	regs.RAX = ErrOK
}
