package proc

import (
	"nucleus/kernel"
	"nucleus/kernel/ipc"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/vmm"
)

var (
	errReceiverMissing = &kernel.Error{Module: "proc", Message: "PROCESS_DOESNT_EXIST"}
	errQueueFull       = &kernel.Error{Module: "proc", Message: "RECEIVERS_QUEUE_IS_FULL"}
	errBadPageRange    = &kernel.Error{Module: "proc", Message: "INVALID_MEMORY_RANGE"}
	errSendOOM         = &kernel.Error{Module: "proc", Message: "OUT_OF_MEMORY"}
)

// ErrReceiverMissing, ErrQueueFull, ErrBadPageRange and ErrSendOOM are the
// sentinel errors the syscall package maps onto spec.md 7's stable error
// codes.
var (
	ErrReceiverMissing = errReceiverMissing
	ErrQueueFull       = errQueueFull
	ErrBadPageRange    = errBadPageRange
	ErrSendOOM         = errSendOOM
)

// writeMessageToRegs is the register convention used to hand a delivered
// message straight to a thread that was sleeping for one: RAX carries the
// message id, RBX the sender id, RCX the metadata word, and RDX/RSI/RDI/R8/
// R9 the five payload words.
func writeMessageToRegs(t *Thread, msg ipc.Message) {
	t.Regs.RAX = msg.ID
	t.Regs.RBX = msg.SenderID
	t.Regs.RCX = msg.Metadata
	t.Regs.RDX = msg.Payload[0]
	t.Regs.RSI = msg.Payload[1]
	t.Regs.RDI = msg.Payload[2]
	t.Regs.R8 = msg.Payload[3]
	t.Regs.R9 = msg.Payload[4]
}

// WriteMessageToRegs exports writeMessageToRegs for the syscall package's
// poll/sleep-for-message handlers, which hand a received message back to
// user space using the same register convention internal wakeups use.
func WriteMessageToRegs(t *Thread, msg ipc.Message) {
	writeMessageToRegs(t, msg)
}

// deliver is the kernel's own internal send path, used for death
// notifications, service appearance/disappearance and timer messages: it
// never fails (a missing receiver or a full queue is simply dropped,
// matching the kernel's own best-effort diagnostics-only error policy for
// these non-syscall-observed sends) and never transfers pages.
func deliver(receiverID uint64, msg ipc.Message) {
	receiver, ok := Lookup(receiverID)
	if !ok {
		return
	}
	deliverToProcess(receiver, msg)
}

// Deliver is deliver's exported form, used by the sched package to hand a
// due timer event straight to its target process without sched needing
// access to proc's unexported process table.
func Deliver(receiverID uint64, msg ipc.Message) {
	deliver(receiverID, msg)
}

func deliverToProcess(receiver *Process, msg ipc.Message) {
	if threadID, ok := receiver.Messages.PopSleeper(); ok {
		for _, t := range receiver.Threads {
			if t.ID == threadID {
				writeMessageToRegs(t, msg)
				t.WaitingForMessage = false
				if scheduleFn != nil {
					scheduleFn(t)
				}
				return
			}
		}
	}
	_ = receiver.Messages.Push(msg)
}

// Send implements spec.md 4.5's syscall-invoked send: it looks up the
// receiver, optionally transfers pages out of the sender, and either wakes
// a sleeping receiver thread or enqueues the envelope.
func Send(sender *Process, receiverID uint64, msg ipc.Message, transferPages bool) *kernel.Error {
	receiver, ok := Lookup(receiverID)
	if !ok {
		return errReceiverMissing
	}
	if receiver.Messages.Len() >= ipc.MaxQueued {
		return errQueueFull
	}

	if transferPages && receiver != sender {
		if err := transferMessagePages(sender, receiver, &msg); err != nil {
			return err
		}
	}

	deliverToProcess(receiver, msg)
	return nil
}

// transferMessagePages implements the page-transfer half of Send: payload
// slot 4 is the sender's source virtual address (rounded down to a page
// boundary), slot 5 the page count. On success slot 4 is rewritten to the
// receiver-side starting address; on any failure the sender and receiver
// address spaces are left exactly as they were found.
func transferMessagePages(sender, receiver *Process, msg *ipc.Message) *kernel.Error {
	srcAddr := uintptr(msg.Payload[3]) &^ uintptr(mem.PageSize-1)
	pageCount := msg.Payload[4]
	if pageCount == 0 {
		return nil
	}

	dstBase, err := receiver.AddressSpace.ReserveRange(pageCount)
	if err != nil {
		return errSendOOM
	}

	type moved struct {
		src, dst vmm.Page
		frame    pmm.Frame
	}
	var done []moved

	// rollback restores every page already moved into the receiver back
	// into the sender, so a mid-transfer failure leaves both address
	// spaces exactly as they were found (spec.md 5's page-transfer
	// atomicity guarantee). Each Unmap below already returns its page to
	// the receiver's free index, so only the never-mapped tail of the
	// reserved range (from len(done) onward) still needs MarkFree; running
	// it over the whole range would re-free pages Unmap just freed and
	// trip the free index's double-free check.
	rollback := func() {
		for _, m := range done {
			receiver.AddressSpace.Unmap(m.dst, false, nil)
			sender.AddressSpace.ReserveAt(m.src, 1)
			sender.AddressSpace.Map(m.src, m.frame, true, true, false)
		}
		tailBase := dstBase + vmm.Page(len(done))
		tailCount := pageCount - uint64(len(done))
		if tailCount > 0 {
			receiver.AddressSpace.MarkFree(tailBase, tailCount)
		}
	}

	for i := uint64(0); i < pageCount; i++ {
		srcPage := vmm.PageFromAddress(srcAddr) + vmm.Page(i)
		dstPage := dstBase + vmm.Page(i)

		phys, terr := sender.AddressSpace.Translate(srcPage.Address(), true)
		if terr != nil {
			rollback()
			return errSendOOM
		}
		frame := pmm.FrameFromAddress(phys)

		if uerr := sender.AddressSpace.Unmap(srcPage, false, nil); uerr != nil {
			rollback()
			return errSendOOM
		}

		if merr := receiver.AddressSpace.Map(dstPage, frame, true, true, false); merr != nil {
			sender.AddressSpace.ReserveAt(srcPage, 1)
			sender.AddressSpace.Map(srcPage, frame, true, true, false)
			rollback()
			return errSendOOM
		}

		done = append(done, moved{src: srcPage, dst: dstPage, frame: frame})
	}

	msg.Payload[3] = uint64(dstBase.Address())
	return nil
}

// Poll implements the non-blocking receive: pop-front, or the NO_MESSAGE
// sentinel if the queue is empty.
func Poll(p *Process) (ipc.Message, bool) {
	return p.Messages.Pop()
}

// SleepForMessage implements spec.md 4.5's blocking receive: if a message
// is already queued it behaves like Poll; otherwise t is parked on the
// sleeper list and unscheduled, to be woken by the next deliverToProcess
// call.
func SleepForMessage(t *Thread) (ipc.Message, bool) {
	if msg, ok := t.Process.Messages.Pop(); ok {
		return msg, true
	}

	t.Process.Messages.AddSleeper(t.ID)
	t.WaitingForMessage = true
	if unscheduleFn != nil {
		unscheduleFn(t)
	}
	return ipc.Message{}, false
}
