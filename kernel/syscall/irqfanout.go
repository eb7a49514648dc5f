package syscall

import (
	"nucleus/kernel/cpu"
	"nucleus/kernel/ipc"
	"nucleus/kernel/irq"
	"nucleus/kernel/proc"
	"nucleus/kernel/sched"
)

// installIRQFanout wires every non-timer PIC line (the timer, IRQ 0, is
// the scheduler's own to drive preemption) to the driver-binding fan-out
// described in spec.md 4.8.
func installIRQFanout() {
	for line := irq.IRQNum(1); line < 16; line++ {
		l := line
		irq.HandleIRQ(l, func(frame *irq.Frame, regs *irq.Regs) {
			fanOutIRQ(uint8(l), frame, regs)
		})
	}
}

// fanOutIRQ walks every driver binding registered on line and delivers it.
// Each delivery that wakes a sleeping thread goes through the same
// scheduleFn hook Schedule uses internally, which switches into the woken
// thread immediately if the CPU was otherwise idle -- spec.md 4.8's "on
// EOI, if the CPU was idle and a thread was woken, switch into it".
func fanOutIRQ(line uint8, frame *irq.Frame, regs *irq.Regs) {
	sched.EnterTrap(frame, regs)

	for p, bindings := range proc.IRQBindingsFor(line) {
		for _, b := range bindings {
			if b.Method == 0 {
				proc.Deliver(p.ID, ipc.Message{ID: b.MessageID})
			} else {
				drainPortPair(p.ID, b.MessageID, b.StatusPort, b.DataPort, b.Mask)
			}
		}
	}
}

// drainPortPair implements method 1: while the status port's value matches
// mask, read the data port, pack consecutive (status, data) byte pairs
// into 5-word messages (one per 40 bytes captured), and flush any trailing
// partial capture as a final, zero-padded message.
func drainPortPair(receiverID, messageID uint64, statusPort, dataPort uint16, mask uint8) {
	var buf []byte
	for {
		status := cpu.InByte(statusPort)
		if status&mask != mask {
			break
		}
		data := cpu.InByte(dataPort)
		buf = append(buf, status, data)
		if len(buf) == 40 {
			proc.Deliver(receiverID, ipc.Message{ID: messageID, Payload: packPayload(buf)})
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		proc.Deliver(receiverID, ipc.Message{ID: messageID, Payload: packPayload(buf)})
	}
}

// packPayload packs up to 40 captured bytes into 5 little-endian 64-bit
// words, zero-padding any unfilled tail.
func packPayload(buf []byte) [5]uint64 {
	var payload [5]uint64
	for i := 0; i < len(buf); i++ {
		payload[i/8] |= uint64(buf[i]) << uint((i%8)*8)
	}
	return payload
}
