package sched

import (
	"nucleus/kernel/ipc"
	"nucleus/kernel/proc"
	"nucleus/kernel/timer"
)

// tick advances the timer subsystem by one tick and delivers every send
// that has come due, as a plain message carrying the fire timestamp in its
// first payload word (spec.md 4.9's microsecond-delay timer sends).
func tick() {
	timer.Tick()
	for _, ev := range timer.DrainDue() {
		proc.Deliver(ev.ProcessID, ipc.Message{
			ID:      ev.MessageID,
			Payload: [5]uint64{ev.Timestamp},
		})
	}
}
