// Package ipc implements the kernel's message envelopes and per-receiver
// queues (spec.md 4.5). It knows nothing about processes or address spaces;
// the proc package drives page transfer and delivery on top of the Queue
// type defined here.
package ipc

import "nucleus/kernel"

// MaxQueued bounds the number of envelopes a single receiver may hold
// before a sender observes RECEIVERS_QUEUE_IS_FULL.
const MaxQueued = 1024

// NoMessage is the sentinel message-id returned by Poll on an empty queue.
const NoMessage = ^uint64(0)

// MetaHasPages is set in a Message's Metadata field when the send also
// transfers memory pages: payload slot 4 holds a source virtual address,
// slot 5 a page count.
const MetaHasPages = uint64(1)

// Message is the envelope delivered between processes.
type Message struct {
	ID       uint64
	SenderID uint64
	Metadata uint64
	Payload  [5]uint64
}

var errQueueFull = &kernel.Error{Module: "ipc", Message: "receiver's queue is full"}

// Queue is a bounded per-process FIFO of pending messages plus the list of
// thread ids sleeping for one. ThreadID is left as a bare uint64 so this
// package stays independent of the proc package; proc.Thread.ID is that
// same uint64 under the hood.
type Queue struct {
	pending  []Message
	sleepers []uint64
}

// Push enqueues msg, failing if the queue is already at MaxQueued.
func (q *Queue) Push(msg Message) *kernel.Error {
	if len(q.pending) >= MaxQueued {
		return errQueueFull
	}
	q.pending = append(q.pending, msg)
	return nil
}

// Pop removes and returns the oldest pending message.
func (q *Queue) Pop() (Message, bool) {
	if len(q.pending) == 0 {
		return Message{}, false
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	return msg, true
}

// Len returns the number of messages currently queued.
func (q *Queue) Len() int {
	return len(q.pending)
}

// AddSleeper records threadID as waiting for the next message to arrive.
func (q *Queue) AddSleeper(threadID uint64) {
	q.sleepers = append(q.sleepers, threadID)
}

// PopSleeper removes and returns the longest-waiting sleeper, if any.
func (q *Queue) PopSleeper() (uint64, bool) {
	if len(q.sleepers) == 0 {
		return 0, false
	}
	id := q.sleepers[0]
	q.sleepers = q.sleepers[1:]
	return id, true
}

// RemoveSleeper drops threadID from the sleeper list without waking it
// (used when a thread is torn down while still asleep).
func (q *Queue) RemoveSleeper(threadID uint64) {
	for i, id := range q.sleepers {
		if id == threadID {
			q.sleepers = append(q.sleepers[:i], q.sleepers[i+1:]...)
			return
		}
	}
}
