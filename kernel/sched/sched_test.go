package sched

import (
	"testing"

	"nucleus/kernel/proc"
)

// nextAfter is the one piece of the scheduler that has no hardware
// dependency (no register save/restore, no address-space switch), so it is
// the one exercised directly here; Schedule/Unschedule/scheduleNext drive a
// real context switch through proc.Thread.Process.AddressSpace and are left
// to integration-level reasoning instead, the same way this codebase leaves
// kmain's own wiring untested.
func TestNextAfterEmptyRing(t *testing.T) {
	awakeThreads = nil
	if got := nextAfter(nil); got != nil {
		t.Fatalf("expected nil on an empty ring; got %v", got)
	}
}

func TestNextAfterWrapsAround(t *testing.T) {
	a := &proc.Thread{ID: 1}
	b := &proc.Thread{ID: 2}
	c := &proc.Thread{ID: 3}
	awakeThreads = []*proc.Thread{a, b, c}
	defer func() { awakeThreads = nil }()

	if got := nextAfter(a); got != b {
		t.Fatalf("expected a -> b; got %v", got)
	}
	if got := nextAfter(b); got != c {
		t.Fatalf("expected b -> c; got %v", got)
	}
	if got := nextAfter(c); got != a {
		t.Fatalf("expected the ring to wrap c -> a; got %v", got)
	}
}

func TestNextAfterNilOrMissingStartsAtFront(t *testing.T) {
	a := &proc.Thread{ID: 1}
	b := &proc.Thread{ID: 2}
	awakeThreads = []*proc.Thread{a, b}
	defer func() { awakeThreads = nil }()

	if got := nextAfter(nil); got != a {
		t.Fatalf("expected nil cursor to start at the front; got %v", got)
	}

	stranger := &proc.Thread{ID: 99}
	if got := nextAfter(stranger); got != a {
		t.Fatalf("expected an unrecognized cursor to fall back to the front; got %v", got)
	}
}
