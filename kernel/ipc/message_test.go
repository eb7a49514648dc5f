package ipc

import "testing"

func TestQueuePushPop(t *testing.T) {
	var q Queue

	if got := q.Len(); got != 0 {
		t.Fatalf("expected empty queue; got len %d", got)
	}

	if _, ok := q.Pop(); ok {
		t.Fatal("expected Pop on empty queue to report false")
	}

	msgs := []Message{
		{ID: 1, SenderID: 10},
		{ID: 2, SenderID: 20},
		{ID: 3, SenderID: 30},
	}
	for _, m := range msgs {
		if err := q.Push(m); err != nil {
			t.Fatalf("unexpected error pushing %v: %v", m, err)
		}
	}

	if got, exp := q.Len(), len(msgs); got != exp {
		t.Fatalf("expected queue length %d; got %d", exp, got)
	}

	for i, exp := range msgs {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("expected a message at position %d", i)
		}
		if got != exp {
			t.Errorf("expected message %d to be %v; got %v", i, exp, got)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Fatal("expected Pop to report false once drained")
	}
}

func TestQueuePushFull(t *testing.T) {
	var q Queue

	for i := 0; i < MaxQueued; i++ {
		if err := q.Push(Message{ID: uint64(i)}); err != nil {
			t.Fatalf("unexpected error filling queue at %d: %v", i, err)
		}
	}

	if err := q.Push(Message{ID: 12345}); err != errQueueFull {
		t.Fatalf("expected errQueueFull once at capacity; got %v", err)
	}

	if got, exp := q.Len(), MaxQueued; got != exp {
		t.Fatalf("expected length to stay at %d; got %d", exp, got)
	}
}

func TestQueueSleepers(t *testing.T) {
	var q Queue

	if _, ok := q.PopSleeper(); ok {
		t.Fatal("expected PopSleeper on empty list to report false")
	}

	q.AddSleeper(1)
	q.AddSleeper(2)
	q.AddSleeper(3)

	q.RemoveSleeper(2)

	id, ok := q.PopSleeper()
	if !ok || id != 1 {
		t.Fatalf("expected sleeper 1 first; got %d, ok=%v", id, ok)
	}

	id, ok = q.PopSleeper()
	if !ok || id != 3 {
		t.Fatalf("expected sleeper 3 next (2 was removed); got %d, ok=%v", id, ok)
	}

	if _, ok := q.PopSleeper(); ok {
		t.Fatal("expected sleeper list to be drained")
	}
}

func TestQueueRemoveSleeperMissing(t *testing.T) {
	var q Queue
	q.AddSleeper(1)

	// Removing an id that was never added must be a no-op, not a panic.
	q.RemoveSleeper(999)

	if id, ok := q.PopSleeper(); !ok || id != 1 {
		t.Fatalf("expected sleeper 1 to remain queued; got %d, ok=%v", id, ok)
	}
}
