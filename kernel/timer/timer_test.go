package timer

import "testing"

func resetClock() {
	ticks = 0
	pending = nil
}

func TestTickAndNowMicros(t *testing.T) {
	resetClock()

	if got := NowMicros(); got != 0 {
		t.Fatalf("expected a fresh clock to read 0; got %d", got)
	}

	for i := 0; i < 1000; i++ {
		Tick()
	}

	if got, exp := NowMicros(), uint64(1000000); got != exp {
		t.Fatalf("expected 1000 ticks at 1kHz to read %d microseconds; got %d", exp, got)
	}
}

func TestSendAtOrdering(t *testing.T) {
	resetClock()

	SendAt(1, 10, 300)
	SendAt(2, 20, 100)
	SendAt(3, 30, 200)

	if len(pending) != 3 {
		t.Fatalf("expected 3 pending events; got %d", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i-1].Timestamp > pending[i].Timestamp {
			t.Fatalf("expected events sorted by timestamp; got %v", pending)
		}
	}
	if pending[0].ProcessID != 2 || pending[2].ProcessID != 1 {
		t.Fatalf("unexpected ordering: %v", pending)
	}
}

func TestSendAfterUsesClock(t *testing.T) {
	resetClock()

	for i := 0; i < 500; i++ {
		Tick()
	}
	now := NowMicros()

	SendAfter(1, 7, 250)

	if len(pending) != 1 || pending[0].Timestamp != now+250 {
		t.Fatalf("expected event armed at now+250 (%d); got %v", now+250, pending)
	}
}

func TestDrainDue(t *testing.T) {
	resetClock()

	SendAt(1, 10, 1000)
	SendAt(2, 20, 2000)
	SendAt(3, 30, 3000)

	for NowMicros() < 2000 {
		Tick()
	}

	due := DrainDue()
	if len(due) != 2 {
		t.Fatalf("expected 2 due events at t=%d; got %d (%v)", NowMicros(), len(due), due)
	}
	if due[0].ProcessID != 1 || due[1].ProcessID != 2 {
		t.Fatalf("expected due events in timestamp order; got %v", due)
	}

	if len(pending) != 1 || pending[0].ProcessID != 3 {
		t.Fatalf("expected the not-yet-due event to remain pending; got %v", pending)
	}

	if due := DrainDue(); len(due) != 0 {
		t.Fatalf("expected nothing more due; got %v", due)
	}
}

func TestCancelAllForProcess(t *testing.T) {
	resetClock()

	SendAt(1, 10, 100)
	SendAt(2, 20, 150)
	SendAt(1, 11, 200)

	CancelAllForProcess(1)

	if len(pending) != 1 || pending[0].ProcessID != 2 {
		t.Fatalf("expected only process 2's event to remain; got %v", pending)
	}
}
