package svc

import "testing"

func TestRegisterSortedByMessageID(t *testing.T) {
	reg := New()

	ids := []uint64{30, 10, 20}
	for _, id := range ids {
		if _, err := reg.Register(1, id, "svc"); err != nil {
			t.Fatalf("unexpected error registering %d: %v", id, err)
		}
	}

	list := reg.byProcess[1]
	if len(list) != len(ids) {
		t.Fatalf("expected %d services; got %d", len(ids), len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].MessageID >= list[i].MessageID {
			t.Fatalf("expected services sorted by message id; got %v", list)
		}
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := New()

	if _, err := reg.Register(1, 5, "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := reg.Register(1, 5, "second"); err != errDuplicateService {
		t.Fatalf("expected errDuplicateService; got %v", err)
	}

	s, ok := reg.Find(1, 5)
	if !ok || s.Name != "first" {
		t.Fatalf("expected original registration to survive; got %+v, ok=%v", s, ok)
	}
}

func TestUnregisterAndFind(t *testing.T) {
	reg := New()
	reg.Register(1, 5, "svc")

	s, ok := reg.Unregister(1, 5)
	if !ok || s.Name != "svc" {
		t.Fatalf("expected to unregister svc; got %+v, ok=%v", s, ok)
	}

	if _, ok := reg.Find(1, 5); ok {
		t.Fatal("expected service to be gone after unregister")
	}

	if _, ok := reg.Unregister(1, 5); ok {
		t.Fatal("expected second unregister to report false")
	}
}

func TestUnregisterAll(t *testing.T) {
	reg := New()
	reg.Register(1, 5, "a")
	reg.Register(1, 6, "b")
	reg.Register(2, 7, "c")

	removed := reg.UnregisterAll(1)
	if len(removed) != 2 {
		t.Fatalf("expected 2 services removed from process 1; got %d", len(removed))
	}
	if _, ok := reg.Find(1, 5); ok {
		t.Fatal("expected process 1's services to be gone")
	}
	if _, ok := reg.Find(2, 7); !ok {
		t.Fatal("expected process 2's service to survive")
	}

	if removed := reg.UnregisterAll(1); removed != nil {
		t.Fatalf("expected nil on an already-empty process; got %v", removed)
	}
}

func TestFindNextPagination(t *testing.T) {
	reg := New()
	reg.Register(1, 1, "echo")
	reg.Register(1, 2, "echo")
	reg.Register(2, 1, "echo")
	reg.Register(2, 2, "other")

	s, ok := reg.FindNext("echo", 0, 0)
	if !ok || s.ProcessID != 1 || s.MessageID != 1 {
		t.Fatalf("expected first match to be (1,1); got %+v, ok=%v", s, ok)
	}

	s, ok = reg.FindNext("echo", s.ProcessID, s.MessageID)
	if !ok || s.ProcessID != 1 || s.MessageID != 2 {
		t.Fatalf("expected second match to be (1,2); got %+v, ok=%v", s, ok)
	}

	s, ok = reg.FindNext("echo", s.ProcessID, s.MessageID)
	if !ok || s.ProcessID != 2 || s.MessageID != 1 {
		t.Fatalf("expected third match to be (2,1); got %+v, ok=%v", s, ok)
	}

	if _, ok := reg.FindNext("echo", s.ProcessID, s.MessageID); ok {
		t.Fatal("expected pagination to be exhausted")
	}
}

func TestAppearanceSubscription(t *testing.T) {
	reg := New()
	reg.Register(1, 1, "printer")

	existing := reg.SubscribeAppearance(99, "printer", 7)
	if len(existing) != 1 || existing[0].ProcessID != 1 {
		t.Fatalf("expected subscribe to report the already-registered match; got %v", existing)
	}

	reg.Register(2, 1, "printer")
	matches := reg.MatchAppearance("printer")
	if len(matches) != 1 || matches[0].WatcherPID != 99 {
		t.Fatalf("expected the watcher to be notified of the new registration; got %v", matches)
	}

	reg.CancelAppearance(99, "printer", 7)
	if matches := reg.MatchAppearance("printer"); len(matches) != 0 {
		t.Fatalf("expected no subscribers after cancel; got %v", matches)
	}
}

func TestDisappearanceSubscription(t *testing.T) {
	reg := New()
	reg.SubscribeDisappearance(99, 1, 5, 7)
	reg.SubscribeDisappearance(99, 1, 6, 8)

	matches := reg.MatchDisappearance(1, 5)
	if len(matches) != 1 || matches[0].NotifyMID != 7 {
		t.Fatalf("expected one matching disappearance sub; got %v", matches)
	}

	// One-shot: a second match against the same target must find nothing.
	if matches := reg.MatchDisappearance(1, 5); len(matches) != 0 {
		t.Fatalf("expected disappearance subs to be consumed; got %v", matches)
	}

	if matches := reg.MatchDisappearance(1, 6); len(matches) != 1 {
		t.Fatalf("expected the other subscription to still be present; got %v", matches)
	}
}

func TestCancelDisappearanceMissing(t *testing.T) {
	reg := New()
	reg.SubscribeDisappearance(99, 1, 5, 7)

	// Canceling a subscription that doesn't match anything is a no-op.
	reg.CancelDisappearance(1, 2, 3, 4)

	if matches := reg.MatchDisappearance(1, 5); len(matches) != 1 {
		t.Fatalf("expected untouched subscription to still fire; got %v", matches)
	}
}
