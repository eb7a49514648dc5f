package proc

import (
	"testing"

	"nucleus/kernel/svc"
)

// fakeProcess registers a bare-bones Process directly into the global table,
// bypassing newProcess (and the vmm.New address-space allocation it needs)
// so the pure bookkeeping logic in this file can be tested without a real
// MMU underneath it.
func fakeProcess(id uint64, name string) *Process {
	p := &Process{
		ID:    id,
		Name:  name,
		State: StateRunning,
	}
	processes[id] = p
	if id >= nextProcessID {
		nextProcessID = id + 1
	}
	return p
}

func resetProcessTable() {
	processes = map[uint64]*Process{}
	nextProcessID = 1
	services = svc.New()
}

func TestTruncateName(t *testing.T) {
	short := "init"
	if got := truncateName(short); got != short {
		t.Fatalf("expected short name untouched; got %q", got)
	}

	long := make([]byte, NameLen+10)
	for i := range long {
		long[i] = 'a'
	}
	got := truncateName(string(long))
	if len(got) != NameLen {
		t.Fatalf("expected truncated name to be %d bytes; got %d", NameLen, len(got))
	}
}

func TestLookupAndLookupOrNext(t *testing.T) {
	resetProcessTable()
	fakeProcess(5, "a")
	fakeProcess(10, "b")

	if _, ok := Lookup(7); ok {
		t.Fatal("expected Lookup(7) to miss")
	}

	p, ok := LookupOrNext(7)
	if !ok || p.ID != 10 {
		t.Fatalf("expected LookupOrNext(7) to land on pid 10; got %+v, ok=%v", p, ok)
	}

	p, ok = LookupOrNext(10)
	if !ok || p.ID != 10 {
		t.Fatalf("expected LookupOrNext(10) to hit pid 10 exactly; got %+v, ok=%v", p, ok)
	}

	if _, ok := LookupOrNext(11); ok {
		t.Fatal("expected LookupOrNext past every id to miss")
	}
}

func TestFindNextByName(t *testing.T) {
	resetProcessTable()
	fakeProcess(1, "worker")
	fakeProcess(2, "worker")
	fakeProcess(3, "other")

	p, ok := FindNextByName("worker", 0)
	if !ok || p.ID != 1 {
		t.Fatalf("expected first match to be pid 1; got %+v, ok=%v", p, ok)
	}

	p, ok = FindNextByName("worker", 1)
	if !ok || p.ID != 2 {
		t.Fatalf("expected second match to be pid 2; got %+v, ok=%v", p, ok)
	}

	if _, ok := FindNextByName("worker", 2); ok {
		t.Fatal("expected pagination to be exhausted")
	}
}

func TestNotifyOnDeathAndCancel(t *testing.T) {
	resetProcessTable()
	fakeProcess(1, "target")

	if err := NotifyOnDeath(1, 99, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	target, _ := Lookup(1)
	if len(target.deathSubs) != 1 {
		t.Fatalf("expected one death subscription; got %d", len(target.deathSubs))
	}

	CancelNotifyOnDeath(1, 99, 7)
	if len(target.deathSubs) != 0 {
		t.Fatalf("expected subscription to be cancelled; got %d", len(target.deathSubs))
	}

	if err := NotifyOnDeath(404, 99, 7); err != errProcessNotFound {
		t.Fatalf("expected errProcessNotFound for a missing target; got %v", err)
	}

	// Cancel on a missing target must be a no-op rather than panic.
	CancelNotifyOnDeath(404, 99, 7)
}

func TestIRQBindings(t *testing.T) {
	resetProcessTable()
	p := fakeProcess(1, "driver")
	p.irqBindings = map[uint8][]IRQBinding{}

	BindIRQMessage(p, 3, 42)
	BindIRQPortDrain(p, 3, 43, 0x60, 0x64, 0x01)

	bindings := IRQBindingsFor(3)
	if len(bindings[p]) != 2 {
		t.Fatalf("expected 2 bindings on line 3; got %d", len(bindings[p]))
	}

	UnbindIRQMessage(p, 3, 42)
	bindings = IRQBindingsFor(3)
	if len(bindings[p]) != 1 || bindings[p][0].MessageID != 43 {
		t.Fatalf("expected only the port-drain binding to remain; got %v", bindings[p])
	}

	if bindings := IRQBindingsFor(4); len(bindings) != 0 {
		t.Fatalf("expected no bindings on an unused line; got %v", bindings)
	}
}

func TestProfilingNesting(t *testing.T) {
	resetProcessTable()
	p := fakeProcess(1, "profiled")

	EnableProfiling(p)
	EnableProfiling(p)

	if _, done := DisableProfiling(p); done {
		t.Fatal("expected profiling to still be nested after one Disable")
	}

	p.cyclesProfiled = 12345
	cycles, done := DisableProfiling(p)
	if !done || cycles != 12345 {
		t.Fatalf("expected final DisableProfiling to report done with accumulated cycles; got %d, done=%v", cycles, done)
	}
}

func TestServiceRegistryWiring(t *testing.T) {
	resetProcessTable()
	p := fakeProcess(1, "echo-service")

	s, err := RegisterService(p, 5, "echo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name != "echo" {
		t.Fatalf("unexpected service: %+v", s)
	}

	name, ok := ServiceName(p.ID, 5)
	if !ok || name != "echo" {
		t.Fatalf("expected ServiceName to resolve; got %q, ok=%v", name, ok)
	}

	found, ok := FindNextService("echo", 0, 0)
	if !ok || found.MessageID != 5 {
		t.Fatalf("expected FindNextService to find the registration; got %+v, ok=%v", found, ok)
	}

	UnregisterService(p, 5)
	if _, ok := ServiceName(p.ID, 5); ok {
		t.Fatal("expected service to be gone after unregister")
	}
}
