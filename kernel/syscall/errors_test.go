package syscall

import (
	"testing"

	"nucleus/kernel"
	"nucleus/kernel/proc"
)

func TestMapErrorNilIsOK(t *testing.T) {
	if got := mapError(nil); got != ErrOK {
		t.Fatalf("expected a nil error to map to ErrOK; got %d", got)
	}
}

func TestMapErrorKnownSentinels(t *testing.T) {
	cases := []struct {
		name string
		in   *kernel.Error
		want uint64
	}{
		{"receiver missing", proc.ErrReceiverMissing, ErrProcessDoesNotExist},
		{"queue full", proc.ErrQueueFull, ErrReceiversQueueIsFull},
		{"bad page range", proc.ErrBadPageRange, ErrInvalidMemoryRange},
		{"send oom", proc.ErrSendOOM, ErrOutOfMemory},
	}
	for _, c := range cases {
		if got := mapError(c.in); got != c.want {
			t.Errorf("%s: expected %d; got %d", c.name, c.want, got)
		}
	}
}

func TestMapErrorFallsBackToOutOfMemory(t *testing.T) {
	generic := &kernel.Error{Module: "vmm", Message: "out of virtual address space"}
	if got := mapError(generic); got != ErrOutOfMemory {
		t.Fatalf("expected an unrecognized vmm error to map to ErrOutOfMemory; got %d", got)
	}

	unrelated := &kernel.Error{Module: "some_other_module", Message: "whatever"}
	if got := mapError(unrelated); got != ErrOutOfMemory {
		t.Fatalf("expected an unrecognized module to still fall back to ErrOutOfMemory; got %d", got)
	}
}
