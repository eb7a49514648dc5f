package proc

import (
	"nucleus/kernel"
	"nucleus/kernel/irq"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/vmm"
	"nucleus/kernel/shm"
)

// StackPages is the number of 4 KiB pages reserved for a new thread's
// stack.
const StackPages = 8

const (
	// userCodeSelector/userDataSelector are the ring-3 code/data GDT
	// selectors the boot assembly's GDT installs; bit 0-1 (requested
	// privilege level 3) is OR'd in here rather than baked into the GDT
	// offset itself.
	userCodeSelector = 0x20 | 3
	userDataSelector = 0x18 | 3

	rflagsInterruptsEnabled = 1 << 9
	rflagsIOPL              = (1 << 12) | (1 << 13)
	rflagsCPUID             = 1 << 21
)

var errThreadOOM = &kernel.Error{Module: "proc", Message: "out of memory while creating thread"}

// frameAllocator/frameFreer are wired by Init to the pmm allocator
// singleton; kept as package vars (rather than imported directly at every
// call site) so the proc package's tests can substitute fakes.
var (
	frameAllocator func() (pmm.Frame, *kernel.Error)
	frameFreer     func(pmm.Frame) *kernel.Error
)

// Registers is a thread's full saved CPU context: general-purpose registers
// plus the trap-frame fields restored by SYSRET/IRET. It is the
// concatenation of the two snapshot types the trap entry stubs already
// populate, so a thread's Registers block is directly interchangeable with
// what a syscall/exception handler receives.
type Registers struct {
	irq.Regs
	irq.Frame
}

// Print dumps the full register snapshot: the general-purpose registers
// followed by the trap-frame fields.
func (r *Registers) Print() {
	r.Regs.Print()
	r.Frame.Print()
}

// Thread is a single schedulable unit inside a Process.
type Thread struct {
	ID      uint64
	Process *Process

	Regs   Registers
	FPU    [512]byte
	FSBase uintptr

	StackBase  vmm.Page
	StackPages uint64

	Awake                bool
	WaitingForMessage    bool
	WaitingForSharedPage bool

	TimeSlices uint64

	ZeroOnTerminate uintptr
	UsesFPU         bool
}

// CreateThread allocates a thread inside p, reserving and mapping its stack
// and initializing its register snapshot to start executing at (entry,
// arg) in ring 3. The thread is not scheduled; the caller (StartChild, or
// the create-thread syscall handler) is responsible for waking it.
func CreateThread(p *Process, entry, arg uintptr) (*Thread, *kernel.Error) {
	stackBase, err := p.AddressSpace.ReserveRange(StackPages)
	if err != nil {
		return nil, err
	}

	var i uint64
	for i = 0; i < StackPages; i++ {
		page := stackBase + vmm.Page(i)
		frame, ferr := frameAllocator()
		if ferr != nil {
			break
		}
		if merr := p.AddressSpace.Map(page, frame, true, true, false); merr != nil {
			break
		}
	}
	if i < StackPages {
		for j := uint64(0); j < i; j++ {
			p.AddressSpace.Unmap(stackBase+vmm.Page(j), true, frameFreer)
		}
		// Each Unmap above already returned its page to the free index;
		// only the never-mapped tail is still reserved.
		p.AddressSpace.MarkFree(stackBase+vmm.Page(i), StackPages-i)
		return nil, errThreadOOM
	}

	stackTop := stackBase.Address() + uintptr(StackPages)*uintptr(mem.PageSize)

	t := &Thread{
		ID:         p.nextThreadID,
		Process:    p,
		StackBase:  stackBase,
		StackPages: StackPages,
		UsesFPU:    true,
	}
	p.nextThreadID++

	t.Regs.RDI = uint64(arg)
	t.Regs.RIP = uint64(entry)
	t.Regs.RBP = uint64(stackTop)
	t.Regs.RSP = uint64(stackTop)
	t.Regs.CS = userCodeSelector
	t.Regs.SS = userDataSelector

	var flags uint64 = rflagsInterruptsEnabled | rflagsCPUID
	if p.IsDriver {
		flags |= rflagsIOPL
	}
	t.Regs.RFlags = flags

	p.Threads = append(p.Threads, t)
	return t, nil
}

// DestroyThread tears down a single thread: unschedules it, frees its
// stack, unlinks it from any message-sleeper or shared-memory-waiter list,
// clears its zero-on-terminate slot, and destroys the owning process if
// this was its last thread (unless teardown is already in progress for
// that process).
func DestroyThread(t *Thread) *kernel.Error {
	return destroyThreadLocked(t)
}

func destroyThreadLocked(t *Thread) *kernel.Error {
	p := t.Process

	if t.Awake && unscheduleFn != nil {
		unscheduleFn(t)
	}

	for i := uint64(0); i < t.StackPages; i++ {
		page := t.StackBase + vmm.Page(i)
		if err := p.AddressSpace.Unmap(page, true, frameFreer); err != nil {
			return err
		}
	}

	if t.WaitingForMessage {
		p.Messages.RemoveSleeper(t.ID)
	}
	if t.WaitingForSharedPage {
		shm.RemoveWaiterEverywhere(p.ID, t.ID)
	}

	if t.ZeroOnTerminate != 0 {
		if _, err := p.AddressSpace.Translate(t.ZeroOnTerminate, true); err == nil {
			zeroOwnedPage(p, t.ZeroOnTerminate)
		}
	}

	for i, th := range p.Threads {
		if th == t {
			p.Threads = append(p.Threads[:i], p.Threads[i+1:]...)
			break
		}
	}

	if len(p.Threads) == 0 && !p.tearingDown {
		return Destroy(p)
	}
	return nil
}

// zeroOwnedPage writes zero over the single page at virtAddr in p's address
// space. p must be the active address space; callers invoke this only from
// thread teardown, which runs with p already current.
func zeroOwnedPage(p *Process, virtAddr uintptr) {
	page := vmm.PageFromAddress(virtAddr)
	mem.Memset(page.Address(), 0, mem.PageSize)
}

// SetZeroOnTerminate records the address to zero (if it is an owned page)
// when t terminates, implementing user-space TLS cleanup.
func (t *Thread) SetZeroOnTerminate(addr uintptr) {
	t.ZeroOnTerminate = addr
}

// SetFSBase records the FS segment base used for thread-local storage.
// Applied to the CPU immediately if t is the thread currently executing;
// otherwise it is loaded by the scheduler's next context switch into t.
func (t *Thread) SetFSBase(base uintptr, isCurrent bool) {
	t.FSBase = base
	if isCurrent {
		setFSBaseFn(base)
	}
}
