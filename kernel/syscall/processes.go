package syscall

import (
	"nucleus/kernel/hal/multiboot"
	"nucleus/kernel/irq"
	"nucleus/kernel/proc"
)

var errNotMyChild = ErrProcessDoesNotExist

// procGetSelfPID returns the caller's own process id in RBX.
func procGetSelfPID(t *proc.Thread, regs *irq.Regs) {
	regs.RBX = t.Process.ID
	regs.RAX = ErrOK
}

// procTerminateSelf destroys the caller's whole process. As with
// thread-terminate-self, the live trap context is reused by whatever
// thread the scheduler switches into next, so regs must not be written
// afterward.
func procTerminateSelf(t *proc.Thread, regs *irq.Regs) {
	_ = proc.Destroy(t.Process)
}

// procTerminateByID destroys an arbitrary process by id. Arguments: RBX =
// process id.
func procTerminateByID(t *proc.Thread, regs *irq.Regs) {
	if regs.RBX == t.Process.ID {
		procTerminateSelf(t, regs)
		return
	}
	target, ok := proc.Lookup(regs.RBX)
	if !ok {
		regs.RAX = ErrProcessDoesNotExist
		return
	}
	regs.RAX = mapError(proc.Destroy(target))
}

// procEnumerateByName is the paginated process-discovery primitive.
// Arguments: RBX = pointer to the name to match, RCX = name length, RDX =
// cursor (find the first match with id strictly greater than this).
// Result: RBX = 1 if a match was found (0 otherwise), RCX = its process id.
func procEnumerateByName(t *proc.Thread, regs *irq.Regs) {
	name := readFixedString(uintptr(regs.RBX), int(regs.RCX))
	p, ok := proc.FindNextByName(name, regs.RDX)
	if !ok {
		regs.RBX = 0
		regs.RAX = ErrOK
		return
	}
	regs.RBX = 1
	regs.RCX = p.ID
	regs.RAX = ErrOK
}

// procGetName writes a process's name into a caller-supplied buffer.
// Arguments: RBX = process id, RCX = pointer to an NameLen-byte output
// buffer.
func procGetName(t *proc.Thread, regs *irq.Regs) {
	p, ok := proc.Lookup(regs.RBX)
	if !ok {
		regs.RAX = ErrProcessDoesNotExist
		return
	}
	writeFixedString(uintptr(regs.RCX), proc.NameLen, p.Name)
	regs.RAX = ErrOK
}

// procNotifyOnDeath subscribes the caller to a target process's death.
// Arguments: RBX = target process id, RCX = message id to deliver.
func procNotifyOnDeath(t *proc.Thread, regs *irq.Regs) {
	regs.RAX = mapError(proc.NotifyOnDeath(regs.RBX, t.Process.ID, regs.RCX))
}

// procCancelNotifyOnDeath undoes procNotifyOnDeath. Arguments: RBX = target
// process id, RCX = message id.
func procCancelNotifyOnDeath(t *proc.Thread, regs *irq.Regs) {
	proc.CancelNotifyOnDeath(regs.RBX, t.Process.ID, regs.RCX)
	regs.RAX = ErrOK
}

// procCreateChild allocates a not-yet-started child process. Arguments:
// RBX = pointer to name, RCX = name length, RDX = is-driver flag, RSI =
// can-create-processes flag. Result: RBX = child process id.
func procCreateChild(t *proc.Thread, regs *irq.Regs) {
	name := readFixedString(uintptr(regs.RBX), int(regs.RCX))
	child, err := proc.CreateChild(t.Process, name, regs.RDX != 0, regs.RSI != 0)
	if err != nil {
		regs.RAX = mapError(err)
		return
	}
	regs.RBX = child.ID
	regs.RAX = ErrOK
}

func lookupOwnChild(t *proc.Thread, childID uint64) (*proc.Process, bool) {
	child, ok := proc.Lookup(childID)
	if !ok || child.Parent != t.Process {
		return nil, false
	}
	return child, true
}

// procSetChildMemoryPage moves one page from the caller into a not-yet-
// started child at a possibly different address. Arguments: RBX = child
// process id, RCX = source address (in the caller), RDX = destination
// address (in the child).
func procSetChildMemoryPage(t *proc.Thread, regs *irq.Regs) {
	child, ok := lookupOwnChild(t, regs.RBX)
	if !ok {
		regs.RAX = errNotMyChild
		return
	}
	regs.RAX = mapError(proc.SetChildMemoryPage(t.Process, child, uintptr(regs.RCX), uintptr(regs.RDX)))
}

// procStartChild gives a not-yet-started child its first thread and
// detaches it from the caller. Arguments: RBX = child process id, RCX =
// entry point, RDX = argument.
func procStartChild(t *proc.Thread, regs *irq.Regs) {
	child, ok := lookupOwnChild(t, regs.RBX)
	if !ok {
		regs.RAX = errNotMyChild
		return
	}
	_, err := proc.StartChild(t.Process, child, uintptr(regs.RCX), uintptr(regs.RDX))
	regs.RAX = mapError(err)
}

// procDestroyChild tears down a still-creating child that never reached
// start-child. Arguments: RBX = child process id.
func procDestroyChild(t *proc.Thread, regs *irq.Regs) {
	child, ok := lookupOwnChild(t, regs.RBX)
	if !ok {
		regs.RAX = errNotMyChild
		return
	}
	regs.RAX = mapError(proc.DestroyChild(t.Process, child))
}

// procGetNextMultibootModule returns the index'th boot module's location
// and permission flags, and writes its name into a caller-supplied buffer.
// Arguments: RBX = module index, RSI = pointer to a name output buffer, RDI
// = buffer length. Result: RBX = 1 found, RCX = start, RDX = end, R8 =
// flags (bit 0 = is-driver, bit 1 = can-create-processes).
func procGetNextMultibootModule(t *proc.Thread, regs *irq.Regs) {
	mod, ok := multiboot.ModuleAt(int(regs.RBX))
	if !ok {
		regs.RBX = 0
		regs.RAX = ErrOK
		return
	}

	flags := mod.Flags()
	var packed uint64
	if flags.IsDriver {
		packed |= 1
	}
	if flags.CanCreateProcesses {
		packed |= 2
	}

	writeFixedString(uintptr(regs.RSI), int(regs.RDI), mod.Name())

	regs.RBX = 1
	regs.RCX = mod.Start
	regs.RDX = mod.End
	regs.R8 = packed
	regs.RAX = ErrOK
}
