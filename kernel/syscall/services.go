package syscall

import (
	"nucleus/kernel/irq"
	"nucleus/kernel/proc"
	"nucleus/kernel/svc"
)

// svcRegister advertises a service under the caller's process. Arguments:
// RBX = message id, RCX = pointer to name, RDX = name length.
func svcRegister(t *proc.Thread, regs *irq.Regs) {
	name := readFixedString(uintptr(regs.RCX), int(regs.RDX))
	_, err := proc.RegisterService(t.Process, regs.RBX, name)
	regs.RAX = mapError(err)
}

// svcUnregisterByMID withdraws a previously registered service. Arguments:
// RBX = message id.
func svcUnregisterByMID(t *proc.Thread, regs *irq.Regs) {
	proc.UnregisterService(t.Process, regs.RBX)
	regs.RAX = ErrOK
}

// svcEnumerateByName is the paginated service-discovery primitive.
// Arguments: RBX = pointer to the name to match, RCX = name length, RDX =
// cursor process id, RSI = cursor message id (strictly after this (pid,
// mid) pair). Result: RBX = 1 if found, RCX = process id, RDX = message id.
func svcEnumerateByName(t *proc.Thread, regs *irq.Regs) {
	name := readFixedString(uintptr(regs.RBX), int(regs.RCX))
	s, ok := proc.FindNextService(name, regs.RDX, regs.RSI)
	if !ok {
		regs.RBX = 0
		regs.RAX = ErrOK
		return
	}
	regs.RBX = 1
	regs.RCX = s.ProcessID
	regs.RDX = s.MessageID
	regs.RAX = ErrOK
}

// svcGetName writes a service's name into a caller-supplied buffer.
// Arguments: RBX = process id, RCX = message id, RDX = pointer to an
// svc.NameLen-byte output buffer.
func svcGetName(t *proc.Thread, regs *irq.Regs) {
	name, ok := proc.ServiceName(regs.RBX, regs.RCX)
	if !ok {
		regs.RAX = ErrProcessDoesNotExist
		return
	}
	writeFixedString(uintptr(regs.RDX), svc.NameLen, name)
	regs.RAX = ErrOK
}

// svcNotifyOnAppearance subscribes the caller to future registrations
// matching a name, and delivers one notification per already-registered
// match immediately. Arguments: RBX = pointer to name, RCX = name length,
// RDX = notify message id.
func svcNotifyOnAppearance(t *proc.Thread, regs *irq.Regs) {
	name := readFixedString(uintptr(regs.RBX), int(regs.RCX))
	proc.SubscribeServiceAppearance(t.Process, name, regs.RDX)
	regs.RAX = ErrOK
}

// svcCancelNotifyOnAppearance undoes svcNotifyOnAppearance. Arguments: RBX
// = pointer to name, RCX = name length, RDX = notify message id.
func svcCancelNotifyOnAppearance(t *proc.Thread, regs *irq.Regs) {
	name := readFixedString(uintptr(regs.RBX), int(regs.RCX))
	proc.CancelServiceAppearance(t.Process, name, regs.RDX)
	regs.RAX = ErrOK
}

// svcNotifyOnDisappearance subscribes the caller to the unregistration of a
// specific service. Arguments: RBX = target process id, RCX = target
// message id, RDX = notify message id.
func svcNotifyOnDisappearance(t *proc.Thread, regs *irq.Regs) {
	proc.SubscribeServiceDisappearance(t.Process, regs.RBX, regs.RCX, regs.RDX)
	regs.RAX = ErrOK
}

// svcCancelNotifyOnDisappearance undoes svcNotifyOnDisappearance. Arguments:
// RBX = target process id, RCX = target message id, RDX = notify message
// id.
func svcCancelNotifyOnDisappearance(t *proc.Thread, regs *irq.Regs) {
	proc.CancelServiceDisappearance(t.Process, regs.RBX, regs.RCX, regs.RDX)
	regs.RAX = ErrOK
}
