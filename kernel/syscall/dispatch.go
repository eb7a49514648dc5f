package syscall

import (
	"nucleus/kernel"
	"nucleus/kernel/irq"
	"nucleus/kernel/kfmt/early"
	"nucleus/kernel/proc"
	"nucleus/kernel/sched"
)

// Init wires the general CPU exception handlers and the hardware IRQ
// fan-out that drives driver-bound interrupt messages. The page-fault and
// general-protection-fault handlers are installed by vmm.Init, which also
// owns the lazy-shared-memory-fault and user-fault-vs-kernel-panic policy
// split; this package only adds the exception vectors vmm does not cover.
func Init() *kernel.Error {
	installGeneralExceptionHandlers()
	installIRQFanout()
	irq.HandleSyscall(Dispatch)
	return nil
}

// Dispatch is the single entry point every syscall trap funnels through
// (spec.md 4.8). frame/regs are the live trap context -- not the calling
// thread's saved Registers block, which only reflects reality right after a
// context switch -- so every handler reads its arguments from, and writes
// its results into, regs/frame directly; the trap-return path reloads them
// from there, and a context switch mid-syscall (e.g. sleep-for-message)
// saves this same live state into the thread's Registers block on the way
// out.
func Dispatch(frame *irq.Frame, regs *irq.Regs) {
	t := proc.Current()
	if t == nil {
		return
	}
	sched.EnterTrap(frame, regs)

	op := Opcode(regs.RAX)

	switch op {
	case OpDebugPrintChar:
		debugPrintChar(t, regs)
	case OpDebugPrintRegs:
		debugPrintRegs(t, regs)

	case OpThreadCreate:
		threadCreate(t, regs)
	case OpThreadGetSelfID:
		threadGetSelfID(t, regs)
	case OpThreadTerminateSelf:
		threadTerminateSelf(t, regs)
	case OpThreadTerminateByID:
		threadTerminateByID(t, regs)
	case OpThreadYield:
		threadYield(t, regs)
	case OpThreadSetFSBase:
		threadSetFSBase(t, regs)
	case OpThreadSetZeroOnTerminate:
		threadSetZeroOnTerminate(t, regs)

	case OpMemAllocatePages:
		memAllocatePages(t, regs)
	case OpMemAllocatePagesBelowPhysicalBase:
		memAllocatePagesBelowPhysicalBase(t, regs)
	case OpMemReleasePages:
		memReleasePages(t, regs)
	case OpMemMapPhysical:
		memMapPhysical(t, regs)
	case OpMemVirtToPhys:
		memVirtToPhys(t, regs)
	case OpMemFreeSystemMemory:
		memFreeSystemMemory(t, regs)
	case OpMemProcessUsedMemory:
		memProcessUsedMemory(t, regs)
	case OpMemTotalSystemMemory:
		memTotalSystemMemory(t, regs)
	case OpMemSetRights:
		memSetRights(t, regs)

	case OpShmCreate:
		shmCreate(t, regs)
	case OpShmJoin:
		shmJoin(t, regs)
	case OpShmJoinChildAtAddress:
		shmJoinChildAtAddress(t, regs)
	case OpShmLeave:
		shmLeave(t, regs)
	case OpShmGetDetails:
		shmGetDetails(t, regs)
	case OpShmMovePageIn:
		shmMovePageIn(t, regs)
	case OpShmGrantAssignPermission:
		shmGrantAssignPermission(t, regs)
	case OpShmIsPageAllocated:
		shmIsPageAllocated(t, regs)
	case OpShmPagePhysAddr:
		shmPagePhysAddr(t, regs)
	case OpShmGrow:
		shmGrow(t, regs)

	case OpProcGetSelfPID:
		procGetSelfPID(t, regs)
	case OpProcTerminateSelf:
		procTerminateSelf(t, regs)
	case OpProcTerminateByID:
		procTerminateByID(t, regs)
	case OpProcEnumerateByName:
		procEnumerateByName(t, regs)
	case OpProcGetName:
		procGetName(t, regs)
	case OpProcNotifyOnDeath:
		procNotifyOnDeath(t, regs)
	case OpProcCancelNotifyOnDeath:
		procCancelNotifyOnDeath(t, regs)
	case OpProcCreateChild:
		procCreateChild(t, regs)
	case OpProcSetChildMemoryPage:
		procSetChildMemoryPage(t, regs)
	case OpProcStartChild:
		procStartChild(t, regs)
	case OpProcDestroyChild:
		procDestroyChild(t, regs)
	case OpProcGetNextMultibootModule:
		procGetNextMultibootModule(t, regs)

	case OpSvcRegister:
		svcRegister(t, regs)
	case OpSvcUnregisterByMID:
		svcUnregisterByMID(t, regs)
	case OpSvcEnumerateByName:
		svcEnumerateByName(t, regs)
	case OpSvcGetName:
		svcGetName(t, regs)
	case OpSvcNotifyOnAppearance:
		svcNotifyOnAppearance(t, regs)
	case OpSvcCancelNotifyOnAppearance:
		svcCancelNotifyOnAppearance(t, regs)
	case OpSvcNotifyOnDisappearance:
		svcNotifyOnDisappearance(t, regs)
	case OpSvcCancelNotifyOnDisappearance:
		svcCancelNotifyOnDisappearance(t, regs)

	case OpMsgSend:
		msgSend(t, regs)
	case OpMsgPoll:
		msgPoll(t, regs)
	case OpMsgSleepForMessage:
		msgSleepForMessage(t, regs)
	case OpMsgRegisterMessageOnInterrupt:
		msgRegisterMessageOnInterrupt(t, regs)
	case OpMsgUnregisterMessageOnInterrupt:
		msgUnregisterMessageOnInterrupt(t, regs)

	case OpSysGetMultibootFramebuffer:
		sysGetMultibootFramebuffer(t, regs)
	case OpSysSendMessageAfterMicroseconds:
		sysSendMessageAfterMicroseconds(t, regs)
	case OpSysSendMessageAtTimestamp:
		sysSendMessageAtTimestamp(t, regs)
	case OpSysGetCurrentTimestamp:
		sysGetCurrentTimestamp(t, regs)
	case OpSysEnableProfiling:
		sysEnableProfiling(t, regs)
	case OpSysDisableAndOutputProfiling:
		sysDisableAndOutputProfiling(t, regs)

	default:
		early.Printf("syscall: unsupported opcode %d from pid %d\n", op, t.Process.ID)
	}
}
