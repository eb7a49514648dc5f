package syscall

import "testing"

// Each family base plus its member count must stay clear of the next
// family's base: a transcription error here would silently alias two
// unrelated opcodes onto the same numeric value.
func TestOpcodeFamiliesDoNotOverlap(t *testing.T) {
	families := []struct {
		name  string
		first Opcode
		last  Opcode
	}{
		{"debug", OpDebugPrintChar, OpDebugPrintRegs},
		{"threads", OpThreadCreate, OpThreadSetZeroOnTerminate},
		{"memory", OpMemAllocatePages, OpMemSetRights},
		{"shm", OpShmCreate, OpShmGrow},
		{"processes", OpProcGetSelfPID, OpProcGetNextMultibootModule},
		{"services", OpSvcRegister, OpSvcCancelNotifyOnDisappearance},
		{"messaging", OpMsgSend, OpMsgUnregisterMessageOnInterrupt},
		{"system", OpSysGetMultibootFramebuffer, OpSysDisableAndOutputProfiling},
	}

	for i, f := range families {
		if f.last < f.first {
			t.Fatalf("family %q has its last opcode before its first", f.name)
		}
		if i == 0 {
			continue
		}
		prev := families[i-1]
		if f.first <= prev.last {
			t.Fatalf("family %q (starts at %d) overlaps family %q (ends at %d)", f.name, f.first, prev.name, prev.last)
		}
	}
}

func TestOpcodesWithinFamilyAreContiguous(t *testing.T) {
	threads := []Opcode{
		OpThreadCreate, OpThreadGetSelfID, OpThreadTerminateSelf, OpThreadTerminateByID,
		OpThreadYield, OpThreadSetFSBase, OpThreadSetZeroOnTerminate,
	}
	for i := 1; i < len(threads); i++ {
		if threads[i] != threads[i-1]+1 {
			t.Fatalf("expected threads family opcodes to be contiguous; got %v", threads)
		}
	}
}
