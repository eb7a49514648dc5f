package syscall

import (
	"reflect"
	"unsafe"
)

// readFixedString reads up to maxLen bytes starting at ptr (a virtual
// address in the calling process's own address space, already the active
// one while its syscall trap is being serviced) and trims at the first NUL,
// the same no-copy technique multiboot.cStringAt uses for module command
// lines.
func readFixedString(ptr uintptr, maxLen int) string {
	if ptr == 0 || maxLen <= 0 {
		return ""
	}
	raw := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  maxLen,
		Cap:  maxLen,
		Data: ptr,
	}))

	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(raw[:n])
}

// writeFixedString copies name (truncated to maxLen) into the buffer at
// ptr, NUL-padding the remainder. Used by the syscalls that hand a
// discovered process/service name back to the caller.
func writeFixedString(ptr uintptr, maxLen int, name string) {
	if ptr == 0 || maxLen <= 0 {
		return
	}
	raw := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  maxLen,
		Cap:  maxLen,
		Data: ptr,
	}))
	n := copy(raw, name)
	for ; n < maxLen; n++ {
		raw[n] = 0
	}
}
