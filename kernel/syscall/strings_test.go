package syscall

import (
	"testing"
	"unsafe"
)

func TestWriteThenReadFixedString(t *testing.T) {
	var buf [NameLenForTest]byte
	for i := range buf {
		buf[i] = 0xff
	}
	ptr := uintptr(unsafe.Pointer(&buf[0]))

	writeFixedString(ptr, len(buf), "hello")
	got := readFixedString(ptr, len(buf))
	if got != "hello" {
		t.Fatalf("expected round-trip to return %q; got %q", "hello", got)
	}

	for i := len("hello"); i < len(buf); i++ {
		if buf[i] != 0 {
			t.Fatalf("expected byte %d to be zero-padded after write; got %#x", i, buf[i])
		}
	}
}

func TestWriteFixedStringTruncatesOverlong(t *testing.T) {
	var buf [8]byte
	ptr := uintptr(unsafe.Pointer(&buf[0]))

	writeFixedString(ptr, len(buf), "this name is far too long to fit")
	got := readFixedString(ptr, len(buf))
	if len(got) != len(buf) {
		t.Fatalf("expected the read-back name to fill the whole buffer; got %q (%d bytes)", got, len(got))
	}
}

func TestReadFixedStringNilOrZeroLen(t *testing.T) {
	if got := readFixedString(0, 10); got != "" {
		t.Fatalf("expected a nil pointer to read back empty; got %q", got)
	}
	var buf [4]byte
	if got := readFixedString(uintptr(unsafe.Pointer(&buf[0])), 0); got != "" {
		t.Fatalf("expected a zero length to read back empty; got %q", got)
	}
}

func TestWriteFixedStringNilOrZeroLenIsNoop(t *testing.T) {
	// Must not panic.
	writeFixedString(0, 10, "anything")

	var buf [4]byte
	buf[0] = 'z'
	writeFixedString(uintptr(unsafe.Pointer(&buf[0])), 0, "anything")
	if buf[0] != 'z' {
		t.Fatalf("expected a zero length write to leave the buffer untouched; got %v", buf)
	}
}

// NameLenForTest mirrors the process name's fixed width without importing
// proc just for this constant.
const NameLenForTest = 88
