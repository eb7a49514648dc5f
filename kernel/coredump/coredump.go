// Package coredump implements spec.md's optional diagnostic dump emitted
// before a faulting process is torn down. The original kernel's core dump
// support produces a full ELF core file (PT_NOTE process info plus one
// PT_LOAD segment per mapped memory range) but ships with that path
// compiled out by default; this port keeps the same default-off,
// console-diagnostic character rather than the full ELF encoder, since
// nothing in this kernel ever writes the dump to persistent storage for a
// debugger to load.
package coredump

import "nucleus/kernel/kfmt/early"

// Dumper is the minimal view of a faulting process/thread this package
// needs, kept as an interface so it does not import proc (which would
// create proc -> syscall/coredump -> proc import cycle risk as the
// syscall package grows).
type Dumper interface {
	DumpInfo() (pid uint64, name string, threadCount int)
}

// Enabled gates whether Dump does anything at all, mirroring the original
// kernel's SUPPORTS_CORE_DUMPING compile-time flag (left off by default).
var Enabled = false

// Dump prints a best-effort diagnostic snapshot of a faulting process: its
// id, name, and thread count. Callers print the faulting thread's own
// register snapshot separately, since that is already available to them at
// the fault site.
func Dump(d Dumper) {
	if !Enabled {
		return
	}
	pid, name, threads := d.DumpInfo()
	early.Printf("\n--- core dump: pid=%d name=%s threads=%d ---\n", pid, name, threads)
}
