// Package cpu implements the per-CPU scratch block of spec §4.6. On
// real hardware this lives at a CPU-local base recovered by the
// SYSCALL trampoline via a segment-base register; this core has
// exactly one CPU (Non-goals exclude SMP) so the block is a single
// package-level instance instead of an array indexed by APIC ID.
package cpu

import "crux/task"

// Scratch_t mirrors the fixed field order spec §4.6 requires for the
// (here nonexistent) assembly trampoline: kernel-stack pointer,
// user-stack pointer, current-task pointer.
type Scratch_t struct {
	KernelStack uintptr
	UserStack   uintptr
	Current     *task.Task_t
}

// Self is the sole instance (spec §3.1's "one per CPU" degenerates to
// one global on a uniprocessor core).
var Self Scratch_t

// SwitchTask installs next as the running task: spec §4.6's
// switch_task, minus the interrupt-disable/cr3-load steps this
// simulation has no hardware register for.
func SwitchTask(next *task.Task_t) {
	Self.Current = next
	Self.UserStack = next.Regs.Rsp
}
