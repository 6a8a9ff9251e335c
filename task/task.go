// Package task implements the process model of spec §4.5: the owning
// record of a task (address space, saved registers, open files, cwd,
// parent link) and the construction/reimage/fork operations that build
// and clone it. Grounded on the original implementation's Task struct
// (kladd/ivy, proc.rs: pid/name/rbp/rsp/rip/cr3) for the register
// layout, and on the teacher's ownership discipline (spec §3.2) for
// the parent back-link being non-owning.
package task

import (
	"crux/defs"
	"crux/fd"
	"crux/frame"
	"crux/fs"
	"crux/kheap"
	"crux/mem"
	"crux/pagetable"
	"crux/spinlock"
	"crux/ustr"
)

// START_ADDR and STACK_BOTTOM are the fixed user-space addresses every
// task's text and stack are mapped at (spec §4.5). Both fall in PML4
// slot 0 / PDP slot 0, at PD slots 1 and 2 respectively — low enough
// that brk's "scan forward from rip's PD slot" has room to grow before
// running off the PD.
const (
	START_ADDR   mem.PhysicalAddress = 1 << mem.PGSHIFT
	STACK_BOTTOM mem.PhysicalAddress = 2 << mem.PGSHIFT
)

// RegisterFrame is the saved register state spec §3.1 calls
// "saved_registers": the syscall ABI's argument registers (spec §6)
// plus the full context a task needs to resume execution.
type RegisterFrame struct {
	Rax, Rdi, Rsi, Rdx uint64
	Rcx, R11           uint64 // saved rip / rflags across SYSCALL
	Rip, Rsp, Rbp      uint64
}

var pidLock spinlock.Spinlock_t
var nextPid defs.Pid_t = 1

func allocPid() defs.Pid_t {
	pidLock.Lock()
	defer pidLock.Unlock()
	p := nextPid
	nextPid++
	return p
}

// Task_t is the owning record of a process (spec §3.1).
type Task_t struct {
	Pid       defs.Pid_t
	Name      string
	AS        *pagetable.AddressSpace_t
	Regs      RegisterFrame
	OpenFiles []*fd.Fd_t
	Cwd       *fd.Cwd_t
	Parent    *Task_t // non-owning upward link, spec §9
}

// New constructs a task per spec §4.5: a fresh PID, the three
// preinstalled device descriptors, cwd resolved against cwdPath, and a
// freshly built address space via reimage.
func New(name string, h *kheap.Heap_t, fr *frame.Allocator_t, root *fs.Inode_t, mt *fs.MountTable_t, cwdPath ustr.Ustr) (*Task_t, defs.Err_t) {
	t := &Task_t{
		Pid:       allocPid(),
		Name:      name,
		OpenFiles: preinstalledFiles(),
	}
	cwdFd, err := fd.Open(root, mt, cwdPath)
	if err != 0 {
		return nil, err
	}
	t.Cwd = fd.MkRootCwd(cwdFd)
	t.Cwd.Path = cwdPath
	t.reimage(h, fr)
	return t, 0
}

func preinstalledFiles() []*fd.Fd_t {
	return []*fd.Fd_t{fd.NewConsoleFd(), fd.NewConsoleFd(), fd.NewSerialFd()}
}

// Reimage rebuilds t's user address space in place, discarding whatever
// was mapped before. exec calls this directly (spec §4.9) ahead of
// handing the freed address space to the ELF loader.
func Reimage(t *Task_t, h *kheap.Heap_t, fr *frame.Allocator_t) {
	t.reimage(h, fr)
}

// reimage rebuilds the user address space in place (spec §4.5).
func (t *Task_t) reimage(h *kheap.Heap_t, fr *frame.Allocator_t) {
	as := pagetable.NewWithKernel(h)

	text := fr.Alloc()
	if text == 0 {
		panic("task: frame allocator exhausted during reimage")
	}
	as.Map(h, text, START_ADDR, mem.PTE_P|mem.PTE_RW|mem.PTE_U|mem.PTE_HUGE, false)

	stack := fr.Alloc()
	if stack == 0 {
		panic("task: frame allocator exhausted during reimage")
	}
	as.Map(h, stack, STACK_BOTTOM, mem.PTE_P|mem.PTE_RW|mem.PTE_U|mem.PTE_HUGE, false)

	t.AS = as
	t.Regs = RegisterFrame{
		Rip: uint64(START_ADDR),
		Rsp: uint64(STACK_BOTTOM) + uint64(mem.PGSIZE) - 16,
		Rbp: uint64(STACK_BOTTOM),
	}
}

// Fork deep-clones parent's address space and open-file table into a
// freshly minted Task_t, per spec §4.5. Neither task's rax is touched
// here; the caller (the fork syscall) sets both afterward.
func Fork(parent *Task_t, h *kheap.Heap_t, fr *frame.Allocator_t) (*Task_t, defs.Err_t) {
	files, err := cloneFiles(parent.OpenFiles)
	if err != 0 {
		return nil, err
	}
	child := &Task_t{
		Pid:       allocPid(),
		Name:      parent.Name,
		AS:        parent.AS.Fork(h, fr),
		Regs:      parent.Regs,
		OpenFiles: files,
		Cwd:       &fd.Cwd_t{Fd: parent.Cwd.Fd, Path: parent.Cwd.Path},
		Parent:    parent,
	}
	return child, 0
}

func cloneFiles(files []*fd.Fd_t) ([]*fd.Fd_t, defs.Err_t) {
	out := make([]*fd.Fd_t, len(files))
	for i, f := range files {
		if f == nil {
			continue
		}
		nf, err := fd.Copyfd(f)
		if err != 0 {
			return nil, err
		}
		out[i] = nf
	}
	return out, 0
}

// Destroy exists only to document spec §4.5's policy: destroying a
// live task is a kernel bug, not a recoverable condition. Nothing in
// this core calls it in the ordinary exit/fork path — exit hands
// control back to the parent without ever deallocating the exiting
// task's struct, matching a single-task-at-a-time kernel where the
// Go garbage collector, not an explicit destructor, reclaims it.
func (t *Task_t) Destroy() {
	panic("task: destroying a live task is a kernel bug")
}
