// Package syscall implements the numeric dispatch table of spec §4.9:
// it marshals the current task's saved register frame into typed
// arguments, calls the matching handler, and writes the result back
// into rax. Per spec §9's design note, the saved frame is the single
// source of truth — handlers read and write its fields directly and
// keep no state of their own across a call.
package syscall

import (
	"encoding/binary"
	"log"
	"time"

	"crux/cpu"
	"crux/defs"
	"crux/elfloader"
	"crux/fd"
	"crux/fdops"
	"crux/frame"
	"crux/fs"
	"crux/kheap"
	"crux/mem"
	"crux/pagetable"
	"crux/task"
	"crux/ustr"
)

// negOne is the bit pattern SYSRET's caller sees as -1 in rax.
const negOne = ^uint64(0)

// Kernel_t bundles the global state a syscall handler may touch: the
// three pieces spec §5 names (frame allocator, kernel heap, mount
// table) plus the root inode and a boot timestamp for uptime.
type Kernel_t struct {
	Heap     *kheap.Heap_t
	Frames   *frame.Allocator_t
	Root     *fs.Inode_t
	Mounts   *fs.MountTable_t
	BootTime time.Time
}

// Dispatch services the syscall named by cpu.Self.Current's rax. It is
// the high-level handler the (absent) trampoline calls once it has
// deposited the user register frame.
func Dispatch(k *Kernel_t) {
	t := cpu.Self.Current
	switch t.Regs.Rax {
	case defs.SYS_EXIT:
		sysExit(t)
	case defs.SYS_BRK:
		sysBrk(k, t)
	case defs.SYS_OPEN:
		sysOpen(k, t)
	case defs.SYS_STAT:
		t.Regs.Rax = 0
	case defs.SYS_READ:
		sysRead(t)
	case defs.SYS_WRITE:
		sysWrite(t)
	case defs.SYS_READDIR:
		sysReaddir(t)
	case defs.SYS_CHDIR:
		sysChdir(k, t)
	case defs.SYS_FORK:
		sysFork(k, t)
	case defs.SYS_FSTAT:
		sysFstat(t)
	case defs.SYS_GETCWD:
		sysGetcwd(t)
	case defs.SYS_EXEC:
		sysExec(k, t)
	case defs.SYS_UPTIME:
		t.Regs.Rax = uint64(time.Since(k.BootTime).Seconds())
	default:
		log.Printf("syscall: unknown number %d from pid %d", t.Regs.Rax, t.Pid)
		t.Regs.Rax = negOne
	}
}

// userBytes returns a writable window into the physical frame backing
// vaddr in t's address space, bounded so it never crosses the 2 MiB
// page it starts in. An unmapped vaddr is the page-fault case spec §7
// classifies as fatal.
func userBytes(t *task.Task_t, vaddr uint64, length int) []byte {
	page := mem.PhysicalAddress(vaddr) &^ mem.PGOFFSET
	entry, ok := t.AS.Walk(page)
	if !ok {
		panic("syscall: page fault: unmapped user address")
	}
	phys := mem.Physmem.Dmap(entry & mem.PTE_ADDR)
	off := int(mem.PhysicalAddress(vaddr) & mem.PGOFFSET)
	end := off + length
	if end > len(phys) {
		end = len(phys)
	}
	return phys[off:end]
}

func validFd(t *task.Task_t, fdno int64) bool {
	return fdno >= 0 && fdno < int64(len(t.OpenFiles)) && t.OpenFiles[fdno] != nil
}

func sysExit(t *task.Task_t) {
	status := int64(t.Regs.Rdi)
	log.Printf("task %d exited with status %d", t.Pid, status)
	if t.Parent == nil {
		panic("syscall: root task exited with no parent")
	}
	cpu.SwitchTask(t.Parent)
}

// sysBrk implements spec §4.9/§9: scan forward from rip's PD slot for
// the first non-present leaf. arg == 0 reports the slot's address
// without installing anything; this is the "next free slot" reading of
// the open question spec §9 calls out.
func sysBrk(k *Kernel_t, t *task.Task_t) {
	pml4i, pdpi, pdi := pagetable.Indices(mem.PhysicalAddress(t.Regs.Rip))
	pd := t.AS.PDFor(k.Heap, mem.PhysicalAddress(t.Regs.Rip))
	slot := pdi
	for slot < 512 && pd[slot]&mem.PTE_P != 0 {
		slot++
	}
	if slot >= 512 {
		t.Regs.Rax = negOne
		return
	}
	addr := pagetable.MakeAddr(pml4i, pdpi, slot)
	if t.Regs.Rdi == 0 {
		t.Regs.Rax = uint64(addr)
		return
	}
	phys := k.Frames.Alloc()
	if phys == 0 {
		panic("syscall: frame allocator exhausted in brk")
	}
	t.AS.Map(k.Heap, phys, addr, mem.PTE_P|mem.PTE_RW|mem.PTE_HUGE|mem.PTE_U, true)
	t.Regs.Rax = uint64(addr)
}

func sysOpen(k *Kernel_t, t *task.Task_t) {
	buf := userBytes(t, t.Regs.Rdi, int(t.Regs.Rsi))
	path := t.Cwd.Canonicalpath(ustr.Ustr(buf))
	nf, err := fd.Open(k.Root, k.Mounts, path)
	if err != 0 {
		t.Regs.Rax = negOne
		return
	}
	t.OpenFiles = append(t.OpenFiles, nf)
	t.Regs.Rax = uint64(len(t.OpenFiles) - 1)
}

func sysRead(t *task.Task_t) {
	fdno := int64(t.Regs.Rdi)
	if !validFd(t, fdno) {
		t.Regs.Rax = negOne
		return
	}
	dst := userBytes(t, t.Regs.Rsi, int(t.Regs.Rdx))
	n, err := t.OpenFiles[fdno].Fops.Read(dst)
	if err != 0 {
		t.Regs.Rax = negOne
		return
	}
	t.Regs.Rax = uint64(n)
}

func sysWrite(t *task.Task_t) {
	fdno := int64(t.Regs.Rdi)
	if !validFd(t, fdno) {
		t.Regs.Rax = negOne
		return
	}
	src := userBytes(t, t.Regs.Rsi, int(t.Regs.Rdx))
	n, err := t.OpenFiles[fdno].Fops.Write(src)
	if err != 0 {
		t.Regs.Rax = negOne
		return
	}
	t.Regs.Rax = uint64(n)
}

const direntWireSize = 4 + fdops.DirentNameLen

func sysReaddir(t *task.Task_t) {
	fdno := int64(t.Regs.Rdi)
	if !validFd(t, fdno) {
		t.Regs.Rax = negOne
		return
	}
	var de fdops.Dirent_t
	if err := t.OpenFiles[fdno].Fops.Readdir(&de); err != 0 {
		t.Regs.Rax = negOne
		return
	}
	raw := userBytes(t, t.Regs.Rsi, direntWireSize)
	binary.LittleEndian.PutUint32(raw[0:4], de.Ino)
	copy(raw[4:direntWireSize], de.Name[:])
	t.Regs.Rax = 0
}

func sysChdir(k *Kernel_t, t *task.Task_t) {
	buf := userBytes(t, t.Regs.Rdi, int(t.Regs.Rsi))
	path := t.Cwd.Canonicalpath(ustr.Ustr(buf))
	node, ok := fs.Find(k.Root, k.Mounts, path)
	if !ok || !node.IsDir() {
		t.Regs.Rax = negOne
		return
	}
	nf, err := fd.Open(k.Root, k.Mounts, path)
	if err != 0 {
		t.Regs.Rax = negOne
		return
	}
	t.Cwd.Fd = nf
	t.Cwd.Path = path
	t.Regs.Rax = 0
}

func sysFork(k *Kernel_t, t *task.Task_t) {
	child, err := task.Fork(t, k.Heap, k.Frames)
	if err != 0 {
		t.Regs.Rax = negOne
		return
	}
	t.Regs.Rax = uint64(child.Pid)
	child.Regs.Rax = 0
	cpu.SwitchTask(child)
}

func sysFstat(t *task.Task_t) {
	if !validFd(t, int64(t.Regs.Rdi)) {
		t.Regs.Rax = negOne
		return
	}
	t.Regs.Rax = 0
}

func sysGetcwd(t *task.Task_t) {
	buf := userBytes(t, t.Regs.Rdi, int(t.Regs.Rsi))
	copy(buf, t.Cwd.Path)
	t.Regs.Rax = 0
}

func sysExec(k *Kernel_t, t *task.Task_t) {
	buf := userBytes(t, t.Regs.Rdi, mem.PGSIZE)
	path := t.Cwd.Canonicalpath(ustr.MkUstrSlice(buf))

	node, ok := fs.Find(k.Root, k.Mounts, path)
	if !ok || node.IsDir() {
		t.Regs.Rax = negOne
		return
	}
	image, err := readWholeInode(node)
	if err != 0 {
		t.Regs.Rax = negOne
		return
	}

	task.Reimage(t, k.Heap, k.Frames)
	cpu.SwitchTask(t)
	if err := elfloader.Load(image, t, k.Heap, k.Frames); err != 0 {
		t.Regs.Rax = negOne
		return
	}
	// Success: exec does not return to the caller's saved rax. The
	// replaced register frame's rip now points at the new program.
}

func readWholeInode(node *fs.Inode_t) ([]byte, defs.Err_t) {
	ops := fd.NewReadOps(node)
	out := make([]byte, 0, node.Size)
	chunk := make([]byte, fs.SectorSize)
	for {
		n, err := ops.Read(chunk)
		if err != 0 {
			return nil, err
		}
		if n == 0 {
			break
		}
		out = append(out, chunk[:n]...)
	}
	return out, 0
}
