// Package boot is the composition root spec §4.11 supplements: it plays
// the part of the boot-time assembly trampoline spec §1 lists as an
// external collaborator, handing the C-ABI (magic, *MultibootInfo) pair
// to a Go entry point instead of jumping into one. Grounded on the
// teacher's kernel main's staged initialisation order (arena, frame
// allocator, kernel heap, VM manager, filesystem, first task) and on
// spec §9's "global mutable state initialised once behind a spin lock"
// design note for why Boot guards against being called twice.
package boot

import (
	"io"
	"log"
	"time"

	"crux/chardev"
	"crux/cpu"
	"crux/defs"
	"crux/elfloader"
	"crux/fd"
	"crux/frame"
	"crux/fs"
	"crux/kheap"
	"crux/kmap"
	"crux/mem"
	"crux/pagetable"
	"crux/spinlock"
	"crux/syscall"
	"crux/task"
	"crux/ustr"
)

// Multiboot2Magic is the value a multiboot2-compliant loader leaves in
// eax at kernel entry (spec §6's boot hand-off).
const Multiboot2Magic uint32 = 0x36d76289

// MultibootInfo models the fields of the multiboot2 information
// structure (spec §6) that the core reads: mmap, module, and
// framebuffer. It is a plain Go struct, not a packed byte-for-byte
// copy of the loader's layout. ModsLength is not
// part of the real multiboot2 tag (which instead carries mod_end and
// leaves length to be derived) but this core only ever boots a single
// contiguous module, so a length is simpler to carry than an end
// pointer and a subtraction at every call site.
type MultibootInfo struct {
	MmapAddr   uint64
	MmapLength uint32

	ModsAddr   uint64
	ModsCount  uint32
	ModsLength uint32

	FramebufferAddr   uint64
	FramebufferPitch  uint32
	FramebufferWidth  uint32
	FramebufferHeight uint32
	FramebufferBpp    uint8
}

// Reserved physical layout: the boot module is placed just above the
// legacy BIOS area (mem.KernelLMA's neighborhood); the frame allocator
// is given everything from kernelLowReserve up to the end of the arena.
const (
	moduleBase       = mem.PhysicalAddress(1 << 20)
	kernelLowReserve = mem.PhysicalAddress(4 << 20)
	kheapSize        = 16 << 20
)

var (
	bootLock spinlock.Spinlock_t
	booted   bool
)

// Config bundles the boot-time tunables spec §4.11 expects cmd/kernel
// to parse from flags, standing in for what the real multiboot2 module
// array and loader would have supplied.
type Config struct {
	ArenaSize     int
	DiskImagePath string
	InitModule    []byte // bytes of module[0], an ELF64 static binary

	ConsoleIn  io.Reader
	ConsoleOut io.Writer
	SerialOut  io.Writer
}

// Booted_t is everything Boot hands back to cmd/kernel: the syscall
// dispatch context and the first task to run.
type Booted_t struct {
	Kernel *syscall.Kernel_t
	Init   *task.Task_t
}

// Boot performs every "initialised exactly once" step spec §9 names,
// each gated by bootLock rather than sync.Once per spec §9's explicit
// preference for a spin-lock-guarded cell. Calling Boot twice is a
// kernel bug, not a recoverable condition, so it panics.
func Boot(magic uint32, cfg Config) (*Booted_t, defs.Err_t) {
	bootLock.Lock()
	defer bootLock.Unlock()
	if booted {
		panic("boot: Boot called twice")
	}
	if magic != Multiboot2Magic {
		panic("boot: bad multiboot magic")
	}

	if err := mem.Physmem.Init(cfg.ArenaSize); err != nil {
		panic(err)
	}

	info := &MultibootInfo{}
	if len(cfg.InitModule) > 0 {
		dst := mem.Physmem.DmapN(moduleBase, len(cfg.InitModule))
		copy(dst, cfg.InitModule)
		info.ModsAddr = uint64(moduleBase)
		info.ModsCount = 1
		info.ModsLength = uint32(len(cfg.InitModule))
	}
	log.Printf("boot: multiboot info: mmap=%#x/%d mods=%#x/%d(%d) fb=%#x",
		info.MmapAddr, info.MmapLength, info.ModsAddr, info.ModsCount, info.ModsLength, info.FramebufferAddr)

	fr := frame.New(kernelLowReserve, cfg.ArenaSize-int(kernelLowReserve))
	h := kheap.New(kheapSize)
	log.Printf("boot: arena=%d frames-from=%#x kheap=%d", cfg.ArenaSize, uint64(kernelLowReserve), kheapSize)

	kernelAS := pagetable.InitKernelRoot(h)
	kmap.MapPhysicalMemory(kernelAS, h, cfg.ArenaSize)

	disk, err := fs.OpenFileDisk(cfg.DiskImagePath)
	if err != nil {
		panic(err)
	}
	_, root := fs.Mount(disk)

	mt := fs.NewMountTable()
	if err := mt.MountRoot(root); err != 0 {
		panic("boot: mounting root filesystem")
	}
	devfs := fs.NewDeviceFS()
	if err := mt.Mount(ustr.Ustr("dev"), devfs.Root); err != 0 {
		log.Printf("boot: mounting device filesystem at /dev: err=%d (continuing without it)", err)
	}

	fd.ConsoleDevice = chardev.NewConsole(cfg.ConsoleIn, cfg.ConsoleOut)
	fd.SerialDevice = chardev.NewSerial(cfg.SerialOut)
	fd.ProfHeap = h

	k := &syscall.Kernel_t{
		Heap:     h,
		Frames:   fr,
		Root:     root,
		Mounts:   mt,
		BootTime: time.Now(),
	}

	init, err2 := task.New("init", h, fr, root, mt, ustr.MkUstrRoot())
	if err2 != 0 {
		panic("boot: constructing init task")
	}
	cpu.SwitchTask(init)

	if info.ModsCount > 0 {
		image := mem.Physmem.DmapN(mem.PhysicalAddress(info.ModsAddr), int(info.ModsLength))
		if lerr := elfloader.Load(image, init, h, fr); lerr != 0 {
			panic("boot: loading init module failed")
		}
	}

	booted = true
	return &Booted_t{Kernel: k, Init: init}, 0
}
