// Package mem defines the physical-address type and the simulated
// physical memory this kernel core runs against. Real hardware gives a
// kernel a flat byte-addressable physical space and a direct map into
// its own high-half virtual window; this repository gets the same
// shape by reserving one anonymous mapping with golang.org/x/sys/unix
// and treating offsets into it as physical addresses.
package mem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PGSHIFT is the base-2 exponent of a "huge" user page. The core never
// uses 4 KiB pages (spec §3.1): every leaf mapping is a 2 MiB region.
const PGSHIFT uint = 21

// PGSIZE is the size of a leaf mapping in bytes (2 MiB).
const PGSIZE int = 1 << PGSHIFT

// PGOFFSET masks the offset within a huge page.
const PGOFFSET PhysicalAddress = PhysicalAddress(PGSIZE - 1)

// PGMASK masks the page number of an address.
const PGMASK PhysicalAddress = ^PGOFFSET

// Page-table entry flag bits, amd64 layout (spec §6).
const (
	PTE_P  PhysicalAddress = 1 << 0 // present
	PTE_RW PhysicalAddress = 1 << 1 // read/write
	PTE_U  PhysicalAddress = 1 << 2 // user accessible
	PTE_HUGE PhysicalAddress = 1 << 7 // 2 MiB leaf
)

// PTE_ADDR extracts the physical frame number from a raw entry.
// Bits 12-51 hold the address; masking with ^0x1FF clears only the low
// 9 flag bits and leaves every higher bit of the entry as it is.
const PTE_ADDR PhysicalAddress = ^PhysicalAddress(0x1FF)

// KernelVMA is the virtual base of the kernel's identity-mapped
// high-half window.
const KernelVMA uintptr = 0xFFFF_FF80_0000_0000

// KernelLMA is the physical load address of the kernel image.
const KernelLMA uintptr = 0x0010_0000

// PhysicalAddress is a newtype over a machine address. It is never
// dereferenced directly; Physmem.Dmap turns one into a byte slice.
type PhysicalAddress uint64

// Kernel computes the high-half kernel pointer identity for pa. The
// result is only meaningful for addresses mem.Physmem has already
// mapped into the direct-map arena — nothing here actually installs a
// page table entry for it, the conversion is the address-space
// invariant spec §3.1 requires the VM manager to uphold separately.
func (pa PhysicalAddress) Kernel() uintptr {
	return uintptr(pa) | KernelVMA
}

// FromKernel reverses Kernel via masked subtraction.
func FromKernel(v uintptr) PhysicalAddress {
	return PhysicalAddress(v &^ KernelVMA)
}

// Aligned2M reports whether pa falls on a 2 MiB boundary.
func (pa PhysicalAddress) Aligned2M() bool {
	return pa&PGOFFSET == 0
}

// Physmem_t is the kernel's view of physical memory: one contiguous
// byte arena standing in for the machine's RAM. It is never resized
// after Init.
type Physmem_t struct {
	arena []byte
}

// Physmem is the sole instance, installed once at boot.
var Physmem = &Physmem_t{}

// Init reserves size bytes of anonymous, zero-filled memory to act as
// the physical address space. It must be called exactly once, before
// any frame or kernel-heap allocation.
func (p *Physmem_t) Init(size int) error {
	if p.arena != nil {
		panic("mem: Init called twice")
	}
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("mem: reserving %d bytes: %w", size, err)
	}
	p.arena = b
	return nil
}

// Size returns the number of bytes backing the simulated physical
// address space.
func (p *Physmem_t) Size() int {
	return len(p.arena)
}

// Dmap returns the 2 MiB page containing pa as a byte slice. It panics
// if pa falls outside the reserved arena — on real hardware this would
// be the "pointer produced from an unmapped physical address" bug spec
// §3.1 calls out as an invariant violation.
func (p *Physmem_t) Dmap(pa PhysicalAddress) []byte {
	base := pa &^ PGOFFSET
	end := int(base) + PGSIZE
	if end > len(p.arena) {
		panic("mem: Dmap out of range")
	}
	return p.arena[base:end]
}

// DmapN returns an n-byte slice of physical memory starting at pa,
// without requiring 2 MiB alignment. The boot sequence uses it to place
// the init module in physical memory and to read it back.
func (p *Physmem_t) DmapN(pa PhysicalAddress, n int) []byte {
	if int(pa)+n > len(p.arena) {
		panic("mem: DmapN out of range")
	}
	return p.arena[pa : int(pa)+n]
}
