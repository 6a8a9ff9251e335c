// Package pagetable implements the hierarchical 4-level page table of
// spec §4.3: PML4/PDP/PD with PT elided because every leaf mapping is a
// 2 MiB huge page. Tables are allocated from the kernel heap, never
// from frames, and the direct-map invariants of spec §3.1 are upheld by
// NewWithKernel and Fork.
package pagetable

import (
	"log"
	"unsafe"

	"crux/frame"
	"crux/kheap"
	"crux/mem"
)

// Table_t is one level of the hierarchy: 512 64-bit entries. At PML4
// and PDP levels an entry addresses a child Table_t; at PD level a
// present entry is a leaf, always HUGE per spec's invariant that the
// core never uses 4 KiB pages.
type Table_t [512]mem.PhysicalAddress

// AddressSpace_t is identified by the address of its PML4, which also
// serves as the installed cr3 value for this simulation.
type AddressSpace_t struct {
	Root *Table_t
	CR3  uintptr
}

// KernelRoot is the kernel's canonical PML4, installed once by the
// boot sequence (InitKernelRoot). Every address space's high-half entries
// are copied from it.
var KernelRoot *Table_t

func indices(v mem.PhysicalAddress) (pml4i, pdpi, pdi int) {
	u := uint64(v)
	pml4i = int((u >> 39) & 0x1FF)
	pdpi = int((u >> 30) & 0x1FF)
	pdi = int((u >> 21) & 0x1FF)
	return
}

// Indices exposes the level-index decomposition of a virtual address
// (spec §4.3) for callers, such as the brk syscall, that need to walk
// from a known rip.
func Indices(v mem.PhysicalAddress) (pml4i, pdpi, pdi int) {
	return indices(v)
}

// MakeAddr reconstructs a virtual address from its three level
// indices, the inverse of Indices restricted to the PD-huge-page case.
func MakeAddr(pml4i, pdpi, pdi int) mem.PhysicalAddress {
	v := uint64(pml4i&0x1FF) << 39
	v |= uint64(pdpi&0x1FF) << 30
	v |= uint64(pdi&0x1FF) << 21
	return mem.PhysicalAddress(v)
}

// InitKernelRoot allocates and installs the kernel's canonical PML4.
// The boot sequence calls this exactly once, before any task's address
// space is built; every later NewWithKernel/Fork call reads KernelRoot.
func InitKernelRoot(h *kheap.Heap_t) *AddressSpace_t {
	if KernelRoot != nil {
		panic("pagetable: kernel root already installed")
	}
	root := allocTable(h)
	KernelRoot = root
	return &AddressSpace_t{Root: root, CR3: uintptr(unsafe.Pointer(root))}
}

func allocTable(h *kheap.Heap_t) *Table_t {
	addr := h.Alloc(unsafe.Sizeof(Table_t{}), unsafe.Sizeof(Table_t{}))
	if addr == 0 {
		panic("pagetable: kernel heap exhausted")
	}
	return (*Table_t)(unsafe.Pointer(addr))
}

func tableAt(addr mem.PhysicalAddress) *Table_t {
	return (*Table_t)(unsafe.Pointer(uintptr(addr)))
}

// Next follows a present entry one level down. It returns false if the
// entry is clear.
func (t *Table_t) Next(idx int) (*Table_t, bool) {
	e := t[idx]
	if e&mem.PTE_P == 0 {
		return nil, false
	}
	return tableAt(e & mem.PTE_ADDR), true
}

// NextAlloc follows or allocates a child table at idx. It never
// overwrites a present entry; the HUGE bit is always cleared from
// flags because it is illegal at non-leaf levels (spec §4.3).
func (t *Table_t) NextAlloc(idx int, flags mem.PhysicalAddress, h *kheap.Heap_t) *Table_t {
	if t[idx]&mem.PTE_P != 0 {
		child, _ := t.Next(idx)
		return child
	}
	child := allocTable(h)
	t[idx] = mem.PhysicalAddress(uintptr(unsafe.Pointer(child))) | (flags &^ mem.PTE_HUGE) | mem.PTE_P
	return child
}

// Invlpg invalidates the TLB entry for virt. There is no real MMU
// underneath this simulation, so this only exists as the call site
// spec's discipline requires; it is a deliberate no-op.
func Invlpg(virt uintptr) {}

// Map inserts a single 2 MiB leaf mapping. Both addresses must be
// 2 MiB-aligned. If the PD entry is already present it is not
// overwritten: the call logs and returns (spec §4.3, §7 "silently
// ignored").
func (as *AddressSpace_t) Map(h *kheap.Heap_t, phys, virt, flags mem.PhysicalAddress, invlpg bool) {
	if !phys.Aligned2M() || !virt.Aligned2M() {
		panic("pagetable: Map requires 2 MiB aligned addresses")
	}
	pml4i, pdpi, pdi := indices(virt)
	pdp := as.Root.NextAlloc(pml4i, mem.PTE_P|mem.PTE_RW|(flags&mem.PTE_U), h)
	pd := pdp.NextAlloc(pdpi, mem.PTE_P|mem.PTE_RW|(flags&mem.PTE_U), h)
	if pd[pdi]&mem.PTE_P != 0 {
		log.Printf("pagetable: map: %#x already present, ignoring", uint64(virt))
		return
	}
	pd[pdi] = phys | flags | mem.PTE_P | mem.PTE_HUGE
	if invlpg {
		Invlpg(uintptr(virt))
	}
}

// PDFor walks (allocating intermediate tables as needed) to the PD
// table that would contain virt's leaf entry, without installing one.
// Used by brk to scan for the first unmapped slot above a task's rip.
func (as *AddressSpace_t) PDFor(h *kheap.Heap_t, virt mem.PhysicalAddress) *Table_t {
	pml4i, pdpi, _ := indices(virt)
	pdp := as.Root.NextAlloc(pml4i, mem.PTE_P|mem.PTE_RW|mem.PTE_U, h)
	return pdp.NextAlloc(pdpi, mem.PTE_P|mem.PTE_RW|mem.PTE_U, h)
}

// Walk reports the raw PD entry for virt and whether it is present.
func (as *AddressSpace_t) Walk(virt mem.PhysicalAddress) (mem.PhysicalAddress, bool) {
	pml4i, pdpi, pdi := indices(virt)
	pdp, ok := as.Root.Next(pml4i)
	if !ok {
		return 0, false
	}
	pd, ok := pdp.Next(pdpi)
	if !ok {
		return 0, false
	}
	e := pd[pdi]
	if e&mem.PTE_P == 0 {
		return 0, false
	}
	return e, true
}

// NewWithKernel allocates a fresh PML4 and copies every entry of
// KernelRoot that is present and not USER, yielding a user-empty
// address space sharing the kernel high half (spec §4.3).
func NewWithKernel(h *kheap.Heap_t) *AddressSpace_t {
	if KernelRoot == nil {
		panic("pagetable: KernelRoot not installed")
	}
	root := allocTable(h)
	for i, e := range KernelRoot {
		if e&mem.PTE_P != 0 && e&mem.PTE_U == 0 {
			root[i] = e
		}
	}
	return &AddressSpace_t{Root: root, CR3: uintptr(unsafe.Pointer(root))}
}

// Fork performs the structural copy of spec §4.3: a fresh
// kernel-seeded PML4, then a parallel PDP/PD/frame for every
// present-and-USER entry of as, with the source frame byte-copied into
// the new one.
func (as *AddressSpace_t) Fork(h *kheap.Heap_t, fr *frame.Allocator_t) *AddressSpace_t {
	child := NewWithKernel(h)
	for pml4i, e := range as.Root {
		if e&mem.PTE_P == 0 || e&mem.PTE_U == 0 {
			continue
		}
		srcPDP := tableAt(e & mem.PTE_ADDR)
		dstPDP := child.Root.NextAlloc(pml4i, mem.PTE_P|mem.PTE_RW|mem.PTE_U, h)
		for pdpi, e2 := range srcPDP {
			if e2&mem.PTE_P == 0 || e2&mem.PTE_U == 0 {
				continue
			}
			srcPD := tableAt(e2 & mem.PTE_ADDR)
			dstPD := dstPDP.NextAlloc(pdpi, mem.PTE_P|mem.PTE_RW|mem.PTE_U, h)
			for pdi, e3 := range srcPD {
				if e3&mem.PTE_P == 0 || e3&mem.PTE_U == 0 {
					continue
				}
				srcFrame := e3 & mem.PTE_ADDR
				newFrame := fr.Alloc()
				if newFrame == 0 {
					panic("pagetable: frame allocator exhausted during fork")
				}
				copy(mem.Physmem.Dmap(newFrame), mem.Physmem.Dmap(srcFrame))
				dstPD[pdi] = newFrame | mem.PTE_RW | mem.PTE_U | mem.PTE_HUGE | mem.PTE_P
			}
		}
	}
	return child
}
