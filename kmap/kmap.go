// Package kmap installs the kernel's high-half identity map (spec
// §4.4): the mechanism behind PhysicalAddress.Kernel() that makes a
// byte written through the direct-map arena visible at addr|KERNEL_VMA
// once the VM manager has run.
package kmap

import (
	"crux/kheap"
	"crux/mem"
	"crux/pagetable"
)

// Map ensures pages consecutive 2 MiB frames starting at start are
// identity-mapped into the high half with PRESENT | READ_WRITE | HUGE.
// start is floor-aligned to 2 MiB. Addresses below the first megabyte
// are silently skipped (legacy BIOS area, spec §4.4/§7).
func Map(root *pagetable.AddressSpace_t, h *kheap.Heap_t, start mem.PhysicalAddress, pages int) {
	aligned := start &^ mem.PGOFFSET
	for i := 0; i < pages; i++ {
		phys := aligned + mem.PhysicalAddress(i*mem.PGSIZE)
		if phys < mem.PhysicalAddress(1<<20) {
			continue
		}
		virt := mem.PhysicalAddress(phys.Kernel())
		root.Map(h, phys, virt, mem.PTE_P|mem.PTE_RW|mem.PTE_HUGE, false)
	}
}

// MapPhysicalMemory is the boot-time convenience wrapper spec §8
// scenario 6 exercises: identity-map the entire simulated physical
// arena into the high half so every direct-map read has a
// corresponding page-table entry.
func MapPhysicalMemory(root *pagetable.AddressSpace_t, h *kheap.Heap_t, size int) {
	pages := (size + mem.PGSIZE - 1) / mem.PGSIZE
	Map(root, h, 0, pages)
}
