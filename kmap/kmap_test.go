package kmap

import (
	"os"
	"testing"

	"crux/kheap"
	"crux/mem"
	"crux/pagetable"
)

const testArenaSize = 8 << 20

var testAS *pagetable.AddressSpace_t
var testHeap *kheap.Heap_t

func TestMain(m *testing.M) {
	if err := mem.Physmem.Init(testArenaSize); err != nil {
		panic(err)
	}
	testHeap = kheap.New(2 << 20)
	testAS = pagetable.InitKernelRoot(testHeap)
	MapPhysicalMemory(testAS, testHeap, testArenaSize)
	os.Exit(m.Run())
}

// TestMapPhysicalMemoryWalk is end-to-end scenario 6: after
// map_physical_memory(N*2MiB), every identity-mapped page a at or above
// 1 MiB is also readable at a|KERNEL_VMA and shows the same byte.
func TestMapPhysicalMemoryWalk(t *testing.T) {
	pages := testArenaSize / mem.PGSIZE
	for i := 1; i < pages; i++ { // page 0 starts below 1 MiB, see next test
		phys := mem.PhysicalAddress(i * mem.PGSIZE)
		mem.Physmem.Dmap(phys)[0] = byte(i + 1)

		virt := mem.PhysicalAddress(phys.Kernel())
		entry, ok := testAS.Walk(virt)
		if !ok {
			t.Fatalf("page %d: high-half address not mapped", i)
		}
		got := mem.Physmem.Dmap(entry & mem.PTE_ADDR)[0]
		if got != byte(i+1) {
			t.Fatalf("page %d: high-half read %d, want %d", i, got, i+1)
		}
	}
}

// TestMapSkipsBelowOneMegabyte exercises the "silently ignored" case of
// spec §7: the page starting at physical 0 never gets a page-table
// entry.
func TestMapSkipsBelowOneMegabyte(t *testing.T) {
	virt := mem.PhysicalAddress(mem.PhysicalAddress(0).Kernel())
	if _, ok := testAS.Walk(virt); ok {
		t.Fatal("page below 1 MiB should not have been mapped")
	}
}
