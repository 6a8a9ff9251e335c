package pagetable

import (
	"os"
	"testing"

	"crux/frame"
	"crux/kheap"
	"crux/mem"
)

var (
	testHeap   *kheap.Heap_t
	testFrames *frame.Allocator_t
)

func TestMain(m *testing.M) {
	const arena = 64 << 20
	if err := mem.Physmem.Init(arena); err != nil {
		panic(err)
	}
	testHeap = kheap.New(4 << 20)
	testFrames = frame.New(mem.PhysicalAddress(2<<20), arena-(2<<20))
	KernelRoot = allocTable(testHeap)
	os.Exit(m.Run())
}

// TestMapWalkRoundTrip is P4.
func TestMapWalkRoundTrip(t *testing.T) {
	as := NewWithKernel(testHeap)
	phys := testFrames.Alloc()
	if phys == 0 {
		t.Fatal("frame allocator exhausted")
	}
	virt := mem.PhysicalAddress(1 << 30)

	as.Map(testHeap, phys, virt, mem.PTE_P|mem.PTE_RW|mem.PTE_HUGE, true)

	entry, ok := as.Walk(virt)
	if !ok {
		t.Fatal("Walk reports unmapped after Map")
	}
	if entry&mem.PTE_ADDR != mem.PhysicalAddress(phys)&mem.PTE_ADDR {
		t.Fatalf("entry address %#x != mapped phys %#x", uint64(entry&mem.PTE_ADDR), uint64(phys))
	}
	if entry&mem.PTE_P == 0 || entry&mem.PTE_HUGE == 0 {
		t.Fatalf("entry %#x missing PRESENT|HUGE", uint64(entry))
	}
}

func TestMapDoesNotOverwritePresent(t *testing.T) {
	as := NewWithKernel(testHeap)
	virt := mem.PhysicalAddress(4 << 30)
	first := testFrames.Alloc()
	second := testFrames.Alloc()

	as.Map(testHeap, first, virt, mem.PTE_P|mem.PTE_RW|mem.PTE_HUGE, false)
	as.Map(testHeap, second, virt, mem.PTE_P|mem.PTE_RW|mem.PTE_HUGE, false)

	entry, _ := as.Walk(virt)
	if entry&mem.PTE_ADDR != mem.PhysicalAddress(first)&mem.PTE_ADDR {
		t.Fatal("second Map overwrote the already-present leaf")
	}
}

// TestForkIsolation is P5.
func TestForkIsolation(t *testing.T) {
	parent := NewWithKernel(testHeap)
	phys := testFrames.Alloc()
	virt := mem.PhysicalAddress(8 << 30)
	parent.Map(testHeap, phys, virt, mem.PTE_P|mem.PTE_RW|mem.PTE_U|mem.PTE_HUGE, false)
	mem.Physmem.Dmap(phys)[0] = 0xAA

	child := parent.Fork(testHeap, testFrames)

	ce, ok := child.Walk(virt)
	if !ok {
		t.Fatal("child does not inherit parent's USER mapping")
	}
	if ce&mem.PTE_ADDR == phys&mem.PTE_ADDR {
		t.Fatal("fork did not allocate a distinct frame for the child")
	}

	child.Walk(virt)
	mem.Physmem.Dmap(ce & mem.PTE_ADDR)[0] = 0xBB

	pe, _ := parent.Walk(virt)
	if mem.Physmem.Dmap(pe&mem.PTE_ADDR)[0] != 0xAA {
		t.Fatal("writing to the child's copy changed the parent's frame")
	}
	if mem.Physmem.Dmap(ce&mem.PTE_ADDR)[0] != 0xBB {
		t.Fatal("child's own write did not stick")
	}
}

func TestForkSharesKernelHalf(t *testing.T) {
	parent := NewWithKernel(testHeap)
	child := parent.Fork(testHeap, testFrames)
	for i, e := range KernelRoot {
		if e&mem.PTE_P == 0 {
			continue
		}
		if parent.Root[i] != e || child.Root[i] != e {
			t.Fatalf("slot %d diverges from KernelRoot across address spaces", i)
		}
	}
}
