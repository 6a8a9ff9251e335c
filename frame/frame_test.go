package frame

import (
	"testing"

	"crux/mem"
)

// TestAllocMonotonic is P1: successive non-failing allocations advance
// by exactly one frame, and the k-th address is base_aligned + k*2MiB.
func TestAllocMonotonic(t *testing.T) {
	base := mem.PhysicalAddress(3 << 20) // not 2 MiB aligned on purpose
	a := New(base, 32<<20)
	aligned := base &^ mem.PGOFFSET

	var prev mem.PhysicalAddress
	for k := 0; k < 8; k++ {
		got := a.Alloc()
		if got == 0 {
			t.Fatalf("unexpected exhaustion at k=%d", k)
		}
		want := aligned + mem.PhysicalAddress(k*mem.PGSIZE)
		if got != want {
			t.Fatalf("k=%d: got %#x, want %#x", k, uint64(got), uint64(want))
		}
		if k > 0 && got != prev+mem.PhysicalAddress(mem.PGSIZE) {
			t.Fatalf("k=%d: not exactly one frame past previous", k)
		}
		prev = got
	}
}

// TestAllocExhaustion is P2: once the cursor would cross the ceiling,
// every subsequent call returns the null sentinel.
func TestAllocExhaustion(t *testing.T) {
	// Start one frame up: a frame at physical 0 would be indistinguishable
	// from the failure sentinel.
	a := New(mem.PhysicalAddress(mem.PGSIZE), 2*mem.PGSIZE)
	if got := a.Alloc(); got == 0 {
		t.Fatal("first allocation from a 2-frame region should succeed")
	}
	if got := a.Alloc(); got == 0 {
		t.Fatal("second allocation from a 2-frame region should succeed")
	}
	for i := 0; i < 3; i++ {
		if got := a.Alloc(); got != 0 {
			t.Fatalf("call %d past exhaustion returned %#x, want 0", i, uint64(got))
		}
	}
}
