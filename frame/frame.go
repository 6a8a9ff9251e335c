// Package frame implements the physical-frame bump allocator (spec
// §4.1): a monotonic cursor over one contiguous region of mem.Physmem,
// handing out 2 MiB-aligned frames that are never recycled.
package frame

import (
	"crux/mem"
	"crux/spinlock"
	"crux/util"
)

// Allocator_t hands out 2 MiB frames from [base, base+size) by bump.
// Concurrency is a single spinlock; callers must not hold a page-table
// write-walk lock while calling Alloc (spec §4.1).
type Allocator_t struct {
	lock   spinlock.Spinlock_t
	cursor mem.PhysicalAddress
	ceil   mem.PhysicalAddress
}

// New constructs an allocator over [base, base+size), floor-aligning
// base to the 2 MiB boundary.
func New(base mem.PhysicalAddress, size int) *Allocator_t {
	a := &Allocator_t{}
	aligned := util.Rounddown(uint64(base), uint64(mem.PGSIZE))
	a.cursor = mem.PhysicalAddress(aligned)
	a.ceil = base + mem.PhysicalAddress(size)
	return a
}

// Alloc returns the next 2 MiB-aligned frame and advances the cursor.
// It returns the sentinel address 0 when the cursor would exceed the
// ceiling; the caller must treat 0 as fatal (spec §4.1, §7).
func (a *Allocator_t) Alloc() mem.PhysicalAddress {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.cursor+mem.PhysicalAddress(mem.PGSIZE) > a.ceil {
		return 0
	}
	ret := a.cursor
	a.cursor += mem.PhysicalAddress(mem.PGSIZE)
	return ret
}

// Remaining reports the number of frames still available. It exists
// for boot-time accounting logs only; nothing in the allocation path
// depends on it.
func (a *Allocator_t) Remaining() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.cursor >= a.ceil {
		return 0
	}
	return int(a.ceil-a.cursor) / mem.PGSIZE
}
