// Package kheap implements the coarse kernel bump allocator (spec
// §4.2) that backs page-table node allocation and other small,
// never-freed kernel objects. Deallocation is a no-op by design: the
// core does not reclaim kernel-heap memory.
package kheap

import (
	"fmt"
	"runtime"
	"unsafe"

	"crux/spinlock"
)

// Sample is one allocation site's running total, the unit the /prof
// device (SPEC_FULL §4.12) turns into a pprof profile.
type Sample struct {
	Site  string
	Bytes uintptr
}

// Heap_t is parameterised at New by (placement, max) and advances
// placement monotonically on every Alloc.
type Heap_t struct {
	lock      spinlock.Spinlock_t
	backing   []byte
	placement uintptr
	max       uintptr
	samples   map[string]uintptr
}

// New reserves a backing arena of size bytes and returns a heap whose
// placement starts at the arena's base address.
func New(size int) *Heap_t {
	h := &Heap_t{samples: make(map[string]uintptr)}
	h.backing = make([]byte, size)
	base := uintptr(unsafe.Pointer(&h.backing[0]))
	h.placement = base
	h.max = base + uintptr(size)
	return h
}

// Alloc advances placement to the next align-aligned address and
// returns it if size more bytes still fit before max; otherwise it
// returns 0. align must be a power of two; align == 1 produces a
// one-byte bump, per spec §4.2.
func (h *Heap_t) Alloc(size, align uintptr) uintptr {
	h.lock.Lock()
	defer h.lock.Unlock()

	aligned := (h.placement &^ (align - 1)) + align
	if aligned+size >= h.max {
		return 0
	}
	h.placement = aligned + size
	h.recordSite(size)
	return aligned
}

// recordSite attributes size bytes to whichever line called Alloc, for
// the /prof device's bump-allocator breakdown: skip=2 steps over this
// function and Alloc itself to name Alloc's caller.
func (h *Heap_t) recordSite(size uintptr) {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return
	}
	h.samples[fmt.Sprintf("%s:%d", file, line)] += size
}

// Free is a no-op: the kernel heap never reclaims memory (spec §4.2).
func (h *Heap_t) Free(uintptr) {}

// Used reports how many bytes have been placed so far, for boot-time
// accounting.
func (h *Heap_t) Used() uintptr {
	h.lock.Lock()
	defer h.lock.Unlock()
	base := uintptr(unsafe.Pointer(&h.backing[0]))
	return h.placement - base
}

// Samples returns a snapshot of per-call-site allocation totals, the
// raw material the /prof device turns into a pprof profile.
func (h *Heap_t) Samples() []Sample {
	h.lock.Lock()
	defer h.lock.Unlock()
	out := make([]Sample, 0, len(h.samples))
	for site, n := range h.samples {
		out = append(out, Sample{Site: site, Bytes: n})
	}
	return out
}
