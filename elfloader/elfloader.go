// Package elfloader implements the ELF64 loader spec §6 specifies at
// its interface: iterate PT_LOAD program headers, copy p_filesz bytes
// from image+p_offset to p_vaddr, and set the task's entry rip.
//
// Spec §1 lists the ELF loader among the external collaborators the
// core only consumes; SPEC_FULL §4.10 promotes it to a concrete
// component built on debug/elf, the teacher's own choice for ELF
// handling (biscuit/scripts's sibling chentry.go tool parses ELF
// headers the same way), plus golang.org/x/arch/x86/x86asm to log a
// disassembly of the entry instruction for boot diagnostics.
package elfloader

import (
	"bytes"
	"debug/elf"
	"log"

	"golang.org/x/arch/x86/x86asm"

	"crux/defs"
	"crux/frame"
	"crux/kheap"
	"crux/mem"
	"crux/task"
)

// Load parses image as an ELF64 executable, maps and populates every
// PT_LOAD segment into t's address space, and sets t's entry rip.
func Load(image []byte, t *task.Task_t, h *kheap.Heap_t, fr *frame.Allocator_t) defs.Err_t {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return defs.EINVAL
	}
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_X86_64 {
		return defs.EINVAL
	}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		loadSegment(t, h, fr, p, image)
	}
	t.Regs.Rip = f.Entry
	logEntry(f, image)
	return 0
}

func loadSegment(t *task.Task_t, h *kheap.Heap_t, fr *frame.Allocator_t, p *elf.Prog, image []byte) {
	segStart := p.Vaddr
	segEnd := p.Vaddr + p.Filesz
	start := mem.PhysicalAddress(segStart) &^ mem.PGOFFSET
	end := (mem.PhysicalAddress(segEnd) + mem.PGOFFSET) &^ mem.PGOFFSET

	for page := start; page < end; page += mem.PhysicalAddress(mem.PGSIZE) {
		if _, ok := t.AS.Walk(page); !ok {
			phys := fr.Alloc()
			if phys == 0 {
				panic("elfloader: frame allocator exhausted loading segment")
			}
			t.AS.Map(h, phys, page, mem.PTE_P|mem.PTE_RW|mem.PTE_U|mem.PTE_HUGE, false)
		}
		entry, _ := t.AS.Walk(page)
		dst := mem.Physmem.Dmap(entry & mem.PTE_ADDR)

		pageStart := uint64(page)
		lo := max(pageStart, segStart)
		hi := min(pageStart+uint64(mem.PGSIZE), segEnd)
		if lo < hi {
			dstOff := lo - pageStart
			srcOff := p.Off + (lo - segStart)
			copy(dst[dstOff:dstOff+(hi-lo)], image[srcOff:srcOff+(hi-lo)])
		}
	}
}

// logEntry disassembles the single instruction at the ELF entry point
// for the boot log. Decode failure is never fatal: this is a
// diagnostic, not part of the loader's contract.
func logEntry(f *elf.File, image []byte) {
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD || f.Entry < p.Vaddr || f.Entry >= p.Vaddr+p.Filesz {
			continue
		}
		off := p.Off + (f.Entry - p.Vaddr)
		if off >= uint64(len(image)) {
			return
		}
		inst, err := x86asm.Decode(image[off:], 64)
		if err != nil {
			log.Printf("elfloader: entry at %#x: disassembly unavailable: %v", f.Entry, err)
			return
		}
		log.Printf("elfloader: entry at %#x: %s", f.Entry, inst.String())
		return
	}
}
