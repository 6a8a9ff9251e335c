package elfloader_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"crux/defs"
	"crux/elfloader"
	"crux/frame"
	"crux/fs"
	"crux/kheap"
	"crux/mem"
	"crux/pagetable"
	"crux/task"
	"crux/ustr"
)

// memDisk is the same minimal fixture every other package's tests use
// to stand in for a real disk image.
type memDisk struct{ data []byte }

func (d *memDisk) Start(req *fs.Request_t) bool {
	off := req.Sector * fs.SectorSize
	switch req.Cmd {
	case fs.BDEV_READ:
		copy(req.Buf, d.data[off:off+fs.SectorSize])
	case fs.BDEV_WRITE:
		copy(d.data[off:off+fs.SectorSize], req.Buf)
	}
	return false
}
func (d *memDisk) Stats() string { return "" }

func (d *memDisk) putSuperblock(rootIno, inodeCount, inodeTableSector uint32) {
	sb := d.data[fs.SuperblockSector*fs.SectorSize:]
	binary.LittleEndian.PutUint32(sb[0:4], rootIno)
	binary.LittleEndian.PutUint32(sb[4:8], inodeCount)
	binary.LittleEndian.PutUint32(sb[8:12], inodeTableSector)
}

func (d *memDisk) putInode(inodeTableSector, ino uint32, mode uint16, size, dataSector uint32) {
	sector := int(inodeTableSector) + int(ino)/fs.InodesPerSector
	off := (int(ino)%fs.InodesPerSector)*fs.InodeRecordSize + sector*fs.SectorSize
	rec := d.data[off : off+fs.InodeRecordSize]
	binary.LittleEndian.PutUint16(rec[0:2], mode)
	binary.LittleEndian.PutUint32(rec[4:8], size)
	binary.LittleEndian.PutUint32(rec[8:12], dataSector)
}

var testTask *task.Task_t
var testFrames *frame.Allocator_t
var testHeap *kheap.Heap_t

func TestMain(m *testing.M) {
	const arena = 16 << 20
	if err := mem.Physmem.Init(arena); err != nil {
		panic(err)
	}
	testHeap = kheap.New(4 << 20)
	testFrames = frame.New(mem.PhysicalAddress(2<<20), arena-(2<<20))
	pagetable.InitKernelRoot(testHeap)

	const inodeTableSector = 3
	d := &memDisk{data: make([]byte, 20*fs.SectorSize)}
	d.putSuperblock(1, 1, inodeTableSector)
	d.putInode(inodeTableSector, 1, fs.ModeDir, 0, 10)
	_, root := fs.Mount(d)

	mt := fs.NewMountTable()
	if err := mt.MountRoot(root); err != 0 {
		panic("MountRoot failed")
	}

	var err defs.Err_t
	testTask, err = task.New("t", testHeap, testFrames, root, mt, ustr.MkUstrRoot())
	if err != 0 {
		panic("task.New failed")
	}

	os.Exit(m.Run())
}

// buildELF64 hand-assembles the smallest valid ELF64 executable
// debug/elf will parse: one PT_LOAD segment carrying code, entry point
// at its start. The standard library has no ELF64 writer, so this
// mirrors the header layout debug/elf.NewFile itself expects.
func buildELF64(vaddr uint64, code []byte) []byte {
	const ehsize = 64
	const phsize = 56

	var buf bytes.Buffer
	ident := [16]byte{0x7f, 'E', 'L', 'F', 2 /* ELFCLASS64 */, 1 /* little endian */, 1 /* EI_VERSION */}
	buf.Write(ident[:])
	binary.Write(&buf, binary.LittleEndian, uint16(2))  // e_type: ET_EXEC
	binary.Write(&buf, binary.LittleEndian, uint16(62)) // e_machine: EM_X86_64
	binary.Write(&buf, binary.LittleEndian, uint32(1))  // e_version
	binary.Write(&buf, binary.LittleEndian, vaddr)      // e_entry
	binary.Write(&buf, binary.LittleEndian, uint64(ehsize)) // e_phoff
	binary.Write(&buf, binary.LittleEndian, uint64(0))  // e_shoff
	binary.Write(&buf, binary.LittleEndian, uint32(0))  // e_flags
	binary.Write(&buf, binary.LittleEndian, uint16(ehsize))
	binary.Write(&buf, binary.LittleEndian, uint16(phsize))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // e_phnum
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shentsize
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shnum
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_shstrndx

	dataOff := uint64(ehsize + phsize)
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // p_type: PT_LOAD
	binary.Write(&buf, binary.LittleEndian, uint32(5)) // p_flags: PF_R|PF_X
	binary.Write(&buf, binary.LittleEndian, dataOff)    // p_offset
	binary.Write(&buf, binary.LittleEndian, vaddr)      // p_vaddr
	binary.Write(&buf, binary.LittleEndian, vaddr)      // p_paddr
	binary.Write(&buf, binary.LittleEndian, uint64(len(code))) // p_filesz
	binary.Write(&buf, binary.LittleEndian, uint64(len(code))) // p_memsz
	binary.Write(&buf, binary.LittleEndian, uint64(mem.PGSIZE))

	buf.Write(code)
	return buf.Bytes()
}

// TestLoadMapsSegmentAndSetsEntry is end-to-end scenario 1's loader
// half: boot hands the init module's ELF bytes to the loader, which
// must leave rip at the entry point and the segment's bytes readable
// at its mapped virtual address.
func TestLoadMapsSegmentAndSetsEntry(t *testing.T) {
	vaddr := uint64(task.START_ADDR)
	code := []byte{0x90, 0x90, 0xc3} // nop; nop; ret
	image := buildELF64(vaddr, code)

	if err := elfloader.Load(image, testTask, testHeap, testFrames); err != 0 {
		t.Fatalf("Load: err=%d", err)
	}
	if testTask.Regs.Rip != vaddr {
		t.Fatalf("rip = %#x, want %#x", testTask.Regs.Rip, vaddr)
	}

	page := mem.PhysicalAddress(vaddr) &^ mem.PGOFFSET
	entry, ok := testTask.AS.Walk(page)
	if !ok {
		t.Fatal("entry segment's page is not mapped")
	}
	phys := mem.Physmem.Dmap(entry & mem.PTE_ADDR)
	off := int(mem.PhysicalAddress(vaddr) & mem.PGOFFSET)
	if !bytes.Equal(phys[off:off+len(code)], code) {
		t.Fatalf("segment bytes at vaddr = %v, want %v", phys[off:off+len(code)], code)
	}
}

// TestLoadRejectsWrongMachine exercises the "reject anything that
// isn't an amd64 ELF" guard.
func TestLoadRejectsWrongMachine(t *testing.T) {
	image := buildELF64(uint64(task.START_ADDR), []byte{0xc3})
	image[18] = 3 // e_machine low byte: EM_386 instead of EM_X86_64

	if err := elfloader.Load(image, testTask, testHeap, testFrames); err == 0 {
		t.Fatal("Load accepted a non-x86-64 ELF")
	}
}
