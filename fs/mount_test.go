package fs_test

import (
	"encoding/binary"
	"testing"

	"crux/fs"
	"crux/ustr"
)

// memDisk is a byte-slice-backed Disk_i standing in for fs.FileDisk_t,
// so these tests don't need a real file on disk.
type memDisk struct{ data []byte }

func newMemDisk(sectors int) *memDisk {
	return &memDisk{data: make([]byte, sectors*fs.SectorSize)}
}

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

func (d *memDisk) putDirent(sector int, slot int, ino uint32, name string) {
	off := sector*fs.SectorSize + slot*fs.DirentSize
	rec := d.data[off : off+fs.DirentSize]
	binary.LittleEndian.PutUint32(rec[0:4], ino)
	copy(rec[4:fs.DirentSize], name)
}

// buildFixture constructs a tiny disk image: root directory (ino 1)
// contains one entry, "dev" -> ino 2, an otherwise-empty directory that
// serves as a mount host.
func buildFixture(t *testing.T) (*fs.BlockFS_t, *fs.Inode_t) {
	t.Helper()
	const (
		inodeTableSector = 3
		rootDataSector   = 10
		devDataSector    = 11
	)
	d := newMemDisk(20)
	d.putSuperblock(1, 3, inodeTableSector)
	d.putInode(inodeTableSector, 1, fs.ModeDir, 0, rootDataSector)
	d.putInode(inodeTableSector, 2, fs.ModeDir, 0, devDataSector)
	d.putDirent(rootDataSector, 0, 2, "dev")

	bfs, root := fs.Mount(d)
	return bfs, root
}

// TestFindMountCrossing is P6.
func TestFindMountCrossing(t *testing.T) {
	_, root := buildFixture(t)
	mt := fs.NewMountTable()
	if err := mt.MountRoot(root); err != 0 {
		t.Fatalf("MountRoot: err=%d", err)
	}
	devfs := fs.NewDeviceFS()
	if err := mt.Mount(ustr.Ustr("dev"), devfs.Root); err != 0 {
		t.Fatalf("Mount(/dev): err=%d", err)
	}

	got, ok := fs.Find(root, mt, ustr.Ustr("/dev/tty0"))
	if !ok {
		t.Fatal("/dev/tty0 not found")
	}
	if got.Kind != fs.KindDevConsole {
		t.Fatalf("got Kind=%v, want KindDevConsole", got.Kind)
	}

	// Extra empty segments must resolve the same way.
	got2, ok2 := fs.Find(root, mt, ustr.Ustr("//dev///tty0"))
	if !ok2 || got2.Kind != fs.KindDevConsole {
		t.Fatal("path with redundant slashes did not cross the mount the same way")
	}
}

// TestFindIdempotence is P7.
func TestFindIdempotence(t *testing.T) {
	_, root := buildFixture(t)
	mt := fs.NewMountTable()
	if err := mt.MountRoot(root); err != 0 {
		t.Fatalf("MountRoot: err=%d", err)
	}

	dev, ok := fs.Find(root, mt, ustr.Ustr("dev"))
	if !ok {
		t.Fatal("dev not found")
	}

	self, ok := fs.Find(dev, mt, ustr.Ustr("."))
	if !ok || self != dev {
		t.Fatal("find(n, \".\") did not return n")
	}

	fromRoot, ok1 := fs.Find(root, mt, ustr.Ustr("/dev"))
	fromDev, ok2 := fs.Find(dev, mt, ustr.Ustr("/dev"))
	if !ok1 || !ok2 || fromRoot.Hash() != fromDev.Hash() {
		t.Fatal("an absolute path must resolve to the same inode regardless of base")
	}
}
