package fs

import (
	"bytes"
	"encoding/binary"
	"unsafe"
)

// InodeRecordSize is the on-disk size of one inode table entry: mode
// (2), padding (2), size (4), data sector (4), 4 bytes reserved.
const InodeRecordSize = 16

// InodesPerSector is how many fixed-size inode records fit in one
// sector.
const InodesPerSector = SectorSize / InodeRecordSize

// DirentSize is the on-disk size of one directory entry: a 4-byte
// inode number followed by a fixed-width name, mirroring the teacher's
// Dirdata_t/NDIRENTS scheme (ufs/ufs.go's Ls).
const DirentSize = 64

// DirentsPerSector is how many directory entries fit in one sector.
const DirentsPerSector = SectorSize / DirentSize

// Mode bits for the on-disk Mode field.
const (
	ModeFile uint16 = 1 << 0
	ModeDir  uint16 = 1 << 1
)

// Kind enumerates the two inode shapes of spec §3.1.
type Kind int

const (
	KindBlock Kind = iota
	KindDevRoot
	KindDevConsole
	KindDevSerial
	KindDevProf
)

// InodeHash is an equality-comparable projection of an inode, used as
// the mount table's lookup key.
type InodeHash uint64

// Inode_t is the tagged union of block inodes and device nodes. Only
// the fields relevant to Kind are meaningful; this mirrors the
// teacher's preference (spec §9 design note) for one concrete struct
// over a deep interface hierarchy, with dispatch on Kind playing the
// role of the "capability set" the note describes.
type Inode_t struct {
	Kind Kind

	// Block inode fields.
	FS         *BlockFS_t
	Ino        uint32
	Mode       uint16
	Size       uint32
	DataSector uint32

	// Device inode fields.
	Dev     *DeviceFS_t
	DevName string

	// Parent is the non-owning upward link of spec §9: established the
	// first time this inode is reached via Lookup, nil for the root of
	// whichever tree it belongs to.
	Parent *Inode_t
}

// IsDir reports whether the inode can be the base of a Lookup.
func (n *Inode_t) IsDir() bool {
	switch n.Kind {
	case KindBlock:
		return n.Mode&ModeDir != 0
	case KindDevRoot:
		return true
	default:
		return false
	}
}

// Hash implements the InodeHash projection spec §3.1 requires: two
// inodes referring to the same underlying object must hash equal.
func (n *Inode_t) Hash() InodeHash {
	switch n.Kind {
	case KindBlock:
		return InodeHash(uintptr(unsafe.Pointer(n.FS)))<<32 ^ InodeHash(n.Ino)
	default:
		return InodeHash(uintptr(unsafe.Pointer(n.Dev)))<<8 ^ InodeHash(n.Kind)
	}
}

// Lookup dispatches by Kind (spec §4.7 Inode.lookup).
func (n *Inode_t) Lookup(name string) (*Inode_t, bool) {
	switch n.Kind {
	case KindBlock:
		return n.lookupBlock(name)
	case KindDevRoot:
		child, ok := n.Dev.Children[name]
		return child, ok
	default:
		return nil, false
	}
}

func (n *Inode_t) lookupBlock(name string) (*Inode_t, bool) {
	if !n.IsDir() {
		return nil, false
	}
	if name == ".." {
		if n.Parent != nil {
			return n.Parent, true
		}
		return nil, false
	}
	buf := readSector(n.FS.Disk, int(n.DataSector))
	for i := 0; i < DirentsPerSector; i++ {
		rec := buf[i*DirentSize : (i+1)*DirentSize]
		ino := binary.LittleEndian.Uint32(rec[0:4])
		if ino == 0 {
			break
		}
		if direntName(rec) == name {
			child := n.FS.ReadInode(ino)
			child.Parent = n
			return child, true
		}
	}
	return nil, false
}

// ReadDirEntry returns the visibleIndex-th entry of a directory
// listing (spec §4.7 Inode.readdir), after the root-inode "." / ".."
// omission rule. ok is false once the sequence is exhausted.
func (n *Inode_t) ReadDirEntry(visibleIndex int) (ino uint32, name string, ok bool) {
	switch n.Kind {
	case KindBlock:
		return n.readdirBlock(visibleIndex)
	case KindDevRoot:
		names := sortedDeviceNames(n.Dev)
		if visibleIndex < 0 || visibleIndex >= len(names) {
			return 0, "", false
		}
		return 0, names[visibleIndex], true
	default:
		if visibleIndex == 0 {
			return 0, n.DevName, true
		}
		return 0, "", false
	}
}

func (n *Inode_t) readdirBlock(visibleIndex int) (ino uint32, name string, ok bool) {
	if !n.IsDir() {
		return 0, "", false
	}
	buf := readSector(n.FS.Disk, int(n.DataSector))
	seen := 0
	for i := 0; i < DirentsPerSector; i++ {
		rec := buf[i*DirentSize : (i+1)*DirentSize]
		e := binary.LittleEndian.Uint32(rec[0:4])
		if e == 0 {
			break
		}
		nm := direntName(rec)
		if n.Parent == nil && (nm == "." || nm == "..") {
			continue
		}
		if seen == visibleIndex {
			return e, nm, true
		}
		seen++
	}
	return 0, "", false
}

func direntName(rec []byte) string {
	nb := rec[4:DirentSize]
	if i := bytes.IndexByte(nb, 0); i >= 0 {
		return string(nb[:i])
	}
	return string(nb)
}

// BlockFS_t is one mounted ext2-like filesystem: a superblock plus the
// disk it was read from. Grounded on the teacher's fs.Fs_t (fs/super.go,
// fs/blk.go) with the block cache, journal, and bitmaps removed — the
// spec's Non-goals exclude ext2 writes, so nothing here ever allocates.
type BlockFS_t struct {
	Disk Disk_i
	SB   *Superblock_t
}

// Mount reads the superblock and root inode from d.
func Mount(d Disk_i) (*BlockFS_t, *Inode_t) {
	sb := ReadSuperblock(d)
	bfs := &BlockFS_t{Disk: d, SB: sb}
	root := bfs.ReadInode(sb.RootIno())
	return bfs, root
}

// ReadInode loads inode number ino from the fixed-size inode table.
func (fs *BlockFS_t) ReadInode(ino uint32) *Inode_t {
	sector := int(fs.SB.InodeTableSector()) + int(ino)/InodesPerSector
	off := (int(ino) % InodesPerSector) * InodeRecordSize
	buf := readSector(fs.Disk, sector)
	rec := buf[off : off+InodeRecordSize]
	return &Inode_t{
		Kind:       KindBlock,
		FS:         fs,
		Ino:        ino,
		Mode:       binary.LittleEndian.Uint16(rec[0:2]),
		Size:       binary.LittleEndian.Uint32(rec[4:8]),
		DataSector: binary.LittleEndian.Uint32(rec[8:12]),
	}
}
