package fs

import "crux/util"

// SuperblockSector is byte offset 1024 expressed in 512-byte sectors
// (spec §6).
const SuperblockSector = 1024 / SectorSize

// Superblock_t wraps the raw sector holding the filesystem's layout
// parameters, accessed through fieldr/fieldw the way the teacher's
// Superblock_t wraps Bytepg_t (fs/super.go), but sized to what this
// read-mostly core actually needs: the root inode number, how many
// inodes the table holds, and where the inode table begins.
type Superblock_t struct {
	Data []byte // one sector, read from SuperblockSector
}

func fieldr(d []byte, field int) uint32 {
	return uint32(util.Readn(d, 4, field*4))
}

func fieldw(d []byte, field int, v uint32) {
	util.Writen(d, 4, field*4, int(v))
}

// RootIno is the inode number of the root directory.
func (sb *Superblock_t) RootIno() uint32 { return fieldr(sb.Data, 0) }

// SetRootIno records the root directory's inode number.
func (sb *Superblock_t) SetRootIno(n uint32) { fieldw(sb.Data, 0, n) }

// InodeCount is the number of entries in the inode table.
func (sb *Superblock_t) InodeCount() uint32 { return fieldr(sb.Data, 1) }

// SetInodeCount records the number of entries in the inode table.
func (sb *Superblock_t) SetInodeCount(n uint32) { fieldw(sb.Data, 1, n) }

// InodeTableSector is the first sector of the fixed-size inode table.
func (sb *Superblock_t) InodeTableSector() uint32 { return fieldr(sb.Data, 2) }

// SetInodeTableSector records the first sector of the inode table.
func (sb *Superblock_t) SetInodeTableSector(n uint32) { fieldw(sb.Data, 2, n) }

// ReadSuperblock loads the superblock sector from d.
func ReadSuperblock(d Disk_i) *Superblock_t {
	return &Superblock_t{Data: readSector(d, SuperblockSector)}
}
