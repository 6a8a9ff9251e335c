// Package fs implements the read-mostly filesystem core of spec §4.7:
// an ext2-like block inode store, a synthetic device filesystem, a
// mount table, and the path resolver that crosses between them.
//
// Grounded on the teacher's fs/blk.go (Disk_i, block-request shape) and
// fs/super.go (superblock field accessors), and on ufs/driver.go's
// ahci_disk_t for the file-backed Disk_i implementation. The teacher's
// block cache, write-ahead log, and free-space bitmaps are dropped: the
// spec's Non-goals exclude ext2 writes, so this core only ever reads a
// pre-built image.
package fs

import "os"

// SectorSize is the device's fixed sector size (spec §6).
const SectorSize = 512

// Bdevcmd_t enumerates disk request types, mirroring fs.Bdevcmd_t in
// the teacher.
type Bdevcmd_t int

const (
	BDEV_READ  Bdevcmd_t = 1
	BDEV_WRITE Bdevcmd_t = 2
)

// Request_t describes one sector-granular disk request.
type Request_t struct {
	Cmd    Bdevcmd_t
	Sector int
	Buf    []byte // len SectorSize
}

// Disk_i is the external collaborator spec §1 calls the "IDE PIO block
// driver": the core only ever calls Start/Stats.
type Disk_i interface {
	Start(*Request_t) bool
	Stats() string
}

// FileDisk_t backs Disk_i with a plain file, standing in for the real
// IDE controller the spec treats as out of scope.
type FileDisk_t struct {
	f *os.File
}

// OpenFileDisk opens path as a sector-addressable disk image.
func OpenFileDisk(path string) (*FileDisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &FileDisk_t{f: f}, nil
}

// Start services req synchronously and returns false, mirroring the
// teacher's ahci_disk_t.Start: there is no queue to drain, so the
// caller never waits on an acknowledgement channel.
func (d *FileDisk_t) Start(req *Request_t) bool {
	off := int64(req.Sector) * SectorSize
	switch req.Cmd {
	case BDEV_READ:
		if _, err := d.f.ReadAt(req.Buf, off); err != nil {
			panic(err)
		}
	case BDEV_WRITE:
		if _, err := d.f.WriteAt(req.Buf, off); err != nil {
			panic(err)
		}
	}
	return false
}

// Stats reports nothing useful; present only to satisfy Disk_i.
func (d *FileDisk_t) Stats() string {
	return ""
}

// Close releases the backing file.
func (d *FileDisk_t) Close() error {
	return d.f.Close()
}

func readSector(d Disk_i, sector int) []byte {
	buf := make([]byte, SectorSize)
	d.Start(&Request_t{Cmd: BDEV_READ, Sector: sector, Buf: buf})
	return buf
}

func writeSector(d Disk_i, sector int, buf []byte) {
	d.Start(&Request_t{Cmd: BDEV_WRITE, Sector: sector, Buf: buf})
}
