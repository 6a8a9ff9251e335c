// Package fdops defines the narrow interface a file descriptor uses to
// reach whatever backs it — a block inode or a character device —
// without the descriptor itself knowing which. Grounded on the
// teacher's fd.Fd_t.Fops field (fd/fd.go), which holds the same kind of
// interface value; this core omits the teacher's Userio_i/Pollmsg_t
// machinery because every syscall here is a synchronous, single-task
// suspension (spec §5) with no iovec or poll-driven IO to abstract.
package fdops

import "crux/defs"

// DirentNameLen is the fixed width of a directory entry's name field
// (spec §4.8's "fixed-size name buffer").
const DirentNameLen = 60

// Dirent_t is the out-parameter populated by Fdops_i.Readdir.
type Dirent_t struct {
	Ino  uint32
	Name [DirentNameLen]byte
}

// SetName copies s into the entry, truncating if necessary.
func (d *Dirent_t) SetName(s string) {
	n := copy(d.Name[:], s)
	for i := n; i < len(d.Name); i++ {
		d.Name[i] = 0
	}
}

// NameString returns the entry's name up to the first NUL byte.
func (d *Dirent_t) NameString() string {
	for i, b := range d.Name {
		if b == 0 {
			return string(d.Name[:i])
		}
	}
	return string(d.Name[:])
}

// Fdops_i is implemented by whatever a file descriptor's offset+inode
// pair resolves to. Fd_t holds one as a reference, per spec §3.1's
// FileDescriptor entity.
type Fdops_i interface {
	Read(dst []byte) (int, defs.Err_t)
	Write(src []byte) (int, defs.Err_t)
	Readdir(out *Dirent_t) defs.Err_t
	Close() defs.Err_t
	Reopen() defs.Err_t
}

// CharDevice_i is the external collaborator spec §1 names the
// "PS/2 keyboard driver" / "serial logger": a character device that
// blocks for one logical line on read and accepts UTF-8 text on write.
// The core only ever calls these two methods.
type CharDevice_i interface {
	ReadLine() (string, defs.Err_t)
	Write(s string) (int, defs.Err_t)
}
