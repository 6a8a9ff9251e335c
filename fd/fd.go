// Package fd implements the file-descriptor abstraction of spec §4.8:
// an (offset, inode) pair whose read/write/readdir behavior dispatches
// on what the inode turns out to be. Grounded directly on the
// teacher's fd/fd.go (Fd_t, Cwd_t, Copyfd, Canonicalpath) with
// Fdops_i supplied by this package's own block/device implementations
// instead of biscuit's buffered-cache ones.
package fd

import (
	"sync"

	"crux/bpath"
	"crux/defs"
	"crux/fdops"
	"crux/fs"
	"crux/ustr"
)

// File descriptor permission bits, mirroring the teacher's fd/fd.go.
const (
	FD_READ    = 0x1
	FD_WRITE   = 0x2
	FD_CLOEXEC = 0x4
)

// Fd_t is an open file descriptor: a reference to whatever backs it
// plus the permission bits it was opened with.
type Fd_t struct {
	Fops  fdops.Fdops_i
	Perms int
}

// Copyfd duplicates fd by reopening its underlying Fdops_i, the way
// fork duplicates a task's open-file table.
func Copyfd(f *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *f
	if err := nfd.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

// ClosePanic closes f and panics if the close fails; used for
// descriptors the kernel itself owns and must never fail to release.
func ClosePanic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("fd: close of kernel-owned descriptor failed")
	}
}

// Cwd_t tracks a task's current working directory.
type Cwd_t struct {
	sync.Mutex
	Fd   *Fd_t
	Path ustr.Ustr
}

// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd(f *Fd_t) *Cwd_t {
	return &Cwd_t{Fd: f, Path: ustr.MkUstrRoot()}
}

// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	}
	return cwd.Path.Extend(p)
}

// Canonicalpath resolves p relative to cwd and collapses "." / "..".
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	return bpath.Canonicalize(cwd.Fullpath(p))
}

// Open resolves path against base through mt and wraps the result in a
// file descriptor, the shared core of the open and chdir syscalls.
func Open(base *fs.Inode_t, mt *fs.MountTable_t, path ustr.Ustr) (*Fd_t, defs.Err_t) {
	node, ok := fs.Find(base, mt, path)
	if !ok {
		return nil, defs.ENOENT
	}
	return &Fd_t{Fops: newFops(node), Perms: FD_READ | FD_WRITE}, 0
}
