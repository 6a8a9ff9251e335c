package fs

import (
	"crux/defs"
	"crux/spinlock"
	"crux/ustr"
)

// maxMounts bounds the mount table; spec §4.7 notes "4 suffices for
// this core".
const maxMounts = 4

type mountPoint_t struct {
	hostHash InodeHash
	hasHost  bool
	guest    *Inode_t
}

// MountTable_t is the bounded, ordered sequence of mount points of
// spec §3.1: exactly one entry has no host hash, the root mount.
// Concurrency: spec §5 calls this "spin-or-once, initialised once at
// boot and appended to only by the boot sequence" — a plain spinlock
// covers both phases.
type MountTable_t struct {
	lock   spinlock.Spinlock_t
	mounts []mountPoint_t
}

// NewMountTable returns an empty table.
func NewMountTable() *MountTable_t {
	return &MountTable_t{}
}

// MountRoot installs root as the table's unique host-less entry. It
// fails if the table is not empty.
func (mt *MountTable_t) MountRoot(root *Inode_t) defs.Err_t {
	mt.lock.Lock()
	defer mt.lock.Unlock()
	if len(mt.mounts) != 0 {
		return defs.EINVAL
	}
	mt.mounts = append(mt.mounts, mountPoint_t{guest: root})
	return 0
}

// Mount resolves path against the existing root and appends guest as a
// new mount hosted at the resolved inode.
func (mt *MountTable_t) Mount(path ustr.Ustr, guest *Inode_t) defs.Err_t {
	root, ok := mt.Root()
	if !ok {
		return defs.EINVAL
	}
	host, ok := Find(root, mt, path)
	if !ok {
		return defs.ENOENT
	}
	h := host.Hash()

	mt.lock.Lock()
	defer mt.lock.Unlock()
	if len(mt.mounts) >= maxMounts {
		return defs.ENOMEM
	}
	for _, m := range mt.mounts {
		if m.hasHost && m.hostHash == h {
			return defs.EEXIST
		}
	}
	mt.mounts = append(mt.mounts, mountPoint_t{hostHash: h, hasHost: true, guest: guest})
	return 0
}

// Root returns the table's unique host-less mount point.
func (mt *MountTable_t) Root() (*Inode_t, bool) {
	mt.lock.Lock()
	defer mt.lock.Unlock()
	for _, m := range mt.mounts {
		if !m.hasHost {
			return m.guest, true
		}
	}
	return nil, false
}

func (mt *MountTable_t) guestFor(h InodeHash) (*Inode_t, bool) {
	mt.lock.Lock()
	defer mt.lock.Unlock()
	for _, m := range mt.mounts {
		if m.hasHost && m.hostHash == h {
			return m.guest, true
		}
	}
	return nil, false
}

// Find resolves path against base, crossing mount points as soon as a
// looked-up node turns out to be a mount host (spec §4.7
// find(base, path)). P6 and P7 are properties of this function.
func Find(base *Inode_t, mt *MountTable_t, path ustr.Ustr) (*Inode_t, bool) {
	if path.Isdot() {
		return base, true
	}
	if path.IsAbsolute() {
		root, ok := mt.Root()
		if !ok {
			return nil, false
		}
		return Find(root, mt, path[1:])
	}
	node := base
	for _, seg := range path.Split() {
		child, ok := node.Lookup(seg.String())
		if !ok {
			return nil, false
		}
		if guest, ok := mt.guestFor(child.Hash()); ok {
			child = guest
		}
		node = child
	}
	return node, true
}
