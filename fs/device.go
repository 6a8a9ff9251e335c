package fs

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DeviceFS_t is the synthetic device filesystem spec §4.7 mounts at
// "/dev": a fixed enumeration of character devices, never backed by a
// disk. Grounded on the teacher's console_t/ahci_disk_t split
// (ufs/driver.go) between a real block driver and a stub device —
// here the device side gets promoted to a full inode tree instead of a
// single stub.
type DeviceFS_t struct {
	Root     *Inode_t
	Children map[string]*Inode_t
}

// NewDeviceFS constructs the fixed device tree: "tty0" (console),
// "com1" (serial) — the two names spec §4.7's device root is required
// to answer — plus "prof", the teacher's D_PROF constant promoted to a
// real node (SPEC_FULL §4.12).
func NewDeviceFS() *DeviceFS_t {
	dfs := &DeviceFS_t{Children: make(map[string]*Inode_t, 3)}
	dfs.Root = &Inode_t{Kind: KindDevRoot, Dev: dfs}
	dfs.Children["tty0"] = &Inode_t{Kind: KindDevConsole, Dev: dfs, DevName: "tty0"}
	dfs.Children["com1"] = &Inode_t{Kind: KindDevSerial, Dev: dfs, DevName: "com1"}
	dfs.Children["prof"] = &Inode_t{Kind: KindDevProf, Dev: dfs, DevName: "prof"}
	return dfs
}

// sortedDeviceNames returns the device root's children in a
// deterministic, locale-aware order. The device map has no on-disk
// order to fall back on the way a block directory does, so readdir
// output would otherwise depend on Go's randomized map iteration;
// golang.org/x/text/collate gives a stable ordering instead of a bare
// sort.Strings, matching how the rest of this core prefers an
// ecosystem library over a hand-rolled stdlib substitute.
func sortedDeviceNames(dfs *DeviceFS_t) []string {
	names := make([]string, 0, len(dfs.Children))
	for name := range dfs.Children {
		names = append(names, name)
	}
	c := collate.New(language.Und)
	c.SortStrings(names)
	return names
}
