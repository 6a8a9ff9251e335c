// Package bpath performs purely lexical cleanup of absolute paths
// before they are handed to the filesystem's path resolver. It never
// touches an inode: ".." here means "drop the previous component", not
// "the parent directory of whatever that component turns out to be" —
// the resolver is the only thing that knows about mount crossings.
package bpath

import "crux/ustr"

// Canonicalize collapses "." and ".." components and repeated slashes
// in an absolute path. p must start with '/'; the result always does.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	parts := p.Split()
	out := make([]ustr.Ustr, 0, len(parts))
	for _, c := range parts {
		switch {
		case c.Isdot():
			continue
		case c.Isdotdot():
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, c)
		}
	}
	ret := ustr.MkUstrRoot()
	for i, c := range out {
		if i > 0 {
			ret = append(ret, '/')
		}
		ret = append(ret, c...)
	}
	return ret
}
