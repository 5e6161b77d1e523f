// Package bpath canonicalizes paths for namei/nameiparent.
// This kernel has no chdir, so every
// path a caller hands the file-system layer is already implicitly
// relative to root; Canonicalize only collapses redundant slashes so
// ustr.Skipelem never has to special-case them.
package bpath

import "ustr"

/// Canonicalize collapses runs of '/' and strips a trailing slash,
/// leaving '.' and '..' elements in place. The fs directory walk looks
/// them up like any other name; it does not resolve them specially.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	out := make(ustr.Ustr, 0, len(p))
	slash := false
	for _, c := range p {
		if c == '/' {
			if slash {
				continue
			}
			slash = true
		} else {
			slash = false
		}
		out = append(out, c)
	}
	for len(out) > 1 && out[len(out)-1] == '/' {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return ustr.MkUstrRoot()
	}
	return out
}
