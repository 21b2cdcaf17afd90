// Package view implements the tenant tag carried in directory entry keys
// and in the inode counter key.
package view

import "strings"

// View is a tenant/user tag shared by every name and key that needs to be
// partitioned from other tenants sharing the same bucket.
type View string

// Separator between a bare name and its view tag in a canonical Name.
const separator = "@"

// Name is a canonicalized, view-tagged directory entry name: the exact
// bytes the backend stores.
type Name string

// NameRef is a name as received from the kernel interface, which may or
// may not already carry a view tag. Canonicalize resolves it to exactly
// one Name.
type NameRef string

// Canonicalize appends v's tag to n, unless n already carries one.
func (n NameRef) Canonicalize(v View) Name {
	s := string(n)
	if idx := strings.LastIndex(s, separator); idx >= 0 {
		return Name(s)
	}
	return Name(s + separator + string(v))
}

// String returns the bare form (used for display and for readdir entries
// when the view tag should not leak to the kernel).
func (n Name) String() string {
	s := string(n)
	if idx := strings.LastIndex(s, separator); idx >= 0 {
		return s[:idx]
	}
	return s
}
