// Package permission implements the role check that runs before ownership
// resolution: a frozen registry of named permissions, a 64-bit [Mask] per
// role, and superuser roles that pass every check.
//
// The package is pure in-memory state with no I/O and no imports from other
// campusAuth packages.
package permission
