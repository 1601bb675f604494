// Package layout describes the on-disk geometry of a sectorfs volume.
//
// A volume is a flat array of fixed-size sectors split into five regions:
//
//	| superblock | inode bitmap | sector bitmap | inode table | data ... |
//
// Region sizes are derived from a [Geometry] by [Compute]. The encoding is
// little-endian int32 throughout and must stay bit-exact: existing images are
// loaded as-is.
package layout
