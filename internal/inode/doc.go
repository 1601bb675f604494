// Package inode encodes inode records and maps inode numbers onto the inode
// table.
//
// A record is size int32 | type int32 | data [MaxSectorsPerFile]int32,
// little-endian. Records are packed InodesPerSector to a sector and never
// straddle a sector boundary.
package inode
