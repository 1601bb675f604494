// Package dirent manages directory entries.
//
// A directory's data sectors hold fixed 20-byte records: a NUL-padded name
// of up to 15 bytes followed by the child inode as a little-endian int32.
// The directory inode's size counts valid entries, not bytes. Removal zeroes
// a record in place, so a directory may contain holes; every scan skips empty
// slots and stops once size valid entries have been seen.
package dirent
