// Package filedata reads, appends, and releases file contents.
//
// A file's bytes live in up to MaxSectorsPerFile data sectors listed in its
// inode; byte i is at offset i%SectorSize of sector Data[i/SectorSize].
// Growth is append-only: writes always land at end of file, filling the tail
// sector before allocating the next one.
package filedata
