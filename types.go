package sectorfs

import (
	"fmt"

	"github.com/hupe1980/sectorfs/internal/check"
	"github.com/hupe1980/sectorfs/internal/inode"
)

// State is the boot state of a Volume.
type State int

const (
	StateUnbooted State = iota
	StateFormatting
	StateValidating
	StateReady
	// StateFailed is entered when Boot fails. Booting again starts over.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnbooted:
		return "unbooted"
	case StateFormatting:
		return "formatting"
	case StateValidating:
		return "validating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FileType distinguishes regular files from directories.
type FileType int

const (
	TypeFile FileType = iota
	TypeDirectory
)

func (t FileType) String() string {
	if t == TypeDirectory {
		return "directory"
	}
	return "file"
}

func fileType(t inode.Type) FileType {
	if t == inode.Directory {
		return TypeDirectory
	}
	return TypeFile
}

// DirEntry is one name in a directory listing.
type DirEntry struct {
	Name  string `json:"name"`
	Inode int    `json:"inode"`
}

// FileInfo describes a file or directory.
type FileInfo struct {
	Name  string   `json:"name"`
	Inode int      `json:"inode"`
	Type  FileType `json:"type"`
	// Size is a byte count for files and an entry count for directories.
	Size    int `json:"size"`
	Sectors int `json:"sectors"`
}

// IsDir reports whether fi describes a directory.
func (fi FileInfo) IsDir() bool { return fi.Type == TypeDirectory }

// Usage reports how much of the volume is allocated.
type Usage struct {
	Inodes      int `json:"inodes"`
	UsedInodes  int `json:"usedInodes"`
	DataSectors int `json:"dataSectors"`
	UsedSectors int `json:"usedSectors"`
	SectorSize  int `json:"sectorSize"`
}

// FreeInodes returns the number of unallocated inodes.
func (u Usage) FreeInodes() int { return u.Inodes - u.UsedInodes }

// FreeSectors returns the number of unallocated data sectors.
func (u Usage) FreeSectors() int { return u.DataSectors - u.UsedSectors }

// FreeBytes returns the capacity of the unallocated data sectors.
func (u Usage) FreeBytes() int64 { return int64(u.FreeSectors()) * int64(u.SectorSize) }

// CheckReport is the result of Volume.Check.
type CheckReport = check.Report
