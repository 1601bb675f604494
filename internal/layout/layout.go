package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Magic identifies a formatted volume. It occupies the first four bytes
	// of the superblock, little-endian.
	Magic uint32 = 0xdeadbeef

	// SuperblockSector is the sector holding the magic number.
	SuperblockSector = 0

	// MaxName is the size of the on-disk name field including the terminating NUL.
	MaxName = 16

	// DirentSize is the encoded size of a directory entry: name + int32 inode.
	DirentSize = MaxName + 4

	// inodeHeaderSize covers the size and type int32 fields of an inode record.
	inodeHeaderSize = 8
)

// ErrInvalidGeometry is returned when a Geometry cannot describe a volume.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Geometry holds the constants a volume is formatted with.
type Geometry struct {
	SectorSize        int `yaml:"sectorSize"`
	TotalSectors      int `yaml:"totalSectors"`
	MaxInodes         int `yaml:"maxInodes"`
	MaxSectorsPerFile int `yaml:"maxSectorsPerFile"`
	MaxOpenFiles      int `yaml:"maxOpenFiles"`
	MaxPath           int `yaml:"maxPath"`
}

// DefaultGeometry returns the geometry of the classic 5MB volume:
// 10000 sectors of 512 bytes, 1000 inodes, 30 sectors per file.
func DefaultGeometry() Geometry {
	return Geometry{
		SectorSize:        512,
		TotalSectors:      10000,
		MaxInodes:         1000,
		MaxSectorsPerFile: 30,
		MaxOpenFiles:      256,
		MaxPath:           256,
	}
}

// InodeRecordSize is the encoded size of one inode record.
func (g Geometry) InodeRecordSize() int {
	return inodeHeaderSize + 4*g.MaxSectorsPerFile
}

// InodesPerSector is the number of inode records per inode-table sector.
// Records never straddle a sector boundary.
func (g Geometry) InodesPerSector() int {
	return g.SectorSize / g.InodeRecordSize()
}

// DirentsPerSector is the number of directory entries per data sector.
func (g Geometry) DirentsPerSector() int {
	return g.SectorSize / DirentSize
}

// MaxFileSize is the largest byte count a file can hold.
func (g Geometry) MaxFileSize() int {
	return g.MaxSectorsPerFile * g.SectorSize
}

// ImageSize is the exact byte length of a persisted volume image.
func (g Geometry) ImageSize() int64 {
	return int64(g.SectorSize) * int64(g.TotalSectors)
}

// Validate reports whether the geometry describes a usable volume.
func (g Geometry) Validate() error {
	switch {
	case g.SectorSize < DirentSize || g.SectorSize < 4:
		return fmt.Errorf("%w: sector size %d too small", ErrInvalidGeometry, g.SectorSize)
	case g.MaxSectorsPerFile < 1:
		return fmt.Errorf("%w: max sectors per file must be positive", ErrInvalidGeometry)
	case g.InodeRecordSize() > g.SectorSize:
		return fmt.Errorf("%w: inode record (%d bytes) does not fit a sector", ErrInvalidGeometry, g.InodeRecordSize())
	case g.MaxInodes < 1:
		return fmt.Errorf("%w: max inodes must be positive", ErrInvalidGeometry)
	case g.MaxOpenFiles < 1:
		return fmt.Errorf("%w: max open files must be positive", ErrInvalidGeometry)
	case g.MaxPath < 2:
		return fmt.Errorf("%w: max path must allow at least \"/\"", ErrInvalidGeometry)
	}
	l := Compute(g)
	if l.DataStart >= g.TotalSectors {
		return fmt.Errorf("%w: metadata needs %d sectors, volume has %d", ErrInvalidGeometry, l.DataStart, g.TotalSectors)
	}
	return nil
}

// Layout is the sector map derived from a Geometry.
type Layout struct {
	Geometry

	InodeBitmapStart   int
	InodeBitmapSectors int

	SectorBitmapStart   int
	SectorBitmapSectors int

	InodeTableStart   int
	InodeTableSectors int

	DataStart int
}

// Compute derives the region table for g. It does not validate g.
func Compute(g Geometry) Layout {
	l := Layout{Geometry: g}

	l.InodeBitmapStart = SuperblockSector + 1
	l.InodeBitmapSectors = ceilDiv(ceilDiv(g.MaxInodes, 8), g.SectorSize)

	l.SectorBitmapStart = l.InodeBitmapStart + l.InodeBitmapSectors
	l.SectorBitmapSectors = ceilDiv(ceilDiv(g.TotalSectors, 8), g.SectorSize)

	l.InodeTableStart = l.SectorBitmapStart + l.SectorBitmapSectors
	if ips := g.InodesPerSector(); ips > 0 {
		l.InodeTableSectors = ceilDiv(g.MaxInodes, ips)
	}

	l.DataStart = l.InodeTableStart + l.InodeTableSectors
	return l
}

// InodeLocation returns the inode-table sector and the byte offset inside it
// holding inode idx.
func (l Layout) InodeLocation(idx int) (sector, offset int) {
	ips := l.InodesPerSector()
	return l.InodeTableStart + idx/ips, (idx % ips) * l.InodeRecordSize()
}

// IsDataSector reports whether s lies in the data region.
func (l Layout) IsDataSector(s int) bool {
	return s >= l.DataStart && s < l.TotalSectors
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// EncodeSuperblock writes the magic into a zeroed superblock buffer.
func EncodeSuperblock(buf []byte) {
	clear(buf)
	binary.LittleEndian.PutUint32(buf, Magic)
}

// ValidSuperblock reports whether buf starts with the magic number.
func ValidSuperblock(buf []byte) bool {
	return len(buf) >= 4 && binary.LittleEndian.Uint32(buf) == Magic
}
