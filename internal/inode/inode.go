package inode

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/sectorfs/disk"
	"github.com/hupe1980/sectorfs/internal/layout"
)

// ErrOutOfRange is returned for inode indices outside [0, MaxInodes).
var ErrOutOfRange = errors.New("inode: index out of range")

// Root is the inode of the root directory.
const Root = 0

// Type distinguishes files from directories.
type Type int32

const (
	File      Type = 0
	Directory Type = 1
)

func (t Type) String() string {
	switch t {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return fmt.Sprintf("Type(%d)", int32(t))
	}
}

// Inode is the decoded form of an inode record.
// For files Size counts bytes; for directories it counts entries.
// Data holds absolute sector indices, 0 marking an unused slot.
type Inode struct {
	Size int
	Type Type
	Data []int
}

// IsDir reports whether the inode is a directory.
func (n *Inode) IsDir() bool { return n.Type == Directory }

// Sectors returns the number of allocated data slots.
func (n *Inode) Sectors() int {
	c := 0
	for _, s := range n.Data {
		if s != 0 {
			c++
		}
	}
	return c
}

// Decode parses one record from b.
func Decode(b []byte, slots int) Inode {
	n := Inode{
		Size: int(int32(binary.LittleEndian.Uint32(b[0:]))),
		Type: Type(int32(binary.LittleEndian.Uint32(b[4:]))),
		Data: make([]int, slots),
	}
	for i := range n.Data {
		n.Data[i] = int(int32(binary.LittleEndian.Uint32(b[8+4*i:])))
	}
	return n
}

// Encode writes n into b. Missing data slots encode as 0.
func Encode(b []byte, n Inode, slots int) {
	binary.LittleEndian.PutUint32(b[0:], uint32(int32(n.Size)))
	binary.LittleEndian.PutUint32(b[4:], uint32(int32(n.Type)))
	for i := range slots {
		v := 0
		if i < len(n.Data) {
			v = n.Data[i]
		}
		binary.LittleEndian.PutUint32(b[8+4*i:], uint32(int32(v)))
	}
}

// Table reads and writes inode records in the inode-table region.
type Table struct {
	dev disk.Device
	l   layout.Layout
}

// NewTable returns the inode table of the volume described by l.
func NewTable(dev disk.Device, l layout.Layout) *Table {
	return &Table{dev: dev, l: l}
}

// Slots returns the number of data slots per inode.
func (t *Table) Slots() int { return t.l.MaxSectorsPerFile }

// Location returns the sector holding inode idx and the record offset in it.
func (t *Table) Location(idx int) (sector, offset int, err error) {
	if idx < 0 || idx >= t.l.MaxInodes {
		return 0, 0, fmt.Errorf("%w: %d", ErrOutOfRange, idx)
	}
	sector, offset = t.l.InodeLocation(idx)
	return sector, offset, nil
}

// DecodeAt parses inode idx out of its already-read table sector.
func (t *Table) DecodeAt(sectorBuf []byte, idx int) Inode {
	_, off := t.l.InodeLocation(idx)
	return Decode(sectorBuf[off:], t.l.MaxSectorsPerFile)
}

// Load reads inode idx.
func (t *Table) Load(idx int) (Inode, error) {
	sector, off, err := t.Location(idx)
	if err != nil {
		return Inode{}, err
	}

	buf := make([]byte, t.dev.SectorSize())
	if err := t.dev.ReadSector(sector, buf); err != nil {
		return Inode{}, fmt.Errorf("inode: read %d: %w", idx, err)
	}
	return Decode(buf[off:], t.l.MaxSectorsPerFile), nil
}

// Store writes inode idx with a read-modify-write of its sector.
func (t *Table) Store(idx int, n Inode) error {
	sector, off, err := t.Location(idx)
	if err != nil {
		return err
	}

	buf := make([]byte, t.dev.SectorSize())
	if err := t.dev.ReadSector(sector, buf); err != nil {
		return fmt.Errorf("inode: read %d: %w", idx, err)
	}
	Encode(buf[off:], n, t.l.MaxSectorsPerFile)
	if err := t.dev.WriteSector(sector, buf); err != nil {
		return fmt.Errorf("inode: write %d: %w", idx, err)
	}
	return nil
}

// Reset zeroes inode idx.
func (t *Table) Reset(idx int) error {
	return t.Store(idx, Inode{})
}

// Format zeroes the whole table and writes root as an empty directory.
func (t *Table) Format() error {
	buf := make([]byte, t.dev.SectorSize())
	for s := range t.l.InodeTableSectors {
		if s == 0 {
			clear(buf)
			Encode(buf, Inode{Type: Directory}, t.l.MaxSectorsPerFile)
		} else if s == 1 {
			clear(buf)
		}
		if err := t.dev.WriteSector(t.l.InodeTableStart+s, buf); err != nil {
			return fmt.Errorf("inode: format sector %d: %w", t.l.InodeTableStart+s, err)
		}
	}
	return nil
}
