package filedata

import (
	"errors"
	"fmt"

	"github.com/hupe1980/sectorfs/disk"
	"github.com/hupe1980/sectorfs/internal/bitmap"
	"github.com/hupe1980/sectorfs/internal/inode"
	"github.com/hupe1980/sectorfs/internal/layout"
	"github.com/hupe1980/sectorfs/internal/openfile"
)

var (
	// ErrFileTooBig is returned when a write would grow a file past MaxFileSize.
	ErrFileTooBig = errors.New("filedata: file too big")
	// ErrNoSpace is returned when the data region runs out mid-write.
	ErrNoSpace = errors.New("filedata: no space left")
	// ErrOutOfRange is returned for seeks before 0 or past the end of file.
	ErrOutOfRange = errors.New("filedata: offset out of range")
)

// Manager moves bytes between callers and a file's data sectors.
type Manager struct {
	dev     disk.Device
	table   *inode.Table
	sectors *bitmap.Region
	l       layout.Layout
}

// NewManager returns a Manager allocating data sectors from sectors.
func NewManager(dev disk.Device, table *inode.Table, sectors *bitmap.Region, l layout.Layout) *Manager {
	return &Manager{dev: dev, table: table, sectors: sectors, l: l}
}

// Read copies bytes from the cursor into p and advances the cursor.
// At end of file it returns 0, nil.
func (m *Manager) Read(e *openfile.Entry, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n, err := m.table.Load(e.Inode)
	if err != nil {
		return 0, err
	}
	e.Size = n.Size

	ss := m.l.SectorSize
	limit := min(n.Size, m.l.MaxFileSize())
	buf := make([]byte, ss)
	copied := 0

	for copied < len(p) && e.Pos < limit {
		sector := n.Data[e.Pos/ss]
		if sector == 0 {
			break
		}
		if err := m.dev.ReadSector(sector, buf); err != nil {
			return copied, fmt.Errorf("filedata: read sector %d: %w", sector, err)
		}

		off := e.Pos % ss
		chunk := min(ss-off, len(p)-copied, limit-e.Pos)
		copy(p[copied:], buf[off:off+chunk])
		copied += chunk
		e.Pos += chunk
	}
	return copied, nil
}

// Write appends p at the end of the file. The tail sector is filled before
// new sectors are allocated. When the data region runs out, the bytes written
// so far are kept and counted, and ErrNoSpace is returned alongside them.
// Size and cursor both advance by the bytes written.
//
// The end of file is taken from the stored inode, so appends through other
// descriptors of the same file are never overwritten.
func (m *Manager) Write(e *openfile.Entry, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n, err := m.table.Load(e.Inode)
	if err != nil {
		return 0, err
	}
	e.Size = n.Size

	if n.Size+len(p) > m.l.MaxFileSize() {
		return 0, fmt.Errorf("%w: %d + %d bytes exceeds %d", ErrFileTooBig, n.Size, len(p), m.l.MaxFileSize())
	}

	written, werr := m.append(&n, n.Size, p)
	if written > 0 {
		if err := m.table.Store(e.Inode, n); err != nil && werr == nil {
			werr = err
		}
	}

	e.Size = n.Size
	e.Pos += written
	return written, werr
}

// append writes p starting at byte pos of n, updating n.Data and n.Size.
func (m *Manager) append(n *inode.Inode, pos int, p []byte) (int, error) {
	ss := m.l.SectorSize
	buf := make([]byte, ss)
	written := 0

	for written < len(p) {
		group, off := pos/ss, pos%ss
		sector := n.Data[group]

		if sector == 0 {
			s, err := m.sectors.FindFirstUnused()
			if errors.Is(err, bitmap.ErrExhausted) {
				return written, ErrNoSpace
			}
			if err != nil {
				return written, err
			}
			sector = s
			n.Data[group] = sector
			clear(buf)
		} else if err := m.dev.ReadSector(sector, buf); err != nil {
			return written, fmt.Errorf("filedata: read sector %d: %w", sector, err)
		}

		chunk := min(ss-off, len(p)-written)
		copy(buf[off:], p[written:written+chunk])
		if err := m.dev.WriteSector(sector, buf); err != nil {
			return written, fmt.Errorf("filedata: write sector %d: %w", sector, err)
		}

		written += chunk
		pos += chunk
		n.Size = pos
	}
	return written, nil
}

// Seek moves the cursor to off, which must lie in [0, size].
func (m *Manager) Seek(e *openfile.Entry, off int) (int, error) {
	n, err := m.table.Load(e.Inode)
	if err != nil {
		return e.Pos, err
	}
	e.Size = n.Size

	if off < 0 || off > e.Size {
		return e.Pos, fmt.Errorf("%w: %d not in [0, %d]", ErrOutOfRange, off, e.Size)
	}
	e.Pos = off
	return off, nil
}

// Free zeroes and releases every data sector of n.
func (m *Manager) Free(n inode.Inode) error {
	zero := make([]byte, m.l.SectorSize)
	for _, sector := range n.Data {
		if sector == 0 {
			continue
		}
		if err := m.dev.WriteSector(sector, zero); err != nil {
			return fmt.Errorf("filedata: zero sector %d: %w", sector, err)
		}
		if err := m.sectors.Clear(sector); err != nil {
			return err
		}
	}
	return nil
}
