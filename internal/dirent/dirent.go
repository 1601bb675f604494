package dirent

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/sectorfs/disk"
	"github.com/hupe1980/sectorfs/internal/bitmap"
	"github.com/hupe1980/sectorfs/internal/inode"
	"github.com/hupe1980/sectorfs/internal/layout"
)

var (
	// ErrNotFound is returned by Remove when the child has no entry.
	ErrNotFound = errors.New("dirent: entry not found")
	// ErrDirectoryFull is returned when the next entry would need a sector
	// beyond MaxSectorsPerFile.
	ErrDirectoryFull = errors.New("dirent: directory full")
	// ErrDiskFull is returned when no data sector is left for a new group.
	ErrDiskFull = errors.New("dirent: no free sector")
	// ErrInvalidName is returned for names that do not fit the name field.
	ErrInvalidName = errors.New("dirent: invalid name")
)

// Entry is a decoded directory entry.
type Entry struct {
	Name  string
	Inode int
}

// Decode parses the entry at the start of b. ok is false for an empty slot.
func Decode(b []byte) (e Entry, ok bool) {
	if b[0] == 0 {
		return Entry{}, false
	}
	name := b[:layout.MaxName]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return Entry{
		Name:  string(name),
		Inode: int(int32(binary.LittleEndian.Uint32(b[layout.MaxName:]))),
	}, true
}

// Encode writes e at the start of b, NUL-padding the name.
func Encode(b []byte, e Entry) {
	clear(b[:layout.DirentSize])
	copy(b, e.Name)
	binary.LittleEndian.PutUint32(b[layout.MaxName:], uint32(int32(e.Inode)))
}

// Manager edits directory contents stored in data sectors.
type Manager struct {
	dev     disk.Device
	table   *inode.Table
	sectors *bitmap.Region
	l       layout.Layout
}

// NewManager returns a Manager allocating new directory sectors from sectors.
func NewManager(dev disk.Device, table *inode.Table, sectors *bitmap.Region, l layout.Layout) *Manager {
	return &Manager{dev: dev, table: table, sectors: sectors, l: l}
}

// slot identifies an entry position: data group and index inside the sector.
type slot struct {
	group int
	index int
}

// scan visits the valid entries of n in on-disk order until n.Size of them
// have been seen or fn returns false. Empty slots left by Remove are skipped
// without counting. last is the position of the last valid entry visited.
func (m *Manager) scan(n inode.Inode, fn func(s slot, e Entry) bool) (last slot, found bool, err error) {
	per := m.l.DirentsPerSector()
	buf := make([]byte, m.dev.SectorSize())
	seen := 0

	for g, sector := range n.Data {
		if seen >= n.Size || sector == 0 {
			break
		}
		if err := m.dev.ReadSector(sector, buf); err != nil {
			return slot{}, false, fmt.Errorf("dirent: read sector %d: %w", sector, err)
		}
		for i := 0; i < per && seen < n.Size; i++ {
			e, ok := Decode(buf[i*layout.DirentSize:])
			if !ok {
				continue
			}
			seen++
			last, found = slot{group: g, index: i}, true
			if !fn(last, e) {
				return last, true, nil
			}
		}
	}
	return last, found, nil
}

// Lookup returns the inode of the first entry of dir n named name.
func (m *Manager) Lookup(n inode.Inode, name string) (int, bool, error) {
	child, ok := 0, false
	_, _, err := m.scan(n, func(_ slot, e Entry) bool {
		if e.Name == name {
			child, ok = e.Inode, true
			return false
		}
		return true
	})
	return child, ok, err
}

// List returns the valid entries of directory idx in scan order.
func (m *Manager) List(idx int) ([]Entry, error) {
	n, err := m.table.Load(idx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, n.Size)
	_, _, err = m.scan(n, func(_ slot, e Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries, err
}

// Append adds name -> child to directory parent, one slot past its last
// valid entry.
func (m *Manager) Append(parent int, name string, child int) error {
	if len(name) == 0 || len(name) >= layout.MaxName {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	n, err := m.table.Load(parent)
	if err != nil {
		return err
	}

	next := slot{}
	last, found, err := m.scan(n, func(slot, Entry) bool { return true })
	if err != nil {
		return err
	}
	if found {
		next = slot{group: last.group, index: last.index + 1}
		if next.index == m.l.DirentsPerSector() {
			next = slot{group: last.group + 1}
		}
	}

	if next.group >= m.l.MaxSectorsPerFile {
		return ErrDirectoryFull
	}

	buf := make([]byte, m.dev.SectorSize())
	sector := n.Data[next.group]
	if sector == 0 {
		sector, err = m.sectors.FindFirstUnused()
		if err != nil {
			if errors.Is(err, bitmap.ErrExhausted) {
				return ErrDiskFull
			}
			return err
		}
		// buf is still zero.
		if err := m.dev.WriteSector(sector, buf); err != nil {
			return fmt.Errorf("dirent: zero sector %d: %w", sector, err)
		}
		n.Data[next.group] = sector
	} else if err := m.dev.ReadSector(sector, buf); err != nil {
		return fmt.Errorf("dirent: read sector %d: %w", sector, err)
	}

	Encode(buf[next.index*layout.DirentSize:], Entry{Name: name, Inode: child})
	if err := m.dev.WriteSector(sector, buf); err != nil {
		return fmt.Errorf("dirent: write sector %d: %w", sector, err)
	}

	n.Size++
	return m.table.Store(parent, n)
}

// Remove zeroes the entry of child in directory parent. Entries are not
// compacted; the freed slot is skipped by later scans.
func (m *Manager) Remove(parent, child int) error {
	n, err := m.table.Load(parent)
	if err != nil {
		return err
	}

	per := m.l.DirentsPerSector()
	buf := make([]byte, m.dev.SectorSize())

	for _, sector := range n.Data {
		if sector == 0 {
			continue
		}
		if err := m.dev.ReadSector(sector, buf); err != nil {
			return fmt.Errorf("dirent: read sector %d: %w", sector, err)
		}
		for i := range per {
			rec := buf[i*layout.DirentSize:]
			if e, ok := Decode(rec); !ok || e.Inode != child {
				continue
			}
			clear(rec[:layout.DirentSize])
			if err := m.dev.WriteSector(sector, buf); err != nil {
				return fmt.Errorf("dirent: write sector %d: %w", sector, err)
			}
			n.Size--
			return m.table.Store(parent, n)
		}
	}
	return fmt.Errorf("%w: inode %d in directory %d", ErrNotFound, child, parent)
}
