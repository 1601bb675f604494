package openfile

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyOpen is returned when every descriptor is in use.
	ErrTooManyOpen = errors.New("openfile: too many open files")
	// ErrBadDescriptor is returned for out-of-range or closed descriptors.
	ErrBadDescriptor = errors.New("openfile: bad file descriptor")
)

// Entry is the state behind one descriptor. Inode 0 marks a free entry;
// the root directory can never be opened, so no file uses it.
type Entry struct {
	Inode int
	// Size caches the file size. It is refreshed from the inode on every
	// read, write and seek.
	Size int
	// Pos is the read cursor.
	Pos int
}

// Table is a fixed-capacity descriptor table.
type Table struct {
	entries []Entry
}

// NewTable returns a table of capacity descriptors.
func NewTable(capacity int) *Table {
	return &Table{entries: make([]Entry, capacity)}
}

// Cap returns the table capacity.
func (t *Table) Cap() int { return len(t.entries) }

// Open takes the lowest free descriptor for inode.
func (t *Table) Open(inode, size int) (int, error) {
	for fd := range t.entries {
		if t.entries[fd].Inode == 0 {
			t.entries[fd] = Entry{Inode: inode, Size: size}
			return fd, nil
		}
	}
	return 0, ErrTooManyOpen
}

// Get returns the entry behind fd.
func (t *Table) Get(fd int) (*Entry, error) {
	if fd < 0 || fd >= len(t.entries) || t.entries[fd].Inode == 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadDescriptor, fd)
	}
	return &t.entries[fd], nil
}

// Close frees fd.
func (t *Table) Close(fd int) error {
	e, err := t.Get(fd)
	if err != nil {
		return err
	}
	*e = Entry{}
	return nil
}

// IsOpen reports whether any descriptor refers to inode.
func (t *Table) IsOpen(inode int) bool {
	for _, e := range t.entries {
		if e.Inode == inode && inode != 0 {
			return true
		}
	}
	return false
}

// InUse returns the number of open descriptors.
func (t *Table) InUse() int {
	n := 0
	for _, e := range t.entries {
		if e.Inode != 0 {
			n++
		}
	}
	return n
}

// Reset closes every descriptor.
func (t *Table) Reset() {
	clear(t.entries)
}
