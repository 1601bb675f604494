package pathwalk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/sectorfs/disk"
	"github.com/hupe1980/sectorfs/internal/dirent"
	"github.com/hupe1980/sectorfs/internal/inode"
	"github.com/hupe1980/sectorfs/internal/layout"
)

// NoInode marks an absent parent or child in a Result.
const NoInode = -1

var (
	// ErrInvalidPath is returned for relative or overlong paths and illegal names.
	ErrInvalidPath = errors.New("pathwalk: invalid path")
	// ErrNotADirectory is returned when a non-final component is a file.
	ErrNotADirectory = errors.New("pathwalk: not a directory")
	// ErrNotFound is returned when a non-final component does not exist.
	ErrNotFound = errors.New("pathwalk: no such directory")
)

// Result is the outcome of resolving a path.
type Result struct {
	// Parent is the directory holding the final component. For "/" it is the
	// root itself.
	Parent int
	// Child is the inode of the final component, or NoInode if it does not exist.
	Child int
	// Name is the final component, empty for "/".
	Name string
}

// Found reports whether the final component exists.
func (r Result) Found() bool { return r.Child != NoInode }

// ValidName reports whether s is a legal file name: 1 to 15 bytes drawn from
// letters, digits, '.', '-' and '_'.
func ValidName(s string) bool {
	if len(s) == 0 || len(s) >= layout.MaxName {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// Split validates path and returns its components. Repeated separators are
// ignored.
func Split(path string, maxPath int) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, path)
	}
	if len(path) > maxPath-1 {
		return nil, fmt.Errorf("%w: longer than %d bytes", ErrInvalidPath, maxPath-1)
	}

	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		if !ValidName(p) {
			return nil, fmt.Errorf("%w: illegal name %q", ErrInvalidPath, p)
		}
		parts = append(parts, p)
	}
	return parts, nil
}

// Resolver translates absolute paths into inode numbers.
type Resolver struct {
	dev     disk.Device
	table   *inode.Table
	entries *dirent.Manager
	maxPath int
}

// NewResolver returns a Resolver over the given inode table and directory manager.
func NewResolver(dev disk.Device, table *inode.Table, entries *dirent.Manager, maxPath int) *Resolver {
	return &Resolver{dev: dev, table: table, entries: entries, maxPath: maxPath}
}

// sectorCache holds the most recently read inode-table sector for the
// duration of one resolution.
type sectorCache struct {
	dev    disk.Device
	table  *inode.Table
	sector int
	buf    []byte
}

func (c *sectorCache) load(idx int) (inode.Inode, error) {
	sector, _, err := c.table.Location(idx)
	if err != nil {
		return inode.Inode{}, err
	}
	if c.buf == nil {
		c.buf = make([]byte, c.dev.SectorSize())
		c.sector = -1
	}
	if sector != c.sector {
		if err := c.dev.ReadSector(sector, c.buf); err != nil {
			c.sector = -1
			return inode.Inode{}, fmt.Errorf("pathwalk: read inode %d: %w", idx, err)
		}
		c.sector = sector
	}
	return c.table.DecodeAt(c.buf, idx), nil
}

// Resolve walks path from the root directory. A missing final component is
// not an error: the result carries its would-be parent and Child NoInode.
func (r *Resolver) Resolve(path string) (Result, error) {
	parts, err := Split(path, r.maxPath)
	if err != nil {
		return Result{}, err
	}
	if len(parts) == 0 {
		return Result{Parent: inode.Root, Child: inode.Root}, nil
	}

	cache := sectorCache{dev: r.dev, table: r.table}
	parent, child := NoInode, inode.Root

	for i, name := range parts {
		if child == NoInode {
			return Result{}, fmt.Errorf("%w: %s", ErrNotFound, "/"+strings.Join(parts[:i], "/"))
		}

		dir, err := cache.load(child)
		if err != nil {
			return Result{}, err
		}
		if !dir.IsDir() {
			return Result{}, fmt.Errorf("%w: %s", ErrNotADirectory, "/"+strings.Join(parts[:i], "/"))
		}

		next, ok, err := r.entries.Lookup(dir, name)
		if err != nil {
			return Result{}, err
		}

		parent = child
		child = NoInode
		if ok {
			child = next
		}
	}

	return Result{Parent: parent, Child: child, Name: parts[len(parts)-1]}, nil
}
