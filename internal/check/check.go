package check

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/sectorfs/disk"
	"github.com/hupe1980/sectorfs/internal/bitmap"
	"github.com/hupe1980/sectorfs/internal/dirent"
	"github.com/hupe1980/sectorfs/internal/inode"
	"github.com/hupe1980/sectorfs/internal/layout"
)

// Report summarizes a consistency check. Problems lists every finding in
// human-readable form; the slices break the bitmap findings out by number.
type Report struct {
	Directories int `json:"directories"`
	Files       int `json:"files"`
	DataSectors int `json:"dataSectors"`

	// LeakedInodes are marked used but unreachable from the root.
	LeakedInodes []int `json:"leakedInodes,omitempty"`
	// DanglingInodes are reachable but marked free.
	DanglingInodes []int `json:"danglingInodes,omitempty"`
	// LeakedSectors are marked used but owned by no reachable inode.
	LeakedSectors []int `json:"leakedSectors,omitempty"`
	// DanglingSectors are owned by a reachable inode but marked free.
	DanglingSectors []int `json:"danglingSectors,omitempty"`
	// SharedSectors are owned more than once.
	SharedSectors []int `json:"sharedSectors,omitempty"`

	Problems []string `json:"problems,omitempty"`
}

// OK reports whether the check found nothing wrong.
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

func (r *Report) problemf(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Checker walks a volume from the root and compares what it reaches with
// the allocation bitmaps.
type Checker struct {
	dev     disk.Device
	l       layout.Layout
	table   *inode.Table
	inodes  *bitmap.Region
	sectors *bitmap.Region
}

// New returns a Checker for the volume on dev.
func New(dev disk.Device, l layout.Layout) *Checker {
	return &Checker{
		dev:     dev,
		l:       l,
		table:   inode.NewTable(dev, l),
		inodes:  bitmap.New(dev, l.InodeBitmapStart, l.InodeBitmapSectors, l.MaxInodes),
		sectors: bitmap.New(dev, l.SectorBitmapStart, l.SectorBitmapSectors, l.TotalSectors),
	}
}

type walkState struct {
	report   *Report
	inodes   *roaring.Bitmap
	sectors  *roaring.Bitmap
	shared   *roaring.Bitmap
	pending  []int
	pathOf   map[int]string
	dirBuf   []byte
	capacity int
}

// Run performs the check. Errors are returned only for I/O failures and
// cancellation; inconsistencies go into the report.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	buf := make([]byte, c.dev.SectorSize())
	if err := c.dev.ReadSector(layout.SuperblockSector, buf); err != nil {
		return nil, fmt.Errorf("check: read superblock: %w", err)
	}
	if !layout.ValidSuperblock(buf) {
		report.problemf("superblock: bad magic")
		return report, nil
	}

	st := &walkState{
		report:   report,
		inodes:   roaring.New(),
		sectors:  roaring.New(),
		shared:   roaring.New(),
		pending:  []int{inode.Root},
		pathOf:   map[int]string{inode.Root: "/"},
		dirBuf:   make([]byte, c.dev.SectorSize()),
		capacity: c.l.DirentsPerSector() * c.l.MaxSectorsPerFile,
	}
	st.inodes.Add(inode.Root)
	st.sectors.AddRange(0, uint64(c.l.DataStart))

	for len(st.pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := st.pending[0]
		st.pending = st.pending[1:]
		if err := c.visit(st, idx); err != nil {
			return nil, err
		}
	}

	if st.shared.GetCardinality() > 0 {
		report.SharedSectors = toInts(st.shared)
		report.problemf("sectors owned more than once: %v", report.SharedSectors)
	}

	if err := c.compare(report, c.inodes, st.inodes, "inode", &report.LeakedInodes, &report.DanglingInodes); err != nil {
		return nil, err
	}
	if err := c.compare(report, c.sectors, st.sectors, "sector", &report.LeakedSectors, &report.DanglingSectors); err != nil {
		return nil, err
	}
	return report, nil
}

func (c *Checker) visit(st *walkState, idx int) error {
	n, err := c.table.Load(idx)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	path := st.pathOf[idx]

	allocated := 0
	for _, s := range n.Data {
		if s == 0 {
			continue
		}
		if !c.l.IsDataSector(s) {
			st.report.problemf("%s: sector %d outside the data region", path, s)
			continue
		}
		allocated++
		if !st.sectors.CheckedAdd(uint32(s)) {
			st.shared.Add(uint32(s))
		}
	}
	st.report.DataSectors += allocated

	switch n.Type {
	case inode.File:
		st.report.Files++
		want := (n.Size + c.l.SectorSize - 1) / c.l.SectorSize
		if n.Size < 0 || n.Size > c.l.MaxFileSize() || want != allocated {
			st.report.problemf("%s: size %d does not match %d allocated sectors", path, n.Size, allocated)
		}
		return nil
	case inode.Directory:
		st.report.Directories++
		return c.visitDir(st, idx, n, path)
	default:
		st.report.problemf("%s: unknown inode type %d", path, int32(n.Type))
		return nil
	}
}

func (c *Checker) visitDir(st *walkState, idx int, n inode.Inode, path string) error {
	if n.Size < 0 || n.Size > st.capacity {
		st.report.problemf("%s: entry count %d out of range", path, n.Size)
	}

	valid := 0
	for _, s := range n.Data {
		if !c.l.IsDataSector(s) {
			continue
		}
		if err := c.dev.ReadSector(s, st.dirBuf); err != nil {
			return fmt.Errorf("check: read directory %s sector %d: %w", path, s, err)
		}
		for i := range c.l.DirentsPerSector() {
			e, ok := dirent.Decode(st.dirBuf[i*layout.DirentSize:])
			if !ok {
				continue
			}
			valid++
			childPath := joinPath(path, e.Name)

			switch {
			case e.Inode <= inode.Root || e.Inode >= c.l.MaxInodes:
				st.report.problemf("%s: entry refers to invalid inode %d", childPath, e.Inode)
			case !st.inodes.CheckedAdd(uint32(e.Inode)):
				st.report.problemf("%s: inode %d already linked at %s", childPath, e.Inode, st.pathOf[e.Inode])
			default:
				st.pathOf[e.Inode] = childPath
				st.pending = append(st.pending, e.Inode)
			}
		}
	}

	if valid != n.Size {
		st.report.problemf("%s: size says %d entries, found %d", path, n.Size, valid)
	}
	return nil
}

// compare diffs the on-disk bitmap against the reachable set.
func (c *Checker) compare(report *Report, region *bitmap.Region, reachable *roaring.Bitmap, what string, leaked, dangling *[]int) error {
	marked := roaring.New()
	if err := region.Each(func(bit int) { marked.Add(uint32(bit)) }); err != nil {
		return fmt.Errorf("check: %w", err)
	}

	if l := roaring.AndNot(marked, reachable); !l.IsEmpty() {
		*leaked = toInts(l)
		report.problemf("%d %ss marked used but unreachable: %v", len(*leaked), what, *leaked)
	}
	if d := roaring.AndNot(reachable, marked); !d.IsEmpty() {
		*dangling = toInts(d)
		report.problemf("%d %ss in use but marked free: %v", len(*dangling), what, *dangling)
	}
	return nil
}

func toInts(b *roaring.Bitmap) []int {
	out := make([]int, 0, b.GetCardinality())
	it := b.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
