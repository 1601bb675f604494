package testutil

import (
	"context"
	"testing"

	"github.com/hupe1980/sectorfs/blobstore"
	"github.com/hupe1980/sectorfs/disk"
	"github.com/hupe1980/sectorfs/internal/bitmap"
	"github.com/hupe1980/sectorfs/internal/inode"
	"github.com/hupe1980/sectorfs/internal/layout"
	"github.com/stretchr/testify/require"
)

// SmallGeometry returns a tiny volume that exhausts quickly:
// 128-byte sectors, 64 sectors, 16 inodes, 4 sectors per file.
// Its data region starts at sector 7 and holds 57 sectors.
func SmallGeometry() layout.Geometry {
	return layout.Geometry{
		SectorSize:        128,
		TotalSectors:      64,
		MaxInodes:         16,
		MaxSectorsPerFile: 4,
		MaxOpenFiles:      4,
		MaxPath:           64,
	}
}

// Fixture is a freshly formatted device with handles on its metadata regions.
type Fixture struct {
	Dev     *disk.FaultyDevice
	Store   *blobstore.MemoryStore
	Layout  layout.Layout
	Table   *inode.Table
	Inodes  *bitmap.Region
	Sectors *bitmap.Region
}

// NewFixture formats an in-memory device with geometry g: superblock magic,
// root inode allocated, metadata sectors marked used.
func NewFixture(t testing.TB, g layout.Geometry) *Fixture {
	t.Helper()
	require.NoError(t, g.Validate())

	l := layout.Compute(g)
	store := blobstore.NewMemoryStore()
	dev := disk.NewFaultyDevice(disk.New(store, g.SectorSize, g.TotalSectors))
	require.NoError(t, dev.Init(context.Background()))

	f := &Fixture{
		Dev:     dev,
		Store:   store,
		Layout:  l,
		Table:   inode.NewTable(dev, l),
		Inodes:  bitmap.New(dev, l.InodeBitmapStart, l.InodeBitmapSectors, g.MaxInodes),
		Sectors: bitmap.New(dev, l.SectorBitmapStart, l.SectorBitmapSectors, g.TotalSectors),
	}

	buf := make([]byte, g.SectorSize)
	layout.EncodeSuperblock(buf)
	require.NoError(t, dev.WriteSector(layout.SuperblockSector, buf))
	require.NoError(t, f.Inodes.Init(1))
	require.NoError(t, f.Sectors.Init(l.DataStart))
	require.NoError(t, f.Table.Format())

	dev.ResetCounters()
	return f
}

// AllocInode reserves an inode and stores n in it.
func (f *Fixture) AllocInode(t testing.TB, n inode.Inode) int {
	t.Helper()
	idx, err := f.Inodes.FindFirstUnused()
	require.NoError(t, err)
	require.NoError(t, f.Table.Store(idx, n))
	return idx
}
