package disk

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/hupe1980/sectorfs/blobstore"
	"github.com/hupe1980/sectorfs/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisk_SectorIO(t *testing.T) {
	d := New(blobstore.NewMemoryStore(), 64, 8)

	buf := make([]byte, 64)
	assert.ErrorIs(t, d.ReadSector(0, buf), ErrNotInitialized)

	require.NoError(t, d.Init(context.Background()))

	in := bytes.Repeat([]byte{0xab}, 64)
	require.NoError(t, d.WriteSector(7, in))
	require.NoError(t, d.ReadSector(7, buf))
	assert.Equal(t, in, buf)

	require.NoError(t, d.ReadSector(6, buf))
	assert.Equal(t, make([]byte, 64), buf)

	assert.ErrorIs(t, d.ReadSector(8, buf), ErrOutOfRange)
	assert.ErrorIs(t, d.WriteSector(-1, buf), ErrOutOfRange)
	assert.ErrorIs(t, d.ReadSector(0, buf[:10]), ErrShortBuffer)

	// Init zeroes an existing image.
	require.NoError(t, d.Init(context.Background()))
	require.NoError(t, d.ReadSector(7, buf))
	assert.Equal(t, make([]byte, 64), buf)
}

func TestDisk_SaveLoad(t *testing.T) {
	stores := map[string]blobstore.BlobStore{
		"memory":     blobstore.NewMemoryStore(),
		"local":      blobstore.NewLocalStore(t.TempDir()),
		"compressed": blobstore.NewCompressedStore(blobstore.NewMemoryStore(), blobstore.CompressionZSTD),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			d := New(store, 512, 300)

			_, err := d.Load(ctx, "vol.img")
			assert.ErrorIs(t, err, ErrNotExist)

			require.NoError(t, d.Init(ctx))
			sector := bytes.Repeat([]byte("sectorfs"), 64)
			require.NoError(t, d.WriteSector(299, sector))
			require.NoError(t, d.Save(ctx, "vol.img"))

			other := New(store, 512, 300)
			size, err := other.Load(ctx, "vol.img")
			require.NoError(t, err)
			assert.Equal(t, int64(512*300), size)

			buf := make([]byte, 512)
			require.NoError(t, other.ReadSector(299, buf))
			assert.Equal(t, sector, buf)
		})
	}
}

func TestDisk_LoadReportsStoredLength(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "short.img", []byte{1, 2, 3}))

	d := New(store, 64, 4)
	size, err := d.Load(ctx, "short.img")
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	buf := make([]byte, 64)
	require.NoError(t, d.ReadSector(0, buf))
	assert.Equal(t, []byte{1, 2, 3, 0}, buf[:4])
}

func TestDisk_ResourceController(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MaxImageBytes: 1024})

	d := New(blobstore.NewMemoryStore(), 64, 16, WithResourceController(rc))
	require.NoError(t, d.Init(ctx))
	assert.Equal(t, int64(1024), rc.ResidentBytes())

	// A second image does not fit until the first is released.
	other := New(blobstore.NewMemoryStore(), 64, 16, WithResourceController(rc))
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, other.Init(cctx))

	require.NoError(t, d.Close())
	assert.Equal(t, int64(0), rc.ResidentBytes())
	require.NoError(t, other.Init(ctx))
}

func TestFaultyDevice(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewLocalStore(t.TempDir())
	f := NewFaultyDevice(New(store, 64, 8))
	require.NoError(t, f.Init(ctx))

	buf := make([]byte, 64)
	require.NoError(t, f.WriteSector(1, buf))
	require.NoError(t, f.ReadSector(1, buf))
	require.NoError(t, f.ReadSector(1, buf))
	assert.Equal(t, 2, f.Reads())
	assert.Equal(t, 2, f.SectorReads(1))
	assert.Equal(t, 1, f.Writes())

	fault := NoFault()
	fault.FailWritesAfter = 1
	f.SetFault(fault)
	require.NoError(t, f.WriteSector(2, buf))
	assert.ErrorIs(t, f.WriteSector(3, buf), ErrInjected)
	require.NoError(t, f.ReadSector(3, buf))

	fault = NoFault()
	fault.FailSectors = map[int]bool{5: true}
	f.SetFault(fault)
	assert.ErrorIs(t, f.ReadSector(5, buf), ErrInjected)
	require.NoError(t, f.ReadSector(4, buf))

	f.SetFault(Fault{FailReadsAfter: -1, FailWritesAfter: -1, FailSave: true})
	assert.ErrorIs(t, f.Save(ctx, "x.img"), ErrInjected)

	f.SetFault(Fault{FailReadsAfter: -1, FailWritesAfter: -1, FailLoad: true})
	_, err := f.Load(ctx, "x.img")
	assert.ErrorIs(t, err, ErrInjected)

	f.SetFault(NoFault())
	require.NoError(t, f.Save(ctx, filepath.Join("nested", "x.img")))
	require.NoError(t, f.Close())
}
