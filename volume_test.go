package sectorfs_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/sectorfs"
	"github.com/hupe1980/sectorfs/blobstore"
	"github.com/hupe1980/sectorfs/disk"
	"github.com/hupe1980/sectorfs/internal/layout"
	"github.com/hupe1980/sectorfs/internal/pathwalk"
	"github.com/hupe1980/sectorfs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const volName = "vol.img"

func newVolume(t *testing.T, optFns ...sectorfs.Option) (*sectorfs.Volume, *blobstore.MemoryStore) {
	t.Helper()
	store := blobstore.NewMemoryStore()
	opts := append([]sectorfs.Option{
		sectorfs.WithGeometry(testutil.SmallGeometry()),
		sectorfs.WithStore(store),
	}, optFns...)

	v, err := sectorfs.New(opts...)
	require.NoError(t, err)
	require.NoError(t, v.Boot(context.Background(), volName))
	return v, store
}

func newFaultyVolume(t *testing.T) (*sectorfs.Volume, *disk.FaultyDevice, *blobstore.MemoryStore) {
	t.Helper()
	g := testutil.SmallGeometry()
	store := blobstore.NewMemoryStore()
	dev := disk.NewFaultyDevice(disk.New(store, g.SectorSize, g.TotalSectors))

	v, err := sectorfs.New(sectorfs.WithGeometry(g), sectorfs.WithDevice(dev))
	require.NoError(t, err)
	return v, dev, store
}

func image(t *testing.T, store blobstore.BlobStore, name string) []byte {
	t.Helper()
	blob, err := store.Open(context.Background(), name)
	require.NoError(t, err)
	defer blob.Close()

	b, err := blob.(blobstore.Mappable).Bytes()
	require.NoError(t, err)
	return append([]byte(nil), b...)
}

func writeFile(t *testing.T, v *sectorfs.Volume, path string, data []byte) {
	t.Helper()
	require.NoError(t, v.CreateFile(path))
	fd, err := v.OpenFile(path)
	require.NoError(t, err)
	n, err := v.WriteFile(fd, data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, v.CloseFile(fd))
}

func readAll(t *testing.T, v *sectorfs.Volume, path string) []byte {
	t.Helper()
	fd, err := v.OpenFile(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, v.CloseFile(fd)) }()

	out := []byte{}
	buf := make([]byte, 100)
	for {
		n, err := v.ReadFile(fd, buf)
		require.NoError(t, err)
		if n == 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

func TestNew_InvalidGeometry(t *testing.T) {
	g := testutil.SmallGeometry()
	g.MaxSectorsPerFile = 0
	_, err := sectorfs.New(sectorfs.WithGeometry(g))
	assert.ErrorIs(t, err, layout.ErrInvalidGeometry)

	store := blobstore.NewMemoryStore()
	_, err = sectorfs.New(
		sectorfs.WithGeometry(testutil.SmallGeometry()),
		sectorfs.WithDevice(disk.New(store, 512, 10000)),
	)
	assert.ErrorIs(t, err, layout.ErrInvalidGeometry)
}

func TestBoot_FormatsFreshVolume(t *testing.T) {
	v, store := newVolume(t)
	g := v.Geometry()

	assert.Equal(t, sectorfs.StateReady, v.State())
	assert.Equal(t, volName, v.Name())

	img := image(t, store, volName)
	require.Len(t, img, int(g.ImageSize()))
	assert.Equal(t, []byte{0xef, 0xbe, 0xad, 0xde}, img[:4])

	u, err := v.Usage()
	require.NoError(t, err)
	assert.Equal(t, 1, u.UsedInodes)
	assert.Equal(t, 0, u.UsedSectors)
	assert.Equal(t, 57, u.DataSectors)

	entries, err := v.ReadDirectory("/", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	fi, err := v.Stat("/")
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
	assert.Equal(t, 0, fi.Inode)
}

func TestBoot_Idempotent(t *testing.T) {
	v, store := newVolume(t)
	ctx := context.Background()

	require.NoError(t, v.CreateDirectory("/docs"))
	writeFile(t, v, "/docs/a.txt", testutil.Pattern(300))
	require.NoError(t, v.Sync(ctx))
	first := image(t, store, volName)

	// Reboot the same volume and a fresh one against the same store.
	require.NoError(t, v.Boot(ctx, volName))
	require.NoError(t, v.Sync(ctx))
	assert.Equal(t, first, image(t, store, volName))

	w, err := sectorfs.New(sectorfs.WithGeometry(testutil.SmallGeometry()), sectorfs.WithStore(store))
	require.NoError(t, err)
	require.NoError(t, w.Boot(ctx, volName))
	require.NoError(t, w.Sync(ctx))
	assert.Equal(t, first, image(t, store, volName))

	assert.Equal(t, testutil.Pattern(300), readAll(t, w, "/docs/a.txt"))
}

func TestBoot_DiscardsUnsyncedChanges(t *testing.T) {
	v, _ := newVolume(t)
	require.NoError(t, v.CreateFile("/tmp"))

	require.NoError(t, v.Boot(context.Background(), volName))
	_, err := v.Stat("/tmp")
	assert.ErrorIs(t, err, sectorfs.ErrNoSuchFile)
}

func TestBoot_DropsDescriptors(t *testing.T) {
	v, _ := newVolume(t)
	ctx := context.Background()
	require.NoError(t, v.CreateFile("/f"))
	require.NoError(t, v.Sync(ctx))

	fd, err := v.OpenFile("/f")
	require.NoError(t, err)
	require.NoError(t, v.Boot(ctx, volName))

	_, err = v.ReadFile(fd, make([]byte, 1))
	assert.ErrorIs(t, err, sectorfs.ErrBadDescriptor)
}

func TestBoot_RejectsInvalidImages(t *testing.T) {
	g := testutil.SmallGeometry()
	tests := []struct {
		name  string
		image []byte
	}{
		{"short", make([]byte, 100)},
		{"long", make([]byte, g.ImageSize()+1)},
		{"bad magic", make([]byte, g.ImageSize())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := blobstore.NewMemoryStore()
			require.NoError(t, store.Put(context.Background(), volName, tt.image))

			v, err := sectorfs.New(sectorfs.WithGeometry(g), sectorfs.WithStore(store))
			require.NoError(t, err)

			err = v.Boot(context.Background(), volName)
			assert.ErrorIs(t, err, sectorfs.ErrGeneral)
			assert.ErrorIs(t, err, sectorfs.ErrInvalidImage)
			assert.Equal(t, sectorfs.StateFailed, v.State())
			assert.Equal(t, err, v.LastError())

			// Nothing works on a failed volume.
			err = v.CreateFile("/a")
			assert.ErrorIs(t, err, sectorfs.ErrGeneral)
			assert.ErrorIs(t, err, sectorfs.ErrNotReady)
		})
	}
}

func TestBoot_DeviceFaults(t *testing.T) {
	tests := []struct {
		name  string
		fault disk.Fault
	}{
		{"init", disk.Fault{FailReadsAfter: -1, FailWritesAfter: -1, FailInit: true}},
		{"load", disk.Fault{FailReadsAfter: -1, FailWritesAfter: -1, FailLoad: true}},
		{"format save", disk.Fault{FailReadsAfter: -1, FailWritesAfter: -1, FailSave: true}},
		{"format write", disk.Fault{FailReadsAfter: -1, FailWritesAfter: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, dev, _ := newFaultyVolume(t)
			dev.SetFault(tt.fault)

			err := v.Boot(context.Background(), volName)
			assert.ErrorIs(t, err, sectorfs.ErrGeneral)
			assert.ErrorIs(t, err, disk.ErrInjected)
			assert.Equal(t, sectorfs.StateFailed, v.State())

			// A failed volume can be booted again.
			dev.SetFault(disk.NoFault())
			require.NoError(t, v.Boot(context.Background(), volName))
			assert.Equal(t, sectorfs.StateReady, v.State())
		})
	}
}

func TestNotBooted(t *testing.T) {
	v, err := sectorfs.New(sectorfs.WithGeometry(testutil.SmallGeometry()))
	require.NoError(t, err)
	assert.Equal(t, sectorfs.StateUnbooted, v.State())

	_, err = v.OpenFile("/a")
	assert.ErrorIs(t, err, sectorfs.ErrGeneral)
	assert.ErrorIs(t, err, sectorfs.ErrNotReady)
	assert.ErrorIs(t, v.Sync(context.Background()), sectorfs.ErrNotReady)
}

func TestRoundTrip(t *testing.T) {
	rng := testutil.NewRNG(42)
	g := testutil.SmallGeometry()

	for _, n := range []int{0, 1, 127, 128, 129, 300, g.MaxSectorsPerFile * g.SectorSize} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			v, _ := newVolume(t)
			data := rng.Bytes(n)

			writeFile(t, v, "/a.txt", data)
			got := readAll(t, v, "/a.txt")
			assert.Equal(t, data, got)

			fi, err := v.Stat("/a.txt")
			require.NoError(t, err)
			assert.Equal(t, n, fi.Size)
			assert.Equal(t, (n+g.SectorSize-1)/g.SectorSize, fi.Sectors)
		})
	}
}

func TestWriteFile_AppendsAcrossCalls(t *testing.T) {
	v, _ := newVolume(t)
	require.NoError(t, v.CreateFile("/log"))
	fd, err := v.OpenFile("/log")
	require.NoError(t, err)

	data := testutil.Pattern(400)
	for off := 0; off < len(data); off += 50 {
		n, err := v.WriteFile(fd, data[off:off+50])
		require.NoError(t, err)
		require.Equal(t, 50, n)
	}

	// The cursor sits at the end after appending.
	n, err := v.ReadFile(fd, make([]byte, 10))
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, v.CloseFile(fd))
	assert.Equal(t, data, readAll(t, v, "/log"))

	fi, err := v.Stat("/log")
	require.NoError(t, err)
	assert.Equal(t, 4, fi.Sectors)
}

func TestWriteFile_SharedInode(t *testing.T) {
	v, _ := newVolume(t)
	require.NoError(t, v.CreateFile("/a.txt"))
	fd1, err := v.OpenFile("/a.txt")
	require.NoError(t, err)
	fd2, err := v.OpenFile("/a.txt")
	require.NoError(t, err)

	for _, w := range []struct {
		fd   int
		data string
	}{
		{fd1, "hello world"},
		{fd2, "XY"},
		{fd1, " again"},
	} {
		n, err := v.WriteFile(w.fd, []byte(w.data))
		require.NoError(t, err)
		require.Equal(t, len(w.data), n)
	}

	want := []byte("hello worldXY again")
	fi, err := v.Stat("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, len(want), fi.Size)

	// The other descriptor sees every append.
	pos, err := v.SeekFile(fd2, len(want))
	require.NoError(t, err)
	assert.Equal(t, len(want), pos)
	_, err = v.SeekFile(fd2, 0)
	require.NoError(t, err)
	got := make([]byte, 64)
	n, err := v.ReadFile(fd2, got)
	require.NoError(t, err)
	assert.Equal(t, want, got[:n])

	// The size limit applies to the file, not to one descriptor's view of it.
	maxSize := v.Geometry().SectorSize * v.Geometry().MaxSectorsPerFile
	_, err = v.WriteFile(fd1, make([]byte, maxSize-len(want)))
	require.NoError(t, err)
	n, err = v.WriteFile(fd2, []byte{1})
	assert.ErrorIs(t, err, sectorfs.ErrFileTooBig)
	assert.Zero(t, n)

	require.NoError(t, v.CloseFile(fd1))
	require.NoError(t, v.CloseFile(fd2))
	assert.Equal(t, want, readAll(t, v, "/a.txt")[:len(want)])

	report, err := v.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK(), report.Problems)
}

func TestWriteFile_TooBig(t *testing.T) {
	v, _ := newVolume(t)
	require.NoError(t, v.CreateFile("/big"))
	fd, err := v.OpenFile("/big")
	require.NoError(t, err)

	_, err = v.WriteFile(fd, testutil.Pattern(500))
	require.NoError(t, err)

	n, err := v.WriteFile(fd, testutil.Pattern(13))
	assert.ErrorIs(t, err, sectorfs.ErrFileTooBig)
	assert.Zero(t, n)

	fi, err := v.Stat("/big")
	require.NoError(t, err)
	assert.Equal(t, 500, fi.Size)

	n, err = v.WriteFile(fd, testutil.Pattern(12))
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestDirectoryAccounting(t *testing.T) {
	v, _ := newVolume(t)
	require.NoError(t, v.CreateDirectory("/d"))
	for _, name := range []string{"1", "2", "3"} {
		require.NoError(t, v.CreateFile("/d/"+name))
	}

	before, err := v.DirectorySize("/d")
	require.NoError(t, err)
	assert.Equal(t, 3*layout.DirentSize, before)

	require.NoError(t, v.UnlinkFile("/d/2"))

	after, err := v.DirectorySize("/d")
	require.NoError(t, err)
	assert.Equal(t, before-layout.DirentSize, after)

	entries, err := v.ReadDirectory("/d", after)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, names(entries))

	// New entries go after the last valid one; the hole stays.
	require.NoError(t, v.CreateFile("/d/4"))
	entries, err = v.ReadDirectory("/d", 1024)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3", "4"}, names(entries))

	for _, name := range []string{"1", "3", "4"} {
		_, err := v.Stat("/d/" + name)
		assert.NoError(t, err, name)
	}
	_, err = v.Stat("/d/2")
	assert.ErrorIs(t, err, sectorfs.ErrNoSuchFile)
}

func TestReadDirectory_SpansSectors(t *testing.T) {
	v, _ := newVolume(t)
	require.NoError(t, v.CreateDirectory("/d"))

	// Six entries fit one 128-byte sector.
	var want []string
	for i := range 10 {
		name := fmt.Sprintf("f%02d", i)
		require.NoError(t, v.CreateFile("/d/"+name))
		want = append(want, name)
	}

	entries, err := v.ReadDirectory("/d", 10*layout.DirentSize)
	require.NoError(t, err)
	assert.Equal(t, want, names(entries))

	fi, err := v.Stat("/d")
	require.NoError(t, err)
	assert.Equal(t, 10, fi.Size)
	assert.Equal(t, 2, fi.Sectors)
}

func TestReadDirectory_Errors(t *testing.T) {
	v, _ := newVolume(t)
	require.NoError(t, v.CreateDirectory("/d"))
	require.NoError(t, v.CreateFile("/d/a"))
	require.NoError(t, v.CreateFile("/f"))

	_, err := v.ReadDirectory("/d", layout.DirentSize-1)
	assert.ErrorIs(t, err, sectorfs.ErrBufferTooSmall)

	_, err = v.ReadDirectory("/missing", 100)
	assert.ErrorIs(t, err, sectorfs.ErrNoSuchDirectory)

	_, err = v.ReadDirectory("/f", 100)
	assert.ErrorIs(t, err, sectorfs.ErrGeneral)

	_, err = v.DirectorySize("/missing")
	assert.ErrorIs(t, err, sectorfs.ErrNoSuchDirectory)

	_, err = v.DirectorySize("/f")
	assert.ErrorIs(t, err, sectorfs.ErrGeneral)
}

func TestExhaustion(t *testing.T) {
	v, _ := newVolume(t)
	g := v.Geometry()

	// 15 files use every inode; the root listing takes 3 sectors.
	for i := 1; i < g.MaxInodes; i++ {
		require.NoError(t, v.CreateFile(fmt.Sprintf("/f%d", i)))
	}
	err := v.CreateFile("/one-more")
	assert.ErrorIs(t, err, sectorfs.ErrNoSpace)

	full := testutil.Pattern(g.MaxSectorsPerFile * g.SectorSize)
	total := 0
	var lastErr error
	for i := 1; i < g.MaxInodes; i++ {
		path := fmt.Sprintf("/f%d", i)
		fd, err := v.OpenFile(path)
		require.NoError(t, err)

		n, err := v.WriteFile(fd, full)
		total += n
		require.NoError(t, v.CloseFile(fd))

		if err != nil {
			assert.ErrorIs(t, err, sectorfs.ErrNoSpace)
			lastErr = err
			// The bytes that fit are kept.
			assert.Equal(t, full[:n], readAll(t, v, path))
		}
	}
	require.Error(t, lastErr)
	assert.Equal(t, lastErr, v.LastError())

	u, err := v.Usage()
	require.NoError(t, err)
	assert.Zero(t, u.FreeSectors())
	assert.Equal(t, (u.DataSectors-3)*g.SectorSize, total)

	// Every sector is owned exactly once.
	report, err := v.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Problems)
	assert.Empty(t, report.SharedSectors)
}

func TestCreate_ReleasesInodeWhenParentCannotGrow(t *testing.T) {
	g := testutil.SmallGeometry()
	g.TotalSectors = 26
	v, _ := newVolume(t, sectorfs.WithGeometry(g))

	require.NoError(t, v.CreateDirectory("/d"))
	for i := range layout.Compute(g).DirentsPerSector() {
		require.NoError(t, v.CreateFile(fmt.Sprintf("/d/%d", i)))
	}

	// Fill the data region.
	for i := 0; ; i++ {
		path := fmt.Sprintf("/fill%d", i)
		require.NoError(t, v.CreateFile(path))
		fd, err := v.OpenFile(path)
		require.NoError(t, err)
		_, err = v.WriteFile(fd, testutil.Pattern(g.MaxSectorsPerFile*g.SectorSize))
		require.NoError(t, v.CloseFile(fd))
		if err != nil {
			require.ErrorIs(t, err, sectorfs.ErrNoSpace)
			break
		}
	}

	before, err := v.Usage()
	require.NoError(t, err)

	err = v.CreateFile("/d/extra")
	assert.ErrorIs(t, err, sectorfs.ErrNoSpace)

	after, err := v.Usage()
	require.NoError(t, err)
	assert.Equal(t, before.UsedInodes, after.UsedInodes)

	report, err := v.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Problems)
}

func TestUnlinkFile_InUse(t *testing.T) {
	v, _ := newVolume(t)
	writeFile(t, v, "/a.txt", testutil.Pattern(200))

	fd, err := v.OpenFile("/a.txt")
	require.NoError(t, err)

	err = v.UnlinkFile("/a.txt")
	assert.ErrorIs(t, err, sectorfs.ErrFileInUse)
	_, err = v.Stat("/a.txt")
	assert.NoError(t, err)

	require.NoError(t, v.CloseFile(fd))
	require.NoError(t, v.UnlinkFile("/a.txt"))

	_, err = v.Stat("/a.txt")
	assert.ErrorIs(t, err, sectorfs.ErrNoSuchFile)

	u, err := v.Usage()
	require.NoError(t, err)
	assert.Equal(t, 1, u.UsedInodes)
	// Only the root listing sector remains.
	assert.Equal(t, 1, u.UsedSectors)
}

func TestUnlink_Errors(t *testing.T) {
	v, _ := newVolume(t)
	require.NoError(t, v.CreateDirectory("/d"))
	require.NoError(t, v.CreateFile("/d/x"))
	require.NoError(t, v.CreateDirectory("/e"))
	require.NoError(t, v.CreateFile("/f"))

	tests := []struct {
		name   string
		unlink func(string) error
		path   string
		want   error
	}{
		{"missing file", v.UnlinkFile, "/nope", sectorfs.ErrNoSuchFile},
		{"missing directory", v.UnlinkDirectory, "/nope", sectorfs.ErrNoSuchDirectory},
		{"missing parent", v.UnlinkFile, "/nope/x", sectorfs.ErrGeneral},
		{"invalid path", v.UnlinkFile, "f", sectorfs.ErrGeneral},
		{"root", v.UnlinkDirectory, "/", sectorfs.ErrGeneral},
		{"file as directory", v.UnlinkDirectory, "/f", sectorfs.ErrGeneral},
		{"directory as file", v.UnlinkFile, "/e", sectorfs.ErrGeneral},
		{"not empty", v.UnlinkDirectory, "/d", sectorfs.ErrDirectoryNotEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.unlink(tt.path), tt.want)
		})
	}

	require.NoError(t, v.UnlinkFile("/d/x"))
	require.NoError(t, v.UnlinkDirectory("/d"))
	require.NoError(t, v.UnlinkDirectory("/e"))

	entries, err := v.ReadDirectory("/", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"f"}, names(entries))

	report, err := v.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Problems)
}

func TestPathLegality(t *testing.T) {
	v, _ := newVolume(t)

	err := v.CreateFile("/bad name!.txt")
	assert.ErrorIs(t, err, sectorfs.ErrCreate)
	assert.ErrorIs(t, err, pathwalk.ErrInvalidPath)

	err = v.CreateDirectory("/a/b/c")
	assert.ErrorIs(t, err, sectorfs.ErrCreate)
	assert.ErrorIs(t, err, pathwalk.ErrNotFound)

	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"relative", "a", false},
		{"empty", "", false},
		{"sixteen bytes", "/abcdefghijklmnop", false},
		{"fifteen bytes", "/abcdefghijklmno", true},
		{"all legal characters", "/Az09._-", true},
		{"repeated separators", "//x//", true},
		{"root", "/", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.CreateFile(tt.path)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, sectorfs.ErrCreate)
			}
		})
	}

	// "//x//" created "/x".
	_, err = v.Stat("/x")
	assert.NoError(t, err)

	err = v.CreateFile("/x/y")
	assert.ErrorIs(t, err, sectorfs.ErrCreate)
	assert.ErrorIs(t, err, pathwalk.ErrNotADirectory)

	err = v.CreateFile("/x")
	assert.ErrorIs(t, err, sectorfs.ErrCreate)
}

func TestPathLegality_MaxPath(t *testing.T) {
	v, _ := newVolume(t)
	g := v.Geometry()

	// Nest directories until the path is one byte short of MaxPath.
	path := ""
	for len(path)+len("/abcdefghijklmn") <= g.MaxPath-1 {
		path += "/abcdefghijklmn"
		require.NoError(t, v.CreateDirectory(path))
	}
	for len(path) < g.MaxPath-1 {
		// Pad the last component so the path hits the limit exactly.
		rest := g.MaxPath - 1 - len(path)
		if rest < 2 {
			break
		}
		leaf := path + "/" + "abcdefghijklmno"[:min(rest-1, 15)]
		require.NoError(t, v.CreateFile(leaf))
		path = leaf
	}
	require.Len(t, path, g.MaxPath-1)

	err := v.CreateFile(path + "x")
	assert.ErrorIs(t, err, sectorfs.ErrCreate)
	assert.ErrorIs(t, err, pathwalk.ErrInvalidPath)
}

func TestOpenFile_Errors(t *testing.T) {
	v, _ := newVolume(t)
	require.NoError(t, v.CreateFile("/f"))
	require.NoError(t, v.CreateDirectory("/d"))

	_, err := v.OpenFile("/missing")
	assert.ErrorIs(t, err, sectorfs.ErrNoSuchFile)

	_, err = v.OpenFile("bad")
	assert.ErrorIs(t, err, sectorfs.ErrNoSuchFile)

	_, err = v.OpenFile("/d")
	assert.ErrorIs(t, err, sectorfs.ErrGeneral)

	// The same file may be open several times.
	var fds []int
	for range v.Geometry().MaxOpenFiles {
		fd, err := v.OpenFile("/f")
		require.NoError(t, err)
		fds = append(fds, fd)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, fds)

	_, err = v.OpenFile("/f")
	assert.ErrorIs(t, err, sectorfs.ErrTooManyOpenFiles)

	// Descriptors are reused lowest first.
	require.NoError(t, v.CloseFile(2))
	fd, err := v.OpenFile("/f")
	require.NoError(t, err)
	assert.Equal(t, 2, fd)
}

func TestDescriptor_Errors(t *testing.T) {
	v, _ := newVolume(t)
	require.NoError(t, v.CreateFile("/f"))
	fd, err := v.OpenFile("/f")
	require.NoError(t, err)
	require.NoError(t, v.CloseFile(fd))

	for _, bad := range []int{-1, fd, 99} {
		t.Run(fmt.Sprint(bad), func(t *testing.T) {
			_, err := v.ReadFile(bad, make([]byte, 1))
			assert.ErrorIs(t, err, sectorfs.ErrBadDescriptor)
			_, err = v.WriteFile(bad, []byte("x"))
			assert.ErrorIs(t, err, sectorfs.ErrBadDescriptor)
			_, err = v.SeekFile(bad, 0)
			assert.ErrorIs(t, err, sectorfs.ErrBadDescriptor)
			assert.ErrorIs(t, v.CloseFile(bad), sectorfs.ErrBadDescriptor)
		})
	}
}

func TestSeekBounds(t *testing.T) {
	v, _ := newVolume(t)
	writeFile(t, v, "/s", testutil.Pattern(150))

	fd, err := v.OpenFile("/s")
	require.NoError(t, err)

	_, err = v.SeekFile(fd, -1)
	assert.ErrorIs(t, err, sectorfs.ErrSeekOutOfBounds)
	_, err = v.SeekFile(fd, 151)
	assert.ErrorIs(t, err, sectorfs.ErrSeekOutOfBounds)

	pos, err := v.SeekFile(fd, 150)
	require.NoError(t, err)
	assert.Equal(t, 150, pos)

	n, err := v.ReadFile(fd, make([]byte, 10))
	require.NoError(t, err)
	assert.Zero(t, n)

	pos, err = v.SeekFile(fd, 120)
	require.NoError(t, err)
	assert.Equal(t, 120, pos)

	buf := make([]byte, 100)
	n, err = v.ReadFile(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, testutil.Pattern(150)[120:], buf[:n])
}

func TestLastError(t *testing.T) {
	v, _ := newVolume(t)
	assert.NoError(t, v.LastError())

	err := v.UnlinkFile("/missing")
	require.Error(t, err)
	assert.Equal(t, err, v.LastError())

	// Success does not clear it.
	require.NoError(t, v.CreateFile("/ok"))
	assert.Equal(t, err, v.LastError())

	var fsErr *sectorfs.Error
	require.ErrorAs(t, v.LastError(), &fsErr)
	assert.Equal(t, sectorfs.NoSuchFile, fsErr.Code)
	assert.Equal(t, "/missing", fsErr.Path)
}

func TestDeviceWriteFault(t *testing.T) {
	v, dev, _ := newFaultyVolume(t)
	require.NoError(t, v.Boot(context.Background(), volName))
	require.NoError(t, v.CreateFile("/f"))
	fd, err := v.OpenFile("/f")
	require.NoError(t, err)

	dev.SetFault(disk.Fault{FailReadsAfter: -1, FailWritesAfter: 0})

	err = v.CreateFile("/g")
	assert.ErrorIs(t, err, sectorfs.ErrGeneral)
	assert.ErrorIs(t, err, disk.ErrInjected)

	n, err := v.WriteFile(fd, []byte("hello"))
	assert.ErrorIs(t, err, sectorfs.ErrGeneral)
	assert.Zero(t, n)

	dev.SetFault(disk.Fault{FailReadsAfter: 0, FailWritesAfter: -1})
	_, err = v.ReadDirectory("/", 100)
	assert.ErrorIs(t, err, sectorfs.ErrGeneral)
}

func TestSync_Fault(t *testing.T) {
	v, dev, _ := newFaultyVolume(t)
	require.NoError(t, v.Boot(context.Background(), volName))

	dev.SetFault(disk.Fault{FailReadsAfter: -1, FailWritesAfter: -1, FailSave: true})
	err := v.Sync(context.Background())
	assert.ErrorIs(t, err, sectorfs.ErrGeneral)
	assert.ErrorIs(t, err, disk.ErrInjected)
	assert.Equal(t, sectorfs.StateReady, v.State())
}

func TestUnmount(t *testing.T) {
	v, store := newVolume(t)
	ctx := context.Background()
	writeFile(t, v, "/keep", []byte("persisted"))

	require.NoError(t, v.Unmount(ctx))
	assert.Equal(t, sectorfs.StateUnbooted, v.State())

	_, err := v.Stat("/keep")
	assert.ErrorIs(t, err, sectorfs.ErrNotReady)

	// Unmounting twice is harmless.
	require.NoError(t, v.Unmount(ctx))

	w, err := sectorfs.New(sectorfs.WithGeometry(testutil.SmallGeometry()), sectorfs.WithStore(store))
	require.NoError(t, err)
	require.NoError(t, w.Boot(ctx, volName))
	assert.Equal(t, []byte("persisted"), readAll(t, w, "/keep"))

	require.NoError(t, v.Boot(ctx, volName))
	assert.Equal(t, []byte("persisted"), readAll(t, v, "/keep"))
}

func TestMetrics(t *testing.T) {
	metrics := &sectorfs.BasicMetricsCollector{}
	v, _ := newVolume(t, sectorfs.WithMetricsCollector(metrics))

	writeFile(t, v, "/m", testutil.Pattern(10))
	_ = v.CreateFile("/m")
	_ = readAll(t, v, "/m")
	require.NoError(t, v.UnlinkFile("/m"))
	require.NoError(t, v.Sync(context.Background()))

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.CreateCount)
	assert.Equal(t, int64(1), stats.CreateErrors)
	assert.Equal(t, int64(2), stats.OpenCount)
	assert.Equal(t, int64(1), stats.WriteCount)
	assert.Equal(t, int64(10), stats.WriteBytes)
	assert.Equal(t, int64(2), stats.ReadCount)
	assert.Equal(t, int64(10), stats.ReadBytes)
	assert.Equal(t, int64(1), stats.UnlinkCount)
	assert.Equal(t, int64(1), stats.SyncCount)
}

func TestWithNilOptions(t *testing.T) {
	v, err := sectorfs.New(nil, sectorfs.WithLogger(nil), sectorfs.WithMetricsCollector(nil))
	require.NoError(t, err)
	require.NoError(t, v.Boot(context.Background(), volName))
	assert.Equal(t, sectorfs.DefaultGeometry(), v.Geometry())
	assert.NoError(t, v.CreateFile("/a"))
}

func TestError_Format(t *testing.T) {
	v, _ := newVolume(t)
	err := v.CreateFile("/bad!")
	assert.True(t, errors.Is(err, sectorfs.ErrCreate))
	assert.Contains(t, err.Error(), "sectorfs create file /bad!: create failed")
	assert.False(t, errors.Is(err, sectorfs.ErrGeneral))
}

func names(entries []sectorfs.DirEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestClose_DiscardsChanges(t *testing.T) {
	v, _ := newVolume(t)
	ctx := context.Background()
	require.NoError(t, v.CreateFile("/lost"))

	require.NoError(t, v.Close())
	assert.Equal(t, sectorfs.StateUnbooted, v.State())

	require.NoError(t, v.Boot(ctx, volName))
	_, err := v.Stat("/lost")
	assert.ErrorIs(t, err, sectorfs.ErrNoSuchFile)

	var nilVolume *sectorfs.Volume
	assert.NoError(t, nilVolume.Close())
}
