package sectorfs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/sectorfs/disk"
	"github.com/hupe1980/sectorfs/internal/bitmap"
	"github.com/hupe1980/sectorfs/internal/check"
	"github.com/hupe1980/sectorfs/internal/dirent"
	"github.com/hupe1980/sectorfs/internal/filedata"
	"github.com/hupe1980/sectorfs/internal/inode"
	"github.com/hupe1980/sectorfs/internal/layout"
	"github.com/hupe1980/sectorfs/internal/openfile"
	"github.com/hupe1980/sectorfs/internal/pathwalk"
)

// ErrInvalidImage is the cause of a failed boot whose stored image has the
// wrong length or lacks the magic number.
var ErrInvalidImage = errors.New("invalid volume image")

// Volume is a mounted file system over one block device.
//
// A Volume is not safe for concurrent use. Independent volumes may be used
// from different goroutines.
type Volume struct {
	dev     disk.BlockDevice
	layout  layout.Layout
	logger  *Logger
	metrics MetricsCollector

	table    *inode.Table
	inodes   *bitmap.Region
	sectors  *bitmap.Region
	entries  *dirent.Manager
	data     *filedata.Manager
	resolver *pathwalk.Resolver
	files    *openfile.Table

	name    string
	state   State
	lastErr error
}

// New creates an unbooted volume. Call Boot before any other operation.
func New(optFns ...Option) (*Volume, error) {
	o := applyOptions(optFns)

	g := o.geometry
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("sectorfs: %w", err)
	}

	dev := o.device
	if dev == nil {
		dev = disk.New(o.store, g.SectorSize, g.TotalSectors, disk.WithResourceController(o.resource))
	} else if dev.SectorSize() != g.SectorSize || dev.TotalSectors() != g.TotalSectors {
		return nil, fmt.Errorf("sectorfs: %w: device has %d sectors of %d bytes, geometry wants %d of %d",
			layout.ErrInvalidGeometry, dev.TotalSectors(), dev.SectorSize(), g.TotalSectors, g.SectorSize)
	}

	l := layout.Compute(g)
	table := inode.NewTable(dev, l)
	sectors := bitmap.New(dev, l.SectorBitmapStart, l.SectorBitmapSectors, g.TotalSectors)
	entries := dirent.NewManager(dev, table, sectors, l)

	return &Volume{
		dev:      dev,
		layout:   l,
		logger:   o.logger,
		metrics:  o.metricsCollector,
		table:    table,
		inodes:   bitmap.New(dev, l.InodeBitmapStart, l.InodeBitmapSectors, g.MaxInodes),
		sectors:  sectors,
		entries:  entries,
		data:     filedata.NewManager(dev, table, sectors, l),
		resolver: pathwalk.NewResolver(dev, table, entries, g.MaxPath),
		files:    openfile.NewTable(g.MaxOpenFiles),
	}, nil
}

// State returns the boot state.
func (v *Volume) State() State { return v.state }

// Geometry returns the geometry the volume was created with.
func (v *Volume) Geometry() Geometry { return v.layout.Geometry }

// Name returns the image name passed to the last Boot.
func (v *Volume) Name() string { return v.name }

// LastError returns the error of the most recent failed operation. Successful
// operations leave it unchanged.
func (v *Volume) LastError() error { return v.lastErr }

func (v *Volume) setErr(err error) error {
	if err != nil {
		v.lastErr = err
	}
	return err
}

func (v *Volume) ready(op, path string) error {
	if v.state != StateReady {
		return newError(op, path, GeneralError, fmt.Errorf("%w: %s", ErrNotReady, v.state))
	}
	return nil
}

// Boot loads the image name from the store, formatting a fresh volume when it
// does not exist. An existing image must have exactly the geometry's length
// and carry the magic number. All descriptors are dropped.
func (v *Volume) Boot(ctx context.Context, name string) error {
	v.state = StateUnbooted
	v.name = name
	v.files.Reset()

	formatted, err := v.boot(ctx, name)
	if err != nil {
		v.state = StateFailed
		err = translateError("boot", name, err, GeneralError)
	} else {
		v.state = StateReady
	}

	v.logger.LogBoot(ctx, name, formatted, err)
	return v.setErr(err)
}

func (v *Volume) boot(ctx context.Context, name string) (formatted bool, err error) {
	if err := v.dev.Init(ctx); err != nil {
		return false, err
	}

	size, err := v.dev.Load(ctx, name)
	if errors.Is(err, disk.ErrNotExist) {
		v.state = StateFormatting
		return true, v.format(ctx, name)
	}
	if err != nil {
		return false, err
	}

	v.state = StateValidating
	return false, v.validate(size)
}

func (v *Volume) format(ctx context.Context, name string) error {
	buf := make([]byte, v.layout.SectorSize)
	layout.EncodeSuperblock(buf)
	if err := v.dev.WriteSector(layout.SuperblockSector, buf); err != nil {
		return fmt.Errorf("write superblock: %w", err)
	}
	if err := v.inodes.Init(1); err != nil {
		return err
	}
	if err := v.sectors.Init(v.layout.DataStart); err != nil {
		return err
	}
	if err := v.table.Format(); err != nil {
		return err
	}
	return v.dev.Save(ctx, name)
}

func (v *Volume) validate(size int64) error {
	if want := v.layout.ImageSize(); size != want {
		return fmt.Errorf("%w: %d bytes, want %d", ErrInvalidImage, size, want)
	}
	buf := make([]byte, v.layout.SectorSize)
	if err := v.dev.ReadSector(layout.SuperblockSector, buf); err != nil {
		return fmt.Errorf("read superblock: %w", err)
	}
	if !layout.ValidSuperblock(buf) {
		return fmt.Errorf("%w: bad magic", ErrInvalidImage)
	}
	return nil
}

// Sync saves the image under the name it was booted from.
func (v *Volume) Sync(ctx context.Context) error {
	start := time.Now()
	err := v.ready("sync", v.name)
	if err == nil {
		if serr := v.dev.Save(ctx, v.name); serr != nil {
			err = newError("sync", v.name, GeneralError, serr)
		}
	}
	v.metrics.RecordSync(time.Since(start), err)
	v.logger.LogSync(ctx, v.name, err)
	return v.setErr(err)
}

// Unmount syncs a ready volume and then closes it.
func (v *Volume) Unmount(ctx context.Context) error {
	if v.state == StateReady {
		if err := v.Sync(ctx); err != nil {
			return err
		}
	}
	return v.Close()
}

// CreateFile creates an empty file at path. The parent must exist and the
// name must be free.
func (v *Volume) CreateFile(path string) error {
	return v.createOp("create file", path, inode.File)
}

// CreateDirectory creates an empty directory at path.
func (v *Volume) CreateDirectory(path string) error {
	return v.createOp("create directory", path, inode.Directory)
}

func (v *Volume) createOp(op, path string, typ inode.Type) error {
	start := time.Now()
	err := v.create(op, path, typ)
	v.metrics.RecordCreate(time.Since(start), err)
	v.logger.LogPathOp(op, path, err)
	return v.setErr(err)
}

func (v *Volume) create(op, path string, typ inode.Type) error {
	if err := v.ready(op, path); err != nil {
		return err
	}

	res, err := v.resolver.Resolve(path)
	if err != nil {
		return translateError(op, path, err, pathCode(err, CreateFailed))
	}
	if res.Found() {
		return newError(op, path, CreateFailed, errExists)
	}

	child, err := v.inodes.FindFirstUnused()
	if err != nil {
		return translateError(op, path, err, GeneralError)
	}
	if err := v.table.Store(child, inode.Inode{Type: typ}); err != nil {
		_ = v.inodes.Clear(child)
		return translateError(op, path, err, GeneralError)
	}
	if err := v.entries.Append(res.Parent, res.Name, child); err != nil {
		_ = v.inodes.Clear(child)
		return translateError(op, path, err, GeneralError)
	}
	return nil
}

// UnlinkFile removes the file at path and frees its sectors. Open files
// cannot be unlinked.
func (v *Volume) UnlinkFile(path string) error {
	return v.unlinkOp("unlink file", path, inode.File)
}

// UnlinkDirectory removes the empty directory at path.
func (v *Volume) UnlinkDirectory(path string) error {
	return v.unlinkOp("unlink directory", path, inode.Directory)
}

func (v *Volume) unlinkOp(op, path string, typ inode.Type) error {
	start := time.Now()
	err := v.unlink(op, path, typ)
	v.metrics.RecordUnlink(time.Since(start), err)
	v.logger.LogPathOp(op, path, err)
	return v.setErr(err)
}

func (v *Volume) unlink(op, path string, typ inode.Type) error {
	if err := v.ready(op, path); err != nil {
		return err
	}

	res, err := v.resolver.Resolve(path)
	if err != nil {
		return translateError(op, path, err, GeneralError)
	}
	if !res.Found() {
		if typ == inode.Directory {
			return newError(op, path, NoSuchDirectory, nil)
		}
		return newError(op, path, NoSuchFile, nil)
	}
	if res.Child == inode.Root {
		return newError(op, path, GeneralError, errRoot)
	}
	if typ == inode.File && v.files.IsOpen(res.Child) {
		return newError(op, path, FileInUse, nil)
	}

	n, err := v.table.Load(res.Child)
	if err != nil {
		return translateError(op, path, err, GeneralError)
	}
	if n.Type != typ {
		return newError(op, path, GeneralError, fmt.Errorf("%w: is a %s", errWrongType, n.Type))
	}
	if n.IsDir() && n.Size > 0 {
		return newError(op, path, DirectoryNotEmpty, nil)
	}

	if err := v.data.Free(n); err != nil {
		return translateError(op, path, err, GeneralError)
	}
	if err := v.table.Reset(res.Child); err != nil {
		return translateError(op, path, err, GeneralError)
	}
	if err := v.inodes.Clear(res.Child); err != nil {
		return translateError(op, path, err, GeneralError)
	}
	if err := v.entries.Remove(res.Parent, res.Child); err != nil {
		return translateError(op, path, err, GeneralError)
	}
	return nil
}

// OpenFile opens the file at path with the cursor at 0 and returns its
// descriptor.
func (v *Volume) OpenFile(path string) (int, error) {
	fd, err := v.open(path)
	v.metrics.RecordOpen(err)
	v.logger.LogPathOp("open", path, err)
	return fd, v.setErr(err)
}

func (v *Volume) open(path string) (int, error) {
	const op = "open"
	if err := v.ready(op, path); err != nil {
		return -1, err
	}
	if v.files.InUse() == v.files.Cap() {
		return -1, newError(op, path, TooManyOpenFiles, nil)
	}

	res, err := v.resolver.Resolve(path)
	if err != nil {
		return -1, translateError(op, path, err, pathCode(err, NoSuchFile))
	}
	if !res.Found() {
		return -1, newError(op, path, NoSuchFile, nil)
	}

	n, err := v.table.Load(res.Child)
	if err != nil {
		return -1, translateError(op, path, err, GeneralError)
	}
	if n.IsDir() {
		return -1, newError(op, path, GeneralError, fmt.Errorf("%w: is a directory", errWrongType))
	}

	fd, err := v.files.Open(res.Child, n.Size)
	if err != nil {
		return -1, translateError(op, path, err, GeneralError)
	}
	return fd, nil
}

// CloseFile releases descriptor fd.
func (v *Volume) CloseFile(fd int) error {
	err := v.ready("close", "")
	if err == nil {
		err = translateError("close", "", v.files.Close(fd), GeneralError)
	}
	v.logger.LogIO("close", fd, 0, err)
	return v.setErr(err)
}

func (v *Volume) entry(op string, fd int) (*openfile.Entry, error) {
	if err := v.ready(op, ""); err != nil {
		return nil, err
	}
	e, err := v.files.Get(fd)
	if err != nil {
		return nil, translateError(op, "", err, BadDescriptor)
	}
	return e, nil
}

// ReadFile reads up to len(p) bytes at the cursor and advances it. At end of
// file it returns 0 and a nil error.
func (v *Volume) ReadFile(fd int, p []byte) (int, error) {
	start := time.Now()
	n, err := v.read(fd, p)
	v.metrics.RecordRead(n, time.Since(start), err)
	v.logger.LogIO("read", fd, n, err)
	return n, v.setErr(err)
}

func (v *Volume) read(fd int, p []byte) (int, error) {
	e, err := v.entry("read", fd)
	if err != nil {
		return 0, err
	}
	n, err := v.data.Read(e, p)
	return n, translateError("read", "", err, GeneralError)
}

// WriteFile appends p to the file. When the volume fills up partway, the
// bytes that fit are kept and their count is returned with a NoSpace error.
func (v *Volume) WriteFile(fd int, p []byte) (int, error) {
	start := time.Now()
	n, err := v.write(fd, p)
	v.metrics.RecordWrite(n, time.Since(start), err)
	v.logger.LogIO("write", fd, n, err)
	return n, v.setErr(err)
}

func (v *Volume) write(fd int, p []byte) (int, error) {
	e, err := v.entry("write", fd)
	if err != nil {
		return 0, err
	}
	n, err := v.data.Write(e, p)
	return n, translateError("write", "", err, GeneralError)
}

// SeekFile moves the cursor of fd to offset, which must lie within the file.
func (v *Volume) SeekFile(fd int, offset int) (int, error) {
	pos, err := v.seek(fd, offset)
	v.logger.LogIO("seek", fd, pos, err)
	return pos, v.setErr(err)
}

func (v *Volume) seek(fd, offset int) (int, error) {
	e, err := v.entry("seek", fd)
	if err != nil {
		return 0, err
	}
	pos, err := v.data.Seek(e, offset)
	if err != nil {
		return 0, translateError("seek", "", err, GeneralError)
	}
	return pos, nil
}

// lookupDir resolves path to a directory inode.
func (v *Volume) lookupDir(op, path string) (int, inode.Inode, error) {
	if err := v.ready(op, path); err != nil {
		return 0, inode.Inode{}, err
	}
	res, err := v.resolver.Resolve(path)
	if err != nil {
		return 0, inode.Inode{}, translateError(op, path, err, pathCode(err, NoSuchDirectory))
	}
	if !res.Found() {
		return 0, inode.Inode{}, newError(op, path, NoSuchDirectory, nil)
	}
	n, err := v.table.Load(res.Child)
	if err != nil {
		return 0, inode.Inode{}, translateError(op, path, err, GeneralError)
	}
	if !n.IsDir() {
		return 0, inode.Inode{}, newError(op, path, GeneralError, fmt.Errorf("%w: not a directory", errWrongType))
	}
	return res.Child, n, nil
}

// DirectorySize returns the byte size of the listing of the directory at
// path: its entry count times the entry record size.
//
// A missing or malformed path fails with NoSuchDirectory rather than
// reporting a size of 0, so an empty directory and an absent one can be told
// apart. A path naming a file fails with GeneralError.
func (v *Volume) DirectorySize(path string) (int, error) {
	_, n, err := v.lookupDir("directory size", path)
	if err != nil {
		return 0, v.setErr(err)
	}
	return n.Size * layout.DirentSize, nil
}

// ReadDirectory lists the directory at path in on-disk order. bufferCap is
// the byte capacity the caller reserves for the listing; it must be at least
// DirectorySize(path).
func (v *Volume) ReadDirectory(path string, bufferCap int) ([]DirEntry, error) {
	const op = "read directory"
	idx, n, err := v.lookupDir(op, path)
	if err != nil {
		return nil, v.setErr(err)
	}
	if need := n.Size * layout.DirentSize; need > bufferCap {
		return nil, v.setErr(newError(op, path, BufferTooSmall, fmt.Errorf("need %d bytes, have %d", need, bufferCap)))
	}

	entries, err := v.entries.List(idx)
	if err != nil {
		return nil, v.setErr(translateError(op, path, err, GeneralError))
	}

	out := make([]DirEntry, len(entries))
	for i, e := range entries {
		out[i] = DirEntry{Name: e.Name, Inode: e.Inode}
	}
	return out, nil
}

// Stat describes the file or directory at path.
func (v *Volume) Stat(path string) (FileInfo, error) {
	const op = "stat"
	if err := v.ready(op, path); err != nil {
		return FileInfo{}, v.setErr(err)
	}
	res, err := v.resolver.Resolve(path)
	if err != nil {
		return FileInfo{}, v.setErr(translateError(op, path, err, pathCode(err, NoSuchFile)))
	}
	if !res.Found() {
		return FileInfo{}, v.setErr(newError(op, path, NoSuchFile, nil))
	}
	n, err := v.table.Load(res.Child)
	if err != nil {
		return FileInfo{}, v.setErr(translateError(op, path, err, GeneralError))
	}
	return FileInfo{
		Name:    res.Name,
		Inode:   res.Child,
		Type:    fileType(n.Type),
		Size:    n.Size,
		Sectors: n.Sectors(),
	}, nil
}

// Usage counts allocated inodes and data sectors.
func (v *Volume) Usage() (Usage, error) {
	const op = "usage"
	if err := v.ready(op, ""); err != nil {
		return Usage{}, v.setErr(err)
	}
	usedInodes, err := v.inodes.Count()
	if err != nil {
		return Usage{}, v.setErr(translateError(op, "", err, GeneralError))
	}
	usedSectors, err := v.sectors.Count()
	if err != nil {
		return Usage{}, v.setErr(translateError(op, "", err, GeneralError))
	}
	return Usage{
		Inodes:      v.layout.MaxInodes,
		UsedInodes:  usedInodes,
		DataSectors: v.layout.TotalSectors - v.layout.DataStart,
		UsedSectors: usedSectors - v.layout.DataStart,
		SectorSize:  v.layout.SectorSize,
	}, nil
}

// Check walks the volume from the root and compares what it finds with the
// allocation bitmaps. Inconsistencies are reported, not repaired.
func (v *Volume) Check(ctx context.Context) (*CheckReport, error) {
	const op = "check"
	if err := v.ready(op, ""); err != nil {
		return nil, v.setErr(err)
	}
	report, err := check.New(v.dev, v.layout).Run(ctx)
	if err != nil {
		err = newError(op, "", GeneralError, err)
		v.logger.LogCheck(ctx, 0, err)
		return nil, v.setErr(err)
	}
	v.logger.LogCheck(ctx, len(report.Problems), nil)
	return report, nil
}

// pathCode returns code for resolution failures caused by the path itself and
// GeneralError for everything else.
func pathCode(err error, code Code) Code {
	if errors.Is(err, pathwalk.ErrInvalidPath) ||
		errors.Is(err, pathwalk.ErrNotADirectory) ||
		errors.Is(err, pathwalk.ErrNotFound) {
		return code
	}
	return GeneralError
}
