package disk

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/sectorfs/blobstore"
	"github.com/hupe1980/sectorfs/resource"
)

// ioChunk is the unit in which image transfers are throttled.
const ioChunk = 64 * 1024

// Option configures a Disk.
type Option func(*Disk)

// WithResourceController throttles image transfers and accounts the image
// buffer against the controller's memory limit.
func WithResourceController(rc *resource.Controller) Option {
	return func(d *Disk) {
		d.rc = rc
	}
}

// Disk is an in-memory sector image persisted through a blob store.
// It is not safe for concurrent use.
type Disk struct {
	store        blobstore.BlobStore
	sectorSize   int
	totalSectors int
	rc           *resource.Controller

	image    []byte
	reserved int64
}

// New creates a Disk of totalSectors sectors of sectorSize bytes.
// The image is allocated by Init.
func New(store blobstore.BlobStore, sectorSize, totalSectors int, optFns ...Option) *Disk {
	d := &Disk{
		store:        store,
		sectorSize:   sectorSize,
		totalSectors: totalSectors,
	}
	for _, fn := range optFns {
		fn(d)
	}
	return d
}

// SectorSize returns the sector size in bytes.
func (d *Disk) SectorSize() int { return d.sectorSize }

// TotalSectors returns the number of sectors.
func (d *Disk) TotalSectors() int { return d.totalSectors }

func (d *Disk) imageSize() int64 {
	return int64(d.sectorSize) * int64(d.totalSectors)
}

// Init zeroes the image, allocating it on first use.
func (d *Disk) Init(ctx context.Context) error {
	if d.image != nil {
		clear(d.image)
		return nil
	}

	size := d.imageSize()
	if err := d.rc.ReserveImage(ctx, size); err != nil {
		return fmt.Errorf("disk: reserve image memory: %w", err)
	}
	d.reserved = size
	d.image = make([]byte, size)
	return nil
}

// Close releases the image buffer. The disk can be reused after Init.
func (d *Disk) Close() error {
	d.image = nil
	d.rc.ReleaseImage(d.reserved)
	d.reserved = 0
	return nil
}

func (d *Disk) sector(idx int, p []byte) ([]byte, error) {
	if d.image == nil {
		return nil, ErrNotInitialized
	}
	if idx < 0 || idx >= d.totalSectors {
		return nil, fmt.Errorf("%w: %d", ErrOutOfRange, idx)
	}
	if len(p) < d.sectorSize {
		return nil, ErrShortBuffer
	}
	off := idx * d.sectorSize
	return d.image[off : off+d.sectorSize], nil
}

// ReadSector copies sector idx into p.
func (d *Disk) ReadSector(idx int, p []byte) error {
	s, err := d.sector(idx, p)
	if err != nil {
		return err
	}
	copy(p, s)
	return nil
}

// WriteSector copies p into sector idx.
func (d *Disk) WriteSector(idx int, p []byte) error {
	s, err := d.sector(idx, p)
	if err != nil {
		return err
	}
	copy(s, p)
	return nil
}

// Load reads the named image. Stored bytes beyond the image size are ignored;
// a shorter image leaves the remainder zeroed. Either way the stored length is
// returned so the caller can reject it.
func (d *Disk) Load(ctx context.Context, name string) (int64, error) {
	if err := d.Init(ctx); err != nil {
		return 0, err
	}

	blob, err := d.store.Open(ctx, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return 0, fmt.Errorf("disk: open %s: %w", name, err)
	}
	defer blob.Close()

	size := blob.Size()
	n := min(size, d.imageSize())

	var mapped []byte
	if m, ok := blob.(blobstore.Mappable); ok {
		if mapped, err = m.Bytes(); err != nil {
			return 0, fmt.Errorf("disk: map %s: %w", name, err)
		}
	}

	for off := int64(0); off < n; off += ioChunk {
		end := min(off+ioChunk, n)
		if err := d.rc.WaitIO(ctx, int(end-off)); err != nil {
			return 0, err
		}

		if mapped != nil {
			copy(d.image[off:end], mapped[off:end])
			continue
		}

		read, err := blob.ReadAt(ctx, d.image[off:end], off)
		if err != nil && !(errors.Is(err, io.EOF) && int64(read) == end-off) {
			return 0, fmt.Errorf("disk: read %s at %d: %w", name, off, err)
		}
	}

	return size, nil
}

// Save writes the whole image under name.
func (d *Disk) Save(ctx context.Context, name string) error {
	if d.image == nil {
		return ErrNotInitialized
	}
	if err := d.rc.WaitIO(ctx, len(d.image)); err != nil {
		return err
	}
	if err := d.store.Put(ctx, name, d.image); err != nil {
		return fmt.Errorf("disk: save %s: %w", name, err)
	}
	return nil
}

var _ BlockDevice = (*Disk)(nil)
