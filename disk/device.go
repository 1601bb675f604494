package disk

import (
	"context"
	"errors"
)

var (
	// ErrNotExist is returned by Load when no image with the given name exists.
	ErrNotExist = errors.New("disk: image does not exist")
	// ErrOutOfRange is returned for sector indices outside [0, TotalSectors).
	ErrOutOfRange = errors.New("disk: sector out of range")
	// ErrShortBuffer is returned when a sector buffer is smaller than SectorSize.
	ErrShortBuffer = errors.New("disk: buffer smaller than a sector")
	// ErrNotInitialized is returned by sector I/O before Init.
	ErrNotInitialized = errors.New("disk: not initialized")
)

// Device provides sector-granular access to a fixed-size image.
// Sector I/O is synchronous and takes no context.
type Device interface {
	SectorSize() int
	TotalSectors() int
	// ReadSector copies sector idx into p[:SectorSize()].
	ReadSector(idx int, p []byte) error
	// WriteSector replaces sector idx with p[:SectorSize()].
	WriteSector(idx int, p []byte) error
}

// Persister moves the whole image to and from durable storage.
type Persister interface {
	// Init resets the image to all zeros.
	Init(ctx context.Context) error
	// Load replaces the image with the stored one and returns the stored
	// length, which callers must validate. Missing images yield ErrNotExist.
	Load(ctx context.Context, name string) (int64, error)
	// Save stores the image under name.
	Save(ctx context.Context, name string) error
}

// BlockDevice is a Device whose image can be persisted.
type BlockDevice interface {
	Device
	Persister
}
