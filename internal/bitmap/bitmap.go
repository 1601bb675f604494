package bitmap

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/hupe1980/sectorfs/disk"
)

var (
	// ErrExhausted is returned by FindFirstUnused when every bit is set.
	ErrExhausted = errors.New("bitmap: no free bit")
	// ErrOutOfRange is returned for bits outside the region.
	ErrOutOfRange = errors.New("bitmap: bit out of range")
)

// Region is a bit vector persisted in consecutive sectors of a device.
// Bit i lives in byte i/8 of the flattened region, most significant bit
// first. Every mutation writes its sector back before returning.
type Region struct {
	dev     disk.Device
	start   int
	sectors int
	bits    int
}

// New describes a region of sectors sectors starting at start that tracks
// nbits bits.
func New(dev disk.Device, start, sectors, nbits int) *Region {
	return &Region{dev: dev, start: start, sectors: sectors, bits: nbits}
}

// Bits returns the number of tracked bits.
func (r *Region) Bits() int { return r.bits }

func (r *Region) bitsPerSector() int {
	return r.dev.SectorSize() * 8
}

func mask(bit int) byte {
	return 0x80 >> (bit % 8)
}

// Init zero-fills the region and sets the first preset bits.
func (r *Region) Init(preset int) error {
	if preset < 0 || preset > r.bits {
		return fmt.Errorf("%w: preset %d of %d", ErrOutOfRange, preset, r.bits)
	}

	buf := make([]byte, r.dev.SectorSize())
	per := r.bitsPerSector()

	for s := range r.sectors {
		clear(buf)
		lo := s * per
		hi := min(preset, lo+per)
		for b := lo; b < hi; b++ {
			buf[(b-lo)/8] |= mask(b)
		}
		if err := r.dev.WriteSector(r.start+s, buf); err != nil {
			return fmt.Errorf("bitmap: write sector %d: %w", r.start+s, err)
		}
	}
	return nil
}

// FindFirstUnused sets the lowest clear bit and returns its index.
func (r *Region) FindFirstUnused() (int, error) {
	buf := make([]byte, r.dev.SectorSize())
	per := r.bitsPerSector()

	for s := range r.sectors {
		base := s * per
		if base >= r.bits {
			break
		}
		if err := r.dev.ReadSector(r.start+s, buf); err != nil {
			return 0, fmt.Errorf("bitmap: read sector %d: %w", r.start+s, err)
		}

		for i, b := range buf {
			if b == 0xff {
				continue
			}
			// Leading ones in an MSB-first byte are the used bits before the gap.
			bit := base + i*8 + bits.LeadingZeros8(^b)
			if bit >= r.bits {
				return 0, ErrExhausted
			}

			buf[i] |= mask(bit)
			if err := r.dev.WriteSector(r.start+s, buf); err != nil {
				return 0, fmt.Errorf("bitmap: write sector %d: %w", r.start+s, err)
			}
			return bit, nil
		}
	}
	return 0, ErrExhausted
}

func (r *Region) locate(bit int) (sector, offset int, err error) {
	if bit < 0 || bit >= r.bits {
		return 0, 0, fmt.Errorf("%w: %d", ErrOutOfRange, bit)
	}
	per := r.bitsPerSector()
	sector = bit / per
	if sector >= r.sectors {
		return 0, 0, fmt.Errorf("%w: %d", ErrOutOfRange, bit)
	}
	return r.start + sector, (bit % per) / 8, nil
}

// Clear resets bit.
func (r *Region) Clear(bit int) error {
	sector, off, err := r.locate(bit)
	if err != nil {
		return err
	}

	buf := make([]byte, r.dev.SectorSize())
	if err := r.dev.ReadSector(sector, buf); err != nil {
		return fmt.Errorf("bitmap: read sector %d: %w", sector, err)
	}
	buf[off] &^= mask(bit)
	if err := r.dev.WriteSector(sector, buf); err != nil {
		return fmt.Errorf("bitmap: write sector %d: %w", sector, err)
	}
	return nil
}

// Test reports whether bit is set.
func (r *Region) Test(bit int) (bool, error) {
	sector, off, err := r.locate(bit)
	if err != nil {
		return false, err
	}

	buf := make([]byte, r.dev.SectorSize())
	if err := r.dev.ReadSector(sector, buf); err != nil {
		return false, fmt.Errorf("bitmap: read sector %d: %w", sector, err)
	}
	return buf[off]&mask(bit) != 0, nil
}

// Each calls fn for every set bit in ascending order.
func (r *Region) Each(fn func(bit int)) error {
	buf := make([]byte, r.dev.SectorSize())
	per := r.bitsPerSector()

	for s := range r.sectors {
		base := s * per
		if base >= r.bits {
			break
		}
		if err := r.dev.ReadSector(r.start+s, buf); err != nil {
			return fmt.Errorf("bitmap: read sector %d: %w", r.start+s, err)
		}
		for i, b := range buf {
			for b != 0 {
				lz := bits.LeadingZeros8(b)
				bit := base + i*8 + lz
				if bit >= r.bits {
					return nil
				}
				fn(bit)
				b &^= 0x80 >> lz
			}
		}
	}
	return nil
}

// Count returns the number of set bits.
func (r *Region) Count() (int, error) {
	n := 0
	err := r.Each(func(int) { n++ })
	return n, err
}
