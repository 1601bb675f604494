package disk

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("disk: injected fault")

// Fault defines failure behavior for a FaultyDevice.
type Fault struct {
	FailReadsAfter  int // Fail reads after this many successful ones. -1 to disable.
	FailWritesAfter int // Fail writes after this many successful ones. -1 to disable.
	FailSectors     map[int]bool
	FailInit        bool
	FailLoad        bool
	FailSave        bool
	Err             error
}

// NoFault returns a Fault that never fails.
func NoFault() Fault {
	return Fault{FailReadsAfter: -1, FailWritesAfter: -1}
}

// FaultyDevice wraps a BlockDevice, counts sector I/O, and injects errors.
type FaultyDevice struct {
	BlockDevice

	mu     sync.Mutex
	fault  Fault
	reads  int
	writes int
	perSec map[int]int
}

// NewFaultyDevice creates a FaultyDevice with no faults configured.
func NewFaultyDevice(dev BlockDevice) *FaultyDevice {
	return &FaultyDevice{
		BlockDevice: dev,
		fault:       Fault{FailReadsAfter: -1, FailWritesAfter: -1, Err: ErrInjected},
		perSec:      make(map[int]int),
	}
}

// SetFault replaces the active fault and resets the counters the thresholds
// are measured against.
func (f *FaultyDevice) SetFault(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fault.Err == nil {
		fault.Err = ErrInjected
	}
	f.fault = fault
	f.reads, f.writes = 0, 0
	clear(f.perSec)
}

// ResetCounters zeroes the I/O counters.
func (f *FaultyDevice) ResetCounters() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads, f.writes = 0, 0
	clear(f.perSec)
}

// Reads returns the number of successful sector reads.
func (f *FaultyDevice) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// SectorReads returns the number of successful reads of sector idx.
func (f *FaultyDevice) SectorReads(idx int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perSec[idx]
}

// Writes returns the number of successful sector writes.
func (f *FaultyDevice) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *FaultyDevice) ReadSector(idx int, p []byte) error {
	f.mu.Lock()
	fault := f.fault
	if (fault.FailReadsAfter >= 0 && f.reads >= fault.FailReadsAfter) || fault.FailSectors[idx] {
		f.mu.Unlock()
		return fault.Err
	}
	f.mu.Unlock()

	if err := f.BlockDevice.ReadSector(idx, p); err != nil {
		return err
	}

	f.mu.Lock()
	f.reads++
	f.perSec[idx]++
	f.mu.Unlock()
	return nil
}

func (f *FaultyDevice) WriteSector(idx int, p []byte) error {
	f.mu.Lock()
	fault := f.fault
	if (fault.FailWritesAfter >= 0 && f.writes >= fault.FailWritesAfter) || fault.FailSectors[idx] {
		f.mu.Unlock()
		return fault.Err
	}
	f.mu.Unlock()

	if err := f.BlockDevice.WriteSector(idx, p); err != nil {
		return err
	}

	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	return nil
}

func (f *FaultyDevice) Init(ctx context.Context) error {
	if fault := f.current(); fault.FailInit {
		return fault.Err
	}
	return f.BlockDevice.Init(ctx)
}

func (f *FaultyDevice) Load(ctx context.Context, name string) (int64, error) {
	if fault := f.current(); fault.FailLoad {
		return 0, fault.Err
	}
	return f.BlockDevice.Load(ctx, name)
}

func (f *FaultyDevice) Save(ctx context.Context, name string) error {
	if fault := f.current(); fault.FailSave {
		return fault.Err
	}
	return f.BlockDevice.Save(ctx, name)
}

// Close closes the wrapped device if it holds resources.
func (f *FaultyDevice) Close() error {
	if c, ok := f.BlockDevice.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (f *FaultyDevice) current() Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fault
}
