package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits. Zero values mean no limit, except
// MaxCheckers which defaults to 1.
type Config struct {
	// MaxImageBytes caps the memory held by resident volume images.
	MaxImageBytes int64

	// MaxCheckers is the number of volumes that may be checked at once.
	MaxCheckers int64

	// IOBytesPerSec caps the throughput of image loads and saves.
	IOBytesPerSec int64
}

// Controller is shared by the volumes of one process. A nil *Controller
// imposes no limits.
type Controller struct {
	images   *semaphore.Weighted // nil if unlimited
	resident atomic.Int64

	checkers *semaphore.Weighted
	io       *rate.Limiter // nil if unlimited
}

// NewController creates a controller enforcing cfg.
func NewController(cfg Config) *Controller {
	c := &Controller{
		checkers: semaphore.NewWeighted(max(cfg.MaxCheckers, 1)),
	}
	if cfg.MaxImageBytes > 0 {
		c.images = semaphore.NewWeighted(cfg.MaxImageBytes)
	}
	if cfg.IOBytesPerSec > 0 {
		c.io = rate.NewLimiter(rate.Limit(cfg.IOBytesPerSec), int(cfg.IOBytesPerSec))
	}
	return c
}

// ReserveImage accounts an image buffer of size bytes, blocking while the
// limit is reached until another image is released or ctx is done.
func (c *Controller) ReserveImage(ctx context.Context, size int64) error {
	if c == nil || size <= 0 {
		return nil
	}
	if c.images != nil {
		if err := c.images.Acquire(ctx, size); err != nil {
			return err
		}
	}
	c.resident.Add(size)
	return nil
}

// ReleaseImage returns a reservation made by ReserveImage.
func (c *Controller) ReleaseImage(size int64) {
	if c == nil || size <= 0 {
		return
	}
	if c.images != nil {
		c.images.Release(size)
	}
	c.resident.Add(-size)
}

// ResidentBytes returns the bytes currently reserved for images.
func (c *Controller) ResidentBytes() int64 {
	if c == nil {
		return 0
	}
	return c.resident.Load()
}

// AcquireChecker takes a checker slot, blocking while all are busy.
func (c *Controller) AcquireChecker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.checkers.Acquire(ctx, 1)
}

// ReleaseChecker returns a slot taken by AcquireChecker.
func (c *Controller) ReleaseChecker() {
	if c == nil {
		return
	}
	c.checkers.Release(1)
}

// WaitIO blocks until n bytes of image transfer are allowed. Transfers larger
// than one second's budget are admitted in pieces.
func (c *Controller) WaitIO(ctx context.Context, n int) error {
	if c == nil || c.io == nil {
		return nil
	}
	burst := c.io.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := c.io.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
