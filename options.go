package sectorfs

import (
	"log/slog"

	"github.com/hupe1980/sectorfs/blobstore"
	"github.com/hupe1980/sectorfs/disk"
	"github.com/hupe1980/sectorfs/internal/layout"
	"github.com/hupe1980/sectorfs/resource"
)

// Geometry holds the constants a volume is formatted with.
type Geometry = layout.Geometry

// DefaultGeometry returns the geometry of the classic 5MB volume.
func DefaultGeometry() Geometry { return layout.DefaultGeometry() }

type options struct {
	geometry         Geometry
	store            blobstore.BlobStore
	device           disk.BlockDevice
	resource         *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Volume.
type Option func(*options)

// WithGeometry sets the volume geometry. It must match the geometry the
// image was formatted with; there is no on-disk record of it besides the
// image length.
func WithGeometry(g Geometry) Option {
	return func(o *options) {
		o.geometry = g
	}
}

// WithStore sets where volume images are loaded from and saved to.
// Defaults to an in-memory store.
func WithStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithDevice replaces the block device entirely. WithStore and
// WithResourceController are ignored when a device is given.
//
// Example with fault injection:
//
//	dev := disk.NewFaultyDevice(disk.New(store, 512, 10000))
//	v, _ := sectorfs.New(sectorfs.WithDevice(dev))
func WithDevice(dev disk.BlockDevice) Option {
	return func(o *options) {
		o.device = dev
	}
}

// WithResourceController throttles image transfers and accounts the image
// memory against rc.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resource = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &sectorfs.BasicMetricsCollector{}
//	v, _ := sectorfs.New(sectorfs.WithMetricsCollector(metrics))
//	// ... use v ...
//	stats := metrics.GetStats()
//	fmt.Printf("Writes: %d, bytes: %d\n", stats.WriteCount, stats.WriteBytes)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := sectorfs.NewJSONLogger(slog.LevelInfo)
//	v, _ := sectorfs.New(sectorfs.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		geometry:         layout.DefaultGeometry(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.store == nil {
		o.store = blobstore.NewMemoryStore()
	}
	return o
}
