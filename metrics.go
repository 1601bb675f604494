package sectorfs

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    writeBytes prometheus.Counter
//	    syncTime   prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordWrite(n int, duration time.Duration, err error) {
//	    p.writeBytes.Add(float64(n))
//	}
type MetricsCollector interface {
	// RecordCreate is called after each file or directory creation.
	RecordCreate(duration time.Duration, err error)

	// RecordUnlink is called after each file or directory unlink.
	RecordUnlink(duration time.Duration, err error)

	// RecordOpen is called after each OpenFile.
	RecordOpen(err error)

	// RecordRead is called after each ReadFile with the bytes returned.
	RecordRead(n int, duration time.Duration, err error)

	// RecordWrite is called after each WriteFile with the bytes written,
	// which may be non-zero even when err is set.
	RecordWrite(n int, duration time.Duration, err error)

	// RecordSync is called after each Sync of the image to its store.
	RecordSync(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCreate(time.Duration, error)     {}
func (NoopMetricsCollector) RecordUnlink(time.Duration, error)     {}
func (NoopMetricsCollector) RecordOpen(error)                      {}
func (NoopMetricsCollector) RecordRead(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordWrite(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSync(time.Duration, error)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CreateCount     atomic.Int64
	CreateErrors    atomic.Int64
	UnlinkCount     atomic.Int64
	UnlinkErrors    atomic.Int64
	OpenCount       atomic.Int64
	OpenErrors      atomic.Int64
	ReadCount       atomic.Int64
	ReadErrors      atomic.Int64
	ReadBytes       atomic.Int64
	ReadTotalNanos  atomic.Int64
	WriteCount      atomic.Int64
	WriteErrors     atomic.Int64
	WriteBytes      atomic.Int64
	WriteTotalNanos atomic.Int64
	SyncCount       atomic.Int64
	SyncErrors      atomic.Int64
	SyncTotalNanos  atomic.Int64
}

// RecordCreate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCreate(duration time.Duration, err error) {
	b.CreateCount.Add(1)
	if err != nil {
		b.CreateErrors.Add(1)
	}
}

// RecordUnlink implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUnlink(duration time.Duration, err error) {
	b.UnlinkCount.Add(1)
	if err != nil {
		b.UnlinkErrors.Add(1)
	}
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(err error) {
	b.OpenCount.Add(1)
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(n int, duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadBytes.Add(int64(n))
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(n int, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteBytes.Add(int64(n))
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
	}
}

// RecordSync implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSync(duration time.Duration, err error) {
	b.SyncCount.Add(1)
	b.SyncTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SyncErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CreateCount:   b.CreateCount.Load(),
		CreateErrors:  b.CreateErrors.Load(),
		UnlinkCount:   b.UnlinkCount.Load(),
		UnlinkErrors:  b.UnlinkErrors.Load(),
		OpenCount:     b.OpenCount.Load(),
		OpenErrors:    b.OpenErrors.Load(),
		ReadCount:     b.ReadCount.Load(),
		ReadErrors:    b.ReadErrors.Load(),
		ReadBytes:     b.ReadBytes.Load(),
		ReadAvgNanos:  avg(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		WriteCount:    b.WriteCount.Load(),
		WriteErrors:   b.WriteErrors.Load(),
		WriteBytes:    b.WriteBytes.Load(),
		WriteAvgNanos: avg(b.WriteTotalNanos.Load(), b.WriteCount.Load()),
		SyncCount:     b.SyncCount.Load(),
		SyncErrors:    b.SyncErrors.Load(),
		SyncAvgNanos:  avg(b.SyncTotalNanos.Load(), b.SyncCount.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CreateCount   int64
	CreateErrors  int64
	UnlinkCount   int64
	UnlinkErrors  int64
	OpenCount     int64
	OpenErrors    int64
	ReadCount     int64
	ReadErrors    int64
	ReadBytes     int64
	ReadAvgNanos  int64
	WriteCount    int64
	WriteErrors   int64
	WriteBytes    int64
	WriteAvgNanos int64
	SyncCount     int64
	SyncErrors    int64
	SyncAvgNanos  int64
}
