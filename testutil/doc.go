// Package testutil provides testing utilities for sectorfs.
//
// This package is intended for use in tests only.
//
// # Deterministic Data
//
//	rng := testutil.NewRNG(seed)
//	payload := rng.Bytes(4096)
//	name := rng.Name(12)
//	data := testutil.Pattern(1000) // i % 251
//
// # Formatted Devices
//
//	f := testutil.NewFixture(t, testutil.SmallGeometry())
//	// f.Dev counts sector I/O and injects faults
//	// f.Table, f.Inodes, f.Sectors address the metadata regions
package testutil
