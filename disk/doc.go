// Package disk simulates the block device a volume lives on.
//
// A [Disk] keeps the whole image in memory and exposes it one sector at a
// time through [Device]. [Persister] moves the image to and from a
// [blobstore.BlobStore] in one piece: Load on boot, Save on sync. Nothing is
// written back implicitly.
//
// [FaultyDevice] wraps any [BlockDevice] for tests, counting sector I/O and
// failing reads, writes, or persistence on demand.
package disk
