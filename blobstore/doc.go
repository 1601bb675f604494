// Package blobstore persists volume images.
//
// A volume image is one flat blob of exactly SectorSize*TotalSectors bytes.
// The device loads it whole on boot and replaces it whole on sync, so the
// interface is deliberately small:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)       // read an image
//	    Put(ctx, name, data) error          // atomic replace
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// # Built-in Implementations
//
//   - LocalStore: local file system; mmap for reads, temp+rename for writes
//   - MemoryStore: in-process map, for tests and scratch volumes
//   - CompressedStore: wraps another store with zstd or lz4 frames and CRC32C
//   - s3.Store: Amazon S3
//   - minio.Store: MinIO and other S3-compatible services
//
// Missing blobs are reported with an error satisfying errors.Is(err, ErrNotFound).
package blobstore
