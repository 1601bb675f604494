// Package fs provides a host file system abstraction for testability and
// fault injection.
//
// Volume images are persisted to the host by [blobstore.LocalStore] using the
// classic publish sequence: write a temporary file, sync it, rename it over
// the target, then sync the parent directory. Every step goes through a
// [FileSystem] so tests can inject failures with [FaultyFS]:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".tmp", fs.Fault{FailOnSync: true})
//	store := blobstore.NewLocalStore(dir, blobstore.WithFileSystem(ffs))
//
// This package intentionally does NOT include context.Context parameters.
// Local file operations are not interruptible at the syscall level; slow
// remote stores take a context at the blob store layer instead.
package fs
