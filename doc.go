// Package sectorfs implements a small single-volume file system on top of a
// simulated block device.
//
// A volume is a flat image of fixed-size sectors holding a superblock, an
// inode bitmap, a sector bitmap, an inode table and a data region. All
// access goes through whole-sector reads and writes on a [disk.Device]; the
// image is loaded from and saved to a [blobstore.BlobStore] as one blob.
//
// # Quick Start
//
//	ctx := context.Background()
//	store := blobstore.NewLocalStore("./images")
//	v, _ := sectorfs.New(sectorfs.WithStore(store))
//	if err := v.Boot(ctx, "disk.img"); err != nil { // formats if absent
//	    log.Fatal(err)
//	}
//	defer v.Unmount(ctx)
//
//	_ = v.CreateDirectory("/docs")
//	_ = v.CreateFile("/docs/a.txt")
//	fd, _ := v.OpenFile("/docs/a.txt")
//	_, _ = v.WriteFile(fd, []byte("hello"))
//	_ = v.CloseFile(fd)
//	_ = v.Sync(ctx)
//
// # Errors
//
// Every failure is an [*Error] carrying a [Code]. Match codes with errors.Is
// against the sentinels:
//
//	if _, err := v.WriteFile(fd, data); errors.Is(err, sectorfs.ErrNoSpace) {
//	    // the bytes that fit were written and counted
//	}
//
// The most recent failure is also kept by the volume and can be read back
// with [Volume.LastError].
//
// # Limits
//
// Names are 1 to 15 bytes of [A-Za-z0-9._-]. Files only grow by appending and
// hold at most MaxSectorsPerFile sectors. Directory entries are removed in
// place without compaction.
package sectorfs
