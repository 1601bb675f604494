// Package mmap provides read-only memory-mapped file access.
//
// Volume images are loaded from the local file system by mapping the backing
// file and copying the mapped bytes into the in-memory device image; the
// mapping is released immediately afterwards.
//
//	m, err := mmap.Open("disk.img")
//	if err != nil { ... }
//	defer m.Close()
//	_ = m.Advise(mmap.AccessSequential)
//	copy(image, m.Bytes())
//
// Unix uses mmap(2)/madvise(2) via golang.org/x/sys/unix; Windows uses
// CreateFileMapping/MapViewOfFile and ignores access hints.
package mmap
