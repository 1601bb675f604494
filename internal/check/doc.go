// Package check verifies the structural consistency of a volume.
//
// The checker walks every directory reachable from the root, collecting the
// inodes and data sectors it finds in roaring bitmaps, and then diffs those
// sets against the on-disk allocation bitmaps. It reports:
//
//   - leaked inodes and sectors (marked used, unreachable)
//   - dangling inodes and sectors (reachable, marked free)
//   - sectors owned twice and inodes linked twice
//   - files whose size disagrees with their sector count
//   - directories whose size disagrees with their valid entry count
//
// The check is read-only.
package check
