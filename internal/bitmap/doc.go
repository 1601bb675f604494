// Package bitmap manages the on-disk allocation bitmaps for inodes and data
// sectors.
//
// A [Region] holds no state beyond its coordinates: every query reads the
// sectors it needs and every update writes its sector back immediately, so
// the device image is always the single source of truth.
package bitmap
