// Package hash provides the checksum used to verify stored volume images.
package hash
