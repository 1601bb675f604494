// Package resource bounds what the volumes of one process may consume.
//
// A single [Controller] is usually shared by every volume a tool opens.
// Images reserve their buffer size when a disk is initialized, and each
// load or save waits on the I/O limiter. Parallel checks in the sfs tool
// take a checker slot per image.
package resource
