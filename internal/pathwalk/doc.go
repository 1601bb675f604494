// Package pathwalk resolves absolute paths to inode numbers.
//
// Paths start with '/', are at most MaxPath-1 bytes long, and consist of
// names of 1 to 15 bytes from [A-Za-z0-9._-]. Empty components from repeated
// separators are skipped. Resolution starts at the root inode and reuses the
// last inode-table sector it read, which makes walking siblings packed in the
// same sector cost a single read.
package pathwalk
