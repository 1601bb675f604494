// Package openfile implements the volume's bounded table of open file
// descriptors. Descriptors are small integers handed out lowest-first.
package openfile
