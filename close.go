package sectorfs

import "io"

// Close drops every descriptor and releases the device without saving.
// Changes since the last Sync are lost; use Unmount to keep them.
//
// The volume can be booted again afterwards.
func (v *Volume) Close() error {
	if v == nil {
		return nil
	}
	v.files.Reset()
	v.state = StateUnbooted

	if c, ok := v.dev.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return v.setErr(newError("close", v.name, GeneralError, err))
		}
	}
	return nil
}
