//go:build linux

package blocklog

import (
	"os"

	"golang.org/x/sys/unix"
)

// punchHole deallocates [offset, offset+length) in f, turning it into a
// sparse hole so pruned payloads stop occupying disk space. Reads within
// the hole return zeros afterward.
func punchHole(f *os.File, offset, length int64) error {
	if length <= 0 {
		return nil
	}
	mode := unix.FALLOC_FL_PUNCH_HOLE | unix.FALLOC_FL_KEEP_SIZE
	return unix.Fallocate(int(f.Fd()), uint32(mode), offset, length)
}
