//go:build !linux

package blocklog

import "os"

// punchHole has no portable equivalent outside Linux's fallocate; on other
// platforms pruning still advances numPruned and hides the payload via
// ReadBlockByNum, it just can't reclaim the underlying disk space.
func punchHole(f *os.File, offset, length int64) error {
	return nil
}
