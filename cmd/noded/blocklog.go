package main

import (
	"fmt"

	"ledgerd/pkg/blocklog"
)

func blockLogRepair(dir, backupName, timestamp string) (uint32, error) {
	return blocklog.RepairLog(dir, backupName, timestamp)
}

func blockLogExtract(dir string, from, to uint32, destDir string, swap bool) error {
	if to < from {
		return fmt.Errorf("--to (%d) must be >= --from (%d)", to, from)
	}
	l, err := blocklog.Open(from, nil, [32]byte{}, blocklog.Config{Dir: dir})
	if err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	defer l.Close()
	return l.Extract(from, to, destDir, swap)
}
