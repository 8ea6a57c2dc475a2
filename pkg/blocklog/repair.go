package blocklog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// maxRepairScan bounds how far back from the end of a damaged log repair
// will search for the last intact entry, so a log with a long garbage tail
// fails fast instead of scanning the whole file byte by byte.
const maxRepairScan = 64 << 20 // 64 MiB

// RepairLog recovers a damaged block log found at dir. The original
// log/index are moved into dir/backupDirName first (spec.md 12's
// "block_log_backup_dir_exist" case: if that subdirectory already exists,
// repair refuses to clobber it and returns ErrBackupDirExists). Any bytes
// past the last intact entry are written to a
// blocks-bad-tail-<timestamp>.log forensics file in dir rather than
// silently discarded. timestamp is caller-supplied so this stays
// deterministic and testable.
func RepairLog(dir, backupDirName, timestamp string) (lastGoodBlock uint32, err error) {
	backupPath := filepath.Join(dir, backupDirName)
	if _, statErr := os.Stat(backupPath); statErr == nil {
		return 0, ErrBackupDirExists
	} else if !os.IsNotExist(statErr) {
		return 0, fmt.Errorf("%w: stat backup dir: %v", ErrLogException, statErr)
	}

	if err := os.MkdirAll(backupPath, 0755); err != nil {
		return 0, fmt.Errorf("%w: create backup dir: %v", ErrLogException, err)
	}

	logPath := filepath.Join(dir, logFileName)
	idxPath := filepath.Join(dir, indexFileName)
	backupLogPath := filepath.Join(backupPath, logFileName)
	backupIdxPath := filepath.Join(backupPath, indexFileName)

	if err := os.Rename(logPath, backupLogPath); err != nil {
		return 0, fmt.Errorf("%w: move log to backup dir: %v", ErrLogException, err)
	}
	if err := os.Rename(idxPath, backupIdxPath); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("%w: move index to backup dir: %v", ErrLogException, err)
	}

	bf, err := openBlockFile(backupLogPath)
	if err != nil {
		return 0, err
	}
	defer bf.Close()

	f := bf.File()
	if _, err := f.Seek(0, 0); err != nil {
		return 0, fmt.Errorf("%w: seek header: %v", ErrLogException, err)
	}
	h, err := readHeader(f)
	if err != nil {
		return 0, fmt.Errorf("%w: damaged header cannot be repaired: %v", ErrLogException, err)
	}

	rawSize, err := bf.RawSize()
	if err != nil {
		return 0, err
	}

	headerEnd := int64(h.HeaderSize)

	scanFloor := rawSize - maxRepairScan
	if scanFloor < headerEnd {
		scanFloor = headerEnd
	}

	var validEnd int64 = -1
	var offsets []int64
	for end := rawSize; end >= scanFloor; end-- {
		off, walkErr := walkBackward(bf, headerEnd, end)
		if walkErr == nil {
			validEnd = end
			offsets = off
			break
		}
	}
	if validEnd < 0 {
		return 0, fmt.Errorf("%w: no intact tail found within last %d bytes", ErrLogException, maxRepairScan)
	}

	if validEnd < rawSize {
		badTail, err := bf.ReadAt(validEnd, rawSize-validEnd)
		if err != nil {
			return 0, err
		}
		badTailPath := filepath.Join(dir, fmt.Sprintf("blocks-bad-tail-%s.log", timestamp))
		if err := os.WriteFile(badTailPath, badTail, 0644); err != nil {
			return 0, fmt.Errorf("%w: write bad-tail forensics file: %v", ErrLogException, err)
		}
	}

	newLog, err := os.Create(logPath)
	if err != nil {
		return 0, fmt.Errorf("%w: create repaired log: %v", ErrLogException, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		newLog.Close()
		return 0, err
	}
	if _, err := io.CopyN(newLog, f, validEnd); err != nil {
		newLog.Close()
		return 0, fmt.Errorf("%w: copy repaired log body: %v", ErrLogException, err)
	}
	if err := newLog.Sync(); err != nil {
		newLog.Close()
		return 0, err
	}
	if err := newLog.Close(); err != nil {
		return 0, err
	}

	newIX, err := openIndexFile(idxPath)
	if err != nil {
		return 0, err
	}
	for _, off := range offsets {
		if err := newIX.Append(off); err != nil {
			newIX.Close()
			return 0, err
		}
	}
	if err := newIX.Flush(); err != nil {
		newIX.Close()
		return 0, err
	}
	if err := newIX.Close(); err != nil {
		return 0, err
	}

	if len(offsets) == 0 {
		return 0, nil
	}
	return h.FirstBlockNum + uint32(len(offsets)) - 1, nil
}
