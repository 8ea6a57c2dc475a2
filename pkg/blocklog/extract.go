package blocklog

import (
	"fmt"
	"os"
	"path/filepath"
)

// Extract writes a standalone log/index pair covering [fromNum, toNum]
// (inclusive) into destDir, with every offset rebased against its own new
// header rather than the source log's. The source log is left untouched
// unless swap is true, in which case destDir's files replace the source's
// in place once the extraction is verified complete - useful for splitting
// off an archival segment or, with swap, for shrinking a log down to a
// single contiguous range.
func (l *BlockLog) Extract(fromNum, toNum uint32, destDir string, swap bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.emptyLocked() {
		return ErrNotFound
	}
	if fromNum < l.firstBlockNum+l.numPruned || toNum > l.headNum || fromNum > toNum {
		return fmt.Errorf("%w: range [%d,%d] not fully available", ErrNotFound, fromNum, toNum)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrLogException, destDir, err)
	}

	destLogPath := filepath.Join(destDir, logFileName)
	destIdxPath := filepath.Join(destDir, indexFileName)

	destBF, err := openBlockFile(destLogPath)
	if err != nil {
		return err
	}
	destIX, err := openIndexFile(destIdxPath)
	if err != nil {
		destBF.Close()
		return err
	}

	h := &Header{
		Version:       Version3,
		Pruned:        false,
		FirstBlockNum: fromNum,
	}
	if fromNum == 1 {
		h.Genesis = l.header.Genesis
	} else {
		h.ChainID = l.header.ChainID
	}
	encoded := h.encode()
	if err := destBF.WriteAt(0, encoded); err != nil {
		destBF.Close()
		destIX.Close()
		return err
	}
	pos := int64(len(encoded))

	for num := fromNum; num <= toNum; num++ {
		payload, err := l.readBlockByNumLocked(num)
		if err != nil {
			destBF.Close()
			destIX.Close()
			return err
		}
		if err := destIX.Append(pos); err != nil {
			destBF.Close()
			destIX.Close()
			return err
		}
		pos, err = destBF.WriteEntry(pos, payload)
		if err != nil {
			destBF.Close()
			destIX.Close()
			return err
		}
	}

	if err := destBF.Flush(); err != nil {
		destBF.Close()
		destIX.Close()
		return err
	}
	if err := destIX.Flush(); err != nil {
		destBF.Close()
		destIX.Close()
		return err
	}
	destBF.Close()
	destIX.Close()

	if !swap {
		return nil
	}

	l.bf.Close()
	l.ix.Close()

	logPath := filepath.Join(l.cfg.Dir, logFileName)
	idxPath := filepath.Join(l.cfg.Dir, indexFileName)
	if err := os.Rename(destLogPath, logPath); err != nil {
		return fmt.Errorf("%w: swap extracted log into place: %v", ErrLogException, err)
	}
	if err := os.Rename(destIdxPath, idxPath); err != nil {
		return fmt.Errorf("%w: swap extracted index into place: %v", ErrLogException, err)
	}

	bf, err := openBlockFile(logPath)
	if err != nil {
		return err
	}
	ix, err := openIndexFile(idxPath)
	if err != nil {
		bf.Close()
		return err
	}
	l.bf = bf
	l.ix = ix
	l.header = h
	l.header.HeaderSize = len(encoded)
	l.dataEnd = pos
	l.firstBlockNum = fromNum
	l.headNum = toNum
	l.numPruned = 0

	l.log.WithField("from", fromNum).WithField("to", toNum).Info("swapped log to extracted range")
	return nil
}
