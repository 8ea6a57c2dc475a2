package blocklog

import (
	"fmt"
	"os"
	"path/filepath"
)

// BlockSource supplies a replacement payload for a block whose bytes were
// previously hole-punched by pruning. Vacuum calls it only for blocks below
// FirstAvailableBlockNum(); callers typically back this with a peer fetch
// or an archival copy of the log taken before pruning began.
type BlockSource interface {
	BlockPayload(num uint32) ([]byte, error)
}

// Vacuum rewrites the log into an unpruned copy, restoring every
// deallocated payload via src and clearing the pruned flag. It is
// idempotent and restartable: if interrupted, the half-written temp files
// are discarded and the original log is untouched, so Vacuum can simply be
// called again (spec.md 12, "pruned -> full conversion").
func (l *BlockLog) Vacuum(src BlockSource) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.header.Pruned {
		return nil
	}
	if l.emptyLocked() {
		return nil
	}

	tmpLogPath := filepath.Join(l.cfg.Dir, logFileName+".vacuum-tmp")
	tmpIdxPath := filepath.Join(l.cfg.Dir, indexFileName+".vacuum-tmp")
	os.Remove(tmpLogPath)
	os.Remove(tmpIdxPath)

	tmpBF, err := openBlockFile(tmpLogPath)
	if err != nil {
		return err
	}
	tmpIX, err := openIndexFile(tmpIdxPath)
	if err != nil {
		tmpBF.Close()
		return err
	}

	newHeader := &Header{
		Version:       Version3,
		Pruned:        false,
		FirstBlockNum: l.header.FirstBlockNum,
		Genesis:       l.header.Genesis,
		ChainID:       l.header.ChainID,
	}
	encoded := newHeader.encode()
	if err := tmpBF.WriteAt(0, encoded); err != nil {
		tmpBF.Close()
		tmpIX.Close()
		return err
	}
	pos := int64(len(encoded))

	firstAvailable := l.firstBlockNum + l.numPruned
	for num := l.firstBlockNum; num <= l.headNum; num++ {
		var payload []byte
		var err error
		if num < firstAvailable {
			payload, err = src.BlockPayload(num)
			if err != nil {
				tmpBF.Close()
				tmpIX.Close()
				return fmt.Errorf("%w: fetch replacement for pruned block %d: %v", ErrLogException, num, err)
			}
		} else {
			payload, err = l.readBlockByNumLocked(num)
			if err != nil {
				tmpBF.Close()
				tmpIX.Close()
				return err
			}
		}
		if err := tmpIX.Append(pos); err != nil {
			tmpBF.Close()
			tmpIX.Close()
			return err
		}
		pos, err = tmpBF.WriteEntry(pos, payload)
		if err != nil {
			tmpBF.Close()
			tmpIX.Close()
			return err
		}
	}

	if err := tmpBF.Flush(); err != nil {
		tmpBF.Close()
		tmpIX.Close()
		return err
	}
	if err := tmpIX.Flush(); err != nil {
		tmpBF.Close()
		tmpIX.Close()
		return err
	}
	tmpBF.Close()
	tmpIX.Close()

	l.bf.Close()
	l.ix.Close()

	logPath := filepath.Join(l.cfg.Dir, logFileName)
	idxPath := filepath.Join(l.cfg.Dir, indexFileName)
	if err := os.Rename(tmpLogPath, logPath); err != nil {
		return fmt.Errorf("%w: rename vacuumed log into place: %v", ErrLogException, err)
	}
	if err := os.Rename(tmpIdxPath, idxPath); err != nil {
		return fmt.Errorf("%w: rename vacuumed index into place: %v", ErrLogException, err)
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
	l.header = newHeader
	l.header.HeaderSize = len(encoded)
	l.dataEnd = pos
	l.numPruned = 0

	l.log.Info("vacuumed pruned block log into full copy")
	return nil
}
