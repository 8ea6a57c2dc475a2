package blocklog

import "fmt"

// roundUpPow2 rounds n up to the next power of two, matching spec.md 9's
// note that prune_threshold is always normalized this way so pruning runs
// in predictable batches rather than on every single append.
func roundUpPow2(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

// maybePrune deallocates the payload bytes of blocks that have fallen
// outside the retention window (cfg.PruneBlocks behind the head), once
// enough of them have accumulated to clear cfg.PruneThreshold (rounded to a
// power of two). Pruning never changes block numbering or the index's
// density: it only hole-punches old payload ranges and advances numPruned.
func (l *BlockLog) maybePrune() error {
	if l.cfg.PruneBlocks == 0 || l.emptyLocked() {
		return nil
	}
	retained := l.headNum - l.firstBlockNum + 1
	if retained <= l.cfg.PruneBlocks {
		return nil
	}
	eligibleThrough := l.headNum - l.cfg.PruneBlocks // highest num allowed to be pruned
	firstAvailable := l.firstBlockNum + l.numPruned
	if eligibleThrough < firstAvailable {
		return nil
	}
	cut := eligibleThrough - firstAvailable + 1

	threshold := roundUpPow2(l.cfg.PruneThreshold)
	if threshold == 0 {
		threshold = 1
	}
	if cut < threshold {
		return nil
	}

	for i := uint32(0); i < cut; i++ {
		num := firstAvailable + i
		k := int64(num - l.firstBlockNum)
		start, err := l.ix.Get(k)
		if err != nil {
			return err
		}
		var payloadEnd int64
		if k+1 < l.ix.NumEntries() {
			next, err := l.ix.Get(k + 1)
			if err != nil {
				return err
			}
			payloadEnd = next - 8
		} else {
			payloadEnd = l.dataEnd - 8
		}
		if payloadEnd <= start {
			continue
		}
		if err := punchHole(l.bf.File(), start, payloadEnd-start); err != nil {
			return fmt.Errorf("%w: punch hole for block %d: %v", ErrLogException, num, err)
		}
	}

	l.numPruned += cut
	if !l.header.Pruned {
		l.header.Pruned = true
		if err := l.bf.WriteU32At(0, uint32(l.header.Version)|prunedFlag); err != nil {
			return err
		}
	}
	if err := l.bf.WriteU32At(l.dataEnd, l.numPruned); err != nil {
		return err
	}
	if err := l.bf.Truncate(l.dataEnd + 4); err != nil {
		return err
	}

	l.log.WithField("cut", cut).WithField("first_available", l.firstBlockNum+l.numPruned).Info("pruned block log tail")
	return nil
}
