package blocklog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"ledgerd/pkg/chain"
)

const (
	logFileName   = "blocks.log"
	indexFileName = "blocks.index"
)

// Config controls how a BlockLog behaves once opened. PruneBlocks and
// PruneThreshold are consumed by prune.go; a PruneBlocks of 0 disables
// pruning entirely and the log behaves as a plain append-only file.
type Config struct {
	Dir            string
	PruneBlocks    uint32
	PruneThreshold uint32
	Logger         *logrus.Entry
}

func (c Config) logger() *logrus.Entry {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// BlockLog is the append-only, on-disk log of serialized blocks described by
// spec.md 3/4. It owns a block file and a dense index file and keeps them
// consistent across process restarts, including the pruned-tail layout.
type BlockLog struct {
	mu     sync.Mutex
	cfg    Config
	log    *logrus.Entry
	header *Header
	bf     *blockFile
	ix     *indexFile

	// dataEnd is the position one past the last entry's trailer - where the
	// next append lands, and where the pruned num_blocks_in_log trailer
	// sits when the log is pruned. It is the log's notion of "true size",
	// distinct from the raw file size the pruned trailer inflates.
	dataEnd int64

	firstBlockNum uint32 // first retained block number; 0 if log is empty
	headNum       uint32 // highest retained block number; 0 if log is empty

	// numPruned is how many of the oldest entries, counting from
	// firstBlockNum, have had their payload bytes deallocated by pruning.
	// Their index slots and trailers remain, preserving dense numbering;
	// only the content is gone. Mirrored into the log file's trailing u32
	// whenever the log is pruned (see header.Pruned).
	numPruned uint32
}

// Open opens or creates the block log rooted at dir, reconciling the block
// file against the index file per spec.md 4.E's recovery table. genesis and
// chainID are only consulted when creating a brand new log at block 1 or at
// firstBlockNum respectively; an existing log keeps whatever its header
// already records.
func Open(firstBlockNum uint32, genesis []byte, chainID [32]byte, cfg Config) (*BlockLog, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: empty directory", ErrLogException)
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", ErrLogException, cfg.Dir, err)
	}

	logPath := filepath.Join(cfg.Dir, logFileName)
	idxPath := filepath.Join(cfg.Dir, indexFileName)

	bf, err := openBlockFile(logPath)
	if err != nil {
		return nil, err
	}
	ix, err := openIndexFile(idxPath)
	if err != nil {
		bf.Close()
		return nil, err
	}

	l := &BlockLog{cfg: cfg, log: cfg.logger(), bf: bf, ix: ix}

	logSize, err := bf.RawSize()
	if err != nil {
		l.closeQuiet()
		return nil, err
	}

	switch {
	case logSize == 0 && ix.NumEntries() == 0:
		if err := l.initFresh(firstBlockNum, genesis, chainID); err != nil {
			l.closeQuiet()
			return nil, err
		}
	case logSize == 0 && ix.NumEntries() > 0:
		l.log.Warn("block log empty but index non-empty, deleting stale index")
		if err := removeIndexFile(l.ix); err != nil {
			l.closeQuiet()
			return nil, err
		}
		ix2, err := openIndexFile(idxPath)
		if err != nil {
			l.closeQuiet()
			return nil, err
		}
		l.ix = ix2
		if err := l.initFresh(firstBlockNum, genesis, chainID); err != nil {
			l.closeQuiet()
			return nil, err
		}
	default:
		if err := l.openExisting(logSize); err != nil {
			l.closeQuiet()
			return nil, err
		}
	}

	return l, nil
}

func (l *BlockLog) closeQuiet() {
	l.bf.Close()
	l.ix.Close()
}

func (l *BlockLog) initFresh(firstBlockNum uint32, genesis []byte, chainID [32]byte) error {
	h := &Header{Version: Version3, FirstBlockNum: firstBlockNum}
	if firstBlockNum == 1 {
		g := make([]byte, GenesisSize)
		copy(g, genesis)
		h.Genesis = g
	} else {
		h.ChainID = chainID
	}
	encoded := h.encode()
	if err := l.bf.WriteAt(0, encoded); err != nil {
		return err
	}
	h.HeaderSize = len(encoded)
	l.header = h
	l.dataEnd = int64(len(encoded))
	l.firstBlockNum = 0
	l.headNum = 0
	return nil
}

func (l *BlockLog) openExisting(logSize int64) error {
	f := l.bf.File()
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("%w: seek header: %v", ErrLogException, err)
	}
	h, err := readHeader(f)
	if err != nil {
		return err
	}
	l.header = h

	dataEnd := logSize
	if h.Pruned {
		if logSize < int64(h.HeaderSize)+4 {
			return fmt.Errorf("%w: pruned log too short for trailer", ErrLogException)
		}
		n, err := l.bf.ReadU32At(logSize - 4)
		if err != nil {
			return err
		}
		l.numPruned = n
		dataEnd = logSize - 4
	}
	l.dataEnd = dataEnd

	offsets, err := l.walkBackward(int64(h.HeaderSize), dataEnd)
	if err != nil {
		return err
	}

	if len(offsets) == 0 {
		l.firstBlockNum = 0
		l.headNum = 0
	} else {
		l.firstBlockNum = h.FirstBlockNum
		l.headNum = h.FirstBlockNum + uint32(len(offsets)) - 1
	}

	if l.indexMatches(offsets) {
		return nil
	}
	l.log.Warn("block log index does not match log tail, reconstructing")
	return l.rebuildIndex(offsets)
}

// walkBackward follows the trailing back-pointer chain from end back to
// start, returning the start offsets of every entry in ascending (forward)
// order. This is the only way to enumerate entries without an index, since
// no entry carries an explicit length (spec.md 3).
func (l *BlockLog) walkBackward(headerEnd, end int64) ([]int64, error) {
	return walkBackward(l.bf, headerEnd, end)
}

// walkBackward is the free-function form used by repair, which walks a
// block file before any BlockLog exists to wrap it.
func walkBackward(bf *blockFile, headerEnd, end int64) ([]int64, error) {
	var reversed []int64
	pos := end
	for pos > headerEnd {
		if pos < headerEnd+8 {
			return nil, fmt.Errorf("%w: truncated entry near offset %d", ErrLogException, pos)
		}
		start, err := bf.ReadTrailerAt(pos - 8)
		if err != nil {
			return nil, err
		}
		if start < headerEnd || start >= pos-8 {
			return nil, fmt.Errorf("%w: corrupt back-pointer at %d", ErrLogException, pos-8)
		}
		reversed = append(reversed, start)
		pos = start
	}
	offsets := make([]int64, len(reversed))
	for i, off := range reversed {
		offsets[len(reversed)-1-i] = off
	}
	return offsets, nil
}

func (l *BlockLog) indexMatches(offsets []int64) bool {
	if l.ix.NumEntries() != int64(len(offsets)) {
		return false
	}
	if len(offsets) == 0 {
		return true
	}
	first, err := l.ix.Get(0)
	if err != nil || first != offsets[0] {
		return false
	}
	last, err := l.ix.Get(int64(len(offsets) - 1))
	if err != nil || last != offsets[len(offsets)-1] {
		return false
	}
	return true
}

func (l *BlockLog) rebuildIndex(offsets []int64) error {
	if err := l.ix.Truncate(0); err != nil {
		return err
	}
	for _, off := range offsets {
		if err := l.ix.Append(off); err != nil {
			return err
		}
	}
	return l.ix.Flush()
}

// FirstBlockNum returns the lowest block number retained, or 0 if empty.
func (l *BlockLog) FirstBlockNum() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.firstBlockNum
}

// HeadBlockNum returns the highest block number retained, or 0 if empty.
func (l *BlockLog) HeadBlockNum() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.headNum
}

// Empty reports whether the log has no blocks yet.
func (l *BlockLog) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.emptyLocked()
}

func (l *BlockLog) emptyLocked() bool {
	return l.headNum == 0 && l.firstBlockNum == 0
}

func (l *BlockLog) Pruned() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.header.Pruned
}

// FirstAvailableBlockNum returns the lowest block number whose payload has
// not been deallocated by pruning. Blocks below this number still occupy an
// index slot (numbering stays dense) but their content can no longer be
// read.
func (l *BlockLog) FirstAvailableBlockNum() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.emptyLocked() {
		return 0
	}
	return l.firstBlockNum + l.numPruned
}

// Append writes the next block's serialized payload to the log and returns
// its assigned number. Numbers are assigned sequentially starting at the
// header's first_block_num; callers own the actual block identity and are
// responsible for presenting payloads in order.
func (l *BlockLog) Append(id chain.BlockID, payload []byte) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	num := id.Num()
	if l.emptyLocked() {
		if num != l.header.FirstBlockNum {
			return 0, fmt.Errorf("%w: first append must be block %d, got %d", ErrAppendFail, l.header.FirstBlockNum, num)
		}
	} else if num != l.headNum+1 {
		return 0, fmt.Errorf("%w: expected block %d, got %d", ErrAppendFail, l.headNum+1, num)
	}

	wantEntries := int64(num) - int64(l.header.FirstBlockNum)
	if l.ix.NumEntries() != wantEntries {
		return 0, fmt.Errorf("%w: index has %d entries, expected %d before appending block %d",
			ErrAppendFail, l.ix.NumEntries(), wantEntries, num)
	}

	start := l.dataEnd
	newEnd, err := l.bf.WriteEntry(start, payload)
	if err != nil {
		return 0, err
	}
	if err := l.ix.Append(start); err != nil {
		return 0, err
	}

	if l.header.Pruned {
		if err := l.bf.WriteU32At(newEnd, l.numPruned); err != nil {
			return 0, err
		}
		if err := l.bf.Truncate(newEnd + 4); err != nil {
			return 0, err
		}
	}

	l.dataEnd = newEnd
	if l.firstBlockNum == 0 {
		l.firstBlockNum = l.header.FirstBlockNum
	}
	l.headNum = num

	if l.cfg.PruneBlocks > 0 {
		if err := l.maybePrune(); err != nil {
			l.log.WithError(err).Warn("prune pass failed")
		}
	}

	return num, nil
}

// ReadBlockByNum returns the raw serialized payload for block num. Payload
// length is never stored explicitly; it is derived from the gap between
// this block's index entry and the next one (or the log's data end for the
// head block), per spec.md 3's on-disk layout.
func (l *BlockLog) ReadBlockByNum(num uint32) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readBlockByNumLocked(num)
}

func (l *BlockLog) readBlockByNumLocked(num uint32) ([]byte, error) {
	if l.emptyLocked() || num < l.firstBlockNum || num > l.headNum {
		return nil, ErrNotFound
	}
	if num < l.firstBlockNum+l.numPruned {
		return nil, fmt.Errorf("%w: block %d payload pruned", ErrNotFound, num)
	}
	k := int64(num - l.header.FirstBlockNum)
	start, err := l.ix.Get(k)
	if err != nil {
		return nil, err
	}
	var payloadLen int64
	if k+1 < l.ix.NumEntries() {
		next, err := l.ix.Get(k + 1)
		if err != nil {
			return nil, err
		}
		payloadLen = next - start - 8
	} else {
		payloadLen = l.dataEnd - start - 8
	}
	return l.bf.ReadPayload(start, payloadLen)
}

// ReadHead returns the payload and number of the most recently appended
// block.
func (l *BlockLog) ReadHead() ([]byte, uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.emptyLocked() {
		return nil, 0, ErrNotFound
	}
	payload, err := l.readBlockByNumLocked(l.headNum)
	if err != nil {
		return nil, 0, err
	}
	return payload, l.headNum, nil
}

// Flush fsyncs both the block file and the index file.
func (l *BlockLog) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.bf.Flush(); err != nil {
		return err
	}
	return l.ix.Flush()
}

// Close flushes and releases the underlying files.
func (l *BlockLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ferr := l.bf.Flush()
	if err := l.bf.Close(); err != nil && ferr == nil {
		ferr = err
	}
	if err := l.ix.Flush(); err != nil && ferr == nil {
		ferr = err
	}
	if err := l.ix.Close(); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}
