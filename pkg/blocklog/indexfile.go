package blocklog

import (
	"encoding/binary"
	"fmt"
	"os"
)

// indexEntrySize is the width of one index slot: a dense u64_le file
// offset (spec.md 3, "Index").
const indexEntrySize = 8

// indexFile wraps the on-disk index: a dense array of u64 block-file
// offsets, one per block, starting at the log's first retained block.
type indexFile struct {
	f    *os.File
	size int64
}

func openIndexFile(path string) (*indexFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open index file: %v", ErrLogException, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat index file: %v", ErrLogException, err)
	}
	return &indexFile{f: f, size: fi.Size()}, nil
}

// NumEntries returns how many dense index slots are present.
func (ix *indexFile) NumEntries() int64 { return ix.size / indexEntrySize }

// Get returns the offset stored at slot k (0-based).
func (ix *indexFile) Get(k int64) (int64, error) {
	var buf [indexEntrySize]byte
	if _, err := ix.f.ReadAt(buf[:], k*indexEntrySize); err != nil {
		return 0, fmt.Errorf("%w: read index slot %d: %v", ErrLogException, k, err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

// Append writes offset to the next dense slot.
func (ix *indexFile) Append(offset int64) error {
	return ix.Set(ix.NumEntries(), offset)
}

// Set writes offset into slot k, extending the file if necessary.
func (ix *indexFile) Set(k int64, offset int64) error {
	var buf [indexEntrySize]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(offset))
	if _, err := ix.f.WriteAt(buf[:], k*indexEntrySize); err != nil {
		return fmt.Errorf("%w: write index slot %d: %v", ErrLogException, k, err)
	}
	if end := (k + 1) * indexEntrySize; end > ix.size {
		ix.size = end
	}
	return nil
}

func (ix *indexFile) Truncate(numEntries int64) error {
	size := numEntries * indexEntrySize
	if err := ix.f.Truncate(size); err != nil {
		return fmt.Errorf("%w: truncate index file: %v", ErrLogException, err)
	}
	ix.size = size
	return nil
}

func (ix *indexFile) Flush() error {
	if err := ix.f.Sync(); err != nil {
		return fmt.Errorf("%w: fsync index file: %v", ErrLogException, err)
	}
	return nil
}

func (ix *indexFile) Close() error {
	return ix.f.Close()
}

func (ix *indexFile) path() string {
	return ix.f.Name()
}

// removeIndexFile closes and deletes the index file on disk (the "empty
// log, non-empty index -> delete index" recovery case, spec.md 4.E).
func removeIndexFile(ix *indexFile) error {
	path := ix.path()
	if err := ix.Close(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove index file: %v", ErrLogException, err)
	}
	return nil
}
