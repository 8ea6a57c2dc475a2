package blocklog

import (
	"encoding/binary"
	"fmt"
	"os"
)

// blockFile is a thin wrapper over the on-disk block log file. It performs
// no bookkeeping of its own about where "logical" data ends - a pruned log
// carries a trailing num_blocks_in_log u32 past the last entry, so the
// BlockLog above this type is the one that tracks the true append
// position (see log.go's dataEnd).
type blockFile struct {
	f *os.File
}

func openBlockFile(path string) (*blockFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open block file: %v", ErrLogException, err)
	}
	return &blockFile{f: f}, nil
}

// RawSize returns the file's actual size on disk, including any pruned
// trailer.
func (bf *blockFile) RawSize() (int64, error) {
	fi, err := bf.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat block file: %v", ErrLogException, err)
	}
	return fi.Size(), nil
}

// WriteEntry writes payload||u64_le(start) at start and returns the offset
// one past the trailer (i.e. the position the next entry, if any, would
// start at).
func (bf *blockFile) WriteEntry(start int64, payload []byte) (int64, error) {
	if _, err := bf.f.WriteAt(payload, start); err != nil {
		return 0, fmt.Errorf("%w: write payload: %v", ErrAppendFail, err)
	}
	trailerPos := start + int64(len(payload))
	var trailer [8]byte
	binary.LittleEndian.PutUint64(trailer[:], uint64(start))
	if _, err := bf.f.WriteAt(trailer[:], trailerPos); err != nil {
		return 0, fmt.Errorf("%w: write trailer: %v", ErrAppendFail, err)
	}
	return trailerPos + 8, nil
}

// ReadPayload returns the payloadLen bytes starting at startOffset.
func (bf *blockFile) ReadPayload(startOffset, payloadLen int64) ([]byte, error) {
	if payloadLen < 0 {
		return nil, fmt.Errorf("%w: negative payload length %d", ErrLogException, payloadLen)
	}
	buf := make([]byte, payloadLen)
	if _, err := bf.f.ReadAt(buf, startOffset); err != nil {
		return nil, fmt.Errorf("%w: read payload at %d: %v", ErrLogException, startOffset, err)
	}
	return buf, nil
}

// ReadTrailerAt reads the u64 back-pointer stored at the 8 bytes starting
// at pos.
func (bf *blockFile) ReadTrailerAt(pos int64) (int64, error) {
	var buf [8]byte
	if _, err := bf.f.ReadAt(buf[:], pos); err != nil {
		return 0, fmt.Errorf("%w: read trailer at %d: %v", ErrLogException, pos, err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func (bf *blockFile) ReadU32At(pos int64) (uint32, error) {
	var buf [4]byte
	if _, err := bf.f.ReadAt(buf[:], pos); err != nil {
		return 0, fmt.Errorf("%w: read u32 at %d: %v", ErrLogException, pos, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (bf *blockFile) WriteU32At(pos int64, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := bf.f.WriteAt(buf[:], pos); err != nil {
		return fmt.Errorf("%w: write u32 at %d: %v", ErrLogException, pos, err)
	}
	return nil
}

func (bf *blockFile) WriteAt(pos int64, b []byte) error {
	if _, err := bf.f.WriteAt(b, pos); err != nil {
		return fmt.Errorf("%w: write at %d: %v", ErrLogException, pos, err)
	}
	return nil
}

func (bf *blockFile) ReadAt(pos int64, n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := bf.f.ReadAt(buf, pos); err != nil {
		return nil, fmt.Errorf("%w: read at %d: %v", ErrLogException, pos, err)
	}
	return buf, nil
}

func (bf *blockFile) Flush() error {
	if err := bf.f.Sync(); err != nil {
		return fmt.Errorf("%w: fsync block file: %v", ErrLogException, err)
	}
	return nil
}

func (bf *blockFile) Truncate(size int64) error {
	if err := bf.f.Truncate(size); err != nil {
		return fmt.Errorf("%w: truncate block file: %v", ErrLogException, err)
	}
	return nil
}

func (bf *blockFile) File() *os.File { return bf.f }

func (bf *blockFile) Close() error {
	return bf.f.Close()
}

func (bf *blockFile) path() string { return bf.f.Name() }
