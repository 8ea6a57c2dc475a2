package blocklog

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Totem is the fixed pattern terminating the log header (spec.md 3, 6).
const Totem uint64 = 0xFFFFFFFFFFFFFFFF

// prunedFlag is the version field's high bit; spec.md 9 warns this
// overloads a field that is otherwise a monotonically increasing version,
// so every comparison must mask it off first.
const prunedFlag uint32 = 0x80000000

// Version identifies the on-disk header layout. Version 3 is always what
// this implementation writes for a header it creates (spec.md 6:
// "Implementations SHOULD write 3."); versions 1 and 2 are read for backward
// compatibility, and pruning such a log only sets the pruned flag in its
// existing version word.
type Version uint32

const (
	Version1 Version = 1 // no first_block_num, always genesis
	Version2 Version = 2 // adds first_block_num
	Version3 Version = 3 // adds chain-id-only header when first_block_num > 1
)

// GenesisSize is the length in bytes of the opaque genesis-state blob
// carried by a log whose first retained block is 1. Genesis construction
// itself belongs to the external chain controller; the block log only
// stores and replays the bytes it's handed.
const GenesisSize = 128

// ChainIDSize is the width of the chain-id header field used when the log's
// first block is not 1.
const ChainIDSize = 32

// Header is the decoded log header.
type Header struct {
	Version       Version
	Pruned        bool
	FirstBlockNum uint32
	Genesis       []byte    // GenesisSize bytes, present iff FirstBlockNum == 1
	ChainID       [32]byte  // present iff FirstBlockNum != 1
	HeaderSize    int       // total encoded size in bytes, including the totem
}

// hasGenesis reports whether this header carries genesis state rather than
// a bare chain id.
func (h *Header) hasGenesis() bool {
	return h.FirstBlockNum == 1
}

// encode serializes the header (without the pruned-trailer, which only the
// log-level writer knows how to place) for version 3 layout.
func (h *Header) encode() []byte {
	v := uint32(Version3)
	if h.Pruned {
		v |= prunedFlag
	}
	buf := make([]byte, 0, 4+4+GenesisSize+8)
	tmp4 := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp4, v)
	buf = append(buf, tmp4...)
	binary.LittleEndian.PutUint32(tmp4, h.FirstBlockNum)
	buf = append(buf, tmp4...)
	if h.hasGenesis() {
		g := make([]byte, GenesisSize)
		copy(g, h.Genesis)
		buf = append(buf, g...)
	} else {
		buf = append(buf, h.ChainID[:]...)
	}
	tmp8 := make([]byte, 8)
	binary.LittleEndian.PutUint64(tmp8, Totem)
	buf = append(buf, tmp8...)
	return buf
}

// readHeader decodes a log header starting at the current position of r,
// handling all three on-disk versions (spec.md 6).
func readHeader(r io.Reader) (*Header, error) {
	var rawVersion uint32
	if err := binary.Read(r, binary.LittleEndian, &rawVersion); err != nil {
		return nil, fmt.Errorf("%w: reading version: %v", ErrLogException, err)
	}
	h := &Header{
		Pruned:  rawVersion&prunedFlag != 0,
		Version: Version(rawVersion &^ prunedFlag),
	}
	size := 4

	switch h.Version {
	case Version1:
		h.FirstBlockNum = 1
	case Version2, Version3:
		var first uint32
		if err := binary.Read(r, binary.LittleEndian, &first); err != nil {
			return nil, fmt.Errorf("%w: reading first_block_num: %v", ErrLogException, err)
		}
		h.FirstBlockNum = first
		size += 4
	default:
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, h.Version)
	}

	if h.hasGenesis() {
		g := make([]byte, GenesisSize)
		if _, err := io.ReadFull(r, g); err != nil {
			return nil, fmt.Errorf("%w: reading genesis: %v", ErrLogException, err)
		}
		h.Genesis = g
		size += GenesisSize
	} else {
		if _, err := io.ReadFull(r, h.ChainID[:]); err != nil {
			return nil, fmt.Errorf("%w: reading chain id: %v", ErrLogException, err)
		}
		size += ChainIDSize
	}

	var totem uint64
	if err := binary.Read(r, binary.LittleEndian, &totem); err != nil {
		return nil, fmt.Errorf("%w: reading totem: %v", ErrLogException, err)
	}
	if totem != Totem {
		return nil, fmt.Errorf("%w: bad totem 0x%x", ErrLogException, totem)
	}
	size += 8

	h.HeaderSize = size
	return h, nil
}
