// Package chain defines the block data model shared by the block log and
// the network sync layer. Transaction execution semantics and the
// contract/consensus runtime that actually produce blocks are out of
// scope (spec.md 1 Non-goals); this package only carries the shape of a
// block and its identity.
package chain

import (
	"encoding/binary"
	"time"
)

// IDSize is the width in bytes of a BlockID.
const IDSize = 32

// BlockID identifies a block. Its first 4 bytes encode the block number,
// big-endian, so the number is recoverable without touching the payload
// (spec.md 3, "Block").
type BlockID [IDSize]byte

// Num extracts the block number encoded in the id's high bytes.
func (id BlockID) Num() uint32 {
	return binary.BigEndian.Uint32(id[0:4])
}

// IsZero reports whether id is the zero value (used as "no parent" for the
// genesis block).
func (id BlockID) IsZero() bool {
	return id == BlockID{}
}

// MakeBlockID stamps num into the high bytes of a content hash, producing
// the id a real node would derive by hashing the header and overwriting its
// leading bytes with the block number (matching the reference numbering
// scheme); contentHash must already be IDSize bytes.
func MakeBlockID(num uint32, contentHash [IDSize]byte) BlockID {
	id := BlockID(contentHash)
	binary.BigEndian.PutUint32(id[0:4], num)
	return id
}

// Block is the in-memory representation of a signed block. Transaction
// payloads are left opaque ([]byte, already-serialized) since their
// execution semantics are out of scope.
type Block struct {
	ID           BlockID
	Previous     BlockID
	Timestamp    time.Time
	Producer     string
	Transactions [][]byte
	Signature    []byte
}

// Num returns the block number, recovered from the id.
func (b *Block) Num() uint32 {
	return b.ID.Num()
}

// LIBTracker is the external collaborator that decides which blocks are
// irreversible. The block log and sync manager only ever deal with blocks
// this tracker has already approved for durable storage / catch-up replies;
// neither owns the notion of irreversibility itself (spec.md 1, "everything
// else ... is out of scope as external collaborators"; SPEC_FULL.md 12,
// "reversible-block-tracking handoff").
type LIBTracker interface {
	// LastIrreversible returns the highest block number guaranteed never to
	// be reverted.
	LastIrreversible() uint32
}
