package netsync

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"ledgerd/pkg/chain"
)

// peerBlockCap bounds how many (peer, block) "peer already has this" facts
// are remembered in total, across all connections, before the least
// recently used are forgotten - this is
// strictly an optimization to avoid re-announcing blocks a peer already
// told us about, not a correctness requirement.
const peerBlockCap = 4096

// PeerBlockIndex tracks which blocks each connected peer is already known
// to have, so the dispatcher does not re-broadcast a block back to the
// peer that sent it (spec.md, component G).
type PeerBlockIndex struct {
	cache *lru.Cache[string, struct{}]
}

func NewPeerBlockIndex() *PeerBlockIndex {
	c, err := lru.New[string, struct{}](peerBlockCap)
	if err != nil {
		panic(err)
	}
	return &PeerBlockIndex{cache: c}
}

func peerBlockKey(peerID string, id chain.BlockID) string {
	return peerID + "|" + string(id[:])
}

// Mark records that peerID has (or will have) block id.
func (p *PeerBlockIndex) Mark(peerID string, id chain.BlockID) {
	p.cache.Add(peerBlockKey(peerID, id), struct{}{})
}

// Has reports whether peerID is already known to have block id.
func (p *PeerBlockIndex) Has(peerID string, id chain.BlockID) bool {
	_, ok := p.cache.Get(peerBlockKey(peerID, id))
	return ok
}

// Forget drops every fact recorded about peerID, called on disconnect.
func (p *PeerBlockIndex) Forget(peerID string) {
	for _, key := range p.cache.Keys() {
		if len(key) > len(peerID) && key[:len(peerID)] == peerID && key[len(peerID)] == '|' {
			p.cache.Remove(key)
		}
	}
}
