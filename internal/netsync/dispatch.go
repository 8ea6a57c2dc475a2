package netsync

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"ledgerd/pkg/chain"
)

// Peer is the minimal send surface the dispatcher needs from a connection;
// connection.go implements it against the real wire protocol.
type Peer interface {
	ID() string
	SendBlock(id chain.BlockID, payload []byte) error
	SendTrx(id TrxID, payload []byte) error
	RequestBlock(id chain.BlockID) error
	SendHandshake(hs HandshakeMsg) error
	CloseWithReason(reason string) error
}

type fetchState struct {
	id       chain.BlockID
	tried    map[string]bool
	backoff  backoff.BackOff
	next     time.Time
	deadline time.Time
}

// Dispatcher gossips new blocks and transactions to every peer that hasn't
// already seen them, and drives retry/expiry for blocks this node has
// requested but not yet received (spec.md, component H).
type Dispatcher struct {
	mu     sync.Mutex
	log    *logrus.Entry
	clock  clock.Clock
	peers  map[string]Peer
	blocks *PeerBlockIndex
	trxs   *TrxIndex
	fetch  map[chain.BlockID]*fetchState
}

func NewDispatcher(log *logrus.Entry, clk clock.Clock) *Dispatcher {
	if clk == nil {
		clk = clock.New()
	}
	return &Dispatcher{
		log:    log,
		clock:  clk,
		peers:  make(map[string]Peer),
		blocks: NewPeerBlockIndex(),
		trxs:   NewTrxIndex(),
		fetch:  make(map[chain.BlockID]*fetchState),
	}
}

func (d *Dispatcher) AddPeer(p Peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[p.ID()] = p
}

func (d *Dispatcher) RemovePeer(peerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.peers, peerID)
	d.blocks.Forget(peerID)
}

// BroadcastBlock sends id/payload to every peer except fromPeer that isn't
// already known to have it.
func (d *Dispatcher) BroadcastBlock(id chain.BlockID, payload []byte, fromPeer string) {
	d.mu.Lock()
	peers := make([]Peer, 0, len(d.peers))
	for pid, p := range d.peers {
		if pid == fromPeer {
			continue
		}
		peers = append(peers, p)
	}
	d.mu.Unlock()

	for _, p := range peers {
		if d.blocks.Has(p.ID(), id) {
			continue
		}
		if err := p.SendBlock(id, payload); err != nil {
			d.log.WithError(err).WithField("peer", p.ID()).Warn("broadcast block failed")
			continue
		}
		d.blocks.Mark(p.ID(), id)
	}

	d.mu.Lock()
	delete(d.fetch, id)
	d.mu.Unlock()
}

// BroadcastTrx gossips a transaction to every peer except fromPeer, once
// per node (TrxIndex dedup means a transaction only ever gets broadcast the
// first time this node sees it).
func (d *Dispatcher) BroadcastTrx(id TrxID, payload []byte, fromPeer string, expiry time.Time) {
	if !d.trxs.Add(id, d.clock.Now(), expiry) {
		return
	}
	d.mu.Lock()
	peers := make([]Peer, 0, len(d.peers))
	for pid, p := range d.peers {
		if pid == fromPeer {
			continue
		}
		peers = append(peers, p)
	}
	d.mu.Unlock()

	for _, p := range peers {
		if err := p.SendTrx(id, payload); err != nil {
			d.log.WithError(err).WithField("peer", p.ID()).Warn("broadcast trx failed")
		}
	}
}

// RequestMissingBlock asks a peer other than excludePeer for a block this
// node needs (e.g. the parent of something sitting in the unlinkable
// cache), and arms a retry/expire schedule for it.
func (d *Dispatcher) RequestMissingBlock(id chain.BlockID, excludePeer string, maxWait time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, inFlight := d.fetch[id]; inFlight {
		return nil
	}

	var chosen Peer
	for pid, p := range d.peers {
		if pid == excludePeer {
			continue
		}
		chosen = p
		break
	}
	if chosen == nil {
		return ErrNoPeerForSync
	}

	now := d.clock.Now()
	st := &fetchState{
		id:       id,
		tried:    map[string]bool{chosen.ID(): true},
		backoff:  backoff.NewExponentialBackOff(),
		next:     now,
		deadline: now.Add(maxWait),
	}
	d.fetch[id] = st
	return chosen.RequestBlock(id)
}

// RetryFetches re-requests any block whose retry deadline has passed, from
// a peer that hasn't already been tried for it if possible, and drops
// fetches that have exceeded their overall deadline.
func (d *Dispatcher) RetryFetches(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, st := range d.fetch {
		if now.After(st.deadline) {
			delete(d.fetch, id)
			continue
		}
		if now.Before(st.next) {
			continue
		}
		var chosen Peer
		for pid, p := range d.peers {
			if !st.tried[pid] {
				chosen = p
				break
			}
		}
		if chosen == nil {
			for _, p := range d.peers {
				chosen = p
				break
			}
		}
		if chosen == nil {
			continue
		}
		st.tried[chosen.ID()] = true
		st.next = now.Add(st.backoff.NextBackOff())
		if err := chosen.RequestBlock(id); err != nil {
			d.log.WithError(err).WithField("peer", chosen.ID()).Warn("retry fetch failed")
		}
	}
}

// Pending reports how many block fetches are currently outstanding.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fetch)
}

// ClosePeer closes peerID's connection with the given go-away reason and
// stops tracking it. Used to enforce the rejection back-off bound
// (spec.md, component I) and any other connection-fatal condition.
func (d *Dispatcher) ClosePeer(peerID, reason string) {
	d.mu.Lock()
	p, ok := d.peers[peerID]
	if ok {
		delete(d.peers, peerID)
		d.blocks.Forget(peerID)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	if err := p.CloseWithReason(reason); err != nil {
		d.log.WithError(err).WithField("peer", peerID).Debug("close with reason failed")
	}
}

// BroadcastHandshake re-sends our current handshake to every connected
// peer, used when the sync manager transitions back to in_sync so every
// peer re-evaluates against our new position (spec.md, component I's "on
// received block during sync").
func (d *Dispatcher) BroadcastHandshake(hs HandshakeMsg) {
	d.mu.Lock()
	peers := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		peers = append(peers, p)
	}
	d.mu.Unlock()

	for _, p := range peers {
		if err := p.SendHandshake(hs); err != nil {
			d.log.WithError(err).WithField("peer", p.ID()).Warn("re-emit handshake failed")
		}
	}
}
