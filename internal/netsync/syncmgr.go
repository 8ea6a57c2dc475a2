package netsync

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"ledgerd/pkg/chain"
)

// PeerStatus is the catch-up-relevant state a connection reports about its
// remote peer, refreshed on every handshake.
type PeerStatus struct {
	ID         string
	Head       uint32
	LIB        uint32
	Latency    time.Duration
	HeadID     chain.BlockID
	StartBlock uint32 // earliest block number this peer can serve
	WentAway   bool   // this peer has previously been go-away'd
}

type trackedPeer struct {
	status        PeerStatus
	ordinal       int
	syncingFromUs bool
}

// RangeRequest is the [from, to] inclusive span the sync manager wants a
// peer to send next.
type RangeRequest struct {
	PeerID string
	From   uint32
	To     uint32
}

// defaultMaxRange bounds how many blocks a single range request can span,
// keeping any one peer from being asked to stream an unbounded amount of
// history in one go.
const defaultMaxRange = 1000

// peerLimit is how many of the latency-sorted eligible sync sources are
// considered before picking the one with the lowest round-robin ordinal
// (spec.md, component I's range-request source selection).
const peerLimit = 3

// HandshakeResult is what ProcessHandshake reports back to the caller so it
// can perform whatever I/O (notice, request, re-handshake) the action
// implies; the sync manager itself only owns state, not sockets.
type HandshakeResult struct {
	Action            HandshakeAction
	Notice            NoticeMsg
	RequestHeadID     chain.BlockID
	EnteredLIBCatchup bool
}

// SyncManager tracks every connected peer's reported head/LIB, decides
// which catch-up stage the node is in, and picks which peer to pull the
// next range of blocks from (spec.md, component I).
type SyncManager struct {
	mu       sync.Mutex
	log      *logrus.Entry
	clock    clock.Clock
	tracker  chain.LIBTracker
	peers    map[string]*trackedPeer
	backoff  *PeerBackoff
	ordinalN int
	maxRange uint32

	// sync state (spec.md 4.I)
	stage         Stage
	knownLIB      uint32
	nextExpected  uint32
	lastRequested uint32
	syncSource    string
}

// NewSyncManager builds a SyncManager. Its rejection back-off starts with no
// close callback; SetPeerCloser installs the one invoked when a peer's
// rejection counter crosses the close threshold.
func NewSyncManager(log *logrus.Entry, clk clock.Clock, tracker chain.LIBTracker) *SyncManager {
	if clk == nil {
		clk = clock.New()
	}
	m := &SyncManager{
		log:      log,
		clock:    clk,
		tracker:  tracker,
		peers:    make(map[string]*trackedPeer),
		maxRange: defaultMaxRange,
		stage:    StageInSync,
	}
	m.backoff = NewPeerBackoff(clk, nil)
	return m
}

// SetPeerCloser wires the callback the rejection back-off uses to actually
// close a peer's connection once its rejection counter crosses the close
// threshold. Must be called before any Reject traffic arrives if the close
// behavior is to take effect.
func (m *SyncManager) SetPeerCloser(closer func(peerID, reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backoff = NewPeerBackoff(m.clock, func(peerID string) {
		if closer != nil {
			closer(peerID, GoAwayBenignOther)
		}
	})
}

// UpdatePeer records or refreshes a peer's reported status.
func (m *SyncManager) UpdatePeer(st PeerStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatePeerLocked(st)
}

func (m *SyncManager) updatePeerLocked(st PeerStatus) *trackedPeer {
	tp, ok := m.peers[st.ID]
	if !ok {
		tp = &trackedPeer{}
		m.peers[st.ID] = tp
	}
	tp.status = st
	return tp
}

func (m *SyncManager) RemovePeer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, id)
}

// RejectedBy registers that peerID rejected the in-flight request, arming
// its back-off window (spec.md, component I's rejection back-off).
func (m *SyncManager) RejectedBy(peerID string) {
	m.backoff.Reject(peerID)
}

// AcceptedBy clears peerID's back-off state after a successful exchange.
func (m *SyncManager) AcceptedBy(peerID string) {
	m.backoff.Reset(peerID)
}

// Stage reports the catch-up stage implied by the best (highest-head) peer
// currently known, relative to localHead/localLIB.
func (m *SyncManager) Stage(localHead, localLIB uint32) Stage {
	best, ok := m.bestPeer(localHead)
	if !ok {
		return StageInSync
	}
	return decideStage(localHead, localLIB, best.status.Head, best.status.LIB)
}

// bestPeer returns the peer furthest ahead of localHead, breaking ties by
// latency then by round-robin ordinal, and bumps the chosen peer's ordinal
// from the global counter (spec.md: "Increment the global ordinal and
// assign it to the chosen peer"), so repeated calls rotate among equally
// good peers instead of always returning the first one ever seen.
func (m *SyncManager) bestPeer(localHead uint32) (*trackedPeer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *trackedPeer
	for _, tp := range m.peers {
		if tp.status.Head <= localHead {
			continue
		}
		if best == nil {
			best = tp
			continue
		}
		if tp.status.Head != best.status.Head {
			if tp.status.Head > best.status.Head {
				best = tp
			}
			continue
		}
		if tp.status.Latency != best.status.Latency {
			if tp.status.Latency < best.status.Latency {
				best = tp
			}
			continue
		}
		if tp.ordinal < best.ordinal {
			best = tp
		}
	}
	if best == nil {
		return nil, false
	}
	m.ordinalN++
	best.ordinal = m.ordinalN
	return best, true
}

// NextRange picks the best available peer and returns the next bounded
// range of blocks this node should request to close the gap to that peer's
// head.
func (m *SyncManager) NextRange(localHead uint32) (RangeRequest, error) {
	best, ok := m.bestPeer(localHead)
	if !ok {
		return RangeRequest{}, ErrNoPeerForSync
	}
	from := localHead + 1
	to := best.status.Head
	if to-from+1 > m.maxRange {
		to = from + m.maxRange - 1
	}
	return RangeRequest{PeerID: best.status.ID, From: from, To: to}, nil
}

// PeerCount returns how many peers are currently tracked.
func (m *SyncManager) PeerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

// ProcessHandshake implements recv_handshake (spec.md, component I):
// updates the peer's tracked status, evaluates the six-row transition
// table, and folds the result into the sync state (known_lib, stage,
// sync_source). latencyBudget is the peer's measured round-trip latency in
// the same units as minDistance (block counts, per spec.md's Δ formula).
func (m *SyncManager) ProcessHandshake(ourHead, ourLIB uint32, ourHeadID chain.BlockID, peerID string, hs HandshakeMsg, latencyBudget uint32, alreadySentHandshake bool) HandshakeResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp := m.updatePeerLocked(PeerStatus{
		ID:      peerID,
		Head:    hs.HeadNum,
		LIB:     hs.LIB,
		HeadID:  hs.HeadID,
		Latency: tpLatency(m.peers[peerID]),
	})

	action := decideHandshakeAction(ourHead, ourLIB, ourHeadID, hs.HeadNum, hs.LIB, hs.HeadID, latencyBudget, alreadySentHandshake)

	result := HandshakeResult{Action: action}
	switch action {
	case ActionMarkNotSyncing:
		tp.syncingFromUs = false
	case ActionLastIrrCatchUpNotice:
		result.Notice = NoticeMsg{Kind: NoticeLastIrrCatchUp, Head: ourHead}
	case ActionVerifyCatchUp:
		if m.stage != StageLIBCatchup && hs.HeadNum >= ourLIB {
			m.stage = StageHeadCatchup
			tp.syncingFromUs = true
			result.RequestHeadID = hs.HeadID
		} else {
			result.Action = ActionNone
		}
	case ActionCatchUpNotice:
		result.Notice = NoticeMsg{Kind: NoticeCatchUp, Head: ourHead}
	}

	if hs.LIB > m.knownLIB {
		m.knownLIB = hs.LIB
		if ourHead < m.knownLIB {
			m.stage = StageLIBCatchup
			if m.nextExpected == 0 {
				m.nextExpected = ourHead + 1
			}
			result.EnteredLIBCatchup = true
		}
	}

	return result
}

func tpLatency(tp *trackedPeer) time.Duration {
	if tp == nil {
		return 0
	}
	return tp.status.Latency
}

// NextLIBCatchupRange returns the next bounded range to request while in
// lib_catchup: [next_expected, min(next_expected+span-1, known_lib)], along
// with the peer chosen to serve it.
func (m *SyncManager) NextLIBCatchupRange(span uint32) (RangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nextExpected == 0 || m.nextExpected > m.knownLIB {
		return RangeRequest{}, ErrNoPeerForSync
	}
	src, ok := m.selectSyncSourceLocked()
	if !ok {
		return RangeRequest{}, ErrNoPeerForSync
	}

	from := m.nextExpected
	to := m.nextExpected + span - 1
	if to > m.knownLIB {
		to = m.knownLIB
	}
	m.lastRequested = to
	m.syncSource = src.status.ID
	src.syncingFromUs = true
	return RangeRequest{PeerID: src.status.ID, From: from, To: to}, nil
}

// selectSyncSourceLocked filters tracked peers to those that have not been
// go-away'd, can serve next_expected and whose head reaches known_lib (no
// role or connection-state filter is applied), sorts by latency, keeps the first peerLimit, and picks the smallest
// ordinal among those, bumping it from the global counter (spec.md,
// component I's range-request source selection). Caller holds m.mu.
func (m *SyncManager) selectSyncSourceLocked() (*trackedPeer, bool) {
	candidates := make([]*trackedPeer, 0, len(m.peers))
	for _, tp := range m.peers {
		if tp.status.WentAway {
			continue
		}
		if tp.status.StartBlock > m.nextExpected {
			continue
		}
		if tp.status.Head < m.knownLIB {
			continue
		}
		candidates = append(candidates, tp)
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].status.Latency < candidates[j].status.Latency
	})
	if len(candidates) > peerLimit {
		candidates = candidates[:peerLimit]
	}
	best := candidates[0]
	for _, tp := range candidates[1:] {
		if tp.ordinal < best.ordinal {
			best = tp
		}
	}
	m.ordinalN++
	best.ordinal = m.ordinalN
	return best, true
}

// OnBlockDuringSync implements spec.md's "on received block during sync":
// it reports whether this node just caught up to known_lib and should
// transition to in_sync (the caller is then responsible for re-broadcasting
// handshakes to every peer, since that requires socket access this manager
// doesn't have).
func (m *SyncManager) OnBlockDuringSync(blockNum uint32, applied bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if blockNum >= m.nextExpected {
		m.nextExpected = blockNum + 1
	}
	if applied && blockNum >= m.knownLIB && m.stage != StageInSync {
		m.stage = StageInSync
		m.syncSource = ""
		return true
	}
	return false
}

// OnSyncSourceDisconnected implements spec.md's sync-source-disconnect
// clamp (testable property 8): last_requested resets, next_expected clamps
// to max(lib+1, next_expected), and a new range request is returned from a
// freshly selected peer if one is eligible.
func (m *SyncManager) OnSyncSourceDisconnected(peerID string, lib uint32) (RangeRequest, bool) {
	m.mu.Lock()
	if peerID != "" {
		delete(m.peers, peerID)
	}
	if m.syncSource != peerID && peerID != "" {
		m.mu.Unlock()
		return RangeRequest{}, false
	}
	m.syncSource = ""
	m.lastRequested = 0
	if floor := lib + 1; floor > m.nextExpected {
		m.nextExpected = floor
	}
	span := m.maxRange
	m.mu.Unlock()

	req, err := m.NextLIBCatchupRange(span)
	if err != nil {
		return RangeRequest{}, false
	}
	return req, true
}

// KnownLIB reports the highest peer LIB observed so far.
func (m *SyncManager) KnownLIB() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.knownLIB
}

// NextExpected reports the next block number this node expects during
// lib_catchup.
func (m *SyncManager) NextExpected() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextExpected
}
