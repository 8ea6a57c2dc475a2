package netsync

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RejectionWindow is the sliding window duration W that coalesces
// consecutive rejected blocks from the same peer into a single count
// (spec.md, component I).
const RejectionWindow = 2 * time.Millisecond

// RejectionCloseThreshold is how many consecutive rejection windows a peer
// may accrue before it is closed with benign_other (spec.md testable
// property 10, scenario S6).
const RejectionCloseThreshold = 13

type peerRejectState struct {
	count int
	timer *clock.Timer
}

// PeerBackoff implements spec.md component I's rejection back-off: a
// sliding window of duration W that coalesces rejected blocks from the same
// peer. A rejected block opens a window if the peer is currently
// "accepted" (no window running); further rejections while that window is
// open are coalesced into it. On the window's natural expiry the peer's
// rejection counter increments; once the counter reaches
// RejectionCloseThreshold, onClose is invoked and the peer's state is
// dropped. An accepted block resets all state for that peer.
type PeerBackoff struct {
	mu      sync.Mutex
	clock   clock.Clock
	window  time.Duration
	onClose func(peerID string)
	state   map[string]*peerRejectState
}

// NewPeerBackoff builds a PeerBackoff. onClose is invoked (in its own
// goroutine) whenever a peer's rejection counter reaches
// RejectionCloseThreshold; it may be nil in tests that only care about the
// counting behavior.
func NewPeerBackoff(clk clock.Clock, onClose func(peerID string)) *PeerBackoff {
	if clk == nil {
		clk = clock.New()
	}
	return &PeerBackoff{
		clock:   clk,
		window:  RejectionWindow,
		onClose: onClose,
		state:   make(map[string]*peerRejectState),
	}
}

// Reject records a rejected block from peerID. If peerID has no window
// currently open, a new one is started that will expire after the
// configured window duration; any rejection arriving while that window is
// still open is coalesced into it (a no-op beyond the already-running
// timer).
func (b *PeerBackoff) Reject(peerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.state[peerID]; ok && st.timer != nil {
		// window still open: coalesce.
		return
	}

	st := &peerRejectState{}
	if existing, ok := b.state[peerID]; ok {
		st.count = existing.count
	}
	b.state[peerID] = st
	st.timer = b.clock.AfterFunc(b.window, func() { b.expireWindow(peerID) })
}

// expireWindow fires when a peer's rejection window naturally elapses with
// no intervening accepted block: the window's rejections collapse into one
// increment of the peer's counter.
func (b *PeerBackoff) expireWindow(peerID string) {
	b.mu.Lock()
	st, ok := b.state[peerID]
	if !ok {
		b.mu.Unlock()
		return
	}
	st.timer = nil
	st.count++
	closed := st.count >= RejectionCloseThreshold
	if closed {
		delete(b.state, peerID)
	}
	onClose := b.onClose
	b.mu.Unlock()

	if closed && onClose != nil {
		go onClose(peerID)
	}
}

// Reset clears peerID's back-off state, called after an accepted block.
func (b *PeerBackoff) Reset(peerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.state[peerID]; ok && st.timer != nil {
		st.timer.Stop()
	}
	delete(b.state, peerID)
}

// RejectionCount reports how many consecutive rejection windows peerID has
// accrued so far. Exposed mainly for tests.
func (b *PeerBackoff) RejectionCount(peerID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.state[peerID]
	if !ok {
		return 0
	}
	return st.count
}
