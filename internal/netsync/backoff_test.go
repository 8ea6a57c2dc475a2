package netsync

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

// TestBackoffClosesOnThirteenthWindow exercises spec.md's S6 scenario and
// testable property 10: 13 rejections spaced 3ms apart (each well past the
// prior window's 2ms expiry, so none coalesce) must close the peer once the
// 13th window elapses, with benign_other.
func TestBackoffClosesOnThirteenthWindow(t *testing.T) {
	clk := clock.NewMock()
	closedCh := make(chan string, 1)
	b := NewPeerBackoff(clk, func(peerID string) { closedCh <- peerID })

	for i := 0; i < 13; i++ {
		b.Reject("p")
		clk.Add(3 * time.Millisecond)
	}

	select {
	case peerID := <-closedCh:
		if peerID != "p" {
			t.Fatalf("expected peer p closed, got %s", peerID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected onClose to fire after the 13th window")
	}
}

// TestBackoffCoalescesWithinWindow ensures rejections arriving while a
// window is still open don't each start their own timer/count.
func TestBackoffCoalescesWithinWindow(t *testing.T) {
	clk := clock.NewMock()
	b := NewPeerBackoff(clk, nil)

	b.Reject("p")
	b.Reject("p")
	b.Reject("p")
	clk.Add(RejectionWindow + time.Microsecond)

	if got := b.RejectionCount("p"); got != 1 {
		t.Fatalf("expected a single coalesced window to count as 1, got %d", got)
	}
}

// TestBackoffResetClearsState ensures an accepted block (Reset) drops a
// peer's accumulated rejection count instead of letting it carry over.
func TestBackoffResetClearsState(t *testing.T) {
	clk := clock.NewMock()
	b := NewPeerBackoff(clk, nil)

	b.Reject("p")
	clk.Add(RejectionWindow + time.Microsecond)
	if got := b.RejectionCount("p"); got != 1 {
		t.Fatalf("expected count 1 before reset, got %d", got)
	}

	b.Reset("p")
	if got := b.RejectionCount("p"); got != 0 {
		t.Fatalf("expected count 0 after reset, got %d", got)
	}
}

// TestBackoffDoesNotCloseUnderThreshold confirms 12 consecutive windows
// never trigger onClose.
func TestBackoffDoesNotCloseUnderThreshold(t *testing.T) {
	clk := clock.NewMock()
	closed := false
	b := NewPeerBackoff(clk, func(string) { closed = true })

	for i := 0; i < RejectionCloseThreshold-1; i++ {
		b.Reject("p")
		clk.Add(3 * time.Millisecond)
	}
	clk.Add(time.Millisecond)

	if closed {
		t.Fatalf("peer should not be closed before reaching the threshold")
	}
	if got := b.RejectionCount("p"); got != RejectionCloseThreshold-1 {
		t.Fatalf("expected count %d, got %d", RejectionCloseThreshold-1, got)
	}
}
