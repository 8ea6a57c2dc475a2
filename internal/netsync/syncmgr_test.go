package netsync

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"ledgerd/pkg/chain"
)

type stubLIBTracker struct{ lib uint32 }

func (s stubLIBTracker) LastIrreversible() uint32 { return s.lib }

func TestSyncManagerPicksFurthestAheadPeer(t *testing.T) {
	clk := clock.NewMock()
	m := NewSyncManager(logrus.NewEntry(logrus.New()), clk, stubLIBTracker{lib: 10})

	m.UpdatePeer(PeerStatus{ID: "a", Head: 50, LIB: 10, Latency: 50 * time.Millisecond})
	m.UpdatePeer(PeerStatus{ID: "b", Head: 80, LIB: 10, Latency: 20 * time.Millisecond})

	req, err := m.NextRange(10)
	if err != nil {
		t.Fatalf("NextRange: %v", err)
	}
	if req.PeerID != "b" {
		t.Fatalf("expected peer b (furthest ahead), got %s", req.PeerID)
	}
	if req.From != 11 || req.To != 80 {
		t.Fatalf("expected range [11,80], got [%d,%d]", req.From, req.To)
	}
}

func TestSyncManagerRotatesOrdinalOnSelection(t *testing.T) {
	clk := clock.NewMock()
	m := NewSyncManager(logrus.NewEntry(logrus.New()), clk, stubLIBTracker{lib: 10})

	m.UpdatePeer(PeerStatus{ID: "a", Head: 80, Latency: 20 * time.Millisecond})
	m.UpdatePeer(PeerStatus{ID: "b", Head: 80, Latency: 20 * time.Millisecond})

	first, err := m.NextRange(10)
	if err != nil {
		t.Fatalf("NextRange: %v", err)
	}
	second, err := m.NextRange(10)
	if err != nil {
		t.Fatalf("NextRange: %v", err)
	}
	if first.PeerID == second.PeerID {
		t.Fatalf("expected round-robin to rotate between equally good peers a and b, got %s twice", first.PeerID)
	}
}

func TestSyncManagerNoPeersErrors(t *testing.T) {
	m := NewSyncManager(logrus.NewEntry(logrus.New()), clock.NewMock(), stubLIBTracker{})
	if _, err := m.NextRange(0); err != ErrNoPeerForSync {
		t.Fatalf("expected ErrNoPeerForSync, got %v", err)
	}
}

func TestProcessHandshakeEntersHeadCatchupOnVerifyCatchUp(t *testing.T) {
	clk := clock.NewMock()
	m := NewSyncManager(logrus.NewEntry(logrus.New()), clk, stubLIBTracker{lib: 100})

	peerID := chain.MakeBlockID(200, [32]byte{0xAB})
	hs := HandshakeMsg{HeadNum: 200, LIB: 50, HeadID: peerID}

	res := m.ProcessHandshake(110, 100, chain.BlockID{}, "peer-x", hs, 2, false)
	if res.Action != ActionVerifyCatchUp {
		t.Fatalf("expected ActionVerifyCatchUp, got %s", res.Action)
	}
	if res.RequestHeadID != peerID {
		t.Fatalf("expected request for peer's head id %v, got %v", peerID, res.RequestHeadID)
	}
	if m.stage != StageHeadCatchup {
		t.Fatalf("expected stage head_catchup, got %s", m.stage)
	}
}

func TestOnSyncSourceDisconnectedClampsNextExpected(t *testing.T) {
	clk := clock.NewMock()
	m := NewSyncManager(logrus.NewEntry(logrus.New()), clk, stubLIBTracker{lib: 100})
	m.UpdatePeer(PeerStatus{ID: "src", Head: 500, LIB: 400})

	hs := HandshakeMsg{HeadNum: 500, LIB: 400}
	m.ProcessHandshake(10, 0, chain.BlockID{}, "src", hs, 0, false)
	if _, err := m.NextLIBCatchupRange(50); err != nil {
		t.Fatalf("NextLIBCatchupRange: %v", err)
	}
	before := m.NextExpected()

	if _, ok := m.OnSyncSourceDisconnected("src", 300); ok {
		// no replacement peer is expected since "src" was the only one and
		// it was just removed; next_expected must still be clamped.
	}
	after := m.NextExpected()
	if after < before {
		t.Fatalf("next_expected must be non-decreasing on disconnect, went from %d to %d", before, after)
	}
	if after < 301 {
		t.Fatalf("expected next_expected clamped to at least lib+1=301, got %d", after)
	}
}
