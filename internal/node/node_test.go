package node

import (
	"testing"

	"github.com/sirupsen/logrus"

	"ledgerd/pkg/config"
)

func testNode(t *testing.T) *Node {
	t.Helper()
	cfg := &config.Config{}
	cfg.BlockLog.Dir = t.TempDir()
	cfg.Network.ListenAddr = "127.0.0.1:0"
	cfg.ControlAPI.ListenAddr = "127.0.0.1:0"

	n, err := New(cfg, logrus.NewEntry(logrus.New()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { n.Close() })
	return n
}

func TestNewOpensEmptyBlockLog(t *testing.T) {
	n := testNode(t)
	st := n.Status()
	if st.HeadBlockNum != 0 {
		t.Fatalf("expected head 0 on a fresh log, got %d", st.HeadBlockNum)
	}
	if st.Stage != "in_sync" {
		t.Fatalf("expected in_sync with no peers, got %s", st.Stage)
	}
}

func TestSetLastIrreversibleIsObservable(t *testing.T) {
	n := testNode(t)
	n.SetLastIrreversible(7)
	if got := n.LastIrreversible(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := n.Status().LastIrreversible; got != 7 {
		t.Fatalf("expected status to reflect 7, got %d", got)
	}
}
