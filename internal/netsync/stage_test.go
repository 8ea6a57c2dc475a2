package netsync

import "testing"

func TestDecideStage(t *testing.T) {
	cases := []struct {
		localHead, localLIB, peerHead, peerLIB uint32
		want                                    Stage
	}{
		{100, 90, 100, 90, StageInSync},
		{100, 90, 105, 90, StageHeadCatchup},
		{50, 40, 200, 150, StageLIBCatchup},
		{160, 150, 200, 150, StageHeadCatchup},
	}
	for _, c := range cases {
		got := decideStage(c.localHead, c.localLIB, c.peerHead, c.peerLIB)
		if got != c.want {
			t.Fatalf("decideStage(%d,%d,%d,%d) = %s, want %s",
				c.localHead, c.localLIB, c.peerHead, c.peerLIB, got, c.want)
		}
	}
}
