package netsync

// Stage identifies where a node sits in the catch-up process relative to
// its peers (spec.md, component I).
type Stage int

const (
	// StageInSync means the local head is at or ahead of the peer's
	// reported head: no bulk range requests are in flight, only ordinary
	// gossip.
	StageInSync Stage = iota
	// StageLIBCatchup means the local head trails a peer's last
	// irreversible block: blocks up to that LIB can be requested in bulk
	// without worrying about forks.
	StageLIBCatchup
	// StageHeadCatchup means the local head is between the peer's LIB and
	// its head: remaining blocks may still be on a fork, so they are
	// requested one at a time and verified as they link in.
	StageHeadCatchup
)

func (s Stage) String() string {
	switch s {
	case StageInSync:
		return "in_sync"
	case StageLIBCatchup:
		return "lib_catchup"
	case StageHeadCatchup:
		return "head_catchup"
	default:
		return "unknown"
	}
}

// decideStage implements spec.md component I's condition table for which
// stage a node should be in given its own head/LIB and a single peer's
// reported head/LIB.
func decideStage(localHead, localLIB, peerHead, peerLIB uint32) Stage {
	if localHead >= peerHead {
		return StageInSync
	}
	if localHead < peerLIB {
		return StageLIBCatchup
	}
	return StageHeadCatchup
}
