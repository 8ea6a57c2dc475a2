package netsync

import "ledgerd/pkg/chain"

// HandshakeMsg is exchanged once, immediately after a connection is
// established, so each side learns the other's chain identity and current
// position before any block or transaction traffic flows (spec.md 6).
type HandshakeMsg struct {
	ChainID      [32]byte      `json:"chain_id"`
	HeadNum      uint32        `json:"head_num"`
	HeadID       chain.BlockID `json:"head_id"`
	LIB          uint32        `json:"lib"`
	AgentVersion string        `json:"agent_version"`
}

// Compatible reports whether a handshake from a peer is usable: the chain
// ids must match exactly.
func (h HandshakeMsg) Compatible(localChainID [32]byte) bool {
	return h.ChainID == localChainID
}

// HandshakeAction is what the recv_handshake transition table (spec.md,
// component I) says to do in response to a peer's handshake.
type HandshakeAction int

const (
	// ActionNone means the position difference is within the latency
	// window: no-op.
	ActionNone HandshakeAction = iota
	// ActionMarkNotSyncing means the peer reported the same head id we
	// have: it is in sync with us, so stop treating it as a sync source.
	ActionMarkNotSyncing
	// ActionReEmitHandshake means our head trails the peer's LIB; re-send
	// our handshake so the peer re-evaluates against our (stale) position,
	// but only if we had already sent one (the initial handshake already
	// covers a first-contact case).
	ActionReEmitHandshake
	// ActionLastIrrCatchUpNotice means the peer is far behind our LIB:
	// advertise our head and earliest-available block.
	ActionLastIrrCatchUpNotice
	// ActionVerifyCatchUp means the peer is meaningfully ahead: request
	// their head id before committing to a catch-up.
	ActionVerifyCatchUp
	// ActionCatchUpNotice means the peer is meaningfully behind us:
	// advertise our head, and if the peer's head number exists in our
	// chain under a different id, also solicit their branch.
	ActionCatchUpNotice
)

func (a HandshakeAction) String() string {
	switch a {
	case ActionMarkNotSyncing:
		return "mark_not_syncing"
	case ActionReEmitHandshake:
		return "re_emit_handshake"
	case ActionLastIrrCatchUpNotice:
		return "last_irr_catch_up_notice"
	case ActionVerifyCatchUp:
		return "verify_catch_up"
	case ActionCatchUpNotice:
		return "catch_up_notice"
	default:
		return "none"
	}
}

// minDistance pads the latency budget when forming the handshake decision
// window Δ = latency_budget + min_distance, so that a peer within a couple
// of blocks of our own position is never treated as meaningfully ahead or
// behind purely from network jitter. spec.md leaves the exact value
// unspecified ("do not guess" only covers the extension-skip question); this
// is recorded as an Open Question decision in DESIGN.md.
const minDistance = 2

// decideHandshakeAction evaluates the six-row recv_handshake table of
// spec.md component I, top-down, first match wins.
func decideHandshakeAction(ourHead, ourLIB uint32, ourHeadID chain.BlockID, peerHead, peerLIB uint32, peerHeadID chain.BlockID, latencyBudget uint32, alreadySentHandshake bool) HandshakeAction {
	delta := latencyBudget + minDistance

	if !peerHeadID.IsZero() && !ourHeadID.IsZero() && peerHeadID == ourHeadID {
		return ActionMarkNotSyncing
	}
	if ourHead < peerLIB {
		if alreadySentHandshake {
			return ActionReEmitHandshake
		}
		return ActionNone
	}
	if ourLIB > peerHead+delta {
		return ActionLastIrrCatchUpNotice
	}
	if ourHead+delta < peerHead {
		return ActionVerifyCatchUp
	}
	if ourHead >= peerHead+delta {
		return ActionCatchUpNotice
	}
	return ActionNone
}
