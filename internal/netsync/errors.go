// Package netsync implements the peer-to-peer catch-up and gossip layer:
// the unlinkable-block cache, peer/transaction dedup indices, the dispatcher,
// the sync state machine, and the per-connection wire protocol.
package netsync

import "errors"

var (
	ErrUnknownPeer   = errors.New("netsync: unknown peer")
	ErrDuplicate     = errors.New("netsync: duplicate item")
	ErrNoPeerForSync = errors.New("netsync: no suitable peer")
	ErrBackingOff    = errors.New("netsync: peer in back-off window")
)
