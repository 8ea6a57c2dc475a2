package netsync

// GoAwayReason tells a peer why this end closed the connection, so it can
// decide whether reconnecting is worthwhile (spec.md, error handling
// design). Retries are only warranted on benign/duplicate/wrong_version
// reasons.
type GoAwayReason = string

const (
	GoAwaySelf           GoAwayReason = "self"
	GoAwayDuplicate      GoAwayReason = "duplicate"
	GoAwayWrongChain     GoAwayReason = "wrong_chain"
	GoAwayWrongVersion   GoAwayReason = "wrong_version"
	GoAwayForked         GoAwayReason = "forked"
	GoAwayUnlinkable     GoAwayReason = "unlinkable"
	GoAwayBadTransaction GoAwayReason = "bad_transaction"
	GoAwayValidation     GoAwayReason = "validation"
	GoAwayBenignOther    GoAwayReason = "benign_other"
	GoAwayFatalOther     GoAwayReason = "fatal_other"
	GoAwayAuthentication GoAwayReason = "authentication"
)

// GoAwayMsg is the body of a MsgGoAway frame.
type GoAwayMsg struct {
	Reason GoAwayReason `json:"reason"`
}

// NoticeKind distinguishes the two notices the sync manager emits outside
// of ordinary gossip (spec.md, component I).
type NoticeKind string

const (
	NoticeCatchUp        NoticeKind = "catch_up"
	NoticeLastIrrCatchUp NoticeKind = "last_irr_catch_up"
)

// NoticeMsg advertises this node's position to a peer without requesting
// anything; the receiver validates its shape but never triggers a fetch
// directly from it (spec.md, component H's recv_notice).
type NoticeMsg struct {
	Kind              NoticeKind `json:"kind"`
	Head              uint32     `json:"head"`
	EarliestAvailable uint32     `json:"earliest_available,omitempty"`
}
