package netsync

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// trxIndexCap bounds the node-wide transaction dedup window. Transactions
// older than this eviction horizon are assumed to have either landed in a
// block or expired on their own.
const trxIndexCap = 100000

// TrxID identifies a transaction by its content hash.
type TrxID [32]byte

type trxRecord struct {
	firstSeen time.Time
	expiry    time.Time
}

// TrxIndex deduplicates transactions the node has already seen, so the
// dispatcher does not re-broadcast or re-request the same transaction
// (spec.md, component G).
type TrxIndex struct {
	cache *lru.Cache[TrxID, trxRecord]
}

func NewTrxIndex() *TrxIndex {
	c, err := lru.New[TrxID, trxRecord](trxIndexCap)
	if err != nil {
		panic(err)
	}
	return &TrxIndex{cache: c}
}

// Add records id as seen, due to expire at expiry. It reports whether the
// transaction was new (false means it was already known, i.e. a
// duplicate).
func (t *TrxIndex) Add(id TrxID, now, expiry time.Time) bool {
	if _, ok := t.cache.Get(id); ok {
		return false
	}
	t.cache.Add(id, trxRecord{firstSeen: now, expiry: expiry})
	return true
}

// Seen reports whether id has already been recorded.
func (t *TrxIndex) Seen(id TrxID) bool {
	_, ok := t.cache.Get(id)
	return ok
}

// ExpireBefore removes every entry whose expiry has passed as of now,
// returning the count removed.
func (t *TrxIndex) ExpireBefore(now time.Time) int {
	removed := 0
	for _, id := range t.cache.Keys() {
		rec, ok := t.cache.Peek(id)
		if ok && !rec.expiry.After(now) {
			t.cache.Remove(id)
			removed++
		}
	}
	return removed
}

func (t *TrxIndex) Len() int { return t.cache.Len() }
