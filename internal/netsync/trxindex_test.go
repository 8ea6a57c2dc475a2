package netsync

import (
	"testing"
	"time"
)

func trxID(tag byte) TrxID {
	var id TrxID
	id[0] = tag
	return id
}

func TestTrxIndexDedup(t *testing.T) {
	idx := NewTrxIndex()
	now := time.Now()
	id := trxID(1)

	if !idx.Add(id, now, now.Add(time.Minute)) {
		t.Fatal("first Add should report new")
	}
	if idx.Add(id, now, now.Add(time.Minute)) {
		t.Fatal("second Add of same id should report duplicate")
	}
	if !idx.Seen(id) {
		t.Fatal("expected id to be seen")
	}
}

func TestTrxIndexExpireBefore(t *testing.T) {
	idx := NewTrxIndex()
	now := time.Now()
	id := trxID(2)
	idx.Add(id, now, now.Add(-time.Second))

	removed := idx.ExpireBefore(now)
	if removed != 1 {
		t.Fatalf("expected 1 expired, got %d", removed)
	}
	if idx.Seen(id) {
		t.Fatal("expected id to be gone after expiry")
	}
}
