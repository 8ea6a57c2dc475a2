package netsync

import (
	"testing"
	"time"

	"ledgerd/pkg/chain"
)

func idFor(t *testing.T, num uint32, tag byte) chain.BlockID {
	t.Helper()
	var raw [32]byte
	raw[31] = tag
	return chain.MakeBlockID(num, raw)
}

func TestUnlinkableCachePopLinkableChains(t *testing.T) {
	c := NewUnlinkableCache()
	genesis := idFor(t, 1, 0)
	b2 := idFor(t, 2, 1)
	b3 := idFor(t, 3, 2)

	c.Add(unlinkableEntry{ID: b3, Previous: b2, Num: 3, Received: time.Now(), Payload: []byte("3")})
	c.Add(unlinkableEntry{ID: b2, Previous: genesis, Num: 2, Received: time.Now(), Payload: []byte("2")})

	linked := c.PopLinkable(genesis)
	if len(linked) != 2 {
		t.Fatalf("expected both blocks to link through genesis, got %d", len(linked))
	}
	if linked[0].Num != 2 || linked[1].Num != 3 {
		t.Fatalf("expected ascending order [2,3], got [%d,%d]", linked[0].Num, linked[1].Num)
	}
	if c.Len() != 0 {
		t.Fatalf("expected cache empty after popping, got %d entries", c.Len())
	}
}

func TestUnlinkableCacheEvictsOldestOnOverflow(t *testing.T) {
	c := NewUnlinkableCache()
	for i := uint32(0); i < maxUnlinkable+5; i++ {
		id := idFor(t, i+100, byte(i))
		c.Add(unlinkableEntry{ID: id, Previous: idFor(t, i+99, byte(i)), Num: i + 100, Received: time.Now()})
	}
	if c.Len() != maxUnlinkable {
		t.Fatalf("expected cache capped at %d, got %d", maxUnlinkable, c.Len())
	}
}

func TestUnlinkableCacheExpire(t *testing.T) {
	c := NewUnlinkableCache()
	old := idFor(t, 5, 9)
	c.Add(unlinkableEntry{ID: old, Previous: idFor(t, 4, 9), Num: 5, Received: time.Now().Add(-time.Hour)})

	removed := c.Expire(time.Now())
	if removed != 1 {
		t.Fatalf("expected 1 expired entry, got %d", removed)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after expiry, got %d", c.Len())
	}
}
