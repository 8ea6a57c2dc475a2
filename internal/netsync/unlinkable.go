package netsync

import (
	"sort"
	"sync"
	"time"

	"ledgerd/pkg/chain"
)

// maxUnlinkable caps how many blocks can sit in the unlinkable cache at
// once: blocks that arrived out of order, whose previous id hasn't been
// seen yet. 30 matches the retry/arrival window a single fork switch is
// expected to need.
const maxUnlinkable = 30

// unlinkableEntry is one cached out-of-order block.
type unlinkableEntry struct {
	ID        chain.BlockID
	Previous  chain.BlockID
	Num       uint32
	Received  time.Time
	Payload   []byte
}

// UnlinkableCache holds blocks received before their parent, keyed by id,
// with an index on the parent id so a newly linked block can pull its
// children forward in one step (spec.md, component F).
type UnlinkableCache struct {
	mu      sync.Mutex
	byID    map[chain.BlockID]*unlinkableEntry
	byPrev  map[chain.BlockID][]chain.BlockID
}

func NewUnlinkableCache() *UnlinkableCache {
	return &UnlinkableCache{
		byID:   make(map[chain.BlockID]*unlinkableEntry),
		byPrev: make(map[chain.BlockID][]chain.BlockID),
	}
}

// Add inserts a block that could not be linked to the chain yet. If the
// cache is at capacity, the entry ordered lowest by (num, id) is evicted to
// make room - the block least likely to still be useful.
func (c *UnlinkableCache) Add(e unlinkableEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[e.ID]; exists {
		return
	}
	if len(c.byID) >= maxUnlinkable {
		c.evictOldestLocked()
	}
	entry := e
	c.byID[e.ID] = &entry
	c.byPrev[e.Previous] = append(c.byPrev[e.Previous], e.ID)
}

func (c *UnlinkableCache) evictOldestLocked() {
	if len(c.byID) == 0 {
		return
	}
	ids := make([]chain.BlockID, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ei, ej := c.byID[ids[i]], c.byID[ids[j]]
		if ei.Num != ej.Num {
			return ei.Num < ej.Num
		}
		return string(ids[i][:]) < string(ids[j][:])
	})
	c.removeLocked(ids[0])
}

func (c *UnlinkableCache) removeLocked(id chain.BlockID) {
	e, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	sibs := c.byPrev[e.Previous]
	for i, s := range sibs {
		if s == id {
			c.byPrev[e.Previous] = append(sibs[:i], sibs[i+1:]...)
			break
		}
	}
	if len(c.byPrev[e.Previous]) == 0 {
		delete(c.byPrev, e.Previous)
	}
}

// PopLinkable removes and returns, in ascending block-number order, every
// cached block that is now reachable from headID - the block itself, then
// whichever of its children become reachable in turn, and so on.
func (c *UnlinkableCache) PopLinkable(headID chain.BlockID) []unlinkableEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []unlinkableEntry
	frontier := []chain.BlockID{headID}
	for len(frontier) > 0 {
		parent := frontier[0]
		frontier = frontier[1:]
		children := append([]chain.BlockID(nil), c.byPrev[parent]...)
		for _, childID := range children {
			e := c.byID[childID]
			if e == nil {
				continue
			}
			out = append(out, *e)
			c.removeLocked(childID)
			frontier = append(frontier, childID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Num < out[j].Num })
	return out
}

// Expire drops every entry received before cutoff, returning how many were
// removed.
func (c *UnlinkableCache) Expire(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var stale []chain.BlockID
	for id, e := range c.byID {
		if e.Received.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		c.removeLocked(id)
	}
	return len(stale)
}

// Len reports how many blocks are currently cached.
func (c *UnlinkableCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}
