package netsync

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// tokenBucket is a small, self-contained rate limiter: one token per byte,
// refilled continuously up to a burst ceiling. It exists so the write
// queue can throttle bulk catch-up traffic (low band) without starving
// time-critical frames (high band, never throttled).
type tokenBucket struct {
	mu         sync.Mutex
	clock      clock.Clock
	ratePerSec float64
	burst      float64
	tokens     float64
	last       time.Time
}

func newTokenBucket(clk clock.Clock, ratePerSec, burst float64) *tokenBucket {
	return &tokenBucket{clock: clk, ratePerSec: ratePerSec, burst: burst, tokens: burst, last: clk.Now()}
}

// Wait blocks (via the caller's clock.Timer) until n bytes' worth of tokens
// are available, then spends them.
func (b *tokenBucket) Wait(n int) {
	if b.ratePerSec <= 0 {
		return
	}
	for {
		b.mu.Lock()
		now := b.clock.Now()
		elapsed := now.Sub(b.last).Seconds()
		b.tokens += elapsed * b.ratePerSec
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.last = now
		if b.tokens >= float64(n) {
			b.tokens -= float64(n)
			b.mu.Unlock()
			return
		}
		deficit := float64(n) - b.tokens
		wait := time.Duration(deficit/b.ratePerSec*1000) * time.Millisecond
		b.mu.Unlock()
		if wait <= 0 {
			wait = time.Millisecond
		}
		<-b.clock.After(wait)
	}
}

// WriteQueue serializes outgoing frames onto a connection through two
// bands sharing one lock: high (handshake, heartbeat, time sync - never
// throttled) and low (blocks, transactions, catch-up traffic - rate
// limited so bulk sync doesn't starve a connection's control traffic).
// High-band frames always drain before low-band ones, and a push to
// either band wakes the drain loop immediately (spec.md, component J).
type WriteQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	high    []Frame
	low     []Frame
	closed  bool
	limiter *tokenBucket
	writeFn func(Frame) error
	done    chan struct{}
}

// NewWriteQueue starts the draining goroutine that calls writeFn for every
// queued frame, in priority order, subject to the low band's throughput
// limit (bytesPerSec, 0 disables throttling).
func NewWriteQueue(clk clock.Clock, bytesPerSec float64, writeFn func(Frame) error) *WriteQueue {
	if clk == nil {
		clk = clock.New()
	}
	q := &WriteQueue{
		limiter: newTokenBucket(clk, bytesPerSec, bytesPerSec*2),
		writeFn: writeFn,
		done:    make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.drain()
	return q
}

func (q *WriteQueue) drain() {
	defer close(q.done)
	for {
		f, low, ok := q.next()
		if !ok {
			return
		}
		if low {
			q.limiter.Wait(len(f.Body))
		}
		if err := q.writeFn(f); err != nil {
			return
		}
	}
}

func (q *WriteQueue) next() (Frame, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.high) == 0 && len(q.low) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.high) > 0 {
		f := q.high[0]
		q.high = q.high[1:]
		return f, false, true
	}
	if len(q.low) > 0 {
		f := q.low[0]
		q.low = q.low[1:]
		return f, true, true
	}
	return Frame{}, false, false
}

// EnqueueHigh queues a control-plane frame ahead of all low-band traffic.
func (q *WriteQueue) EnqueueHigh(f Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.high = append(q.high, f)
	q.cond.Signal()
}

// EnqueueLow queues a bulk-data frame subject to throttling.
func (q *WriteQueue) EnqueueLow(f Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.low = append(q.low, f)
	q.cond.Signal()
}

// Close stops accepting new frames and lets the drain loop exit once both
// bands are empty.
func (q *WriteQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
