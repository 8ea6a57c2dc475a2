package netsync

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"ledgerd/pkg/chain"
)

// keepalive is how often this node sends an outbound heartbeat. hbTimeout
// is how long it will go without receiving anything from a peer before
// declaring the connection dead (spec.md 4.J).
const keepalive = 10 * time.Second
const hbTimeout = 2 * keepalive

// ioWorkers bounds how many block/trx payloads are decoded and handed to
// the Handler concurrently across every connection, the fixed-size I/O
// worker pool spec.md's concurrency model calls for. Frame reads and
// writes themselves are never blocked by it - only handler dispatch is.
var ioWorkers = semaphore.NewWeighted(4)

// Handler receives decoded application messages from a Connection's read
// loop. It is implemented by the node's block/transaction/sync-manager
// glue, kept out of this package to avoid an import cycle.
type Handler interface {
	OnBlock(peerID string, id chain.BlockID, payload []byte)
	OnTrx(peerID string, id TrxID, payload []byte)
	OnBlockRequest(peerID string, id chain.BlockID)
	OnRangeRequest(peerID string, from, to uint32)
	OnRangeReject(peerID string, from, to uint32)
	// OnHandshake takes the Connection itself, not just its peer id,
	// because acting on a handshake (re-emitting it, requesting a block,
	// sending a notice) needs access to that specific socket.
	OnHandshake(c *Connection, hs HandshakeMsg)
	OnNotice(peerID string, n NoticeMsg)
}

// Connection wraps one peer's net.Conn with framed reads/writes, a
// two-band write queue, and a heartbeat, and exposes the Peer interface
// the dispatcher uses (spec.md, component J).
type Connection struct {
	id      string
	conn    net.Conn
	log     *logrus.Entry
	clock   clock.Clock
	handler Handler
	queue   *WriteQueue

	mu            sync.Mutex
	lastLocal     HandshakeMsg
	remote        HandshakeMsg
	gotHandshake  bool
	sentHandshake bool
	lastRecv      time.Time
	syncingFromUs bool
	onDisconnect  func(peerID string)

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection takes ownership of conn, starts its write queue and read
// loop, and returns immediately; handshake happens asynchronously via
// SendHandshake/OnHandshake.
func NewConnection(conn net.Conn, log *logrus.Entry, clk clock.Clock, bytesPerSec float64, handler Handler) *Connection {
	if clk == nil {
		clk = clock.New()
	}
	c := &Connection{
		id:       uuid.NewString(),
		conn:     conn,
		log:      log.WithField("conn", conn.RemoteAddr().String()),
		clock:    clk,
		handler:  handler,
		lastRecv: clk.Now(),
		closed:   make(chan struct{}),
	}
	c.queue = NewWriteQueue(clk, bytesPerSec, c.writeFrame)
	go c.readLoop()
	go c.heartbeatLoop()
	return c
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) writeFrame(f Frame) error {
	if err := WriteFrame(c.conn, f.Kind, f.Body); err != nil {
		c.log.WithError(err).Warn("write frame failed")
		c.Close()
		return err
	}
	return nil
}

func (c *Connection) readLoop() {
	for {
		f, err := ReadFrame(c.conn)
		if err != nil {
			c.log.WithError(err).Debug("connection read loop ending")
			c.Close()
			return
		}
		c.dispatch(f)
	}
}

func (c *Connection) dispatch(f Frame) {
	c.mu.Lock()
	c.lastRecv = c.clock.Now()
	c.mu.Unlock()

	switch f.Kind {
	case MsgHandshake:
		var hs HandshakeMsg
		if err := json.Unmarshal(f.Body, &hs); err != nil {
			c.log.WithError(err).Warn("bad handshake payload")
			return
		}
		c.mu.Lock()
		c.remote = hs
		c.gotHandshake = true
		c.mu.Unlock()
		c.handler.OnHandshake(c, hs)
	case MsgGoAway:
		var ga GoAwayMsg
		if err := json.Unmarshal(f.Body, &ga); err == nil {
			c.log.WithField("reason", ga.Reason).Debug("peer sent go_away")
		}
		c.Close()
	case MsgNotice:
		var n NoticeMsg
		if err := json.Unmarshal(f.Body, &n); err == nil {
			c.handler.OnNotice(c.id, n)
		}
	case MsgTimeSync:
		var ts TimeSyncMsg
		if err := json.Unmarshal(f.Body, &ts); err == nil {
			ts.Dst = c.clock.Now().UnixNano()
			reply, _ := json.Marshal(ts)
			c.queue.EnqueueHigh(Frame{Kind: MsgTimeSync, Body: reply})
		}
	case MsgHeartbeat:
		// no-op: receipt alone resets the peer's liveness expectation.
	case MsgBlock:
		var env blockEnvelope
		if err := json.Unmarshal(f.Body, &env); err == nil {
			c.runOnWorker(func() { c.handler.OnBlock(c.id, env.ID, env.Payload) })
		}
	case MsgTrx:
		var env trxEnvelope
		if err := json.Unmarshal(f.Body, &env); err == nil {
			c.runOnWorker(func() { c.handler.OnTrx(c.id, env.ID, env.Payload) })
		}
	case MsgBlockRequest:
		var id chain.BlockID
		if err := json.Unmarshal(f.Body, &id); err == nil {
			c.handler.OnBlockRequest(c.id, id)
		}
	case MsgRangeRequest:
		var r RangeRequest
		if err := json.Unmarshal(f.Body, &r); err == nil {
			c.handler.OnRangeRequest(c.id, r.From, r.To)
		}
	case MsgRangeReject:
		var r RangeRequest
		if err := json.Unmarshal(f.Body, &r); err == nil {
			c.handler.OnRangeReject(c.id, r.From, r.To)
		}
	default:
		c.log.WithField("kind", f.Kind).Warn("unknown frame kind")
	}
}

// runOnWorker acquires a slot in the shared I/O worker pool and runs fn in
// its own goroutine, so readLoop keeps draining the socket while handler
// work (block log append, ABI decode) is throttled to ioWorkers' width.
func (c *Connection) runOnWorker(fn func()) {
	go func() {
		if err := ioWorkers.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer ioWorkers.Release(1)
		fn()
	}()
}

// heartbeatLoop enforces the liveness guarantee of spec.md 4.J: every
// keepalive interval it sends an outbound heartbeat, and if nothing has
// been received from the peer within hb_timeout = 2*keepalive it closes the
// connection. At half the timeout, if this connection isn't currently the
// active sync source, it re-sends the handshake so both sides re-evaluate
// their relative position.
func (c *Connection) heartbeatLoop() {
	ticker := c.clock.Ticker(keepalive)
	defer ticker.Stop()
	halfSent := false
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.queue.EnqueueHigh(Frame{Kind: MsgHeartbeat})

			c.mu.Lock()
			idle := c.clock.Now().Sub(c.lastRecv)
			syncing := c.syncingFromUs
			c.mu.Unlock()

			if idle >= hbTimeout {
				c.log.WithField("idle", idle).Warn("heartbeat timeout, closing connection")
				c.CloseWithReason(GoAwayBenignOther)
				return
			}
			if idle >= hbTimeout/2 {
				if !halfSent && !syncing {
					c.mu.Lock()
					hs := c.lastLocal
					c.mu.Unlock()
					if err := c.SendHandshake(hs); err != nil {
						c.log.WithError(err).Debug("half-timeout re-handshake failed")
					}
				}
				halfSent = true
			} else {
				halfSent = false
			}
		}
	}
}

// SetSyncingFromUs records whether this peer is the currently active sync
// source, so the heartbeat loop knows whether a half-timeout re-handshake
// is appropriate (spec.md 4.J: "if not currently syncing-from-this-peer").
func (c *Connection) SetSyncingFromUs(v bool) {
	c.mu.Lock()
	c.syncingFromUs = v
	c.mu.Unlock()
}

// SendHandshake sends this node's current status to the peer.
func (c *Connection) SendHandshake(hs HandshakeMsg) error {
	c.mu.Lock()
	c.lastLocal = hs
	c.sentHandshake = true
	c.mu.Unlock()
	body, err := json.Marshal(hs)
	if err != nil {
		return err
	}
	c.queue.EnqueueHigh(Frame{Kind: MsgHandshake, Body: body})
	return nil
}

// AlreadySentHandshake reports whether this connection has sent at least
// one handshake, used to gate the re-emit action of recv_handshake.
func (c *Connection) AlreadySentHandshake() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sentHandshake
}

// SendNotice sends a catch_up/last_irr_catch_up advertisement to the peer
// without requesting anything (spec.md, component I).
func (c *Connection) SendNotice(n NoticeMsg) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	c.queue.EnqueueHigh(Frame{Kind: MsgNotice, Body: body})
	return nil
}

// CloseWithReason enqueues a go_away frame carrying reason ahead of the
// close so it has a chance to reach the peer, then closes the connection.
// Best-effort: closing the socket races with the write queue's drain
// goroutine flushing that last frame.
func (c *Connection) CloseWithReason(reason string) error {
	body, err := json.Marshal(GoAwayMsg{Reason: reason})
	if err == nil {
		c.queue.EnqueueHigh(Frame{Kind: MsgGoAway, Body: body})
	}
	return c.Close()
}

type blockEnvelope struct {
	ID      chain.BlockID `json:"id"`
	Payload []byte        `json:"payload"`
}

type trxEnvelope struct {
	ID      TrxID  `json:"id"`
	Payload []byte `json:"payload"`
}

// SendBlock implements Peer.
func (c *Connection) SendBlock(id chain.BlockID, payload []byte) error {
	body, err := json.Marshal(blockEnvelope{ID: id, Payload: payload})
	if err != nil {
		return err
	}
	c.queue.EnqueueLow(Frame{Kind: MsgBlock, Body: body})
	return nil
}

// SendTrx implements Peer.
func (c *Connection) SendTrx(id TrxID, payload []byte) error {
	body, err := json.Marshal(trxEnvelope{ID: id, Payload: payload})
	if err != nil {
		return err
	}
	c.queue.EnqueueLow(Frame{Kind: MsgTrx, Body: body})
	return nil
}

// RequestBlock implements Peer.
func (c *Connection) RequestBlock(id chain.BlockID) error {
	body, err := json.Marshal(id)
	if err != nil {
		return err
	}
	c.queue.EnqueueHigh(Frame{Kind: MsgBlockRequest, Body: body})
	return nil
}

// RequestRange asks the peer for blocks [from, to].
func (c *Connection) RequestRange(from, to uint32) error {
	body, err := json.Marshal(RangeRequest{From: from, To: to})
	if err != nil {
		return err
	}
	c.queue.EnqueueHigh(Frame{Kind: MsgRangeRequest, Body: body})
	return nil
}

// RejectRange tells the peer this node can't serve [from, to].
func (c *Connection) RejectRange(from, to uint32) error {
	body, err := json.Marshal(RangeRequest{From: from, To: to})
	if err != nil {
		return err
	}
	c.queue.EnqueueHigh(Frame{Kind: MsgRangeReject, Body: body})
	return nil
}

// OnDisconnect registers fn to be called exactly once when this connection
// closes, after its socket and background goroutines have shut down. Used
// by the node to unwind sync/dispatch state (spec.md's "if the sync source
// disconnects" path).
func (c *Connection) OnDisconnect(fn func(peerID string)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// Close shuts down the connection's write queue, socket, and background
// goroutines. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.queue.Close()
		err = c.conn.Close()
		c.mu.Lock()
		fn := c.onDisconnect
		c.mu.Unlock()
		if fn != nil {
			fn(c.id)
		}
	})
	return err
}
