package netsync

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MsgKind discriminates the frames exchanged over a connection (spec.md 6).
type MsgKind uint8

const (
	MsgHandshake MsgKind = iota
	MsgTimeSync
	MsgHeartbeat
	MsgBlock
	MsgTrx
	MsgBlockRequest
	MsgRangeRequest
	MsgRangeReject
	MsgGoAway
	MsgNotice
)

// maxFrameSize guards against a malformed length prefix causing an
// unbounded allocation.
const maxFrameSize = 16 << 20 // 16 MiB

// Frame is one length-prefixed message: u32_le length, then a one-byte
// kind discriminant, then the kind-specific JSON body (the ABI codec in
// pkg/abi handles the application-level payloads this body carries; the
// wire framing itself stays JSON+length-prefix for simplicity, matching
// the control-channel wire style used elsewhere in this stack).
type Frame struct {
	Kind MsgKind
	Body []byte
}

// WriteFrame writes kind/body as a single length-prefixed frame to w.
func WriteFrame(w io.Writer, kind MsgKind, body []byte) error {
	header := make([]byte, 5)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(body)+1))
	header[4] = byte(kind)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("write frame body: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 || n > maxFrameSize {
		return Frame{}, fmt.Errorf("netsync: bad frame length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Frame{}, err
	}
	return Frame{Kind: MsgKind(buf[0]), Body: buf[1:]}, nil
}
