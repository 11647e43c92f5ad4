// Package port implements the IPC Port: a unidirectional, buffered
// message endpoint with the 16-byte-aligned wire record spec §6.2
// describes.
//
// Grounded on the teacher's Fd_t pattern (biscuit/src/fd/fd.go) for
// the small reference-counted-endpoint shape, and on kush-os's
// ipc::Port (Port.cpp/Port.h: a bounded FIFO of encoded messages with
// level-triggered blockers for "has data" and "has room") for the
// queue-depth and blocking-readiness split. Actual blocking on
// send-full/receive-empty is driven by the caller (package syscall),
// which has access to both a Port and the scheduler; port only
// exposes the blockable.Blockable each condition needs.
package port

import (
	"errors"
	"sync"

	"biscuit/src/blockable"
	"biscuit/src/defs"
	"biscuit/src/util"
)

const (
	headerSize  = 16
	maxMessage  = 36 << 10
	maxPayload  = maxMessage - headerSize
	defaultDepth = 32
)

var (
	ErrTooLarge = errors.New("port: message exceeds the maximum payload length")
	ErrFull     = errors.New("port: send queue is full")
	ErrEmpty    = errors.New("port: receive queue is empty")
)

// RecvInfo is the decoded header of a received message.
type RecvInfo struct {
	SenderThread defs.Handle
	SenderTask   defs.Handle
	Flags        uint16
	MsgLen       uint16
}

func roundup16(n int) int { return (n + 15) &^ 15 }

// encode builds a 16-byte-aligned wire record: a 16-byte header
// (4-byte sender thread handle, 4-byte sender task handle, 2-byte
// flags, 2-byte msg_len, 4 bytes padding) followed by the payload,
// itself padded to a multiple of 16 bytes.
func encode(senderThread, senderTask defs.Handle, flags uint16, payload []byte) []byte {
	padded := roundup16(len(payload))
	rec := make([]byte, headerSize+padded)
	util.Writen(rec, 4, 0, int(uint32(senderThread)))
	util.Writen(rec, 4, 4, int(uint32(senderTask)))
	util.Writen(rec, 2, 8, int(flags))
	util.Writen(rec, 2, 10, len(payload))
	copy(rec[headerSize:], payload)
	return rec
}

func decode(rec []byte) (RecvInfo, []byte) {
	info := RecvInfo{
		SenderThread: defs.Handle(uint32(util.Readn(rec, 4, 0))),
		SenderTask:   defs.Handle(uint32(util.Readn(rec, 4, 4))),
		Flags:        uint16(util.Readn(rec, 2, 8)),
		MsgLen:       uint16(util.Readn(rec, 2, 10)),
	}
	return info, rec[headerSize : headerSize+int(info.MsgLen)]
}

// Port is a bounded FIFO of encoded messages.
type Port struct {
	mu    sync.Mutex
	queue [][]byte
	depth int
	refs  int32

	recvBlocker *blockable.PortBlocker
	sendBlocker *blockable.PortBlocker
}

// New returns an empty port with the given queue depth (messages, not
// bytes); depth <= 0 uses a default.
func New(depth int) *Port {
	if depth <= 0 {
		depth = defaultDepth
	}
	p := &Port{depth: depth, refs: 1}
	p.recvBlocker = blockable.NewPortBlocker(func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.queue) > 0
	})
	p.sendBlocker = blockable.NewPortBlocker(func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.queue) < p.depth
	})
	return p
}

func (p *Port) AddRef() { p.mu.Lock(); p.refs++; p.mu.Unlock() }

func (p *Port) Release() int32 {
	p.mu.Lock()
	p.refs--
	n := p.refs
	p.mu.Unlock()
	return n
}

// SetParams changes the port's queue depth.
func (p *Port) SetParams(depth int) {
	p.mu.Lock()
	p.depth = depth
	p.mu.Unlock()
}

// RecvBlocker returns the blockable signalled while the queue is non-empty.
func (p *Port) RecvBlocker() *blockable.PortBlocker { return p.recvBlocker }

// SendBlocker returns the blockable signalled while the queue has room.
func (p *Port) SendBlocker() *blockable.PortBlocker { return p.sendBlocker }

// TrySend enqueues a message without blocking, returning ErrFull if
// the queue is at capacity or ErrTooLarge if payload exceeds the
// maximum message length.
func (p *Port) TrySend(senderThread, senderTask defs.Handle, flags uint16, payload []byte) error {
	if len(payload) > maxPayload {
		return ErrTooLarge
	}
	rec := encode(senderThread, senderTask, flags, payload)

	p.mu.Lock()
	if len(p.queue) >= p.depth {
		p.mu.Unlock()
		return ErrFull
	}
	p.queue = append(p.queue, rec)
	p.mu.Unlock()

	p.recvBlocker.Notify()
	return nil
}

// TryReceive dequeues the oldest message without blocking, preserving
// FIFO order (spec §8 "Port FIFO").
func (p *Port) TryReceive() (RecvInfo, []byte, error) {
	rec, err := p.TryReceiveRecord()
	if err != nil {
		return RecvInfo{}, nil, err
	}
	info, payload := decode(rec)
	return info, payload, nil
}

// TryReceiveRecord dequeues the oldest message's full wire record
// (header plus padded payload, spec §6.2), the shape the receive
// syscall copies directly into the caller's buffer.
func (p *Port) TryReceiveRecord() ([]byte, error) {
	p.mu.Lock()
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return nil, ErrEmpty
	}
	rec := p.queue[0]
	p.queue = p.queue[1:]
	p.mu.Unlock()

	p.sendBlocker.Notify()
	return rec, nil
}

// QueueLen returns the number of messages currently queued.
func (p *Port) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
