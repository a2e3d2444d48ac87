// File: internal/engine/engine_linux.go
// Package engine drives the completion-based I/O loop: submission of
// accept/recv/send/close operations, completion draining, and dispatch
// into the protocol tier.
// Author: basalt authors
// License: Apache-2.0

package engine

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/basalt-mc/basalt/api"
	"github.com/basalt-mc/basalt/internal/memory"
	"github.com/basalt-mc/basalt/internal/session"
	"github.com/basalt-mc/basalt/protocol"
)

// Defaults applied when a Params field is zero.
const (
	DefaultQueueDepth     = 32
	DefaultFramePoolBytes = 2048 * 32
	DefaultReadRingBytes  = 4096
	DefaultMaxConnections = 1024

	acceptBacklog = 32
	sendCellSize  = 256
)

// Params configures an Engine. Zero values select defaults.
type Params struct {
	MaxConnections int
	QueueDepth     int
	FramePoolBytes int
	ReadRingBytes  int
	Handler        api.Handler
	Logger         zerolog.Logger
}

// pendingOp is a queued operation whose SQE slot was not yet available.
type pendingOp struct {
	frame *frame
	prep  func(*ioSqe)
}

// Engine owns the kernel queues, the session table, the frame registry,
// and the send-buffer pool. It is not thread-safe: every method must be
// called from the single loop goroutine (collaborator callbacks run
// inline on that goroutine).
type Engine struct {
	log       zerolog.Logger
	ring      *uring
	sock      int
	sessions  *session.Table
	frames    *frameRegistry
	sendPool  *memory.Pool
	overflow  *queue.Queue
	handler   api.Handler
	ringBytes int
	closed    bool
}

// Ensure the engine satisfies the collaborator push interface.
var _ api.Pusher = (*Engine)(nil)

// New builds an engine: io_uring instance, frame arena, session table, and
// the pool backing outbound reply buffers.
func New(p Params) (*Engine, error) {
	if p.MaxConnections <= 0 {
		p.MaxConnections = DefaultMaxConnections
	}
	if p.QueueDepth <= 0 {
		p.QueueDepth = DefaultQueueDepth
	}
	if p.FramePoolBytes <= 0 {
		p.FramePoolBytes = DefaultFramePoolBytes
	}
	if p.ReadRingBytes <= 0 {
		p.ReadRingBytes = DefaultReadRingBytes
	}

	ring, err := newURing(uint32(p.QueueDepth))
	if err != nil {
		return nil, fmt.Errorf("engine ring init: %w", err)
	}
	sendPool, err := memory.NewPool(sendCellSize, p.MaxConnections*sendCellSize)
	if err != nil {
		ring.close()
		return nil, fmt.Errorf("engine send pool: %w", err)
	}
	e := &Engine{
		log:       p.Logger,
		ring:      ring,
		sessions:  session.NewTable(p.MaxConnections),
		frames:    newFrameRegistry(p.FramePoolBytes),
		sendPool:  sendPool,
		overflow:  queue.New(),
		handler:   p.Handler,
		ringBytes: p.ReadRingBytes,
	}
	e.log.Trace().
		Int("max_connections", p.MaxConnections).
		Int("queue_depth", p.QueueDepth).
		Int("frames", len(e.frames.frames)).
		Msg("engine created")
	return e, nil
}

// Listen binds the listening socket and arms the standing accept.
func (e *Engine) Listen(bind [4]byte, port uint16) error {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(sock, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(sock)
		return fmt.Errorf("setsockopt: %w", err)
	}
	sa := &unix.SockaddrInet4{Port: int(port), Addr: bind}
	if err := unix.Bind(sock, sa); err != nil {
		unix.Close(sock)
		return fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(sock, acceptBacklog); err != nil {
		unix.Close(sock)
		return fmt.Errorf("listen: %w", err)
	}
	e.sock = sock
	e.log.Trace().Int("socket", sock).Msg("listening on socket")
	if err := e.queueAccept(0); err != nil {
		unix.Close(sock)
		return err
	}
	e.submit()
	return nil
}

// Sessions reports the number of live connections.
func (e *Engine) Sessions() int { return e.sessions.Active() }

// queueOp binds a frame to a submission entry, or parks the operation on
// the overflow queue when the submission ring is momentarily full.
func (e *Engine) queueOp(f *frame, prep func(*ioSqe)) {
	if e.overflow.Length() > 0 {
		e.overflow.Add(&pendingOp{frame: f, prep: prep})
		return
	}
	sqe := e.ring.getSQE()
	if sqe == nil {
		e.overflow.Add(&pendingOp{frame: f, prep: prep})
		return
	}
	prep(sqe)
	sqe.UserData = e.frames.userData(f)
}

// drainOverflow moves parked operations into freed SQE slots, oldest
// first.
func (e *Engine) drainOverflow() {
	for e.overflow.Length() > 0 {
		sqe := e.ring.getSQE()
		if sqe == nil {
			return
		}
		op := e.overflow.Remove().(*pendingOp)
		op.prep(sqe)
		sqe.UserData = e.frames.userData(op.frame)
	}
}

// submit pushes every queued operation to the kernel.
func (e *Engine) submit() {
	e.drainOverflow()
	if _, err := e.ring.submit(); err != nil {
		e.log.Error().Err(err).Msg("submit failed")
	}
}

func (e *Engine) queueAccept(flags uint32) error {
	f, err := e.frames.alloc(frameAccept, -1, 0)
	if err != nil {
		return fmt.Errorf("queue accept: %w", err)
	}
	f.addrLen = uint32(unsafe.Sizeof(f.addr))
	sock := e.sock
	e.queueOp(f, func(sqe *ioSqe) {
		sqe.prepAccept(sock, &f.addr, &f.addrLen, flags)
	})
	e.log.Trace().Uint64("frame", f.trace).Msg("queueing 'accept' I/O operation")
	return nil
}

// queueRecv arms the session's single outstanding receive into the
// writable span of its read ring. offset is the length of a partially
// decoded packet already staged ahead of the write cursor; it is carried
// on the frame for diagnostics and resume accounting.
func (e *Engine) queueRecv(s *session.Session, offset int) error {
	buf := s.In.WriteSlice()
	if len(buf) == 0 {
		// A single packet larger than the read ring can never complete.
		return fmt.Errorf("queue recv: read ring full")
	}
	f, err := e.frames.alloc(frameReceive, s.Index(), s.Generation())
	if err != nil {
		return fmt.Errorf("queue recv: %w", err)
	}
	f.buf = buf
	f.bufSize = len(buf)
	f.progress = offset
	fd := int(s.Socket)
	e.queueOp(f, func(sqe *ioSqe) {
		sqe.prepRecv(fd, buf, 0)
	})
	e.log.Trace().Uint64("frame", f.trace).Int("offset", offset).
		Msg("queueing 'recv' I/O operation")
	return nil
}

// queueSend arms a send owning buf; already is the progress carried over
// from an earlier partial completion.
func (e *Engine) queueSend(s *session.Session, buf []byte, total int, pooled bool, already int) error {
	f, err := e.frames.alloc(frameSend, s.Index(), s.Generation())
	if err != nil {
		return fmt.Errorf("queue send: %w", err)
	}
	f.buf = buf
	f.bufSize = total
	f.progress = already
	f.pooled = pooled
	fd := int(s.Socket)
	e.queueOp(f, func(sqe *ioSqe) {
		sqe.prepSend(fd, buf[already:total], 0)
	})
	e.log.Trace().Uint64("frame", f.trace).Int("bytes", total-already).
		Msg("queueing 'send' I/O operation")
	return nil
}

// queueClose arms a close for fd. s may be nil for the server socket or a
// connection that never got a session row.
func (e *Engine) queueClose(s *session.Session, fd int) {
	index, generation := int32(-1), uint32(0)
	if s != nil {
		if s.Status == session.StatusDisconnecting {
			return // teardown already in flight
		}
		s.Status = session.StatusDisconnecting
		index, generation = s.Index(), s.Generation()
	}
	f, err := e.frames.alloc(frameClose, index, generation)
	if err != nil {
		// Out of frames; fall back to a synchronous close so the fd and
		// the row are not leaked.
		e.log.Warn().Err(err).Msg("frame pool exhausted, closing synchronously")
		unix.Close(fd)
		if s != nil {
			e.sessions.Release(s)
		}
		return
	}
	e.queueOp(f, func(sqe *ioSqe) {
		sqe.prepClose(fd)
	})
	e.log.Trace().Uint64("frame", f.trace).Msg("queueing 'close' I/O operation")
}

// forceClose tears a session down without going through the kernel queue.
// Used when submission itself cannot proceed.
func (e *Engine) forceClose(s *session.Session) {
	e.log.Warn().Str("remote", s.RemoteString()).Msg("dropping connection, submission failed")
	unix.Close(int(s.Socket))
	e.sessions.Release(s)
}

// Poll drains all currently available completions in arrival order and
// returns the number handled.
func (e *Engine) Poll() int {
	handled := 0
	for {
		cqe, ok := e.ring.peekCQE()
		if !ok {
			break
		}
		userData, res := cqe.UserData, cqe.Res
		e.ring.seenCQE()
		f := e.frames.lookup(userData)
		if f == nil {
			e.log.Warn().Uint64("user_data", userData).Msg("completion for unknown frame")
			continue
		}
		e.log.Trace().Int32("res", res).Uint64("frame", f.trace).
			Str("kind", f.kind.String()).Msg("handling completion")
		switch f.kind {
		case frameAccept:
			e.handleAccept(f, res)
		case frameReceive:
			e.handleRecv(f, res)
		case frameSend:
			e.handleSend(f, res)
		case frameClose:
			e.handleClose(f, res)
		default:
			e.log.Error().Uint64("frame", f.trace).Msg("completion with unknown frame kind")
			e.frames.release(f)
		}
		handled++
	}
	return handled
}

// SweepIdle closes sessions that have been silent longer than timeout.
// A zero or negative timeout disables the sweep.
func (e *Engine) SweepIdle(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	now := time.Now().UnixNano()
	closed := false
	e.sessions.Range(func(s *session.Session) bool {
		if s.Status != session.StatusDisconnecting && now-s.LastSeen > timeout.Nanoseconds() {
			e.log.Info().Str("remote", s.RemoteString()).Msg("closing idle connection")
			e.queueClose(s, int(s.Socket))
			closed = true
		}
		return true
	})
	if closed {
		e.submit()
	}
}

// Push implements api.Pusher.
func (e *Engine) Push(peerID int32, packet protocol.ServerPacket) error {
	s := e.sessions.At(peerID)
	if s == nil || s.Status != session.StatusConnected {
		return api.ErrSessionClosed
	}
	if err := e.sendPacket(s, packet); err != nil {
		return err
	}
	e.submit()
	return nil
}

// Kick implements api.Pusher: a DISCONNECT packet followed by a close.
func (e *Engine) Kick(peerID int32, message string) error {
	s := e.sessions.At(peerID)
	if s == nil || s.Status == session.StatusDisconnecting {
		return api.ErrSessionClosed
	}
	if err := e.sendPacket(s, protocol.Disconnect{Message: message}); err != nil {
		e.log.Warn().Err(err).Str("remote", s.RemoteString()).Msg("kick without disconnect packet")
	}
	e.queueClose(s, int(s.Socket))
	e.submit()
	return nil
}

// Shutdown queues a close of the listening socket and of every live
// session.
func (e *Engine) Shutdown() {
	if e.closed {
		return
	}
	e.closed = true
	e.sessions.Range(func(s *session.Session) bool {
		e.log.Trace().Str("remote", s.RemoteString()).Msg("disconnecting session")
		e.queueClose(s, int(s.Socket))
		return true
	})
	e.log.Trace().Msg("closing server socket")
	f, err := e.frames.alloc(frameClose, -1, 0)
	if err != nil {
		unix.Close(e.sock)
	} else {
		sock := e.sock
		e.queueOp(f, func(sqe *ioSqe) { sqe.prepClose(sock) })
	}
	e.submit()
}

// Close releases the kernel ring and the allocators. Call after the last
// Poll.
func (e *Engine) Close() error {
	e.ring.close()
	return e.sendPool.Close()
}
