// File: internal/engine/handlers_linux.go
// Author: basalt authors
// License: Apache-2.0
//
// Per-kind completion handlers. Each runs to completion on the loop
// goroutine and re-submits whatever it queued before returning.

package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/basalt-mc/basalt/api"
	"github.com/basalt-mc/basalt/internal/memory"
	"github.com/basalt-mc/basalt/internal/session"
	"github.com/basalt-mc/basalt/protocol"
)

// handleAccept claims a session row for the new connection, arms its first
// receive, and always re-arms the standing accept.
func (e *Engine) handleAccept(f *frame, res int32) {
	if res < 0 {
		e.log.Error().Str("op", "accept").Err(unix.Errno(-res)).Msg("completion failed")
	} else {
		fd := int(res)
		addr := binary.BigEndian.Uint32(f.addr.Addr[:])
		port := ntohs(f.addr.Port)
		e.log.Info().Str("remote", remoteString(addr, port)).Msg("incoming connection")
		row := e.sessions.Claim()
		if row == nil {
			e.log.Warn().Str("remote", remoteString(addr, port)).
				Msg("the server is full, disconnecting")
			e.queueClose(nil, fd)
		} else if in, err := memory.NewRWBuffer(e.ringBytes); err != nil {
			e.log.Error().Err(err).Msg("cannot allocate read ring")
			e.sessions.Release(row)
			unix.Close(fd)
		} else {
			row.Activate(int32(fd), addr, port, in)
			row.LastSeen = time.Now().UnixNano()
			e.log.Trace().Str("remote", row.RemoteString()).
				Int32("session", row.Index()).Msg("assigned session to connection")
			if err := e.queueRecv(row, 0); err != nil {
				e.forceClose(row)
			}
		}
	}
	// The server keeps exactly one accept outstanding.
	if err := e.queueAccept(0); err != nil {
		e.log.Error().Err(err).Msg("cannot re-arm accept")
	}
	e.submit()
	e.frames.release(f)
}

// handleRecv advances the session's write cursor and runs the decoder over
// the readable span.
func (e *Engine) handleRecv(f *frame, res int32) {
	s := e.sessions.Get(f.session, f.gen)
	if s == nil {
		e.log.Debug().Uint64("frame", f.trace).Msg("recv completion for released session")
		e.frames.release(f)
		return
	}
	switch {
	case res < 0:
		// EBADF only means the connection is already gone.
		if errno := unix.Errno(-res); errno != unix.EBADF {
			e.log.Error().Str("op", "recv").Err(errno).
				Str("remote", s.RemoteString()).Msg("completion failed")
			e.queueClose(s, int(s.Socket))
		}
		e.frames.release(f)
	case res == 0:
		e.log.Info().Str("remote", s.RemoteString()).Msg("peer disconnected")
		e.queueClose(s, int(s.Socket))
		e.frames.release(f)
	default:
		n := int(res)
		f.progress += n
		s.In.AdvanceWrite(n)
		s.TotalIn += uint64(n)
		s.LastSeen = time.Now().UnixNano()
		e.log.Trace().Int("bytes", n).Uint64("total", s.TotalIn).
			Str("remote", s.RemoteString()).Msg("received")
		e.processData(s, f)
	}
	e.submit()
}

// processData decodes every complete packet in the readable span, then
// re-arms the receive: a fresh one when the span drained cleanly, a resume
// receive when a partial packet's tail is still owed.
func (e *Engine) processData(s *session.Session, f *frame) {
	needed, err := s.Drain(func(pkt *protocol.ClientPacket) error {
		return e.dispatch(s, pkt)
	})
	switch {
	case err == nil && needed == 0:
		e.frames.release(f)
		if err := e.queueRecv(s, 0); err != nil {
			e.forceClose(s)
		}
	case err == nil:
		e.log.Trace().Int("needed", needed).Uint64("frame", f.trace).
			Msg("receive buffer holds an incomplete packet")
		e.frames.release(f)
		// The unconsumed tail stays in place; the resume receive lands
		// right behind it.
		if err := e.queueRecv(s, s.In.Len()); err != nil {
			e.forceClose(s)
		}
	case errors.Is(err, api.ErrMalformedPacket):
		e.log.Error().Str("remote", s.RemoteString()).Uint64("frame", f.trace).
			Msg("received unparseable data, disconnecting")
		e.queueClose(s, int(s.Socket))
		e.frames.release(f)
	default:
		// The dispatch already queued a close for this session, or closed
		// it synchronously when a reply could not be queued.
		e.frames.release(f)
	}
}

// dispatch runs one decoded packet through the state machine and performs
// the reaction.
func (e *Engine) dispatch(s *session.Session, pkt *protocol.ClientPacket) error {
	reaction := session.React(s, pkt)
	for _, reply := range reaction.Replies {
		if err := e.sendPacket(s, reply); err != nil {
			e.log.Error().Err(err).Str("remote", s.RemoteString()).Msg("cannot queue reply")
			e.forceClose(s)
			return api.ErrSessionClosed
		}
	}
	if reaction.Forward {
		if e.handler != nil {
			peer := api.Peer{ID: s.Index(), Username: s.Username, Addr: s.Addr, Port: s.Port}
			if err := e.handler.Handle(peer, pkt); err != nil {
				e.log.Warn().Err(err).Str("type", pkt.Type.String()).
					Msg("collaborator rejected packet")
			}
		} else {
			e.log.Error().Str("type", pkt.Type.String()).
				Str("remote", s.RemoteString()).Msg("received packet is unhandled")
		}
	}
	if reaction.Disconnect {
		if reaction.Reason != "" {
			e.log.Warn().Str("remote", s.RemoteString()).Str("status", s.Status.String()).
				Msg(reaction.Reason + ", disconnecting")
		}
		e.queueClose(s, int(s.Socket))
		return api.ErrSessionClosed
	}
	switch pkt.Type {
	case protocol.PacketHandshake:
		e.log.Info().Str("player", s.Username).Str("remote", s.RemoteString()).
			Msg("player is joining the game")
	case protocol.PacketAuthentication:
		e.log.Info().Str("player", s.Username).Str("remote", s.RemoteString()).
			Msg("player has joined the game")
	}
	return nil
}

// sendPacket encodes packet into a pool cell (or the heap for oversized
// payloads) and queues the send. The buffer is owned by the send frame
// until its completion.
func (e *Engine) sendPacket(s *session.Session, packet protocol.ServerPacket) error {
	size := packet.EncodedSize()
	var buf []byte
	pooled := false
	if size <= e.sendPool.ElementSize() {
		if cell, err := e.sendPool.Alloc(); err == nil {
			buf = cell[:size]
			pooled = true
		}
	}
	if buf == nil {
		buf = make([]byte, size)
	}
	if written := packet.Encode(buf); written != size {
		if pooled {
			e.sendPool.Free(buf)
		}
		return fmt.Errorf("encode: want %d bytes, wrote %d", size, written)
	}
	if err := e.queueSend(s, buf, size, pooled, 0); err != nil {
		if pooled {
			e.sendPool.Free(buf)
		}
		return err
	}
	return nil
}

// handleSend accounts for flushed bytes and continues partial sends from
// the current offset until the buffer is fully out.
func (e *Engine) handleSend(f *frame, res int32) {
	s := e.sessions.Get(f.session, f.gen)
	if s == nil {
		e.log.Debug().Uint64("frame", f.trace).Msg("send completion for released session")
		e.releaseSendBuffer(f)
		e.frames.release(f)
		return
	}
	switch {
	case res < 0:
		if errno := unix.Errno(-res); errno != unix.EBADF {
			e.log.Error().Str("op", "send").Err(errno).
				Str("remote", s.RemoteString()).Msg("completion failed")
			e.queueClose(s, int(s.Socket))
		}
		e.releaseSendBuffer(f)
		e.frames.release(f)
	default:
		n := int(res)
		f.progress += n
		s.TotalOut += uint64(n)
		e.log.Trace().Int("bytes", n).Uint64("total", s.TotalOut).
			Str("remote", s.RemoteString()).Msg("sent")
		if f.progress == f.bufSize {
			e.releaseSendBuffer(f)
			e.frames.release(f)
		} else {
			// Short write; send the remaining tail with the same frame.
			e.log.Debug().Int("remaining", f.bufSize-f.progress).
				Uint64("frame", f.trace).Msg("continuing partial send")
			fd := int(s.Socket)
			buf, from, to := f.buf, f.progress, f.bufSize
			e.queueOp(f, func(sqe *ioSqe) {
				sqe.prepSend(fd, buf[from:to], 0)
			})
		}
	}
	e.submit()
}

// handleClose releases the session row, if any, even when the kernel
// reports an error. Rows whose close never reached the kernel queue
// (queueClose out of frames, forceClose) are released synchronously there
// instead.
func (e *Engine) handleClose(f *frame, res int32) {
	if res < 0 {
		e.log.Error().Str("op", "close").Err(unix.Errno(-res)).Msg("completion failed")
	}
	if f.session >= 0 {
		if s := e.sessions.Get(f.session, f.gen); s != nil {
			e.log.Info().Str("remote", s.RemoteString()).Msg("server closed connection")
			e.sessions.Release(s)
		} else {
			e.log.Debug().Uint64("frame", f.trace).Msg("close completion for released session")
		}
	} else {
		e.log.Info().Msg("server closed connection to client")
	}
	e.frames.release(f)
}

func (e *Engine) releaseSendBuffer(f *frame) {
	if f.buf == nil {
		return
	}
	if f.pooled {
		e.sendPool.Free(f.buf)
	}
	f.buf = nil
}

// ntohs converts a network-order port half-word as stored in
// RawSockaddrInet4.
func ntohs(v uint16) uint16 {
	p := (*[2]byte)(unsafe.Pointer(&v))
	return uint16(p[0])<<8 | uint16(p[1])
}

func remoteString(addr uint32, port uint16) string {
	return fmt.Sprintf("%08X:%d", addr, port)
}
