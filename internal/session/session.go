// File: internal/session/session.go
// Package session holds the per-connection record, the fixed-capacity
// session table, and the protocol state machine.
// Author: basalt authors
// License: Apache-2.0

package session

import (
	"fmt"

	"github.com/basalt-mc/basalt/api"
	"github.com/basalt-mc/basalt/internal/memory"
	"github.com/basalt-mc/basalt/protocol"
)

// Status is the lifecycle state of a session.
type Status int32

// Session lifecycle states. Status only ever advances HANDSHAKING →
// AUTHENTICATING → CONNECTED; DISCONNECTING is reachable from any non-free
// state.
const (
	StatusDisconnected Status = iota
	StatusHandshaking
	StatusAuthenticating
	StatusConnected
	StatusDisconnecting
)

// String returns the state name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusHandshaking:
		return "HANDSHAKING"
	case StatusAuthenticating:
		return "AUTHENTICATING"
	case StatusConnected:
		return "CONNECTED"
	case StatusDisconnecting:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}

// Session is one connection record. A row with Socket == 0 is free.
type Session struct {
	// Socket is the owned connection file descriptor; 0 marks a free row.
	Socket int32

	Status Status

	// Username is valid once handshaking completes; at most
	// protocol.MaxUsernameLength bytes.
	Username string

	// Remote IPv4 address and port, host byte order, cached on accept.
	Addr uint32
	Port uint16

	// In is the read staging ring.
	In *memory.RWBuffer

	// Cumulative byte counters.
	TotalIn  uint64
	TotalOut uint64

	// LastSeen is a wall-clock Unix nanosecond stamp of the accept or the
	// last inbound byte, maintained by the engine for idle sweeps.
	LastSeen int64

	index      int32
	generation uint32
}

// Index reports the session's row in the table.
func (s *Session) Index() int32 { return s.index }

// Generation reports the row's reuse counter. A frame that captured an
// older generation refers to a connection that no longer exists.
func (s *Session) Generation() uint32 { return s.generation }

// InUse reports whether the row holds a live connection.
func (s *Session) InUse() bool { return s.Socket != 0 }

// RemoteString formats the cached remote endpoint for logs.
func (s *Session) RemoteString() string {
	return fmt.Sprintf("%08X:%d", s.Addr, s.Port)
}

// Activate binds an accepted connection to this row.
func (s *Session) Activate(socket int32, addr uint32, port uint16, in *memory.RWBuffer) {
	s.Socket = socket
	s.Addr = addr
	s.Port = port
	s.Status = StatusHandshaking
	s.In = in
}

// Drain decodes as many complete packets as the readable span holds,
// advancing the read cursor past each and handing it to dispatch. The
// session cursor is authoritative; the readable span is re-derived every
// iteration.
//
// Returns (0, nil) when all readable bytes were consumed cleanly, (n, nil)
// when a trailing partial packet needs n more bytes, and (0,
// api.ErrMalformedPacket) when the decoder rejects the data outright.
// An error from dispatch stops the loop and is returned as-is.
func (s *Session) Drain(dispatch func(*protocol.ClientPacket) error) (int, error) {
	for s.In.Len() > 0 {
		var pkt protocol.ClientPacket
		result := protocol.DecodeClientPacket(s.In.ReadSlice(), &pkt)
		switch {
		case result > 0:
			s.In.AdvanceRead(result)
			if err := dispatch(&pkt); err != nil {
				return 0, err
			}
		case result < 0:
			return -result, nil
		default:
			return 0, api.ErrMalformedPacket
		}
	}
	return 0, nil
}
