// File: internal/session/statemachine.go
// Author: basalt authors
// License: Apache-2.0
//
// Protocol state machine. React is a pure transition function over the
// session status; the engine turns the returned reaction into queued sends,
// closes, and collaborator callbacks.

package session

import "github.com/basalt-mc/basalt/protocol"

// Reaction describes what should happen after a decoded packet.
type Reaction struct {
	// Replies are encoded and sent to the peer, in order.
	Replies []protocol.ServerPacket

	// Disconnect closes the connection after any replies are queued.
	Disconnect bool

	// Forward hands the packet to the gameplay collaborator.
	Forward bool

	// Reason annotates rejections for the log.
	Reason string
}

// React advances the session state machine for one decoded packet and
// reports the required side effects.
func React(s *Session, pkt *protocol.ClientPacket) Reaction {
	switch pkt.Type {
	case protocol.PacketHeartbeat:
		// Keepalive; mirror it back regardless of state.
		return Reaction{Replies: []protocol.ServerPacket{protocol.Heartbeat{}}}

	case protocol.PacketHandshake:
		return reactHandshake(s, &pkt.Handshake)

	case protocol.PacketAuthentication:
		return reactAuthentication(s, &pkt.Authentication)

	case protocol.PacketDisconnect:
		return Reaction{Disconnect: true, Reason: "peer requested disconnect"}

	default:
		// Gameplay traffic is not this tier's business.
		return Reaction{Forward: true}
	}
}

func reactHandshake(s *Session, req *protocol.HandshakeRequest) Reaction {
	if s.Status != StatusHandshaking {
		return Reaction{Disconnect: true, Reason: "handshake while not HANDSHAKING"}
	}
	s.Username = req.Name
	s.Status = StatusAuthenticating
	return Reaction{
		Replies: []protocol.ServerPacket{protocol.HandshakeResponse{Unknown: "-"}},
	}
}

func reactAuthentication(s *Session, req *protocol.AuthenticationRequest) Reaction {
	if s.Status != StatusAuthenticating {
		return Reaction{Disconnect: true, Reason: "authentication while not AUTHENTICATING"}
	}
	if req.ProtocolVersion != 1 {
		return Reaction{Disconnect: true, Reason: "incompatible protocol version"}
	}
	s.Status = StatusConnected
	return Reaction{
		Replies: []protocol.ServerPacket{protocol.AuthenticationResponse{
			EntityID: 0,
			Unknown0: "",
			Unknown1: "",
		}},
	}
}
