// File: api/handler.go
// Package api defines the gameplay collaborator interfaces.
// Author: basalt authors
// License: Apache-2.0

package api

import "github.com/basalt-mc/basalt/protocol"

// Peer identifies a connected client session.
//
// ID is stable for the lifetime of the connection and may be reused for a
// later connection once the session is released.
type Peer struct {
	ID       int32
	Username string
	Addr     uint32 // IPv4, host byte order
	Port     uint16
}

// Handler consumes decoded gameplay packets the protocol tier does not act
// on itself (movement, grounded flags, and any future play-state traffic).
//
// Handle is invoked inline on the engine loop; implementations must not
// block. The packet is only valid for the duration of the call.
type Handler interface {
	Handle(peer Peer, packet *protocol.ClientPacket) error
}

// Pusher lets the gameplay collaborator enqueue outbound packets on a
// session. All methods must be called from the engine goroutine, which in
// practice means from within a Handler callback.
type Pusher interface {
	// Push encodes and queues a packet for delivery to the peer.
	Push(peerID int32, packet protocol.ServerPacket) error

	// Kick sends a DISCONNECT packet with the given message and closes
	// the connection.
	Kick(peerID int32, message string) error
}
