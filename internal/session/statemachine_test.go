// File: internal/session/statemachine_test.go
// Author: basalt authors
// License: Apache-2.0

package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basalt-mc/basalt/internal/session"
	"github.com/basalt-mc/basalt/protocol"
)

func encodeReply(t *testing.T, p protocol.ServerPacket) []byte {
	t.Helper()
	buf := make([]byte, p.EncodedSize())
	require.Equal(t, len(buf), p.Encode(buf))
	return buf
}

func TestHandshakeHappyPath(t *testing.T) {
	s := &session.Session{Status: session.StatusHandshaking}
	pkt := &protocol.ClientPacket{
		Type:      protocol.PacketHandshake,
		Handshake: protocol.HandshakeRequest{Name: "Steve"},
	}
	r := session.React(s, pkt)
	assert.False(t, r.Disconnect)
	assert.Equal(t, session.StatusAuthenticating, s.Status)
	assert.Equal(t, "Steve", s.Username)
	require.Len(t, r.Replies, 1)
	assert.Equal(t, []byte{0x02, 0x00, 0x01, '-'}, encodeReply(t, r.Replies[0]))
}

func TestHandshakeOutOfOrderDisconnects(t *testing.T) {
	for _, status := range []session.Status{
		session.StatusAuthenticating,
		session.StatusConnected,
		session.StatusDisconnecting,
	} {
		s := &session.Session{Status: status}
		r := session.React(s, &protocol.ClientPacket{Type: protocol.PacketHandshake})
		assert.True(t, r.Disconnect, "status %s", status)
		assert.Empty(t, r.Replies)
	}
}

func TestAuthenticationVersionMismatch(t *testing.T) {
	s := &session.Session{Status: session.StatusAuthenticating, Username: "Steve"}
	pkt := &protocol.ClientPacket{
		Type: protocol.PacketAuthentication,
		Authentication: protocol.AuthenticationRequest{
			ProtocolVersion: 2,
			Username:        "Steve",
		},
	}
	r := session.React(s, pkt)
	assert.True(t, r.Disconnect)
	assert.Empty(t, r.Replies, "no response on version mismatch")
	assert.NotEqual(t, session.StatusConnected, s.Status)
}

func TestAuthenticationHappyPath(t *testing.T) {
	s := &session.Session{Status: session.StatusAuthenticating, Username: "Steve"}
	pkt := &protocol.ClientPacket{
		Type: protocol.PacketAuthentication,
		Authentication: protocol.AuthenticationRequest{
			ProtocolVersion: 1,
			Username:        "Steve",
		},
	}
	r := session.React(s, pkt)
	assert.False(t, r.Disconnect)
	assert.Equal(t, session.StatusConnected, s.Status)
	require.Len(t, r.Replies, 1)
	assert.Equal(t, []byte{0x01, 0, 0, 0, 0, 0, 0, 0, 0}, encodeReply(t, r.Replies[0]))
}

func TestAuthenticationOutOfOrderDisconnects(t *testing.T) {
	s := &session.Session{Status: session.StatusHandshaking}
	r := session.React(s, &protocol.ClientPacket{Type: protocol.PacketAuthentication})
	assert.True(t, r.Disconnect)
}

func TestHeartbeatEchoesInAnyState(t *testing.T) {
	for _, status := range []session.Status{
		session.StatusHandshaking,
		session.StatusAuthenticating,
		session.StatusConnected,
	} {
		s := &session.Session{Status: status}
		r := session.React(s, &protocol.ClientPacket{Type: protocol.PacketHeartbeat})
		assert.False(t, r.Disconnect)
		require.Len(t, r.Replies, 1)
		assert.Equal(t, []byte{0x00}, encodeReply(t, r.Replies[0]))
	}
}

func TestGameplayPacketsAreForwarded(t *testing.T) {
	s := &session.Session{Status: session.StatusConnected}
	for _, typ := range []protocol.PacketType{
		protocol.PacketPlayerGrounded,
		protocol.PacketPlayerPosition,
		protocol.PacketPlayerRotation,
		protocol.PacketPlayerTransform,
	} {
		r := session.React(s, &protocol.ClientPacket{Type: typ})
		assert.True(t, r.Forward, "type %s", typ)
		assert.False(t, r.Disconnect)
		assert.Empty(t, r.Replies)
	}
}

func TestClientDisconnectRequest(t *testing.T) {
	s := &session.Session{Status: session.StatusConnected}
	r := session.React(s, &protocol.ClientPacket{Type: protocol.PacketDisconnect})
	assert.True(t, r.Disconnect)
}
