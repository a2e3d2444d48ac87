// File: internal/session/drain_test.go
// Author: basalt authors
// License: Apache-2.0

package session_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basalt-mc/basalt/api"
	"github.com/basalt-mc/basalt/internal/memory"
	"github.com/basalt-mc/basalt/internal/session"
	"github.com/basalt-mc/basalt/protocol"
)

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	in, err := memory.NewRWBuffer(4096)
	require.NoError(t, err)
	t.Cleanup(func() { in.Close() })
	return &session.Session{Status: session.StatusHandshaking, In: in}
}

func feed(s *session.Session, raw []byte) {
	copy(s.In.WriteSlice(), raw)
	s.In.AdvanceWrite(len(raw))
}

func collect(dst *[]protocol.ClientPacket) func(*protocol.ClientPacket) error {
	return func(p *protocol.ClientPacket) error {
		*dst = append(*dst, *p)
		return nil
	}
}

func TestDrainSplitRead(t *testing.T) {
	s := newTestSession(t)
	handshake := []byte{0x02, 0x00, 0x05, 'S', 't', 'e', 'v', 'e'}

	// First TCP read delivers only three bytes.
	feed(s, handshake[:3])
	var got []protocol.ClientPacket
	needed, err := s.Drain(collect(&got))
	require.NoError(t, err)
	assert.Equal(t, 5, needed)
	assert.Empty(t, got)
	assert.Equal(t, 3, s.In.Len(), "partial packet stays staged")

	// The resume read delivers the rest; exactly one packet comes out.
	feed(s, handshake[3:])
	needed, err = s.Drain(collect(&got))
	require.NoError(t, err)
	assert.Zero(t, needed)
	require.Len(t, got, 1)
	assert.Equal(t, "Steve", got[0].Handshake.Name)
	assert.Equal(t, 0, s.In.Len())

	read, _ := s.In.Cursors()
	assert.EqualValues(t, len(handshake), read, "read cursor advanced by the full packet")
}

func TestDrainMultiplePacketsPerRead(t *testing.T) {
	s := newTestSession(t)
	feed(s, []byte{0x00})
	feed(s, []byte{0x02, 0x00, 0x05, 'S', 't', 'e', 'v', 'e'})
	feed(s, []byte{0x00})

	var got []protocol.ClientPacket
	needed, err := s.Drain(collect(&got))
	require.NoError(t, err)
	assert.Zero(t, needed)
	require.Len(t, got, 3)
	assert.Equal(t, protocol.PacketHeartbeat, got[0].Type)
	assert.Equal(t, protocol.PacketHandshake, got[1].Type)
	assert.Equal(t, protocol.PacketHeartbeat, got[2].Type)
}

func TestDrainMalformedData(t *testing.T) {
	s := newTestSession(t)
	feed(s, []byte{0x7E, 0x01, 0x02})

	_, err := s.Drain(func(*protocol.ClientPacket) error { return nil })
	assert.ErrorIs(t, err, api.ErrMalformedPacket)
}

func TestDrainStopsOnDispatchError(t *testing.T) {
	s := newTestSession(t)
	feed(s, []byte{0x00, 0x00})

	sentinel := fmt.Errorf("session torn down")
	calls := 0
	_, err := s.Drain(func(*protocol.ClientPacket) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, s.In.Len(), "second packet stays queued")
}

func TestDrainAcrossWrapPoint(t *testing.T) {
	s := newTestSession(t)
	size := s.In.Ring().Size()

	// Push the cursors to four bytes before the physical end.
	pad := make([]byte, size-4)
	feed(s, pad)
	s.In.AdvanceRead(len(pad))

	// This handshake straddles the wrap point.
	feed(s, []byte{0x02, 0x00, 0x05, 'S', 't', 'e', 'v', 'e'})
	var got []protocol.ClientPacket
	needed, err := s.Drain(collect(&got))
	require.NoError(t, err)
	assert.Zero(t, needed)
	require.Len(t, got, 1)
	assert.Equal(t, "Steve", got[0].Handshake.Name)
}
