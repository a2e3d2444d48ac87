// File: protocol/codec.go
// Author: basalt authors
// License: Apache-2.0
//
// Deterministic, bit-exact encoders and decoders for the packet family.
// All multi-byte integers are big-endian; floats travel as their IEEE-754
// bit patterns; strings are UTF-8 with a leading unsigned 16-bit length.
//
// Every function follows one return convention:
//
//	> 0  success, value is bytes consumed (decode) or written (encode)
//	< 0  insufficient data/space, magnitude is the additional bytes needed
//	= 0  structural error, the input cannot ever parse
//
// The codec performs no I/O and holds no state.

package protocol

import (
	"encoding/binary"
	"math"

	"github.com/rs/zerolog"
)

var log = zerolog.Nop()

// SetLogger installs a logger for decoder diagnostics (oversized length
// fields, unknown packet identifiers). The default discards everything.
func SetLogger(l zerolog.Logger) {
	log = l
}

func putU16(buf []byte, c int, v uint16) int {
	binary.BigEndian.PutUint16(buf[c:], v)
	return c + 2
}

func putU32(buf []byte, c int, v uint32) int {
	binary.BigEndian.PutUint32(buf[c:], v)
	return c + 4
}

func putU64(buf []byte, c int, v uint64) int {
	binary.BigEndian.PutUint64(buf[c:], v)
	return c + 8
}

func putF32(buf []byte, c int, v float32) int {
	return putU32(buf, c, math.Float32bits(v))
}

func putF64(buf []byte, c int, v float64) int {
	return putU64(buf, c, math.Float64bits(v))
}

func putString(buf []byte, c int, s string) int {
	c = putU16(buf, c, uint16(len(s)))
	return c + copy(buf[c:], s)
}

func putBool(buf []byte, c int, v bool) int {
	if v {
		buf[c] = 1
	} else {
		buf[c] = 0
	}
	return c + 1
}

func getU16(buf []byte, c *int) uint16 {
	v := binary.BigEndian.Uint16(buf[*c:])
	*c += 2
	return v
}

func getU32(buf []byte, c *int) uint32 {
	v := binary.BigEndian.Uint32(buf[*c:])
	*c += 4
	return v
}

func getU64(buf []byte, c *int) uint64 {
	v := binary.BigEndian.Uint64(buf[*c:])
	*c += 8
	return v
}

func getF32(buf []byte, c *int) float32 {
	return math.Float32frombits(getU32(buf, c))
}

func getF64(buf []byte, c *int) float64 {
	return math.Float64frombits(getU64(buf, c))
}

func getBool(buf []byte, c *int) bool {
	v := buf[*c]
	*c++
	return v != 0
}

// DecodeClientPacket reads the leading tag byte and dispatches to the
// packet decoder for that type. pkt is only fully populated on a positive
// return.
func DecodeClientPacket(buf []byte, pkt *ClientPacket) int {
	if len(buf) < 1 {
		return len(buf) - 1
	}
	pkt.Type = PacketType(buf[0])

	switch pkt.Type {
	case PacketHeartbeat:
		return 1

	case PacketAuthentication:
		return decodeAuthenticationRequest(buf, &pkt.Authentication)

	case PacketHandshake:
		return decodeHandshakeRequest(buf, &pkt.Handshake)

	case PacketPlayerGrounded:
		return decodePlayerGrounded(buf, &pkt.Grounded)

	case PacketPlayerPosition:
		return decodePlayerPosition(buf, &pkt.Position)

	case PacketPlayerRotation:
		return decodePlayerRotation(buf, &pkt.Rotation)

	case PacketPlayerTransform:
		return decodePlayerTransform(buf, &pkt.Transform)

	case PacketDisconnect:
		return decodeDisconnect(buf, &pkt.Disconnect)

	default:
		log.Warn().Uint8("type", byte(pkt.Type)).Msg("cannot decode packet with unknown type")
		return 0
	}
}

func decodeAuthenticationRequest(buf []byte, req *AuthenticationRequest) int {
	// Tag, protocol version, and username length are the fixed prefix.
	if len(buf) < 7 {
		return len(buf) - 7
	}
	c := 1
	req.ProtocolVersion = int32(getU32(buf, &c))
	nameLen := int(getU16(buf, &c))
	if nameLen > MaxUsernameLength {
		log.Warn().Int("length", nameLen).Msg("received username length > 16, invalid data")
		return 0
	}
	if want := c + nameLen + 2; len(buf) < want {
		return len(buf) - want
	}
	req.Username = string(buf[c : c+nameLen])
	c += nameLen
	passLen := int(getU16(buf, &c))
	if passLen > MaxPasswordLength {
		log.Warn().Int("length", passLen).Msg("received password length > 32, invalid data")
		return 0
	}
	if want := c + passLen; len(buf) < want {
		return len(buf) - want
	}
	req.Password = string(buf[c : c+passLen])
	return c + passLen
}

func decodeHandshakeRequest(buf []byte, req *HandshakeRequest) int {
	if len(buf) < 3 {
		return len(buf) - 3
	}
	c := 1
	nameLen := int(getU16(buf, &c))
	if nameLen > MaxUsernameLength {
		log.Warn().Int("length", nameLen).Msg("received name length > 16, invalid data")
		return 0
	}
	if want := c + nameLen; len(buf) < want {
		return len(buf) - want
	}
	req.Name = string(buf[c : c+nameLen])
	return c + nameLen
}

func decodePlayerGrounded(buf []byte, p *PlayerGrounded) int {
	if len(buf) < 2 {
		return len(buf) - 2
	}
	c := 1
	p.Grounded = getBool(buf, &c)
	return c
}

func decodePlayerPosition(buf []byte, p *PlayerPosition) int {
	const want = 1 + 8*4 + 1
	if len(buf) < want {
		return len(buf) - want
	}
	c := 1
	p.X = getF64(buf, &c)
	p.Y = getF64(buf, &c)
	p.HeadY = getF64(buf, &c)
	p.Z = getF64(buf, &c)
	p.Grounded = getBool(buf, &c)
	return c
}

func decodePlayerRotation(buf []byte, p *PlayerRotation) int {
	const want = 1 + 4*2 + 1
	if len(buf) < want {
		return len(buf) - want
	}
	c := 1
	p.Yaw = getF32(buf, &c)
	p.Pitch = getF32(buf, &c)
	p.Grounded = getBool(buf, &c)
	return c
}

func decodePlayerTransform(buf []byte, p *PlayerTransform) int {
	const want = 1 + 8*4 + 4*2 + 1
	if len(buf) < want {
		return len(buf) - want
	}
	c := 1
	p.X = getF64(buf, &c)
	p.Y = getF64(buf, &c)
	p.HeadY = getF64(buf, &c)
	p.Z = getF64(buf, &c)
	p.Yaw = getF32(buf, &c)
	p.Pitch = getF32(buf, &c)
	p.Grounded = getBool(buf, &c)
	return c
}

func decodeDisconnect(buf []byte, p *Disconnect) int {
	if len(buf) < 3 {
		return len(buf) - 3
	}
	c := 1
	msgLen := int(getU16(buf, &c))
	if want := c + msgLen; len(buf) < want {
		return len(buf) - want
	}
	p.Message = string(buf[c : c+msgLen])
	return c + msgLen
}

// EncodedSize implements ServerPacket.
func (Heartbeat) EncodedSize() int { return 1 }

// Encode implements ServerPacket.
func (Heartbeat) Encode(buf []byte) int {
	if len(buf) < 1 {
		return len(buf) - 1
	}
	buf[0] = byte(PacketHeartbeat)
	return 1
}

// EncodedSize implements ServerPacket.
func (p AuthenticationResponse) EncodedSize() int {
	return 1 + 4 + 2 + len(p.Unknown0) + 2 + len(p.Unknown1)
}

// Encode implements ServerPacket.
func (p AuthenticationResponse) Encode(buf []byte) int {
	want := p.EncodedSize()
	if len(buf) < want {
		return len(buf) - want
	}
	buf[0] = byte(PacketAuthentication)
	c := putU32(buf, 1, uint32(p.EntityID))
	c = putString(buf, c, p.Unknown0)
	c = putString(buf, c, p.Unknown1)
	return c
}

// EncodedSize implements ServerPacket.
func (p HandshakeResponse) EncodedSize() int { return 1 + 2 + len(p.Unknown) }

// Encode implements ServerPacket.
func (p HandshakeResponse) Encode(buf []byte) int {
	want := p.EncodedSize()
	if len(buf) < want {
		return len(buf) - want
	}
	buf[0] = byte(PacketHandshake)
	return putString(buf, 1, p.Unknown)
}

// EncodedSize implements ServerPacket.
func (Time) EncodedSize() int { return 1 + 8 }

// Encode implements ServerPacket.
func (p Time) Encode(buf []byte) int {
	want := p.EncodedSize()
	if len(buf) < want {
		return len(buf) - want
	}
	buf[0] = byte(PacketTime)
	return putU64(buf, 1, uint64(p.Ticks))
}

// EncodedSize implements ServerPacket.
func (PlayerTransform) EncodedSize() int { return 1 + 8*4 + 4*2 + 1 }

// Encode implements ServerPacket. The client expects head_y before y, the
// reverse of the server-bound field order.
func (p PlayerTransform) Encode(buf []byte) int {
	want := p.EncodedSize()
	if len(buf) < want {
		return len(buf) - want
	}
	buf[0] = byte(PacketPlayerTransform)
	c := putF64(buf, 1, p.X)
	c = putF64(buf, c, p.HeadY)
	c = putF64(buf, c, p.Y)
	c = putF64(buf, c, p.Z)
	c = putF32(buf, c, p.Yaw)
	c = putF32(buf, c, p.Pitch)
	return putBool(buf, c, p.Grounded)
}

// EncodedSize implements ServerPacket.
func (Chunk) EncodedSize() int { return 1 + 4 + 4 + 1 }

// Encode implements ServerPacket.
func (p Chunk) Encode(buf []byte) int {
	want := p.EncodedSize()
	if len(buf) < want {
		return len(buf) - want
	}
	buf[0] = byte(PacketChunk)
	c := putU32(buf, 1, uint32(p.X))
	c = putU32(buf, c, uint32(p.Z))
	return putBool(buf, c, p.Initialize)
}

// EncodedSize implements ServerPacket.
func (p ChunkData) EncodedSize() int {
	return 1 + 4 + 2 + 4 + 1 + 1 + 1 + 4 + len(p.Data)
}

// Encode implements ServerPacket.
func (p ChunkData) Encode(buf []byte) int {
	want := p.EncodedSize()
	if len(buf) < want {
		return len(buf) - want
	}
	buf[0] = byte(PacketChunkData)
	c := putU32(buf, 1, uint32(p.X))
	c = putU16(buf, c, uint16(p.Y))
	c = putU32(buf, c, uint32(p.Z))
	buf[c] = p.XSize
	buf[c+1] = p.YSize
	buf[c+2] = p.ZSize
	c = putU32(buf, c+3, uint32(len(p.Data)))
	return c + copy(buf[c:], p.Data)
}

// EncodedSize implements ServerPacket.
func (p Disconnect) EncodedSize() int { return 1 + 2 + len(p.Message) }

// Encode implements ServerPacket.
func (p Disconnect) Encode(buf []byte) int {
	want := p.EncodedSize()
	if len(buf) < want {
		return len(buf) - want
	}
	buf[0] = byte(PacketDisconnect)
	return putString(buf, 1, p.Message)
}
