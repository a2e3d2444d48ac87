// File: internal/engine/frame.go
// Author: basalt authors
// License: Apache-2.0
//
// Frame registry. Every in-flight kernel operation carries exactly one
// frame; the frame's (index, salt) pair is packed into the submission's
// user-data word and resolved again on completion, so a stale or corrupted
// completion can be rejected instead of dereferenced. Frames live in a
// fixed arena with an intrusive free list, the pool-allocator discipline
// applied to typed records.

package engine

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/basalt-mc/basalt/api"
)

type frameKind uint8

const (
	frameUnknown frameKind = iota
	frameSend
	frameReceive
	frameAccept
	frameClose
)

func (k frameKind) String() string {
	switch k {
	case frameSend:
		return "SEND"
	case frameReceive:
		return "RECEIVE"
	case frameAccept:
		return "ACCEPT"
	case frameClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// frame describes one outstanding I/O operation. Lifetime runs from queue
// to completion-consumed; release returns the cell to the registry.
type frame struct {
	kind  frameKind
	trace uint64

	// Owning session as an (index, generation) pair; index -1 when the
	// operation is not bound to a session (pre-assignment accepts, the
	// server-socket close).
	session int32
	gen     uint32

	// SEND: buf is the owned outbound buffer, bufSize the payload length,
	// progress the bytes already out. RECEIVE: buf is the kernel's
	// destination span, progress the bytes already staged from an earlier
	// short read.
	buf      []byte
	bufSize  int
	progress int
	pooled   bool

	// ACCEPT: remote address storage filled in by the kernel.
	addr    unix.RawSockaddrInet4
	addrLen uint32

	index    int32
	salt     uint32
	next     int32
	released bool
}

// frameRegistry is a fixed arena of frames with an O(1) intrusive free
// list. The arena never grows; alloc reports exhaustion instead of
// returning an invalid frame.
type frameRegistry struct {
	frames []frame
	free   int32
	trace  uint64
	inUse  int
}

// newFrameRegistry sizes the arena to hold as many frames as fit in the
// requested byte count, at least one.
func newFrameRegistry(bytes int) *frameRegistry {
	count := bytes / int(unsafe.Sizeof(frame{}))
	if count < 1 {
		count = 1
	}
	r := &frameRegistry{frames: make([]frame, count), free: -1}
	for i := count - 1; i >= 0; i-- {
		r.frames[i].index = int32(i)
		r.frames[i].released = true
		r.frames[i].next = r.free
		r.free = int32(i)
	}
	return r
}

// alloc pops a free frame and stamps it with a fresh trace id.
func (r *frameRegistry) alloc(kind frameKind, sessionIndex int32, generation uint32) (*frame, error) {
	if r.free < 0 {
		return nil, api.ErrPoolExhausted
	}
	f := &r.frames[r.free]
	r.free = f.next
	r.trace++
	*f = frame{
		kind:    kind,
		trace:   r.trace,
		session: sessionIndex,
		gen:     generation,
		index:   f.index,
		salt:    f.salt,
	}
	r.inUse++
	return f, nil
}

// release returns the frame to the free list and invalidates its handle.
func (r *frameRegistry) release(f *frame) {
	f.released = true
	f.salt++
	f.buf = nil
	f.next = r.free
	r.free = f.index
	r.inUse--
}

// userData packs the frame's stable handle for the kernel.
func (r *frameRegistry) userData(f *frame) uint64 {
	return uint64(uint32(f.index)) | uint64(f.salt)<<32
}

// lookup resolves a completion's user-data word. Returns nil for an
// out-of-range index or a salt that no longer matches (stale completion).
func (r *frameRegistry) lookup(userData uint64) *frame {
	index := int32(uint32(userData))
	salt := uint32(userData >> 32)
	if index < 0 || int(index) >= len(r.frames) {
		return nil
	}
	f := &r.frames[index]
	if f.released || f.salt != salt {
		return nil
	}
	return f
}
