// File: internal/memory/rwbuffer.go
// Author: basalt authors
// License: Apache-2.0

package memory

// RWBuffer layers monotonically non-decreasing read and write cursors over
// a Ring, exposing the readable and writable regions as flat slices. The
// cursors are 64-bit and wrap with ordinary unsigned arithmetic; the
// invariants read ≤ write and write-read ≤ size always hold.
type RWBuffer struct {
	ring  *Ring
	read  uint64
	write uint64
}

// NewRWBuffer allocates a single-repetition ring of at least minSize bytes
// and wraps it in a cursor view.
func NewRWBuffer(minSize int) (*RWBuffer, error) {
	ring, err := NewRing(minSize, 1)
	if err != nil {
		return nil, err
	}
	return &RWBuffer{ring: ring}, nil
}

// Ring exposes the underlying ring.
func (b *RWBuffer) Ring() *Ring { return b.ring }

// Len reports the readable byte count, write cursor minus read cursor.
func (b *RWBuffer) Len() int { return int(b.write - b.read) }

// Cap reports the writable byte count remaining before the buffer is full.
func (b *RWBuffer) Cap() int { return b.ring.size - b.Len() }

// ReadSlice returns the readable region as one contiguous slice.
func (b *RWBuffer) ReadSlice() []byte {
	pos := int(b.read % uint64(b.ring.size))
	return b.ring.At(pos, b.Len())
}

// WriteSlice returns the writable region as one contiguous slice, starting
// immediately after the readable data.
func (b *RWBuffer) WriteSlice() []byte {
	pos := int(b.read%uint64(b.ring.size)) + b.Len()
	return b.ring.span[pos : pos+b.Cap()]
}

// AdvanceRead consumes n readable bytes.
func (b *RWBuffer) AdvanceRead(n int) { b.read += uint64(n) }

// AdvanceWrite publishes n freshly written bytes.
func (b *RWBuffer) AdvanceWrite(n int) { b.write += uint64(n) }

// Cursors reports the raw read and write cursor values.
func (b *RWBuffer) Cursors() (read, write uint64) { return b.read, b.write }

// Close releases the underlying ring.
func (b *RWBuffer) Close() error { return b.ring.Close() }
