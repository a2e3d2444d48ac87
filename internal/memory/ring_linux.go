// File: internal/memory/ring_linux.go
// Author: basalt authors
// License: Apache-2.0
//
// Memory-mapped "magic" ring buffer. A private anonymous reservation of
// size*(count+1) bytes is overlaid with count+1 MAP_FIXED views of one
// memfd-backed object, so addresses that differ by size alias the same
// physical pages. Any read or write of up to size bytes starting anywhere
// in [0, size*count] is contiguous in virtual memory, which removes every
// wrap-around branch and copy from the packet hot path.

package memory

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/basalt-mc/basalt/api"
)

// Ring is an alias-mapped byte buffer of size bytes, repeated count+1 times
// over one virtual span.
type Ring struct {
	span  []byte
	size  int
	count int
}

// NewRing allocates a ring of at least minSize bytes (rounded up to a page
// multiple) with count repetitions. Partial mapping failures unwind the
// reservation before returning.
func NewRing(minSize, count int) (*Ring, error) {
	if minSize <= 0 || count < 1 {
		return nil, api.ErrInvalidSize
	}
	size := nearestMultiple(minSize, unix.Getpagesize())
	total := size * (count + 1)

	span, err := unix.Mmap(-1, 0, total,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("ring reserve: %w", err)
	}
	fd, err := unix.MemfdCreate("basalt-ring", 0)
	if err != nil {
		unix.Munmap(span)
		return nil, fmt.Errorf("ring memfd: %w", err)
	}
	defer unix.Close(fd)
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Munmap(span)
		return nil, fmt.Errorf("ring truncate: %w", err)
	}
	base := uintptr(unsafe.Pointer(&span[0]))
	for off := 0; off < total; off += size {
		// MAP_FIXED replaces the reservation slice in place, so a single
		// munmap of the whole span tears everything down.
		_, _, errno := unix.Syscall6(unix.SYS_MMAP,
			base+uintptr(off), uintptr(size),
			uintptr(unix.PROT_READ|unix.PROT_WRITE),
			uintptr(unix.MAP_FIXED|unix.MAP_SHARED),
			uintptr(fd), 0)
		if errno != 0 {
			unix.Munmap(span)
			return nil, fmt.Errorf("ring alias at %#x: %w", off, errno)
		}
	}
	return &Ring{span: span, size: size, count: count}, nil
}

// Size reports the ring's logical byte length (one repetition).
func (r *Ring) Size() int { return r.size }

// Count reports how many aliased repetitions follow the first view.
func (r *Ring) Count() int { return r.count }

// Span exposes the whole aliased virtual range, size*(count+1) bytes.
func (r *Ring) Span() []byte { return r.span }

// At returns a flat slice of n bytes starting at off. off must lie within
// the first repetition and n must not exceed size*count, which the aliasing
// guarantees is contiguous.
func (r *Ring) At(off, n int) []byte {
	return r.span[off : off+n : off+n]
}

// Close unmaps the entire aliased span.
func (r *Ring) Close() error {
	if r.span == nil {
		return nil
	}
	span := r.span
	r.span = nil
	return unix.Munmap(span)
}
