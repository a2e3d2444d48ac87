// File: internal/memory/pool.go
// Author: basalt authors
// License: Apache-2.0
//
// Fixed-element pool allocator. A single page-aligned arena is divided into
// equally-sized cells; the free list is threaded intrusively through the
// first eight bytes of each free cell, so allocation and release are two
// pointer writes each and the arena carries no per-cell bookkeeping.

package memory

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/basalt-mc/basalt/api"
)

// poolNil terminates the intrusive free list.
const poolNil = ^uint64(0)

// minElementSize is the space the free-list link needs inside a cell.
const minElementSize = 8

// Pool hands out uniformly-sized cells from a contiguous mmap'd arena.
// Cells are stable until Close. Double-free and foreign-free are undefined
// behavior, exactly like any intrusive allocator.
type Pool struct {
	arena    []byte
	elemSize int
	cells    int
	free     uint64
	inUse    int
}

// NewPool maps a page-multiple arena of at least size bytes and threads the
// free list through it. elemSize must be at least 8 bytes.
func NewPool(elemSize, size int) (*Pool, error) {
	if elemSize < minElementSize || size <= 0 {
		return nil, api.ErrInvalidSize
	}
	arenaSize := nearestMultiple(size, unix.Getpagesize())
	arena, err := unix.Mmap(-1, 0, arenaSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("pool arena mmap: %w", err)
	}
	p := &Pool{
		arena:    arena,
		elemSize: elemSize,
		cells:    arenaSize / elemSize,
		free:     poolNil,
	}
	// Thread the list back to front so the first Alloc returns offset 0.
	for i := p.cells - 1; i >= 0; i-- {
		off := uint64(i * elemSize)
		p.setNext(off, p.free)
		p.free = off
	}
	return p, nil
}

// Alloc pops the free-list head in O(1). The returned slice is exactly one
// cell; it stays valid until freed or the pool is closed. Returns
// api.ErrPoolExhausted when no cells remain.
func (p *Pool) Alloc() ([]byte, error) {
	if p.free == poolNil {
		return nil, api.ErrPoolExhausted
	}
	off := p.free
	p.free = p.next(off)
	p.inUse++
	end := off + uint64(p.elemSize)
	return p.arena[off:end:end], nil
}

// Free pushes a cell previously returned by Alloc back onto the free list.
// The cell may be resliced shorter, but must start at its original offset.
func (p *Pool) Free(cell []byte) {
	off := uint64(uintptr(unsafe.Pointer(&cell[0])) - uintptr(unsafe.Pointer(&p.arena[0])))
	p.setNext(off, p.free)
	p.free = off
	p.inUse--
}

// ElementSize reports the cell size.
func (p *Pool) ElementSize() int { return p.elemSize }

// Cells reports the total cell capacity of the arena.
func (p *Pool) Cells() int { return p.cells }

// InUse reports how many cells are currently allocated.
func (p *Pool) InUse() int { return p.inUse }

// Close releases the arena. Outstanding cells become invalid.
func (p *Pool) Close() error {
	arena := p.arena
	p.arena = nil
	p.free = poolNil
	return unix.Munmap(arena)
}

func (p *Pool) next(off uint64) uint64 {
	return *(*uint64)(unsafe.Pointer(&p.arena[off]))
}

func (p *Pool) setNext(off, next uint64) {
	*(*uint64)(unsafe.Pointer(&p.arena[off])) = next
}

func nearestMultiple(size, multiple int) int {
	return (size + multiple - 1) / multiple * multiple
}
