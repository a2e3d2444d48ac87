// File: internal/engine/uring_linux.go
// Author: basalt authors
// License: Apache-2.0
//
// Minimal io_uring wrapper: setup, ring mmaps, SQE acquisition, submission,
// and completion peeking. Single-threaded by design; only the head/tail
// words shared with the kernel are accessed atomically.

package engine

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

type uring struct {
	fd     int
	params uringParams

	sqMmap  []byte
	cqMmap  []byte
	sqeMmap []byte

	sqHead  *uint32
	sqTail  *uint32
	sqMask  uint32
	sqArray []uint32
	sqes    []ioSqe
	sqeNext uint32 // local tail of acquired but unsubmitted SQEs

	cqHead *uint32
	cqTail *uint32
	cqMask uint32
	cqes   []ioCqe
}

func newURing(entries uint32) (*uring, error) {
	r := &uring{}
	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP,
		uintptr(entries), uintptr(unsafe.Pointer(&r.params)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("io_uring_setup: %w", errno)
	}
	r.fd = int(fd)

	sqSize := int(r.params.SQOff.Array + r.params.SQEntries*4)
	cqSize := int(r.params.CQOff.Cqes + r.params.CQEntries*cqeSize)
	if r.params.Features&featSingleMMap != 0 {
		if cqSize > sqSize {
			sqSize = cqSize
		}
		cqSize = sqSize
	}

	var err error
	r.sqMmap, err = unix.Mmap(r.fd, offSQRing, sqSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		r.close()
		return nil, fmt.Errorf("mmap sq ring: %w", err)
	}
	if r.params.Features&featSingleMMap != 0 {
		r.cqMmap = r.sqMmap
	} else {
		r.cqMmap, err = unix.Mmap(r.fd, offCQRing, cqSize,
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("mmap cq ring: %w", err)
		}
	}
	r.sqeMmap, err = unix.Mmap(r.fd, offSQEs, int(r.params.SQEntries)*sqeSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		r.close()
		return nil, fmt.Errorf("mmap sqes: %w", err)
	}

	sqBase := unsafe.Pointer(&r.sqMmap[0])
	r.sqHead = (*uint32)(unsafe.Add(sqBase, uintptr(r.params.SQOff.Head)))
	r.sqTail = (*uint32)(unsafe.Add(sqBase, uintptr(r.params.SQOff.Tail)))
	r.sqMask = *(*uint32)(unsafe.Add(sqBase, uintptr(r.params.SQOff.RingMask)))
	r.sqArray = unsafe.Slice(
		(*uint32)(unsafe.Add(sqBase, uintptr(r.params.SQOff.Array))),
		r.params.SQEntries)
	r.sqes = unsafe.Slice((*ioSqe)(unsafe.Pointer(&r.sqeMmap[0])), r.params.SQEntries)

	cqBase := unsafe.Pointer(&r.cqMmap[0])
	r.cqHead = (*uint32)(unsafe.Add(cqBase, uintptr(r.params.CQOff.Head)))
	r.cqTail = (*uint32)(unsafe.Add(cqBase, uintptr(r.params.CQOff.Tail)))
	r.cqMask = *(*uint32)(unsafe.Add(cqBase, uintptr(r.params.CQOff.RingMask)))
	r.cqes = unsafe.Slice(
		(*ioCqe)(unsafe.Add(cqBase, uintptr(r.params.CQOff.Cqes))),
		r.params.CQEntries)

	// The SQE index array never changes: slot i always submits sqes[i].
	for i := range r.sqArray {
		r.sqArray[i] = uint32(i)
	}
	r.sqeNext = atomic.LoadUint32(r.sqTail)
	return r, nil
}

// getSQE returns the next free submission entry, zeroed, or nil when the
// submission ring is full.
func (r *uring) getSQE() *ioSqe {
	head := atomic.LoadUint32(r.sqHead)
	if r.sqeNext-head >= r.params.SQEntries {
		return nil
	}
	sqe := &r.sqes[r.sqeNext&r.sqMask]
	*sqe = ioSqe{}
	r.sqeNext++
	return sqe
}

// submit publishes all acquired SQEs and performs one io_uring_enter.
func (r *uring) submit() (int, error) {
	tail := atomic.LoadUint32(r.sqTail)
	if r.sqeNext != tail {
		atomic.StoreUint32(r.sqTail, r.sqeNext)
	}
	toSubmit := r.sqeNext - atomic.LoadUint32(r.sqHead)
	if toSubmit == 0 {
		return 0, nil
	}
	n, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER,
		uintptr(r.fd), uintptr(toSubmit), 0, 0, 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("io_uring_enter: %w", errno)
	}
	return int(n), nil
}

// peekCQE returns the oldest unseen completion without consuming it.
func (r *uring) peekCQE() (*ioCqe, bool) {
	head := atomic.LoadUint32(r.cqHead)
	if head == atomic.LoadUint32(r.cqTail) {
		return nil, false
	}
	return &r.cqes[head&r.cqMask], true
}

// seenCQE consumes the completion returned by peekCQE.
func (r *uring) seenCQE() {
	atomic.AddUint32(r.cqHead, 1)
}

func (r *uring) close() error {
	if r.sqeMmap != nil {
		unix.Munmap(r.sqeMmap)
		r.sqeMmap = nil
	}
	if r.cqMmap != nil && r.params.Features&featSingleMMap == 0 {
		unix.Munmap(r.cqMmap)
	}
	r.cqMmap = nil
	if r.sqMmap != nil {
		unix.Munmap(r.sqMmap)
		r.sqMmap = nil
	}
	if r.fd > 0 {
		unix.Close(r.fd)
		r.fd = 0
	}
	return nil
}

func (s *ioSqe) prepAccept(fd int, addr *unix.RawSockaddrInet4, addrLen *uint32, flags uint32) {
	s.Opcode = opAccept
	s.Fd = int32(fd)
	s.Addr = uint64(uintptr(unsafe.Pointer(addr)))
	s.Off = uint64(uintptr(unsafe.Pointer(addrLen)))
	s.OpFlags = flags
}

func (s *ioSqe) prepRecv(fd int, buf []byte, flags uint32) {
	s.Opcode = opRecv
	s.Fd = int32(fd)
	s.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	s.Len = uint32(len(buf))
	s.OpFlags = flags
}

func (s *ioSqe) prepSend(fd int, buf []byte, flags uint32) {
	s.Opcode = opSend
	s.Fd = int32(fd)
	s.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	s.Len = uint32(len(buf))
	s.OpFlags = flags
}

func (s *ioSqe) prepClose(fd int) {
	s.Opcode = opClose
	s.Fd = int32(fd)
}
