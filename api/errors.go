// File: api/errors.go
// Package api defines the interfaces and error values shared between the
// basalt core and its collaborators.
// Author: basalt authors
// License: Apache-2.0

package api

import "fmt"

// Common errors used across the library.
var (
	// ErrPoolExhausted is returned when a fixed-capacity allocator has no
	// free cells left.
	ErrPoolExhausted = fmt.Errorf("pool exhausted")

	// ErrServerFull denotes a session table with no free rows. No function
	// in this module returns it: the accept path closes the connection and
	// logs the condition instead.
	ErrServerFull = fmt.Errorf("session table full")

	// ErrMalformedPacket is returned when the decoder rejects a byte
	// sequence as structurally invalid.
	ErrMalformedPacket = fmt.Errorf("malformed packet")

	// ErrSessionClosed is returned for operations on a session that has
	// been disconnected or is in the process of disconnecting. Push also
	// returns it for a session that has not yet reached CONNECTED.
	ErrSessionClosed = fmt.Errorf("session closed")

	// ErrInvalidSize is returned when a buffer or pool is requested with
	// a size the allocator cannot honor.
	ErrInvalidSize = fmt.Errorf("invalid size")

	// ErrEngineClosed denotes a shut-down engine. No function in this
	// module returns it.
	ErrEngineClosed = fmt.Errorf("engine closed")
)
