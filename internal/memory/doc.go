// File: internal/memory/doc.go
// Author: basalt authors
// License: Apache-2.0

// Package memory provides the allocation primitives of the basalt core: a
// fixed-element pool allocator over a page-aligned arena, a memory-mapped
// "magic" ring buffer whose address range aliases the same physical pages,
// and a read/write cursor view layered on top of the ring.
//
// Nothing in this package is thread-safe. Every structure is owned by the
// single engine loop.
package memory
