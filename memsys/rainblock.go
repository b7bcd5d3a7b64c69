package memsys

import (
	"github.com/eoscore/eoscore/cmn"
)

// RainBlock is one erasure-coded stripe unit, backed by a Buffer drawn
// from a BufferManager (spec §3 "RainBlock", §4.4 "RainBlock
// operations"). Not safe for concurrent use by multiple goroutines.
type RainBlock struct {
	capacity   uint32
	lastOffset uint32
	hasHoles   bool
	buffer     *Buffer
	mgr        *BufferManager
}

// NewRainBlock obtains a buffer of the given capacity from mgr. Returns
// nil if mgr has no room for the allocation (pool pressure or an
// oversize request), mirroring the source's gRainBuffMgr.GetBuffer
// failure path.
func NewRainBlock(mgr *BufferManager, capacity uint32) *RainBlock {
	buf := mgr.GetBuffer(int64(capacity))
	if buf == nil {
		return nil
	}
	return &RainBlock{capacity: capacity, buffer: buf, mgr: mgr}
}

// Release returns the block's underlying buffer to its manager. A
// RainBlock must not be used after Release.
func (rb *RainBlock) Release() {
	if rb.buffer != nil {
		rb.mgr.Recycle(rb.buffer)
		rb.buffer = nil
	}
}

// Data returns the block's raw backing storage.
func (rb *RainBlock) Data() []byte { return rb.buffer.Data() }

// HasHoles reports whether a write has left a gap before the current
// last-written offset.
func (rb *RainBlock) HasHoles() bool { return rb.hasHoles }

// LastOffset returns the highest offset written so far.
func (rb *RainBlock) LastOffset() uint32 { return rb.lastOffset }

// Write copies src into the block at offset, refusing if it would run
// past capacity (spec §4.4). A gap between the previous last-written
// offset and this write's start sets hasHoles, which FillWithZeros
// later consults.
func (rb *RainBlock) Write(src []byte, offset uint32) ([]byte, error) {
	length := uint32(len(src))
	if offset > rb.capacity || uint64(offset)+uint64(length) > uint64(rb.capacity) {
		return nil, &cmn.ErrInvalid{Reason: "rain block cannot hold so much data"}
	}

	if offset > rb.lastOffset {
		rb.hasHoles = true
	}
	if offset+length > rb.lastOffset {
		rb.lastOffset = offset + length
	}

	dst := rb.buffer.Data()[offset : offset+length]
	copy(dst, src)
	if offset+length > rb.buffer.Length {
		rb.buffer.Length = uint64(offset + length)
	}
	return dst, nil
}

// FillWithZeros zeroes the unused tail of the block and marks it
// complete by setting lastOffset to capacity. If the block has holes,
// it refuses unless force is true, in which case it zeroes the entire
// block regardless of what was previously written (spec §3/§4.4/§8 —
// this supersedes the reference implementation, which always refuses
// on holes; the spec is explicit that force must override holes).
func (rb *RainBlock) FillWithZeros(force bool) bool {
	if rb.hasHoles && !force {
		return false
	}

	data := rb.buffer.Data()
	if force {
		for i := range data {
			data[i] = 0
		}
	} else if rb.lastOffset < rb.capacity {
		tail := data[rb.lastOffset:rb.capacity]
		for i := range tail {
			tail[i] = 0
		}
	}

	rb.lastOffset = rb.capacity
	rb.buffer.Length = uint64(rb.capacity)
	return true
}
