package memsys

import (
	"sync"

	"github.com/eoscore/eoscore/3rdparty/atomic"
)

// BufferSlot is a bucket of Buffers of one fixed capacity (spec §3
// "BufferSlot"). Each slot's free list is guarded by its own mutex; the
// manager never holds more than one slot lock at a time (spec §4.4
// Concurrency).
type BufferSlot struct {
	mu        sync.Mutex
	free      []*Buffer
	allocated atomic.Int64 // buffers this slot retains from the OS: cached plus checked out
	buffSize  uint64
}

func newBufferSlot(size uint64) *BufferSlot {
	return &BufferSlot{buffSize: size}
}

// getBuffer pops a free buffer if one is available, otherwise allocates
// a new one. The second return value reports whether a fresh allocation
// was made (so the caller can charge it against the manager's footprint
// and allocation-count metrics; the manager's checked-out counter is
// charged either way).
func (s *BufferSlot) getBuffer() (*Buffer, bool) {
	s.mu.Lock()
	if n := len(s.free); n > 0 {
		buf := s.free[n-1]
		s.free = s.free[:n-1]
		s.mu.Unlock()
		return buf, false
	}
	s.mu.Unlock()
	s.allocated.Inc()
	return newBuffer(s.buffSize), true
}

// recycle returns buf to the slot's free list if keep is true, otherwise
// drops the reference and decrements the allocated count.
func (s *BufferSlot) recycle(buf *Buffer, keep bool) {
	if keep {
		s.mu.Lock()
		s.free = append(s.free, buf)
		s.mu.Unlock()
		return
	}
	s.allocated.Dec()
}

// pop discards one cached buffer from the free list, if any, shrinking
// the slot under memory pressure (spec §4.4 Recycle eviction). Returns
// the number of bytes freed, 0 if the free list was already empty.
func (s *BufferSlot) pop() int64 {
	s.mu.Lock()
	n := len(s.free)
	if n == 0 {
		s.mu.Unlock()
		return 0
	}
	s.free = s.free[:n-1]
	s.mu.Unlock()
	s.allocated.Dec()
	return int64(s.buffSize)
}

// totalBytes reports the slot's current byte footprint: cached plus
// checked-out buffers all share buffSize, so it is allocated * size.
func (s *BufferSlot) totalBytes() int64 {
	return s.allocated.Load() * int64(s.buffSize)
}
