package memsys

import (
	"bufio"
	"math/bits"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/eoscore/eoscore/3rdparty/atomic"
	"github.com/eoscore/eoscore/3rdparty/glog"
	"github.com/eoscore/eoscore/cmn"
)

const maxOversizeBuffer = 512 << 20 // spec §3 BufferManager invariant

// BufferManager is the process-wide slot-bucketed pool described in
// spec §3/§4.4. It is safe for concurrent use: each slot guards its own
// free list, and slot selection/eviction never holds more than one
// slot's lock at a time.
type BufferManager struct {
	maxSize      atomic.Int64
	allocated    atomic.Int64 // bytes currently checked out by callers (spec §8 "allocated count")
	oversize     atomic.Int64 // oversize bytes currently checked out; never pooled, so excluded from slot footprint
	numSlots     int
	slotBaseSize uint64
	slots        []*BufferSlot
	metrics      *metrics
}

// NewBufferManager builds a manager from the RBF config section
// (defaults {256MiB, 6, 1MiB} per spec §6). Slot i holds buffers of
// capacity base_size*2^i, i in [0, slots].
func NewBufferManager(cfg cmn.RBFConf) *BufferManager {
	if cfg.Slots <= 0 {
		cfg.Slots = 6
	}
	if cfg.BaseSize <= 0 {
		cfg.BaseSize = 1 << 20
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 256 << 20
	}
	m := &BufferManager{
		numSlots:     cfg.Slots,
		slotBaseSize: uint64(cfg.BaseSize),
		slots:        make([]*BufferSlot, cfg.Slots+1),
		metrics:      newMetrics(),
	}
	m.maxSize.Store(cfg.MaxSize)
	for i := range m.slots {
		m.slots[i] = newBufferSlot(uint64(cfg.BaseSize) << uint(i))
	}
	return m
}

// slotFor returns the smallest slot index whose capacity is >= size, or
// -1 if size exceeds the manager's largest slot (spec §4.4 "slot index
// = ceil(log2(size/base_size)), capped at the configured slot count").
func (m *BufferManager) slotFor(size uint64) int {
	if size <= m.slotBaseSize {
		return 0
	}
	ratio := (size + m.slotBaseSize - 1) / m.slotBaseSize
	idx := bits.Len64(ratio - 1) // ceil(log2(ratio))
	if idx > m.numSlots {
		return -1
	}
	return idx
}

// GetBuffer returns a buffer whose capacity is >= size, or nil when the
// process already retains more than half of system memory or size
// exceeds the 512MiB oversize ceiling (spec §3 BufferManager invariant,
// §8 boundary behaviors). size<=0 is satisfied from slot 0 with
// Length 0 (Data() still spans the slot's full capacity).
func (m *BufferManager) GetBuffer(size int64) *Buffer {
	if size < 0 {
		size = 0
	}
	if m.footprint() > int64(systemMemorySize()/2) {
		glog.Warningf("msg=\"buffer pool exceeds half of system memory\" footprint=%d", m.footprint())
		return nil
	}

	slot := m.slotFor(uint64(size))
	if slot < 0 {
		if size > maxOversizeBuffer {
			return nil
		}
		m.allocated.Add(size)
		m.oversize.Add(size)
		m.metrics.buffersAllocated.Inc()
		m.metrics.bytesAllocated.Add(float64(size))
		buf := newBuffer(uint64(size))
		buf.Length = 0
		return buf
	}

	buf, isNew := m.slots[slot].getBuffer()
	m.allocated.Add(int64(buf.Capacity))
	if isNew {
		m.metrics.buffersAllocated.Inc()
		m.metrics.bytesAllocated.Add(float64(buf.Capacity))
	}
	buf.Length = 0
	return buf
}

// footprint reports the pool's total retained bytes: cached plus
// checked-out buffers across every slot, plus any oversize buffers
// currently checked out (oversize buffers are never pooled). Used for
// the half-system-memory guard in GetBuffer, which must account for
// memory the pool is holding onto even when it isn't checked out.
func (m *BufferManager) footprint() int64 {
	_, total := m.GetSortedSlotSizes()
	return total + m.oversize.Load()
}

// Recycle returns buf to its owning slot's free list, evicting cached
// buffers from other slots if the pool is over its configured ceiling
// (spec §4.4 "recycle"). A nil buf is a no-op. allocated always drops
// by buf's capacity regardless of whether the buffer is kept in the
// free list or evicted back to the OS: allocated tracks bytes checked
// out by callers (spec §8 "allocated count returns to its pre-sequence
// value"), not the pool's retained footprint.
func (m *BufferManager) Recycle(buf *Buffer) {
	if buf == nil {
		return
	}

	slot := -1
	for i, s := range m.slots {
		if s.buffSize == buf.Capacity {
			slot = i
			break
		}
	}
	if slot < 0 {
		// Oversize ad-hoc buffer: never pooled, freed immediately.
		m.allocated.Sub(int64(buf.Capacity))
		m.oversize.Sub(int64(buf.Capacity))
		m.metrics.bytesAllocated.Sub(float64(buf.Capacity))
		return
	}

	sorted, total := m.GetSortedSlotSizes()
	keep := total <= m.maxSize.Load()

	if !keep {
		glog.V(4).Infof("msg=\"buffer pool over ceiling, evicting\" max_size=%d total=%d", m.maxSize.Load(), total)
		m.evict(slot, sorted)
	}

	m.slots[slot].recycle(buf, keep)
	m.allocated.Sub(int64(buf.Capacity))
	if !keep {
		m.metrics.bytesAllocated.Sub(float64(buf.Capacity))
	}
}

// evict implements spec §4.4's eviction policy when the pool is over
// ceiling: walk the slots from the largest byte footprint down, skip the
// target slot, and shrink the first other slot i found: one pop if i is a
// bigger slot than the target, or 2^(slot-i) pops if i is smaller, to free
// the equivalent bytes. Only that one slot is shrunk. Each popped buffer's bytes are
// removed from the footprint gauge, since pop() frees it back to the OS.
func (m *BufferManager) evict(slot int, sorted []SlotSize) {
	for i := len(sorted) - 1; i >= 0; i-- {
		idx := sorted[i].Index
		if idx > slot {
			m.metrics.bytesAllocated.Sub(float64(m.slots[idx].pop()))
			return
		}
		if idx < slot {
			freeBlocks := 1 << uint(slot-idx)
			for ; freeBlocks > 0; freeBlocks-- {
				m.metrics.bytesAllocated.Sub(float64(m.slots[idx].pop()))
			}
			return
		}
	}
}

// SlotSize pairs a slot index with its current total byte footprint,
// the per-element type returned by GetSortedSlotSizes (spec §4.4
// get_sorted_slot_sizes).
type SlotSize struct {
	Index int
	Bytes int64
}

// GetSortedSlotSizes returns the manager's slots sorted ascending by
// current byte usage, along with the grand total across all slots.
func (m *BufferManager) GetSortedSlotSizes() ([]SlotSize, int64) {
	out := make([]SlotSize, len(m.slots))
	var total int64
	for i, s := range m.slots {
		b := s.totalBytes()
		out[i] = SlotSize{Index: i, Bytes: b}
		total += b
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bytes < out[j].Bytes })
	return out, total
}

// NumSlots returns the number of slots configured, not counting slot 0.
func (m *BufferManager) NumSlots() int { return m.numSlots }

// MaxSize returns the manager's configured byte ceiling.
func (m *BufferManager) MaxSize() int64 { return m.maxSize.Load() }

// systemMemorySize reports total installed RAM in bytes. Linux-only
// (parses /proc/meminfo, the same source the teacher's sys package
// reads from); returns a generous fallback elsewhere so the half-memory
// guard degrades to a no-op rather than refusing every allocation.
func systemMemorySize() uint64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 1 << 40 // 1TiB fallback
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			break
		}
		return kb * 1024
	}
	return 1 << 40
}
