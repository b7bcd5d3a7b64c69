package memsys

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/eoscore/eoscore/cmn"
)

var _ = Describe("BufferManager", func() {
	It("returns allocated count to baseline after a full recycle (spec §8)", func() {
		mgr := NewBufferManager(cmn.RBFConf{MaxSize: 4 << 20, Slots: 3, BaseSize: 1 << 20})
		before := mgr.allocated.Load()

		bufs := make([]*Buffer, 5)
		for i := range bufs {
			bufs[i] = mgr.GetBuffer(1 << 20)
			Expect(bufs[i]).NotTo(BeNil())
		}
		for _, b := range bufs {
			mgr.Recycle(b)
		}

		Expect(mgr.allocated.Load()).To(Equal(before))
		_, total := mgr.GetSortedSlotSizes()
		Expect(total).To(BeNumerically("<=", mgr.MaxSize()))
	})

	It("never exceeds max_size plus one oversize buffer under pressure", func() {
		mgr := NewBufferManager(cmn.RBFConf{MaxSize: 4 << 20, Slots: 2, BaseSize: 1 << 20})
		var held []*Buffer
		for i := 0; i < 10; i++ {
			b := mgr.GetBuffer(1 << 20)
			if b != nil {
				held = append(held, b)
			}
		}
		oversize := mgr.GetBuffer(8 << 20)
		for _, b := range held {
			mgr.Recycle(b)
		}
		_, total := mgr.GetSortedSlotSizes()
		Expect(total).To(BeNumerically("<=", mgr.MaxSize()+(8<<20)))
		mgr.Recycle(oversize)
	})
})

var _ = Describe("RainBlock", func() {
	It("refuses FillWithZeros(false) after a gap, accepts force=true (spec §8)", func() {
		mgr := NewBufferManager(cmn.RBFConf{MaxSize: 16 << 20, Slots: 4, BaseSize: 1 << 20})
		rb := NewRainBlock(mgr, 1<<20)
		Expect(rb).NotTo(BeNil())
		defer rb.Release()

		_, err := rb.Write([]byte("tail"), 100)
		Expect(err).NotTo(HaveOccurred())
		Expect(rb.HasHoles()).To(BeTrue())

		Expect(rb.FillWithZeros(false)).To(BeFalse())
		Expect(rb.FillWithZeros(true)).To(BeTrue())

		data := rb.Data()
		for _, b := range data[:100] {
			Expect(b).To(Equal(byte(0)))
		}
	})

	It("zeroes only the tail when there are no holes", func() {
		mgr := NewBufferManager(cmn.RBFConf{MaxSize: 16 << 20, Slots: 4, BaseSize: 1 << 20})
		rb := NewRainBlock(mgr, 1<<20)
		defer rb.Release()

		_, err := rb.Write([]byte("head"), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(rb.HasHoles()).To(BeFalse())
		Expect(rb.FillWithZeros(false)).To(BeTrue())
		Expect(rb.LastOffset()).To(Equal(uint32(1 << 20)))
	})
})
