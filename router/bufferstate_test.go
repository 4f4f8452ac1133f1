package router_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nocsim/flit"
	"github.com/sarchlab/nocsim/router"
)

var _ = Describe("BufferState", func() {
	var b *router.BufferState

	BeforeEach(func() {
		b = router.NewBufferState(2, 4, true)
	})

	It("should start available, empty, and fully credited", func() {
		for vc := 0; vc < 2; vc++ {
			Expect(b.IsAvailableFor(vc)).To(BeTrue())
			Expect(b.IsFullFor(vc)).To(BeFalse())
			Expect(b.Size(vc)).To(Equal(0))
			Expect(b.Credits(vc)).To(Equal(4))
		}
	})

	It("should track occupancy through sends and credits", func() {
		b.TakeBuffer(0)
		b.SendingFlit(&flit.Flit{VC: 0})
		b.SendingFlit(&flit.Flit{VC: 0})
		Expect(b.Size(0)).To(Equal(2))
		Expect(b.Credits(0)).To(Equal(2))

		b.ProcessCredit(&flit.Credit{VCs: []int{0}})
		Expect(b.Size(0)).To(Equal(1))
		Expect(b.Credits(0)).To(Equal(3))
	})

	It("should report full at capacity", func() {
		b.TakeBuffer(1)
		for i := 0; i < 4; i++ {
			b.SendingFlit(&flit.Flit{VC: 1})
		}
		Expect(b.IsFullFor(1)).To(BeTrue())

		b.ProcessCredit(&flit.Credit{VCs: []int{1}})
		Expect(b.IsFullFor(1)).To(BeFalse())
	})

	It("should hold the VC until the tail credit drains it", func() {
		b.TakeBuffer(0)
		b.SendingFlit(&flit.Flit{VC: 0})
		b.SendingFlit(&flit.Flit{VC: 0, Tail: true})
		Expect(b.IsAvailableFor(0)).To(BeFalse())

		b.ProcessCredit(&flit.Credit{VCs: []int{0}})
		Expect(b.IsAvailableFor(0)).To(BeFalse())

		b.ProcessCredit(&flit.Credit{VCs: []int{0}})
		Expect(b.IsAvailableFor(0)).To(BeTrue())
	})

	It("should release at tail send when not waiting for the credit", func() {
		eager := router.NewBufferState(2, 4, false)
		eager.TakeBuffer(0)
		eager.SendingFlit(&flit.Flit{VC: 0, Tail: true})
		Expect(eager.IsAvailableFor(0)).To(BeTrue())
	})

	It("should process multi-VC credits", func() {
		b.TakeBuffer(0)
		b.TakeBuffer(1)
		b.SendingFlit(&flit.Flit{VC: 0})
		b.SendingFlit(&flit.Flit{VC: 1})

		b.ProcessCredit(&flit.Credit{VCs: []int{0, 1}})
		Expect(b.Size(0)).To(Equal(0))
		Expect(b.Size(1)).To(Equal(0))
	})

	It("should panic on taking an in-use VC", func() {
		b.TakeBuffer(0)
		Expect(func() { b.TakeBuffer(0) }).To(Panic())
	})

	It("should panic on overflow", func() {
		b.TakeBuffer(0)
		for i := 0; i < 4; i++ {
			b.SendingFlit(&flit.Flit{VC: 0})
		}
		Expect(func() { b.SendingFlit(&flit.Flit{VC: 0}) }).To(Panic())
	})

	It("should panic on a credit for an empty VC", func() {
		Expect(func() { b.ProcessCredit(&flit.Credit{VCs: []int{0}}) }).To(Panic())
	})

	It("should panic on out-of-range VC indices", func() {
		Expect(func() { b.IsFullFor(5) }).To(Panic())
	})
})
