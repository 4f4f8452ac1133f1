package router_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nocsim/flit"
	"github.com/sarchlab/nocsim/router"
	"github.com/sarchlab/nocsim/routing"
)

type vcTestRouter struct{ outputs int }

func (r vcTestRouter) ID() int         { return 0 }
func (r vcTestRouter) NumOutputs() int { return r.outputs }

var _ = Describe("VC", func() {
	var vc *router.VC

	BeforeEach(func() {
		vc = router.NewVC(2, 4)
	})

	It("should start idle and empty", func() {
		Expect(vc.State()).To(Equal(router.VCIdle))
		Expect(vc.Empty()).To(BeTrue())
		Expect(vc.FrontFlit()).To(BeNil())
	})

	It("should be a FIFO", func() {
		a := &flit.Flit{ID: 1}
		b := &flit.Flit{ID: 2}
		Expect(vc.AddFlit(a)).To(BeTrue())
		Expect(vc.AddFlit(b)).To(BeTrue())

		Expect(vc.FrontFlit()).To(BeIdenticalTo(a))
		Expect(vc.RemoveFlit()).To(BeIdenticalTo(a))
		Expect(vc.RemoveFlit()).To(BeIdenticalTo(b))
		Expect(vc.RemoveFlit()).To(BeNil())
	})

	It("should refuse flits beyond capacity", func() {
		Expect(vc.AddFlit(&flit.Flit{})).To(BeTrue())
		Expect(vc.AddFlit(&flit.Flit{})).To(BeTrue())
		Expect(vc.AddFlit(&flit.Flit{})).To(BeFalse())
		Expect(vc.Size()).To(Equal(2))
	})

	It("should reset the state clock on transitions", func() {
		vc.SetState(router.VCRouting)
		Expect(vc.StateTime()).To(Equal(0))

		vc.AdvanceTime()
		vc.AdvanceTime()
		Expect(vc.StateTime()).To(Equal(2))

		vc.SetState(router.VCAlloc)
		Expect(vc.StateTime()).To(Equal(0))
	})

	It("should capture the route set and head priority", func() {
		rf, err := routing.New("direct", routing.Options{Ranges: routing.FullRanges(2)})
		Expect(err).NotTo(HaveOccurred())

		head := &flit.Flit{Head: true, Dest: 3, Priority: 9, Type: flit.Any}
		vc.Route(rf, vcTestRouter{outputs: 4}, head, 0)

		Expect(vc.Priority()).To(Equal(9))
		Expect(vc.RouteSet().NumVCs(3)).To(Equal(2))
	})

	It("should record the granted output", func() {
		vc.SetOutput(2, 1)
		Expect(vc.OutputPort()).To(Equal(2))
		Expect(vc.OutputVC()).To(Equal(1))
	})
})
