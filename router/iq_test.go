package router_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nocsim/flit"
	"github.com/sarchlab/nocsim/router"
	"github.com/sarchlab/nocsim/routing"
)

// wire is a single-slot unit-latency channel double. The test drives
// one side; the router drives the other.
type wire struct {
	flit   *flit.Flit
	credit *flit.Credit
}

func (w *wire) SendFlit(f *flit.Flit) { w.flit = f }
func (w *wire) ReceiveFlit() *flit.Flit {
	f := w.flit
	w.flit = nil
	return f
}
func (w *wire) SendCredit(c *flit.Credit) { w.credit = c }
func (w *wire) ReceiveCredit() *flit.Credit {
	c := w.credit
	w.credit = nil
	return c
}

// harness wraps a 4x4 router with test-driven wires on every port.
type harness struct {
	r   *router.Router
	rf  routing.Func
	in  []*wire
	out []*wire
}

func newHarness(cfg *router.Config) *harness {
	rf, err := routing.New("direct", routing.Options{Ranges: cfg.Ranges()})
	Expect(err).NotTo(HaveOccurred())

	r, err := router.New(cfg, 0, 4, 4, rf, flit.NewPool())
	Expect(err).NotTo(HaveOccurred())

	h := &harness{r: r, rf: rf}
	for i := 0; i < 4; i++ {
		in := &wire{}
		out := &wire{}
		r.ConnectInput(i, in, in)
		r.ConnectOutput(i, out, out)
		h.in = append(h.in, in)
		h.out = append(h.out, out)
	}
	return h
}

func (h *harness) cycle() {
	h.r.ReadInputs()
	h.r.InternalStep()
	h.r.WriteOutputs()
}

// scenarioConfig is the spec timing baseline: two VCs, all stage
// delays one cycle.
func scenarioConfig() *router.Config {
	cfg := router.DefaultConfig()
	cfg.NumVCs = 2
	cfg.VCBufSize = 4
	cfg.RoutingDelay = 1
	cfg.VCAllocDelay = 1
	cfg.STPrepareDelay = 0
	cfg.STFinalDelay = 1
	cfg.CreditDelay = 1
	return cfg
}

// singleVCConfig narrows every class to VC 0 so competing packets
// contend for one downstream VC.
func singleVCConfig() *router.Config {
	cfg := scenarioConfig()
	cfg.PartitionVCs = true
	cfg.ReadRequestBeginVC, cfg.ReadRequestEndVC = 0, 0
	cfg.ReadReplyBeginVC, cfg.ReadReplyEndVC = 0, 0
	cfg.WriteRequestBeginVC, cfg.WriteRequestEndVC = 0, 0
	cfg.WriteReplyBeginVC, cfg.WriteReplyEndVC = 0, 0
	return cfg
}

func packet(id, src, dest, size int, t flit.Type) []*flit.Flit {
	flits := make([]*flit.Flit, size)
	for i := range flits {
		flits[i] = &flit.Flit{
			ID:   id*100 + i,
			PID:  id,
			Type: t,
			Head: i == 0,
			Tail: i == size-1,
			Src:  src,
			Dest: dest,
			From: -1,
		}
	}
	return flits
}

var _ = Describe("Router construction", func() {
	It("should reject an invalid config", func() {
		cfg := scenarioConfig()
		cfg.NumVCs = 0
		rf, _ := routing.New("direct", routing.Options{Ranges: routing.FullRanges(2)})
		_, err := router.New(cfg, 0, 4, 4, rf, flit.NewPool())
		Expect(err).To(HaveOccurred())
	})

	It("should reject an unknown allocator", func() {
		cfg := scenarioConfig()
		cfg.VCAllocator = "magic"
		rf, _ := routing.New("direct", routing.Options{Ranges: routing.FullRanges(2)})
		_, err := router.New(cfg, 0, 4, 4, rf, flit.NewPool())
		Expect(err).To(HaveOccurred())
	})

	It("should reject an unknown filter policy", func() {
		cfg := scenarioConfig()
		cfg.FilterSpecGrants = "optimism"
		rf, _ := routing.New("direct", routing.Options{Ranges: routing.FullRanges(2)})
		_, err := router.New(cfg, 0, 4, 4, rf, flit.NewPool())
		Expect(err).To(HaveOccurred())
	})

	It("should reject a missing routing function", func() {
		_, err := router.New(scenarioConfig(), 0, 4, 4, nil, flit.NewPool())
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Single-flit packet (S1)", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness(scenarioConfig())
	})

	It("should move through RC, VA, SA on consecutive cycles", func() {
		f := packet(1, 0, 2, 1, flit.Any)[0]
		h.in[0].SendFlit(f)

		h.cycle() // 0: input queuing, routing starts
		Expect(h.r.VC(0, 0).State()).To(Equal(router.VCRouting))

		h.cycle() // 1: RC
		Expect(h.r.VC(0, 0).State()).To(Equal(router.VCAlloc))

		h.cycle() // 2: VA
		vc := h.r.VC(0, 0)
		Expect(vc.State()).To(Equal(router.VCActive))
		Expect(vc.OutputPort()).To(Equal(2))
		Expect(vc.OutputVC()).To(Equal(0))
		Expect(h.r.DownstreamState(2).IsAvailableFor(0)).To(BeFalse())

		h.cycle() // 3: SA + traversal; tail releases the VC
		Expect(h.r.VC(0, 0).State()).To(Equal(router.VCIdle))
		Expect(h.r.SwitchMonitor().Traversals(0, 2, flit.Any)).To(Equal(1))
		Expect(h.r.DownstreamState(2).Size(0)).To(Equal(1))

		h.cycle() // 4: crossbar and credit pipelines drain
		got := h.out[2].ReceiveFlit()
		Expect(got).To(BeIdenticalTo(f))
		Expect(got.Hops).To(Equal(1))
		Expect(got.VC).To(Equal(0))
		Expect(got.From).To(Equal(0))

		credit := h.in[0].ReceiveCredit()
		Expect(credit).NotTo(BeNil())
		Expect(credit.VCs).To(Equal([]int{0}))
	})

	It("should free the downstream VC after the tail credit", func() {
		f := packet(1, 0, 2, 1, flit.Any)[0]
		h.in[0].SendFlit(f)
		for i := 0; i < 5; i++ {
			h.cycle()
		}
		Expect(h.out[2].ReceiveFlit()).NotTo(BeNil())
		Expect(h.r.DownstreamState(2).IsAvailableFor(0)).To(BeFalse())

		h.out[2].SendCredit(&flit.Credit{VCs: []int{0}})
		h.cycle()
		Expect(h.r.DownstreamState(2).IsAvailableFor(0)).To(BeTrue())
		Expect(h.r.DownstreamState(2).Size(0)).To(Equal(0))
	})
})

var _ = Describe("Competing packets (S2)", func() {
	It("should grant one VA winner per round and alternate per packet", func() {
		h := newHarness(singleVCConfig())

		p0 := packet(1, 0, 2, 1, flit.ReadRequest)[0]
		p1 := packet(2, 1, 2, 1, flit.ReadRequest)[0]
		h.in[0].SendFlit(p0)
		h.in[1].SendFlit(p1)

		h.cycle() // 0
		h.cycle() // 1
		h.cycle() // 2: VA round with both bidding

		first := h.r.VC(0, 0)
		second := h.r.VC(1, 0)
		Expect(first.State()).To(Equal(router.VCActive))
		Expect(second.State()).To(Equal(router.VCAlloc))

		h.cycle() // 3: winner's tail leaves
		Expect(first.State()).To(Equal(router.VCIdle))
		Expect(second.State()).To(Equal(router.VCAlloc))

		h.cycle() // 4: flit on the wire; loser still blocked
		Expect(h.out[2].ReceiveFlit()).To(BeIdenticalTo(p0))
		Expect(second.State()).To(Equal(router.VCAlloc))

		// Downstream frees the VC; the loser wins the next round.
		h.out[2].SendCredit(&flit.Credit{VCs: []int{0}})
		h.cycle() // 5
		Expect(second.State()).To(Equal(router.VCActive))
		Expect(second.OutputPort()).To(Equal(2))
		Expect(second.OutputVC()).To(Equal(0))

		h.cycle() // 6: second packet traverses
		Expect(h.r.SwitchMonitor().Traversals(1, 2, flit.ReadRequest)).To(Equal(1))
	})
})

var _ = Describe("Speculative SA win without VA (S3)", func() {
	It("should not forward, consume, or credit anything", func() {
		cfg := singleVCConfig()
		cfg.Speculative = true
		h := newHarness(cfg)

		// The only candidate output VC is already owned elsewhere, so
		// VC allocation can never succeed.
		h.r.DownstreamState(2).TakeBuffer(0)

		f := packet(1, 0, 2, 1, flit.ReadRequest)[0]
		h.in[0].SendFlit(f)

		h.cycle() // 0
		h.cycle() // 1: routing -> vc_spec
		Expect(h.r.VC(0, 0).State()).To(Equal(router.VCSpec))

		for i := 0; i < 4; i++ {
			h.cycle()
			Expect(h.r.VC(0, 0).State()).To(Equal(router.VCSpec))
			Expect(h.r.GetBuffer(0)).To(Equal(1))
			Expect(h.in[0].ReceiveCredit()).To(BeNil())
		}

		for out := 0; out < 4; out++ {
			for t := 0; t < flit.NumTypes; t++ {
				Expect(h.r.SwitchMonitor().Traversals(0, out, flit.Type(t))).To(Equal(0))
			}
			Expect(h.r.DownstreamState(out).Size(0)).To(Equal(0))
		}
	})
})

var _ = Describe("Switch hold (S4)", func() {
	It("should forward a four-flit packet on consecutive cycles", func() {
		cfg := singleVCConfig()
		cfg.HoldSwitchForPacket = true
		h := newHarness(cfg)

		flits := packet(1, 0, 2, 4, flit.ReadRequest)
		traversals := func() int {
			return h.r.SwitchMonitor().Traversals(0, 2, flit.ReadRequest)
		}

		for c := 0; c < 7; c++ {
			if c < len(flits) {
				h.in[0].SendFlit(flits[c])
			}
			h.cycle()
			switch {
			case c < 3:
				Expect(traversals()).To(Equal(0))
			default:
				Expect(traversals()).To(Equal(c - 2))
			}
		}

		Expect(traversals()).To(Equal(4))
		Expect(h.r.VC(0, 0).State()).To(Equal(router.VCIdle))
	})
})

var _ = Describe("Back-pressure (S5)", func() {
	It("should stall on a full downstream VC and resume after a credit", func() {
		h := newHarness(singleVCConfig())

		flits := packet(1, 0, 2, 6, flit.ReadRequest)
		traversals := func() int {
			return h.r.SwitchMonitor().Traversals(0, 2, flit.ReadRequest)
		}

		for c := 0; c < 7; c++ {
			if c < len(flits) {
				h.in[0].SendFlit(flits[c])
			}
			h.cycle()
		}
		// Four flits crossed; the downstream VC is now full.
		Expect(traversals()).To(Equal(4))
		Expect(h.r.DownstreamState(2).IsFullFor(0)).To(BeTrue())

		h.cycle() // 7: stalled
		h.cycle() // 8: still stalled
		Expect(traversals()).To(Equal(4))
		Expect(h.r.GetBuffer(0)).To(Equal(2))

		h.out[2].SendCredit(&flit.Credit{VCs: []int{0}})
		h.cycle() // 9: credit frees a slot; traversal resumes
		Expect(traversals()).To(Equal(5))
		Expect(h.r.GetBuffer(0)).To(Equal(1))
	})
})

var _ = Describe("Speculation filter (S6)", func() {
	// build stages a cycle in which a non-speculative request exists
	// on output 2 but its input prefers output 3, so output 2 gets no
	// non-speculative grant, while a speculative VC wins VA to output
	// 2 and bids the speculative switch in the same cycle.
	build := func(policy string) *harness {
		cfg := scenarioConfig()
		cfg.Speculative = true
		cfg.FilterSpecGrants = policy
		h := newHarness(cfg)
		r := h.r

		headA := &flit.Flit{ID: 10, Head: true, Dest: 2, Type: flit.Any}
		vcA := r.VC(1, 0)
		Expect(vcA.AddFlit(headA)).To(BeTrue())
		Expect(vcA.AddFlit(&flit.Flit{ID: 11, Dest: 2, Type: flit.Any})).To(BeTrue())
		vcA.Route(h.rf, r, headA, 1)
		vcA.SetState(router.VCActive)
		vcA.SetOutput(2, 1)
		r.DownstreamState(2).TakeBuffer(1)
		vcA.AdvanceTime()

		headB := &flit.Flit{ID: 20, Head: true, Dest: 3, Priority: 5, Type: flit.Any}
		vcB := r.VC(1, 1)
		Expect(vcB.AddFlit(headB)).To(BeTrue())
		Expect(vcB.AddFlit(&flit.Flit{ID: 21, Dest: 3, Priority: 5, Type: flit.Any})).To(BeTrue())
		vcB.Route(h.rf, r, headB, 1)
		vcB.SetState(router.VCActive)
		vcB.SetOutput(3, 0)
		r.DownstreamState(3).TakeBuffer(0)
		vcB.AdvanceTime()

		headC := &flit.Flit{ID: 30, Head: true, Tail: true, Dest: 2, Type: flit.Any}
		vcC := r.VC(0, 0)
		Expect(vcC.AddFlit(headC)).To(BeTrue())
		vcC.Route(h.rf, r, headC, 0)
		vcC.SetState(router.VCSpec)
		vcC.AdvanceTime()

		return h
	}

	It("should nullify the speculative grant on a conflicting request", func() {
		h := build("confl_nonspec_reqs")
		h.cycle()

		// The higher-priority VC at input 1 won its output...
		Expect(h.r.SwitchMonitor().Traversals(1, 3, flit.Any)).To(Equal(1))
		// ...and the mere request on output 2 nullified the
		// speculative grant, even though output 2 saw no grant.
		Expect(h.r.SwitchMonitor().Traversals(0, 2, flit.Any)).To(Equal(0))

		vcC := h.r.VC(0, 0)
		Expect(vcC.State()).To(Equal(router.VCActive)) // VA win was promoted
		Expect(vcC.Size()).To(Equal(1))                // flit not consumed

		// The next cycle forwards non-speculatively.
		h.cycle()
		Expect(h.r.SwitchMonitor().Traversals(0, 2, flit.Any)).To(Equal(1))
		Expect(vcC.State()).To(Equal(router.VCIdle))
	})

	It("should keep the speculative grant when only grants conflict", func() {
		h := build("confl_nonspec_gnts")
		h.cycle()

		// No non-speculative grant landed on output 2, so the
		// speculative traversal proceeds in the same cycle.
		Expect(h.r.SwitchMonitor().Traversals(0, 2, flit.Any)).To(Equal(1))
		Expect(h.r.VC(0, 0).State()).To(Equal(router.VCIdle))
	})

	It("should nullify on any request under the strict policy", func() {
		h := build("any_nonspec_gnts")
		h.cycle()

		Expect(h.r.SwitchMonitor().Traversals(0, 2, flit.Any)).To(Equal(0))
		Expect(h.r.VC(0, 0).Size()).To(Equal(1))
	})
})

var _ = Describe("Load reporting", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness(scenarioConfig())
	})

	It("should sum downstream occupancy in GetCredit", func() {
		h.r.DownstreamState(2).TakeBuffer(0)
		h.r.DownstreamState(2).SendingFlit(&flit.Flit{VC: 0})
		h.r.DownstreamState(2).SendingFlit(&flit.Flit{VC: 0})

		Expect(h.r.GetCredit(2, -1, -1)).To(Equal(2))
		Expect(h.r.GetCredit(2, 0, 0)).To(Equal(2))
		Expect(h.r.GetCredit(2, 1, 1)).To(Equal(0))
		Expect(h.r.GetCredit(3, -1, -1)).To(Equal(0))
	})

	It("should panic on an out-of-range output", func() {
		Expect(func() { h.r.GetCredit(9, -1, -1) }).To(Panic())
	})

	It("should report buffered flits per input", func() {
		f := packet(1, 0, 2, 2, flit.Any)
		h.in[0].SendFlit(f[0])
		h.cycle()
		h.in[0].SendFlit(f[1])
		h.cycle()
		Expect(h.r.GetBuffer(0)).To(Equal(2))
		Expect(h.r.GetBuffer(1)).To(Equal(0))
	})

	It("should dump VC states", func() {
		var buf bytes.Buffer
		h.r.Display(&buf)
		Expect(buf.String()).To(ContainSubstring("idle"))
	})
})

var _ = Describe("Protocol violations", func() {
	It("should panic on a non-head flit at an idle VC", func() {
		h := newHarness(scenarioConfig())
		body := &flit.Flit{ID: 1, Dest: 2, Type: flit.Any} // no head flag
		h.in[0].SendFlit(body)
		Expect(func() { h.cycle() }).To(Panic())
	})
})

var _ = Describe("Monitors", func() {
	It("should count buffer writes and reads by flit type", func() {
		h := newHarness(scenarioConfig())
		f := packet(1, 0, 2, 1, flit.WriteRequest)[0]
		h.in[0].SendFlit(f)
		for i := 0; i < 4; i++ {
			h.cycle()
		}
		Expect(h.r.BufferMonitor().Writes(0, flit.WriteRequest)).To(Equal(1))
		Expect(h.r.BufferMonitor().Reads(0, flit.WriteRequest)).To(Equal(1))
		Expect(h.r.BufferMonitor().Writes(0, flit.ReadReply)).To(Equal(0))
		Expect(h.r.BufferMonitor().Cycles()).To(Equal(4))
	})

	It("should panic on out-of-range monitor indices", func() {
		m := router.NewBufferMonitor(2)
		Expect(func() { m.Writes(2, flit.Any) }).To(Panic())
		s := router.NewSwitchMonitor(2, 2)
		Expect(func() { s.Traversals(0, 5, flit.Any) }).To(Panic())
	})
})
