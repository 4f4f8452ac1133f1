package router

import (
	"fmt"
	"io"

	"github.com/apex/log"

	"github.com/sarchlab/nocsim/alloc"
	"github.com/sarchlab/nocsim/flit"
	"github.com/sarchlab/nocsim/routing"
	"github.com/sarchlab/nocsim/telemetry"
)

// FlitInput is the receive end of an incoming flit wire.
type FlitInput interface {
	ReceiveFlit() *flit.Flit
}

// FlitOutput is the send end of an outgoing flit wire. Sending nil
// drives the wire idle for a cycle.
type FlitOutput interface {
	SendFlit(f *flit.Flit)
}

// CreditInput is the receive end of an incoming credit wire.
type CreditInput interface {
	ReceiveCredit() *flit.Credit
}

// CreditOutput is the send end of an outgoing credit wire.
type CreditOutput interface {
	SendCredit(c *flit.Credit)
}

// Router is an input-queued virtual-channel router. Each cycle the
// enclosing driver calls ReadInputs on every router, then InternalStep
// on every router, then WriteOutputs on every router, so inter-router
// effects lag by exactly one cycle.
type Router struct {
	id      int
	inputs  int
	outputs int

	numVCs       int
	vcBufSize    int
	speculative  bool
	filterPolicy FilterPolicy
	holdSwitch   bool

	inputSpeedup  int
	outputSpeedup int

	routingDelay int
	vcAllocDelay int

	rf   routing.Func
	pool *flit.Pool

	vcs     [][]*VC
	nextVCs []*BufferState

	vcAllocator     alloc.Allocator
	swAllocator     alloc.Allocator
	specSwAllocator alloc.Allocator

	swRROffset []int

	crossbarPipe *PipelineDelay[*flit.Flit]
	creditPipe   *PipelineDelay[*flit.Credit]

	inputBuffer   [][]*flit.Flit
	outputBuffer  [][]*flit.Flit
	inCredBuffer  [][]*flit.Credit
	outCredBuffer [][]*flit.Credit

	switchHoldIn  []int
	switchHoldVC  []int
	switchHoldOut []int

	// Per-cycle speculation bookkeeping.
	anyNonspecReqs    bool
	nonspecOutputReqs []bool

	inputChannels  []FlitInput
	outputChannels []FlitOutput
	inputCredits   []CreditOutput
	outputCredits  []CreditInput

	bufferMonitor *BufferMonitor
	switchMonitor *SwitchMonitor

	logger log.Interface
}

// Option is a functional option for configuring the Router.
type Option func(*Router)

// WithLogger sets the logger used for watch traces.
func WithLogger(logger log.Interface) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// New creates a router with the given id and port counts. The routing
// function is treated as opaque. The pool recycles the credits the
// router emits and the credits it consumes.
func New(cfg *Config, id, inputs, outputs int, rf routing.Func, pool *flit.Pool,
	opts ...Option) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("router %d: %w", id, err)
	}
	if rf == nil {
		return nil, fmt.Errorf("router %d: no routing function", id)
	}
	if inputs <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("router %d: needs positive port counts, got %dx%d",
			id, inputs, outputs)
	}

	policy, err := ParseFilterPolicy(cfg.FilterSpecGrants)
	if err != nil {
		return nil, fmt.Errorf("router %d: %w", id, err)
	}

	r := &Router{
		id:            id,
		inputs:        inputs,
		outputs:       outputs,
		numVCs:        cfg.NumVCs,
		vcBufSize:     cfg.VCBufSize,
		speculative:   cfg.Speculative,
		filterPolicy:  policy,
		holdSwitch:    cfg.HoldSwitchForPacket,
		inputSpeedup:  cfg.InputSpeedup,
		outputSpeedup: cfg.OutputSpeedup,
		routingDelay:  cfg.RoutingDelay,
		vcAllocDelay:  cfg.VCAllocDelay,
		rf:            rf,
		pool:          pool,
		bufferMonitor: NewBufferMonitor(inputs),
		switchMonitor: NewSwitchMonitor(inputs, outputs),
		logger:        log.Log,
	}

	r.vcs = make([][]*VC, inputs)
	for i := range r.vcs {
		r.vcs[i] = make([]*VC, cfg.NumVCs)
		for v := range r.vcs[i] {
			r.vcs[i][v] = NewVC(cfg.VCBufSize, outputs)
		}
	}

	r.nextVCs = make([]*BufferState, outputs)
	for o := range r.nextVCs {
		r.nextVCs[o] = NewBufferState(cfg.NumVCs, cfg.VCBufSize, cfg.WaitForTailCredit)
	}

	r.vcAllocator, err = alloc.New(cfg.VCAllocator, cfg.VCAllocArbType,
		cfg.NumVCs*inputs, cfg.NumVCs*outputs)
	if err != nil {
		return nil, fmt.Errorf("router %d: vc allocator: %w", id, err)
	}
	r.swAllocator, err = alloc.New(cfg.SWAllocator, cfg.SWAllocArbType,
		inputs*cfg.InputSpeedup, outputs*cfg.OutputSpeedup)
	if err != nil {
		return nil, fmt.Errorf("router %d: switch allocator: %w", id, err)
	}
	r.specSwAllocator, err = alloc.New(cfg.SWAllocator, cfg.SWAllocArbType,
		inputs*cfg.InputSpeedup, outputs*cfg.OutputSpeedup)
	if err != nil {
		return nil, fmt.Errorf("router %d: speculative switch allocator: %w", id, err)
	}

	expandedInputs := inputs * cfg.InputSpeedup
	expandedOutputs := outputs * cfg.OutputSpeedup

	r.swRROffset = make([]int, expandedInputs)

	r.crossbarPipe = NewPipelineDelay[*flit.Flit](expandedOutputs,
		cfg.STPrepareDelay+cfg.STFinalDelay)
	r.creditPipe = NewPipelineDelay[*flit.Credit](inputs, cfg.CreditDelay)

	r.inputBuffer = make([][]*flit.Flit, inputs)
	r.outputBuffer = make([][]*flit.Flit, outputs)
	r.inCredBuffer = make([][]*flit.Credit, inputs)
	r.outCredBuffer = make([][]*flit.Credit, outputs)

	r.switchHoldIn = filled(expandedInputs, -1)
	r.switchHoldVC = filled(expandedInputs, -1)
	r.switchHoldOut = filled(expandedOutputs, -1)

	r.nonspecOutputReqs = make([]bool, expandedOutputs)

	r.inputChannels = make([]FlitInput, inputs)
	r.outputChannels = make([]FlitOutput, outputs)
	r.inputCredits = make([]CreditOutput, inputs)
	r.outputCredits = make([]CreditInput, outputs)

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

func filled(n, val int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = val
	}
	return s
}

// ID returns the router identifier.
func (r *Router) ID() int { return r.id }

// NumInputs returns the input port count.
func (r *Router) NumInputs() int { return r.inputs }

// NumOutputs returns the output port count.
func (r *Router) NumOutputs() int { return r.outputs }

// ConnectInput attaches the wires of input port i: the incoming flit
// wire and the outgoing credit wire back to the upstream node.
func (r *Router) ConnectInput(i int, flits FlitInput, credits CreditOutput) {
	r.inputChannels[i] = flits
	r.inputCredits[i] = credits
}

// ConnectOutput attaches the wires of output port o: the outgoing flit
// wire and the incoming credit wire from the downstream node.
func (r *Router) ConnectOutput(o int, flits FlitOutput, credits CreditInput) {
	r.outputChannels[o] = flits
	r.outputCredits[o] = credits
}

// VC exposes an input VC for inspection.
func (r *Router) VC(input, vc int) *VC {
	return r.vcs[input][vc]
}

// DownstreamState exposes the buffer state shadowing output o.
func (r *Router) DownstreamState(o int) *BufferState {
	return r.nextVCs[o]
}

// BufferMonitor returns the input-buffer activity monitor.
func (r *Router) BufferMonitor() *BufferMonitor { return r.bufferMonitor }

// SwitchMonitor returns the crossbar activity monitor.
func (r *Router) SwitchMonitor() *SwitchMonitor { return r.switchMonitor }

// ReadInputs drains the incoming flit and credit wires into the
// per-cycle receive buffers. Phase A of the cycle.
func (r *Router) ReadInputs() {
	r.receiveFlits()
	r.receiveCredits()
}

// InternalStep runs the pipeline stages and advances time. Phase B.
func (r *Router) InternalStep() {
	r.inputQueuing()
	r.route()
	r.vcAlloc()
	r.swAlloc()

	for input := 0; input < r.inputs; input++ {
		for vc := 0; vc < r.numVCs; vc++ {
			r.vcs[input][vc].AdvanceTime()
		}
	}

	r.crossbarPipe.Advance()
	r.creditPipe.Advance()

	r.outputQueuing()
}

// WriteOutputs drives the outgoing flit and credit wires. Phase C.
func (r *Router) WriteOutputs() {
	r.sendFlits()
	r.sendCredits()
}

func (r *Router) receiveFlits() {
	r.bufferMonitor.Cycle()

	for input := 0; input < r.inputs; input++ {
		if r.inputChannels[input] == nil {
			continue
		}
		f := r.inputChannels[input].ReceiveFlit()
		if f == nil {
			continue
		}
		r.inputBuffer[input] = append(r.inputBuffer[input], f)
		r.bufferMonitor.Write(input, f)
		if f.Watch {
			r.logger.WithFields(log.Fields{
				"router": r.id,
				"input":  input,
				"flit":   f.String(),
			}).Debug("received flit")
		}
	}
}

func (r *Router) receiveCredits() {
	for output := 0; output < r.outputs; output++ {
		if r.outputCredits[output] == nil {
			continue
		}
		c := r.outputCredits[output].ReceiveCredit()
		if c != nil {
			r.outCredBuffer[output] = append(r.outCredBuffer[output], c)
		}
	}
}

// inputQueuing moves one received flit per input into its VC FIFO,
// starts routing for idle VCs that now hold a head flit, and applies
// one received credit per output to the downstream buffer state.
func (r *Router) inputQueuing() {
	for input := 0; input < r.inputs; input++ {
		if len(r.inputBuffer[input]) == 0 {
			continue
		}
		f := r.inputBuffer[input][0]
		r.inputBuffer[input] = r.inputBuffer[input][1:]

		cur := r.vcs[input][f.VC]
		if !cur.AddFlit(f) {
			panic(fmt.Sprintf("router %d: vc buffer overflow at input %d vc %d",
				r.id, input, f.VC))
		}
	}

	for input := 0; input < r.inputs; input++ {
		for vc := 0; vc < r.numVCs; vc++ {
			cur := r.vcs[input][vc]
			if cur.State() != VCIdle {
				continue
			}
			f := cur.FrontFlit()
			if f == nil {
				continue
			}
			if !f.Head {
				panic(fmt.Sprintf("router %d: non-head flit %d at idle vc (%d,%d)",
					r.id, f.ID, input, vc))
			}
			cur.Route(r.rf, r, f, input)
			cur.SetState(VCRouting)
		}
	}

	for output := 0; output < r.outputs; output++ {
		if len(r.outCredBuffer[output]) == 0 {
			continue
		}
		c := r.outCredBuffer[output][0]
		r.outCredBuffer[output] = r.outCredBuffer[output][1:]
		r.nextVCs[output].ProcessCredit(c)
		r.pool.FreeCredit(c)
	}
}

// route moves VCs whose routing dwell has elapsed into the allocation
// stage; speculation routes them to the speculative variant.
func (r *Router) route() {
	for input := 0; input < r.inputs; input++ {
		for vc := 0; vc < r.numVCs; vc++ {
			cur := r.vcs[input][vc]
			if cur.State() != VCRouting || cur.StateTime() < r.routingDelay {
				continue
			}
			if r.speculative {
				cur.SetState(VCSpec)
			} else {
				cur.SetState(VCAlloc)
			}
		}
	}
}

// addVCRequests registers one allocator request per available
// candidate output VC in the route set. The routing function
// prioritizes candidates on the input side; the output side competes
// on packet priority.
func (r *Router) addVCRequests(cur *VC, inputIndex int, watch bool) {
	routeSet := cur.RouteSet()
	outPriority := cur.Priority()

	for output := 0; output < r.outputs; output++ {
		destVC := r.nextVCs[output]
		for idx := 0; idx < routeSet.NumVCs(output); idx++ {
			outVC, inPriority := routeSet.GetVC(output, idx)
			if !destVC.IsAvailableFor(outVC) {
				continue
			}
			r.vcAllocator.AddRequest(inputIndex, output*r.numVCs+outVC, 1,
				inPriority, outPriority)
			if watch {
				r.logger.WithFields(log.Fields{
					"router": r.id,
					"in":     inputIndex,
					"out":    output*r.numVCs + outVC,
				}).Debug("vc request")
			}
		}
	}
}

// vcAlloc runs one VC-allocation round and binds the winners to their
// output VCs.
func (r *Router) vcAlloc() {
	r.vcAllocator.Clear()

	for input := 0; input < r.inputs; input++ {
		for vc := 0; vc < r.numVCs; vc++ {
			cur := r.vcs[input][vc]
			eligible := (cur.State() == VCAlloc || cur.State() == VCSpec) &&
				cur.StateTime() >= r.vcAllocDelay
			if !eligible {
				continue
			}
			f := cur.FrontFlit()
			r.addVCRequests(cur, input*r.numVCs+vc, f.Watch)
		}
	}

	r.vcAllocator.Allocate()

	for output := 0; output < r.outputs; output++ {
		for outVC := 0; outVC < r.numVCs; outVC++ {
			inputAndVC := r.vcAllocator.InputAssigned(output*r.numVCs + outVC)
			if inputAndVC == -1 {
				continue
			}
			matchInput := inputAndVC / r.numVCs
			matchVC := inputAndVC % r.numVCs

			cur := r.vcs[matchInput][matchVC]
			if r.speculative {
				cur.SetState(VCSpecGrant)
			} else {
				cur.SetState(VCActive)
			}
			cur.SetOutput(output, outVC)
			r.nextVCs[output].TakeBuffer(outVC)

			if f := cur.FrontFlit(); f.Watch {
				r.logger.WithFields(log.Fields{
					"router": r.id,
					"input":  matchInput,
					"vc":     matchVC,
					"output": output,
					"outVC":  outVC,
				}).Debug("vc allocation granted")
			}
		}
	}
}

// swAlloc runs switch allocation (non-speculative and speculative
// streams) followed by switch traversal of the winners.
func (r *Router) swAlloc() {
	r.anyNonspecReqs = false
	for i := range r.nonspecOutputReqs {
		r.nonspecOutputReqs[i] = false
	}

	r.swAllocator.Clear()
	r.specSwAllocator.Clear()

	for input := 0; input < r.inputs; input++ {
		for s := 0; s < r.inputSpeedup; s++ {
			expandedInput := s*r.inputs + input

			// Round-robin between the VCs of this expanded input; only
			// VCs in this interleave set participate here.
			vc := r.swRROffset[expandedInput]
			for v := 0; v < r.numVCs; v++ {
				if vc%r.inputSpeedup != s {
					vc = (vc + 1) % r.numVCs
					continue
				}

				cur := r.vcs[input][vc]

				// A VC granted its output this cycle bids the switch
				// starting next cycle; the state age encodes that.
				if cur.State() == VCActive && !cur.Empty() && cur.StateTime() >= 1 {
					destVC := r.nextVCs[cur.OutputPort()]
					if !destVC.IsFullFor(cur.OutputVC()) {
						expandedOutput := (input%r.outputSpeedup)*r.outputs + cur.OutputPort()
						if r.switchHoldIn[expandedInput] == -1 &&
							r.switchHoldOut[expandedOutput] == -1 {
							r.swAllocator.AddRequest(expandedInput, expandedOutput, vc,
								cur.Priority(), cur.Priority())
							r.anyNonspecReqs = true
							r.nonspecOutputReqs[expandedOutput] = true
						}
					}
				}

				// Speculative bids go to the separate allocator so they
				// cannot displace confirmed requests. Buffer space is
				// not checked; the request may not even have a
				// confirmed output yet.
				if (cur.State() == VCSpec || cur.State() == VCSpecGrant) && !cur.Empty() {
					expandedOutput := (input%r.outputSpeedup)*r.outputs + cur.OutputPort()
					if r.switchHoldIn[expandedInput] == -1 &&
						r.switchHoldOut[expandedOutput] == -1 {
						r.specSwAllocator.AddRequest(expandedInput, expandedOutput, vc,
							cur.Priority(), cur.Priority())
					}
				}

				vc = (vc + 1) % r.numVCs
			}
		}
	}

	r.swAllocator.Allocate()
	r.specSwAllocator.Allocate()

	// The speculative switch round is over; confirmed VA winners become
	// active. VCs left in VCSpec lost VA, and any switch slot they won
	// is discarded below without consuming their flits.
	for input := 0; input < r.inputs; input++ {
		for vc := 0; vc < r.numVCs; vc++ {
			cur := r.vcs[input][vc]
			if cur.State() == VCSpecGrant {
				cur.SetState(VCActive)
			}
		}
	}

	r.traverse()
}

// traverse resolves holds, grants, and the speculation filter, then
// moves the winning flits into the crossbar pipeline and their credits
// into the credit pipeline.
func (r *Router) traverse() {
	r.crossbarPipe.WriteAll(nil)
	r.switchMonitor.Cycle()

	for input := 0; input < r.inputs; input++ {
		var credit *flit.Credit

		for s := 0; s < r.inputSpeedup; s++ {
			expandedInput := s*r.inputs + input

			useSpecGrant := false
			var expandedOutput int
			var vc int
			var cur *VC

			if r.switchHoldIn[expandedInput] != -1 {
				expandedOutput = r.switchHoldIn[expandedInput]
				vc = r.switchHoldVC[expandedInput]
				cur = r.vcs[input][vc]
				if cur.Empty() {
					// Nothing to forward; the hold stays for the rest
					// of the packet.
					expandedOutput = -1
				}
			} else {
				expandedOutput = r.swAllocator.OutputAssigned(expandedInput)
				if expandedOutput < 0 {
					expandedOutput = r.specSwAllocator.OutputAssigned(expandedInput)
					if expandedOutput >= 0 {
						expandedOutput = r.filterSpecGrant(expandedOutput)
					}
					useSpecGrant = expandedOutput >= 0
				}

				if expandedOutput >= 0 {
					src := r.swAllocator
					if useSpecGrant {
						src = r.specSwAllocator
					}
					vc = src.ReadRequest(expandedInput, expandedOutput)
					cur = r.vcs[input][vc]
				}
			}

			if expandedOutput < 0 {
				continue
			}
			output := expandedOutput % r.outputs

			// A speculative switch win whose VC allocation failed is
			// dropped here: the flit never leaves the FIFO.
			if cur.State() != VCActive {
				continue
			}

			if r.holdSwitch {
				r.switchHoldIn[expandedInput] = expandedOutput
				r.switchHoldVC[expandedInput] = vc
				r.switchHoldOut[expandedOutput] = expandedInput
			}

			destVC := r.nextVCs[cur.OutputPort()]
			if destVC.IsFullFor(cur.OutputVC()) {
				continue
			}

			f := cur.RemoveFlit()
			f.Hops++

			r.switchMonitor.Traversal(input, output, f)
			r.bufferMonitor.Read(input, f)

			if f.Watch {
				r.logger.WithFields(log.Fields{
					"router": r.id,
					"in":     expandedInput,
					"out":    expandedOutput,
					"flit":   f.String(),
				}).Debug("forwarding flit through crossbar")
			}

			if credit == nil {
				credit = r.pool.NewCredit(r.numVCs)
			}
			credit.Add(f.VC)
			credit.DestRouter = f.From

			f.VC = cur.OutputVC()
			destVC.SendingFlit(f)
			r.crossbarPipe.Write(f, expandedOutput)

			if f.Tail {
				cur.SetState(VCIdle)
				r.switchHoldIn[expandedInput] = -1
				r.switchHoldVC[expandedInput] = -1
				r.switchHoldOut[expandedOutput] = -1
			}

			r.swRROffset[expandedInput] = (vc + 1) % r.numVCs
		}

		r.creditPipe.Write(credit, input)
	}
}

// filterSpecGrant applies the configured conflict policy to a
// speculative grant on the given expanded output, returning -1 when
// the grant is nullified.
func (r *Router) filterSpecGrant(expandedOutput int) int {
	switch r.filterPolicy {
	case FilterAnyNonspecGrants:
		if r.anyNonspecReqs {
			return -1
		}
	case FilterConflNonspecReqs:
		if r.nonspecOutputReqs[expandedOutput] {
			return -1
		}
	case FilterConflNonspecGnts:
		if r.swAllocator.InputAssigned(expandedOutput) >= 0 {
			return -1
		}
	}
	return expandedOutput
}

// outputQueuing reads the pipelines into the per-port send buffers.
func (r *Router) outputQueuing() {
	for output := 0; output < r.outputs; output++ {
		for t := 0; t < r.outputSpeedup; t++ {
			expandedOutput := r.outputs*t + output
			f := r.crossbarPipe.Read(expandedOutput)
			if f != nil {
				r.outputBuffer[output] = append(r.outputBuffer[output], f)
			}
		}
	}

	for input := 0; input < r.inputs; input++ {
		c := r.creditPipe.Read(input)
		if c != nil {
			r.inCredBuffer[input] = append(r.inCredBuffer[input], c)
		}
	}
}

func (r *Router) sendFlits() {
	for output := 0; output < r.outputs; output++ {
		if r.outputChannels[output] == nil {
			continue
		}
		var f *flit.Flit
		if len(r.outputBuffer[output]) > 0 {
			f = r.outputBuffer[output][0]
			r.outputBuffer[output] = r.outputBuffer[output][1:]
			f.From = r.id
		}
		r.outputChannels[output].SendFlit(f)
	}
}

func (r *Router) sendCredits() {
	for input := 0; input < r.inputs; input++ {
		if r.inputCredits[input] == nil {
			continue
		}
		var c *flit.Credit
		if len(r.inCredBuffer[input]) > 0 {
			c = r.inCredBuffer[input][0]
			r.inCredBuffer[input] = r.inCredBuffer[input][1:]
			telemetry.ObserveCredit()
		}
		r.inputCredits[input].SendCredit(c)
	}
}

// GetCredit returns the summed downstream occupancy of output out over
// the VC range [vcBegin, vcEnd]; vcBegin == -1 sums all VCs. Used for
// load reporting.
func (r *Router) GetCredit(out, vcBegin, vcEnd int) int {
	if out < 0 || out >= r.outputs {
		panic(fmt.Sprintf("router %d: GetCredit output %d out of range [0,%d)",
			r.id, out, r.outputs))
	}
	destVC := r.nextVCs[out]

	sum := 0
	if vcBegin == -1 {
		vcBegin, vcEnd = 0, r.numVCs-1
	}
	for vc := vcBegin; vc <= vcEnd; vc++ {
		sum += destVC.Size(vc)
	}
	return sum
}

// GetBuffer returns the total occupancy of all VCs on input i.
func (r *Router) GetBuffer(i int) int {
	size := 0
	for vc := 0; vc < r.numVCs; vc++ {
		size += r.vcs[i][vc].Size()
	}
	return size
}

// Display dumps the state of every VC.
func (r *Router) Display(w io.Writer) {
	for input := 0; input < r.inputs; input++ {
		for vc := 0; vc < r.numVCs; vc++ {
			fmt.Fprintf(w, "router %d input %d vc %d: ", r.id, input, vc)
			r.vcs[input][vc].Display(w)
		}
	}
}
