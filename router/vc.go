package router

import (
	"fmt"
	"io"

	"github.com/sarchlab/nocsim/flit"
	"github.com/sarchlab/nocsim/routing"
)

// VCState is the lifecycle state of an input virtual channel.
type VCState int

// VC lifecycle. A VC leaves Idle when a head flit arrives, dwells in
// Routing for the routing delay, bids for an output VC in VCAlloc (or
// VCSpec when speculation is on), and forwards body flits in Active
// until the tail releases it. VCSpecGrant marks a speculative win that
// is promoted to Active at the end of switch allocation.
const (
	VCIdle VCState = iota
	VCRouting
	VCAlloc
	VCSpec
	VCSpecGrant
	VCActive
)

// String returns the lowercase state name.
func (s VCState) String() string {
	switch s {
	case VCIdle:
		return "idle"
	case VCRouting:
		return "routing"
	case VCAlloc:
		return "vc_alloc"
	case VCSpec:
		return "vc_spec"
	case VCSpecGrant:
		return "vc_spec_grant"
	case VCActive:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// VC is one input virtual channel: a bounded flit FIFO plus the state
// machine that carries it through the allocation pipeline.
type VC struct {
	fifo []*flit.Flit
	size int

	state     VCState
	stateTime int

	routeSet *routing.OutputSet

	// Bound output port and VC. Valid while the state is Active or
	// VCSpecGrant; kept non-negative in between so a stale speculative
	// switch bid cannot produce an out-of-range line.
	outPort int
	outVC   int

	// pri is inherited from the head flit of the current packet.
	pri int
}

// NewVC creates an idle VC with the given FIFO capacity, for a router
// with outputs output ports.
func NewVC(bufSize, outputs int) *VC {
	return &VC{
		fifo:     make([]*flit.Flit, 0, bufSize),
		size:     bufSize,
		state:    VCIdle,
		routeSet: routing.NewOutputSet(outputs),
	}
}

// AddFlit appends f to the FIFO. It returns false when the FIFO is at
// capacity; upstream credit accounting should make that impossible.
func (v *VC) AddFlit(f *flit.Flit) bool {
	if len(v.fifo) >= v.size {
		return false
	}
	v.fifo = append(v.fifo, f)
	return true
}

// FrontFlit returns the flit at the head of the FIFO, or nil.
func (v *VC) FrontFlit() *flit.Flit {
	if len(v.fifo) == 0 {
		return nil
	}
	return v.fifo[0]
}

// RemoveFlit pops and returns the head flit, or nil when empty.
func (v *VC) RemoveFlit() *flit.Flit {
	if len(v.fifo) == 0 {
		return nil
	}
	f := v.fifo[0]
	copy(v.fifo, v.fifo[1:])
	v.fifo = v.fifo[:len(v.fifo)-1]
	return f
}

// Empty reports whether the FIFO holds no flits.
func (v *VC) Empty() bool {
	return len(v.fifo) == 0
}

// Size returns the current FIFO occupancy.
func (v *VC) Size() int {
	return len(v.fifo)
}

// Route invokes the routing function on the head flit and captures the
// packet priority for the allocation stages.
func (v *VC) Route(rf routing.Func, r routing.Router, f *flit.Flit, input int) {
	v.routeSet = rf(r, f, input)
	v.pri = f.Priority
}

// RouteSet returns the stored routing result.
func (v *VC) RouteSet() *routing.OutputSet {
	return v.routeSet
}

// State returns the current lifecycle state.
func (v *VC) State() VCState {
	return v.state
}

// SetState transitions the VC and resets the cycles-in-state counter.
func (v *VC) SetState(s VCState) {
	v.state = s
	v.stateTime = 0
}

// StateTime returns the number of completed cycles spent in the
// current state.
func (v *VC) StateTime() int {
	return v.stateTime
}

// AdvanceTime ages the state counter; called once at the end of each
// cycle.
func (v *VC) AdvanceTime() {
	v.stateTime++
}

// SetOutput records the output port and VC granted by VC allocation.
func (v *VC) SetOutput(port, vc int) {
	v.outPort = port
	v.outVC = vc
}

// OutputPort returns the bound output port.
func (v *VC) OutputPort() int {
	return v.outPort
}

// OutputVC returns the bound output VC.
func (v *VC) OutputVC() int {
	return v.outVC
}

// Priority returns the packet priority captured at route time.
func (v *VC) Priority() int {
	return v.pri
}

// Display writes a one-line summary of the VC state.
func (v *VC) Display(w io.Writer) {
	fmt.Fprintf(w, "state=%s time=%d occ=%d/%d out=(%d,%d) pri=%d\n",
		v.state, v.stateTime, len(v.fifo), v.size, v.outPort, v.outVC, v.pri)
}
