package alloc

import "fmt"

// Allocator matches input lines to output lines subject to per-request
// priorities. One allocation round is: Clear, a batch of AddRequest
// calls, Allocate, then queries. Allocators are pure functions of the
// requests in a round; the only persistent state is rotation.
type Allocator interface {
	// Clear drops all pending requests and assignments.
	Clear()

	// AddRequest records a request from input line in to output line
	// out. A prior request on the same (in, out) pair is replaced only
	// if the new in-priority strictly dominates. label is an opaque tag
	// recovered by ReadRequest after allocation.
	AddRequest(in, out, label, inPri, outPri int)

	// Allocate computes a matching: each input claims at most one
	// output and each output is claimed by at most one input.
	Allocate()

	// InputAssigned returns the input matched to out, or -1.
	InputAssigned(out int) int

	// OutputAssigned returns the output matched to in, or -1.
	OutputAssigned(in int) int

	// ReadRequest returns the label of the request from in to out, or
	// -1 when no such request exists.
	ReadRequest(in, out int) int
}

// New builds the named allocator variant over an inputs x outputs
// request matrix. arbType selects the tie-break policy of the
// separable variant and is ignored by the wavefront variants.
func New(name, arbType string, inputs, outputs int) (Allocator, error) {
	if inputs <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("allocator %q needs positive dimensions, got %dx%d",
			name, inputs, outputs)
	}
	switch name {
	case "separable_input_first":
		return newSeparableInputFirst(arbType, inputs, outputs)
	case "wavefront":
		return newWavefront(inputs, outputs), nil
	case "prio_wavefront":
		return newPrioWavefront(inputs, outputs), nil
	default:
		return nil, fmt.Errorf("unknown allocator type %q", name)
	}
}

// request is one cell of the dense request matrix.
type request struct {
	valid  bool
	label  int
	inPri  int
	outPri int
}

// dense is the shared request matrix and assignment state.
type dense struct {
	inputs  int
	outputs int

	req [][]request

	// inFor[out] is the input matched to out; outFor[in] the output
	// matched to in. -1 means unmatched.
	inFor  []int
	outFor []int
}

func newDense(inputs, outputs int) dense {
	d := dense{
		inputs:  inputs,
		outputs: outputs,
		req:     make([][]request, inputs),
		inFor:   make([]int, outputs),
		outFor:  make([]int, inputs),
	}
	for i := range d.req {
		d.req[i] = make([]request, outputs)
	}
	d.resetMatches()
	return d
}

func (d *dense) Clear() {
	for i := range d.req {
		for j := range d.req[i] {
			d.req[i][j] = request{}
		}
	}
	d.resetMatches()
}

func (d *dense) resetMatches() {
	for i := range d.inFor {
		d.inFor[i] = -1
	}
	for i := range d.outFor {
		d.outFor[i] = -1
	}
}

func (d *dense) AddRequest(in, out, label, inPri, outPri int) {
	d.checkLines(in, out)
	cur := &d.req[in][out]
	if cur.valid && cur.inPri >= inPri {
		return
	}
	*cur = request{valid: true, label: label, inPri: inPri, outPri: outPri}
}

func (d *dense) InputAssigned(out int) int {
	return d.inFor[out]
}

func (d *dense) OutputAssigned(in int) int {
	return d.outFor[in]
}

func (d *dense) ReadRequest(in, out int) int {
	d.checkLines(in, out)
	if !d.req[in][out].valid {
		return -1
	}
	return d.req[in][out].label
}

func (d *dense) match(in, out int) {
	d.inFor[out] = in
	d.outFor[in] = out
}

func (d *dense) checkLines(in, out int) {
	if in < 0 || in >= d.inputs || out < 0 || out >= d.outputs {
		panic(fmt.Sprintf("allocator line (%d,%d) out of range %dx%d",
			in, out, d.inputs, d.outputs))
	}
}
