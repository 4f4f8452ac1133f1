package alloc

// separableInputFirst is the two-stage separable matcher. Stage one
// arbitrates among each input's requests using the routing-assigned
// in-priorities; stage two arbitrates among the surviving inputs at
// each output using the packet out-priorities. Arbiter offsets advance
// only on a confirmed grant.
type separableInputFirst struct {
	dense

	inputArbs  []arbiter
	outputArbs []arbiter

	// choice[in] is the output picked in stage one this round, -1 when
	// the input had no request.
	choice []int

	inCands  []candidate
	outCands []candidate
}

func newSeparableInputFirst(arbType string, inputs, outputs int) (*separableInputFirst, error) {
	a := &separableInputFirst{
		dense:      newDense(inputs, outputs),
		inputArbs:  make([]arbiter, inputs),
		outputArbs: make([]arbiter, outputs),
		choice:     make([]int, inputs),
	}
	for i := range a.inputArbs {
		arb, err := newArbiter(arbType, outputs)
		if err != nil {
			return nil, err
		}
		a.inputArbs[i] = arb
	}
	for o := range a.outputArbs {
		arb, err := newArbiter(arbType, inputs)
		if err != nil {
			return nil, err
		}
		a.outputArbs[o] = arb
	}
	return a, nil
}

func (a *separableInputFirst) Allocate() {
	a.resetMatches()

	// Stage one: each input picks one of its requests.
	for in := 0; in < a.inputs; in++ {
		a.choice[in] = -1
		a.inCands = a.inCands[:0]
		for out := 0; out < a.outputs; out++ {
			if a.req[in][out].valid {
				a.inCands = append(a.inCands, candidate{line: out, pri: a.req[in][out].inPri})
			}
		}
		if len(a.inCands) == 0 {
			continue
		}
		a.choice[in] = a.inCands[a.inputArbs[in].Pick(a.inCands)].line
	}

	// Stage two: each output picks among the inputs that chose it.
	for out := 0; out < a.outputs; out++ {
		a.outCands = a.outCands[:0]
		for in := 0; in < a.inputs; in++ {
			if a.choice[in] == out {
				a.outCands = append(a.outCands, candidate{line: in, pri: a.req[in][out].outPri})
			}
		}
		if len(a.outCands) == 0 {
			continue
		}
		in := a.outCands[a.outputArbs[out].Pick(a.outCands)].line
		a.match(in, out)
		a.inputArbs[in].Granted(out)
		a.outputArbs[out].Granted(in)
	}
}
