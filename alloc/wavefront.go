package alloc

// wavefront sweeps the request matrix along its anti-diagonals. Cells
// on one diagonal share no input or output line, so every request on a
// diagonal whose endpoints are still free is granted. The diagonal the
// sweep starts from rotates every round for fairness.
type wavefront struct {
	dense

	start int
}

func newWavefront(inputs, outputs int) *wavefront {
	return &wavefront{dense: newDense(inputs, outputs)}
}

// numDiagonals is the count of anti-diagonals of the request matrix.
func (a *wavefront) numDiagonals() int {
	return a.inputs + a.outputs - 1
}

func (a *wavefront) Allocate() {
	a.resetMatches()
	a.sweep(func(r *request) bool { return r.valid })
	a.start = (a.start + 1) % a.numDiagonals()
}

// sweep visits diagonals starting at the rotation point and grants
// every admissible request whose endpoints are unclaimed.
func (a *wavefront) sweep(admit func(*request) bool) {
	n := a.numDiagonals()
	for step := 0; step < n; step++ {
		d := (a.start + step) % n
		for in := 0; in < a.inputs; in++ {
			out := d - in
			if out < 0 || out >= a.outputs {
				continue
			}
			if !admit(&a.req[in][out]) {
				continue
			}
			if a.outFor[in] != -1 || a.inFor[out] != -1 {
				continue
			}
			a.match(in, out)
		}
	}
}

// prioWavefront visits diagonals in descending request priority: the
// matrix is swept once per distinct priority level, highest first,
// with lower levels only filling lines the higher ones left free.
type prioWavefront struct {
	wavefront
}

func newPrioWavefront(inputs, outputs int) *prioWavefront {
	return &prioWavefront{wavefront: wavefront{dense: newDense(inputs, outputs)}}
}

func (a *prioWavefront) Allocate() {
	a.resetMatches()

	levels := a.priorityLevels()
	for _, level := range levels {
		a.sweep(func(r *request) bool { return r.valid && r.inPri == level })
	}
	a.start = (a.start + 1) % a.numDiagonals()
}

// priorityLevels returns the distinct in-priorities present this
// round, sorted descending. Request matrices here are small, so an
// insertion sort over the deduplicated levels suffices.
func (a *prioWavefront) priorityLevels() []int {
	var levels []int
	for in := 0; in < a.inputs; in++ {
		for out := 0; out < a.outputs; out++ {
			r := &a.req[in][out]
			if !r.valid {
				continue
			}
			found := false
			for _, l := range levels {
				if l == r.inPri {
					found = true
					break
				}
			}
			if !found {
				levels = append(levels, r.inPri)
			}
		}
	}
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0 && levels[j] > levels[j-1]; j-- {
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
	return levels
}
