// Package traffic provides the packet injection processes and traffic
// patterns that drive the fabric. Processes decide, per node and per
// cycle, whether a new packet is injected; patterns pick destinations.
// All randomness comes from an explicitly threaded generator.
package traffic

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// Process decides per cycle whether a node injects a packet.
type Process interface {
	// Test reports whether the given node injects this cycle. It is
	// called at most once per node per cycle.
	Test(source int) bool

	// Advance moves the process to the next cycle.
	Advance()

	// Reset restores the initial state.
	Reset()
}

// Options tunes process construction.
type Options struct {
	// UseLegacyInitialIndex reads the on/off initial-state vector from
	// positional parameter index 2 — the slot also holding r1 — the way
	// the original simulator did. When false the vector is read from
	// index 3, the first slot after alpha, beta and r1.
	UseLegacyInitialIndex bool

	// CustomTable supplies the entries of the customized deterministic
	// process.
	CustomTable []CustomEntry
}

// NewProcess parses a process spec of the form "name" or
// "name(p1,p2,…)" and builds it for the given node count and offered
// load. The original's parameter conventions apply.
func NewProcess(spec string, nodes int, load float64, rng *rand.Rand) (Process, error) {
	return NewProcessWithOptions(spec, nodes, load, rng, Options{UseLegacyInitialIndex: true})
}

// NewProcessWithOptions is NewProcess with explicit Options.
func NewProcessWithOptions(spec string, nodes int, load float64, rng *rand.Rand,
	opts Options) (Process, error) {
	if nodes <= 0 {
		return nil, fmt.Errorf("injection process needs a positive node count, got %d", nodes)
	}
	if load < 0.0 || load > 1.0 {
		return nil, fmt.Errorf("injection process needs a load in [0,1], got %g", load)
	}

	name, params := splitSpec(spec)
	switch name {
	case "bernoulli":
		return &Bernoulli{nodes: nodes, rate: load, rng: rng}, nil
	case "on_off":
		return newOnOff(params, nodes, load, rng, opts)
	case "customized":
		return NewCustomized(opts.CustomTable), nil
	default:
		return nil, fmt.Errorf("invalid injection process %q", spec)
	}
}

// splitSpec separates "name(p1,p2)" into the name and its parameters.
func splitSpec(spec string) (string, []string) {
	left := strings.IndexByte(spec, '(')
	if left < 0 {
		return spec, nil
	}
	name := spec[:left]
	paramStr := spec[left+1:]
	if right := strings.LastIndexByte(paramStr, ')'); right >= 0 {
		paramStr = paramStr[:right]
	}
	var params []string
	for _, p := range strings.Split(paramStr, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			params = append(params, p)
		}
	}
	return name, params
}

// Bernoulli injects with a fixed independent probability per cycle.
type Bernoulli struct {
	nodes int
	rate  float64
	rng   *rand.Rand
}

// Test reports an injection with probability rate.
func (b *Bernoulli) Test(source int) bool {
	b.checkSource(source)
	return b.rng.Float64() < b.rate
}

// Advance is a no-op; the process is memoryless.
func (b *Bernoulli) Advance() {}

// Reset is a no-op; the process is memoryless.
func (b *Bernoulli) Reset() {}

func (b *Bernoulli) checkSource(source int) {
	if source < 0 || source >= b.nodes {
		panic(fmt.Sprintf("injection process: source %d out of range [0,%d)", source, b.nodes))
	}
}

// OnOff is the two-state Markov bursty process: a node in the on state
// injects with rate r1 and falls off with probability beta; an off
// node injects nothing and turns on with probability alpha.
type OnOff struct {
	nodes int
	rate  float64
	alpha float64
	beta  float64
	r1    float64

	state   []int
	initial []int

	rng *rand.Rand
}

func newOnOff(params []string, nodes int, load float64, rng *rand.Rand,
	opts Options) (*OnOff, error) {
	alpha, beta, r1 := -1.0, -1.0, -1.0

	var err error
	if len(params) > 0 {
		if alpha, err = strconv.ParseFloat(params[0], 64); err != nil {
			return nil, fmt.Errorf("on_off alpha: %w", err)
		}
	}
	if len(params) > 1 {
		if beta, err = strconv.ParseFloat(params[1], 64); err != nil {
			return nil, fmt.Errorf("on_off beta: %w", err)
		}
	}
	if len(params) > 2 {
		if r1, err = strconv.ParseFloat(params[2], 64); err != nil {
			return nil, fmt.Errorf("on_off r1: %w", err)
		}
	}

	// Exactly one of the three parameters may be omitted; it is derived
	// from the offered load and the stationary on-probability
	// alpha/(alpha+beta).
	negatives := 0
	for _, v := range []float64{alpha, beta, r1} {
		if v < 0.0 {
			negatives++
		}
	}
	if negatives != 1 {
		return nil, fmt.Errorf("on_off needs exactly two of alpha, beta, r1; got (%g,%g,%g)",
			alpha, beta, r1)
	}
	switch {
	case r1 < 0.0:
		r1 = load * (alpha + beta) / alpha
	case alpha < 0.0:
		alpha = beta * load / (r1 - load)
	case beta < 0.0:
		beta = alpha * (r1 - load) / load
	}
	if alpha < 0.0 || beta < 0.0 || r1 < 0.0 || r1 > 1.0 {
		return nil, fmt.Errorf("on_off parameters out of range: alpha=%g beta=%g r1=%g",
			alpha, beta, r1)
	}

	initial := make([]int, nodes)
	initialIndex := 3
	if opts.UseLegacyInitialIndex {
		initialIndex = 2
	}
	if len(params) > 3 {
		vals, err := parseIntList(params[initialIndex])
		if err != nil {
			return nil, fmt.Errorf("on_off initial states: %w", err)
		}
		for n := 0; n < nodes; n++ {
			if n < len(vals) {
				initial[n] = vals[n]
			} else {
				initial[n] = vals[len(vals)-1]
			}
		}
	} else {
		for n := 0; n < nodes; n++ {
			initial[n] = rng.Intn(2)
		}
	}

	p := &OnOff{
		nodes:   nodes,
		rate:    load,
		alpha:   alpha,
		beta:    beta,
		r1:      r1,
		initial: initial,
		rng:     rng,
	}
	p.Reset()
	return p, nil
}

// Test updates the node's on/off state, then injects with rate r1
// while on.
func (p *OnOff) Test(source int) bool {
	if source < 0 || source >= p.nodes {
		panic(fmt.Sprintf("injection process: source %d out of range [0,%d)", source, p.nodes))
	}

	if p.state[source] == 0 {
		if p.rng.Float64() < p.alpha {
			p.state[source] = 1
		}
	} else {
		if p.rng.Float64() < p.beta {
			p.state[source] = 0
		}
	}

	return p.state[source] == 1 && p.rng.Float64() < p.r1
}

// Advance is a no-op; state evolves inside Test.
func (p *OnOff) Advance() {}

// Reset restores the configured initial on/off states.
func (p *OnOff) Reset() {
	p.state = make([]int, p.nodes)
	copy(p.state, p.initial)
}

// parseIntList parses a whitespace- or {}-wrapped list of ints.
func parseIntList(s string) ([]int, error) {
	s = strings.Trim(s, "{} ")
	var vals []int
	for _, tok := range strings.Fields(s) {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("empty int list %q", s)
	}
	return vals, nil
}

// CustomEntry is one row of the customized deterministic process: the
// source injects a packet of the given class every period cycles,
// offset by phase.
type CustomEntry struct {
	Source int `json:"source"`
	Class  int `json:"class"`
	Period int `json:"period"`
	Phase  int `json:"phase"`
}

// Customized replays a fixed injection table instead of drawing from a
// random process.
type Customized struct {
	entries []CustomEntry
	cycle   int
}

// NewCustomized builds the process over the given table.
func NewCustomized(entries []CustomEntry) *Customized {
	return &Customized{entries: entries}
}

// Test reports whether any table row fires for the source this cycle.
func (p *Customized) Test(source int) bool {
	for _, e := range p.entries {
		if e.Source != source || e.Period <= 0 {
			continue
		}
		if p.cycle%e.Period == e.Phase%e.Period {
			return true
		}
	}
	return false
}

// ClassFor returns the class of the first firing row for the source
// this cycle, or -1.
func (p *Customized) ClassFor(source int) int {
	for _, e := range p.entries {
		if e.Source != source || e.Period <= 0 {
			continue
		}
		if p.cycle%e.Period == e.Phase%e.Period {
			return e.Class
		}
	}
	return -1
}

// Advance moves the table clock one cycle.
func (p *Customized) Advance() {
	p.cycle++
}

// Reset rewinds the table clock.
func (p *Customized) Reset() {
	p.cycle = 0
}
