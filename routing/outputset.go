// Package routing provides the routing-function registry and the
// OutputSet structure routing functions produce: the candidate
// (output port, output VC, priority) tuples a head flit may take.
package routing

// Candidate is one output VC a routing function proposes, together
// with the preference the function assigns to it.
type Candidate struct {
	VC       int
	Priority int
}

// OutputSet holds the routing result for a head flit, grouped by
// output port. Candidates keep insertion order within a port.
type OutputSet struct {
	candidates [][]Candidate
}

// NewOutputSet creates an output set for a router with the given
// number of output ports.
func NewOutputSet(outputs int) *OutputSet {
	return &OutputSet{candidates: make([][]Candidate, outputs)}
}

// Clear drops all candidates while keeping the port count.
func (s *OutputSet) Clear() {
	for i := range s.candidates {
		s.candidates[i] = s.candidates[i][:0]
	}
}

// Add proposes a single output VC on the given port.
func (s *OutputSet) Add(port, vc, priority int) {
	s.candidates[port] = append(s.candidates[port], Candidate{VC: vc, Priority: priority})
}

// AddRange proposes the inclusive VC range [vcBegin, vcEnd] on the
// given port, all at the same priority.
func (s *OutputSet) AddRange(port, vcBegin, vcEnd, priority int) {
	for vc := vcBegin; vc <= vcEnd; vc++ {
		s.Add(port, vc, priority)
	}
}

// NumVCs returns the number of candidate VCs on the given port.
func (s *OutputSet) NumVCs(port int) int {
	return len(s.candidates[port])
}

// GetVC returns the index-th candidate VC on the given port and the
// in-priority the routing function assigned to it.
func (s *OutputSet) GetVC(port, index int) (vc, priority int) {
	c := s.candidates[port][index]
	return c.VC, c.Priority
}
