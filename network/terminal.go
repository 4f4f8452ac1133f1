package network

import (
	"fmt"

	"github.com/sarchlab/nocsim/flit"
	"github.com/sarchlab/nocsim/routing"
	"github.com/sarchlab/nocsim/telemetry"
)

// Source is the injecting side of a node. It queues generated flits
// and feeds them to the attached router input port one per cycle,
// respecting the downstream VC credit balance.
type Source struct {
	node int
	ch   *Channel
	pool *flit.Pool

	credits []int
	queue   []*flit.Flit

	ranges routing.ClassRanges
	cursor int

	injected int
}

// NewSource creates a source for the given node, attached to ch.
func NewSource(node int, ch *Channel, pool *flit.Pool, numVCs, vcBufSize int,
	ranges routing.ClassRanges) *Source {
	credits := make([]int, numVCs)
	for i := range credits {
		credits[i] = vcBufSize
	}
	return &Source{
		node:    node,
		ch:      ch,
		pool:    pool,
		credits: credits,
		ranges:  ranges,
	}
}

// ReadInputs drains returned credits. Phase A.
func (s *Source) ReadInputs() {
	c := s.ch.ReceiveCredit()
	if c == nil {
		return
	}
	for _, vc := range c.VCs {
		s.credits[vc]++
	}
	s.pool.FreeCredit(c)
}

// InjectPacket queues a size-flit packet of the given class toward
// dest, stamped with the current cycle. The VC is chosen round-robin
// inside the class range.
func (s *Source) InjectPacket(pid, dest, size int, class flit.Type, priority int,
	now uint64) {
	vr := s.ranges.For(class)
	span := vr.End - vr.Begin + 1
	vc := vr.Begin + s.cursor%span
	s.cursor++

	for i := 0; i < size; i++ {
		f := s.pool.NewFlit()
		f.PID = pid
		f.Type = class
		f.Head = i == 0
		f.Tail = i == size-1
		f.Src = s.node
		f.Dest = dest
		f.InjectionVC = vc
		f.VC = vc
		f.Priority = priority
		f.From = -1
		f.Time = now
		s.queue = append(s.queue, f)
	}
	s.injected++
}

// WriteOutputs drives at most one queued flit onto the wire, gated by
// the credit balance of its VC. Phase C.
func (s *Source) WriteOutputs() {
	if len(s.queue) == 0 {
		s.ch.SendFlit(nil)
		return
	}
	f := s.queue[0]
	if s.credits[f.VC] <= 0 {
		s.ch.SendFlit(nil)
		return
	}
	s.queue = s.queue[1:]
	s.credits[f.VC]--
	s.ch.SendFlit(f)
}

// Pending returns the number of generated flits not yet on the wire.
func (s *Source) Pending() int {
	return len(s.queue)
}

// Injected returns the number of packets generated so far.
func (s *Source) Injected() int {
	return s.injected
}

// Sink is the ejecting side of a node. It consumes flits immediately,
// returns one credit per flit, and retires packets as tails arrive.
type Sink struct {
	node int
	ch   *Channel
	pool *flit.Pool

	pending *flit.Credit

	stats *LatencyStats

	retired  int
	received int
}

// NewSink creates a sink for the given node, attached to ch. Retired
// packet latencies are added to stats when it is non-nil.
func NewSink(node int, ch *Channel, pool *flit.Pool, stats *LatencyStats) *Sink {
	return &Sink{node: node, ch: ch, pool: pool, stats: stats}
}

// ReadInputs consumes the arriving flit, if any, and prepares its
// credit. Phase A.
func (k *Sink) ReadInputs(now uint64) {
	f := k.ch.ReceiveFlit()
	if f == nil {
		return
	}
	if f.Dest != k.node {
		panic(fmt.Sprintf("sink %d: received flit %d destined to %d", k.node, f.ID, f.Dest))
	}
	k.received++

	if k.pending == nil {
		k.pending = k.pool.NewCredit(1)
	}
	k.pending.Add(f.VC)

	if f.Tail {
		k.retired++
		latency := now - f.Time
		if k.stats != nil {
			k.stats.Add(float64(latency))
		}
		telemetry.ObservePacketRetired(latency)
	}
	k.pool.FreeFlit(f)
}

// WriteOutputs returns the prepared credit, if any. Phase C.
func (k *Sink) WriteOutputs() {
	k.ch.SendCredit(k.pending)
	k.pending = nil
}

// Retired returns the number of packets fully received.
func (k *Sink) Retired() int {
	return k.retired
}

// Received returns the number of flits consumed.
func (k *Sink) Received() int {
	return k.received
}
