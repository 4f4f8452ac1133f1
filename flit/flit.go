// Package flit defines the message vocabulary of the fabric: flits, the
// flow-control units packets are split into, and credits, the backward
// signal that frees downstream buffer slots.
package flit

import "fmt"

// Type classifies a flit by the memory transaction it belongs to.
type Type int

// Flit types. Any matches every class when virtual channels are
// partitioned per transaction type.
const (
	ReadRequest Type = iota
	ReadReply
	WriteRequest
	WriteReply
	Any
)

// NumTypes is the number of flit types, including Any.
const NumTypes = int(Any) + 1

// String returns the lowercase name of the flit type.
func (t Type) String() string {
	switch t {
	case ReadRequest:
		return "read_request"
	case ReadReply:
		return "read_reply"
	case WriteRequest:
		return "write_request"
	case WriteReply:
		return "write_reply"
	case Any:
		return "any"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Flit is one flow-control unit of a packet. A packet carries exactly
// one flit with Head set and exactly one with Tail set; the two
// coincide for a single-flit packet. All flits of a packet travel the
// same input virtual channel until the tail releases it.
type Flit struct {
	// ID uniquely identifies the flit.
	ID int

	// PID identifies the packet this flit belongs to.
	PID int

	// Type is the transaction class of the packet.
	Type Type

	// Head and Tail mark the first and last flit of the packet.
	Head bool
	Tail bool

	// Src and Dest are the source and destination routers.
	Src  int
	Dest int

	// InjectionVC is the virtual channel the packet was injected on.
	InjectionVC int

	// VC is the current virtual channel. It is rewritten to the
	// granted output VC when the flit crosses a switch.
	VC int

	// Priority orders the packet against competitors in allocation.
	Priority int

	// Hops counts switch traversals.
	Hops int

	// From is the router that most recently forwarded the flit.
	From int

	// Time is the cycle the head flit was injected; used by latency
	// accounting at the destination.
	Time uint64

	// Watch traces the flit through every pipeline stage.
	Watch bool
}

// String summarizes the flit for trace output.
func (f *Flit) String() string {
	return fmt.Sprintf("flit %d (pid %d, %s, head=%t, tail=%t, %d->%d, vc %d, pri %d, hops %d)",
		f.ID, f.PID, f.Type, f.Head, f.Tail, f.Src, f.Dest, f.VC, f.Priority, f.Hops)
}

// Credit frees buffer slots at the upstream router. One credit may
// carry several virtual-channel indices when more than one flit left
// the same input in a cycle (input speedup).
type Credit struct {
	// VCs lists the virtual channels being freed.
	VCs []int

	// DestRouter is the router the credit is returned to.
	DestRouter int
}

// Add appends a freed virtual channel to the credit.
func (c *Credit) Add(vc int) {
	c.VCs = append(c.VCs, vc)
}
