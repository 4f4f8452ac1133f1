package router

import (
	"fmt"

	"github.com/sarchlab/nocsim/flit"
)

// BufferState shadows the input buffers of the router downstream of
// one output port: per-VC occupancy, a single in-use flag recording
// which VC has been handed to an upstream packet, and the credit
// balance. IsFullFor is the authoritative back-pressure signal.
type BufferState struct {
	size int

	occupancy []int
	credits   []int
	inUse     []bool
	tailSent  []bool

	// waitForTailCredit keeps the in-use flag held until the tail
	// flit's credit has drained the downstream buffer; when false the
	// flag clears as the tail is sent.
	waitForTailCredit bool
}

// NewBufferState creates buffer state for numVCs downstream VCs of
// bufSize flits each.
func NewBufferState(numVCs, bufSize int, waitForTailCredit bool) *BufferState {
	return &BufferState{
		size:              bufSize,
		occupancy:         make([]int, numVCs),
		credits:           initialCredits(numVCs, bufSize),
		inUse:             make([]bool, numVCs),
		tailSent:          make([]bool, numVCs),
		waitForTailCredit: waitForTailCredit,
	}
}

func initialCredits(numVCs, bufSize int) []int {
	c := make([]int, numVCs)
	for i := range c {
		c[i] = bufSize
	}
	return c
}

// IsAvailableFor reports whether the downstream VC can be taken by a
// new packet.
func (b *BufferState) IsAvailableFor(vc int) bool {
	b.check(vc)
	return !b.inUse[vc]
}

// IsFullFor reports whether the downstream VC has no free slot.
func (b *BufferState) IsFullFor(vc int) bool {
	b.check(vc)
	return b.occupancy[vc] >= b.size
}

// TakeBuffer reserves the downstream VC for a packet. Taking a VC that
// is already in use is a protocol violation.
func (b *BufferState) TakeBuffer(vc int) {
	b.check(vc)
	if b.inUse[vc] {
		panic(fmt.Sprintf("buffer state: vc %d taken while in use", vc))
	}
	b.inUse[vc] = true
	b.tailSent[vc] = false
}

// SendingFlit accounts for a flit entering the downstream VC named by
// f.VC. Sending into a full VC is a protocol violation.
func (b *BufferState) SendingFlit(f *flit.Flit) {
	b.check(f.VC)
	if b.occupancy[f.VC] >= b.size {
		panic(fmt.Sprintf("buffer state: vc %d overflow", f.VC))
	}
	b.occupancy[f.VC]++
	b.credits[f.VC]--
	if f.Tail {
		b.tailSent[f.VC] = true
		if !b.waitForTailCredit {
			b.inUse[f.VC] = false
		}
	}
}

// ProcessCredit frees one slot for every VC the credit lists. Once the
// tail has been sent and the occupancy drains, the in-use flag clears
// and the VC becomes available to the next packet.
func (b *BufferState) ProcessCredit(c *flit.Credit) {
	for _, vc := range c.VCs {
		b.check(vc)
		if b.occupancy[vc] == 0 {
			panic(fmt.Sprintf("buffer state: credit for empty vc %d", vc))
		}
		b.occupancy[vc]--
		b.credits[vc]++
		if b.waitForTailCredit && b.inUse[vc] && b.tailSent[vc] && b.occupancy[vc] == 0 {
			b.inUse[vc] = false
		}
	}
}

// Size returns the occupancy of the downstream VC.
func (b *BufferState) Size(vc int) int {
	b.check(vc)
	return b.occupancy[vc]
}

// Credits returns the credit balance of the downstream VC.
func (b *BufferState) Credits(vc int) int {
	b.check(vc)
	return b.credits[vc]
}

func (b *BufferState) check(vc int) {
	if vc < 0 || vc >= len(b.occupancy) {
		panic(fmt.Sprintf("buffer state: vc %d out of range [0,%d)", vc, len(b.occupancy)))
	}
}
