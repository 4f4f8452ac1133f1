// Package network assembles routers into a fabric: unit-latency
// channels, injecting and ejecting terminals, the k-ary 2D mesh, and
// the three-phase cycle driver with its latency accounting.
package network

import "github.com/sarchlab/nocsim/flit"

// Channel is a unit-latency directed link: a flit wire in the forward
// direction and a credit wire flowing back. Because every receiver in
// the fabric drains its wires before any sender drives them within a
// cycle, a single slot per wire models exactly one cycle of latency.
type Channel struct {
	flitWire   *flit.Flit
	creditWire *flit.Credit
}

// NewChannel creates an idle channel.
func NewChannel() *Channel {
	return &Channel{}
}

// SendFlit drives the flit wire for this cycle; nil leaves it idle.
func (ch *Channel) SendFlit(f *flit.Flit) {
	ch.flitWire = f
}

// ReceiveFlit drains the flit wire, returning nil when idle.
func (ch *Channel) ReceiveFlit() *flit.Flit {
	f := ch.flitWire
	ch.flitWire = nil
	return f
}

// SendCredit drives the credit wire for this cycle; nil leaves it idle.
func (ch *Channel) SendCredit(c *flit.Credit) {
	ch.creditWire = c
}

// ReceiveCredit drains the credit wire, returning nil when idle.
func (ch *Channel) ReceiveCredit() *flit.Credit {
	c := ch.creditWire
	ch.creditWire = nil
	return c
}
