package network

import (
	"github.com/sarchlab/akita/v4/sim"
)

// Simulation drives a Network on an Akita serial event engine. The
// whole fabric is one ticking component: a tick runs the three phases
// across every router, which preserves the lockstep ordering the
// pipeline depends on.
type Simulation struct {
	engine  sim.Engine
	network *Network
	cycles  uint64

	comp *sim.TickingComponent
}

// NewSimulation wraps the network in an engine-driven component that
// ticks for the given number of cycles.
func NewSimulation(n *Network, cycles uint64) *Simulation {
	s := &Simulation{
		engine:  sim.NewSerialEngine(),
		network: n,
		cycles:  cycles,
	}
	s.comp = sim.NewTickingComponent("network", s.engine, 1*sim.GHz, s)
	return s
}

// Tick advances the fabric one cycle; it returns false once the cycle
// budget is exhausted, which lets the engine drain and stop.
func (s *Simulation) Tick() bool {
	if s.network.Time() >= s.cycles {
		return false
	}
	s.network.Cycle()
	return true
}

// Run executes the simulation to completion.
func (s *Simulation) Run() error {
	s.comp.TickLater()
	return s.engine.Run()
}

// Network returns the simulated fabric.
func (s *Simulation) Network() *Network {
	return s.network
}
