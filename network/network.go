package network

import (
	"fmt"
	"math/rand"

	"github.com/sarchlab/nocsim/flit"
	"github.com/sarchlab/nocsim/router"
	"github.com/sarchlab/nocsim/routing"
	"github.com/sarchlab/nocsim/traffic"
)

// Network is a k-ary 2D mesh of routers with one injecting source and
// one ejecting sink per node. Each cycle runs the three fabric phases
// in lockstep across every router, so inter-router effects lag by
// exactly one cycle.
type Network struct {
	cfg   *Config
	k     int
	nodes int

	routers []*router.Router
	sources []*Source
	sinks   []*Sink

	pool    *flit.Pool
	process traffic.Process
	pattern traffic.Pattern
	rng     *rand.Rand

	stats *LatencyStats

	time    uint64
	nextPID int
}

// NewMesh builds the mesh described by cfg.
func NewMesh(cfg *Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("network config: %w", err)
	}

	k := cfg.MeshRadix
	nodes := k * k
	rng := rand.New(rand.NewSource(cfg.Seed))

	ranges := cfg.Router.Ranges()
	rf, err := routing.New("dor_mesh", routing.Options{MeshRadix: k, Ranges: ranges})
	if err != nil {
		return nil, err
	}

	pattern, err := traffic.NewPattern(cfg.Traffic, nodes)
	if err != nil {
		return nil, err
	}
	process, err := traffic.NewProcessWithOptions(cfg.InjectionProcess, nodes,
		cfg.InjectionRate, rng,
		traffic.Options{UseLegacyInitialIndex: true, CustomTable: cfg.CustomTable})
	if err != nil {
		return nil, err
	}

	n := &Network{
		cfg:     cfg,
		k:       k,
		nodes:   nodes,
		pool:    flit.NewPool(),
		process: process,
		pattern: pattern,
		rng:     rng,
		stats:   NewLatencyStats(),
	}

	n.routers = make([]*router.Router, nodes)
	for id := 0; id < nodes; id++ {
		r, err := router.New(cfg.Router, id, routing.MeshPorts, routing.MeshPorts,
			rf, n.pool)
		if err != nil {
			return nil, err
		}
		n.routers[id] = r
	}

	n.wireMesh()

	n.sources = make([]*Source, nodes)
	n.sinks = make([]*Sink, nodes)
	for id := 0; id < nodes; id++ {
		injectCh := NewChannel()
		ejectCh := NewChannel()
		n.routers[id].ConnectInput(routing.MeshEject, injectCh, injectCh)
		n.routers[id].ConnectOutput(routing.MeshEject, ejectCh, ejectCh)
		n.sources[id] = NewSource(id, injectCh, n.pool,
			cfg.Router.NumVCs, cfg.Router.VCBufSize, ranges)
		n.sinks[id] = NewSink(id, ejectCh, n.pool, n.stats)
	}

	return n, nil
}

// wireMesh connects every neighbor pair with one directed channel per
// direction.
func (n *Network) wireMesh() {
	connect := func(from, fromPort, to, toPort int) {
		ch := NewChannel()
		n.routers[from].ConnectOutput(fromPort, ch, ch)
		n.routers[to].ConnectInput(toPort, ch, ch)
	}

	for y := 0; y < n.k; y++ {
		for x := 0; x < n.k; x++ {
			id := y*n.k + x
			if x+1 < n.k {
				east := id + 1
				connect(id, routing.MeshEast, east, routing.MeshWest)
				connect(east, routing.MeshWest, id, routing.MeshEast)
			}
			if y+1 < n.k {
				north := id + n.k
				connect(id, routing.MeshNorth, north, routing.MeshSouth)
				connect(north, routing.MeshSouth, id, routing.MeshNorth)
			}
		}
	}
}

// Cycle advances the fabric by one cycle: every node reads its wires,
// every node steps internally, every node drives its wires.
func (n *Network) Cycle() {
	for _, k := range n.sinks {
		k.ReadInputs(n.time)
	}
	for _, s := range n.sources {
		s.ReadInputs()
	}
	for _, r := range n.routers {
		r.ReadInputs()
	}

	for _, r := range n.routers {
		r.InternalStep()
	}
	n.inject()
	n.process.Advance()

	for _, r := range n.routers {
		r.WriteOutputs()
	}
	for _, s := range n.sources {
		s.WriteOutputs()
	}
	for _, k := range n.sinks {
		k.WriteOutputs()
	}

	n.time++
}

// inject asks the process for each node and queues new packets.
func (n *Network) inject() {
	for node := 0; node < n.nodes; node++ {
		if !n.process.Test(node) {
			continue
		}

		dest := n.pattern(node, n.rng)
		class := flit.Any
		if custom, ok := n.process.(*traffic.Customized); ok {
			if c := custom.ClassFor(node); c >= 0 && c < int(flit.Any) {
				class = flit.Type(c)
			}
		} else if n.cfg.Router.PartitionVCs {
			class = flit.Type(n.rng.Intn(int(flit.Any)))
		}

		pid := n.nextPID
		n.nextPID++
		n.sources[node].InjectPacket(pid, dest, n.cfg.PacketSize, class, 0, n.time)
	}
}

// RunCycles advances the fabric n cycles.
func (n *Network) RunCycles(cycles uint64) {
	for i := uint64(0); i < cycles; i++ {
		n.Cycle()
	}
}

// Time returns the current cycle.
func (n *Network) Time() uint64 {
	return n.time
}

// Nodes returns the node count.
func (n *Network) Nodes() int {
	return n.nodes
}

// Router returns the router at node id.
func (n *Network) Router(id int) *router.Router {
	return n.routers[id]
}

// Source returns the source terminal at node id.
func (n *Network) Source(id int) *Source {
	return n.sources[id]
}

// Sink returns the sink terminal at node id.
func (n *Network) Sink(id int) *Sink {
	return n.sinks[id]
}

// Injected returns the total packets generated.
func (n *Network) Injected() int {
	total := 0
	for _, s := range n.sources {
		total += s.Injected()
	}
	return total
}

// Retired returns the total packets fully delivered.
func (n *Network) Retired() int {
	total := 0
	for _, k := range n.sinks {
		total += k.Retired()
	}
	return total
}

// Stats returns the latency collector.
func (n *Network) Stats() *LatencyStats {
	return n.stats
}
