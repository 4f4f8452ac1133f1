package routing

import (
	"fmt"

	"github.com/sarchlab/nocsim/flit"
)

// Router is the view of the enclosing router a routing function may
// consult. The router core treats the function itself as opaque.
type Router interface {
	ID() int
	NumOutputs() int
}

// Func computes the candidate outputs for a head flit arriving on
// inPort. The returned set must only name VCs within the class range
// the function was built with.
type Func func(r Router, f *flit.Flit, inPort int) *OutputSet

// Options parameterizes the routing-function constructors.
type Options struct {
	// MeshRadix is the side length k of the k-ary 2D mesh. Required by
	// the mesh functions, ignored by the rest.
	MeshRadix int

	// Ranges restricts output VCs per flit class.
	Ranges ClassRanges
}

// New builds the named routing function. Unknown names are a
// configuration error.
func New(name string, opts Options) (Func, error) {
	if err := opts.Ranges.Validate(); err != nil {
		return nil, fmt.Errorf("routing function %q: %w", name, err)
	}
	switch name {
	case "direct":
		return direct(opts.Ranges), nil
	case "dor_mesh":
		if opts.MeshRadix <= 0 {
			return nil, fmt.Errorf("routing function %q needs a positive mesh radix, got %d",
				name, opts.MeshRadix)
		}
		return dorMesh(opts.MeshRadix, opts.Ranges), nil
	default:
		return nil, fmt.Errorf("unknown routing function %q", name)
	}
}

// direct maps the destination straight to an output port. It serves
// single-router configurations where the destination doubles as the
// port index.
func direct(ranges ClassRanges) Func {
	return func(r Router, f *flit.Flit, inPort int) *OutputSet {
		set := NewOutputSet(r.NumOutputs())
		vr := ranges.For(f.Type)
		set.AddRange(f.Dest%r.NumOutputs(), vr.Begin, vr.End, f.Priority)
		return set
	}
}

// Mesh port numbering used by dorMesh and the network builder.
const (
	MeshEast = iota
	MeshWest
	MeshNorth
	MeshSouth
	MeshEject

	// MeshPorts is the router degree in the 2D mesh: four directions
	// plus the local injection/ejection port.
	MeshPorts
)

// dorMesh routes dimension-order (x first, then y) on a k-ary 2D mesh.
// Router i sits at (i mod k, i div k).
func dorMesh(k int, ranges ClassRanges) Func {
	return func(r Router, f *flit.Flit, inPort int) *OutputSet {
		set := NewOutputSet(r.NumOutputs())
		vr := ranges.For(f.Type)

		curX, curY := r.ID()%k, r.ID()/k
		dstX, dstY := f.Dest%k, f.Dest/k

		var port int
		switch {
		case dstX > curX:
			port = MeshEast
		case dstX < curX:
			port = MeshWest
		case dstY > curY:
			port = MeshNorth
		case dstY < curY:
			port = MeshSouth
		default:
			port = MeshEject
		}
		set.AddRange(port, vr.Begin, vr.End, f.Priority)
		return set
	}
}
