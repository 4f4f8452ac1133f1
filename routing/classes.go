package routing

import (
	"fmt"

	"github.com/sarchlab/nocsim/flit"
)

// VCRange is an inclusive virtual-channel interval.
type VCRange struct {
	Begin int
	End   int
}

// ClassRanges maps each flit class to the VC interval it may use when
// VC partitioning is enabled. flit.Any always receives the full range.
type ClassRanges struct {
	ReadRequest  VCRange
	ReadReply    VCRange
	WriteRequest VCRange
	WriteReply   VCRange

	// NumVCs bounds every range; [0, NumVCs-1] is the full interval.
	NumVCs int

	// Partition enables per-class restriction. When false every class
	// receives the full interval.
	Partition bool
}

// FullRanges returns ranges that give every class all numVCs channels.
func FullRanges(numVCs int) ClassRanges {
	full := VCRange{Begin: 0, End: numVCs - 1}
	return ClassRanges{
		ReadRequest:  full,
		ReadReply:    full,
		WriteRequest: full,
		WriteReply:   full,
		NumVCs:       numVCs,
	}
}

// For returns the VC interval the given flit type may be routed on.
func (r ClassRanges) For(t flit.Type) VCRange {
	if !r.Partition || t == flit.Any {
		return VCRange{Begin: 0, End: r.NumVCs - 1}
	}
	switch t {
	case flit.ReadRequest:
		return r.ReadRequest
	case flit.ReadReply:
		return r.ReadReply
	case flit.WriteRequest:
		return r.WriteRequest
	case flit.WriteReply:
		return r.WriteReply
	default:
		return VCRange{Begin: 0, End: r.NumVCs - 1}
	}
}

// Validate checks every range against the VC count.
func (r ClassRanges) Validate() error {
	check := func(name string, vr VCRange) error {
		if vr.Begin < 0 || vr.End >= r.NumVCs || vr.Begin > vr.End {
			return fmt.Errorf("%s vc range [%d,%d] out of bounds for %d vcs",
				name, vr.Begin, vr.End, r.NumVCs)
		}
		return nil
	}
	if r.NumVCs <= 0 {
		return fmt.Errorf("class ranges need a positive vc count, got %d", r.NumVCs)
	}
	if !r.Partition {
		return nil
	}
	if err := check("read_request", r.ReadRequest); err != nil {
		return err
	}
	if err := check("read_reply", r.ReadReply); err != nil {
		return err
	}
	if err := check("write_request", r.WriteRequest); err != nil {
		return err
	}
	return check("write_reply", r.WriteReply)
}
