package router

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/nocsim/routing"
)

// FilterPolicy selects how a speculative switch grant is reconciled
// against the non-speculative request stream.
type FilterPolicy int

// Speculation filter policies, in the order of increasing permissiveness.
const (
	// FilterAnyNonspecGrants nullifies a speculative grant if any
	// non-speculative request existed anywhere this cycle.
	FilterAnyNonspecGrants FilterPolicy = iota

	// FilterConflNonspecReqs nullifies a speculative grant if any
	// non-speculative request targeted the same expanded output.
	FilterConflNonspecReqs

	// FilterConflNonspecGnts nullifies a speculative grant only if a
	// non-speculative grant exists on the same expanded output.
	FilterConflNonspecGnts
)

// ParseFilterPolicy maps the configuration name to a policy.
func ParseFilterPolicy(name string) (FilterPolicy, error) {
	switch name {
	case "any_nonspec_gnts":
		return FilterAnyNonspecGrants, nil
	case "confl_nonspec_reqs":
		return FilterConflNonspecReqs, nil
	case "confl_nonspec_gnts":
		return FilterConflNonspecGnts, nil
	default:
		return 0, fmt.Errorf("unknown filter_spec_grants policy %q", name)
	}
}

// Config holds the router configuration. Zero values are not usable;
// start from DefaultConfig.
type Config struct {
	// NumVCs is the number of virtual channels per input.
	NumVCs int `json:"num_vcs"`

	// VCBufSize is the flit capacity of each VC FIFO.
	VCBufSize int `json:"vc_buf_size"`

	// Speculative enables speculative switch allocation: VCs bid for
	// the crossbar before VC allocation confirms an output VC.
	Speculative bool `json:"speculative"`

	// FilterSpecGrants selects the conflict policy between speculative
	// and non-speculative switch grants. One of any_nonspec_gnts,
	// confl_nonspec_reqs, confl_nonspec_gnts.
	FilterSpecGrants string `json:"filter_spec_grants"`

	// HoldSwitchForPacket keeps a crossbar binding across all flits of
	// a packet.
	HoldSwitchForPacket bool `json:"hold_switch_for_packet"`

	// InputSpeedup and OutputSpeedup multiply the crossbar ports.
	InputSpeedup  int `json:"input_speedup"`
	OutputSpeedup int `json:"output_speedup"`

	// RoutingDelay and VCAllocDelay are the cycles a VC dwells in the
	// corresponding stage before becoming eligible. SWAllocDelay is
	// accepted for completeness; switch allocation runs every cycle.
	RoutingDelay int `json:"routing_delay"`
	VCAllocDelay int `json:"vc_alloc_delay"`
	SWAllocDelay int `json:"sw_alloc_delay"`

	// STPrepareDelay and STFinalDelay sum to the crossbar pipeline
	// depth.
	STPrepareDelay int `json:"st_prepare_delay"`
	STFinalDelay   int `json:"st_final_delay"`

	// CreditDelay is the depth of the credit return pipeline.
	CreditDelay int `json:"credit_delay"`

	// Allocator variants and their arbiter tie-break policies.
	VCAllocator    string `json:"vc_allocator"`
	SWAllocator    string `json:"sw_allocator"`
	VCAllocArbType string `json:"vc_alloc_arb_type"`
	SWAllocArbType string `json:"sw_alloc_arb_type"`

	// WaitForTailCredit holds a downstream VC until the tail flit's
	// credit has drained it; when false the VC frees as the tail is
	// sent.
	WaitForTailCredit bool `json:"wait_for_tail_credit"`

	// PartitionVCs restricts the VC range per flit class using the
	// begin/end fields below.
	PartitionVCs bool `json:"partition_vcs"`

	ReadRequestBeginVC  int `json:"read_request_begin_vc"`
	ReadRequestEndVC    int `json:"read_request_end_vc"`
	ReadReplyBeginVC    int `json:"read_reply_begin_vc"`
	ReadReplyEndVC      int `json:"read_reply_end_vc"`
	WriteRequestBeginVC int `json:"write_request_begin_vc"`
	WriteRequestEndVC   int `json:"write_request_end_vc"`
	WriteReplyBeginVC   int `json:"write_reply_begin_vc"`
	WriteReplyEndVC     int `json:"write_reply_end_vc"`
}

// DefaultConfig returns a baseline single-cycle-stage configuration.
func DefaultConfig() *Config {
	return &Config{
		NumVCs:              4,
		VCBufSize:           4,
		FilterSpecGrants:    "any_nonspec_gnts",
		InputSpeedup:        1,
		OutputSpeedup:       1,
		RoutingDelay:        1,
		VCAllocDelay:        1,
		SWAllocDelay:        1,
		STPrepareDelay:      0,
		STFinalDelay:        1,
		CreditDelay:         1,
		VCAllocator:         "separable_input_first",
		SWAllocator:         "separable_input_first",
		VCAllocArbType:      "round_robin",
		SWAllocArbType:      "round_robin",
		WaitForTailCredit:   true,
		ReadRequestEndVC:    3,
		ReadReplyEndVC:      3,
		WriteRequestEndVC:   3,
		WriteReplyEndVC:     3,
	}
}

// LoadConfig reads a Config from a JSON file, applying defaults for
// absent keys.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read router config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse router config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize router config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write router config file: %w", err)
	}

	return nil
}

// Validate checks numeric ranges and enumerated names. Allocator and
// arbiter names are additionally validated when the router is built.
func (c *Config) Validate() error {
	if c.NumVCs <= 0 {
		return fmt.Errorf("num_vcs must be > 0")
	}
	if c.VCBufSize <= 0 {
		return fmt.Errorf("vc_buf_size must be > 0")
	}
	if c.InputSpeedup <= 0 || c.OutputSpeedup <= 0 {
		return fmt.Errorf("input_speedup and output_speedup must be > 0")
	}
	if c.NumVCs%c.InputSpeedup != 0 {
		return fmt.Errorf("num_vcs must be a multiple of input_speedup")
	}
	if c.RoutingDelay < 0 || c.VCAllocDelay < 0 || c.SWAllocDelay < 0 {
		return fmt.Errorf("stage delays must be >= 0")
	}
	if c.STPrepareDelay < 0 || c.STFinalDelay < 0 || c.CreditDelay < 0 {
		return fmt.Errorf("pipeline delays must be >= 0")
	}
	if _, err := ParseFilterPolicy(c.FilterSpecGrants); err != nil {
		return err
	}
	return c.Ranges().Validate()
}

// Ranges derives the per-class VC ranges the routing functions consume.
func (c *Config) Ranges() routing.ClassRanges {
	r := routing.FullRanges(c.NumVCs)
	r.Partition = c.PartitionVCs
	if c.PartitionVCs {
		r.ReadRequest = routing.VCRange{Begin: c.ReadRequestBeginVC, End: c.ReadRequestEndVC}
		r.ReadReply = routing.VCRange{Begin: c.ReadReplyBeginVC, End: c.ReadReplyEndVC}
		r.WriteRequest = routing.VCRange{Begin: c.WriteRequestBeginVC, End: c.WriteRequestEndVC}
		r.WriteReply = routing.VCRange{Begin: c.WriteReplyBeginVC, End: c.WriteReplyEndVC}
	}
	return r
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
