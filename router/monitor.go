package router

import (
	"fmt"
	"strings"

	"github.com/sarchlab/nocsim/flit"
	"github.com/sarchlab/nocsim/telemetry"
)

// BufferMonitor counts input-buffer reads and writes per (input, flit
// type). Purely additive; readers consume totals after the run.
type BufferMonitor struct {
	cycles int
	inputs int
	reads  []int
	writes []int
}

// NewBufferMonitor creates a monitor for a router with inputs ports.
func NewBufferMonitor(inputs int) *BufferMonitor {
	return &BufferMonitor{
		inputs: inputs,
		reads:  make([]int, inputs*flit.NumTypes),
		writes: make([]int, inputs*flit.NumTypes),
	}
}

func (m *BufferMonitor) index(input int, t flit.Type) int {
	if input < 0 || input >= m.inputs {
		panic(fmt.Sprintf("buffer monitor: input %d out of range [0,%d)", input, m.inputs))
	}
	if t < 0 || int(t) >= flit.NumTypes {
		panic(fmt.Sprintf("buffer monitor: flit type %d out of range [0,%d)", t, flit.NumTypes))
	}
	return int(t) + flit.NumTypes*input
}

// Cycle records one elapsed cycle.
func (m *BufferMonitor) Cycle() {
	m.cycles++
}

// Write records f entering the buffers of the given input.
func (m *BufferMonitor) Write(input int, f *flit.Flit) {
	m.writes[m.index(input, f.Type)]++
	telemetry.ObserveBufferWrite()
}

// Read records f leaving the buffers of the given input.
func (m *BufferMonitor) Read(input int, f *flit.Flit) {
	m.reads[m.index(input, f.Type)]++
	telemetry.ObserveBufferRead()
}

// Cycles returns the number of recorded cycles.
func (m *BufferMonitor) Cycles() int {
	return m.cycles
}

// Reads returns the read count for (input, type).
func (m *BufferMonitor) Reads(input int, t flit.Type) int {
	return m.reads[m.index(input, t)]
}

// Writes returns the write count for (input, type).
func (m *BufferMonitor) Writes(input int, t flit.Type) int {
	return m.writes[m.index(input, t)]
}

// String renders the per-input read/write totals.
func (m *BufferMonitor) String() string {
	var sb strings.Builder
	for i := 0; i < m.inputs; i++ {
		fmt.Fprintf(&sb, "[ %d ] ", i)
		for t := 0; t < flit.NumTypes; t++ {
			fmt.Fprintf(&sb, "Type=%d:(R#%d,W#%d) ",
				t, m.reads[m.index(i, flit.Type(t))], m.writes[m.index(i, flit.Type(t))])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// SwitchMonitor counts crossbar traversals per (input, output, flit
// type).
type SwitchMonitor struct {
	cycles  int
	inputs  int
	outputs int
	events  []int
}

// NewSwitchMonitor creates a monitor for an inputs x outputs crossbar.
func NewSwitchMonitor(inputs, outputs int) *SwitchMonitor {
	return &SwitchMonitor{
		inputs:  inputs,
		outputs: outputs,
		events:  make([]int, inputs*outputs*flit.NumTypes),
	}
}

func (m *SwitchMonitor) index(input, output int, t flit.Type) int {
	if input < 0 || input >= m.inputs {
		panic(fmt.Sprintf("switch monitor: input %d out of range [0,%d)", input, m.inputs))
	}
	if output < 0 || output >= m.outputs {
		panic(fmt.Sprintf("switch monitor: output %d out of range [0,%d)", output, m.outputs))
	}
	if t < 0 || int(t) >= flit.NumTypes {
		panic(fmt.Sprintf("switch monitor: flit type %d out of range [0,%d)", t, flit.NumTypes))
	}
	return int(t) + flit.NumTypes*(output+m.outputs*input)
}

// Cycle records one elapsed cycle.
func (m *SwitchMonitor) Cycle() {
	m.cycles++
}

// Traversal records f crossing from input to output.
func (m *SwitchMonitor) Traversal(input, output int, f *flit.Flit) {
	m.events[m.index(input, output, f.Type)]++
	telemetry.ObserveTraversal()
}

// Cycles returns the number of recorded cycles.
func (m *SwitchMonitor) Cycles() int {
	return m.cycles
}

// Traversals returns the traversal count for (input, output, type).
func (m *SwitchMonitor) Traversals(input, output int, t flit.Type) int {
	return m.events[m.index(input, output, t)]
}

// String renders the per-pair traversal totals.
func (m *SwitchMonitor) String() string {
	var sb strings.Builder
	for i := 0; i < m.inputs; i++ {
		for o := 0; o < m.outputs; o++ {
			fmt.Fprintf(&sb, "[%d -> %d] ", i, o)
			for t := 0; t < flit.NumTypes; t++ {
				fmt.Fprintf(&sb, "%d:%d ", t, m.events[m.index(i, o, flit.Type(t))])
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
