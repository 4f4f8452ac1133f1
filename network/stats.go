package network

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// LatencyStats accumulates per-packet latencies in cycles.
type LatencyStats struct {
	samples []float64
}

// NewLatencyStats creates an empty collector.
func NewLatencyStats() *LatencyStats {
	return &LatencyStats{}
}

// Add records one packet latency.
func (s *LatencyStats) Add(latency float64) {
	s.samples = append(s.samples, latency)
}

// Count returns the number of recorded packets.
func (s *LatencyStats) Count() int {
	return len(s.samples)
}

// Report summarizes the recorded latencies.
type Report struct {
	Packets int
	Mean    float64
	Median  float64
	P95     float64
	P99     float64
	Max     float64
}

// Report computes the summary. It fails when no packets were recorded.
func (s *LatencyStats) Report() (Report, error) {
	if len(s.samples) == 0 {
		return Report{}, fmt.Errorf("no packet latencies recorded")
	}

	data := stats.LoadRawData(s.samples)

	mean, err := data.Mean()
	if err != nil {
		return Report{}, fmt.Errorf("latency mean: %w", err)
	}
	median, err := data.Median()
	if err != nil {
		return Report{}, fmt.Errorf("latency median: %w", err)
	}
	p95, err := data.Percentile(95)
	if err != nil {
		return Report{}, fmt.Errorf("latency p95: %w", err)
	}
	p99, err := data.Percentile(99)
	if err != nil {
		return Report{}, fmt.Errorf("latency p99: %w", err)
	}
	max, err := data.Max()
	if err != nil {
		return Report{}, fmt.Errorf("latency max: %w", err)
	}

	return Report{
		Packets: len(s.samples),
		Mean:    mean,
		Median:  median,
		P95:     p95,
		P99:     p99,
		Max:     max,
	}, nil
}
