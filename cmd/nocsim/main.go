// Package main provides the entry point for nocsim.
// nocsim is a cycle-accurate input-queued virtual-channel router
// simulator for on-chip interconnection networks.
package main

import (
	"flag"
	"fmt"

	"github.com/apex/log"

	"github.com/sarchlab/nocsim/network"
	"github.com/sarchlab/nocsim/telemetry"
)

var (
	configPath  = flag.String("config", "", "Path to network configuration JSON file")
	cycles      = flag.Uint64("cycles", 10000, "Number of cycles to simulate")
	metricsAddr = flag.String("metrics", "", "Expose Prometheus metrics on this address (e.g. :9090)")
	verbose     = flag.Bool("v", false, "Verbose output (debug logging and per-router load)")
)

func main() {
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	var cfg *network.Config
	if *configPath != "" {
		var err error
		cfg, err = network.LoadConfig(*configPath)
		if err != nil {
			log.WithError(err).Fatal("loading network config")
		}
	} else {
		cfg = network.DefaultConfig()
	}

	if *metricsAddr != "" {
		telemetry.Enable(telemetry.Config{Enabled: true, MetricsAddr: *metricsAddr})
	}

	net, err := network.NewMesh(cfg)
	if err != nil {
		log.WithError(err).Fatal("building network")
	}

	sim := network.NewSimulation(net, *cycles)
	if err := sim.Run(); err != nil {
		log.WithError(err).Fatal("running simulation")
	}

	printReport(net, cfg)
}

func printReport(net *network.Network, cfg *network.Config) {
	fmt.Printf("\n")
	fmt.Printf("Mesh: %dx%d, %d VCs x %d flits per input\n",
		cfg.MeshRadix, cfg.MeshRadix, cfg.Router.NumVCs, cfg.Router.VCBufSize)
	fmt.Printf("Traffic: %s / %s at rate %.3f, %d flits per packet\n",
		cfg.Traffic, cfg.InjectionProcess, cfg.InjectionRate, cfg.PacketSize)
	fmt.Printf("Cycles simulated: %d\n", net.Time())
	fmt.Printf("Packets injected: %d\n", net.Injected())
	fmt.Printf("Packets retired:  %d\n", net.Retired())

	report, err := net.Stats().Report()
	if err != nil {
		fmt.Printf("No latency samples: %v\n", err)
		return
	}

	fmt.Printf("\n")
	fmt.Printf("Packet latency (cycles):\n")
	fmt.Printf("  Mean:   %8.2f\n", report.Mean)
	fmt.Printf("  Median: %8.2f\n", report.Median)
	fmt.Printf("  P95:    %8.2f\n", report.P95)
	fmt.Printf("  P99:    %8.2f\n", report.P99)
	fmt.Printf("  Max:    %8.2f\n", report.Max)

	if *verbose {
		fmt.Printf("\nPer-router load:\n")
		for id := 0; id < net.Nodes(); id++ {
			r := net.Router(id)
			buffered := 0
			for input := 0; input < r.NumInputs(); input++ {
				buffered += r.GetBuffer(input)
			}
			fmt.Printf("  router %2d: buffered=%d\n", id, buffered)
		}
	}
}
