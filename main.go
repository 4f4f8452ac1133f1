// Package main provides the entry point for nocsim.
// nocsim is a cycle-accurate network-on-chip router simulator built on
// the Akita simulation framework.
//
// For the full CLI, use: go run ./cmd/nocsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("nocsim - Network-on-Chip Router Simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: nocsim [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to network configuration JSON file")
	fmt.Println("  -cycles    Number of cycles to simulate")
	fmt.Println("  -metrics   Expose Prometheus metrics on this address")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/nocsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/nocsim' instead.")
	}
}
