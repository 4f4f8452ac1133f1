package network

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/nocsim/router"
	"github.com/sarchlab/nocsim/traffic"
)

// Config holds the fabric-level configuration wrapped around the
// per-router configuration.
type Config struct {
	// MeshRadix is the side length k of the k-ary 2D mesh.
	MeshRadix int `json:"mesh_radix"`

	// PacketSize is the number of flits per packet.
	PacketSize int `json:"packet_size"`

	// InjectionRate is the offered load per node in packets per cycle.
	InjectionRate float64 `json:"injection_rate"`

	// Traffic names the destination pattern (uniform, neighbor,
	// bitcomp, transpose).
	Traffic string `json:"traffic"`

	// InjectionProcess is the process spec, e.g. "bernoulli" or
	// "on_off(0.1,0.2,-1)".
	InjectionProcess string `json:"injection_process"`

	// CustomTable feeds the customized deterministic process.
	CustomTable []traffic.CustomEntry `json:"custom_table,omitempty"`

	// Seed initializes the threaded random source.
	Seed int64 `json:"seed"`

	// Router is the per-router configuration.
	Router *router.Config `json:"router"`
}

// DefaultConfig returns a small uniform-random mesh setup.
func DefaultConfig() *Config {
	return &Config{
		MeshRadix:        4,
		PacketSize:       4,
		InjectionRate:    0.1,
		Traffic:          "uniform",
		InjectionProcess: "bernoulli",
		Seed:             1,
		Router:           router.DefaultConfig(),
	}
}

// LoadConfig reads a Config from a JSON file, applying defaults for
// absent keys.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse network config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize network config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write network config file: %w", err)
	}

	return nil
}

// Validate checks the fabric parameters and the nested router config.
func (c *Config) Validate() error {
	if c.MeshRadix <= 0 {
		return fmt.Errorf("mesh_radix must be > 0")
	}
	if c.PacketSize <= 0 {
		return fmt.Errorf("packet_size must be > 0")
	}
	if c.InjectionRate < 0.0 || c.InjectionRate > 1.0 {
		return fmt.Errorf("injection_rate must be in [0,1]")
	}
	if c.Router == nil {
		return fmt.Errorf("router config missing")
	}
	return c.Router.Validate()
}
