// Package config decodes and validates the master's YAML configuration
// file: PROFIBUS.debug, PHY.*, DP.*, and per-slave blocks, per spec.md
// §6. Grounded on the teacher's src/deviceid.go, the one place the
// teacher itself reads structured config with gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Error is the ConfigError taxonomy member: invalid combination detected
// at construction time.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "config: " + e.Reason }

// PHYType selects a phy.Transceiver driver.
type PHYType string

const (
	PHYSerial     PHYType = "serial"
	PHYDummy      PHYType = "dummy"
	PHYDummySlave PHYType = "dummy_slave"
	PHYFPGA       PHYType = "fpga"
)

// Slave is one `slave:` block in the config file.
type Slave struct {
	Addr        int    `yaml:"addr"`
	GSD         string `yaml:"gsd"`
	SyncMode    bool   `yaml:"sync_mode"`
	FreezeMode  bool   `yaml:"freeze_mode"`
	GroupMask   int    `yaml:"group_mask"`
	WatchdogMs  int    `yaml:"watchdog_ms"`
	Modules     []string `yaml:"modules"`
	InputSize   int    `yaml:"input_size"`
	OutputSize  int    `yaml:"output_size"`
	DiagPeriod  int    `yaml:"diag_period"`
}

// Config is the decoded form of the whole file.
type Config struct {
	Profibus struct {
		Debug int `yaml:"debug"`
	} `yaml:"PROFIBUS"`

	PHY struct {
		Type       PHYType `yaml:"type"`
		Dev        string  `yaml:"dev"`
		Baud       int     `yaml:"baud"`
		TxEnablePin string `yaml:"tx_enable_pin"`
	} `yaml:"PHY"`

	DP struct {
		MasterClass int `yaml:"master_class"`
		MasterAddr  int `yaml:"master_addr"`
	} `yaml:"DP"`

	Slaves []Slave `yaml:"slaves"`
}

// Load reads and validates path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the semantic constraints spec.md §6 enumerates.
func (c *Config) Validate() error {
	if c.DP.MasterClass != 1 {
		return &Error{Reason: fmt.Sprintf("DP.master_class %d unsupported (only 1)", c.DP.MasterClass)}
	}
	if c.DP.MasterAddr < 0 || c.DP.MasterAddr > 125 {
		return &Error{Reason: fmt.Sprintf("DP.master_addr %d out of range [0,125]", c.DP.MasterAddr)}
	}
	switch c.PHY.Type {
	case PHYSerial, PHYDummy, PHYDummySlave, PHYFPGA:
	default:
		return &Error{Reason: fmt.Sprintf("PHY.type %q unrecognized", c.PHY.Type)}
	}
	if c.PHY.Type == PHYSerial && c.PHY.Dev == "" {
		return &Error{Reason: "PHY.type=serial requires PHY.dev"}
	}
	seen := map[int]bool{}
	for _, s := range c.Slaves {
		if s.Addr < 0 || s.Addr > 125 {
			return &Error{Reason: fmt.Sprintf("slave addr %d out of range [0,125]", s.Addr)}
		}
		if seen[s.Addr] {
			return &Error{Reason: fmt.Sprintf("duplicate slave addr %d", s.Addr)}
		}
		seen[s.Addr] = true
		if s.GSD == "" {
			return &Error{Reason: fmt.Sprintf("slave %d missing gsd path", s.Addr)}
		}
		if s.GroupMask < 0 || s.GroupMask > 0xFF {
			return &Error{Reason: fmt.Sprintf("slave %d group_mask out of range", s.Addr)}
		}
	}
	return nil
}
