// Package config loads and saves the per-bus/per-output driver
// configuration, a YAML struct tree in the shape of
// tamzrod/modbus-replicator's internal/config package.
package config

import (
	"encoding/hex"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BoumPower/ola/bus"
)

// defaultBaseUID is used when a bus config omits base_uid.
const defaultBaseUID = "7ff000000000"

// Config is the top-level document: one entry per configured bus.
type Config struct {
	Buses []BusConfig `yaml:"buses"`
}

// BusConfig configures one bus: its device, link parameters, backend
// strategy, and the outputs it drives.
type BusConfig struct {
	DevicePath string         `yaml:"device_path"`
	SpeedHz    uint32         `yaml:"speed_hz"`
	CEHigh     bool           `yaml:"ce_high"`
	BaseUID    string         `yaml:"base_uid"`
	Backend    BackendConfig  `yaml:"backend"`
	Outputs    []OutputConfig `yaml:"outputs"`
}

// BackendConfig selects Hardware or Software and its parameters.
type BackendConfig struct {
	Kind string `yaml:"kind"` // "hardware" or "software"

	// Hardware
	MuxPins []uint32 `yaml:"mux_pins,omitempty"`

	// Software
	OutputCount int `yaml:"output_count,omitempty"`
	SyncOutput  int `yaml:"sync_output,omitempty"`
}

// OutputConfig is the persisted view of one output's state (§6).
type OutputConfig struct {
	OutputIndex  uint8  `yaml:"output_index"`
	UID          string `yaml:"uid"`
	PixelCount   uint8  `yaml:"pixel_count"`
	DeviceLabel  string `yaml:"device_label"`
	Personality  uint8  `yaml:"personality"`
	StartAddress uint16 `yaml:"start_address"`
}

// LoadConfig reads and validates the YAML document at path. Unknown backend
// kinds log a warning and fall back to "software". A software output_count
// above 32, more than 8 mux_pins, a non-zero start_address outside 1..512
// and a malformed base_uid are rejected; other numeric fields are not
// range-checked.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bus.Wrap(bus.ConfigurationInvalid, err, "read %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, bus.Wrap(bus.ConfigurationInvalid, err, "parse %s", path)
	}

	for i := range cfg.Buses {
		if err := normalizeBus(&cfg.Buses[i]); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// ParseUID decodes a base_uid config value (12 hex characters, no
// separator) into the 6-byte identifier it represents.
func ParseUID(s string) ([6]byte, error) {
	var uid [6]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 6 {
		return uid, bus.Newf(bus.ConfigurationInvalid, "base_uid %q must be 12 hex characters", s)
	}
	copy(uid[:], raw)
	return uid, nil
}

func normalizeBus(b *BusConfig) error {
	if b.BaseUID == "" {
		b.BaseUID = defaultBaseUID
	}
	if _, err := ParseUID(b.BaseUID); err != nil {
		return err
	}

	switch b.Backend.Kind {
	case "hardware", "software":
	case "":
		b.Backend.Kind = "software"
	default:
		log.Printf("config: bus %s: unknown backend %q, falling back to software", b.DevicePath, b.Backend.Kind)
		b.Backend.Kind = "software"
	}

	if b.Backend.Kind == "software" {
		if b.Backend.OutputCount <= 0 {
			b.Backend.OutputCount = 1
		}
		if b.Backend.OutputCount > 32 {
			return bus.Newf(bus.ConfigurationInvalid, "bus %s: output_count %d exceeds 32", b.DevicePath, b.Backend.OutputCount)
		}
	}

	if len(b.Backend.MuxPins) > 8 {
		return bus.Newf(bus.ConfigurationInvalid, "bus %s: too many mux_pins (%d)", b.DevicePath, len(b.Backend.MuxPins))
	}

	for _, out := range b.Outputs {
		if out.StartAddress != 0 && (out.StartAddress < 1 || out.StartAddress > 512) {
			return bus.Newf(bus.ConfigurationInvalid, "bus %s output %d: start_address %d out of range", b.DevicePath, out.OutputIndex, out.StartAddress)
		}
	}

	return nil
}

// SaveConfig re-serializes cfg to path, used by the persistence hook on
// shutdown.
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return bus.Wrap(bus.ConfigurationInvalid, err, "marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return bus.Wrap(bus.ConfigurationInvalid, err, "write %s", path)
	}
	return nil
}
