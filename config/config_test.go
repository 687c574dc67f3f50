package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "i2cleds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigDefaultsUnknownBackendToSoftware(t *testing.T) {
	path := writeTempConfig(t, `
buses:
  - device_path: /dev/spidev0.0
    backend:
      kind: nonsense
    outputs:
      - output_index: 0
        pixel_count: 60
        personality: 1
        start_address: 1
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Buses, 1)
	assert.Equal(t, "software", cfg.Buses[0].Backend.Kind)
	assert.Equal(t, 1, cfg.Buses[0].Backend.OutputCount)
}

func TestLoadConfigDefaultsBaseUID(t *testing.T) {
	path := writeTempConfig(t, `
buses:
  - device_path: /dev/spidev0.0
    backend:
      kind: software
      output_count: 1
    outputs:
      - output_index: 0
        pixel_count: 60
        personality: 1
        start_address: 1
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, defaultBaseUID, cfg.Buses[0].BaseUID)
}

func TestLoadConfigRejectsMalformedBaseUID(t *testing.T) {
	path := writeTempConfig(t, `
buses:
  - device_path: /dev/spidev0.0
    base_uid: not-hex
    backend:
      kind: software
      output_count: 1
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestParseUIDRoundTrip(t *testing.T) {
	uid, err := ParseUID("7ff000000001")
	require.NoError(t, err)
	assert.Equal(t, [6]byte{0x7f, 0xf0, 0x00, 0x00, 0x00, 0x01}, uid)
}

func TestLoadConfigRejectsOutOfRangeStartAddress(t *testing.T) {
	path := writeTempConfig(t, `
buses:
  - device_path: /dev/spidev0.0
    backend:
      kind: software
      output_count: 1
    outputs:
      - output_index: 0
        start_address: 600
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := &Config{Buses: []BusConfig{{
		DevicePath: "/dev/spidev0.0",
		SpeedHz:    1000000,
		Backend:    BackendConfig{Kind: "software", OutputCount: 1, SyncOutput: -1},
		Outputs: []OutputConfig{
			{OutputIndex: 0, PixelCount: 30, Personality: 1, StartAddress: 1},
		},
	}}}

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, loaded.Buses, 1)
	assert.Equal(t, cfg.Buses[0].DevicePath, loaded.Buses[0].DevicePath)
	assert.Equal(t, cfg.Buses[0].Outputs[0].PixelCount, loaded.Buses[0].Outputs[0].PixelCount)
}
