package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoumPower/ola/config"
)

func TestAllocateUIDIncrementsDeviceIDKeepingManufacturer(t *testing.T) {
	base, err := config.ParseUID("7ff000000001")
	require.NoError(t, err)

	first := allocateUID(base, 0)
	second := allocateUID(base, 1)

	assert.Equal(t, [6]byte{0x7f, 0xf0, 0x00, 0x00, 0x00, 0x01}, first)
	assert.Equal(t, [6]byte{0x7f, 0xf0, 0x00, 0x00, 0x00, 0x02}, second)
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, first[1], second[1])
}

func TestOutputCountFromMuxPins(t *testing.T) {
	busCfg := config.BusConfig{Backend: config.BackendConfig{Kind: "hardware", MuxPins: []uint32{1, 2, 3}}}
	assert.Equal(t, 8, outputCount(busCfg))
}

func TestOutputCountFromSoftwareOutputCount(t *testing.T) {
	busCfg := config.BusConfig{Backend: config.BackendConfig{Kind: "software", OutputCount: 4}}
	assert.Equal(t, 4, outputCount(busCfg))
}
