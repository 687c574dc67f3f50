package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValid(t *testing.T) {
	assert.True(t, Valid(WS2801Individual))
	assert.True(t, Valid(APA102PBCombined))
	assert.False(t, Valid(Personality(0)))
	assert.False(t, Valid(Personality(11)))
}

func TestFootprintIndividual(t *testing.T) {
	footprint, err := Footprint(WS2801Individual, 10)
	require.NoError(t, err)
	assert.Equal(t, uint16(30), footprint)
}

func TestFootprintCombined(t *testing.T) {
	footprint, err := Footprint(WS2801Combined, 10)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), footprint)
}

func TestFootprintAPA102PB(t *testing.T) {
	footprint, err := Footprint(APA102PBIndividual, 5)
	require.NoError(t, err)
	assert.Equal(t, uint16(20), footprint)
}

func TestFootprintUnknown(t *testing.T) {
	_, err := Footprint(Personality(42), 1)
	require.Error(t, err)
}
