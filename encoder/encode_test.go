package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a single-output in-memory stand-in for backend.Backend,
// sufficient for exercising one encoder call at a time.
type fakeBackend struct {
	buf       []byte
	payload   uint32
	latch     uint32
	committed bool
	ok        bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{ok: true}
}

func (f *fakeBackend) Checkout(outputID uint8, payloadSize, latchSize uint32) ([]byte, bool) {
	if !f.ok {
		return nil, false
	}
	total := payloadSize + latchSize
	if uint32(len(f.buf)) < total {
		grown := make([]byte, total)
		copy(grown, f.buf)
		f.buf = grown
	}
	f.payload, f.latch = payloadSize, latchSize
	for i := payloadSize; i < total; i++ {
		f.buf[i] = 0
	}
	return f.buf[:total], true
}

func (f *fakeBackend) Commit(outputID uint8) {
	f.committed = true
}

func TestLatchBytesAPA102(t *testing.T) {
	cases := map[int]uint32{
		0: 0, 1: 1, 16: 1, 17: 2, 32: 2, 33: 3, 64: 4, 65: 5,
	}
	for n, want := range cases {
		assert.Equal(t, want, LatchBytesAPA102(n), "n=%d", n)
	}
}

func TestLatchBytesLPD8806(t *testing.T) {
	cases := map[int]uint32{
		0: 0, 1: 1, 32: 1, 33: 2, 64: 2, 65: 3,
	}
	for n, want := range cases {
		assert.Equal(t, want, LatchBytesLPD8806(n), "n=%d", n)
	}
}

func TestP9813Flag(t *testing.T) {
	assert.Equal(t, byte(0xE4), p9813Flag(0xC0, 0x80, 0x40))
}

func TestEncodeWS2801Individual(t *testing.T) {
	be := newFakeBackend()
	slots := []byte{1, 2, 3, 4, 5, 6}
	require.NoError(t, Encode(WS2801Individual, be, 0, 2, 1, slots))
	assert.True(t, be.committed)
	assert.Equal(t, slots, be.buf[:6])
	assert.Equal(t, uint32(0), be.latch)
}

func TestEncodeWS2801IndividualPartialData(t *testing.T) {
	be := newFakeBackend()
	slots := []byte{1, 2, 3}
	require.NoError(t, Encode(WS2801Individual, be, 0, 2, 1, slots))
	assert.True(t, be.committed)
	assert.Equal(t, []byte{1, 2, 3, 0, 0, 0}, be.buf[:6])
}

func TestEncodeWS2801CombinedInsufficientData(t *testing.T) {
	be := newFakeBackend()
	err := Encode(WS2801Combined, be, 0, 3, 1, []byte{1, 2})
	require.Error(t, err)
	assert.False(t, be.committed)
}

func TestEncodeWS2801Combined(t *testing.T) {
	be := newFakeBackend()
	require.NoError(t, Encode(WS2801Combined, be, 0, 3, 1, []byte{10, 20, 30}))
	assert.Equal(t, []byte{10, 20, 30, 10, 20, 30, 10, 20, 30}, be.buf[:9])
}

func TestEncodeLPD8806Individual(t *testing.T) {
	be := newFakeBackend()
	require.NoError(t, Encode(LPD8806Individual, be, 0, 2, 1, []byte{0xFF, 0x00, 0x80}))
	g, r, b := be.buf[0], be.buf[1], be.buf[2]
	assert.Equal(t, byte(0x80|(0x00>>1)), g)
	assert.Equal(t, byte(0x80|(0xFF>>1)), r)
	assert.Equal(t, byte(0x80|(0x80>>1)), b)
	assert.Equal(t, uint32(1), be.latch)
}

func TestEncodeP9813Individual(t *testing.T) {
	be := newFakeBackend()
	require.NoError(t, Encode(P9813Individual, be, 0, 1, 1, []byte{0xC0, 0x80, 0x40}))
	assert.Equal(t, uint32(12), be.latch)
	assert.Equal(t, byte(0xE4), be.buf[4])
	assert.Equal(t, byte(0x40), be.buf[5])
	assert.Equal(t, byte(0x80), be.buf[6])
	assert.Equal(t, byte(0xC0), be.buf[7])
}

func TestEncodeAPA102IndividualOutputZeroHasStartFrame(t *testing.T) {
	be := newFakeBackend()
	require.NoError(t, Encode(APA102Individual, be, 0, 1, 1, []byte{10, 20, 30}))
	assert.Equal(t, []byte{0, 0, 0, 0}, be.buf[0:4])
	assert.Equal(t, byte(0xFF), be.buf[4])
	assert.Equal(t, byte(30), be.buf[5])
	assert.Equal(t, byte(20), be.buf[6])
	assert.Equal(t, byte(10), be.buf[7])
}

func TestEncodeAPA102IndividualOtherOutputHasNoStartFrame(t *testing.T) {
	be := newFakeBackend()
	require.NoError(t, Encode(APA102Individual, be, 1, 1, 1, []byte{10, 20, 30}))
	assert.Equal(t, byte(0xFF), be.buf[0])
}

func TestEncodeAPA102PBIndividualSkipsIncompletePixel(t *testing.T) {
	be := newFakeBackend()
	require.NoError(t, Encode(APA102PBIndividual, be, 0, 2, 1, []byte{0xF8, 10, 20, 30}))
	assert.Equal(t, byte(0xE0|(0xF8>>3)), be.buf[4])
	// second pixel has no backing data; marker byte stays zero-initialized.
	assert.Equal(t, byte(0), be.buf[8])
}

func TestEncodeOutputNotAvailable(t *testing.T) {
	be := newFakeBackend()
	be.ok = false
	require.NoError(t, Encode(WS2801Individual, be, 0, 1, 1, []byte{1, 2, 3}))
	assert.False(t, be.committed)
}

func TestEncodeUnknownPersonality(t *testing.T) {
	be := newFakeBackend()
	err := Encode(Personality(99), be, 0, 1, 1, []byte{1, 2, 3})
	require.Error(t, err)
}
