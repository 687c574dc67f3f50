package assembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoumPower/ola/encoder"
	"github.com/BoumPower/ola/responder"
)

type fakeWriter struct {
	device string
	closed bool
}

func (w *fakeWriter) Init() error        { return nil }
func (w *fakeWriter) Write([]byte) error { return nil }
func (w *fakeWriter) DevicePath() string { return w.device }
func (w *fakeWriter) Close() error       { w.closed = true; return nil }

type fakeBackend struct {
	initCalled bool
	shutdown   bool
}

func (b *fakeBackend) Init() error { b.initCalled = true; return nil }
func (b *fakeBackend) Checkout(outputID uint8, payloadSize, latchSize uint32) ([]byte, bool) {
	return make([]byte, payloadSize+latchSize), true
}
func (b *fakeBackend) Commit(outputID uint8) {}
func (b *fakeBackend) DevicePath() string    { return "/dev/fake" }
func (b *fakeBackend) Shutdown()             { b.shutdown = true }

func newTestAssembly(t *testing.T) (*BusAssembly, *fakeWriter, *fakeBackend) {
	t.Helper()
	w := &fakeWriter{device: "/dev/fake"}
	be := &fakeBackend{}
	r := responder.New(responder.OutputState{
		OutputIndex:       0,
		PixelCount:        10,
		ActivePersonality: encoder.WS2801Individual,
		StartAddress:      1,
	}, be)

	var persisted []responder.OutputState
	persist := func(outputID uint8, state responder.OutputState) {
		persisted = append(persisted, state)
	}

	a := New(w, be, []*responder.Responder{r}, persist)
	return a, w, be
}

func TestBusAssemblyWriteSlots(t *testing.T) {
	a, _, _ := newTestAssembly(t)
	require.NoError(t, a.WriteSlots(0, make([]byte, 30)))
}

func TestBusAssemblyWriteSlotsUnknownOutput(t *testing.T) {
	a, _, _ := newTestAssembly(t)
	err := a.WriteSlots(1, make([]byte, 30))
	require.Error(t, err)
}

func TestBusAssemblyHandleParamRequest(t *testing.T) {
	a, _, _ := newTestAssembly(t)
	resp := a.HandleParamRequest(0, responder.Request{ID: responder.PIDDeviceLabel})
	require.NoError(t, resp.Err)
}

func TestBusAssemblyDescription(t *testing.T) {
	a, _, _ := newTestAssembly(t)
	assert.Contains(t, a.Description(), "/dev/fake")
	assert.Contains(t, a.Description(), "1 outputs")
}

func TestBusAssemblyShutdownClosesWriterAndBackend(t *testing.T) {
	a, w, be := newTestAssembly(t)
	a.Shutdown()
	assert.True(t, be.shutdown)
	assert.True(t, w.closed)
}
