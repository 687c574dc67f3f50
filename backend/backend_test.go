package backend

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BoumPower/ola/counters"
)

// gatedWriter is a bus.Writer stand-in whose Write blocks on gate until
// release is called, letting tests exercise the drop-on-overrun path
// deterministically instead of racing a real device.
type gatedWriter struct {
	mu     sync.Mutex
	device string
	reg    *counters.Counters
	gate   chan struct{}
	writes [][]byte
}

func newGatedWriter(device string, reg *counters.Counters) *gatedWriter {
	return &gatedWriter{device: device, reg: reg, gate: make(chan struct{})}
}

func (w *gatedWriter) Init() error        { return nil }
func (w *gatedWriter) DevicePath() string { return w.device }

func (w *gatedWriter) Write(data []byte) error {
	w.reg.IncWrites(w.device)
	<-w.gate

	cp := make([]byte, len(data))
	copy(cp, data)
	w.mu.Lock()
	w.writes = append(w.writes, cp)
	w.mu.Unlock()
	return nil
}

func (w *gatedWriter) release() {
	close(w.gate)
}

func (w *gatedWriter) writeAt(i int) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes[i]
}

func TestOutputBufferCheckoutGrowsAndPreservesPayload(t *testing.T) {
	buf := &outputBuffer{}

	region := buf.checkout(4, 0)
	copy(region, []byte{1, 2, 3, 4})

	region2 := buf.checkout(6, 0)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0}, region2)
}

func TestOutputBufferCheckoutAlwaysZeroesLatchTail(t *testing.T) {
	buf := &outputBuffer{}

	region := buf.checkout(2, 2)
	copy(region, []byte{9, 9, 9, 9})

	region2 := buf.checkout(2, 2)
	assert.Equal(t, byte(0), region2[2])
	assert.Equal(t, byte(0), region2[3])
}

func TestOutputBufferCheckoutShrinkDoesNotReallocate(t *testing.T) {
	buf := &outputBuffer{}

	buf.checkout(10, 0)
	cap1 := buf.capacity

	buf.checkout(4, 0)
	assert.Equal(t, cap1, buf.capacity)
}
