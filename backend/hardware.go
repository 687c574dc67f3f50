package backend

import (
	"sync"

	"github.com/BoumPower/ola/bus"
	"github.com/BoumPower/ola/counters"
)

// HardwareOptions configures a HardwareBackend: the ordered GPIO line
// numbers used to select one of 2^len(Pins) outputs on an external
// de-multiplexer.
type HardwareOptions struct {
	Pins []bus.GPIOPin
}

// HardwareBackend treats each output as a fully independent logical
// stream with its own pending buffer, writing to the bus through a single
// goroutine that selects the output via GPIO before each transfer.
type HardwareBackend struct {
	writer   bus.Writer
	counters *counters.Counters
	pins     []bus.GPIOPin

	mu       sync.Mutex
	cond     *sync.Cond
	buffers  []*outputBuffer
	lines    []*bus.GPIOLine
	shutdown bool
	doneCh   chan struct{}
	once     sync.Once
}

// NewHardwareBackend creates a HardwareBackend with output count 2^len(pins).
func NewHardwareBackend(writer bus.Writer, opts HardwareOptions, reg *counters.Counters) *HardwareBackend {
	outputCount := 1 << len(opts.Pins)
	buffers := make([]*outputBuffer, outputCount)
	for i := range buffers {
		buffers[i] = &outputBuffer{}
	}

	b := &HardwareBackend{
		writer:   writer,
		counters: reg,
		pins:     opts.Pins,
		buffers:  buffers,
		doneCh:   make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Init acquires the GPIO mux-select lines and starts the writer goroutine.
func (b *HardwareBackend) Init() error {
	if err := b.writer.Init(); err != nil {
		return err
	}

	lines, err := bus.AcquireGPIOLines(b.pins)
	if err != nil {
		return err
	}
	b.lines = lines

	go b.run()
	return nil
}

// Checkout returns a writable region for outputID, or ok=false if outputID
// is out of range.
func (b *HardwareBackend) Checkout(outputID uint8, payloadSize, latchSize uint32) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if int(outputID) >= len(b.buffers) {
		return nil, false
	}
	return b.buffers[outputID].checkout(payloadSize, latchSize), true
}

// Commit publishes outputID's buffer and signals the writer goroutine. If
// the previous commit for this output hasn't drained yet, it is replaced
// and the drop counter is incremented exactly once.
func (b *HardwareBackend) Commit(outputID uint8) {
	b.mu.Lock()
	if int(outputID) >= len(b.buffers) {
		b.mu.Unlock()
		return
	}
	buf := b.buffers[outputID]
	if buf.pending {
		b.counters.IncDrops(b.writer.DevicePath())
	}
	buf.pending = true
	b.mu.Unlock()

	b.cond.Signal()
}

// DevicePath forwards to the underlying BusWriter.
func (b *HardwareBackend) DevicePath() string {
	return b.writer.DevicePath()
}

// Shutdown stops the writer goroutine, letting any in-flight write
// complete, discards undrained data, and releases the GPIO lines. Safe to
// call more than once.
func (b *HardwareBackend) Shutdown() {
	b.once.Do(func() {
		b.mu.Lock()
		b.shutdown = true
		b.mu.Unlock()
		b.cond.Signal()
		<-b.doneCh
		bus.ReleaseGPIOLines(b.lines)
	})
}

func (b *HardwareBackend) anyPendingLocked() bool {
	for _, buf := range b.buffers {
		if buf.pending {
			return true
		}
	}
	return false
}

type hardwareJob struct {
	outputID uint8
	data     []byte
}

// run is the single writer goroutine: wait for pending work, drain each
// pending output in ascending order, write each through the bus.
func (b *HardwareBackend) run() {
	defer close(b.doneCh)

	for {
		b.mu.Lock()
		for !b.shutdown && !b.anyPendingLocked() {
			b.cond.Wait()
		}
		if b.shutdown {
			b.mu.Unlock()
			return
		}

		var jobs []hardwareJob
		for i, buf := range b.buffers {
			if buf.pending {
				jobs = append(jobs, hardwareJob{uint8(i), buf.snapshot()})
				buf.pending = false
			}
		}
		b.mu.Unlock()

		for _, job := range jobs {
			if len(b.lines) > 0 {
				if err := bus.SetMuxSelect(b.lines, job.outputID); err != nil {
					logWriteError(b.writer.DevicePath(), int(job.outputID), err)
					continue
				}
			}
			if err := b.writer.Write(job.data); err != nil {
				logWriteError(b.writer.DevicePath(), int(job.outputID), err)
			}
		}
	}
}
