package backend

import (
	"sync"

	"github.com/BoumPower/ola/bus"
	"github.com/BoumPower/ola/counters"
)

// SoftwareOptions configures a SoftwareBackend.
type SoftwareOptions struct {
	// OutputCount is the number of logical outputs sharing the one
	// concatenated bus frame, 1..32.
	OutputCount int

	// SyncOutput selects which output's Commit triggers a flush of the
	// whole shared buffer. -1 flushes on every commit. -2 is normalized at
	// construction to OutputCount-1 ("last output"). Any other value names
	// an explicit output index.
	SyncOutput int
}

type outputSize struct {
	payloadSize uint32
	latchSize   uint32
}

// SoftwareBackend concatenates every output's payload+latch into a single
// contiguous frame and writes the whole frame through one bus.Writer call.
type SoftwareBackend struct {
	writer      bus.Writer
	counters    *counters.Counters
	outputCount int
	syncOutput  int

	mu          sync.Mutex
	cond        *sync.Cond
	sizes       []outputSize
	offsets     []uint32
	sharedBytes []byte
	pending     bool
	shutdown    bool
	doneCh      chan struct{}
	once        sync.Once
}

// NewSoftwareBackend creates a SoftwareBackend for opts.OutputCount outputs.
func NewSoftwareBackend(writer bus.Writer, opts SoftwareOptions, reg *counters.Counters) *SoftwareBackend {
	syncOutput := opts.SyncOutput
	if syncOutput == -2 {
		syncOutput = opts.OutputCount - 1
	}

	b := &SoftwareBackend{
		writer:      writer,
		counters:    reg,
		outputCount: opts.OutputCount,
		syncOutput:  syncOutput,
		sizes:       make([]outputSize, opts.OutputCount),
		offsets:     make([]uint32, opts.OutputCount),
		doneCh:      make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Init starts the writer goroutine. There is no GPIO to acquire.
func (b *SoftwareBackend) Init() error {
	if err := b.writer.Init(); err != nil {
		return err
	}
	go b.run()
	return nil
}

// Checkout returns the sub-slice of the shared frame belonging to outputID,
// resizing (and re-offsetting) the shared frame if this output's size
// changed since the last Checkout. Resizing carries every other output's
// payload over to its new offset and zero-fills the resized output's region
// and all latch tails.
func (b *SoftwareBackend) Checkout(outputID uint8, payloadSize, latchSize uint32) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if int(outputID) >= b.outputCount {
		return nil, false
	}

	want := outputSize{payloadSize, latchSize}
	if b.sizes[outputID] != want {
		b.sizes[outputID] = want
		b.rebuildLocked(int(outputID))
	}

	off := b.offsets[outputID]
	total := payloadSize + latchSize
	for i := payloadSize; i < total; i++ {
		b.sharedBytes[off+i] = 0
	}

	return b.sharedBytes[off : off+total], true
}

// rebuildLocked recomputes every output's offset from its recorded size and
// allocates a fresh, zero-filled shared frame of the new total length, then
// copies each output other than resized (whose size is unchanged) from its
// old offset to its new one, so earlier non-sync commits survive.
func (b *SoftwareBackend) rebuildLocked(resized int) {
	oldOffsets, oldBytes := b.offsets, b.sharedBytes
	offsets := make([]uint32, b.outputCount)
	var total uint32
	for i, sz := range b.sizes {
		offsets[i] = total
		total += sz.payloadSize + sz.latchSize
	}
	b.offsets = offsets
	b.sharedBytes = make([]byte, total)

	for i, sz := range b.sizes {
		if i == resized || sz.payloadSize == 0 {
			continue
		}
		copy(b.sharedBytes[offsets[i]:offsets[i]+sz.payloadSize], oldBytes[oldOffsets[i]:oldOffsets[i]+sz.payloadSize])
	}
}

// Commit flushes the shared frame if outputID is the sync output (or if
// syncOutput is -1, meaning every commit flushes). A flush that arrives
// while the previous flush hasn't drained replaces it and counts one drop.
func (b *SoftwareBackend) Commit(outputID uint8) {
	b.mu.Lock()
	if int(outputID) >= b.outputCount {
		b.mu.Unlock()
		return
	}

	flush := b.syncOutput == -1 || int(outputID) == b.syncOutput
	if flush {
		if b.pending {
			b.counters.IncDrops(b.writer.DevicePath())
		}
		b.pending = true
	}
	b.mu.Unlock()

	if flush {
		b.cond.Signal()
	}
}

// DevicePath forwards to the underlying BusWriter.
func (b *SoftwareBackend) DevicePath() string {
	return b.writer.DevicePath()
}

// Shutdown stops the writer goroutine, letting any in-flight write
// complete and discarding a frame that has not been drained yet. Safe to
// call more than once.
func (b *SoftwareBackend) Shutdown() {
	b.once.Do(func() {
		b.mu.Lock()
		b.shutdown = true
		b.mu.Unlock()
		b.cond.Signal()
		<-b.doneCh
	})
}

// run is the single writer goroutine: wait for a pending flush, snapshot
// and write the entire shared frame in one BusWriter.Write call.
func (b *SoftwareBackend) run() {
	defer close(b.doneCh)

	for {
		b.mu.Lock()
		for !b.shutdown && !b.pending {
			b.cond.Wait()
		}
		if b.shutdown {
			b.mu.Unlock()
			return
		}

		data := make([]byte, len(b.sharedBytes))
		copy(data, b.sharedBytes)
		b.pending = false
		b.mu.Unlock()

		if err := b.writer.Write(data); err != nil {
			logWriteError(b.writer.DevicePath(), -1, err)
		}
	}
}
