// Package bus implements the byte-oriented blocking write primitive (the
// BusWriter of the design) plus the GPIO line abstraction used by the
// hardware-multiplexed backend to drive external mux select lines.
package bus

import (
	"github.com/tarm/serial"

	"github.com/BoumPower/ola/counters"
)

// Writer is the opaque sink contract: open once, then a single goroutine
// issues blocking writes against it for the lifetime of the bus.
type Writer interface {
	Init() error
	Write(data []byte) error
	DevicePath() string
}

// Options configures a SerialWriter.
type Options struct {
	// SpeedHz is the configured link speed in Hz (0..32_000_000). tarm/serial
	// speaks baud rather than Hz directly; we pass it straight through as
	// the port's baud rate, which is how the teacher's host/serial package
	// treats the field (see host/serial/serial_native.go).
	SpeedHz uint32

	// CEHigh records the configured chip-select-active-high polarity. The
	// serial link itself has no chip-select concept, and neither
	// SerialWriter nor the GPIO mux lines read this flag.
	CEHigh bool
}

// SerialWriter is the concrete BusWriter backed by a real serial port.
// It must be written to by exactly one goroutine at a time -- the backend's
// writer goroutine, after Init -- matching the "BusWriter has no internal
// synchronization" design note.
type SerialWriter struct {
	devicePath string
	opts       Options
	counters   *counters.Counters

	port *serial.Port
}

// NewSerialWriter creates a SerialWriter for devicePath. Init must be called
// before Write.
func NewSerialWriter(devicePath string, opts Options, reg *counters.Counters) *SerialWriter {
	return &SerialWriter{
		devicePath: devicePath,
		opts:       opts,
		counters:   reg,
	}
}

// Init opens the serial endpoint at the configured speed (1000000 when
// SpeedHz is 0), leaving every other port setting at tarm/serial's
// defaults. Fails if the endpoint cannot be opened.
func (w *SerialWriter) Init() error {
	baud := int(w.opts.SpeedHz)
	if baud <= 0 {
		baud = 1000000
	}

	cfg := &serial.Config{
		Name: w.devicePath,
		Baud: baud,
	}

	port, err := serial.OpenPort(cfg)
	if err != nil {
		return Wrap(BusOpenFailed, err, "open %s", w.devicePath)
	}

	w.port = port
	return nil
}

// Write issues a single blocking transfer of data. Returns an error iff
// fewer bytes were accepted than requested, or the port itself errors.
// Increments the write counter on entry and the error counter on failure.
func (w *SerialWriter) Write(data []byte) error {
	w.counters.IncWrites(w.devicePath)

	n, err := w.port.Write(data)
	if err != nil {
		w.counters.IncErrors(w.devicePath)
		return Wrap(BusWriteFailed, err, "write %d bytes to %s", len(data), w.devicePath)
	}
	if n != len(data) {
		w.counters.IncErrors(w.devicePath)
		return Newf(BusWriteFailed, "short write to %s: wrote %d of %d bytes", w.devicePath, n, len(data))
	}

	return nil
}

// DevicePath returns the bus's device path. Immutable after construction.
func (w *SerialWriter) DevicePath() string {
	return w.devicePath
}

// Close releases the underlying serial port, if open.
func (w *SerialWriter) Close() error {
	if w.port == nil {
		return nil
	}
	return w.port.Close()
}
