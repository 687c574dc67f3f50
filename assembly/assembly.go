// Package assembly binds one bus.Writer, one backend.Backend, and the
// responder.Responders for that bus into the host-facing operations the
// driver stack exposes.
package assembly

import (
	"fmt"

	"github.com/BoumPower/ola/backend"
	"github.com/BoumPower/ola/bus"
	"github.com/BoumPower/ola/responder"
)

// PersistFunc receives the final state of every output on Shutdown, for
// the caller to fold back into its config sink (see config.SaveConfig).
type PersistFunc func(outputIndex uint8, state responder.OutputState)

// BusAssembly is one configured bus: its writer, its backend, and the
// responders for each of its outputs.
type BusAssembly struct {
	writer    bus.Writer
	be        backend.Backend
	responder []*responder.Responder
	persist   PersistFunc
}

// New binds writer, be, and responders (indexed by output ID) into a
// BusAssembly. persist may be nil if no persistence hook is needed.
func New(writer bus.Writer, be backend.Backend, responders []*responder.Responder, persist PersistFunc) *BusAssembly {
	return &BusAssembly{
		writer:    writer,
		be:        be,
		responder: responders,
		persist:   persist,
	}
}

// Init opens the bus and starts the backend's writer goroutine.
func (a *BusAssembly) Init() error {
	return a.be.Init()
}

// WriteSlots routes a channel update to outputID's responder.
func (a *BusAssembly) WriteSlots(outputID uint8, slots []byte) error {
	r, err := a.lookup(outputID)
	if err != nil {
		return err
	}
	return r.OnSlots(slots)
}

// HandleParamRequest routes a parameter message to outputID's responder.
func (a *BusAssembly) HandleParamRequest(outputID uint8, req responder.Request) responder.Response {
	r, err := a.lookup(outputID)
	if err != nil {
		return responder.Response{Err: err}
	}
	return r.HandleRequest(req)
}

func (a *BusAssembly) lookup(outputID uint8) (*responder.Responder, error) {
	if int(outputID) >= len(a.responder) {
		return nil, bus.Newf(bus.OutputNotFound, "output %d not found on %s", outputID, a.writer.DevicePath())
	}
	return a.responder[outputID], nil
}

// Description is a human-readable summary used for logging/diagnostics.
func (a *BusAssembly) Description() string {
	return fmt.Sprintf("%s (%d outputs)", a.writer.DevicePath(), len(a.responder))
}

// Shutdown persists every output's final state through the configured
// PersistFunc, then shuts down the backend and closes the bus.
func (a *BusAssembly) Shutdown() {
	if a.persist != nil {
		for i, r := range a.responder {
			a.persist(uint8(i), r.State())
		}
	}
	a.be.Shutdown()
	if closer, ok := a.writer.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
