// Package responder implements the per-output RDM-style parameter surface:
// device/personality/start-address/identify state plus a handler table
// dispatched by parameter ID, and the channel-update entry point that
// drives the encoder.
package responder

import (
	"bufio"
	"encoding/binary"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/BoumPower/ola/bus"
	"github.com/BoumPower/ola/encoder"
)

// ParamID identifies one RDM-style parameter message.
type ParamID uint16

const (
	PIDDeviceInfo                ParamID = 0x0060
	PIDProductDetailIDList       ParamID = 0x0070
	PIDDeviceModelDescription    ParamID = 0x0080
	PIDManufacturerLabel         ParamID = 0x0081
	PIDDeviceLabel               ParamID = 0x0082
	PIDSoftwareVersionLabel      ParamID = 0x00C0
	PIDDMXPersonality            ParamID = 0x00E0
	PIDDMXPersonalityDescription ParamID = 0x00E1
	PIDSlotInfo                  ParamID = 0x0120
	PIDDMXStartAddress           ParamID = 0x00F0
	PIDIdentifyDevice            ParamID = 0x1000
	PIDListInterfaces            ParamID = 0xF0A0
	PIDIPV4CurrentAddress        ParamID = 0xF0A1
	PIDIPV4DefaultRoute          ParamID = 0xF0A2
	PIDDNSHostname               ParamID = 0xF0A3
	PIDDNSDomainName             ParamID = 0xF0A4
	PIDDNSNameServer             ParamID = 0xF0A5
	PIDSensorDefinition          ParamID = 0x0200
	PIDSensorValue               ParamID = 0x0201
	PIDRecordSensors             ParamID = 0x0202
)

// sensorLoadAverage is the only sensor index this responder defines: the
// host's 1-minute load average from /proc/loadavg, scaled by 100 so it fits
// a uint16 the way the sensor value fields require.
const sensorLoadAverage = 0

const (
	manufacturerLabel    = "BoumPower"
	modelDescription     = "I2C LED Driver"
	softwareVersionLabel = "1.0.0"
	softwareVersion      = uint32(0x00010000)
	productDetailLED     = uint16(0x0203)
)

// Request carries a parameter message addressed to one output. Set
// distinguishes a GET (false) from a SET (true, with payload in Data).
type Request struct {
	ID   ParamID
	Set  bool
	Data []byte
}

// Response is the result of handling a Request: Data on a successful GET,
// nothing on a successful SET, Err on any failure.
type Response struct {
	Data []byte
	Err  error
}

type getter func(*Responder, []byte) ([]byte, error)
type setter func(*Responder, []byte) error

type paramHandler struct {
	get getter
	set setter
}

// OutputState is the output-visible state a Responder owns.
type OutputState struct {
	OutputIndex       uint8
	UID               [6]byte
	PixelCount        uint8
	DeviceLabel       string
	ActivePersonality encoder.Personality
	StartAddress      uint16
	IdentifyMode      bool

	SensorLowest   uint16
	SensorHighest  uint16
	SensorRecorded uint16
}

// Responder holds one output's state and routes parameter messages through
// a handler table, mirroring the teacher's command-dispatch shape
// (core/command.go's ID -> handler map) but addressed by RDM-style
// parameter ID instead of a wire command ID, and calls the encoder on each
// channel update.
type Responder struct {
	mu      sync.Mutex
	state   OutputState
	backend encoder.Backend

	handlers map[ParamID]paramHandler
}

// New creates a Responder for one output, bound to the backend its encoder
// writes into.
func New(state OutputState, be encoder.Backend) *Responder {
	r := &Responder{state: state, backend: be}
	r.handlers = map[ParamID]paramHandler{
		PIDDeviceInfo:                {get: getDeviceInfo},
		PIDProductDetailIDList:       {get: getProductDetailIDList},
		PIDDeviceModelDescription:    {get: getModelDescription},
		PIDManufacturerLabel:         {get: getManufacturerLabel},
		PIDDeviceLabel:               {get: getDeviceLabel, set: setDeviceLabel},
		PIDSoftwareVersionLabel:      {get: getSoftwareVersionLabel},
		PIDDMXPersonality:            {get: getPersonality, set: setPersonality},
		PIDDMXPersonalityDescription: {get: getPersonalityDescription},
		PIDSlotInfo:                  {get: getSlotInfo},
		PIDDMXStartAddress:           {get: getStartAddress, set: setStartAddress},
		PIDIdentifyDevice:            {get: getIdentify, set: setIdentify},
		PIDListInterfaces:            {get: getListInterfaces},
		PIDIPV4CurrentAddress:        {get: getIPv4CurrentAddress},
		PIDIPV4DefaultRoute:          {get: getIPv4DefaultRoute},
		PIDDNSHostname:               {get: getDNSHostname},
		PIDDNSDomainName:             {get: getDNSDomainName},
		PIDDNSNameServer:             {get: getDNSNameServers},
	}

	if _, err := os.Stat("/proc/loadavg"); err == nil {
		r.handlers[PIDSensorDefinition] = paramHandler{get: getSensorDefinition}
		r.handlers[PIDSensorValue] = paramHandler{get: getSensorValue, set: setSensorValue}
		r.handlers[PIDRecordSensors] = paramHandler{set: recordSensors}
	}

	return r
}

// State returns a copy of the current output state.
func (r *Responder) State() OutputState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OnSlots is the channel-update entry point: drop while identifying,
// otherwise dispatch to the active personality's encoder.
func (r *Responder) OnSlots(slots []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.IdentifyMode {
		return nil
	}
	return encoder.Encode(r.state.ActivePersonality, r.backend, r.state.OutputIndex, r.state.PixelCount, r.state.StartAddress, slots)
}

// HandleRequest dispatches req through the parameter-handler table.
// Unlisted IDs answer unknown-parameter; GET against a set-only handler (or
// vice versa) answers the same.
func (r *Responder) HandleRequest(req Request) Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handlers[req.ID]
	if !ok {
		return Response{Err: bus.Newf(bus.UnknownParameter, "unknown parameter 0x%04x", uint16(req.ID))}
	}

	if !req.Set {
		if h.get == nil {
			return Response{Err: bus.Newf(bus.UnknownParameter, "parameter 0x%04x is set-only", uint16(req.ID))}
		}
		data, err := h.get(r, req.Data)
		return Response{Data: data, Err: err}
	}

	if h.set == nil {
		return Response{Err: bus.Newf(bus.UnknownParameter, "parameter 0x%04x is get-only", uint16(req.ID))}
	}
	return Response{Err: h.set(r, req.Data)}
}

func getDeviceInfo(r *Responder, _ []byte) ([]byte, error) {
	footprint, err := encoder.Footprint(r.state.ActivePersonality, r.state.PixelCount)
	if err != nil {
		return nil, bus.Wrap(bus.FormatError, err, "device info")
	}

	buf := make([]byte, 19)
	binary.BigEndian.PutUint16(buf[0:2], 0x0100)
	binary.BigEndian.PutUint16(buf[2:4], 1)
	binary.BigEndian.PutUint16(buf[4:6], 0x0609)
	binary.BigEndian.PutUint32(buf[6:10], softwareVersion)
	binary.BigEndian.PutUint16(buf[10:12], footprint)
	buf[12] = byte(r.state.ActivePersonality)
	buf[13] = byte(len(encoder.Table))
	binary.BigEndian.PutUint16(buf[14:16], r.state.StartAddress)
	binary.BigEndian.PutUint16(buf[16:18], 0)
	buf[18] = 0
	return buf, nil
}

func getProductDetailIDList(r *Responder, _ []byte) ([]byte, error) {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, productDetailLED)
	return buf, nil
}

func getModelDescription(r *Responder, _ []byte) ([]byte, error) {
	return []byte(modelDescription), nil
}

func getManufacturerLabel(r *Responder, _ []byte) ([]byte, error) {
	return []byte(manufacturerLabel), nil
}

func getSoftwareVersionLabel(r *Responder, _ []byte) ([]byte, error) {
	return []byte(softwareVersionLabel), nil
}

func getDeviceLabel(r *Responder, _ []byte) ([]byte, error) {
	return []byte(r.state.DeviceLabel), nil
}

func setDeviceLabel(r *Responder, data []byte) error {
	if len(data) > 32 {
		return bus.Newf(bus.FormatError, "device label: max 32 bytes, got %d", len(data))
	}
	r.state.DeviceLabel = string(data)
	return nil
}

func getPersonality(r *Responder, _ []byte) ([]byte, error) {
	return []byte{byte(r.state.ActivePersonality), byte(len(encoder.Table))}, nil
}

func setPersonality(r *Responder, data []byte) error {
	if len(data) < 1 {
		return bus.Newf(bus.FormatError, "personality set: expected 1 byte, got %d", len(data))
	}

	p := encoder.Personality(data[0])
	if !encoder.Valid(p) {
		return bus.Newf(bus.OutOfRange, "unknown personality %d", p)
	}

	footprint, err := encoder.Footprint(p, r.state.PixelCount)
	if err != nil {
		return bus.Wrap(bus.FormatError, err, "personality set")
	}
	if footprint == 0 {
		return bus.Newf(bus.OutOfRange, "personality %d has zero footprint", p)
	}

	if int(r.state.StartAddress)+int(footprint)-1 > 512 {
		r.state.StartAddress = uint16(512 - int(footprint) + 1)
	}
	r.state.ActivePersonality = p
	return nil
}

// getPersonalityDescription answers PIDDMXPersonalityDescription. Like the
// sensor GETs, and unlike the other GETs in this table, RDM requires the
// request to carry the index being asked about (here, the personality).
func getPersonalityDescription(r *Responder, data []byte) ([]byte, error) {
	if len(data) < 1 {
		return nil, bus.Newf(bus.FormatError, "personality description: expected 1 byte, got %d", len(data))
	}

	p := encoder.Personality(data[0])
	info, ok := encoder.Table[p]
	if !ok {
		return nil, bus.Newf(bus.OutOfRange, "unknown personality %d", p)
	}

	footprint, err := encoder.Footprint(p, r.state.PixelCount)
	if err != nil {
		return nil, bus.Wrap(bus.FormatError, err, "personality description")
	}

	buf := make([]byte, 3+len(info.Description))
	buf[0] = byte(p)
	binary.BigEndian.PutUint16(buf[1:3], footprint)
	copy(buf[3:], info.Description)
	return buf, nil
}

func getSlotInfo(r *Responder, _ []byte) ([]byte, error) {
	footprint, err := encoder.Footprint(r.state.ActivePersonality, r.state.PixelCount)
	if err != nil {
		return nil, bus.Wrap(bus.FormatError, err, "slot info")
	}
	buf := make([]byte, 3)
	binary.BigEndian.PutUint16(buf[0:2], footprint)
	buf[2] = byte(r.state.ActivePersonality)
	return buf, nil
}

func getStartAddress(r *Responder, _ []byte) ([]byte, error) {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, r.state.StartAddress)
	return buf, nil
}

func setStartAddress(r *Responder, data []byte) error {
	if len(data) < 2 {
		return bus.Newf(bus.FormatError, "start address set: expected 2 bytes, got %d", len(data))
	}

	addr := binary.BigEndian.Uint16(data[0:2])
	footprint, err := encoder.Footprint(r.state.ActivePersonality, r.state.PixelCount)
	if err != nil {
		return bus.Wrap(bus.FormatError, err, "start address set")
	}

	max := 512
	if footprint > 0 {
		max = 512 - int(footprint) + 1
	}
	if addr < 1 || int(addr) > max {
		return bus.Newf(bus.OutOfRange, "start address %d out of range [1,%d]", addr, max)
	}

	r.state.StartAddress = addr
	return nil
}

func getIdentify(r *Responder, _ []byte) ([]byte, error) {
	if r.state.IdentifyMode {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func setIdentify(r *Responder, data []byte) error {
	if len(data) < 1 {
		return bus.Newf(bus.FormatError, "identify set: expected 1 byte, got %d", len(data))
	}

	on := data[0] != 0
	r.state.IdentifyMode = on

	slots := make([]byte, 512)
	if on {
		for i := range slots {
			slots[i] = 0xFF
		}
	}
	return encoder.Encode(r.state.ActivePersonality, r.backend, r.state.OutputIndex, r.state.PixelCount, r.state.StartAddress, slots)
}

func getListInterfaces(r *Responder, _ []byte) ([]byte, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, bus.Wrap(bus.FormatError, err, "list interfaces")
	}
	names := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		names = append(names, iface.Name)
	}
	return []byte(strings.Join(names, "\n")), nil
}

func getIPv4CurrentAddress(r *Responder, _ []byte) ([]byte, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, bus.Wrap(bus.FormatError, err, "ipv4 current address")
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() {
				continue
			}
			return []byte(ip4.String()), nil
		}
	}
	return nil, bus.Newf(bus.FormatError, "no ipv4 address found")
}

// getIPv4DefaultRoute reads the gateway of the default route from
// /proc/net/route, the same source `ip route` itself reads on Linux.
func getIPv4DefaultRoute(r *Responder, _ []byte) ([]byte, error) {
	f, err := os.Open("/proc/net/route")
	if err != nil {
		return nil, bus.Wrap(bus.FormatError, err, "ipv4 default route")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Scan() // header line
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		if fields[1] != "00000000" {
			continue
		}
		gw, err := strconv.ParseUint(fields[2], 16, 32)
		if err != nil {
			continue
		}
		ip := make(net.IP, 4)
		binary.LittleEndian.PutUint32(ip, uint32(gw))
		return []byte(ip.String()), nil
	}
	return nil, bus.Newf(bus.FormatError, "no default route found")
}

func getDNSHostname(r *Responder, _ []byte) ([]byte, error) {
	name, err := os.Hostname()
	if err != nil {
		return nil, bus.Wrap(bus.FormatError, err, "dns hostname")
	}
	return []byte(name), nil
}

func resolvConfValues(prefix string) ([]string, error) {
	f, err := os.Open("/etc/resolv.conf")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var values []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		values = append(values, strings.Fields(line)[1:]...)
	}
	return values, nil
}

func getDNSDomainName(r *Responder, _ []byte) ([]byte, error) {
	values, err := resolvConfValues("domain")
	if err != nil {
		return nil, bus.Wrap(bus.FormatError, err, "dns domain name")
	}
	if len(values) == 0 {
		return nil, bus.Newf(bus.FormatError, "no domain configured")
	}
	return []byte(values[0]), nil
}

func getDNSNameServers(r *Responder, _ []byte) ([]byte, error) {
	values, err := resolvConfValues("nameserver")
	if err != nil {
		return nil, bus.Wrap(bus.FormatError, err, "dns name servers")
	}
	return []byte(strings.Join(values, ",")), nil
}

// readLoadAverageCenti reads the 1-minute load average from /proc/loadavg
// and scales it by 100 so it fits the sensor value fields' uint16 range.
func readLoadAverageCenti() (uint16, error) {
	raw, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return 0, bus.Newf(bus.FormatError, "empty /proc/loadavg")
	}

	load, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, err
	}
	return uint16(load * 100), nil
}

func getSensorDefinition(r *Responder, data []byte) ([]byte, error) {
	if len(data) < 1 || data[0] != sensorLoadAverage {
		return nil, bus.Newf(bus.OutOfRange, "unknown sensor %v", data)
	}

	const description = "1-minute load average"
	buf := make([]byte, 13+len(description))
	buf[0] = sensorLoadAverage
	buf[1] = 0 // SENSOR_OTHER, no dedicated RDM sensor type fits a load average
	buf[2] = 0 // UNIT_NONE
	buf[3] = 2 // PREFIX_CENTI, the value is load*100
	binary.BigEndian.PutUint16(buf[4:6], 0)
	binary.BigEndian.PutUint16(buf[6:8], 0xFFFF)
	binary.BigEndian.PutUint16(buf[8:10], 0)
	binary.BigEndian.PutUint16(buf[10:12], 0xFFFF)
	buf[12] = 1 // recorded-value support: lowest/highest/recorded all tracked
	copy(buf[13:], description)
	return buf, nil
}

// sampleSensorLocked takes a fresh load-average reading and folds it into
// the tracked lowest/highest range. Called with r.mu already held.
func sampleSensorLocked(r *Responder) (present uint16, err error) {
	present, err = readLoadAverageCenti()
	if err != nil {
		return 0, err
	}

	if r.state.SensorLowest == 0 && r.state.SensorHighest == 0 {
		r.state.SensorLowest = present
		r.state.SensorHighest = present
	} else {
		if present < r.state.SensorLowest {
			r.state.SensorLowest = present
		}
		if present > r.state.SensorHighest {
			r.state.SensorHighest = present
		}
	}
	return present, nil
}

func getSensorValue(r *Responder, data []byte) ([]byte, error) {
	if len(data) < 1 || data[0] != sensorLoadAverage {
		return nil, bus.Newf(bus.OutOfRange, "unknown sensor %v", data)
	}

	present, err := sampleSensorLocked(r)
	if err != nil {
		return nil, bus.Wrap(bus.FormatError, err, "sensor value")
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[0:2], present)
	binary.BigEndian.PutUint16(buf[2:4], r.state.SensorLowest)
	binary.BigEndian.PutUint16(buf[4:6], r.state.SensorHighest)
	binary.BigEndian.PutUint16(buf[6:8], r.state.SensorRecorded)
	return buf, nil
}

// setSensorValue resets the sensor's tracked range to the current reading,
// the RDM convention for a SET against SENSOR_VALUE.
func setSensorValue(r *Responder, data []byte) error {
	if len(data) < 1 || data[0] != sensorLoadAverage {
		return bus.Newf(bus.OutOfRange, "unknown sensor %v", data)
	}

	present, err := readLoadAverageCenti()
	if err != nil {
		return bus.Wrap(bus.FormatError, err, "sensor value reset")
	}

	r.state.SensorLowest = present
	r.state.SensorHighest = present
	r.state.SensorRecorded = present
	return nil
}

// recordSensors samples the sensor into its recorded register. 0xFF
// addresses every sensor; this responder only has one.
func recordSensors(r *Responder, data []byte) error {
	if len(data) < 1 || (data[0] != sensorLoadAverage && data[0] != 0xFF) {
		return bus.Newf(bus.OutOfRange, "unknown sensor %v", data)
	}

	present, err := sampleSensorLocked(r)
	if err != nil {
		return bus.Wrap(bus.FormatError, err, "record sensors")
	}

	r.state.SensorRecorded = present
	return nil
}
