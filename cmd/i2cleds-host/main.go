// Command i2cleds-host loads a bus configuration, constructs one
// BusAssembly per configured bus, and runs until an OS signal requests
// shutdown -- the host-side counterpart to gopper-host's device lifecycle,
// generalized from one MCU connection to N LED buses.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BoumPower/ola/assembly"
	"github.com/BoumPower/ola/backend"
	"github.com/BoumPower/ola/bus"
	"github.com/BoumPower/ola/config"
	"github.com/BoumPower/ola/counters"
	"github.com/BoumPower/ola/discovery"
	"github.com/BoumPower/ola/encoder"
	"github.com/BoumPower/ola/responder"
)

var (
	configPath = flag.String("config", "i2cleds.yaml", "Path to the bus configuration file")
	deviceDir  = flag.String("device-dir", "/dev", "Directory to search when no bus is configured")
	prefix     = flag.String("prefix", "i2c-", "Device name prefix used for discovery fallback")
	demo       = flag.Bool("demo", false, "Replay a synthetic animation across configured outputs")
)

func main() {
	flag.Parse()

	fmt.Println("i2cleds-host - LED strip output driver")
	fmt.Println("=======================================")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if discovered := discoverFallback(); len(discovered) > 0 {
			log.Printf("main: %s unreadable (%v), using discovered devices: %v", *configPath, err, discovered)
			cfg = fallbackConfig(discovered)
		} else {
			fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	reg := counters.New()
	assemblies := make([]*assembly.BusAssembly, 0, len(cfg.Buses))

	for _, busCfg := range cfg.Buses {
		a, err := buildAssembly(busCfg, reg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to build bus %s: %v\n", busCfg.DevicePath, err)
			os.Exit(1)
		}
		if err := a.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to init bus %s: %v\n", busCfg.DevicePath, err)
			os.Exit(1)
		}
		fmt.Printf("Bus ready: %s\n", a.Description())
		assemblies = append(assemblies, a)
	}

	if *demo {
		go runDemo(assemblies, cfg)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("main: received %v, shutting down", sig)

	for _, a := range assemblies {
		a.Shutdown()
	}

	if err := config.SaveConfig(*configPath, cfg); err != nil {
		log.Printf("main: failed to persist config: %v", err)
	}
}

func discoverFallback() []string {
	found, err := discovery.DiscoverBuses(*deviceDir, *prefix)
	if err != nil {
		return nil
	}
	return found
}

func fallbackConfig(devicePaths []string) *config.Config {
	cfg := &config.Config{}
	for _, path := range devicePaths {
		cfg.Buses = append(cfg.Buses, config.BusConfig{
			DevicePath: path,
			SpeedHz:    1000000,
			BaseUID:    "7ff000000000",
			Backend:    config.BackendConfig{Kind: "software", OutputCount: 1, SyncOutput: -1},
			Outputs: []config.OutputConfig{
				{OutputIndex: 0, PixelCount: 60, Personality: uint8(encoder.WS2801Individual), StartAddress: 1},
			},
		})
	}
	return cfg
}

func buildAssembly(busCfg config.BusConfig, reg *counters.Counters) (*assembly.BusAssembly, error) {
	baseUID, err := config.ParseUID(busCfg.BaseUID)
	if err != nil {
		return nil, err
	}

	writer := bus.NewSerialWriter(busCfg.DevicePath, bus.Options{SpeedHz: busCfg.SpeedHz, CEHigh: busCfg.CEHigh}, reg)

	var be backend.Backend
	switch busCfg.Backend.Kind {
	case "hardware":
		pins := make([]bus.GPIOPin, len(busCfg.Backend.MuxPins))
		for i, p := range busCfg.Backend.MuxPins {
			pins[i] = bus.GPIOPin(p)
		}
		be = backend.NewHardwareBackend(writer, backend.HardwareOptions{Pins: pins}, reg)
	default:
		be = backend.NewSoftwareBackend(writer, backend.SoftwareOptions{
			OutputCount: busCfg.Backend.OutputCount,
			SyncOutput:  busCfg.Backend.SyncOutput,
		}, reg)
	}

	responders := make([]*responder.Responder, outputCount(busCfg))
	for _, outCfg := range busCfg.Outputs {
		if int(outCfg.OutputIndex) >= len(responders) {
			continue
		}
		responders[outCfg.OutputIndex] = responder.New(responder.OutputState{
			OutputIndex:       outCfg.OutputIndex,
			UID:               allocateUID(baseUID, outCfg.OutputIndex),
			PixelCount:        outCfg.PixelCount,
			DeviceLabel:       outCfg.DeviceLabel,
			ActivePersonality: encoder.Personality(outCfg.Personality),
			StartAddress:      outCfg.StartAddress,
		}, be)
	}
	for i, r := range responders {
		if r == nil {
			responders[i] = responder.New(responder.OutputState{
				OutputIndex:       uint8(i),
				UID:               allocateUID(baseUID, uint8(i)),
				ActivePersonality: encoder.WS2801Individual,
				StartAddress:      1,
			}, be)
		}
	}

	persist := func(outputID uint8, state responder.OutputState) {
		for i := range busCfg.Outputs {
			if busCfg.Outputs[i].OutputIndex == outputID {
				busCfg.Outputs[i].DeviceLabel = state.DeviceLabel
				busCfg.Outputs[i].Personality = uint8(state.ActivePersonality)
				busCfg.Outputs[i].StartAddress = state.StartAddress
				return
			}
		}
	}

	return assembly.New(writer, be, responders, persist), nil
}

func outputCount(busCfg config.BusConfig) int {
	if busCfg.Backend.Kind == "hardware" {
		return 1 << len(busCfg.Backend.MuxPins)
	}
	if busCfg.Backend.OutputCount > 0 {
		return busCfg.Backend.OutputCount
	}
	return 1
}

// allocateUID returns the UID for outputIndex, mirroring
// UIDAllocator::AllocateNext(): the manufacturer ID (the first two bytes)
// stays fixed and the device ID (the last four bytes) is incremented by
// outputIndex, so output 0 gets base itself and each later output claims
// the next sequential value.
func allocateUID(base [6]byte, outputIndex uint8) [6]byte {
	deviceID := binary.BigEndian.Uint32(base[2:6]) + uint32(outputIndex)

	var uid [6]byte
	uid[0], uid[1] = base[0], base[1]
	binary.BigEndian.PutUint32(uid[2:6], deviceID)
	return uid
}

// runDemo replays a slow color sweep across every configured output, for
// manual exercise of the driver stack.
func runDemo(assemblies []*assembly.BusAssembly, cfg *config.Config) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var frame byte
	for range ticker.C {
		for bi, a := range assemblies {
			if bi >= len(cfg.Buses) {
				continue
			}
			for _, outCfg := range cfg.Buses[bi].Outputs {
				slots := make([]byte, 512)
				for i := range slots {
					slots[i] = frame
				}
				if err := a.WriteSlots(outCfg.OutputIndex, slots); err != nil {
					log.Printf("demo: %s output %d: %v", a.Description(), outCfg.OutputIndex, err)
				}
			}
		}
		frame++
	}
}
