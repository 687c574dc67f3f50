package bus

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// GPIOPin identifies a Linux sysfs GPIO line number, mirroring the
// GPIODriver abstraction the teacher uses on the MCU side (core/gpio_hal.go)
// but implemented here against /sys/class/gpio on the host.
type GPIOPin uint32

// GPIOLine is a single exported, output-direction GPIO line. The hardware
// backend owns a slice of these after Init and is the only goroutine that
// touches them.
type GPIOLine struct {
	pin     GPIOPin
	valueFd int
}

const gpioSysfsRoot = "/sys/class/gpio"

// AcquireGPIOLine exports pin, sets its direction to "out", and opens its
// value file for repeated writes. Any failure here is GPIOAcquireFailed.
func AcquireGPIOLine(pin GPIOPin) (*GPIOLine, error) {
	exportPath := filepath.Join(gpioSysfsRoot, "export")
	pinStr := strconv.FormatUint(uint64(pin), 10)

	if err := writeSysfsFile(exportPath, pinStr); err != nil {
		// Already exported is not fatal; anything else is.
		if !os.IsExist(err) {
			return nil, Wrap(GPIOAcquireFailed, err, "export gpio %d", pin)
		}
	}

	dirPath := filepath.Join(gpioSysfsRoot, fmt.Sprintf("gpio%d", pin), "direction")
	if err := writeSysfsFile(dirPath, "out"); err != nil {
		return nil, Wrap(GPIOAcquireFailed, err, "set direction for gpio %d", pin)
	}

	valuePath := filepath.Join(gpioSysfsRoot, fmt.Sprintf("gpio%d", pin), "value")
	fd, err := unix.Open(valuePath, unix.O_WRONLY, 0)
	if err != nil {
		return nil, Wrap(GPIOAcquireFailed, err, "open value file for gpio %d", pin)
	}

	return &GPIOLine{pin: pin, valueFd: fd}, nil
}

// Set drives the line high (true) or low (false).
func (l *GPIOLine) Set(high bool) error {
	b := []byte("0")
	if high {
		b = []byte("1")
	}
	if _, err := unix.Write(l.valueFd, b); err != nil {
		return Wrap(BusConfigureFailed, err, "set gpio %d", l.pin)
	}
	return nil
}

// Release closes the value file descriptor and unexports the line.
func (l *GPIOLine) Release() error {
	if l.valueFd >= 0 {
		unix.Close(l.valueFd)
		l.valueFd = -1
	}
	unexportPath := filepath.Join(gpioSysfsRoot, "unexport")
	pinStr := strconv.FormatUint(uint64(l.pin), 10)
	return writeSysfsFile(unexportPath, pinStr)
}

func writeSysfsFile(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(value)
	return err
}

// AcquireGPIOLines exports and configures all pins as outputs. On any
// failure, lines already acquired are released before returning the error,
// per the "releases partially acquired pins" requirement.
func AcquireGPIOLines(pins []GPIOPin) ([]*GPIOLine, error) {
	lines := make([]*GPIOLine, 0, len(pins))
	for _, p := range pins {
		line, err := AcquireGPIOLine(p)
		if err != nil {
			ReleaseGPIOLines(lines)
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ReleaseGPIOLines releases every line in lines, best-effort.
func ReleaseGPIOLines(lines []*GPIOLine) {
	for _, l := range lines {
		_ = l.Release()
	}
}

// SetMuxSelect writes the bits of outputID across lines, bit 0 on lines[0].
func SetMuxSelect(lines []*GPIOLine, outputID uint8) error {
	for i, line := range lines {
		bit := (outputID >> uint(i)) & 1
		if err := line.Set(bit != 0); err != nil {
			return err
		}
	}
	return nil
}
