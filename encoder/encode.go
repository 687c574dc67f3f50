package encoder

import (
	"log"

	"github.com/BoumPower/ola/bus"
)

// Backend is the subset of the backend contract (§4.2) the encoder needs:
// reserve a writable region, then publish it.
type Backend interface {
	Checkout(outputID uint8, payloadSize, latchSize uint32) ([]byte, bool)
	Commit(outputID uint8)
}

// Encode translates slots into wire bytes for the given personality and
// writes them through be, for outputID carrying pixelCount pixels starting
// at startAddress. If the backend has no room for outputID, the update is
// silently dropped and nil is returned. If the active personality's minimum
// slot requirement isn't met, nothing is committed: the shortfall is logged
// and returned as an InsufficientData error (§4.3/§9).
func Encode(p Personality, be Backend, outputID uint8, pixelCount uint8, startAddress uint16, slots []byte) error {
	info, ok := Table[p]
	if !ok {
		return bus.Newf(bus.FormatError, "unknown personality %d", p)
	}

	first := int(startAddress) - 1
	avail := len(slots) - first
	if avail < 0 {
		avail = 0
	}
	n := int(pixelCount)

	switch p {
	case WS2801Individual:
		return encodeWS2801Individual(be, outputID, n, first, avail, slots)
	case WS2801Combined:
		return encodeWS2801Combined(be, outputID, n, first, avail, slots)
	case LPD8806Individual:
		return encodeLPD8806Individual(be, outputID, n, first, avail, slots)
	case LPD8806Combined:
		return encodeLPD8806Combined(be, outputID, n, first, avail, slots)
	case P9813Individual:
		return encodeP9813Individual(be, outputID, n, first, avail, slots)
	case P9813Combined:
		return encodeP9813Combined(be, outputID, n, first, avail, slots)
	case APA102Individual:
		return encodeAPA102Individual(be, outputID, n, first, avail, slots)
	case APA102Combined:
		return encodeAPA102Combined(be, outputID, n, first, avail, slots)
	case APA102PBIndividual:
		return encodeAPA102PBIndividual(be, outputID, n, first, avail, slots)
	case APA102PBCombined:
		return encodeAPA102PBCombined(be, outputID, n, first, avail, slots)
	default:
		return bus.Newf(bus.FormatError, "unhandled personality %d", info.Index)
	}
}

func insufficient(outputID uint8, need, got int) error {
	log.Printf("encoder: output %d: insufficient slot data, need %d got %d", outputID, need, got)
	return bus.Newf(bus.InsufficientData, "output %d: need %d slots, have %d", outputID, need, got)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// LatchBytesAPA102 computes ceil(ceil(n/2)/8): at least one "0" bit per two
// pixels, rounded up to whole bytes.
func LatchBytesAPA102(n int) uint32 {
	if n <= 0 {
		return 0
	}
	halfPixels := (n + 1) / 2
	return uint32((halfPixels + 7) / 8)
}

// LatchBytesLPD8806 computes ceil(n/32).
func LatchBytesLPD8806(n int) uint32 {
	if n <= 0 {
		return 0
	}
	return uint32((n + 31) / 32)
}

func encodeWS2801Individual(be Backend, outputID uint8, n, first, avail int, slots []byte) error {
	payloadSize := uint32(3 * n)
	payload, ok := be.Checkout(outputID, payloadSize, 0)
	if !ok {
		return nil
	}

	copyLen := minInt(3*n, maxInt(avail, 0))
	if copyLen > 0 {
		copy(payload[:copyLen], slots[first:first+copyLen])
	}

	be.Commit(outputID)
	return nil
}

func encodeWS2801Combined(be Backend, outputID uint8, n, first, avail int, slots []byte) error {
	if avail < 3 {
		return insufficient(outputID, 3, avail)
	}

	payload, ok := be.Checkout(outputID, uint32(3*n), 0)
	if !ok {
		return nil
	}

	r, g, b := slots[first], slots[first+1], slots[first+2]
	for i := 0; i < n; i++ {
		payload[3*i] = r
		payload[3*i+1] = g
		payload[3*i+2] = b
	}

	be.Commit(outputID)
	return nil
}

// lpd8806Pixel converts one RGB triple to the LPD8806's GRB-with-marker-bit
// wire encoding.
func lpd8806Pixel(r, g, b byte) (byte, byte, byte) {
	return 0x80 | (g >> 1), 0x80 | (r >> 1), 0x80 | (b >> 1)
}

func encodeLPD8806Individual(be Backend, outputID uint8, n, first, avail int, slots []byte) error {
	if avail < 3 {
		return insufficient(outputID, 3, avail)
	}

	latch := LatchBytesLPD8806(n)
	payload, ok := be.Checkout(outputID, uint32(3*n), latch)
	if !ok {
		return nil
	}

	length := minInt(3*n, avail)
	pixels := length / 3
	for i := 0; i < pixels; i++ {
		off := first + i*3
		r, g, b := slots[off], slots[off+1], slots[off+2]
		g2, r2, b2 := lpd8806Pixel(r, g, b)
		payload[3*i] = g2
		payload[3*i+1] = r2
		payload[3*i+2] = b2
	}

	be.Commit(outputID)
	return nil
}

func encodeLPD8806Combined(be Backend, outputID uint8, n, first, avail int, slots []byte) error {
	if avail < 3 {
		return insufficient(outputID, 3, avail)
	}

	latch := LatchBytesLPD8806(n)
	payload, ok := be.Checkout(outputID, uint32(3*n), latch)
	if !ok {
		return nil
	}

	r, g, b := slots[first], slots[first+1], slots[first+2]
	g2, r2, b2 := lpd8806Pixel(r, g, b)
	for i := 0; i < n; i++ {
		payload[3*i] = g2
		payload[3*i+1] = r2
		payload[3*i+2] = b2
	}

	be.Commit(outputID)
	return nil
}

// readRGBClamped reads up to 3 bytes from slots starting at off, treating
// any bytes past len(slots) as zero.
func readRGBClamped(slots []byte, off int) (r, g, b byte) {
	var rest []byte
	if off < len(slots) {
		rest = slots[off:]
	}
	if len(rest) > 0 {
		r = rest[0]
	}
	if len(rest) > 1 {
		g = rest[1]
	}
	if len(rest) > 2 {
		b = rest[2]
	}
	return r, g, b
}

// p9813Flag computes the bit-inverted concatenation of each channel's high
// two bits, per the P9813 frame-marker convention.
func p9813Flag(r, g, b byte) byte {
	flag := (r & 0xc0) >> 6
	flag |= (g & 0xc0) >> 4
	flag |= (b & 0xc0) >> 2
	return ^flag
}

func encodeP9813Individual(be Backend, outputID uint8, n, first, avail int, slots []byte) error {
	if avail < 3 {
		return insufficient(outputID, 3, avail)
	}

	payload, ok := be.Checkout(outputID, uint32(4*n), 12)
	if !ok {
		return nil
	}

	for i := 0; i < n; i++ {
		off := first + i*3
		r, g, b := readRGBClamped(slots, off)

		i2c := 4 * (i + 1)
		payload[i2c] = p9813Flag(r, g, b)
		payload[i2c+1] = b
		payload[i2c+2] = g
		payload[i2c+3] = r
	}

	be.Commit(outputID)
	return nil
}

func encodeP9813Combined(be Backend, outputID uint8, n, first, avail int, slots []byte) error {
	if avail < 3 {
		return insufficient(outputID, 3, avail)
	}

	payload, ok := be.Checkout(outputID, uint32(4*n), 12)
	if !ok {
		return nil
	}

	r, g, b := slots[first], slots[first+1], slots[first+2]
	flag := p9813Flag(r, g, b)
	for i := 0; i < n; i++ {
		i2c := 4 * (i + 1)
		payload[i2c] = flag
		payload[i2c+1] = b
		payload[i2c+2] = g
		payload[i2c+3] = r
	}

	be.Commit(outputID)
	return nil
}

func apa102StartFrameBytes(outputID uint8) uint32 {
	if outputID == 0 {
		return 4
	}
	return 0
}

func encodeAPA102Individual(be Backend, outputID uint8, n, first, avail int, slots []byte) error {
	if avail < 3 {
		return insufficient(outputID, 3, avail)
	}

	startFrame := apa102StartFrameBytes(outputID)
	payloadSize := uint32(4*n) + startFrame
	latch := LatchBytesAPA102(n)

	payload, ok := be.Checkout(outputID, payloadSize, latch)
	if !ok {
		return nil
	}

	base := startFrame
	if startFrame > 0 {
		for i := uint32(0); i < startFrame; i++ {
			payload[i] = 0
		}
	}

	for i := 0; i < n; i++ {
		off := first + i*3
		var r, g, b byte
		if off+3 <= len(slots) {
			r, g, b = slots[off], slots[off+1], slots[off+2]
		}
		pix := base + uint32(4*i)
		payload[pix] = 0xFF
		payload[pix+1] = b
		payload[pix+2] = g
		payload[pix+3] = r
	}

	be.Commit(outputID)
	return nil
}

func encodeAPA102Combined(be Backend, outputID uint8, n, first, avail int, slots []byte) error {
	if avail < 3 {
		return insufficient(outputID, 3, avail)
	}

	startFrame := apa102StartFrameBytes(outputID)
	payloadSize := uint32(4*n) + startFrame
	latch := LatchBytesAPA102(n)

	payload, ok := be.Checkout(outputID, payloadSize, latch)
	if !ok {
		return nil
	}

	if startFrame > 0 {
		for i := uint32(0); i < startFrame; i++ {
			payload[i] = 0
		}
	}

	r, g, b := slots[first], slots[first+1], slots[first+2]
	base := startFrame
	for i := 0; i < n; i++ {
		pix := base + uint32(4*i)
		payload[pix] = 0xFF
		payload[pix+1] = b
		payload[pix+2] = g
		payload[pix+3] = r
	}

	be.Commit(outputID)
	return nil
}

func encodeAPA102PBIndividual(be Backend, outputID uint8, n, first, avail int, slots []byte) error {
	if avail < 4 {
		return insufficient(outputID, 4, avail)
	}

	startFrame := apa102StartFrameBytes(outputID)
	payloadSize := uint32(4*n) + startFrame
	latch := LatchBytesAPA102(n)

	payload, ok := be.Checkout(outputID, payloadSize, latch)
	if !ok {
		return nil
	}

	if startFrame > 0 {
		for i := uint32(0); i < startFrame; i++ {
			payload[i] = 0
		}
	}

	base := startFrame
	for i := 0; i < n; i++ {
		off := first + i*4
		// only write pixel data if the buffer has complete data for it,
		// otherwise leave that pixel's bytes as the backend buffer holds
		// them (zero in a fresh buffer)
		if off+4 > len(slots) {
			continue
		}
		brightness, r, g, b := slots[off], slots[off+1], slots[off+2], slots[off+3]
		pix := base + uint32(4*i)
		payload[pix] = 0xE0 | (brightness >> 3)
		payload[pix+1] = b
		payload[pix+2] = g
		payload[pix+3] = r
	}

	be.Commit(outputID)
	return nil
}

func encodeAPA102PBCombined(be Backend, outputID uint8, n, first, avail int, slots []byte) error {
	if avail < 4 {
		return insufficient(outputID, 4, avail)
	}

	startFrame := apa102StartFrameBytes(outputID)
	payloadSize := uint32(4*n) + startFrame
	latch := LatchBytesAPA102(n)

	payload, ok := be.Checkout(outputID, payloadSize, latch)
	if !ok {
		return nil
	}

	if startFrame > 0 {
		for i := uint32(0); i < startFrame; i++ {
			payload[i] = 0
		}
	}

	brightness, r, g, b := slots[first], slots[first+1], slots[first+2], slots[first+3]
	lead := byte(0xE0 | (brightness >> 3))
	base := startFrame
	for i := 0; i < n; i++ {
		pix := base + uint32(4*i)
		payload[pix] = lead
		payload[pix+1] = b
		payload[pix+2] = g
		payload[pix+3] = r
	}

	be.Commit(outputID)
	return nil
}
