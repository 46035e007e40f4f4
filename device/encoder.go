package device

import (
	"fmt"
	"math"
	"strings"

	c "lautenbacher.net/blinkd/config"
)

// encoder turns a frame in chain order into the bytes a chip family expects
// on the SPI bus. The returned slice aliases an internal buffer and is only
// valid until the next call.
type encoder interface {
	encode(leds []Color) []byte
}

func newEncoder(ledType string, displayConfig c.DisplayConfig) (encoder, error) {
	switch strings.ToLower(ledType) {
	case "ws2801":
		return newWs2801Encoder(displayConfig), nil
	case "apa102":
		return newApa102Encoder(displayConfig), nil
	default:
		return nil, fmt.Errorf("no SPI encoder for LED type %q", ledType)
	}
}

type colorCorrection [3]float64

func newColorCorrection(cc []float64) colorCorrection {
	ret := colorCorrection{1, 1, 1}
	copy(ret[:], cc)
	return ret
}

func (cc colorCorrection) apply(col Color) (r, g, b byte) {
	return correct(col.Red, cc[0]), correct(col.Green, cc[1]), correct(col.Blue, cc[2])
}

func correct(v byte, f float64) byte {
	return byte(math.Min(float64(v)*f, 255))
}

type ws2801Encoder struct {
	correction colorCorrection
	buffer     []byte
}

func newWs2801Encoder(displayConfig c.DisplayConfig) *ws2801Encoder {
	// Pre-allocate buffer to the maximum possible size.
	return &ws2801Encoder{
		correction: newColorCorrection(displayConfig.ColorCorrection),
		buffer:     make([]byte, 3*displayConfig.LedsTotal),
	}
}

func (e *ws2801Encoder) encode(leds []Color) []byte {
	requiredSize := 3 * len(leds)
	if cap(e.buffer) < requiredSize {
		e.buffer = make([]byte, requiredSize)
	}
	display := e.buffer[:requiredSize]

	for idx, led := range leds {
		display[3*idx], display[3*idx+1], display[3*idx+2] = e.correction.apply(led)
	}
	return display
}

type apa102Encoder struct {
	correction colorCorrection
	brightness byte
	buffer     []byte
}

func apa102FrameSize(leds int) int {
	frameEndLength := (leds / 16) + 1
	return 4 + (4 * leds) + frameEndLength
}

func newApa102Encoder(displayConfig c.DisplayConfig) *apa102Encoder {
	return &apa102Encoder{
		correction: newColorCorrection(displayConfig.ColorCorrection),
		brightness: byte(displayConfig.APA102_Brightness&0x1F) | 0xE0,
		buffer:     make([]byte, apa102FrameSize(displayConfig.LedsTotal)),
	}
}

func (e *apa102Encoder) encode(leds []Color) []byte {
	requiredSize := apa102FrameSize(len(leds))
	if cap(e.buffer) < requiredSize {
		e.buffer = make([]byte, requiredSize)
	}
	display := e.buffer[:requiredSize]

	// Frame start: 4 zero bytes
	copy(display[0:4], []byte{0x00, 0x00, 0x00, 0x00})

	offset := 4
	for _, led := range leds {
		red, green, blue := e.correction.apply(led)
		// protocol: brightness byte, blue, green, red
		display[offset] = e.brightness
		display[offset+1] = blue
		display[offset+2] = green
		display[offset+3] = red
		offset += 4
	}

	// Frame end: fill the rest of the slice with 0xFF
	for i := offset; i < requiredSize; i++ {
		display[i] = 0xFF
	}
	return display
}
