// Package device holds the LED strip capability the blink service drives,
// and the strips that implement it: SPI attached APA102/WS2801 chains,
// Adalight serial controllers and a talking strip that only logs.
package device

import (
	"errors"
	"math"
)

// ErrDeviceIO is wrapped by every error a strip returns from Show.
var ErrDeviceIO = errors.New("device I/O error")

// Color is an RGB value with 8 bits per channel.
type Color struct {
	Red   byte
	Green byte
	Blue  byte
}

func RGB(r, g, b byte) Color {
	return Color{Red: r, Green: g, Blue: b}
}

// True if all components are zero, false otherwise
func (c Color) IsEmpty() bool {
	return c.Red == 0 && c.Green == 0 && c.Blue == 0
}

// Scale multiplies every channel by f, rounding to the nearest value and
// clamping to 0..255.
func (c Color) Scale(f float64) Color {
	return Color{
		Red:   scaleChannel(c.Red, f),
		Green: scaleChannel(c.Green, f),
		Blue:  scaleChannel(c.Blue, f),
	}
}

func scaleChannel(v byte, f float64) byte {
	return byte(math.Max(0, math.Min(255, math.Round(float64(v)*f))))
}

// Strip is the capability a DeviceController wraps. Implementations are
// owned by a single goroutine at a time and need no locking. Range checks
// are the caller's job; strips ignore indices they do not have.
type Strip interface {
	// Len is the number of addressable pixels.
	Len() int
	// SetAll sets every pixel to color scaled by brightness.
	SetAll(color Color, brightness float64)
	// SetPixel sets one pixel to color scaled by brightness.
	SetPixel(index int, color Color, brightness float64)
	// SetBrightness sets the global multiplier applied on the next Show.
	SetBrightness(brightness float64)
	// Clear switches all pixels off.
	Clear()
	// Show transmits the full pending state to the hardware.
	Show() error
}
