// Package controller wraps a device.Strip with range checks so that a bad
// request never reaches the hardware.
package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"lautenbacher.net/blinkd/device"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrOutOfRange       = errors.New("index out of range")
)

// Controller owns a strip for the lifetime of a service run. It is used from
// a single goroutine and does no locking.
type Controller struct {
	strip device.Strip
	dirty bool
}

func New(strip device.Strip) *Controller {
	return &Controller{strip: strip}
}

func checkBrightness(brightness float64) error {
	if math.IsNaN(brightness) || brightness < 0 || brightness > 1 {
		return fmt.Errorf("brightness %v not in [0, 1]: %w", brightness, ErrInvalidParameter)
	}
	return nil
}

func (c *Controller) Len() int {
	return c.strip.Len()
}

// SetAll sets every pixel to color at the given brightness.
func (c *Controller) SetAll(color device.Color, brightness float64) error {
	if err := checkBrightness(brightness); err != nil {
		return err
	}
	c.strip.SetAll(color, brightness)
	return nil
}

// SetPixel sets the pixel at index. Nothing changes if either argument is
// rejected.
func (c *Controller) SetPixel(index uint32, color device.Color, brightness float64) error {
	if err := checkBrightness(brightness); err != nil {
		return err
	}
	if n := c.strip.Len(); uint64(index) >= uint64(n) {
		return fmt.Errorf("pixel %d, strip has %d: %w", index, n, ErrOutOfRange)
	}
	c.strip.SetPixel(int(index), color, brightness)
	return nil
}

// SetBrightness sets the global multiplier used by the next Show.
func (c *Controller) SetBrightness(brightness float64) error {
	if err := checkBrightness(brightness); err != nil {
		return err
	}
	c.strip.SetBrightness(brightness)
	return nil
}

func (c *Controller) Clear() {
	c.strip.Clear()
}

// Show flushes the pending state. After a failure the whole frame is sent
// again on the next call; every strip transmits complete frames so nothing
// beyond logging the recovery is needed.
func (c *Controller) Show() error {
	if err := c.strip.Show(); err != nil {
		c.dirty = true
		if errors.Is(err, device.ErrDeviceIO) {
			return err
		}
		return fmt.Errorf("failed to show: %w", errors.Join(device.ErrDeviceIO, err))
	}
	if c.dirty {
		slog.Info("Strip recovered, full frame re-asserted")
		c.dirty = false
	}
	return nil
}
