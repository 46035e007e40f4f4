package device

import (
	"errors"
	"fmt"
	"log/slog"

	c "lautenbacher.net/blinkd/config"
)

// spiPort is the minimal bus access an SPIStrip needs.
type spiPort interface {
	Tx(data []byte) error
	Close() error
}

// SPIStrip drives an APA102 or WS2801 chain attached to an SPI bus.
type SPIStrip struct {
	*Buffer
	segments []*segment
	enc      encoder
	port     spiPort
	frame    []Color
	chain    []Color
}

// OpenSPI opens the SPI device named in hw with the configured GPIO library.
func OpenSPI(hw c.HardwareConfig) (*SPIStrip, error) {
	enc, err := newEncoder(hw.LEDType, hw.Display)
	if err != nil {
		return nil, err
	}

	var port spiPort
	switch hw.GPIOLibrary {
	case "rpio":
		port, err = openRpioPort(hw.SPIFrequency)
	default:
		port, err = openPeriphPort(hw.SPIDevice, hw.SPIFrequency)
	}
	if err != nil {
		return nil, err
	}

	strip, err := newSPIStrip(hw.Display, enc, port)
	if err != nil {
		port.Close()
		return nil, err
	}
	slog.Info("SPI strip opened", "type", hw.LEDType, "library", hw.GPIOLibrary,
		"device", hw.SPIDevice, "frequency", hw.SPIFrequency, "leds", hw.Display.LedsTotal)
	return strip, nil
}

func newSPIStrip(displayConfig c.DisplayConfig, enc encoder, port spiPort) (*SPIStrip, error) {
	segments, err := parseSegments(displayConfig)
	if err != nil {
		return nil, err
	}
	return &SPIStrip{
		Buffer:   NewBuffer(displayConfig.LedsTotal),
		segments: segments,
		enc:      enc,
		port:     port,
		frame:    make([]Color, displayConfig.LedsTotal),
		chain:    make([]Color, 0, displayConfig.LedsTotal),
	}, nil
}

// Show renders the whole buffer and transmits it in one transaction.
func (s *SPIStrip) Show() error {
	s.frame = s.Render(s.frame)
	s.chain = physicalOrder(s.segments, s.frame, s.chain)
	if err := s.port.Tx(s.enc.encode(s.chain)); err != nil {
		return fmt.Errorf("spi transaction failed: %w", errors.Join(ErrDeviceIO, err))
	}
	return nil
}

func (s *SPIStrip) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
