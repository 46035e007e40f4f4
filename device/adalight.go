package device

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.bug.st/serial"

	c "lautenbacher.net/blinkd/config"
)

// AdalightStrip drives a microcontroller speaking the Adalight protocol over
// a serial line.
type AdalightStrip struct {
	*Buffer
	port       io.WriteCloser
	correction colorCorrection
	segments   []*segment
	frame      []Color
	chain      []Color
	out        []byte
}

// OpenAdalight opens the serial port named in hw.
func OpenAdalight(hw c.HardwareConfig) (*AdalightStrip, error) {
	mode := &serial.Mode{
		BaudRate: hw.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(hw.SerialPort, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", hw.SerialPort, err)
	}
	strip, err := newAdalightStrip(hw.Display, port)
	if err != nil {
		port.Close()
		return nil, err
	}
	slog.Info("Adalight strip opened", "port", hw.SerialPort, "baud", hw.BaudRate, "leds", hw.Display.LedsTotal)
	return strip, nil
}

func newAdalightStrip(displayConfig c.DisplayConfig, port io.WriteCloser) (*AdalightStrip, error) {
	segments, err := parseSegments(displayConfig)
	if err != nil {
		return nil, err
	}
	n := displayConfig.LedsTotal
	return &AdalightStrip{
		Buffer:     NewBuffer(n),
		port:       port,
		correction: newColorCorrection(displayConfig.ColorCorrection),
		segments:   segments,
		frame:      make([]Color, n),
		chain:      make([]Color, 0, n),
		out:        make([]byte, 0, 6+3*n),
	}, nil
}

// adalightHeader is "Ada", the LED count minus one as big-endian uint16 and
// a checksum of both count bytes.
func adalightHeader(dst []byte, leds int) []byte {
	count := leds - 1
	hi, lo := byte(count>>8), byte(count)
	return append(dst, 'A', 'd', 'a', hi, lo, hi^lo^0x55)
}

func (s *AdalightStrip) Show() error {
	s.frame = s.Render(s.frame)
	s.chain = physicalOrder(s.segments, s.frame, s.chain)
	if len(s.chain) == 0 {
		return nil
	}

	s.out = adalightHeader(s.out[:0], len(s.chain))
	for _, led := range s.chain {
		r, g, b := s.correction.apply(led)
		s.out = append(s.out, r, g, b)
	}

	n, err := s.port.Write(s.out)
	if err != nil {
		return fmt.Errorf("serial write failed: %w", errors.Join(ErrDeviceIO, err))
	}
	if n < len(s.out) {
		return fmt.Errorf("serial write failed: %w: wrote %d of %d bytes", ErrDeviceIO, n, len(s.out))
	}
	return nil
}

func (s *AdalightStrip) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
