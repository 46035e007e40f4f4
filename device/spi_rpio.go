package device

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
)

// rpioPort talks to SPI0 through /dev/gpiomem. The device name from the
// config is ignored; rpio only knows its fixed bus numbers.
type rpioPort struct{}

func openRpioPort(frequency int) (*rpioPort, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open rpio: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return nil, fmt.Errorf("failed to begin SPI0: %w", err)
	}
	rpio.SpiSpeed(frequency)
	rpio.SpiChipSelect(0)
	return &rpioPort{}, nil
}

func (p *rpioPort) Tx(data []byte) error {
	rpio.SpiTransmit(data...)
	return nil
}

func (p *rpioPort) Close() error {
	rpio.SpiEnd(rpio.Spi0)
	return rpio.Close()
}
