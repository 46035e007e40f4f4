package device

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

type periphPort struct {
	port spi.PortCloser
	conn spi.Conn
}

func openPeriphPort(device string, frequency int) (*periphPort, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io host: %w", err)
	}
	port, err := spireg.Open(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", device, err)
	}
	conn, err := port.Connect(physic.Frequency(frequency)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to connect to SPI port %s: %w", device, err)
	}
	return &periphPort{port: port, conn: conn}, nil
}

func (p *periphPort) Tx(data []byte) error {
	return p.conn.Tx(data, nil)
}

func (p *periphPort) Close() error {
	return p.port.Close()
}
