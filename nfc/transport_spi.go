package nfc

import (
	"fmt"
	"math/bits"
	"time"

	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

// PN532 SPI operation bytes.
const (
	spiDataWrite  = 0x01
	spiStatusRead = 0x02
	spiDataRead   = 0x03
)

// spiConn is the part of periph's spi.Conn the transport uses.
type spiConn interface {
	Tx(w, r []byte) error
}

type spiTransport struct {
	port interface{ Close() error }
	conn spiConn
}

// OpenSPI opens a PN532 on a SPI port, e.g. "/dev/spidev0.0". An empty name
// picks the first port periph finds.
//
// The PN532 shifts bits LSB first; bytes are reversed in software since not
// every SPI controller supports LSB-first mode.
func OpenSPI(name string) (Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host.Init: %w", err)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("spireg.Open(%q): %w", name, err)
	}
	conn, err := port.Connect(1*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("spi connect: %w", err)
	}
	return &spiTransport{port: port, conn: conn}, nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = bits.Reverse8(v)
	}
	return out
}

func (s *spiTransport) tx(w []byte, readLen int) ([]byte, error) {
	r := make([]byte, len(w)+readLen)
	full := make([]byte, len(r))
	copy(full, reverseBytes(w))
	if err := s.conn.Tx(full, r); err != nil {
		return nil, err
	}
	return reverseBytes(r[len(w):]), nil
}

// Wakeup toggles chip select; the chip needs a couple of milliseconds
// after that before it accepts a frame.
func (s *spiTransport) Wakeup() error {
	if _, err := s.tx([]byte{spiStatusRead}, 1); err != nil {
		return err
	}
	time.Sleep(2 * time.Millisecond)
	return nil
}

func (s *spiTransport) WriteFrame(frame []byte) error {
	_, err := s.tx(append([]byte{spiDataWrite}, frame...), 0)
	return err
}

func (s *spiTransport) waitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		status, err := s.tx([]byte{spiStatusRead}, 1)
		if err != nil {
			return err
		}
		if status[0]&0x01 != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

// ReadFrame polls the status byte until the chip is ready and then reads
// max bytes in one data read transaction.
func (s *spiTransport) ReadFrame(max int, timeout time.Duration) ([]byte, error) {
	if err := s.waitReady(timeout); err != nil {
		return nil, err
	}
	raw, err := s.tx([]byte{spiDataRead}, max)
	if err != nil {
		return nil, err
	}
	n, ok := frameLength(raw)
	if !ok {
		return nil, fmt.Errorf("no complete frame in %d bytes", max)
	}
	return raw[:n], nil
}

func (s *spiTransport) Close() error {
	return s.port.Close()
}
