package nfc

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// DefaultUARTBaud is the PN532 HSU default speed.
const DefaultUARTBaud = 115200

type uartTransport struct {
	port    io.ReadWriteCloser
	pending []byte
}

// OpenUART opens a PN532 on a serial port in HSU mode.
func OpenUART(name string, baud int) (Transport, error) {
	if baud <= 0 {
		baud = DefaultUARTBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("serial.OpenPort(%v): %w", name, err)
	}
	return newUARTTransport(port), nil
}

func newUARTTransport(port io.ReadWriteCloser) *uartTransport {
	return &uartTransport{port: port}
}

// Wakeup sends the long preamble the HSU link needs after power down.
func (u *uartTransport) Wakeup() error {
	wake := []byte{0x55, 0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if _, err := u.port.Write(wake); err != nil {
		return err
	}
	time.Sleep(2 * time.Millisecond)
	return nil
}

func (u *uartTransport) WriteFrame(frame []byte) error {
	_, err := u.port.Write(frame)
	return err
}

// ReadFrame reads from the serial stream until a whole frame is buffered.
// Bytes past the frame are kept for the next call.
func (u *uartTransport) ReadFrame(max int, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	chunk := make([]byte, 64)
	for {
		if n, ok := frameLength(u.pending); ok {
			frame := u.pending[:n:n]
			u.pending = append([]byte(nil), u.pending[n:]...)
			return frame, nil
		}
		if len(u.pending) > max {
			u.pending = nil
			return nil, fmt.Errorf("no complete frame in %d bytes", max)
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		n, err := u.port.Read(chunk)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		u.pending = append(u.pending, chunk[:n]...)
	}
}

func (u *uartTransport) Close() error {
	return u.port.Close()
}
