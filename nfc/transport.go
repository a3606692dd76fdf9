package nfc

import (
	"errors"
	"fmt"
	"time"
)

// Transport moves raw PN532 frames between the host and the chip.
type Transport interface {
	// Wakeup brings the chip out of power down.
	Wakeup() error
	// WriteFrame sends one complete frame.
	WriteFrame(frame []byte) error
	// ReadFrame waits up to timeout for the chip to have output and returns
	// the next frame, ACK frames included, reading at most max bytes.
	ReadFrame(max int, timeout time.Duration) ([]byte, error)
	Close() error
}

// ErrTimeout is returned by transports when the chip has no output ready
// within the requested time.
var ErrTimeout = errors.New("timed out waiting for chip")

// PN532 frame bytes.
const (
	pn532Preamble   = 0x00
	pn532StartCode1 = 0x00
	pn532StartCode2 = 0xFF
	pn532Postamble  = 0x00
	pn532HostToChip = 0xD4
	pn532ChipToHost = 0xD5

	// pn532MaxFrame is the longest normal information frame.
	pn532MaxFrame = 262
)

var (
	pn532AckFrame  = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	pn532NackFrame = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
)

// buildFrame wraps a command and its parameters in a normal information
// frame.
func buildFrame(data []byte) []byte {
	length := byte(len(data) + 1)
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, pn532Preamble, pn532StartCode1, pn532StartCode2, length, ^length+1, pn532HostToChip)
	frame = append(frame, data...)
	dcs := byte(pn532HostToChip)
	for _, b := range data {
		dcs += b
	}
	return append(frame, ^dcs+1, pn532Postamble)
}

// frameStart returns the index of the 0x00 0xFF start code in raw, or -1.
func frameStart(raw []byte) int {
	for i := 0; i+1 < len(raw); i++ {
		if raw[i] == pn532StartCode1 && raw[i+1] == pn532StartCode2 {
			return i
		}
	}
	return -1
}

// frameLength returns how many bytes of raw, counted from index 0, make up
// the first frame. ok is false while the frame is still incomplete.
func frameLength(raw []byte) (n int, ok bool) {
	s := frameStart(raw)
	if s < 0 || len(raw) < s+4 {
		return 0, false
	}
	length, lcs := raw[s+2], raw[s+3]
	if (length == 0x00 && lcs == 0xFF) || (length == 0xFF && lcs == 0x00) {
		n = s + 5 // ACK or NACK
	} else {
		n = s + int(length) + 6
	}
	return n, len(raw) >= n
}

func isAck(raw []byte) bool {
	s := frameStart(raw)
	return s >= 0 && len(raw) >= s+4 && raw[s+2] == 0x00 && raw[s+3] == 0xFF
}

// parseFrame checks a response frame and returns its data, starting with
// the response code.
func parseFrame(raw []byte) ([]byte, error) {
	s := frameStart(raw)
	if s < 0 || len(raw) < s+4 {
		return nil, fmt.Errorf("no frame start in % X", raw)
	}
	length, lcs := raw[s+2], raw[s+3]
	if length+lcs != 0 {
		return nil, fmt.Errorf("bad length checksum %02X/%02X", length, lcs)
	}
	if length == 0 {
		return nil, fmt.Errorf("unexpected ACK frame")
	}
	body := raw[s+4:]
	if len(body) < int(length)+1 {
		return nil, fmt.Errorf("frame truncated: need %d bytes, have %d", length+1, len(body))
	}
	var sum byte
	for _, b := range body[:int(length)+1] {
		sum += b
	}
	if sum != 0 {
		return nil, fmt.Errorf("bad data checksum")
	}
	if body[0] != pn532ChipToHost {
		if body[0] == 0x7F {
			return nil, fmt.Errorf("chip reported a syntax error")
		}
		return nil, fmt.Errorf("unexpected frame identifier %02X", body[0])
	}
	return body[1:length], nil
}
