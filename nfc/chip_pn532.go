package nfc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// PN532 commands.
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSAMConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInListPassiveTarget = 0x4A
)

// MIFARE commands sent through InDataExchange.
const (
	mifareRead            = 0x30
	mifareWrite           = 0xA0
	mifareUltralightWrite = 0xA2
)

const (
	pn532AckTimeout     = 100 * time.Millisecond
	pn532CommandTimeout = time.Second
	// pn532PassiveRetries bounds a NoTimeout detection round; each retry
	// takes roughly 10ms on the chip.
	pn532PassiveRetries = 0x10
)

// PN532Chip drives an NXP PN532 over one of its host interfaces.
type PN532Chip struct {
	mu        sync.Mutex
	transport Transport
	target    Target
}

// NewPN532Chip creates a chip over an opened transport.
func NewPN532Chip(t Transport) *PN532Chip {
	return &PN532Chip{transport: t}
}

// exchange sends one command and returns the response data following the
// response code.
func (c *PN532Chip) exchange(ctx context.Context, timeout time.Duration, cmd byte, params ...byte) ([]byte, error) {
	if err := c.transport.WriteFrame(buildFrame(append([]byte{cmd}, params...))); err != nil {
		return nil, NewTransportError(fmt.Sprintf("command %02X", cmd), err)
	}
	ack, err := c.transport.ReadFrame(len(pn532AckFrame), pn532AckTimeout)
	if err != nil {
		return nil, NewTransportError(fmt.Sprintf("command %02X ack", cmd), err)
	}
	if !isAck(ack) {
		return nil, Errorf(ErrCodeTransport, fmt.Sprintf("command %02X", cmd), "expected ACK, got % X", ack)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	raw, err := c.transport.ReadFrame(pn532MaxFrame, timeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			// An ACK from the host aborts the pending command.
			_ = c.transport.WriteFrame(pn532AckFrame)
		}
		return nil, NewTransportError(fmt.Sprintf("command %02X response", cmd), err)
	}
	data, err := parseFrame(raw)
	if err != nil {
		_ = c.transport.WriteFrame(pn532NackFrame)
		return nil, NewTransportError(fmt.Sprintf("command %02X response", cmd), err)
	}
	if len(data) == 0 || data[0] != cmd+1 {
		return nil, Errorf(ErrCodeTransport, fmt.Sprintf("command %02X", cmd), "unexpected response % X", data)
	}
	return data[1:], nil
}

func (c *PN532Chip) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport.Wakeup()
}

func (c *PN532Chip) FirmwareVersion() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := c.exchange(context.Background(), pn532CommandTimeout, cmdGetFirmwareVersion)
	if err != nil {
		return 0, err
	}
	if len(data) < 4 {
		return 0, Errorf(ErrCodeTransport, "FirmwareVersion", "short response % X", data)
	}
	return uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]), nil
}

// SAMConfig selects normal mode and bounds the passive activation retries
// so a detection round without timeout still ends.
func (c *PN532Chip) SAMConfig() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx := context.Background()
	// normal mode, 1s virtual card timeout, use IRQ
	if _, err := c.exchange(ctx, pn532CommandTimeout, cmdSAMConfiguration, 0x01, 0x14, 0x01); err != nil {
		return err
	}
	// item 0x05: MxRtyATR, MxRtyPSL, MxRtyPassiveActivation
	_, err := c.exchange(ctx, pn532CommandTimeout, cmdRFConfiguration, 0x05, 0xFF, 0x01, pn532PassiveRetries)
	return err
}

func (c *PN532Chip) ReadPassiveTargetID(ctx context.Context, timeout time.Duration) (Target, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inListPassiveTarget(ctx, timeout)
}

func (c *PN532Chip) inListPassiveTarget(ctx context.Context, timeout time.Duration) (Target, error) {
	if timeout <= 0 {
		timeout = pn532CommandTimeout
	}
	// one target, 106 kbps type A
	data, err := c.exchange(ctx, timeout, cmdInListPassiveTarget, 0x01, 0x00)
	if err != nil {
		return Target{}, err
	}
	if len(data) == 0 || data[0] == 0 {
		return Target{}, NewNoTagError("ReadPassiveTargetID")
	}
	// NbTg, Tg, SENS_RES(2), SEL_RES, NFCIDLength, NFCID1
	if len(data) < 6 || len(data) < 6+int(data[5]) {
		return Target{}, Errorf(ErrCodeTransport, "ReadPassiveTargetID", "short target data % X", data)
	}
	t := Target{
		Identity: NewIdentity(data[6 : 6+int(data[5])]),
		ATQA:     uint16(data[2])<<8 | uint16(data[3]),
		SAK:      data[4],
	}
	c.target = t
	return t, nil
}

// SetRFField sends RFConfiguration item 0x01: bit 1 is auto RFCA, bit 0
// the field itself.
func (c *PN532Chip) SetRFField(field byte, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	value := field << 1
	if on {
		value |= 0x01
	}
	_, err := c.exchange(context.Background(), pn532CommandTimeout, cmdRFConfiguration, 0x01, value)
	return err
}

// dataExchange sends a command to the selected target.
func (c *PN532Chip) dataExchange(op string, payload ...byte) ([]byte, error) {
	data, err := c.exchange(context.Background(), pn532CommandTimeout, cmdInDataExchange, append([]byte{0x01}, payload...)...)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, Errorf(ErrCodeTransport, op, "empty InDataExchange response")
	}
	if status := data[0] & 0x3F; status != 0 {
		return nil, Errorf(ErrCodeTransport, op, "target status %02X", status)
	}
	return data[1:], nil
}

func (c *PN532Chip) selected(id Identity) error {
	if id.IsZero() || !c.target.Identity.Equal(id) {
		return NewNoTagError("select")
	}
	return nil
}

func (c *PN532Chip) ClassicCard(id Identity) (ClassicCard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.selected(id); err != nil {
		return nil, err
	}
	return &pn532ClassicCard{chip: c, id: id}, nil
}

func (c *PN532Chip) UltralightCard(id Identity) (UltralightCard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.selected(id); err != nil {
		return nil, err
	}
	return &pn532UltralightCard{chip: c}, nil
}

func (c *PN532Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport.Close()
}

type pn532ClassicCard struct {
	chip *PN532Chip
	id   Identity
	// halted is set after a failed authentication; the card must be
	// selected again before the next attempt.
	halted bool
}

func (k *pn532ClassicCard) Authenticate(block byte, key [6]byte, keyType int) error {
	k.chip.mu.Lock()
	defer k.chip.mu.Unlock()
	if k.halted {
		if _, err := k.chip.inListPassiveTarget(context.Background(), pn532CommandTimeout); err != nil {
			return err
		}
		k.halted = false
	}
	uid := k.id.Bytes()
	payload := append([]byte{byte(keyType), block}, key[:]...)
	if len(uid) > 4 {
		uid = uid[len(uid)-4:]
	}
	payload = append(payload, uid...)
	if _, err := k.chip.dataExchange("Authenticate", payload...); err != nil {
		k.halted = true
		return err
	}
	return nil
}

func (k *pn532ClassicCard) ReadBlock(block byte) ([16]byte, error) {
	k.chip.mu.Lock()
	defer k.chip.mu.Unlock()
	var out [16]byte
	data, err := k.chip.dataExchange("ReadBlock", mifareRead, block)
	if err != nil {
		return out, err
	}
	if len(data) < 16 {
		return out, Errorf(ErrCodeReadFailed, "ReadBlock", "short block %d: % X", block, data)
	}
	copy(out[:], data)
	return out, nil
}

func (k *pn532ClassicCard) WriteBlock(block byte, data [16]byte) error {
	k.chip.mu.Lock()
	defer k.chip.mu.Unlock()
	_, err := k.chip.dataExchange("WriteBlock", append([]byte{mifareWrite, block}, data[:]...)...)
	return err
}

func (k *pn532ClassicCard) Close() error {
	return nil
}

type pn532UltralightCard struct {
	chip *PN532Chip
}

// ReadPage reads four pages and keeps the first.
func (u *pn532UltralightCard) ReadPage(page byte) ([4]byte, error) {
	u.chip.mu.Lock()
	defer u.chip.mu.Unlock()
	var out [4]byte
	data, err := u.chip.dataExchange("ReadPage", mifareRead, page)
	if err != nil {
		return out, err
	}
	if len(data) < 4 {
		return out, Errorf(ErrCodeReadFailed, "ReadPage", "short page %d: % X", page, data)
	}
	copy(out[:], data)
	return out, nil
}

func (u *pn532UltralightCard) WritePage(page byte, data [4]byte) error {
	u.chip.mu.Lock()
	defer u.chip.mu.Unlock()
	_, err := u.chip.dataExchange("WritePage", append([]byte{mifareUltralightWrite, page}, data[:]...)...)
	return err
}

func (u *pn532UltralightCard) Close() error {
	return nil
}
