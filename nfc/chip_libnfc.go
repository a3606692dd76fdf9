package nfc

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"
)

// LibNFCChip drives any reader libnfc supports (PN532, PN533, ACR122U)
// and uses libfreefare for MIFARE card access.
type LibNFCChip struct {
	mu     sync.Mutex
	device nfc.Device
	target Target
}

// OpenLibNFC opens a libnfc device. An empty connection string picks the
// first device libnfc finds.
func OpenLibNFC(conn string) (*LibNFCChip, error) {
	dev, err := nfc.Open(conn)
	if err != nil {
		return nil, NewTransportError("OpenLibNFC", err)
	}
	return &LibNFCChip{device: dev}, nil
}

func (c *LibNFCChip) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device.InitiatorInit()
}

var libnfcChipRe = regexp.MustCompile(`PN5([0-9A-Fa-f]{2})\s+v(\d+)\.(\d+)`)

// parseLibNFCFirmware extracts the chip and firmware from libnfc's device
// information. A device that answered but whose chip line is not
// recognized still reports a non-zero version.
func parseLibNFCFirmware(info string) uint32 {
	m := libnfcChipRe.FindStringSubmatch(info)
	if m == nil {
		if strings.TrimSpace(info) == "" {
			return 0
		}
		return 1
	}
	ic, _ := strconv.ParseUint(m[1], 16, 8)
	ver, _ := strconv.ParseUint(m[2], 10, 8)
	rev, _ := strconv.ParseUint(m[3], 10, 8)
	return uint32(ic)<<24 | uint32(ver)<<16 | uint32(rev)<<8
}

func (c *LibNFCChip) FirmwareVersion() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, err := c.device.Information()
	if err != nil {
		return 0, err
	}
	return parseLibNFCFirmware(info), nil
}

// SAMConfig has nothing to configure through libnfc; it turns off
// infinite select so detection rounds are bounded.
func (c *LibNFCChip) SAMConfig() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device.SetPropertyBool(nfc.InfiniteSelect, false)
}

func (c *LibNFCChip) ReadPassiveTargetID(ctx context.Context, timeout time.Duration) (Target, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}
	deadline := time.Now().Add(timeout)
	for {
		t, err := c.device.InitiatorSelectPassiveTarget(m, nil)
		if err == nil {
			if iso, ok := t.(*nfc.ISO14443aTarget); ok && iso.UIDLen > 0 {
				c.target = Target{
					Identity: NewIdentity(iso.UID[:iso.UIDLen]),
					ATQA:     uint16(iso.Atqa[0])<<8 | uint16(iso.Atqa[1]),
					SAK:      iso.Sak,
				}
				return c.target, nil
			}
		}
		if timeout == NoTimeout || time.Now().After(deadline) {
			if err != nil {
				return Target{}, NewTransportError("ReadPassiveTargetID", err)
			}
			return Target{}, NewNoTagError("ReadPassiveTargetID")
		}
		select {
		case <-ctx.Done():
			return Target{}, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// SetRFField maps to libnfc's ActivateField property; the field index has
// no libnfc counterpart.
func (c *LibNFCChip) SetRFField(_ byte, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device.SetPropertyBool(nfc.ActivateField, on)
}

// freefareTag finds the tag with the given identity among those freefare
// sees in the field.
func (c *LibNFCChip) freefareTag(id Identity) (freefare.Tag, error) {
	if id.IsZero() {
		return nil, NewNoTagError("select")
	}
	tags, err := freefare.GetTags(c.device)
	if err != nil {
		return nil, NewTransportError("freefare.GetTags", err)
	}
	for _, tag := range tags {
		if strings.EqualFold(tag.UID(), id.UID()) {
			return tag, nil
		}
	}
	return nil, NewNoTagError("select")
}

func (c *LibNFCChip) ClassicCard(id Identity) (ClassicCard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tag, err := c.freefareTag(id)
	if err != nil {
		return nil, err
	}
	classic, ok := tag.(freefare.ClassicTag)
	if !ok {
		return nil, Errorf(ErrCodeNotSupported, "ClassicCard", "tag %s is not MIFARE Classic", id)
	}
	if err := classic.Connect(); err != nil {
		return nil, NewTransportError("ClassicCard", err)
	}
	return &libnfcClassicCard{tag: classic}, nil
}

func (c *LibNFCChip) UltralightCard(id Identity) (UltralightCard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tag, err := c.freefareTag(id)
	if err != nil {
		return nil, err
	}
	ul, ok := tag.(freefare.UltralightTag)
	if !ok {
		return nil, Errorf(ErrCodeNotSupported, "UltralightCard", "tag %s is not a Type 2 tag", id)
	}
	if err := ul.Connect(); err != nil {
		return nil, NewTransportError("UltralightCard", err)
	}
	return &libnfcUltralightCard{tag: ul}, nil
}

func (c *LibNFCChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device.Close()
}

// String returns the libnfc device name.
func (c *LibNFCChip) String() string {
	return fmt.Sprintf("%s (%s)", c.device.String(), c.device.Connection())
}

type libnfcClassicCard struct {
	tag    freefare.ClassicTag
	halted bool
}

func freefareKeyType(keyType int) int {
	if keyType == KeyTypeB {
		return int(freefare.KeyB)
	}
	return int(freefare.KeyA)
}

func (k *libnfcClassicCard) Authenticate(block byte, key [6]byte, keyType int) error {
	if k.halted {
		// A failed authentication halts the card; reconnect to select it again.
		k.tag.Disconnect()
		if err := k.tag.Connect(); err != nil {
			return err
		}
		k.halted = false
	}
	if err := k.tag.Authenticate(block, key, freefareKeyType(keyType)); err != nil {
		k.halted = true
		return err
	}
	return nil
}

func (k *libnfcClassicCard) ReadBlock(block byte) ([16]byte, error) {
	return k.tag.ReadBlock(block)
}

func (k *libnfcClassicCard) WriteBlock(block byte, data [16]byte) error {
	return k.tag.WriteBlock(block, data)
}

func (k *libnfcClassicCard) Close() error {
	return k.tag.Disconnect()
}

type libnfcUltralightCard struct {
	tag freefare.UltralightTag
}

func (u *libnfcUltralightCard) ReadPage(page byte) ([4]byte, error) {
	return u.tag.ReadPage(page)
}

func (u *libnfcUltralightCard) WritePage(page byte, data [4]byte) error {
	return u.tag.WritePage(page, data)
}

func (u *libnfcUltralightCard) Close() error {
	return u.tag.Disconnect()
}
