package nfc

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockChip is a test implementation of Chip.
//
// Presence is controlled through SetTarget/RemoveTarget, card access through
// the Classic and Ultralight fields. Every call is recorded in the call log.
//
// Example:
//
//	chip := NewMockChip()
//	chip.SetTarget(Target{Identity: NewIdentity([]byte{0x04, 0x11, 0x22, 0x33})})
//	chip.Classic = NewMockClassicCard()
//	adapter := NewAdapter(chip, nil)
type MockChip struct {
	// FirmwareVersionValue is returned by FirmwareVersion. Zero simulates a
	// chip that does not answer.
	FirmwareVersionValue uint32

	BeginError      error
	FirmwareError   error
	SAMConfigError  error
	SetRFFieldError error
	CloseError      error

	// Classic and Ultralight are handed out by ClassicCard and UltralightCard.
	Classic    *MockClassicCard
	Ultralight *MockUltralightCard

	// FieldOn tracks the last SetRFField call.
	FieldOn bool

	mu        sync.Mutex
	target    Target
	hasTarget bool
	callLog   []string
}

// NewMockChip creates a mock chip reporting PN532 firmware 1.6.
func NewMockChip() *MockChip {
	return &MockChip{
		FirmwareVersionValue: 0x32010607,
		FieldOn:              true,
	}
}

// SetTarget puts a tag in the field.
func (m *MockChip) SetTarget(t Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target = t
	m.hasTarget = true
}

// RemoveTarget takes the tag out of the field.
func (m *MockChip) RemoveTarget() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target = Target{}
	m.hasTarget = false
}

func (m *MockChip) log(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callLog = append(m.callLog, fmt.Sprintf(format, args...))
}

// GetCallLog returns a copy of the recorded calls.
func (m *MockChip) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.callLog))
	copy(out, m.callLog)
	return out
}

// ClearCallLog empties the call log.
func (m *MockChip) ClearCallLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callLog = nil
}

// CountCalls returns how many logged calls start with prefix.
func (m *MockChip) CountCalls(prefix string) int {
	n := 0
	for _, c := range m.GetCallLog() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (m *MockChip) Begin() error {
	m.log("Begin")
	return m.BeginError
}

func (m *MockChip) FirmwareVersion() (uint32, error) {
	m.log("FirmwareVersion")
	if m.FirmwareError != nil {
		return 0, m.FirmwareError
	}
	return m.FirmwareVersionValue, nil
}

func (m *MockChip) SAMConfig() error {
	m.log("SAMConfig")
	return m.SAMConfigError
}

// ReadPassiveTargetID returns the current target. Without one it waits for
// timeout (bounded to a few milliseconds so tests stay fast) or until ctx is
// done.
func (m *MockChip) ReadPassiveTargetID(ctx context.Context, timeout time.Duration) (Target, error) {
	m.log("ReadPassiveTargetID(%s)", timeout)
	m.mu.Lock()
	t, ok := m.target, m.hasTarget
	m.mu.Unlock()
	if ok {
		return t, nil
	}
	wait := timeout
	if wait <= 0 || wait > 5*time.Millisecond {
		wait = 5 * time.Millisecond
	}
	select {
	case <-ctx.Done():
		return Target{}, ctx.Err()
	case <-time.After(wait):
	}
	return Target{}, NewNoTagError("ReadPassiveTargetID")
}

func (m *MockChip) SetRFField(field byte, on bool) error {
	m.log("SetRFField(%d, %t)", field, on)
	if m.SetRFFieldError != nil {
		return m.SetRFFieldError
	}
	m.mu.Lock()
	m.FieldOn = on
	m.mu.Unlock()
	return nil
}

func (m *MockChip) ClassicCard(id Identity) (ClassicCard, error) {
	m.log("ClassicCard(%s)", id)
	if id.IsZero() {
		return nil, NewNoTagError("ClassicCard")
	}
	if m.Classic == nil {
		return nil, fmt.Errorf("no MIFARE Classic card in field")
	}
	return m.Classic, nil
}

func (m *MockChip) UltralightCard(id Identity) (UltralightCard, error) {
	m.log("UltralightCard(%s)", id)
	if id.IsZero() {
		return nil, NewNoTagError("UltralightCard")
	}
	if m.Ultralight == nil {
		return nil, fmt.Errorf("no Type 2 card in field")
	}
	return m.Ultralight, nil
}

func (m *MockChip) Close() error {
	m.log("Close")
	return m.CloseError
}

// MockClassicCard simulates the memory of a MIFARE Classic 1K card.
//
// Authentication is checked against the keys stored in each sector
// trailer; access bits are not enforced. A failed authentication drops the
// current session, as on a real card.
type MockClassicCard struct {
	Blocks [64][16]byte

	// ReadError and WriteError, if set, fail every read or write.
	ReadError  error
	WriteError error

	mu         sync.Mutex
	authSector int
	closed     int
}

// NewMockClassicCard creates a card in factory state: transport keys on
// every sector and manufacturer data in block 0.
func NewMockClassicCard() *MockClassicCard {
	c := &MockClassicCard{authSector: -1}
	c.Blocks[0] = [16]byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x08, 0x04, 0x00}
	factory := classicTrailerBlock(KeyDefault, accessTransport, transportGPB, KeyDefault)
	for sector := 0; sector < classicSectors1K; sector++ {
		c.Blocks[classicTrailerOf(sector)] = factory
	}
	return c
}

func (c *MockClassicCard) Authenticate(block byte, key [6]byte, keyType int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(block) >= len(c.Blocks) {
		return fmt.Errorf("block %d out of range", block)
	}
	sector := int(block) / 4
	trailer := c.Blocks[classicTrailerOf(sector)]
	var stored [6]byte
	switch keyType {
	case KeyTypeA:
		copy(stored[:], trailer[0:6])
	case KeyTypeB:
		copy(stored[:], trailer[10:16])
	default:
		return fmt.Errorf("unknown key type 0x%02X", keyType)
	}
	if stored != key {
		c.authSector = -1
		return fmt.Errorf("authentication failed for sector %d", sector)
	}
	c.authSector = sector
	return nil
}

func (c *MockClassicCard) ReadBlock(block byte) ([16]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadError != nil {
		return [16]byte{}, c.ReadError
	}
	if err := c.checkAuth(block); err != nil {
		return [16]byte{}, err
	}
	return c.Blocks[block], nil
}

func (c *MockClassicCard) WriteBlock(block byte, data [16]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteError != nil {
		return c.WriteError
	}
	if err := c.checkAuth(block); err != nil {
		return err
	}
	if block == 0 {
		return fmt.Errorf("block 0 is read-only")
	}
	c.Blocks[block] = data
	return nil
}

func (c *MockClassicCard) checkAuth(block byte) error {
	if int(block) >= len(c.Blocks) {
		return fmt.Errorf("block %d out of range", block)
	}
	if c.authSector != int(block)/4 {
		return fmt.Errorf("block %d: sector not authenticated", block)
	}
	return nil
}

func (c *MockClassicCard) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authSector = -1
	c.closed++
	return nil
}

// MockUltralightCard simulates the pages of an NFC Forum Type 2 tag.
type MockUltralightCard struct {
	Pages [][4]byte

	ReadError  error
	WriteError error

	mu     sync.Mutex
	closed int
}

// NewMockUltralightCard creates an NDEF formatted tag with dataSize bytes
// of user memory (144 for an NTAG213) holding an empty NDEF TLV.
func NewMockUltralightCard(dataSize int) *MockUltralightCard {
	c := &MockUltralightCard{
		Pages: make([][4]byte, type2FirstDataPage+dataSize/type2PageSize),
	}
	c.Pages[0] = [4]byte{0x04, 0x11, 0x22, 0x88}
	c.Pages[type2CCPage] = [4]byte{type2NDEFMagic, 0x10, byte(dataSize / 8), 0x00}
	c.Pages[type2FirstDataPage] = [4]byte{TLVNDEF, 0x00, TLVTerminator, 0x00}
	return c
}

// Data returns the user memory, from page 4 on.
func (c *MockUltralightCard) Data() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, p := range c.Pages[type2FirstDataPage:] {
		out = append(out, p[:]...)
	}
	return out
}

func (c *MockUltralightCard) ReadPage(page byte) ([4]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadError != nil {
		return [4]byte{}, c.ReadError
	}
	if int(page) >= len(c.Pages) {
		return [4]byte{}, fmt.Errorf("page %d out of range", page)
	}
	return c.Pages[page], nil
}

func (c *MockUltralightCard) WritePage(page byte, data [4]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteError != nil {
		return c.WriteError
	}
	if page < type2FirstDataPage || int(page) >= len(c.Pages) {
		return fmt.Errorf("page %d is not writable", page)
	}
	c.Pages[page] = data
	return nil
}

func (c *MockUltralightCard) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}
