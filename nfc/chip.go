package nfc

import (
	"context"
	"fmt"
	"time"
)

// Target is what the chip reports for a selected ISO14443A target.
type Target struct {
	Identity Identity
	ATQA     uint16
	SAK      byte
}

// Chip is the reader chip the adapter drives.
//
// The adapter only needs the presence, firmware and RF field calls; the card
// accessors are handed to technology drivers so they can talk to the tag
// selected by the last successful ReadPassiveTargetID.
type Chip interface {
	// Begin wakes up the chip and its transport.
	Begin() error
	// FirmwareVersion returns IC, version, revision and support flags packed
	// big-endian into one word. Zero means the chip did not answer.
	FirmwareVersion() (uint32, error)
	// SAMConfig puts the chip's security module in normal mode so it can
	// act as a reader.
	SAMConfig() error
	// ReadPassiveTargetID selects one ISO14443A target at 106 kbps. A zero
	// timeout uses the chip's default bound.
	ReadPassiveTargetID(ctx context.Context, timeout time.Duration) (Target, error)
	// SetRFField switches the RF field. field is the auto-RFCA flag.
	SetRFField(field byte, on bool) error
	ClassicCard(id Identity) (ClassicCard, error)
	UltralightCard(id Identity) (UltralightCard, error)
	Close() error
}

// FirmwareInfo is the decoded form of Chip.FirmwareVersion.
type FirmwareInfo struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

// ParseFirmwareVersion splits a packed firmware word.
func ParseFirmwareVersion(v uint32) FirmwareInfo {
	return FirmwareInfo{
		IC:       byte(v >> 24),
		Version:  byte(v >> 16),
		Revision: byte(v >> 8),
		Support:  byte(v),
	}
}

func (f FirmwareInfo) String() string {
	return fmt.Sprintf("PN5%02x firmware %d.%d", f.IC, f.Version, f.Revision)
}
