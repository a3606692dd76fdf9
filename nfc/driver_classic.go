package nfc

import (
	"fmt"
)

// classicDriver reads and writes NDEF on MIFARE Classic 1K cards using the
// NFC Forum mapping: a MAD in sector 0 and NDEF data in sectors 1-15, keyed
// with the public NFC Forum key.
type classicDriver struct {
	chip    Chip
	scratch []byte
}

// NewClassicDriver is the DriverFactory for TechnologyMifareClassic.
func NewClassicDriver(chip Chip, scratch []byte) Driver {
	return &classicDriver{chip: chip, scratch: scratch}
}

// classicCapacity is the NDEF data area of a 1K card.
const classicCapacity = (classicSectors1K - classicFirstNDEF) * 3 * classicBlockSize

func (d *classicDriver) Read(id Identity) (*Tag, error) {
	card, err := d.chip.ClassicCard(id)
	if err != nil {
		return NewTag(id, TechnologyMifareClassic), NewReadError("Read", err)
	}
	defer card.Close()

	if err := card.Authenticate(classicTrailerOf(classicMADSector), KeyMAD, KeyTypeA); err != nil {
		// A card still on factory keys has no MAD and therefore no message.
		if card.Authenticate(classicTrailerOf(classicMADSector), KeyDefault, KeyTypeA) == nil {
			return NewTag(id, TechnologyMifareClassic), nil
		}
		return NewTag(id, TechnologyMifareClassic), NewAuthError("Read", id.UID(), err)
	}
	block1, err := card.ReadBlock(1)
	if err != nil {
		return NewTag(id, TechnologyMifareClassic), NewReadError("Read", err)
	}
	block2, err := card.ReadBlock(2)
	if err != nil {
		return NewTag(id, TechnologyMifareClassic), NewReadError("Read", err)
	}
	sectors, err := parseMAD(block1, block2)
	if err != nil {
		return NewTag(id, TechnologyMifareClassic), WrapError(ErrCodeInvalidData, "Read", "invalid MAD", err)
	}

	buf := d.scratch[:0]
	truncated := false
	var ndef []byte
	found := false
read:
	for _, sector := range sectors {
		if err := card.Authenticate(classicTrailerOf(sector), KeyNFCForum, KeyTypeA); err != nil {
			return NewTag(id, TechnologyMifareClassic), NewAuthError("Read", id.UID(), err)
		}
		for i := 0; i < 3; i++ {
			if len(buf)+classicBlockSize > len(d.scratch) {
				truncated = true
				break read
			}
			block, err := card.ReadBlock(classicFirstBlockOf(sector) + byte(i))
			if err != nil {
				return NewTag(id, TechnologyMifareClassic), NewReadError("Read", err)
			}
			buf = append(buf, block[:]...)
		}
		if ndef, found = TLVFindNDEF(buf); found {
			break
		}
	}
	if !found {
		ndef, found = TLVFindNDEF(buf)
	}

	switch {
	case !found && truncated:
		return NewTag(id, TechnologyMifareClassic), NewCapacityError("Read", len(buf)+classicBlockSize, len(d.scratch))
	case !found, len(ndef) == 0:
		return NewTag(id, TechnologyMifareClassic), nil
	}
	msg, err := DecodeNDEF(ndef)
	if err != nil {
		return NewTag(id, TechnologyMifareClassic), WrapError(ErrCodeInvalidData, "Read", "invalid NDEF message", err)
	}
	return NewTagWithMessage(id, TechnologyMifareClassic, msg), nil
}

func (d *classicDriver) Write(msg *NDEFMessage, id Identity) error {
	if msg == nil {
		return Errorf(ErrCodeInvalidData, "Write", "nil message")
	}
	encoded, err := msg.Encode()
	if err != nil {
		return WrapError(ErrCodeInvalidData, "Write", "cannot encode message", err)
	}
	size := TLVEncodedSize(len(encoded))
	if size > classicCapacity {
		return NewCapacityError("Write", size, classicCapacity)
	}
	// Stage whole blocks in the scratch buffer.
	padded := (size + classicBlockSize - 1) / classicBlockSize * classicBlockSize
	if padded > len(d.scratch) {
		return NewCapacityError("Write", padded, len(d.scratch))
	}
	buf := d.scratch[:padded]
	clear(buf[copy(buf, TLVEncode(encoded, TLVNDEF)):])

	card, err := d.chip.ClassicCard(id)
	if err != nil {
		return NewWriteError("Write", err)
	}
	defer card.Close()

	offset := 0
	for sector := classicFirstNDEF; sector < classicSectors1K && offset < len(buf); sector++ {
		if err := card.Authenticate(classicTrailerOf(sector), KeyNFCForum, KeyTypeA); err != nil {
			return NewAuthError("Write", id.UID(), err)
		}
		for i := 0; i < 3 && offset < len(buf); i++ {
			var block [16]byte
			copy(block[:], buf[offset:offset+classicBlockSize])
			if err := card.WriteBlock(classicFirstBlockOf(sector)+byte(i), block); err != nil {
				return NewWriteError("Write", fmt.Errorf("sector %d block %d: %w", sector, i, err))
			}
			offset += classicBlockSize
		}
	}
	return nil
}

// Format turns a card on factory keys into an empty NDEF card: MAD in
// sector 0, NFC Forum keys on sectors 1-15, an empty NDEF TLV in sector 1.
func (d *classicDriver) Format(id Identity) error {
	card, err := d.chip.ClassicCard(id)
	if err != nil {
		return NewWriteError("Format", err)
	}
	defer card.Close()

	if err := card.Authenticate(classicTrailerOf(classicMADSector), KeyDefault, KeyTypeA); err != nil {
		return NewAuthError("Format", id.UID(), err)
	}
	block1, block2 := buildMAD()
	if err := card.WriteBlock(1, block1); err != nil {
		return NewWriteError("Format", fmt.Errorf("MAD block 1: %w", err))
	}
	if err := card.WriteBlock(2, block2); err != nil {
		return NewWriteError("Format", fmt.Errorf("MAD block 2: %w", err))
	}
	madTrailer := classicTrailerBlock(KeyMAD, accessMAD, classicTrailerGPB, KeyDefault)
	if err := card.WriteBlock(classicTrailerOf(classicMADSector), madTrailer); err != nil {
		return NewWriteError("Format", fmt.Errorf("MAD trailer: %w", err))
	}

	emptyTLV := [16]byte{TLVNDEF, 0x00, TLVTerminator}
	ndefTrailer := classicTrailerBlock(KeyNFCForum, accessNDEF, classicNDEFGPB, KeyDefault)
	for sector := classicFirstNDEF; sector < classicSectors1K; sector++ {
		if err := card.Authenticate(classicTrailerOf(sector), KeyDefault, KeyTypeA); err != nil {
			return NewAuthError("Format", id.UID(), err)
		}
		for i := 0; i < 3; i++ {
			var data [16]byte
			if sector == classicFirstNDEF && i == 0 {
				data = emptyTLV
			}
			if err := card.WriteBlock(classicFirstBlockOf(sector)+byte(i), data); err != nil {
				return NewWriteError("Format", fmt.Errorf("sector %d block %d: %w", sector, i, err))
			}
		}
		if err := card.WriteBlock(classicTrailerOf(sector), ndefTrailer); err != nil {
			return NewWriteError("Format", fmt.Errorf("sector %d trailer: %w", sector, err))
		}
	}
	return nil
}

// Clean returns every sector to transport configuration: factory keys,
// zeroed data blocks. Block 0 (manufacturer data) is left alone.
func (d *classicDriver) Clean(id Identity) error {
	card, err := d.chip.ClassicCard(id)
	if err != nil {
		return NewWriteError("Clean", err)
	}
	defer card.Close()

	factory := classicTrailerBlock(KeyDefault, accessTransport, transportGPB, KeyDefault)
	for sector := classicSectors1K - 1; sector >= 0; sector-- {
		if err := d.authenticateAny(card, sector); err != nil {
			return NewAuthError("Clean", id.UID(), err)
		}
		for i := 0; i < 3; i++ {
			if sector == 0 && i == 0 {
				continue
			}
			if err := card.WriteBlock(classicFirstBlockOf(sector)+byte(i), [16]byte{}); err != nil {
				return NewWriteError("Clean", fmt.Errorf("sector %d block %d: %w", sector, i, err))
			}
		}
		if err := card.WriteBlock(classicTrailerOf(sector), factory); err != nil {
			return NewWriteError("Clean", fmt.Errorf("sector %d trailer: %w", sector, err))
		}
	}
	return nil
}

// authenticateAny tries the factory key as key B and as key A, then the key
// the sector carries once formatted.
func (d *classicDriver) authenticateAny(card ClassicCard, sector int) error {
	trailer := classicTrailerOf(sector)
	if card.Authenticate(trailer, KeyDefault, KeyTypeB) == nil {
		return nil
	}
	if card.Authenticate(trailer, KeyDefault, KeyTypeA) == nil {
		return nil
	}
	formatted := KeyNFCForum
	if sector == classicMADSector {
		formatted = KeyMAD
	}
	if err := card.Authenticate(trailer, formatted, KeyTypeA); err != nil {
		return fmt.Errorf("no known key for sector %d: %w", sector, err)
	}
	return nil
}
