package nfc

import (
	"fmt"
)

// ultralightDriver handles NFC Forum Type 2 tags (MIFARE Ultralight,
// NTAG21x). The data area starts at page 4 and its size comes from the
// capability container in page 3.
type ultralightDriver struct {
	chip    Chip
	scratch []byte
}

// NewUltralightDriver is the DriverFactory for TechnologyType2.
func NewUltralightDriver(chip Chip, scratch []byte) Driver {
	return &ultralightDriver{chip: chip, scratch: scratch}
}

// dataAreaSize reads the capability container and returns the size of the
// data area in bytes. ok is false for tags that are not NDEF formatted.
func (d *ultralightDriver) dataAreaSize(card UltralightCard) (size int, ok bool, err error) {
	cc, err := card.ReadPage(type2CCPage)
	if err != nil {
		return 0, false, err
	}
	if cc[0] != type2NDEFMagic {
		return 0, false, nil
	}
	return int(cc[2]) * 8, true, nil
}

func (d *ultralightDriver) Read(id Identity) (*Tag, error) {
	card, err := d.chip.UltralightCard(id)
	if err != nil {
		return NewTag(id, TechnologyType2), NewReadError("Read", err)
	}
	defer card.Close()

	size, ok, err := d.dataAreaSize(card)
	if err != nil {
		return NewTag(id, TechnologyType2), NewReadError("Read", err)
	}
	if !ok {
		return NewTag(id, TechnologyType2), nil
	}

	buf := d.scratch[:0]
	var ndef []byte
	found := false
	for page := type2FirstDataPage; len(buf) < size; page++ {
		if len(buf)+type2PageSize > len(d.scratch) {
			return NewTag(id, TechnologyType2), NewCapacityError("Read", size, len(d.scratch))
		}
		data, err := card.ReadPage(byte(page))
		if err != nil {
			return NewTag(id, TechnologyType2), NewReadError("Read", fmt.Errorf("page %d: %w", page, err))
		}
		buf = append(buf, data[:]...)
		if ndef, found = TLVFindNDEF(buf); found {
			break
		}
		if terminated(buf) {
			break
		}
	}
	if !found || len(ndef) == 0 {
		return NewTag(id, TechnologyType2), nil
	}
	msg, err := DecodeNDEF(ndef)
	if err != nil {
		return NewTag(id, TechnologyType2), WrapError(ErrCodeInvalidData, "Read", "invalid NDEF message", err)
	}
	return NewTagWithMessage(id, TechnologyType2, msg), nil
}

func (d *ultralightDriver) Write(msg *NDEFMessage, id Identity) error {
	if msg == nil {
		return Errorf(ErrCodeInvalidData, "Write", "nil message")
	}
	encoded, err := msg.Encode()
	if err != nil {
		return WrapError(ErrCodeInvalidData, "Write", "cannot encode message", err)
	}

	card, err := d.chip.UltralightCard(id)
	if err != nil {
		return NewWriteError("Write", err)
	}
	defer card.Close()

	size, ok, err := d.dataAreaSize(card)
	if err != nil {
		return NewReadError("Write", err)
	}
	if !ok {
		return Errorf(ErrCodeInvalidData, "Write", "tag is not NDEF formatted")
	}
	need := TLVEncodedSize(len(encoded))
	if need > size {
		return NewCapacityError("Write", need, size)
	}
	padded := (need + type2PageSize - 1) / type2PageSize * type2PageSize
	if padded > len(d.scratch) {
		return NewCapacityError("Write", padded, len(d.scratch))
	}
	buf := d.scratch[:padded]
	clear(buf[copy(buf, TLVEncode(encoded, TLVNDEF)):])

	return d.writePages(card, "Write", buf)
}

// Format is a MIFARE Classic operation; Type 2 tags ship with their
// capability container already written.
func (d *ultralightDriver) Format(Identity) error {
	return NewNotSupportedError("Format")
}

// Clean leaves an empty NDEF TLV at the start of the data area and zeroes
// the rest of it.
func (d *ultralightDriver) Clean(id Identity) error {
	card, err := d.chip.UltralightCard(id)
	if err != nil {
		return NewWriteError("Clean", err)
	}
	defer card.Close()

	size, ok, err := d.dataAreaSize(card)
	if err != nil {
		return NewReadError("Clean", err)
	}
	if !ok {
		return Errorf(ErrCodeInvalidData, "Clean", "tag is not NDEF formatted")
	}
	if size > len(d.scratch) {
		return NewCapacityError("Clean", size, len(d.scratch))
	}
	buf := d.scratch[:size]
	clear(buf)
	copy(buf, []byte{TLVNDEF, 0x00, TLVTerminator})

	return d.writePages(card, "Clean", buf)
}

func (d *ultralightDriver) writePages(card UltralightCard, op string, buf []byte) error {
	for offset := 0; offset < len(buf); offset += type2PageSize {
		page := type2FirstDataPage + offset/type2PageSize
		var data [4]byte
		copy(data[:], buf[offset:])
		if err := card.WritePage(byte(page), data); err != nil {
			return NewWriteError(op, fmt.Errorf("page %d: %w", page, err))
		}
	}
	return nil
}

// terminated reports whether the TLV area in buf ends before an NDEF TLV,
// so no further pages need to be read.
func terminated(buf []byte) bool {
	offset := 0
	for offset < len(buf) {
		switch buf[offset] {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return true
		}
		length, valueOffset, ok := tlvHeader(buf[offset:])
		if !ok {
			return false
		}
		offset += valueOffset + length
	}
	return false
}
