package nfc

// TLV block types found in the data area of Type 2 and MIFARE Classic tags.
const (
	TLVNull        = 0x00
	TLVLockCtrl    = 0x01
	TLVMemCtrl     = 0x02
	TLVNDEF        = 0x03
	TLVProprietary = 0xFD
	TLVTerminator  = 0xFE
)

// TLVEncode wraps value in a TLV of the given type followed by a
// Terminator TLV. Lengths of 0xFF and above use the 3-byte form.
func TLVEncode(value []byte, tlvType byte) []byte {
	out := make([]byte, 0, TLVEncodedSize(len(value)))
	out = append(out, tlvType)
	if n := len(value); n < 0xFF {
		out = append(out, byte(n))
	} else {
		out = append(out, 0xFF, byte(n>>8), byte(n))
	}
	out = append(out, value...)
	return append(out, TLVTerminator)
}

// TLVEncodedSize is the number of bytes TLVEncode produces for a value of n bytes.
func TLVEncodedSize(n int) int {
	if n < 0xFF {
		return n + 3
	}
	return n + 5
}

// tlvHeader returns the value length and the offset of the value relative
// to the type byte at data[0]. ok is false when the header is truncated.
func tlvHeader(data []byte) (length, valueOffset int, ok bool) {
	if len(data) < 2 {
		return 0, 0, false
	}
	if data[1] != 0xFF {
		return int(data[1]), 2, true
	}
	if len(data) < 4 {
		return 0, 0, false
	}
	return int(data[2])<<8 | int(data[3]), 4, true
}

// TLVFindNDEF walks a TLV area and returns the value of the first NDEF
// Message TLV. Null TLVs are skipped, other TLVs are stepped over, and a
// Terminator ends the search.
func TLVFindNDEF(data []byte) ([]byte, bool) {
	offset := 0
	for offset < len(data) {
		switch data[offset] {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return nil, false
		}

		length, valueOffset, ok := tlvHeader(data[offset:])
		if !ok {
			return nil, false
		}
		start := offset + valueOffset
		if start+length > len(data) {
			return nil, false
		}
		if data[offset] == TLVNDEF {
			return data[start : start+length], true
		}
		offset = start + length
	}
	return nil, false
}
