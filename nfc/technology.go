package nfc

// Technology is the tag family a detected identity is classified into.
type Technology int

const (
	// TechnologyUnknown covers both "classification undetermined" and
	// "no driver available".
	TechnologyUnknown Technology = iota
	// TechnologyMifareClassic is the sector-based MIFARE Classic family.
	TechnologyMifareClassic
	// TechnologyType2 is the page-addressed NFC Forum Type 2 family
	// (MIFARE Ultralight, NTAG21x).
	TechnologyType2
)

func (t Technology) String() string {
	switch t {
	case TechnologyMifareClassic:
		return TechnologyNameMifareClassic
	case TechnologyType2:
		return TechnologyNameType2
	default:
		return TechnologyNameUnknown
	}
}

// Classify guesses the tag technology from the identity alone.
//
// Four-byte identifiers are taken to be MIFARE Classic and everything else,
// including an empty identity, NFC Forum Type 2. This misclassifies 7-byte
// MIFARE Classic cards; the drivers and their callers rely on the split, so
// it is kept as is. ClassifyTarget gives the ATQA/SAK based answer.
func Classify(id Identity) Technology {
	if id.Len() == 4 {
		return TechnologyMifareClassic
	}
	return TechnologyType2
}

// ClassifyTarget classifies a target from its anticollision response.
//
//	4 byte UID, ATQA 0x0004, SAK 0x08 - MIFARE Classic 1K
//	7 byte UID, ATQA 0x0044, SAK 0x08 - MIFARE Classic 1K (7 byte)
//	7 byte UID, ATQA 0x0044, SAK 0x00 - MIFARE Ultralight / NTAG
//	ATQA 0x0344, SAK 0x20             - NFC Forum Type 4, no driver
//
// The adapter does not dispatch on this yet; it is logged next to the
// length-based guess so the two can be compared on real cards.
func ClassifyTarget(id Identity, atqa uint16, sak byte) Technology {
	if id.IsZero() {
		return TechnologyUnknown
	}
	switch sak {
	case 0x08, 0x09, 0x18, 0x88:
		return TechnologyMifareClassic
	case 0x00:
		if atqa&0x0040 != 0 || id.Len() == 7 {
			return TechnologyType2
		}
	}
	return TechnologyUnknown
}
