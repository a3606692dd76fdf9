package nfc

import "time"

// Technology names as reported to clients.
const (
	TechnologyNameMifareClassic = "MIFARE Classic"
	TechnologyNameType2         = "NFC Forum Type 2"
	TechnologyNameUnknown       = "Unknown"
)

// MIFARE Classic key type constants for authentication
const (
	// KeyTypeA is used for MIFARE Classic Key A authentication
	KeyTypeA = 0x60
	// KeyTypeB is used for MIFARE Classic Key B authentication
	KeyTypeB = 0x61
)

// Common MIFARE Classic keys
var (
	// KeyDefault is the factory default key (all 0xFF)
	KeyDefault = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	// KeyNFCForum is the NFC Forum public key for NDEF sectors
	KeyNFCForum = [6]byte{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}
	// KeyMAD is the MAD (MIFARE Application Directory) key
	KeyMAD = [6]byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
)

const (
	// MADAIDNDEF is the MAD application identifier of an NDEF sector.
	MADAIDNDEF uint16 = 0x03E1

	// NoTimeout asks TagPresent to use the chip's default detection bound.
	NoTimeout time.Duration = 0

	// DefaultScratchSize covers the NDEF area of a MIFARE Classic 1K card
	// (15 sectors x 3 blocks x 16 bytes) and every NTAG21x.
	DefaultScratchSize = 1024
)

// Layout constants for the two supported tag families.
const (
	classicBlockSize   = 16
	classicSectors1K   = 16
	classicMADSector   = 0
	classicFirstNDEF   = 1
	classicTrailerGPB  = 0xC1 // MAD v1, multi-application card
	classicNDEFGPB     = 0x40 // NDEF v1.0, read/write
	type2PageSize      = 4
	type2CCPage        = 3
	type2FirstDataPage = 4
	type2NDEFMagic     = 0xE1
)
