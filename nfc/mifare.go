package nfc

import (
	"encoding/binary"
	"fmt"
)

// Trailer access conditions written by the Classic driver.
var (
	// accessMAD: key A reads, key B writes the MAD sector.
	accessMAD = [3]byte{0x78, 0x77, 0x88}
	// accessNDEF: data blocks read/write with key A or B.
	accessNDEF = [3]byte{0x7F, 0x07, 0x88}
	// accessTransport is the factory "transport configuration".
	accessTransport = [3]byte{0xFF, 0x07, 0x80}
)

const transportGPB = 0x69

// classicTrailerBlock builds a sector trailer from its keys, the literal
// access bytes and the general purpose byte.
func classicTrailerBlock(keyA [6]byte, access [3]byte, gpb byte, keyB [6]byte) [16]byte {
	var trailer [16]byte
	copy(trailer[0:6], keyA[:])
	copy(trailer[6:9], access[:])
	trailer[9] = gpb
	copy(trailer[10:16], keyB[:])
	return trailer
}

// classicTrailerOf returns the trailer block of a 1K sector.
func classicTrailerOf(sector int) byte {
	return byte(sector*4 + 3)
}

// classicFirstBlockOf returns the first block of a 1K sector.
func classicFirstBlockOf(sector int) byte {
	return byte(sector * 4)
}

// madCRC is the CRC-8 (poly 0x1D, preset 0xC7) over the MAD info byte and
// the application directory entries.
func madCRC(data []byte) byte {
	crc := byte(0xC7)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x1D
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// buildMAD returns MAD v1 blocks 1 and 2 with every sector from
// classicFirstNDEF on assigned to the NDEF application.
func buildMAD() (block1, block2 [16]byte) {
	var mad [32]byte
	mad[1] = 0x01 // info byte: card publisher sector
	for sector := classicFirstNDEF; sector < classicSectors1K; sector++ {
		binary.BigEndian.PutUint16(mad[sector*2:], MADAIDNDEF)
	}
	mad[0] = madCRC(mad[1:])
	copy(block1[:], mad[:16])
	copy(block2[:], mad[16:])
	return block1, block2
}

// parseMAD checks the MAD CRC and returns the sectors assigned to the NDEF
// application, in order.
func parseMAD(block1, block2 [16]byte) ([]int, error) {
	var mad [32]byte
	copy(mad[:16], block1[:])
	copy(mad[16:], block2[:])
	if crc := madCRC(mad[1:]); crc != mad[0] {
		return nil, fmt.Errorf("MAD CRC mismatch: stored %02X, computed %02X", mad[0], crc)
	}
	var sectors []int
	for sector := 1; sector < classicSectors1K; sector++ {
		if binary.BigEndian.Uint16(mad[sector*2:]) == MADAIDNDEF {
			sectors = append(sectors, sector)
		}
	}
	return sectors, nil
}
