package nfc

import (
	"bytes"
	"testing"
)

func TestMadCRC(t *testing.T) {
	block1, block2 := buildMAD()
	if block1[0] != 0x14 {
		t.Errorf("MAD CRC = 0x%02X, want 0x14", block1[0])
	}
	if block1[1] != 0x01 {
		t.Errorf("MAD info byte = 0x%02X, want 0x01", block1[1])
	}
	for _, pair := range [][]byte{block1[2:4], block1[14:16], block2[0:2], block2[14:16]} {
		if !bytes.Equal(pair, []byte{0x03, 0xE1}) {
			t.Errorf("AID entry = % X, want 03 E1", pair)
		}
	}
}

func TestParseMAD(t *testing.T) {
	block1, block2 := buildMAD()
	sectors, err := parseMAD(block1, block2)
	if err != nil {
		t.Fatalf("parseMAD() failed: %v", err)
	}
	if len(sectors) != 15 || sectors[0] != 1 || sectors[14] != 15 {
		t.Errorf("parseMAD() = %v, want sectors 1-15", sectors)
	}
}

func TestParseMAD_PartialDirectory(t *testing.T) {
	var mad [32]byte
	mad[1] = 0x01
	mad[2], mad[3] = 0x03, 0xE1 // sector 1
	mad[4], mad[5] = 0x00, 0x00 // sector 2 free
	mad[6], mad[7] = 0x03, 0xE1 // sector 3
	mad[0] = madCRC(mad[1:])

	var b1, b2 [16]byte
	copy(b1[:], mad[:16])
	copy(b2[:], mad[16:])

	sectors, err := parseMAD(b1, b2)
	if err != nil {
		t.Fatal(err)
	}
	if len(sectors) != 2 || sectors[0] != 1 || sectors[1] != 3 {
		t.Errorf("parseMAD() = %v, want [1 3]", sectors)
	}
}

func TestParseMAD_BadCRC(t *testing.T) {
	block1, block2 := buildMAD()
	block1[0] ^= 0xFF
	if _, err := parseMAD(block1, block2); err == nil {
		t.Error("expected CRC mismatch error")
	}
}

func TestClassicTrailerBlock(t *testing.T) {
	tests := []struct {
		name  string
		block [16]byte
		want  []byte
	}{
		{
			name:  "MAD",
			block: classicTrailerBlock(KeyMAD, accessMAD, classicTrailerGPB, KeyDefault),
			want: []byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5, 0x78, 0x77, 0x88, 0xC1,
				0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		},
		{
			name:  "NDEF",
			block: classicTrailerBlock(KeyNFCForum, accessNDEF, classicNDEFGPB, KeyDefault),
			want: []byte{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7, 0x7F, 0x07, 0x88, 0x40,
				0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		},
		{
			name:  "transport",
			block: classicTrailerBlock(KeyDefault, accessTransport, transportGPB, KeyDefault),
			want: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x07, 0x80, 0x69,
				0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Equal(tt.block[:], tt.want) {
				t.Errorf("trailer = % X, want % X", tt.block, tt.want)
			}
		})
	}
}

func TestClassicSectorLayout(t *testing.T) {
	if classicTrailerOf(0) != 3 || classicTrailerOf(15) != 63 {
		t.Errorf("classicTrailerOf() = %d, %d; want 3, 63", classicTrailerOf(0), classicTrailerOf(15))
	}
	if classicFirstBlockOf(1) != 4 || classicFirstBlockOf(15) != 60 {
		t.Errorf("classicFirstBlockOf() = %d, %d; want 4, 60", classicFirstBlockOf(1), classicFirstBlockOf(15))
	}
}
